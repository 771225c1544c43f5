// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dtn7/dtnd7/bpv7"
)

// outgoingTransfer streams one bundle's CBOR encoding out as a sequence of
// XFER_SEGMENT messages bounded by the peer's segment MRU.
type outgoingTransfer struct {
	id uint64

	startFlag  bool
	dataStream io.Reader
}

// newOutgoingTransfer starts marshaling b in a background goroutine and
// returns a transfer that reads the result back through an io.Pipe.
func newOutgoingTransfer(id uint64, b bpv7.Bundle) *outgoingTransfer {
	r, w := io.Pipe()

	go func() {
		bw := bufio.NewWriter(w)
		err := b.MarshalCbor(bw)
		if err == nil {
			err = bw.Flush()
		}
		_ = w.CloseWithError(err)
	}()

	return &outgoingTransfer{id: id, startFlag: true, dataStream: r}
}

// nextSegment produces the next XFER_SEGMENT, sized up to mru bytes, setting
// SegmentStart on the first and SegmentEnd on the last.
func (t *outgoingTransfer) nextSegment(mru uint64) (DataTransmissionMessage, error) {
	var flags SegmentFlags
	if t.startFlag {
		t.startFlag = false
		flags |= SegmentStart
	}

	buf := make([]byte, mru)
	n, err := io.ReadFull(t.dataStream, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		buf = buf[:n]
		flags |= SegmentEnd
	} else if err != nil {
		return DataTransmissionMessage{}, err
	}

	return NewDataTransmissionMessage(flags, t.id, buf), nil
}

// incomingTransfer accumulates XFER_SEGMENT data for one inbound transfer
// until its SegmentEnd segment arrives.
type incomingTransfer struct {
	id uint64

	endFlag bool
	buf     *bytes.Buffer
}

func newIncomingTransfer(id uint64) *incomingTransfer {
	return &incomingTransfer{id: id, buf: new(bytes.Buffer)}
}

func (t incomingTransfer) isFinished() bool {
	return t.endFlag
}

// acceptSegment appends a segment's data and returns the XFER_ACK to send.
func (t *incomingTransfer) acceptSegment(dtm DataTransmissionMessage) (DataAcknowledgementMessage, error) {
	if t.isFinished() {
		return DataAcknowledgementMessage{}, fmt.Errorf("%w: transfer %d already has its end flag", ErrMalformedMessage, t.id)
	}
	if t.id != dtm.TransferId {
		return DataAcknowledgementMessage{}, fmt.Errorf("%w: XFER_SEGMENT transfer id %d mismatches %d", ErrMalformedMessage, dtm.TransferId, t.id)
	}

	t.buf.Write(dtm.Data)

	if dtm.Flags&SegmentEnd != 0 {
		t.endFlag = true
	}

	return NewDataAcknowledgementMessage(dtm.Flags, dtm.TransferId, uint64(t.buf.Len())), nil
}

// toBundle decodes a finished transfer's accumulated bytes.
func (t *incomingTransfer) toBundle() (bpv7.Bundle, error) {
	if !t.isFinished() {
		return bpv7.Bundle{}, fmt.Errorf("%w: transfer %d has not received its end flag", ErrMalformedMessage, t.id)
	}

	var b bpv7.Bundle
	err := b.UnmarshalCbor(t.buf)
	return b, err
}

// sendRequest pairs a bundle queued for the outbound transfer slot with the
// channel its eventual per-transfer outcome is reported on.
type sendRequest struct {
	bundle bpv7.Bundle
	done   chan error
}

// transferManager drives at most one inbound and one outbound transfer at a
// time over a session's exchange channels, a deliberate simplification of
// allowing multiple concurrent transfers per session.
type transferManager struct {
	msgIn  <-chan Message
	msgOut chan<- Message

	segmentMru uint64
	nextID     uint64

	outgoing *outgoingTransfer
	incoming *incomingTransfer

	bundlesIn chan bpv7.Bundle
	sendQueue chan sendRequest
	errChan   chan error
	closeChan chan struct{}
}

// newTransferManager starts the manager's pump goroutine.
func newTransferManager(msgIn <-chan Message, msgOut chan<- Message, segmentMru uint64) *transferManager {
	tm := &transferManager{
		msgIn:      msgIn,
		msgOut:     msgOut,
		segmentMru: segmentMru,

		bundlesIn: make(chan bpv7.Bundle, 8),
		sendQueue: make(chan sendRequest, 8),
		errChan:   make(chan error),
		closeChan: make(chan struct{}),
	}

	go tm.run()

	return tm
}

func (tm *transferManager) run() {
	defer close(tm.errChan)

	for {
		select {
		case <-tm.closeChan:
			return

		case req := <-tm.sendQueue:
			err := tm.sendBundle(req.bundle)
			req.done <- err
			close(req.done)

			if err != nil && !errors.Is(err, ErrTransferRefused) {
				tm.errChan <- err
				return
			}

		case msg := <-tm.msgIn:
			if err := tm.handleMsgIn(msg); err != nil {
				tm.errChan <- err
				return
			}
		}
	}
}

// sendBundle drives one outbound transfer to completion. A peer XFER_REFUSE
// fails only this transfer (wrapping ErrTransferRefused); every other error
// is a protocol violation that ends the session.
func (tm *transferManager) sendBundle(b bpv7.Bundle) error {
	tm.nextID++
	tm.outgoing = newOutgoingTransfer(tm.nextID, b)
	defer func() { tm.outgoing = nil }()

	for {
		seg, err := tm.outgoing.nextSegment(tm.segmentMru)
		if err != nil {
			return err
		}

		select {
		case <-tm.closeChan:
			return ErrSessionTerminated
		case tm.msgOut <- &seg:
		}

		if seg.Flags&SegmentEnd != 0 {
			return nil
		}

		// Wait for the corresponding XFER_ACK before sending the next
		// segment, per spec.md's single-in-flight-transfer rule. Inbound
		// XFER_SEGMENTs for the other direction's transfer are still
		// serviced while we wait, since the two directions are independent.
		for acked := false; !acked; {
			select {
			case <-tm.closeChan:
				return ErrSessionTerminated

			case msg := <-tm.msgIn:
				switch m := msg.(type) {
				case *DataAcknowledgementMessage:
					if m.TransferId != seg.TransferId {
						return fmt.Errorf("%w: XFER_ACK for transfer %d, expected %d", ErrMalformedMessage, m.TransferId, seg.TransferId)
					}
					acked = true

				case *TransferRefusalMessage:
					if m.TransferId != seg.TransferId {
						return fmt.Errorf("%w: XFER_REFUSE for transfer %d, expected %d", ErrMalformedMessage, m.TransferId, seg.TransferId)
					}
					return fmt.Errorf("%w: reason code %d", ErrTransferRefused, m.ReasonCode)

				default:
					if err := tm.handleMsgIn(msg); err != nil {
						return err
					}
				}
			}
		}
	}
}

func (tm *transferManager) handleMsgIn(msg Message) error {
	switch m := msg.(type) {
	case *DataTransmissionMessage:
		if uint64(len(m.Data)) > defaultSegmentMru {
			return ErrSegmentMRUExceeded
		}
		if tm.incoming == nil {
			if m.Flags&SegmentStart == 0 {
				return fmt.Errorf("%w: XFER_SEGMENT without START opens no transfer", ErrMalformedMessage)
			}
			tm.incoming = newIncomingTransfer(m.TransferId)
		} else if m.TransferId != tm.incoming.id {
			return ErrConcurrentTransfer
		}

		ack, err := tm.incoming.acceptSegment(*m)
		if err != nil {
			return err
		}
		tm.msgOut <- &ack

		if tm.incoming.isFinished() {
			b, err := tm.incoming.toBundle()
			tm.incoming = nil
			if err != nil {
				return err
			}
			tm.bundlesIn <- b
		}

	case *DataAcknowledgementMessage, *TransferRefusalMessage:
		// Only meaningful while sendBundle's ack-wait loop is running; it
		// reads msgIn directly in that state, so these only reach here as a
		// stray ack/refusal with no outbound transfer in flight, harmless to
		// ignore.

	default:
		return fmt.Errorf("%w: unexpected message %T in established session", ErrMalformedMessage, msg)
	}

	return nil
}

// Send queues a bundle for the single outbound transfer slot and returns a
// channel its outcome is reported on exactly once: nil for a completed
// transfer, a wrapped ErrTransferRefused for a peer XFER_REFUSE, or another
// error if the session itself failed first.
func (tm *transferManager) Send(b bpv7.Bundle) <-chan error {
	done := make(chan error, 1)
	tm.sendQueue <- sendRequest{bundle: b, done: done}
	return done
}

// Exchange returns the channel of fully reassembled inbound bundles and the
// channel on which a fatal transfer error is reported.
func (tm *transferManager) Exchange() (<-chan bpv7.Bundle, <-chan error) {
	return tm.bundlesIn, tm.errChan
}

// Close stops the manager's pump goroutine.
func (tm *transferManager) Close() error {
	close(tm.closeChan)
	return nil
}
