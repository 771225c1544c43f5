// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"bufio"
	"errors"
	"io"
	"sync/atomic"
)

// messageSwitch reads and writes Messages between an io.Reader/io.Writer
// pair and a pair of channels, so the session state machine never touches
// the connection directly.
type messageSwitch struct {
	in  io.Reader
	out io.Writer

	inChan  chan Message
	outChan chan Message
	errChan chan error

	finished uint32
}

// newMessageSwitch starts reader and writer goroutines over in/out.
func newMessageSwitch(in io.Reader, out io.Writer) *messageSwitch {
	ms := &messageSwitch{
		in:  in,
		out: out,

		inChan:  make(chan Message, 32),
		outChan: make(chan Message, 32),
		errChan: make(chan error),
	}

	go ms.handleIn()
	go ms.handleOut()

	return ms
}

func (ms *messageSwitch) handleIn() {
	r := bufio.NewReader(ms.in)

	for {
		if atomic.LoadUint32(&ms.finished) != 0 {
			return
		}

		msg, err := ReadMessage(r)
		if err != nil {
			if atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
				ms.errChan <- err
			}
			return
		}

		ms.inChan <- msg
	}
}

func (ms *messageSwitch) handleOut() {
	w := bufio.NewWriter(ms.out)

	for msg := range ms.outChan {
		if atomic.LoadUint32(&ms.finished) != 0 {
			return
		}

		if err := msg.Marshal(w); err != nil {
			if atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
				ms.errChan <- err
			}
			return
		}
		if err := w.Flush(); err != nil {
			if atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
				ms.errChan <- err
			}
			return
		}
	}
}

// close marks this messageSwitch as finished. Safe to call once.
func (ms *messageSwitch) close() error {
	if !atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
		return errors.New("message switch already finished")
	}
	return nil
}

// exchange returns the channels used to read and write Messages.
func (ms *messageSwitch) exchange() (incoming <-chan Message, outgoing chan<- Message, errs <-chan error) {
	return ms.inChan, ms.outChan, ms.errChan
}
