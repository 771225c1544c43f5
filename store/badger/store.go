// SPDX-License-Identifier: GPL-3.0-or-later

// Package badger offers a persistent bpa.Store backend on top of
// timshannon/badgerhold, for deployments where bundles must survive a
// process restart. The default bpa.MemoryStore remains in-memory only.
package badger

import (
	"bytes"
	"os"
	"path"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold"

	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
)

const dirBadger = "db"

// persistedBundle is the badgerhold record for one StoredBundle: its CBOR
// encoding plus the bookkeeping fields bpa.StoredBundle itself carries.
type persistedBundle struct {
	ID          string `badgerhold:"key"`
	Data        []byte
	StoredNs    int64
	Destination string `badgerholdIndex:"Destination"`
}

func newPersistedBundle(sb bpa.StoredBundle) (persistedBundle, error) {
	var buf bytes.Buffer
	if err := sb.Bundle.WriteBundle(&buf); err != nil {
		return persistedBundle{}, err
	}

	return persistedBundle{
		ID:          sb.ID.String(),
		Data:        buf.Bytes(),
		StoredNs:    sb.Stored.UnixNano(),
		Destination: sb.Bundle.PrimaryBlock.Destination.String(),
	}, nil
}

func (p persistedBundle) toStoredBundle() (bpa.StoredBundle, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return bpa.StoredBundle{}, err
	}

	bndl, err := bpv7.ParseBundle(bytes.NewReader(p.Data))
	if err != nil {
		return bpa.StoredBundle{}, err
	}

	return bpa.StoredBundle{ID: id, Bundle: bndl, Stored: time.Unix(0, p.StoredNs)}, nil
}

// Store is a bpa.Store backed by an in-memory bpa.MemoryStore mirrored to a
// badgerhold database on every mutation, so every operation's business
// logic (sequencing, reassembly, fragmentation) lives in one place.
type Store struct {
	mem *bpa.MemoryStore
	bh  *badgerhold.Store
}

// NewStore opens or creates a Store rooted at dir, replaying any
// previously persisted bundles into the in-memory index before returning.
func NewStore(dir string, observer bpa.Observer) (*Store, error) {
	badgerDir := path.Join(dir, dirBadger)
	if err := os.MkdirAll(badgerDir, 0700); err != nil {
		return nil, err
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{mem: bpa.NewMemoryStore(observer), bh: bh}

	var persisted []persistedBundle
	if err := bh.Find(&persisted, badgerhold.Where("ID").Ne("")); err != nil {
		_ = bh.Close()
		return nil, err
	}

	restored := make([]bpa.StoredBundle, 0, len(persisted))
	for _, p := range persisted {
		sb, err := p.toStoredBundle()
		if err != nil {
			log.WithError(err).WithField("id", p.ID).Warn("discarding unparsable persisted bundle")
			continue
		}
		restored = append(restored, sb)
	}
	s.mem.Restore(restored)

	return s, nil
}

// Close closes the underlying badgerhold database. The Store must not be
// used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

func (s *Store) persist(sb bpa.StoredBundle) error {
	item, err := newPersistedBundle(sb)
	if err != nil {
		return err
	}

	var existing persistedBundle
	if err := s.bh.Get(item.ID, &existing); err == badgerhold.ErrNotFound {
		return s.bh.Insert(item.ID, item)
	}
	return s.bh.Update(item.ID, item)
}

func (s *Store) unpersist(sb bpa.StoredBundle) error {
	err := s.bh.Delete(sb.ID.String(), persistedBundle{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

// reconcile mirrors the in-memory index to disk after a call that may have
// inserted and/or removed several entries (StoreNew/Store/Fragment), since
// bpa.Store's interface does not report which entries a reassembly or
// fragmentation replaced.
func (s *Store) reconcile() {
	live := s.mem.Snapshot()
	liveIDs := make(map[string]bool, len(live))

	for _, sb := range live {
		liveIDs[sb.ID.String()] = true
		if err := s.persist(sb); err != nil {
			log.WithError(err).WithField("bundle", sb.Bundle.ID().String()).Warn("failed to persist bundle")
		}
	}

	var onDisk []persistedBundle
	if err := s.bh.Find(&onDisk, badgerhold.Where("ID").Ne("")); err != nil {
		log.WithError(err).Warn("failed to list persisted bundles during reconcile")
		return
	}
	for _, p := range onDisk {
		if !liveIDs[p.ID] {
			if err := s.bh.Delete(p.ID, persistedBundle{}); err != nil && err != badgerhold.ErrNotFound {
				log.WithError(err).WithField("id", p.ID).Warn("failed to delete stale persisted bundle")
			}
		}
	}
}

// StoreNew implements bpa.Store.
func (s *Store) StoreNew(bndl bpv7.Bundle, ownNode bpv7.EndpointID) (bpa.StoredBundle, error) {
	sb, err := s.mem.StoreNew(bndl, ownNode)
	if err != nil {
		return bpa.StoredBundle{}, err
	}
	if perr := s.persist(sb); perr != nil {
		log.WithError(perr).WithField("bundle", sb.Bundle.ID().String()).Warn("failed to persist new bundle")
	}
	return sb, nil
}

// Store implements bpa.Store.
func (s *Store) Store(bndl bpv7.Bundle, ownNode bpv7.EndpointID) (bpa.StoredBundle, error) {
	sb, err := s.mem.Store(bndl, ownNode)
	if err != nil {
		return bpa.StoredBundle{}, err
	}
	// Store may have reassembled several fragments into sb and dropped the
	// originals; reconcile rather than persist sb alone.
	s.reconcile()
	return sb, nil
}

// Delete implements bpa.Store.
func (s *Store) Delete(sb bpa.StoredBundle) error {
	if err := s.mem.Delete(sb); err != nil {
		return err
	}
	return s.unpersist(sb)
}

// Fragment implements bpa.Store.
func (s *Store) Fragment(sb bpa.StoredBundle, targetSize int) ([]bpa.StoredBundle, error) {
	frags, err := s.mem.Fragment(sb, targetSize)
	if err != nil {
		return nil, err
	}
	s.reconcile()
	return frags, nil
}

// GetForDestination implements bpa.Store.
func (s *Store) GetForDestination(endpoint bpv7.EndpointID) []bpa.StoredBundle {
	return s.mem.GetForDestination(endpoint)
}

// GetForNode implements bpa.Store.
func (s *Store) GetForNode(node bpv7.EndpointID) []bpa.StoredBundle {
	return s.mem.GetForNode(node)
}
