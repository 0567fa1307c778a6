// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package state implements the persistent operator state store of
// spec.md §4.6: a transactional key-value interface, partitioned by
// operator id, backed by an embedded memory-mapped B-tree (bbolt).
// Writes staged between two Commit(E) markers become durable, and
// visible to a restarted process, only when Commit applies them in a
// single bbolt transaction alongside the checkpoint record.
package state

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/dataflow/internal/types"
	"github.com/cockroachdb/dataflow/internal/util/ident"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var checkpointBucket = []byte("__checkpoint__")

const checkpointKey = "last_epoch"

// operatorBucket derives the bbolt bucket name for an operator's state.
func operatorBucket(id ident.OperatorID) []byte {
	return []byte("op/" + id.String())
}

// Store owns a single bbolt database file shared by every operator in
// one pipeline and the checkpoint record, so that an operator's state
// writes and the epoch's checkpoint record land in the same durable
// transaction (spec.md §4.3, §4.6).
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "state: opening %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "state: initializing checkpoint bucket")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// Operator returns a handle for staging and committing writes to one
// operator's partition of the store.
func (s *Store) Operator(id ident.OperatorID) *OperatorState {
	return &OperatorState{store: s, id: id, staged: make(map[string]*[]byte)}
}

// LastCheckpoint returns the most recently committed Epoch, or
// ok=false if the store has never seen a commit.
func (s *Store) LastCheckpoint() (epoch types.Epoch, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checkpointBucket)
		raw := b.Get([]byte(checkpointKey))
		if raw == nil {
			return nil
		}
		decoded, decErr := decodeEpoch(raw)
		if decErr != nil {
			return decErr
		}
		epoch = decoded
		ok = true
		return nil
	})
	return epoch, ok, err
}

// RecordCheckpoint durably advances the checkpoint record to epoch,
// independent of any operator's staged writes. The sink calls this
// after its own OnCommit acknowledgement succeeds (spec.md §4.3), so
// that the checkpoint always advances even for epochs in which no
// stateful operator had buffered writes to flush.
func (s *Store) RecordCheckpoint(epoch types.Epoch) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checkpointBucket)
		return b.Put([]byte(checkpointKey), encodeEpoch(epoch))
	})
	if err != nil {
		return errors.Wrap(err, "state: recording checkpoint")
	}
	log.WithField("epoch", epoch.ID).Trace("recorded checkpoint")
	return nil
}

// OperatorState is one operator's view of the Store: buffered writes
// accumulate here and are only made durable by Commit.
type OperatorState struct {
	store  *Store
	id     ident.OperatorID
	staged map[string]*[]byte // nil *[]byte entry means "staged delete"
}

// Put buffers a write, visible to subsequent Get/ScanPrefix calls on
// this handle immediately, but not durable until Commit.
func (o *OperatorState) Put(key, value []byte) {
	v := append([]byte(nil), value...)
	o.staged[string(key)] = &v
}

// Delete buffers a delete.
func (o *OperatorState) Delete(key []byte) {
	o.staged[string(key)] = nil
}

// Get returns the value for key, consulting staged writes first, then
// the last-committed durable state.
func (o *OperatorState) Get(key []byte) ([]byte, bool, error) {
	if v, staged := o.staged[string(key)]; staged {
		if v == nil {
			return nil, false, nil
		}
		return *v, true, nil
	}

	var value []byte
	var found bool
	err := o.store.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(operatorBucket(o.id))
		if b == nil {
			return nil
		}
		if raw := b.Get(key); raw != nil {
			value = append([]byte(nil), raw...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Entry is one key/value pair returned by ScanPrefix.
type Entry struct {
	Key   []byte
	Value []byte
}

// ScanPrefix returns every entry whose key starts with prefix, merging
// staged writes over the durable snapshot. Results are sorted by key.
func (o *OperatorState) ScanPrefix(prefix []byte) ([]Entry, error) {
	merged := make(map[string][]byte)

	err := o.store.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(operatorBucket(o.id))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			merged[string(k)] = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for k, v := range o.staged {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}

	out := make([]Entry, 0, len(merged))
	for k, v := range merged {
		out = append(out, Entry{Key: []byte(k), Value: v})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && bytes.Compare(out[j].Key, out[j-1].Key) < 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// Commit atomically applies every staged write, alongside the
// checkpoint's epoch record, in a single bbolt transaction: the write
// set becomes durable and visible if and only if the whole transaction
// succeeds (spec.md §4.3's "atomically visible after E" contract).
func (o *OperatorState) Commit(epoch types.Epoch) error {
	if len(o.staged) == 0 {
		return nil
	}
	err := o.store.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(operatorBucket(o.id))
		if err != nil {
			return err
		}
		for k, v := range o.staged {
			if v == nil {
				if err := b.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(k), *v); err != nil {
				return err
			}
		}

		cb := tx.Bucket(checkpointBucket)
		return cb.Put([]byte(checkpointKey), encodeEpoch(epoch))
	})
	if err != nil {
		return &types.StatePersistenceError{Operator: o.id, Cause: err}
	}
	log.WithFields(log.Fields{"operator": o.id, "epoch": epoch.ID, "writes": len(o.staged)}).Trace("committed operator state")
	o.staged = make(map[string]*[]byte)
	return nil
}

// encodeEpoch serializes an Epoch as: id (8 bytes BE), count (4 bytes
// BE), then count repetitions of { node id length-prefixed string,
// Txid, SeqInTx } all in big-endian fixed widths, matching the
// endian-stable convention of spec.md §4.6.
func encodeEpoch(e types.Epoch) []byte {
	buf := make([]byte, 0, 12+32*len(e.SourcePositions))
	var hdr [12]byte
	binary.BigEndian.PutUint64(hdr[0:8], e.ID)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(e.SourcePositions)))
	buf = append(buf, hdr[:]...)
	for node, pos := range e.SourcePositions {
		raw := node.Raw()
		var nameLen [4]byte
		binary.BigEndian.PutUint32(nameLen[:], uint32(len(raw)))
		buf = append(buf, nameLen[:]...)
		buf = append(buf, raw...)
		var posBuf [16]byte
		binary.BigEndian.PutUint64(posBuf[0:8], pos.Txid)
		binary.BigEndian.PutUint64(posBuf[8:16], pos.SeqInTx)
		buf = append(buf, posBuf[:]...)
	}
	return buf
}

func decodeEpoch(buf []byte) (types.Epoch, error) {
	if len(buf) < 12 {
		return types.Epoch{}, errors.New("state: truncated epoch record")
	}
	e := types.Epoch{
		ID:              binary.BigEndian.Uint64(buf[0:8]),
		SourcePositions: make(map[ident.NodeID]types.OpIdentifier),
	}
	count := binary.BigEndian.Uint32(buf[8:12])
	off := 12
	for i := uint32(0); i < count; i++ {
		if off+4 > len(buf) {
			return types.Epoch{}, errors.New("state: truncated epoch node name length")
		}
		nameLen := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		if off+nameLen+16 > len(buf) {
			return types.Epoch{}, errors.New("state: truncated epoch node entry")
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		txid := binary.BigEndian.Uint64(buf[off : off+8])
		seq := binary.BigEndian.Uint64(buf[off+8 : off+16])
		off += 16
		e.SourcePositions[ident.NewNodeID(name)] = types.OpIdentifier{Txid: txid, SeqInTx: seq}
	}
	return e, nil
}
