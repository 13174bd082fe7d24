/* Copyright 2024 the holochain-go authors
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store persists an instance's action log in BoltDB.
//
// The log is the durable form of the audit trail: restoring an
// initial State and replaying the log reconstructs an equivalent
// State (see core.Replay).
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"time"

	"github.com/dynaput247/holochain/core"

	bolt "go.etcd.io/bbolt"
)

var actionsBucket = []byte("actions")

// Store records consumed actions.  Implements core.Recorder.
type Store struct {
	Debug bool

	filename string
	db       *bolt.DB
}

// NewStore makes a Store for the given file.  Call Open before use.
func NewStore(filename string) (*Store, error) {
	return &Store{
		filename: filename,
	}, nil
}

// Open opens the underlying BoltDB and ensures the log bucket
// exists.
func (s *Store) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db

	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(actionsBucket)
		return err
	})
}

// Close closes the underlying BoltDB.
func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) logf(format string, args ...interface{}) {
	if s == nil {
		return
	}
	if s.Debug {
		log.Printf("BoltDB "+format, args...)
	}
}

// RecordAction appends one consumed action to the log.
func (s *Store) RecordAction(aw *core.ActionWrapper) error {
	if s == nil {
		return nil
	}
	js, err := json.Marshal(aw)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(actionsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		s.logf("RecordAction %d %s", seq, aw.ID)
		return b.Put(key, js)
	})
}

// Actions reads the whole log in consumption order.
func (s *Store) Actions(ctx context.Context) ([]*core.ActionWrapper, error) {
	if s == nil {
		return nil, nil
	}
	acc := make([]*core.ActionWrapper, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(actionsBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var aw core.ActionWrapper
			if err := json.Unmarshal(v, &aw); err != nil {
				return err
			}
			acc = append(acc, &aw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logf("Actions read %d", len(acc))
	return acc, nil
}

// Replay folds the stored log over a fresh initial State.
func (s *Store) Replay(ctx context.Context) (*core.State, error) {
	log, err := s.Actions(ctx)
	if err != nil {
		return nil, err
	}
	return core.Replay(core.NewState(), log)
}
