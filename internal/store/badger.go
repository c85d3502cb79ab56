package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ent0n29/chatrelay/internal/message"
)

const (
	presencePrefix = "presence:"
	messagePrefix  = "msg:"
)

type badgerPresence struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// BadgerStore is an embedded store for running the relay without the chat
// service's database. Keys are "presence:{user}" and "msg:{id}".
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadgerStore(db), nil
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) SetPresence(_ context.Context, userID string, online bool, lastSeen time.Time) error {
	raw, err := json.Marshal(badgerPresence{Online: online, LastSeen: lastSeen.UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(presencePrefix+userID), raw)
	})
}

func (s *BadgerStore) LastSeen(_ context.Context, userID string) (time.Time, bool, error) {
	var p badgerPresence
	found, err := s.get([]byte(presencePrefix+userID), &p)
	if err != nil || !found || p.LastSeen.IsZero() {
		return time.Time{}, false, err
	}
	return p.LastSeen, true, nil
}

func (s *BadgerStore) RecordMessage(_ context.Context, m message.Message) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var cur message.Message
		found, err := getTxn(txn, []byte(messagePrefix+m.ID), &cur)
		if err != nil {
			return err
		}
		if found && m.Status.Before(cur.Status) {
			m.Status = cur.Status
		}
		if m.Status == "" {
			m.Status = message.StatusSent
		}
		return setTxn(txn, []byte(messagePrefix+m.ID), m)
	})
}

func (s *BadgerStore) SetMessageStatus(_ context.Context, ids []string, status message.Status) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			var m message.Message
			found, err := getTxn(txn, []byte(messagePrefix+id), &m)
			if err != nil {
				return err
			}
			if !found || !m.Status.Before(status) {
				continue
			}
			m.Status = status
			if err := setTxn(txn, []byte(messagePrefix+id), m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) SetReactions(_ context.Context, messageID string, reactions []message.Reaction) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var m message.Message
		found, err := getTxn(txn, []byte(messagePrefix+messageID), &m)
		if err != nil || !found {
			return err
		}
		m.Reactions = reactions
		return setTxn(txn, []byte(messagePrefix+messageID), m)
	})
}

func (s *BadgerStore) LoadMessages(_ context.Context, ids []string) ([]message.Message, error) {
	out := make([]message.Message, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var m message.Message
			found, err := getTxn(txn, []byte(messagePrefix+id), &m)
			if err != nil {
				return err
			}
			if found {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key []byte, out any) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getTxn(txn, key, out)
		return err
	})
	return found, err
}

func getTxn(txn *badger.Txn, key []byte, out any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setTxn(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}
