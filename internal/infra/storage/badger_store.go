// Package storage persists the resource ledger in Badger. Records are
// JSON under prefixed keys; every write is committed immediately. The
// only multi-row transaction is TeardownCommit.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/qudata/control/internal/domain"
	"github.com/qudata/control/internal/impls"
)

const (
	boundaryPrefix  = "boundary:"
	networkPrefix   = "network:"
	instancePrefix  = "instance:"
	actionLogPrefix = "actionlog:"
)

type BadgerLedger struct {
	db *badger.DB
}

func NewBadgerLedger(path string) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger at %s: %w", path, err)
	}
	return &BadgerLedger{db: db}, nil
}

func (l *BadgerLedger) Close() error {
	return l.db.Close()
}

func boundaryKey(userID string) []byte { return []byte(boundaryPrefix + userID) }
func networkKey(userID string) []byte  { return []byte(networkPrefix + userID) }
func instanceKey(localID string) []byte {
	return []byte(instancePrefix + localID)
}

func actionLogKey(localID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", actionLogPrefix, localID, seq))
}

func (l *BadgerLedger) Boundary(_ context.Context, userID string) (*domain.TenantBoundary, error) {
	return get[domain.TenantBoundary](l.db, boundaryKey(userID))
}

func (l *BadgerLedger) BoundaryByName(_ context.Context, name string) (*domain.TenantBoundary, error) {
	var out *domain.TenantBoundary
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(boundaryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var b domain.TenantBoundary
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &b)
			}); err != nil {
				return err
			}
			if b.Name == name {
				out = &b
				return nil
			}
		}
		return impls.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *BadgerLedger) PutBoundary(_ context.Context, b *domain.TenantBoundary) error {
	return put(l.db, boundaryKey(b.UserID), b)
}

func (l *BadgerLedger) DeleteBoundary(_ context.Context, userID string) error {
	return del(l.db, boundaryKey(userID))
}

func (l *BadgerLedger) Network(_ context.Context, userID string) (*domain.NetworkResource, error) {
	return get[domain.NetworkResource](l.db, networkKey(userID))
}

func (l *BadgerLedger) PutNetwork(_ context.Context, n *domain.NetworkResource) error {
	return put(l.db, networkKey(n.UserID), n)
}

func (l *BadgerLedger) DeleteNetwork(_ context.Context, userID string) error {
	return del(l.db, networkKey(userID))
}

func (l *BadgerLedger) Instance(_ context.Context, localID string) (*domain.Instance, error) {
	return get[domain.Instance](l.db, instanceKey(localID))
}

func (l *BadgerLedger) PutInstance(_ context.Context, inst *domain.Instance) error {
	inst.UpdatedAt = time.Now().UTC()
	return put(l.db, instanceKey(inst.LocalID), inst)
}

func (l *BadgerLedger) DeleteInstance(_ context.Context, localID string) error {
	return del(l.db, instanceKey(localID))
}

func (l *BadgerLedger) InstancesByUser(_ context.Context, userID string) ([]domain.Instance, error) {
	var out []domain.Instance
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(instancePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var inst domain.Instance
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &inst)
			}); err != nil {
				return err
			}
			if inst.UserID == userID {
				out = append(out, inst)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *BadgerLedger) AppendActionLog(_ context.Context, entry *domain.ActionLogEntry) error {
	return l.db.Update(func(txn *badger.Txn) error {
		seq, err := nextLogSeq(txn, entry.LocalID)
		if err != nil {
			return err
		}
		entry.Seq = seq
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(actionLogKey(entry.LocalID, seq), data)
	})
}

func (l *BadgerLedger) ActionLog(_ context.Context, localID string) ([]domain.ActionLogEntry, error) {
	var out []domain.ActionLogEntry
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(actionLogPrefix + localID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry domain.ActionLogEntry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &entry)
			}); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TeardownCommit removes every local row owned by userID and writes the
// audit entries in a single transaction, so a failed teardown leaves the
// ledger untouched.
func (l *BadgerLedger) TeardownCommit(_ context.Context, userID string, audit []domain.ActionLogEntry) error {
	return l.db.Update(func(txn *badger.Txn) error {
		for i := range audit {
			entry := audit[i]
			seq, err := nextLogSeq(txn, entry.LocalID)
			if err != nil {
				return err
			}
			entry.Seq = seq
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = time.Now().UTC()
			}
			data, err := json.Marshal(&entry)
			if err != nil {
				return err
			}
			if err := txn.Set(actionLogKey(entry.LocalID, seq), data); err != nil {
				return err
			}
		}

		// Instance rows go; their log rows stay as the audit trail.
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(instancePrefix)
		var instanceIDs []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var inst domain.Instance
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &inst)
			}); err != nil {
				it.Close()
				return err
			}
			if inst.UserID == userID {
				instanceIDs = append(instanceIDs, inst.LocalID)
			}
		}
		it.Close()

		for _, id := range instanceIDs {
			if err := txn.Delete(instanceKey(id)); err != nil {
				return err
			}
		}
		if err := txn.Delete(networkKey(userID)); err != nil {
			return err
		}
		return txn.Delete(boundaryKey(userID))
	})
}

func nextLogSeq(txn *badger.Txn, localID string) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(actionLogPrefix + localID + ":")
	// Seek past the last entry for this instance; 0xFF sorts after any
	// zero-padded sequence digit.
	it.Seek(append(append([]byte{}, prefix...), 0xFF))
	if it.ValidForPrefix(prefix) {
		var entry domain.ActionLogEntry
		if err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &entry)
		}); err != nil {
			return 0, err
		}
		return entry.Seq + 1, nil
	}
	return 1, nil
}

func get[T any](db *badger.DB, key []byte) (*T, error) {
	var out T
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return impls.ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func put(db *badger.DB, key []byte, v any) error {
	return db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func del(db *badger.DB, key []byte) error {
	return db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
