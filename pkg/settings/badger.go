package settings

import (
	"bytes"
	"errors"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/badgelink/badgelink/internal/wire"
)

const nsPrefix = "ns:"

func entryKey(namespace, key string) []byte {
	return []byte(nsPrefix + namespace + ":" + key)
}

// BadgerStore is a BadgerDB-backed Store. Each entry is one key,
// `ns:<namespace>:<key>`, whose value is a type tag followed by the
// same typed encoding wire.Value uses on the wire, so a stored value
// is self-describing without a separate schema lookup.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger.With("component", "settings")}
}

func (s *BadgerStore) Read(namespace, key string) (wire.Value, error) {
	var v wire.Value
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(namespace, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := wire.DecodeValue(val)
			if err != nil {
				return err
			}
			v = decoded
			return nil
		})
	})
	return v, err
}

func (s *BadgerStore) Write(namespace, key string, value wire.Value) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(namespace, key), wire.EncodeValue(value))
	})
}

func (s *BadgerStore) Delete(namespace, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(entryKey(namespace, key)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(entryKey(namespace, key))
	})
}

// List walks ns:<namespace>: (or ns: for every namespace when
// namespace is empty) in key order, returning up to limit entries
// starting at offset and the total number of matching entries.
func (s *BadgerStore) List(namespace string, offset, limit uint32) ([]Entry, uint32, error) {
	prefix := []byte(nsPrefix)
	if namespace != "" {
		prefix = []byte(nsPrefix + namespace + ":")
	}

	var entries []Entry
	var total uint32
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		idx := uint32(0)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ns, key, ok := splitEntryKey(it.Item().KeyCopy(nil))
			if !ok {
				continue
			}
			total++
			if idx >= offset && uint32(len(entries)) < limit {
				var typ wire.ValueType
				if err := it.Item().Value(func(val []byte) error {
					if len(val) > 0 {
						typ = wire.ValueType(val[0])
					}
					return nil
				}); err != nil {
					return err
				}
				entries = append(entries, Entry{Namespace: ns, Key: key, Type: typ})
			}
			idx++
		}
		return nil
	})
	return entries, total, err
}

func splitEntryKey(key []byte) (namespace, name string, ok bool) {
	rest := bytes.TrimPrefix(key, []byte(nsPrefix))
	if len(rest) == len(key) {
		return "", "", false
	}
	i := bytes.IndexByte(rest, ':')
	if i < 0 {
		return "", "", false
	}
	return string(rest[:i]), string(rest[i+1:]), true
}
