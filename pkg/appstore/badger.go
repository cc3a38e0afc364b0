package appstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// flashPageSize is the page-alignment granularity used by Erase/Create,
// mirroring an embedded flash's erase-page size.
const flashPageSize = 4096

const (
	imgPrefix  = "img:"
	blobPrefix = "blob:"
)

func imgKey(slug string) []byte  { return []byte(imgPrefix + slug) }
func blobKey(slug string) []byte { return []byte(blobPrefix + slug) }

type slugHandle string

// BadgerStore is a BadgerDB-backed Store. One key holds an image's
// metadata (title, version, size), a second holds its raw bytes, so a
// metadata lookup never has to pull the blob along with it.
type BadgerStore struct {
	db     *badger.DB
	quota  uint64
	logger *slog.Logger
}

// NewBadgerStore opens (or reuses) db as the backing store, capping
// total stored image bytes at quota.
func NewBadgerStore(db *badger.DB, quota uint64, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, quota: quota, logger: logger.With("component", "appstore")}
}

func encodeEntry(e Entry) []byte {
	buf := new(bytes.Buffer)
	writeString(buf, e.Slug)
	writeString(buf, e.Title)
	var n [8]byte
	binary.LittleEndian.PutUint32(n[0:4], e.Version)
	binary.LittleEndian.PutUint32(n[4:8], e.Size)
	buf.Write(n[:])
	return buf.Bytes()
}

func decodeEntry(b []byte) (Entry, error) {
	slug, rest, err := readString(b)
	if err != nil {
		return Entry{}, err
	}
	title, rest, err := readString(rest)
	if err != nil {
		return Entry{}, err
	}
	if len(rest) < 8 {
		return Entry{}, errors.New("appstore: truncated entry record")
	}
	return Entry{
		Slug:    slug,
		Title:   title,
		Version: binary.LittleEndian.Uint32(rest[0:4]),
		Size:    binary.LittleEndian.Uint32(rest[4:8]),
	}, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.LittleEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errors.New("appstore: truncated string length")
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < n {
		return "", nil, errors.New("appstore: truncated string data")
	}
	return string(b[:n]), b[n:], nil
}

func (s *BadgerStore) Exists(slug string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(imgKey(slug))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (s *BadgerStore) Open(slug string) (Handle, error) {
	ok, err := s.Exists(slug)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return slugHandle(slug), nil
}

func (s *BadgerStore) Delete(slug string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(imgKey(slug)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		if err := txn.Delete(imgKey(slug)); err != nil {
			return err
		}
		return txn.Delete(blobKey(slug))
	})
	return err
}

func (s *BadgerStore) Create(slug, title string, version, size uint32) (Handle, error) {
	aligned := ((uint64(size) + flashPageSize - 1) / flashPageSize) * flashPageSize
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(imgKey(slug)); err == nil {
			return ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		used, err := s.usedLocked(txn)
		if err != nil {
			return err
		}
		if used+aligned > s.quota {
			return ErrNoSpace
		}
		entry := Entry{Slug: slug, Title: title, Version: version, Size: size}
		if err := txn.Set(imgKey(slug), encodeEntry(entry)); err != nil {
			return err
		}
		return txn.Set(blobKey(slug), make([]byte, aligned))
	})
	if err != nil {
		return nil, err
	}
	return slugHandle(slug), nil
}

func (s *BadgerStore) Erase(h Handle, offset, length uint32) error {
	slug := string(h.(slugHandle))
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(slug))
		if err != nil {
			return err
		}
		var blob []byte
		if err := item.Value(func(val []byte) error {
			blob = append(blob, val...)
			return nil
		}); err != nil {
			return err
		}
		end := int(offset) + int(length)
		if end > len(blob) {
			return fmt.Errorf("appstore: erase range exceeds blob size")
		}
		for i := int(offset); i < end; i++ {
			blob[i] = 0xFF
		}
		return txn.Set(blobKey(slug), blob)
	})
}

func (s *BadgerStore) Write(h Handle, offset uint32, buf []byte) error {
	slug := string(h.(slugHandle))
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(slug))
		if err != nil {
			return err
		}
		var blob []byte
		if err := item.Value(func(val []byte) error {
			blob = append(blob, val...)
			return nil
		}); err != nil {
			return err
		}
		end := int(offset) + len(buf)
		if end > len(blob) {
			grown := make([]byte, end)
			copy(grown, blob)
			blob = grown
		}
		copy(blob[offset:end], buf)
		return txn.Set(blobKey(slug), blob)
	})
}

func (s *BadgerStore) Read(h Handle, offset uint32, buf []byte) (int, error) {
	slug := string(h.(slugHandle))
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(slug))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if int(offset) >= len(val) {
				return nil
			}
			n = copy(buf, val[offset:])
			return nil
		})
	})
	return n, err
}

func (s *BadgerStore) EntryInfo(h Handle) (Entry, error) {
	slug := string(h.(slugHandle))
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(imgKey(slug))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			e, err := decodeEntry(val)
			if err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	return entry, err
}

// NextEntry walks slugs in lexical order, which badger's iterator
// already yields for a fixed key prefix.
func (s *BadgerStore) NextEntry(prev Handle) (Handle, error) {
	var next Handle
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(imgPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var after []byte
		if prev != nil {
			after = imgKey(string(prev.(slugHandle)))
		}

		for it.Seek([]byte(imgPrefix)); it.ValidForPrefix([]byte(imgPrefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			if after != nil {
				if bytes.Compare(key, after) <= 0 {
					continue
				}
			}
			slug := string(key[len(imgPrefix):])
			next = slugHandle(slug)
			return nil
		}
		return nil
	})
	return next, err
}

func (s *BadgerStore) TotalBytes() (uint64, error) {
	return s.quota, nil
}

func (s *BadgerStore) FreeBytes() (uint64, error) {
	var used uint64
	err := s.db.View(func(txn *badger.Txn) error {
		u, err := s.usedLocked(txn)
		used = u
		return err
	})
	if err != nil {
		return 0, err
	}
	if used > s.quota {
		return 0, nil
	}
	return s.quota - used, nil
}

func (s *BadgerStore) usedLocked(txn *badger.Txn) (uint64, error) {
	var used uint64
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(blobPrefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek([]byte(blobPrefix)); it.ValidForPrefix([]byte(blobPrefix)); it.Next() {
		used += uint64(it.Item().ValueSize())
	}
	return used, nil
}

// BootSelect only confirms that h names a stored image; it records no
// boot target and ignores arg. The reboot itself is triggered by the
// start-app handler after BootSelect succeeds.
func (s *BadgerStore) BootSelect(h Handle, arg []byte) (bool, error) {
	_, err := s.EntryInfo(h)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
