// Package appstore defines the application-image store collaborator
// and a BadgerDB-backed implementation.
package appstore

import "errors"

// ErrNotFound is returned by Open and Delete when the slug is unknown.
var ErrNotFound = errors.New("appstore: slug not found")

// ErrNoSpace is returned by Create when the declared size would exceed
// the configured quota.
var ErrNoSpace = errors.New("appstore: insufficient free space")

// ErrExists is returned by Create when the slug is already present.
var ErrExists = errors.New("appstore: slug already exists")

// Entry describes one stored application image's metadata.
type Entry struct {
	Slug    string
	Title   string
	Version uint32
	Size    uint32
}

// Handle identifies an open image for the duration of a transfer or a
// read/write/erase call.
type Handle interface{}

// Store is the narrow contract the session engine's handlers call
// against: exists, open, delete, create, erase, write, read,
// entry_info, next_entry, total_bytes, free_bytes, boot_select.
type Store interface {
	Exists(slug string) (bool, error)
	Open(slug string) (Handle, error)
	Delete(slug string) error
	Create(slug, title string, version, size uint32) (Handle, error)
	Erase(h Handle, offset, length uint32) error
	Write(h Handle, offset uint32, buf []byte) error
	Read(h Handle, offset uint32, buf []byte) (int, error)
	EntryInfo(h Handle) (Entry, error)
	// NextEntry walks the store in a stable order. A nil prev starts the
	// walk; a nil return ends it.
	NextEntry(prev Handle) (Handle, error)
	TotalBytes() (uint64, error)
	FreeBytes() (uint64, error)
	// BootSelect marks slug as the image to launch with the given
	// argument. It reports whether the slug exists and is bootable.
	BootSelect(h Handle, arg []byte) (bool, error)
}
