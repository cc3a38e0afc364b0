// Package settings defines the namespaced settings-store collaborator
// and a BadgerDB-backed implementation.
package settings

import (
	"errors"

	"github.com/badgelink/badgelink/internal/wire"
)

// ErrNotFound is returned by Read and Delete when namespace/key is
// unknown.
var ErrNotFound = errors.New("settings: key not found")

// Entry identifies one stored key and the type tag its value carries.
type Entry struct {
	Namespace string
	Key       string
	Type      wire.ValueType
}

// Store is the narrow contract the settings handlers call against:
// typed get/set, entry iteration, erase by key.
type Store interface {
	Read(namespace, key string) (wire.Value, error)
	Write(namespace, key string, value wire.Value) error
	Delete(namespace, key string) error
	// List yields entries in a stable order starting at offset,
	// optionally filtered to one namespace, and reports the total
	// matching count regardless of how many are returned.
	List(namespace string, offset, limit uint32) (entries []Entry, total uint32, err error)
}
