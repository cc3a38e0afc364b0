package fsstore

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// ErrNotFound mirrors POSIX ENOENT.
var ErrNotFound = errors.New("fsstore: not found")

// ErrNotDir mirrors POSIX ENOTDIR. The handler layer, not this store,
// decides how to map it onto a wire status code.
var ErrNotDir = errors.New("fsstore: not a directory")

// ErrIsDir mirrors POSIX EISDIR.
var ErrIsDir = errors.New("fsstore: is a directory")

// ErrNotEmpty mirrors POSIX ENOTEMPTY.
var ErrNotEmpty = errors.New("fsstore: directory not empty")

// ErrExists mirrors POSIX EEXIST.
var ErrExists = errors.New("fsstore: already exists")

// OSStore roots every path under a single directory on the host
// filesystem, the way a POSIX-like embedded filesystem driver exposes
// one mounted volume.
type OSStore struct {
	root   string
	logger *slog.Logger
}

func NewOSStore(root string, logger *slog.Logger) *OSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &OSStore{root: filepath.Clean(root), logger: logger.With("component", "fsstore")}
}

// resolve joins path under root. Cleaning path as an absolute path
// first collapses any ".." so the result stays under root; the prefix
// check rejects anything that still would not.
func (s *OSStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	full := filepath.Join(s.root, cleaned)
	if full != s.root && !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", ErrNotFound
	}
	return full, nil
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrExist):
		return ErrExists
	case errors.Is(err, syscall.ENOTDIR):
		return ErrNotDir
	case errors.Is(err, syscall.ENOTEMPTY):
		return ErrNotEmpty
	default:
		return err
	}
}

func (s *OSStore) List(path string, offset, limit uint32) ([]Entry, uint32, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, 0, err
	}
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, 0, translateErr(err)
	}
	all := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		// os.ReadDir never yields "." or "..", so no extra filtering
		// is needed here.
		info, err := de.Info()
		if err != nil {
			continue
		}
		var size uint32
		if !de.IsDir() {
			size = uint32(info.Size())
		}
		all = append(all, Entry{Name: de.Name(), IsDir: de.IsDir(), Size: size})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	total := uint32(len(all))
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *OSStore) Stat(path string) (Entry, error) {
	full, err := s.resolve(path)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return Entry{}, translateErr(err)
	}
	var size uint32
	if !info.IsDir() {
		size = uint32(info.Size())
	}
	return Entry{Name: info.Name(), IsDir: info.IsDir(), Size: size}, nil
}

func (s *OSStore) Mkdir(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	return translateErr(os.Mkdir(full, 0o777))
}

func (s *OSStore) Rmdir(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(full)
	if err != nil {
		return translateErr(err)
	}
	if !info.IsDir() {
		return ErrNotDir
	}
	if err := os.Remove(full); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *OSStore) Unlink(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	info, statErr := os.Stat(full)
	if statErr == nil && info.IsDir() {
		return ErrIsDir
	}
	return translateErr(os.Remove(full))
}

func (s *OSStore) Open(path string, write bool) (File, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if write {
		f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
		if err != nil {
			return nil, translateErr(err)
		}
		return f, nil
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, translateErr(err)
	}
	return f, nil
}
