package transfer

import (
	"errors"
	"hash/crc32"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badgelink/badgelink/pkg/appstore"
	"github.com/badgelink/badgelink/pkg/fsstore"
)

// fakeAppStore is a minimal in-memory appstore.Store for exercising the
// transfer engine without BadgerDB.
type fakeAppStore struct {
	images map[string]*fakeImage
}

type fakeImage struct {
	title   string
	version uint32
	size    uint32
	data    []byte
}

func newFakeAppStore() *fakeAppStore {
	return &fakeAppStore{images: map[string]*fakeImage{}}
}

func (f *fakeAppStore) Exists(slug string) (bool, error) {
	_, ok := f.images[slug]
	return ok, nil
}

func (f *fakeAppStore) Open(slug string) (appstore.Handle, error) {
	if _, ok := f.images[slug]; !ok {
		return nil, appstore.ErrNotFound
	}
	return slug, nil
}

func (f *fakeAppStore) Delete(slug string) error {
	if _, ok := f.images[slug]; !ok {
		return appstore.ErrNotFound
	}
	delete(f.images, slug)
	return nil
}

func (f *fakeAppStore) Create(slug, title string, version, size uint32) (appstore.Handle, error) {
	if _, ok := f.images[slug]; ok {
		return nil, appstore.ErrExists
	}
	f.images[slug] = &fakeImage{title: title, version: version, size: size, data: make([]byte, size)}
	return slug, nil
}

func (f *fakeAppStore) Erase(h appstore.Handle, offset, length uint32) error {
	img := f.images[h.(string)]
	for i := offset; i < offset+length && int(i) < len(img.data); i++ {
		img.data[i] = 0xFF
	}
	return nil
}

func (f *fakeAppStore) Write(h appstore.Handle, offset uint32, buf []byte) error {
	img := f.images[h.(string)]
	copy(img.data[offset:], buf)
	return nil
}

func (f *fakeAppStore) Read(h appstore.Handle, offset uint32, buf []byte) (int, error) {
	img := f.images[h.(string)]
	if int(offset) >= len(img.data) {
		return 0, nil
	}
	return copy(buf, img.data[offset:]), nil
}

func (f *fakeAppStore) EntryInfo(h appstore.Handle) (appstore.Entry, error) {
	slug := h.(string)
	img, ok := f.images[slug]
	if !ok {
		return appstore.Entry{}, appstore.ErrNotFound
	}
	return appstore.Entry{Slug: slug, Title: img.title, Version: img.version, Size: img.size}, nil
}

func (f *fakeAppStore) NextEntry(prev appstore.Handle) (appstore.Handle, error) {
	slugs := make([]string, 0, len(f.images))
	for s := range f.images {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	if prev == nil {
		if len(slugs) == 0 {
			return nil, nil
		}
		return slugs[0], nil
	}
	for i, s := range slugs {
		if s == prev.(string) && i+1 < len(slugs) {
			return slugs[i+1], nil
		}
	}
	return nil, nil
}

func (f *fakeAppStore) TotalBytes() (uint64, error) { return 1 << 20, nil }
func (f *fakeAppStore) FreeBytes() (uint64, error)  { return 1 << 19, nil }

func (f *fakeAppStore) BootSelect(h appstore.Handle, arg []byte) (bool, error) {
	_, ok := f.images[h.(string)]
	return ok, nil
}

// fakeFsFile is an in-memory fsstore.File.
type fakeFsFile struct {
	data *[]byte
	pos  int64
}

func (f *fakeFsFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(*f.data)) {
		return 0, io.EOF
	}
	n := copy(p, (*f.data)[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *fakeFsFile) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(*f.data)) {
		grown := make([]byte, end)
		copy(grown, *f.data)
		*f.data = grown
	}
	n := copy((*f.data)[f.pos:], p)
	f.pos += int64(n)
	return n, nil
}

func (f *fakeFsFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = int64(len(*f.data)) + offset
	}
	return f.pos, nil
}

func (f *fakeFsFile) Close() error { return nil }

type fakeFsStore struct {
	files map[string]*[]byte
}

func newFakeFsStore() *fakeFsStore {
	return &fakeFsStore{files: map[string]*[]byte{}}
}

func (f *fakeFsStore) List(path string, offset, limit uint32) ([]fsstore.Entry, uint32, error) {
	return nil, 0, nil
}
func (f *fakeFsStore) Stat(path string) (fsstore.Entry, error) { return fsstore.Entry{}, nil }
func (f *fakeFsStore) Mkdir(path string) error                 { return nil }
func (f *fakeFsStore) Rmdir(path string) error                 { return nil }
func (f *fakeFsStore) Unlink(path string) error {
	if _, ok := f.files[path]; !ok {
		return fsstore.ErrNotFound
	}
	delete(f.files, path)
	return nil
}

func (f *fakeFsStore) Open(path string, write bool) (fsstore.File, error) {
	data, ok := f.files[path]
	if !ok {
		if !write {
			return nil, fsstore.ErrNotFound
		}
		empty := []byte{}
		data = &empty
		f.files[path] = data
	}
	return &fakeFsFile{data: data}, nil
}

func TestAppStoreUploadFinishSuccess(t *testing.T) {
	store := newFakeAppStore()
	eng := NewEngine(store, newFakeFsStore(), nil)

	payload := []byte("hello world payload")
	crc := crc32.ChecksumIEEE(payload)

	require.NoError(t, eng.StartAppStoreUpload("app1", "App One", 1, uint32(len(payload)), crc))
	active, kind, dir := eng.Active()
	assert.True(t, active)
	assert.Equal(t, KindAppStore, kind)
	assert.Equal(t, DirUpload, dir)

	require.NoError(t, eng.HandleUploadChunk(0, payload))

	result, err := eng.Finish()
	require.NoError(t, err)
	assert.True(t, result.OK)

	active, _, _ = eng.Active()
	assert.False(t, active)

	h, err := store.Open("app1")
	require.NoError(t, err)
	got, err := CRC32AppStore(store, h, uint32(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, crc, got)
}

func TestAppStoreUploadCRCMismatchAborts(t *testing.T) {
	store := newFakeAppStore()
	eng := NewEngine(store, newFakeFsStore(), nil)

	payload := []byte("some bytes")
	require.NoError(t, eng.StartAppStoreUpload("app1", "App One", 1, uint32(len(payload)), 0xFFFFFFFF))
	require.NoError(t, eng.HandleUploadChunk(0, payload))

	result, err := eng.Finish()
	require.NoError(t, err)
	assert.True(t, result.CRCMismatch)

	active, _, _ := eng.Active()
	assert.False(t, active)
	_, err = store.Open("app1")
	assert.ErrorIs(t, err, appstore.ErrNotFound, "a failed upload must not leave a partial image behind")
}

func TestHandleUploadChunkOutOfPositionAborts(t *testing.T) {
	store := newFakeAppStore()
	eng := NewEngine(store, newFakeFsStore(), nil)

	require.NoError(t, eng.StartAppStoreUpload("app1", "App One", 1, 10, 0))
	err := eng.HandleUploadChunk(5, []byte{1, 2, 3}) // wrong position, expected 0
	assert.ErrorIs(t, err, ErrIllegalState)

	active, _, _ := eng.Active()
	assert.False(t, active, "an out-of-position chunk must abort the transfer")
}

func TestAppStoreDownloadReconstructsPayload(t *testing.T) {
	store := newFakeAppStore()
	payload := []byte("downloadable content")
	h, err := store.Create("app1", "App One", 1, uint32(len(payload)))
	require.NoError(t, err)
	require.NoError(t, store.Write(h, 0, payload))

	eng := NewEngine(store, newFakeFsStore(), nil)
	size, crc, err := eng.StartAppStoreDownload("app1")
	require.NoError(t, err)
	assert.Equal(t, uint32(len(payload)), size)
	assert.Equal(t, crc32.ChecksumIEEE(payload), crc)

	var got []byte
	for {
		chunk, err := eng.Continue()
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}
		got = append(got, chunk...)
		if uint32(len(got)) >= size {
			break
		}
	}
	assert.Equal(t, payload, got)

	result, err := eng.Finish()
	require.NoError(t, err)
	assert.True(t, result.OK)
}

// failingWriteAppStore wraps fakeAppStore and reports every Write as
// a backend I/O failure, to exercise HandleUploadChunk's raw-error
// path separately from its position/size protocol violations.
type failingWriteAppStore struct {
	*fakeAppStore
}

var errBackendWrite = errors.New("backend write failed")

func (f *failingWriteAppStore) Write(h appstore.Handle, offset uint32, buf []byte) error {
	return errBackendWrite
}

func TestHandleUploadChunkBackendWriteFailureIsNotIllegalState(t *testing.T) {
	store := &failingWriteAppStore{fakeAppStore: newFakeAppStore()}
	eng := NewEngine(store, newFakeFsStore(), nil)

	require.NoError(t, eng.StartAppStoreUpload("app1", "App One", 1, 10, 0))
	err := eng.HandleUploadChunk(0, []byte{1, 2, 3})

	assert.ErrorIs(t, err, errBackendWrite)
	assert.NotErrorIs(t, err, ErrIllegalState, "a backend write failure is not a protocol violation")

	active, _, _ := eng.Active()
	assert.False(t, active, "a failed write still aborts the transfer")
}

func TestAbortMidUploadCleansUpFsFile(t *testing.T) {
	fs := newFakeFsStore()
	eng := NewEngine(newFakeAppStore(), fs, nil)

	require.NoError(t, eng.StartFsUpload("/tmp/partial", 100, 0))
	require.NoError(t, eng.HandleUploadChunk(0, []byte("partial data")))

	eng.Abort()

	active, _, _ := eng.Active()
	assert.False(t, active)
	_, err := fs.Open("/tmp/partial", false)
	assert.ErrorIs(t, err, fsstore.ErrNotFound, "abort must remove the partially uploaded file")
}
