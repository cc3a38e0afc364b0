// Package transfer implements the upload/download state machine
// shared by the app-store and filesystem handlers. It owns the single
// transfer descriptor for the lifetime of the session: Engine itself
// is the only place a descriptor is created or destroyed, so at most
// one transfer is ever in flight.
package transfer

import (
	"errors"
	"hash/crc32"
	"io"
	"log/slog"

	"github.com/badgelink/badgelink/pkg/appstore"
	"github.com/badgelink/badgelink/pkg/fsstore"
)

// ChunkCapacity bounds the payload of a single download chunk returned
// by Continue, and sizes the buffer used for CRC re-reads. Upload
// chunks are not checked against it; only the packet codec's
// MaxBlobLen limits their size.
const ChunkCapacity = 512

// Kind discriminates which backend a transfer targets.
type Kind uint8

const (
	KindNone Kind = iota
	KindAppStore
	KindFs
)

// Direction is Upload (host→device) or Download (device→host).
type Direction uint8

const (
	DirUpload Direction = iota
	DirDownload
)

// State is the transfer engine's current mode.
type State uint8

const (
	StateIdle State = iota
	StateUploading
	StateDownloading
)

// descriptor is a sum-type-shaped record: kind and direction never
// diverge from the backend resource actually held, because only
// Engine's methods mutate it.
type descriptor struct {
	kind          Kind
	direction     Direction
	position      uint32
	size          uint32
	expectedCRC32 uint32

	appHandle appstore.Handle
	fsFile    fsstore.File
	fsPath    string // remembered so an aborted upload can unlink it
}

// Engine drives the Idle/Uploading/Downloading state machine over
// exactly one descriptor at a time.
type Engine struct {
	state State
	desc  descriptor

	appstore appstore.Store
	fsstore  fsstore.Store
	logger   *slog.Logger
}

func NewEngine(appStore appstore.Store, fsStore fsstore.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{appstore: appStore, fsstore: fsStore, logger: logger.With("component", "transfer")}
}

// Active reports whether a transfer is in progress, and if so its
// kind and direction.
func (e *Engine) Active() (active bool, kind Kind, direction Direction) {
	return e.state != StateIdle, e.desc.kind, e.desc.direction
}

func (e *Engine) reset() {
	e.state = StateIdle
	e.desc = descriptor{}
}

// StartAppStoreUpload transitions Idle → Uploading for an app-store
// image.
func (e *Engine) StartAppStoreUpload(slug, title string, version, size, expectedCRC32 uint32) error {
	h, err := e.appstore.Create(slug, title, version, size)
	if err != nil {
		return err
	}
	if err := e.appstore.Erase(h, 0, pageAlign(size)); err != nil {
		return err
	}
	e.desc = descriptor{
		kind: KindAppStore, direction: DirUpload,
		size: size, expectedCRC32: expectedCRC32, appHandle: h,
	}
	e.state = StateUploading
	return nil
}

// StartFsUpload transitions Idle → Uploading for a filesystem path.
func (e *Engine) StartFsUpload(path string, size, expectedCRC32 uint32) error {
	f, err := e.fsstore.Open(path, true)
	if err != nil {
		return err
	}
	e.desc = descriptor{
		kind: KindFs, direction: DirUpload,
		size: size, expectedCRC32: expectedCRC32, fsFile: f, fsPath: path,
	}
	e.state = StateUploading
	return nil
}

// StartAppStoreDownload transitions Idle → Downloading, computing the
// whole-file CRC up front.
func (e *Engine) StartAppStoreDownload(slug string) (size uint32, crc uint32, err error) {
	h, err := e.appstore.Open(slug)
	if err != nil {
		return 0, 0, err
	}
	entry, err := e.appstore.EntryInfo(h)
	if err != nil {
		return 0, 0, err
	}
	crc, err = CRC32AppStore(e.appstore, h, entry.Size)
	if err != nil {
		return 0, 0, err
	}
	e.desc = descriptor{
		kind: KindAppStore, direction: DirDownload,
		size: entry.Size, expectedCRC32: crc, appHandle: h,
	}
	e.state = StateDownloading
	return entry.Size, crc, nil
}

// StartFsDownload transitions Idle → Downloading for a filesystem
// path, computing the CRC by a streaming read-then-rewind.
func (e *Engine) StartFsDownload(path string) (size uint32, crc uint32, err error) {
	f, err := e.fsstore.Open(path, false)
	if err != nil {
		return 0, 0, err
	}
	sum := crc32.NewIEEE()
	n, err := io.Copy(sum, f)
	if err != nil {
		f.Close()
		return 0, 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return 0, 0, err
	}
	e.desc = descriptor{
		kind: KindFs, direction: DirDownload,
		size: uint32(n), expectedCRC32: sum.Sum32(), fsFile: f, fsPath: path,
	}
	e.state = StateDownloading
	return uint32(n), sum.Sum32(), nil
}

// ErrIllegalState is returned whenever a caller's request violates
// the transfer engine's protocol-state invariants.
var ErrIllegalState = errors.New("transfer: illegal protocol state")

// HandleUploadChunk writes the next chunk of an in-progress upload,
// enforcing that chunk.position must equal the descriptor's current
// position and must not overrun the declared size.
func (e *Engine) HandleUploadChunk(position uint32, data []byte) error {
	if e.state != StateUploading {
		return ErrIllegalState
	}
	if position != e.desc.position || uint64(position)+uint64(len(data)) > uint64(e.desc.size) {
		e.abortUpload()
		return ErrIllegalState
	}
	var err error
	switch e.desc.kind {
	case KindAppStore:
		err = e.appstore.Write(e.desc.appHandle, position, data)
	case KindFs:
		_, err = e.desc.fsFile.Seek(int64(position), io.SeekStart)
		if err == nil {
			_, err = e.desc.fsFile.Write(data)
		}
	}
	if err != nil {
		e.abortUpload()
		return err
	}
	e.desc.position += uint32(len(data))
	return nil
}

// FinishResult reports the outcome of an XferFinish so the caller can
// pick the right status code without reaching back into the engine.
type FinishResult struct {
	OK            bool
	CRCMismatch   bool
	IllegalFinish bool // position != size
}

// Finish implements the Uploading/XferCtrl-Finish and
// Downloading/XferCtrl-Finish rows.
func (e *Engine) Finish() (FinishResult, error) {
	switch e.state {
	case StateUploading:
		return e.finishUpload()
	case StateDownloading:
		return e.finishDownload()
	default:
		return FinishResult{}, ErrIllegalState
	}
}

func (e *Engine) finishUpload() (FinishResult, error) {
	if e.desc.position != e.desc.size {
		e.abortUpload()
		return FinishResult{IllegalFinish: true}, nil
	}
	var actual uint32
	var err error
	switch e.desc.kind {
	case KindAppStore:
		actual, err = CRC32AppStore(e.appstore, e.desc.appHandle, e.desc.size)
	case KindFs:
		actual, err = crc32FsFile(e.desc.fsFile)
	}
	if err != nil {
		e.abortUpload()
		return FinishResult{}, err
	}
	if actual != e.desc.expectedCRC32 {
		e.abortUpload()
		return FinishResult{CRCMismatch: true}, nil
	}
	if e.desc.kind == KindFs {
		e.desc.fsFile.Close()
	}
	e.reset()
	return FinishResult{OK: true}, nil
}

func (e *Engine) finishDownload() (FinishResult, error) {
	if e.desc.position != e.desc.size {
		e.abortDownload()
		return FinishResult{IllegalFinish: true}, nil
	}
	e.abortDownload() // closes cleanly; same cleanup path as abort
	return FinishResult{OK: true}, nil
}

// Continue implements the Downloading/XferCtrl-Continue row: read up
// to ChunkCapacity bytes and advance position.
func (e *Engine) Continue() (data []byte, err error) {
	if e.state != StateDownloading {
		return nil, ErrIllegalState
	}
	buf := make([]byte, ChunkCapacity)
	var n int
	switch e.desc.kind {
	case KindAppStore:
		n, err = e.appstore.Read(e.desc.appHandle, e.desc.position, buf)
	case KindFs:
		n, err = e.desc.fsFile.Read(buf)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	e.desc.position += uint32(n)
	return buf[:n], nil
}

// Abort implements XferCtrl-Abort for whichever direction is active,
// and the "any other request while a transfer is active" rule, which
// always aborts abnormally. It emits no response itself; the caller
// decides whether an abort produces a status.
func (e *Engine) Abort() {
	switch {
	case e.state == StateUploading:
		e.abortUpload()
	case e.state == StateDownloading:
		e.abortDownload()
	}
}

// abortUpload deletes the partial file or app-store entry.
func (e *Engine) abortUpload() {
	switch e.desc.kind {
	case KindAppStore:
		if e.desc.appHandle != nil {
			if entry, err := e.appstore.EntryInfo(e.desc.appHandle); err == nil {
				_ = e.appstore.Delete(entry.Slug)
			}
		}
	case KindFs:
		if e.desc.fsFile != nil {
			e.desc.fsFile.Close()
			_ = e.fsstore.Unlink(e.desc.fsPath)
		}
	}
	e.reset()
}

// abortDownload only closes the file; downloads never delete backend
// state.
func (e *Engine) abortDownload() {
	if e.desc.kind == KindFs && e.desc.fsFile != nil {
		e.desc.fsFile.Close()
	}
	e.reset()
}

func pageAlign(size uint32) uint32 {
	const page = 4096
	return ((size + page - 1) / page) * page
}

// CRC32AppStore computes a whole-image CRC-32 by re-reading size
// bytes from the backend, so it reflects actual storage contents
// rather than whatever the host last sent.
func CRC32AppStore(store appstore.Store, h appstore.Handle, size uint32) (uint32, error) {
	sum := crc32.NewIEEE()
	buf := make([]byte, ChunkCapacity)
	var off uint32
	for off < size {
		want := size - off
		if uint32(len(buf)) < want {
			want = uint32(len(buf))
		}
		n, err := store.Read(h, off, buf[:want])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
		sum.Write(buf[:n])
		off += uint32(n)
	}
	return sum.Sum32(), nil
}

func crc32FsFile(f fsstore.File) (uint32, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	sum := crc32.NewIEEE()
	if _, err := io.Copy(sum, f); err != nil {
		return 0, err
	}
	return sum.Sum32(), nil
}
