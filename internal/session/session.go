// Package session implements the BadgeLink session engine: the
// single-threaded, lock-free dispatcher that turns decoded packets
// into responses. It is the one place that mutates the
// expected-sequence counter and the transfer descriptor, mirroring how
// pkg/sdo.SDOServer is the sole owner of its own internal state
// machine.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/badgelink/badgelink/internal/frame"
	"github.com/badgelink/badgelink/internal/metrics"
	"github.com/badgelink/badgelink/internal/transfer"
	"github.com/badgelink/badgelink/internal/wire"
	"github.com/badgelink/badgelink/pkg/appstore"
	"github.com/badgelink/badgelink/pkg/fsstore"
	"github.com/badgelink/badgelink/pkg/settings"
	"github.com/badgelink/badgelink/pkg/transport"
)

// Rebooter requests the device reboot after a start-application
// response has drained. A real build wires this to
// whatever calls the platform's restart syscall; it is itself out of
// scope for the core.
type Rebooter interface {
	Reboot()
}

// Session is the singleton session-engine object: the expected-sequence
// counter and the transfer descriptor (via Engine) live here and
// nowhere else. The receive accumulator belongs to the reassembler Run
// creates; outgoing packets are encoded into fresh buffers.
type Session struct {
	cfg Config

	expectedSeq uint32

	appstore appstore.Store
	settings settings.Store
	fsstore  fsstore.Store
	transfer *transfer.Engine
	out      transport.Duplex
	reboot   Rebooter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Collaborators groups every external dependency the session engine
// calls into.
type Collaborators struct {
	AppStore appstore.Store
	Settings settings.Store
	FsStore  fsstore.Store
	Out      transport.Duplex
	Reboot   Rebooter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func New(cfg Config, c Collaborators) *Session {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		appstore: c.AppStore,
		settings: c.Settings,
		fsstore:  c.FsStore,
		transfer: transfer.NewEngine(c.AppStore, c.FsStore, logger),
		out:      c.Out,
		reboot:   c.Reboot,
		metrics:  c.Metrics,
		logger:   logger.With("component", "session"),
	}
}

// Run is the session task's entire life: dequeue a fragment, feed the
// reassembler, handle whatever whole frames fall out, until ctx is
// cancelled or the queue is closed. It is the only goroutine that ever
// touches session state.
func (s *Session) Run(ctx context.Context, queue *transport.FragmentQueue) {
	reasm := frame.NewReassembler(s.cfg.FrameBufferCapacity, s.logger, func(framed []byte) {
		s.handleFrame(framed)
	})
	for {
		fragment, ok := queue.Dequeue(ctx)
		if !ok {
			return
		}
		reasm.Feed(fragment)
	}
}

func (s *Session) handleFrame(framed []byte) {
	pkt, err := wire.DecodeFrame(framed)
	if err != nil {
		s.metrics.RecordReassemblyDiscard()
		// Besides a short frame and a schema-decode failure, the only
		// discard condition DecodeFrame reports is a CRC mismatch.
		if !errors.Is(err, wire.ErrDecode) && !errors.Is(err, wire.ErrShortFrame) {
			s.metrics.RecordCRCMismatch()
		}
		wire.LogDiscard(s.logger, err)
		return
	}
	s.dispatch(pkt)
}

func (s *Session) send(p wire.Packet) {
	encoded, err := wire.EncodeFrame(p)
	if err != nil {
		s.logger.Error("failed to encode outgoing packet", "error", err)
		return
	}
	if err := s.out.Write(encoded); err != nil {
		s.logger.Error("transport write failed", "error", err)
	}
}

func (s *Session) sendResponse(status wire.StatusCode, payload wire.ResponsePayload) {
	s.send(wire.Packet{
		Kind:     wire.KindResponse,
		Response: wire.Response{Status: status, Payload: payload},
	})
}

func (s *Session) sendStatus(status wire.StatusCode) {
	s.sendResponse(status, nil)
}

// stale implements the modular staleness test:
// (s - expected) mod 2^32 >= 2^31.
func stale(seq, expected uint32) bool {
	return seq-expected >= 1<<31
}

// dispatch implements the request routing rules: sync handling, staleness
// filtering, and transfer-aware redirection of requests.
func (s *Session) dispatch(pkt wire.Packet) {
	switch pkt.Kind {
	case wire.KindSync:
		s.handleSync(pkt.Sync)
		return
	case wire.KindRequest:
		// fall through below
	default:
		s.sendStatus(wire.StatusMalformed)
		return
	}

	req := pkt.Request
	if stale(req.Sequence, s.expectedSeq) {
		s.metrics.RecordStaleDrop()
		return
	}
	s.expectedSeq = req.Sequence + 1

	active, _, direction := s.transfer.Active()
	if active {
		switch req.Tag {
		case wire.TagUploadChunk:
			if direction != transfer.DirUpload {
				s.transfer.Abort()
				s.sendStatus(wire.StatusIllegalState)
				return
			}
			s.handleUploadChunk(req.UploadChunk)
			return
		case wire.TagXferCtrl:
			s.handleXferCtrl(req.XferCtrl)
			return
		default:
			// Any other request while a transfer is active aborts it
			// abnormally with no response for the abort, then falls
			// through to ordinary routing below.
			s.transfer.Abort()
		}
	}

	s.route(req)
}

func (s *Session) handleSync(sync wire.SyncPacket) {
	if !sync.OK {
		s.sendStatus(wire.StatusMalformed)
		return
	}
	s.expectedSeq = sync.Sequence + 1
	s.send(wire.Packet{Kind: wire.KindSync, Sync: sync})
}

func (s *Session) route(req wire.Request) {
	switch req.Tag {
	case wire.TagStartApp:
		s.handleStartApp(req.StartApp)
	case wire.TagNvsAction:
		s.handleNvsAction(req.NvsAction)
	case wire.TagAppStoreAction:
		s.handleAppStoreAction(req.AppStoreAction)
	case wire.TagFsAction:
		s.handleFsAction(req.FsAction)
	case wire.TagUploadChunk, wire.TagXferCtrl:
		// No active transfer: these only ever make sense inside one.
		s.sendStatus(wire.StatusIllegalState)
	default:
		s.sendStatus(wire.StatusNotSupported)
	}
}
