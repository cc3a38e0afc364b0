package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"log/slog"

	"github.com/badgelink/badgelink/internal/frame"
)

// crcLen is the width of the CRC-32/ISO-HDLC trailer appended after
// the schema-encoded packet and before frame-level byte stuffing. It
// is exactly hash/crc32's IEEE polynomial, so no other library is
// needed here (see DESIGN.md).
const crcLen = 4

// ErrShortFrame is returned by DecodeFrame when a de-stuffed frame is
// too short to even hold a CRC trailer. Like ErrDecode and a CRC
// mismatch, it is a silent-discard condition for callers.
var ErrShortFrame = errors.New("wire: frame shorter than crc trailer")

// EncodeFrame schema-encodes p, appends its CRC-32/ISO-HDLC trailer,
// and COBS-frames the result. The returned slice is ready to write to
// the transport verbatim.
func EncodeFrame(p Packet) ([]byte, error) {
	payload, err := Encode(p)
	if err != nil {
		return nil, err
	}
	sum := crc32.ChecksumIEEE(payload)
	var trailer [crcLen]byte
	binary.LittleEndian.PutUint32(trailer[:], sum)
	payload = append(payload, trailer[:]...)
	return frame.Encode(payload), nil
}

// DecodePacket reverses EncodeFrame's CRC-and-schema stage on an
// already de-stuffed frame (frame.Decode's output, without the zero
// delimiter: the last four bytes are always taken as the CRC
// trailer). It returns ErrShortFrame, a CRC
// mismatch error, or ErrDecode for any malformed input, all of which
// the caller must treat identically: discard the frame and move on.
func DecodePacket(destuffed []byte) (Packet, error) {
	if len(destuffed) < crcLen {
		return Packet{}, ErrShortFrame
	}
	n := len(destuffed) - crcLen
	payload, trailer := destuffed[:n], destuffed[n:]
	want := binary.LittleEndian.Uint32(trailer)
	got := crc32.ChecksumIEEE(payload)
	if got != want {
		return Packet{}, errCRCMismatch
	}
	return Decode(payload)
}

var errCRCMismatch = errors.New("wire: crc mismatch")

// DecodeFrame destuffs a raw, zero-terminated frame (as delivered by
// frame.Reassembler's onFrame callback) and decodes the packet inside
// it. It is the receive-side mirror of EncodeFrame.
func DecodeFrame(framed []byte) (Packet, error) {
	return DecodePacket(frame.Decode(framed))
}

// IsDiscard reports whether err is one of the silent-discard
// conditions DecodePacket and DecodeFrame can return: a
// caller should log at most and must never synthesize a wire response
// for it.
func IsDiscard(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrShortFrame) || errors.Is(err, errCRCMismatch)
}

// LogDiscard is a small helper for the common "discard and log at
// debug level" path callers take on a malformed or corrupted frame.
func LogDiscard(logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("discarding malformed frame", "reason", err)
}
