package wire

import "fmt"

// StatusCode is the wire-stable result code carried on every Response
// packet. Values are never renumbered once shipped, mirroring the way
// CANopen SDO abort codes are treated as a stable wire contract.
type StatusCode uint8

const (
	StatusOk StatusCode = iota
	StatusNotSupported
	StatusNotFound
	StatusMalformed
	StatusInternalError
	StatusIllegalState
	StatusNoSpace
	StatusNotEmpty
	StatusIsFile
	StatusIsDir
	StatusExists
)

var statusDescriptions = map[StatusCode]string{
	StatusOk:            "ok",
	StatusNotSupported:  "action not supported",
	StatusNotFound:      "not found",
	StatusMalformed:     "malformed request",
	StatusInternalError: "internal error",
	StatusIllegalState:  "illegal protocol state",
	StatusNoSpace:       "no space left",
	StatusNotEmpty:      "directory not empty",
	StatusIsFile:        "target is a file",
	StatusIsDir:         "target is a directory",
	StatusExists:        "already exists",
}

func (s StatusCode) String() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Error lets a StatusCode be returned and wrapped like a normal Go error
// from handler code, mirroring sdo.SDOAbortCode's Error() method.
func (s StatusCode) Error() string {
	return s.String()
}
