package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// ErrDecode is returned for any malformed schema encoding. A
// schema-decode failure causes the frame to be silently discarded by
// the packet codec; callers must not turn this into a wire response.
var ErrDecode = errors.New("wire: malformed packet encoding")

// MaxPacketSize bounds the schema-encoded (pre-CRC, pre-frame) packet
// payload.
const MaxPacketSize = 1200

// MaxStringLen and MaxBlobLen bound length-prefixed fields so a
// corrupted length prefix cannot make the decoder allocate or read
// far beyond a sane packet.
const (
	MaxStringLen = MaxPacketSize
	MaxBlobLen   = MaxPacketSize
)

// Encode serializes a Packet into its schema-encoded form (CRC trailer
// and frame delimiter are added by the packet layer, not here).
func Encode(p Packet) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 64))
	buf.WriteByte(byte(p.Kind))

	switch p.Kind {
	case KindSync:
		writeUint32(buf, p.Sync.Sequence)
		writeBool(buf, p.Sync.OK)
	case KindRequest:
		writeUint32(buf, p.Request.Sequence)
		buf.WriteByte(byte(p.Request.Tag))
		if err := encodeRequestPayload(buf, p.Request); err != nil {
			return nil, err
		}
	case KindResponse:
		buf.WriteByte(byte(p.Response.Status))
		if err := encodeResponsePayload(buf, p.Response.Payload); err != nil {
			return nil, err
		}
	default:
		return nil, ErrDecode
	}

	if buf.Len() > MaxPacketSize {
		return nil, errors.New("wire: encoded packet exceeds MaxPacketSize")
	}
	return buf.Bytes(), nil
}

func encodeRequestPayload(buf *bytes.Buffer, r Request) error {
	switch r.Tag {
	case TagStartApp:
		if err := writeString(buf, r.StartApp.Slug); err != nil {
			return err
		}
		return writeBlob(buf, r.StartApp.Arg)
	case TagNvsAction:
		a := r.NvsAction
		buf.WriteByte(byte(a.Action))
		if err := writeString(buf, a.Namespace); err != nil {
			return err
		}
		if err := writeString(buf, a.Key); err != nil {
			return err
		}
		buf.WriteByte(byte(a.ValueType))
		if err := encodeValue(buf, a.Value); err != nil {
			return err
		}
		writeUint32(buf, a.Offset)
		return nil
	case TagAppStoreAction:
		a := r.AppStoreAction
		buf.WriteByte(byte(a.Action))
		if err := writeString(buf, a.Slug); err != nil {
			return err
		}
		if err := writeString(buf, a.Title); err != nil {
			return err
		}
		writeUint32(buf, a.Version)
		writeUint32(buf, a.Size)
		writeUint32(buf, a.Crc32)
		writeUint32(buf, a.Offset)
		return nil
	case TagFsAction:
		a := r.FsAction
		buf.WriteByte(byte(a.Action))
		if err := writeString(buf, a.Path); err != nil {
			return err
		}
		writeUint32(buf, a.Offset)
		writeUint32(buf, a.Size)
		writeUint32(buf, a.Crc32)
		return nil
	case TagUploadChunk:
		c := r.UploadChunk
		writeUint32(buf, c.Position)
		return writeBlob(buf, c.Data)
	case TagXferCtrl:
		buf.WriteByte(byte(r.XferCtrl.Ctrl))
		return nil
	default:
		return ErrDecode
	}
}

const (
	payloadNone uint8 = iota
	payloadAppList
	payloadFsList
	payloadSettingsList
	payloadMetadata
	payloadCrc32
	payloadDownloadChunk
	payloadSettingsValue
	payloadUsage
)

func encodeResponsePayload(buf *bytes.Buffer, p ResponsePayload) error {
	switch v := p.(type) {
	case nil:
		buf.WriteByte(payloadNone)
		return nil
	case *AppListPayload:
		buf.WriteByte(payloadAppList)
		writeUint16(buf, uint16(len(v.Entries)))
		for _, e := range v.Entries {
			if err := writeString(buf, e.Slug); err != nil {
				return err
			}
			if err := writeString(buf, e.Title); err != nil {
				return err
			}
			writeUint32(buf, e.Version)
			writeUint32(buf, e.Size)
		}
		writeUint32(buf, v.Total)
		return nil
	case *FsListPayload:
		buf.WriteByte(payloadFsList)
		writeUint16(buf, uint16(len(v.Entries)))
		for _, e := range v.Entries {
			if err := writeString(buf, e.Name); err != nil {
				return err
			}
			writeBool(buf, e.IsDir)
			writeUint32(buf, e.Size)
		}
		writeUint32(buf, v.Total)
		return nil
	case *SettingsListPayload:
		buf.WriteByte(payloadSettingsList)
		writeUint16(buf, uint16(len(v.Entries)))
		for _, e := range v.Entries {
			if err := writeString(buf, e.Namespace); err != nil {
				return err
			}
			if err := writeString(buf, e.Key); err != nil {
				return err
			}
			buf.WriteByte(byte(e.Type))
		}
		writeUint32(buf, v.Total)
		return nil
	case *MetadataPayload:
		buf.WriteByte(payloadMetadata)
		if err := writeString(buf, v.Slug); err != nil {
			return err
		}
		if err := writeString(buf, v.Path); err != nil {
			return err
		}
		if err := writeString(buf, v.Title); err != nil {
			return err
		}
		writeUint32(buf, v.Version)
		writeUint32(buf, v.Size)
		writeBool(buf, v.IsDir)
		return nil
	case *Crc32Payload:
		buf.WriteByte(payloadCrc32)
		writeUint32(buf, v.Crc32)
		return nil
	case *DownloadChunkPayload:
		buf.WriteByte(payloadDownloadChunk)
		if err := writeBlob(buf, v.Data); err != nil {
			return err
		}
		writeUint32(buf, v.Size)
		writeUint32(buf, v.Crc32)
		return nil
	case *SettingsValuePayload:
		buf.WriteByte(payloadSettingsValue)
		return encodeValue(buf, v.Value)
	case *UsagePayload:
		buf.WriteByte(payloadUsage)
		writeUint64(buf, v.Total)
		writeUint64(buf, v.Free)
		return nil
	default:
		return ErrDecode
	}
}

// EncodeValue serializes a typed settings value the same way it is
// embedded inside a packet, for collaborators that persist values
// outside the wire (e.g. the settings store).
func EncodeValue(v Value) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 16))
	// encodeValue only fails for an unknown ValueType, which callers
	// constructing a Value from a validated wire request cannot produce.
	_ = encodeValue(buf, v)
	return buf.Bytes()
}

// DecodeValue reverses EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	return decodeValue(&reader{buf: data})
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	buf.WriteByte(byte(v.Type))
	switch v.Type {
	case ValueU8:
		buf.WriteByte(byte(v.U64))
	case ValueU16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v.U64))
		buf.Write(b[:])
	case ValueU32:
		writeUint32(buf, uint32(v.U64))
	case ValueU64:
		writeUint64(buf, v.U64)
	case ValueI8:
		buf.WriteByte(byte(int8(v.I64)))
	case ValueI16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(v.I64)))
		buf.Write(b[:])
	case ValueI32:
		writeUint32(buf, uint32(int32(v.I64)))
	case ValueI64:
		writeUint64(buf, uint64(v.I64))
	case ValueString:
		return writeString(buf, v.Str)
	case ValueBlob:
		return writeBlob(buf, v.Blob)
	default:
		return ErrDecode
	}
	return nil
}

// Decode parses a schema-encoded packet. Any structural problem
// (truncated field, unknown tag, oversize length prefix) returns
// ErrDecode, which callers must treat as a silent-discard condition.
func Decode(data []byte) (Packet, error) {
	r := &reader{buf: data}
	kindByte, err := r.byte()
	if err != nil {
		return Packet{}, err
	}
	p := Packet{Kind: PacketKind(kindByte)}

	switch p.Kind {
	case KindSync:
		p.Sync.Sequence, err = r.uint32()
		if err != nil {
			return Packet{}, err
		}
		p.Sync.OK, err = r.boolean()
		if err != nil {
			return Packet{}, err
		}
	case KindRequest:
		p.Request.Sequence, err = r.uint32()
		if err != nil {
			return Packet{}, err
		}
		tagByte, err := r.byte()
		if err != nil {
			return Packet{}, err
		}
		p.Request.Tag = RequestTag(tagByte)
		if err := decodeRequestPayload(r, &p.Request); err != nil {
			return Packet{}, err
		}
	case KindResponse:
		statusByte, err := r.byte()
		if err != nil {
			return Packet{}, err
		}
		p.Response.Status = StatusCode(statusByte)
		payload, err := decodeResponsePayload(r)
		if err != nil {
			return Packet{}, err
		}
		p.Response.Payload = payload
	default:
		return Packet{}, ErrDecode
	}

	if !r.exhausted() {
		return Packet{}, ErrDecode
	}
	return p, nil
}

func decodeRequestPayload(r *reader, req *Request) error {
	switch req.Tag {
	case TagStartApp:
		slug, err := r.str()
		if err != nil {
			return err
		}
		arg, err := r.blob()
		if err != nil {
			return err
		}
		req.StartApp = StartAppRequest{Slug: slug, Arg: arg}
		return nil
	case TagNvsAction:
		actionByte, err := r.byte()
		if err != nil {
			return err
		}
		ns, err := r.str()
		if err != nil {
			return err
		}
		key, err := r.str()
		if err != nil {
			return err
		}
		vtByte, err := r.byte()
		if err != nil {
			return err
		}
		val, err := decodeValue(r)
		if err != nil {
			return err
		}
		offset, err := r.uint32()
		if err != nil {
			return err
		}
		req.NvsAction = NvsRequest{
			Action:    NvsAction(actionByte),
			Namespace: ns,
			Key:       key,
			ValueType: ValueType(vtByte),
			Value:     val,
			Offset:    offset,
		}
		return nil
	case TagAppStoreAction:
		actionByte, err := r.byte()
		if err != nil {
			return err
		}
		slug, err := r.str()
		if err != nil {
			return err
		}
		title, err := r.str()
		if err != nil {
			return err
		}
		version, err := r.uint32()
		if err != nil {
			return err
		}
		size, err := r.uint32()
		if err != nil {
			return err
		}
		crc, err := r.uint32()
		if err != nil {
			return err
		}
		offset, err := r.uint32()
		if err != nil {
			return err
		}
		req.AppStoreAction = AppStoreRequest{
			Action:  AppStoreAction(actionByte),
			Slug:    slug,
			Title:   title,
			Version: version,
			Size:    size,
			Crc32:   crc,
			Offset:  offset,
		}
		return nil
	case TagFsAction:
		actionByte, err := r.byte()
		if err != nil {
			return err
		}
		path, err := r.str()
		if err != nil {
			return err
		}
		offset, err := r.uint32()
		if err != nil {
			return err
		}
		size, err := r.uint32()
		if err != nil {
			return err
		}
		crc, err := r.uint32()
		if err != nil {
			return err
		}
		req.FsAction = FsRequest{Action: FsAction(actionByte), Path: path, Offset: offset, Size: size, Crc32: crc}
		return nil
	case TagUploadChunk:
		pos, err := r.uint32()
		if err != nil {
			return err
		}
		data, err := r.blob()
		if err != nil {
			return err
		}
		req.UploadChunk = UploadChunkRequest{Position: pos, Data: data}
		return nil
	case TagXferCtrl:
		ctrlByte, err := r.byte()
		if err != nil {
			return err
		}
		req.XferCtrl = XferCtrlRequest{Ctrl: XferCtrl(ctrlByte)}
		return nil
	default:
		return ErrDecode
	}
}

func decodeResponsePayload(r *reader) (ResponsePayload, error) {
	kind, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch kind {
	case payloadNone:
		return nil, nil
	case payloadAppList:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		entries := make([]AppEntry, 0, n)
		for i := uint16(0); i < n; i++ {
			slug, err := r.str()
			if err != nil {
				return nil, err
			}
			title, err := r.str()
			if err != nil {
				return nil, err
			}
			version, err := r.uint32()
			if err != nil {
				return nil, err
			}
			size, err := r.uint32()
			if err != nil {
				return nil, err
			}
			entries = append(entries, AppEntry{Slug: slug, Title: title, Version: version, Size: size})
		}
		total, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return &AppListPayload{Entries: entries, Total: total}, nil
	case payloadFsList:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		entries := make([]FsEntry, 0, n)
		for i := uint16(0); i < n; i++ {
			name, err := r.str()
			if err != nil {
				return nil, err
			}
			isDir, err := r.boolean()
			if err != nil {
				return nil, err
			}
			size, err := r.uint32()
			if err != nil {
				return nil, err
			}
			entries = append(entries, FsEntry{Name: name, IsDir: isDir, Size: size})
		}
		total, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return &FsListPayload{Entries: entries, Total: total}, nil
	case payloadSettingsList:
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		entries := make([]SettingsEntry, 0, n)
		for i := uint16(0); i < n; i++ {
			ns, err := r.str()
			if err != nil {
				return nil, err
			}
			key, err := r.str()
			if err != nil {
				return nil, err
			}
			typByte, err := r.byte()
			if err != nil {
				return nil, err
			}
			entries = append(entries, SettingsEntry{Namespace: ns, Key: key, Type: ValueType(typByte)})
		}
		total, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return &SettingsListPayload{Entries: entries, Total: total}, nil
	case payloadMetadata:
		slug, err := r.str()
		if err != nil {
			return nil, err
		}
		path, err := r.str()
		if err != nil {
			return nil, err
		}
		title, err := r.str()
		if err != nil {
			return nil, err
		}
		version, err := r.uint32()
		if err != nil {
			return nil, err
		}
		size, err := r.uint32()
		if err != nil {
			return nil, err
		}
		isDir, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return &MetadataPayload{Slug: slug, Path: path, Title: title, Version: version, Size: size, IsDir: isDir}, nil
	case payloadCrc32:
		crc, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return &Crc32Payload{Crc32: crc}, nil
	case payloadDownloadChunk:
		data, err := r.blob()
		if err != nil {
			return nil, err
		}
		size, err := r.uint32()
		if err != nil {
			return nil, err
		}
		crc, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return &DownloadChunkPayload{Data: data, Size: size, Crc32: crc}, nil
	case payloadSettingsValue:
		val, err := decodeValue(r)
		if err != nil {
			return nil, err
		}
		return &SettingsValuePayload{Value: val}, nil
	case payloadUsage:
		total, err := r.uint64()
		if err != nil {
			return nil, err
		}
		free, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return &UsagePayload{Total: total, Free: free}, nil
	default:
		return nil, ErrDecode
	}
}

func decodeValue(r *reader) (Value, error) {
	typByte, err := r.byte()
	if err != nil {
		return Value{}, err
	}
	v := Value{Type: ValueType(typByte)}
	switch v.Type {
	case ValueU8:
		b, err := r.byte()
		if err != nil {
			return Value{}, err
		}
		v.U64 = uint64(b)
	case ValueU16:
		n, err := r.uint16()
		if err != nil {
			return Value{}, err
		}
		v.U64 = uint64(n)
	case ValueU32:
		n, err := r.uint32()
		if err != nil {
			return Value{}, err
		}
		v.U64 = uint64(n)
	case ValueU64:
		n, err := r.uint64()
		if err != nil {
			return Value{}, err
		}
		v.U64 = n
	case ValueI8:
		b, err := r.byte()
		if err != nil {
			return Value{}, err
		}
		v.I64 = int64(int8(b))
	case ValueI16:
		n, err := r.uint16()
		if err != nil {
			return Value{}, err
		}
		v.I64 = int64(int16(n))
	case ValueI32:
		n, err := r.uint32()
		if err != nil {
			return Value{}, err
		}
		v.I64 = int64(int32(n))
	case ValueI64:
		n, err := r.uint64()
		if err != nil {
			return Value{}, err
		}
		v.I64 = int64(n)
	case ValueString:
		s, err := r.str()
		if err != nil {
			return Value{}, err
		}
		v.Str = s
	case ValueBlob:
		b, err := r.blob()
		if err != nil {
			return Value{}, err
		}
		v.Blob = b
	default:
		return Value{}, ErrDecode
	}
	return v, nil
}

// reader is a small bounds-checked cursor over the decode buffer,
// generalized from fixed-width frame indexing to variable-length
// packets.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrDecode
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) boolean() (bool, error) {
	b, err := r.byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrDecode
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) str() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	if int(n) > MaxStringLen {
		return "", ErrDecode
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) blob() ([]byte, error) {
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if int(n) > MaxBlobLen {
		return nil, ErrDecode
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *reader) exhausted() bool {
	return r.pos == len(r.buf)
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return ErrDecode
	}
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
	return nil
}

func writeBlob(buf *bytes.Buffer, b []byte) error {
	if len(b) > math.MaxUint16 {
		return ErrDecode
	}
	writeUint16(buf, uint16(len(b)))
	buf.Write(b)
	return nil
}
