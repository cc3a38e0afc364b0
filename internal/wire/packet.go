// Package wire defines the BadgeLink schema message shapes and their
// manual binary encoding. In a production build this package's
// Encode/Decode pair would be generated from a .proto schema by an
// external protocol-buffers codec; see DESIGN.md for why this
// repository hand-rolls that narrow contract instead of emitting
// protoc-generated code.
package wire

// PacketKind discriminates the three-arm Packet union.
type PacketKind uint8

const (
	KindSync PacketKind = iota
	KindRequest
	KindResponse
)

// Packet is the only on-wire message shape.
type Packet struct {
	Kind     PacketKind
	Sync     SyncPacket
	Request  Request
	Response Response
}

// SyncPacket is the handshake packet. Payload must be true on the wire;
// a false payload is rejected by the dispatcher as Malformed.
type SyncPacket struct {
	Sequence uint32
	OK       bool
}

// RequestTag discriminates the Request sub-union.
type RequestTag uint8

const (
	TagStartApp RequestTag = iota
	TagNvsAction
	TagAppStoreAction
	TagFsAction
	TagUploadChunk
	TagXferCtrl
)

// Request carries a sequence number and exactly one of the payload
// types below, selected by Tag.
type Request struct {
	Sequence uint32
	Tag      RequestTag

	StartApp       StartAppRequest
	NvsAction      NvsRequest
	AppStoreAction AppStoreRequest
	FsAction       FsRequest
	UploadChunk    UploadChunkRequest
	XferCtrl       XferCtrlRequest
}

// StartAppRequest launches an installed application image.
type StartAppRequest struct {
	Slug string
	Arg  []byte
}

// NvsAction enumerates settings-store operations.
type NvsAction uint8

const (
	NvsList NvsAction = iota
	NvsRead
	NvsWrite
	NvsDelete
)

// ValueType tags the typed union carried by settings values.
type ValueType uint8

const (
	ValueU8 ValueType = iota
	ValueU16
	ValueU32
	ValueU64
	ValueI8
	ValueI16
	ValueI32
	ValueI64
	ValueString
	ValueBlob
)

// Value is the typed payload of a settings entry.
type Value struct {
	Type ValueType
	U64  uint64
	I64  int64
	Str  string
	Blob []byte
}

// NvsRequest carries the settings-store action and its operands.
type NvsRequest struct {
	Action    NvsAction
	Namespace string
	Key       string
	ValueType ValueType
	Value     Value
	Offset    uint32
}

// AppStoreAction enumerates application-image-store operations.
type AppStoreAction uint8

const (
	AppStoreList AppStoreAction = iota
	AppStoreDelete
	AppStoreUpload
	AppStoreDownload
	AppStoreStat
	AppStoreCrc32
	AppStoreUsage
)

// AppStoreRequest carries the app-store action and its operands.
// Offset is only meaningful for the List action, mirroring
// NvsRequest's paging field.
type AppStoreRequest struct {
	Action  AppStoreAction
	Slug    string
	Title   string
	Version uint32
	Size    uint32
	Crc32   uint32
	Offset  uint32
}

// FsAction enumerates filesystem operations.
type FsAction uint8

const (
	FsList FsAction = iota
	FsDelete
	FsMkdir
	FsUpload
	FsDownload
	FsStat
	FsRmdir
)

// FsRequest carries the filesystem action and its operand path.
// Offset is only meaningful for the List action; Size and Crc32 are
// only meaningful for Upload, mirroring AppStoreRequest's upload
// fields.
type FsRequest struct {
	Action FsAction
	Path   string
	Offset uint32
	Size   uint32
	Crc32  uint32
}

// UploadChunkRequest carries one chunk of an in-progress upload.
type UploadChunkRequest struct {
	Position uint32
	Data     []byte
}

// XferCtrl enumerates transfer control verbs.
type XferCtrl uint8

const (
	XferContinue XferCtrl = iota
	XferAbort
	XferFinish
)

// XferCtrlRequest carries a transfer control verb.
type XferCtrlRequest struct {
	Ctrl XferCtrl
}

// AppEntry describes one application image, returned by app-store
// List.
type AppEntry struct {
	Slug    string
	Title   string
	Version uint32
	Size    uint32
}

// FsEntry describes one directory entry, returned by filesystem List.
type FsEntry struct {
	Name  string
	IsDir bool
	Size  uint32
}

// SettingsEntry describes one namespaced key, returned by settings List.
type SettingsEntry struct {
	Namespace string
	Key       string
	Type      ValueType
}

// ResponsePayload is implemented by every typed Response payload. It
// mirrors the oneof-wrapper pattern protoc-gen-go emits for a oneof
// field: one concrete type per case, selected by a dynamic type switch
// instead of a manually maintained kind tag.
type ResponsePayload interface {
	isResponsePayload()
}

// AppListPayload is the app-store List response payload.
type AppListPayload struct {
	Entries []AppEntry
	Total   uint32
}

// FsListPayload is the filesystem List response payload.
type FsListPayload struct {
	Entries []FsEntry
	Total   uint32
}

// SettingsListPayload is the settings List response payload.
type SettingsListPayload struct {
	Entries []SettingsEntry
	Total   uint32
}

// MetadataPayload is the Stat response payload, shared by app-store and
// filesystem Stat (Path is empty for app-store entries, Slug is empty
// for filesystem entries).
type MetadataPayload struct {
	Slug    string
	Path    string
	Title   string
	Version uint32
	Size    uint32
	IsDir   bool
}

// Crc32Payload carries a whole-file CRC-32.
type Crc32Payload struct {
	Crc32 uint32
}

// DownloadChunkPayload carries a downloaded chunk. Size and Crc32 are
// only meaningful on the response that starts the transfer.
type DownloadChunkPayload struct {
	Data  []byte
	Size  uint32
	Crc32 uint32
}

// SettingsValuePayload carries a single settings read result.
type SettingsValuePayload struct {
	Value Value
}

// UsagePayload carries app-store space accounting.
type UsagePayload struct {
	Total uint64
	Free  uint64
}

func (*AppListPayload) isResponsePayload()       {}
func (*FsListPayload) isResponsePayload()        {}
func (*SettingsListPayload) isResponsePayload()  {}
func (*MetadataPayload) isResponsePayload()      {}
func (*Crc32Payload) isResponsePayload()         {}
func (*DownloadChunkPayload) isResponsePayload() {}
func (*SettingsValuePayload) isResponsePayload() {}
func (*UsagePayload) isResponsePayload()         {}

// Response carries a status code and, on success, an optional typed
// payload.
type Response struct {
	Status  StatusCode
	Payload ResponsePayload
}
