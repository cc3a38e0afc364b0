package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	encoded, err := Encode(p)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	return decoded
}

func TestEncodeDecodeSync(t *testing.T) {
	p := Packet{Kind: KindSync, Sync: SyncPacket{Sequence: 42, OK: true}}
	assert.Equal(t, p, roundTrip(t, p))
}

func TestEncodeDecodeRequestVariants(t *testing.T) {
	cases := []Packet{
		{Kind: KindRequest, Request: Request{Sequence: 1, Tag: TagStartApp,
			StartApp: StartAppRequest{Slug: "hello", Arg: []byte{1, 2, 3}}}},
		{Kind: KindRequest, Request: Request{Sequence: 2, Tag: TagNvsAction,
			NvsAction: NvsRequest{Action: NvsWrite, Namespace: "ns", Key: "k",
				ValueType: ValueU32, Value: Value{Type: ValueU32, U64: 7}}}},
		{Kind: KindRequest, Request: Request{Sequence: 3, Tag: TagAppStoreAction,
			AppStoreAction: AppStoreRequest{Action: AppStoreUpload, Slug: "app", Title: "App",
				Version: 2, Size: 1024, Crc32: 0xdeadbeef}}},
		{Kind: KindRequest, Request: Request{Sequence: 4, Tag: TagFsAction,
			FsAction: FsRequest{Action: FsList, Path: "/foo", Offset: 5}}},
		{Kind: KindRequest, Request: Request{Sequence: 5, Tag: TagUploadChunk,
			UploadChunk: UploadChunkRequest{Position: 512, Data: []byte{9, 9, 9}}}},
		{Kind: KindRequest, Request: Request{Sequence: 6, Tag: TagXferCtrl,
			XferCtrl: XferCtrlRequest{Ctrl: XferFinish}}},
	}
	for _, p := range cases {
		assert.Equal(t, p, roundTrip(t, p))
	}
}

func TestEncodeDecodeResponseVariants(t *testing.T) {
	cases := []Packet{
		{Kind: KindResponse, Response: Response{Status: StatusOk}},
		{Kind: KindResponse, Response: Response{Status: StatusOk, Payload: &AppListPayload{
			Entries: []AppEntry{{Slug: "a", Title: "A", Version: 1, Size: 10}}, Total: 1,
		}}},
		{Kind: KindResponse, Response: Response{Status: StatusOk, Payload: &FsListPayload{
			Entries: []FsEntry{{Name: "file", IsDir: false, Size: 100}}, Total: 1,
		}}},
		{Kind: KindResponse, Response: Response{Status: StatusOk, Payload: &UsagePayload{Total: 100, Free: 40}}},
		{Kind: KindResponse, Response: Response{Status: StatusOk, Payload: &Crc32Payload{Crc32: 0x1234}}},
		{Kind: KindResponse, Response: Response{Status: StatusOk, Payload: &DownloadChunkPayload{
			Data: []byte{1, 2}, Size: 2, Crc32: 99,
		}}},
	}
	for _, p := range cases {
		assert.Equal(t, p, roundTrip(t, p))
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	p := Packet{Kind: KindRequest, Request: Request{Sequence: 1, Tag: TagStartApp,
		StartApp: StartAppRequest{Slug: "hello"}}}
	encoded, err := Encode(p)
	require.NoError(t, err)
	for n := 0; n < len(encoded); n++ {
		_, err := Decode(encoded[:n])
		assert.ErrorIs(t, err, ErrDecode)
	}
}

func TestDecodeRejectsTrailingGarbage(t *testing.T) {
	p := Packet{Kind: KindSync, Sync: SyncPacket{Sequence: 1, OK: true}}
	encoded, err := Encode(p)
	require.NoError(t, err)
	_, err = Decode(append(encoded, 0xFF))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEncodeValueDecodeValueRoundTrip(t *testing.T) {
	cases := []Value{
		{Type: ValueU8, U64: 200},
		{Type: ValueU32, U64: 123456},
		{Type: ValueI32, I64: -42},
		{Type: ValueString, Str: "setting"},
		{Type: ValueBlob, Blob: []byte{1, 2, 3, 4}},
	}
	for _, v := range cases {
		decoded, err := DecodeValue(EncodeValue(v))
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}
