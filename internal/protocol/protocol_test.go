package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeClient_Valid(t *testing.T) {
	cases := []struct {
		input string
		want  ClientMessage
	}{
		{`{"type":"start-session"}`, StartSession()},
		{`{"type":"stop"}`, Stop()},
		{`{"type":"leave"}`, Leave()},
		{`{"type":"join","session_id":"AB12CD34EF56GH78"}`, Join("AB12CD34EF56GH78")},
		{`{"type":"publish-state","payload":{"x":1}}`, PublishState(json.RawMessage(`{"x":1}`))},
	}
	for _, tc := range cases {
		got, err := DecodeClient([]byte(tc.input))
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got, tc.input)
	}
}

func TestDecodeClient_Malformed(t *testing.T) {
	for _, input := range []string{
		``,
		`not json`,
		`{}`,
		`{"type":"teleport"}`,
		`{"type":"join"}`,
		`{"type":"publish-state"}`,
		`{"type":"leave"}{"type":"leave"}`,
	} {
		_, err := DecodeClient([]byte(input))
		require.Error(t, err, input)
		assert.True(t, errors.Is(err, ErrMalformed), "%q: %v", input, err)
	}
}

func TestPublishPayloadIsCarriedVerbatim(t *testing.T) {
	payload := json.RawMessage(`{"players":[{"id":7,"pos":[1.5,-2,64]}],"bomb":null}`)
	data, err := EncodeServer(StateUpdate(payload))
	require.NoError(t, err)

	got, err := DecodeServer(data)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestEncodeServer_Shapes(t *testing.T) {
	data, err := EncodeServer(SessionStarted("AB12CD34EF56GH78"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"session-started","session_id":"AB12CD34EF56GH78"}`, string(data))

	data, err = EncodeServer(ViewerCount(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"viewer-count","viewers":0}`, string(data), "zero viewers must still be encoded")

	data, err = EncodeServer(Error(CodeInvalidSessionID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","reason":"InvalidSessionId"}`, string(data))

	data, err = EncodeServer(Joined("s", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"joined","session_id":"s"}`, string(data))
}

func TestEncodeServer_InvalidPayload(t *testing.T) {
	_, err := EncodeServer(StateUpdate(json.RawMessage(`{broken`)))
	assert.ErrorIs(t, err, ErrEncode)
}

func TestViewerCountValue(t *testing.T) {
	assert.Equal(t, 3, ViewerCount(3).ViewerCountValue())
	assert.Equal(t, -1, Error(CodeInvalidClientID).ViewerCountValue())
}

func TestDecodeServer_UnknownType(t *testing.T) {
	_, err := DecodeServer([]byte(`{"type":"mystery"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"stop"}`)))
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"leave"}`)))

	r := NewFrameReader(&buf, 0)
	first, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"stop"}`, string(first))

	second, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"leave"}`, string(second))

	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err, "clean end of stream between frames")
}

func TestFrameReader_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	var hdr [FrameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], 1024)
	buf.Write(hdr[:])

	_, err := NewFrameReader(&buf, 16).ReadFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFrameReader_Empty(t *testing.T) {
	_, err := NewFrameReader(bytes.NewReader(make([]byte, FrameHeaderSize)), 0).ReadFrame()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFrameReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("0123456789")))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := NewFrameReader(bytes.NewReader(truncated), 0).ReadFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewFrameReader(bytes.NewReader([]byte{0, 0}), 0).ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteFrame_Empty(t *testing.T) {
	assert.Error(t, WriteFrame(io.Discard, nil))
}

func TestPropertyFramesPreserveBoundaries(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payloads := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 1, 512), 1, 16).Draw(t, "payloads")

		var buf bytes.Buffer
		for _, p := range payloads {
			if err := WriteFrame(&buf, p); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		r := NewFrameReader(&buf, 512)
		for i, want := range payloads {
			got, err := r.ReadFrame()
			if err != nil {
				t.Fatalf("frame %d: %v", i, err)
			}
			if !bytes.Equal(want, got) {
				t.Fatalf("frame %d: got %x, want %x", i, got, want)
			}
		}
		if _, err := r.ReadFrame(); err != io.EOF {
			t.Fatalf("expected EOF after last frame, got %v", err)
		}
	})
}

func TestPropertyJoinSessionIDSurvivesEncoding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sid := rapid.StringMatching(`[A-Za-z0-9]{1,32}`).Draw(t, "sid")
		data, err := EncodeClient(Join(sid))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := DecodeClient(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.SessionID != sid {
			t.Fatalf("session id %q became %q", sid, got.SessionID)
		}
	})
}
