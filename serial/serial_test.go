package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodTags(t *testing.T) {
	require := require.New(t)

	require.Equal("none", MethodNone.String())
	require.Equal("msgpack", MethodMsgpack.String())
	require.Equal("arrow", MethodArrow.String())

	for _, tag := range []string{"none", "msgpack", "arrow"} {
		m, err := ParseMethod(tag)
		require.NoError(err)
		require.Equal(tag, m.String())
	}

	// An absent tag means no serialization.
	m, err := ParseMethod("")
	require.NoError(err)
	require.Equal(MethodNone, m)

	_, err = ParseMethod("protobuf")
	require.ErrorIs(err, ErrUnknownMethod)
}

func TestEncodeDecodeNone(t *testing.T) {
	require := require.New(t)

	t.Run("bytes pass through unchanged", func(t *testing.T) {
		payload := []byte{0x00, 0xff, 0x7f, 0x01}
		b, err := Encode(payload, MethodNone)
		require.NoError(err)
		require.Equal(payload, b)

		v, err := Decode(b, MethodNone)
		require.NoError(err)
		require.Equal(payload, v)
	})

	t.Run("strings pass through as bytes", func(t *testing.T) {
		b, err := Encode("hello", MethodNone)
		require.NoError(err)
		require.Equal([]byte("hello"), b)
	})

	t.Run("structured values are rejected", func(t *testing.T) {
		_, err := Encode(42, MethodNone)
		require.ErrorIs(err, ErrNotEncodable)

		_, err = Encode(map[string]int{"a": 1}, MethodNone)
		require.ErrorIs(err, ErrNotEncodable)
	})
}

func TestEncodeDecodeMsgpack(t *testing.T) {
	require := require.New(t)

	t.Run("round trip of a typed struct", func(t *testing.T) {
		type pose struct {
			X     float64 `msgpack:"x"`
			Y     float64 `msgpack:"y"`
			Theta float64 `msgpack:"theta"`
			Frame string  `msgpack:"frame"`
			Raw   []byte  `msgpack:"raw"`
		}

		in := pose{X: 1.5, Y: -2.25, Theta: 0.75, Frame: "odom", Raw: []byte{1, 2, 3}}
		b, err := Encode(in, MethodMsgpack)
		require.NoError(err)

		var out pose
		require.NoError(DecodeInto(b, MethodMsgpack, &out))
		require.Equal(in, out)
	})

	t.Run("round trip of a string map", func(t *testing.T) {
		in := map[string]string{"status": "ready", "mode": "auto"}
		b, err := Encode(in, MethodMsgpack)
		require.NoError(err)

		v, err := Decode(b, MethodMsgpack)
		require.NoError(err)

		m, ok := v.(map[string]any)
		require.True(ok)
		require.Len(m, 2)
		assert.Equal(t, "ready", m["status"])
		assert.Equal(t, "auto", m["mode"])
	})

	t.Run("round trip of binary payloads", func(t *testing.T) {
		in := []byte{0xde, 0xad, 0xbe, 0xef}
		b, err := Encode(in, MethodMsgpack)
		require.NoError(err)

		v, err := Decode(b, MethodMsgpack)
		require.NoError(err)
		require.Equal(in, v)
	})

	t.Run("malformed payload fails", func(t *testing.T) {
		_, err := Decode([]byte{0xc1}, MethodMsgpack)
		require.ErrorIs(err, ErrDecode)
	})

	t.Run("decode-into requires msgpack", func(t *testing.T) {
		var out map[string]any
		require.ErrorIs(DecodeInto([]byte("raw"), MethodNone, &out), ErrDecode)
	})
}

func TestUnknownMethod(t *testing.T) {
	require := require.New(t)

	_, err := Encode([]byte("x"), Method(42))
	require.ErrorIs(err, ErrUnknownMethod)

	_, err = Decode([]byte("x"), Method(42))
	require.ErrorIs(err, ErrUnknownMethod)
}
