package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeWrapsPayload(t *testing.T) {
	t.Parallel()

	frame, err := Encode(EventMessageChunk, MessageChunk{ID: "s1", Chunk: "lo", FullText: "hello"})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"message_chunk","data":{"id":"s1","chunk":"lo","fullText":"hello"}}`, string(frame))
}

func TestDecodeSendMessage(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"event":"send_message","data":{"message":"hi","timestamp":42}}`))
	require.NoError(t, err)
	require.Equal(t, EventSendMessage, env.Event)

	var msg SendMessage
	require.NoError(t, env.DecodeData(&msg))
	require.Equal(t, "hi", msg.Message)
	require.Equal(t, int64(42), msg.Timestamp)
}

func TestDecodeWithoutPayload(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"event":"reset_conversation"}`))
	require.NoError(t, err)

	var msg SendMessage
	require.NoError(t, env.DecodeData(&msg))
	require.Empty(t, msg.Message)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	t.Parallel()

	for _, frame := range []string{`not json`, `{"data":{}}`, `[]`} {
		_, err := Decode([]byte(frame))
		require.Error(t, err, frame)
		require.True(t, errors.Is(err, ErrMalformedFrame), frame)
	}

	env, err := Decode([]byte(`{"event":"switch_model","data":"oops"}`))
	require.NoError(t, err)
	var sw SwitchModel
	require.ErrorIs(t, env.DecodeData(&sw), ErrMalformedFrame)
}
