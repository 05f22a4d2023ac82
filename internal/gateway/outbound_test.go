package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fmaa-labs/fmaa-chat/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []string
	block  chan struct{}
}

func (c *fakeConn) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, string(p))
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func TestOutbound_PreservesOrder(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	conn := &fakeConn{}
	out := newOutbound(ctx, cancel, conn, 16, time.Second, nil)
	defer out.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, out.Emit(protocol.EventAgentTyping, protocol.AgentTyping{IsTyping: i%2 == 0}))
	}

	require.Eventually(t, func() bool { return len(conn.written()) == 5 }, time.Second, 5*time.Millisecond)
	frames := conn.written()
	for i, f := range frames {
		env, err := protocol.Decode([]byte(f))
		require.NoError(t, err)
		require.Equal(t, protocol.EventAgentTyping, env.Event)
		want := `{"isTyping":false}`
		if i%2 == 0 {
			want = `{"isTyping":true}`
		}
		require.JSONEq(t, want, string(env.Data))
	}
}

func TestOutbound_SlowConsumerDisconnected(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	conn := &fakeConn{block: make(chan struct{})}
	out := newOutbound(ctx, cancel, conn, 2, time.Minute, nil)
	defer out.Close()

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = out.Emit(protocol.EventMessageChunk, protocol.MessageChunk{ID: "s", Chunk: "x"})
	}
	require.ErrorIs(t, err, errSlowConsumer)
	require.Error(t, ctx.Err())

	require.ErrorIs(t, out.Emit(protocol.EventAgentTyping, nil), errOutboundClosed)
}

func TestOutbound_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	out := newOutbound(ctx, cancel, &fakeConn{}, 1, time.Second, nil)

	out.Close()
	out.Close()
	require.ErrorIs(t, out.Emit(protocol.EventAgentTyping, nil), errOutboundClosed)
}
