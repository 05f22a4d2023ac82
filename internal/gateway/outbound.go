package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fmaa-labs/fmaa-chat/internal/protocol"
	"github.com/fmaa-labs/fmaa-chat/internal/session"
)

var (
	errOutboundClosed = errors.New("outbound closed")
	errSlowConsumer   = errors.New("outbound buffer full")
)

// frameWriter is the subset of *websocket.Conn used for writes.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// outbound serializes server events onto one connection. Emit never blocks:
// frames are queued and written in order by a single goroutine. A client that
// falls a full buffer behind is disconnected.
type outbound struct {
	conn         frameWriter
	queue        chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	logger       *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ session.Emitter = (*outbound)(nil)

func newOutbound(ctx context.Context, cancel context.CancelFunc, conn frameWriter, size int, writeTimeout time.Duration, logger *slog.Logger) *outbound {
	if logger == nil {
		logger = slog.Default()
	}
	o := &outbound{
		conn:         conn,
		queue:        make(chan []byte, size),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
	o.wg.Add(1)
	go o.run()
	return o
}

// Emit implements session.Emitter.
func (o *outbound) Emit(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed || o.ctx.Err() != nil {
		return errOutboundClosed
	}
	select {
	case o.queue <- frame:
		return nil
	default:
		o.logger.Warn("Outbound buffer full, closing connection", "event", event, "queue_len", len(o.queue))
		o.cancel()
		return errSlowConsumer
	}
}

func (o *outbound) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case frame := <-o.queue:
			wctx, cancel := context.WithTimeout(o.ctx, o.writeTimeout)
			err := o.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				if o.ctx.Err() == nil {
					o.logger.Debug("WebSocket write error", "error", err)
				}
				o.cancel()
				return
			}
		}
	}
}

// Close stops the writer. Frames still queued are discarded.
func (o *outbound) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	if n := len(o.queue); n > 0 {
		o.logger.Debug("Discarded queued frames on close", "count", n)
	}
}
