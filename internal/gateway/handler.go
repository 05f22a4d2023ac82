// Package gateway terminates chat websocket connections: it decodes client
// events into session operations and relays server events back in order.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/fmaa-labs/fmaa-chat/internal/agent"
	"github.com/fmaa-labs/fmaa-chat/internal/domain"
	"github.com/fmaa-labs/fmaa-chat/internal/identity"
	"github.com/fmaa-labs/fmaa-chat/internal/metrics"
	"github.com/fmaa-labs/fmaa-chat/internal/middleware"
	"github.com/fmaa-labs/fmaa-chat/internal/protocol"
	"github.com/fmaa-labs/fmaa-chat/internal/session"
)

const maxFrameBytes = 64 << 10

// MessageHandler schedules send_message events.
type MessageHandler interface {
	HandleMessage(ctx context.Context, s *session.Session, text string, ts int64) error
}

// AgentLookup resolves stored agents selected with ?agent=<id>.
type AgentLookup interface {
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
}

// Options configures a Handler.
type Options struct {
	AllowedOrigins []string
	Defaults       domain.AgentProfile
	Agents         AgentLookup
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OutboundBuffer int
	Logger         *slog.Logger
}

// Handler upgrades chat connections and runs them until disconnect.
type Handler struct {
	registry *session.Registry
	turns    MessageHandler
	opts     Options
	logger   *slog.Logger
}

// NewHandler creates a websocket chat handler.
func NewHandler(registry *session.Registry, turns MessageHandler, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = 256
	}
	return &Handler{registry: registry, turns: turns, opts: opts, logger: opts.Logger}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := identity.IPFromRequest(r)
	origin := r.Header.Get("Origin")
	if !middleware.OriginAllowed(h.opts.AllowedOrigins, origin) {
		h.logger.Warn("WebSocket origin rejected", "origin", origin, "ip", ip)
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	profile, status, err := h.profileFor(r)
	if err != nil {
		h.logger.Warn("Rejecting chat connection", "error", err, "ip", ip)
		http.Error(w, err.Error(), status)
		return
	}

	connID, err := identity.NewConnectionID()
	if err != nil {
		h.logger.Error("Failed to allocate connection id", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	log := h.logger.With("conn_id", connID)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(identity.WithConnID(r.Context(), connID))
	defer cancel()

	out := newOutbound(ctx, cancel, ws, h.opts.OutboundBuffer, h.opts.WriteTimeout, log)
	defer out.Close()

	s := h.registry.GetOrCreate(connID, profile, out)
	defer h.registry.Remove(connID)

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()
	log.Info("Chat connection opened", "ip", ip, "agent", profile.DisplayName, "model", profile.Model)

	go h.pingLoop(ctx, cancel, ws, log)
	h.readLoop(ctx, ws, s, log)

	log.Info("Chat connection closed")
}

// profileFor returns the connection's initial profile, honouring ?agent=.
func (h *Handler) profileFor(r *http.Request) (domain.AgentProfile, int, error) {
	id := r.URL.Query().Get("agent")
	if id == "" || h.opts.Agents == nil {
		return h.opts.Defaults, http.StatusOK, nil
	}
	a, err := h.opts.Agents.GetAgent(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load agent", "agent_id", id, "error", err)
		return domain.AgentProfile{}, http.StatusInternalServerError, errors.New("failed to load agent")
	}
	if !a.IsActive() {
		return domain.AgentProfile{}, http.StatusNotFound, errors.New("agent not found")
	}
	return a.Profile(h.opts.Defaults), http.StatusOK, nil
}

func (h *Handler) pingLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, log *slog.Logger) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := ws.Ping(pctx)
			pcancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Info("Ping failed, closing connection", "error", err)
				}
				cancel()
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, s *session.Session, log *slog.Logger) {
	for {
		typ, frame, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				log.Debug("WebSocket closed", "error", err)
			} else {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			log.Debug("Dropping non-text frame")
			continue
		}
		h.dispatch(ctx, s, frame, log)
	}
}

func (h *Handler) dispatch(ctx context.Context, s *session.Session, frame []byte, log *slog.Logger) {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Debug("Dropping malformed frame", "error", err)
		return
	}

	switch env.Event {
	case protocol.EventSendMessage:
		var msg protocol.SendMessage
		if err := env.DecodeData(&msg); err != nil {
			log.Debug("Dropping malformed frame", "error", err)
			return
		}
		if err := h.turns.HandleMessage(ctx, s, msg.Message, msg.Timestamp); err != nil {
			if reason := rejectReason(err); reason != "" {
				metrics.MessageRejected(reason)
			}
			log.Debug("Message not scheduled", "error", err)
		}
	case protocol.EventSwitchModel:
		var msg protocol.SwitchModel
		if err := env.DecodeData(&msg); err != nil {
			log.Debug("Dropping malformed frame", "error", err)
			return
		}
		if err := s.SwitchModel(msg.Model); err != nil {
			log.Debug("Model switch ignored", "error", err)
		}
	case protocol.EventResetConversation:
		if err := s.Reset(); err != nil {
			log.Debug("Reset ignored", "error", err)
		}
	default:
		log.Debug("Dropping unknown event", "event", env.Event)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, agent.ErrEmptyMessage):
		return "empty"
	case errors.Is(err, agent.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, session.ErrSessionBusy):
		return "busy"
	}
	return ""
}
