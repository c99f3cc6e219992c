package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"go.uber.org/zap"
)

// Sender is the authenticated author of inbound events.
type Sender struct {
	ID   identity.ID
	Name string
}

// MessageHandler takes over a validated new-message event.
type MessageHandler interface {
	HandleMessage(ctx context.Context, from Sender, p NewMessagePayload) error
}

// Hub owns the connection registry and the presence set and routes inbound
// events. Each connection calls HandleFrame from its own read loop, so events
// of one connection are handled in order.
type Hub struct {
	registry   *Registry
	presence   *Presence
	dispatcher *Dispatcher
	messages   MessageHandler
	logger     *zap.Logger

	mu      sync.Mutex
	live    map[string]Conn // every open connection, displaced ones included
	closing bool
	readers sync.WaitGroup
}

// ErrShuttingDown is returned by Serve once Shutdown has started.
var ErrShuttingDown = errors.New("hub is shutting down")

func NewHub(registry *Registry, presence *Presence, dispatcher *Dispatcher, messages MessageHandler, logger *zap.Logger) *Hub {
	return &Hub{
		registry:   registry,
		presence:   presence,
		dispatcher: dispatcher,
		messages:   messages,
		logger:     logger.Named("hub"),
		live:       make(map[string]Conn),
	}
}

// Serve connects c and runs read on its own goroutine. Shutdown waits for
// every read started here, so no inbound event is still being handled once it
// returns.
func (h *Hub) Serve(c Conn, read func()) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return ErrShuttingDown
	}
	h.readers.Add(1)
	h.mu.Unlock()

	h.Connect(c)
	go func() {
		defer h.readers.Done()
		read()
	}()
	return nil
}

// Connect makes c the current connection of its identity. A previous
// connection for the same identity stays open but no longer receives events.
func (h *Hub) Connect(c Conn) {
	h.mu.Lock()
	h.live[c.ID()] = c
	h.mu.Unlock()

	if prev := h.registry.Register(c.Identity(), c); prev != nil {
		h.logger.Info("identity reconnected",
			zap.String("identity", string(c.Identity())),
			zap.String("conn", c.ID()),
			zap.String("displaced", prev.ID()),
		)
		return
	}
	h.logger.Debug("connected", zap.String("identity", string(c.Identity())), zap.String("conn", c.ID()))
}

// Disconnect releases c. If c was still current its identity goes offline
// and every other connection gets the new online list.
func (h *Hub) Disconnect(c Conn) {
	h.mu.Lock()
	delete(h.live, c.ID())
	h.mu.Unlock()

	id := c.Identity()
	if !h.registry.Release(id, c) {
		h.logger.Debug("stale connection closed", zap.String("identity", string(id)), zap.String("conn", c.ID()))
		return
	}
	h.presence.MarkLeft(id)
	h.dispatcher.BroadcastExcept(id, EventOnlineUsers, h.presence.Snapshot())
	h.logger.Debug("disconnected", zap.String("identity", string(id)), zap.String("conn", c.ID()))
}

// HandleFrame routes one inbound frame. Rejections are logged and answered
// with an error event on c.
func (h *Hub) HandleFrame(ctx context.Context, c Conn, from Sender, frame []byte) {
	event, payload, err := sniff(frame)
	if err != nil {
		h.reject(c, "", apperr.Invalid(err.Error()))
		return
	}

	switch event {
	case EventNewMessage:
		var p NewMessagePayload
		if err := decode(payload, &p); err != nil {
			h.reject(c, event, err)
			return
		}
		if err := h.messages.HandleMessage(ctx, from, p); err != nil {
			h.reject(c, event, err)
		}

	case EventStartTyping, EventStopTyping:
		var p TypingPayload
		if err := decode(payload, &p); err != nil {
			h.reject(c, event, err)
			return
		}
		h.dispatcher.DeliverExcept(c.Identity(), p.Members, event, ChatRef{ChatID: p.ChatID})

	case EventChatJoined, EventChatLeaved:
		var p MembershipPayload
		if err := decode(payload, &p); err != nil {
			h.reject(c, event, err)
			return
		}
		if p.UserID != c.Identity() {
			h.reject(c, event, apperr.Forbidden("userId does not match the connection"))
			return
		}
		if event == EventChatJoined {
			h.presence.MarkJoined(p.UserID)
		} else {
			h.presence.MarkLeft(p.UserID)
		}
		h.dispatcher.Deliver(p.Members, EventOnlineUsers, h.presence.Snapshot())

	default:
		h.reject(c, event, apperr.Invalid(fmt.Sprintf("unknown event %q", event)))
	}
}

func (h *Hub) reject(c Conn, event string, err error) {
	h.logger.Warn("rejected inbound event",
		zap.String("event", event),
		zap.String("identity", string(c.Identity())),
		zap.Error(err),
	)
	frame, encErr := Encode(EventError, ErrorPayload{Message: apperr.PublicMessage(err)})
	if encErr != nil {
		return
	}
	c.Send(frame)
}

// Online returns the sorted presence snapshot.
func (h *Hub) Online() []identity.ID { return h.presence.Snapshot() }

func (h *Hub) IsConnected(id identity.ID) bool { return h.registry.IsConnected(id) }

// Shutdown closes every open connection and waits until the reads started by
// Serve have returned, or ctx ends.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]Conn, 0, len(h.live))
	for _, c := range h.live {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}

func decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return apperr.Invalid("missing payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Invalid("malformed payload")
	}
	return web.Validate(v)
}
