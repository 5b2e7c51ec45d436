package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/miniexplorer/internal/engine"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
	maxCommand    = 4 << 10
)

// Controller is the part of the engine browsers may drive.
type Controller interface {
	EnterMode(ctx context.Context, mode engine.Mode, facing camera.Facing) error
	StartAfterUserGesture(ctx context.Context) error
	Stop()
	Status() engine.Status
}

var _ Controller = (*engine.Engine)(nil)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithBuffer sets the per-client queue length. A client that falls further
// behind misses events rather than stalling the engine.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns allows cross-origin browsers matching patterns, as in
// [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = append(h.origins, patterns...) }
}

// Hub serves the UI WebSocket. It implements [engine.Observer]: every event
// is encoded once and queued to every connected client without blocking.
type Hub struct {
	ctrl    Controller
	buffer  int
	origins []string

	mu      sync.Mutex
	clients map[*client]struct{}
	dropped int
}

type client struct {
	send chan []byte
}

var _ engine.Observer = (*Hub)(nil)

// NewHub returns a hub dispatching commands to ctrl.
func NewHub(ctrl Controller, opts ...HubOption) *Hub {
	h := &Hub{
		ctrl:    ctrl,
		buffer:  defaultBuffer,
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// OnEvent implements [engine.Observer].
func (h *Hub) OnEvent(ev engine.Event) {
	h.broadcast(FromEvent(ev))
}

func (h *Hub) broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("ui: encode event", "type", m.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("ui: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxCommand)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{send: make(chan []byte, h.buffer)}
	c.queue(h.snapshot())
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()
	slog.Debug("ui: client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, c)
	}()

	err = h.readLoop(ctx, conn, c)
	cancel()
	<-done

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "bye")
	case websocket.CloseStatus(err) != -1:
		// Client closed.
	default:
		slog.Debug("ui: client read failed", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "read failed")
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, c *client) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.queue(ack("", err))
			continue
		}
		if cmd.Cmd == "status" {
			c.queue(h.snapshot())
			continue
		}
		c.queue(ack(cmd.Cmd, h.Dispatch(ctx, cmd)))
	}
}

// Dispatch runs one command against the controller.
func (h *Hub) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Cmd {
	case "enter":
		mode, err := engine.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		var facing camera.Facing
		if cmd.Facing != "" {
			if facing, err = camera.ParseFacing(cmd.Facing); err != nil {
				return err
			}
		}
		return h.ctrl.EnterMode(ctx, mode, facing)
	case "start":
		// The click that sent this command is the user gesture.
		return h.ctrl.StartAfterUserGesture(ctx)
	case "stop":
		h.ctrl.Stop()
		return nil
	default:
		return fmt.Errorf("ui: unknown command %q", cmd.Cmd)
	}
}

func (h *Hub) snapshot() Message {
	return Message{Type: TypeStatus, At: time.Now(), Status: FromStatus(h.ctrl.Status())}
}

func ack(cmd string, err error) Message {
	m := Message{Type: TypeAck, Cmd: cmd, At: time.Now()}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// queue enqueues m without blocking; a full queue drops it.
func (c *client) queue(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
