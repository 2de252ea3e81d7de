package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"coopshooter/protocol"
)

var errHubStopped = errors.New("hub stopped")

// hubEvent is one thing that happened on a connection, in the order the
// connection's read pump observed it.
type hubEvent struct {
	client *Client
	msg    protocol.Message
	join   bool
	leave  bool
}

// Hub owns the registry and runs the single event loop that serializes
// every lobby and game mutation with the tick scheduler.
type Hub struct {
	cfg       *Config
	registry  *LobbyRegistry
	scheduler *Scheduler
	metrics   *TickMetrics
	analytics *Analytics

	events  chan hubEvent
	queries chan func()
	stopped chan struct{}
	nextID  atomic.Uint64
	// clients is only touched by Run.
	clients map[uint64]*Client

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a Hub around registry. analytics may be nil.
func NewHub(cfg *Config, registry *LobbyRegistry, metrics *TickMetrics, analytics *Analytics) *Hub {
	if metrics == nil {
		metrics = &TickMetrics{}
	}
	return &Hub{
		cfg:       cfg,
		registry:  registry,
		scheduler: NewScheduler(registry, metrics),
		metrics:   metrics,
		analytics: analytics,
		events:    make(chan hubEvent, 256),
		queries:   make(chan func()),
		stopped:   make(chan struct{}),
		clients:   make(map[uint64]*Client),
		ipConns:   make(map[string]int),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.cfg.Server.MaxTotalConns > 0 && h.totalConns >= h.cfg.Server.MaxTotalConns {
		return false
	}
	if h.cfg.Server.MaxConnsPerIP > 0 && h.ipConns[ip] >= h.cfg.Server.MaxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

// NextConnID hands out connection ids, starting at 1.
func (h *Hub) NextConnID() uint64 {
	return h.nextID.Add(1)
}

// Run processes connection events, queries and scheduler ticks until ctx
// is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	ticker := time.NewTicker(h.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case ev := <-h.events:
			h.handle(ev)
		case q := <-h.queries:
			q()
		case <-ticker.C:
			h.scheduler.Tick()
		case <-ctx.Done():
			for _, c := range h.clients {
				c.Close()
			}
			Log.Infow("Hub stopped", "clients", len(h.clients), "lobbies", h.registry.LobbyCount())
			return
		}
	}
}

func (h *Hub) handle(ev hubEvent) {
	c := ev.client
	switch {
	case ev.join:
		h.clients[c.ID()] = c
		h.analytics.Track(EvtConnect, 0, "", "")
	case ev.leave:
		if _, ok := h.clients[c.ID()]; !ok {
			return
		}
		delete(h.clients, c.ID())
		h.registry.Disconnect(c)
		h.analytics.Track(EvtDisconnect, 0, "", "")
	default:
		h.dispatch(c, ev.msg)
	}
}

// dispatch routes one client message to the registry. Registry errors are
// answered with LOBBY_ERROR; the connection stays open.
func (h *Hub) dispatch(c Conn, msg protocol.Message) {
	var err error
	switch m := msg.(type) {
	case protocol.ListLobbies:
		c.Send(protocol.LobbyList{Lobbies: h.registry.List()})
	case protocol.CreateLobby:
		err = h.registry.Create(c, m.PlayerName, m.LobbyName)
	case protocol.JoinLobby:
		err = h.registry.Join(c, m.LobbyID, m.PlayerName)
	case protocol.LeaveLobby:
		err = h.registry.Leave(c)
	case protocol.Ready:
		err = h.registry.Ready(c)
	case protocol.Input:
		h.registry.Input(c, m)
	case protocol.Rejoin:
		err = h.registry.Rejoin(c, m.Token)
	default:
		Log.Warnw("Unroutable message", "conn", c.ID(), "type", msg.MessageType())
	}
	if err != nil {
		Log.Debugw("Lobby request failed", "conn", c.ID(), "type", msg.MessageType(), "error", err)
		c.Send(errorMessage(err))
	}
}

// join announces a new connection to the loop.
func (h *Hub) join(c *Client) bool {
	return h.post(hubEvent{client: c, join: true})
}

// deliver hands a decoded message to the loop. It returns false once the hub
// has stopped.
func (h *Hub) deliver(c *Client, msg protocol.Message) bool {
	return h.post(hubEvent{client: c, msg: msg})
}

// leave announces that c's transport is gone.
func (h *Hub) leave(c *Client) {
	h.post(hubEvent{client: c, leave: true})
}

func (h *Hub) post(ev hubEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.stopped:
		return false
	}
}

// query runs fn on the loop goroutine and returns its result.
func query[T any](ctx context.Context, h *Hub, fn func() T) (T, error) {
	var zero T
	result := make(chan T, 1)
	select {
	case h.queries <- func() { result <- fn() }:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.stopped:
		return zero, errHubStopped
	}
	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Lobbies returns every lobby, open or in game.
func (h *Hub) Lobbies(ctx context.Context) ([]protocol.LobbyInfo, error) {
	return query(ctx, h, h.registry.All)
}

// LobbyExists reports whether a lobby with id is currently open or running.
func (h *Hub) LobbyExists(ctx context.Context, id string) (bool, error) {
	return query(ctx, h, func() bool {
		_, ok := h.registry.Lobby(id)
		return ok
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount(ctx context.Context) (int, error) {
	return query(ctx, h, func() int { return len(h.clients) })
}
