// Package netclient is the client side of the game protocol. An Agent owns
// one WebSocket connection, coalesces movement intents and keeps a Cache of
// the latest authoritative state for a renderer to poll.
package netclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"coopshooter/protocol"
)

const (
	writeWait       = 5 * time.Second
	controlQueueLen = 64
)

var (
	ErrAlreadyConnected = errors.New("agent already connected")
	ErrClosed           = errors.New("agent closed")
	ErrQueueFull        = errors.New("control queue full")
)

// Options configure an Agent. Zero values fall back to defaults.
type Options struct {
	DialTimeout time.Duration
	IntentRate  int // intent flushes per second
	Logger      *zap.SugaredLogger
}

// Agent is a single-use connection to the game server.
type Agent struct {
	opts  Options
	log   *zap.SugaredLogger
	cache Cache

	control chan protocol.Message

	intentMu sync.Mutex
	intent   protocol.Input
	fresh    bool

	connMu    sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates an unconnected Agent.
func New(opts Options) *Agent {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.IntentRate <= 0 {
		opts.IntentRate = 30
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Agent{
		opts:    opts,
		log:     log,
		control: make(chan protocol.Message, controlQueueLen),
		done:    make(chan struct{}),
	}
}

// Connect dials url. It gives up after the dial timeout or when ctx ends,
// whichever comes first.
func (a *Agent) Connect(ctx context.Context, url string) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn != nil {
		return ErrAlreadyConnected
	}
	select {
	case <-a.done:
		return ErrClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.DialTimeout)
	defer cancel()
	dialer := websocket.Dialer{HandshakeTimeout: a.opts.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	a.conn = conn
	a.cache.update(func(s *Status) { s.Connected = true })
	a.log.Infow("Connected", "url", url)

	a.wg.Add(2)
	go a.readLoop(conn)
	go a.writeLoop(conn)
	return nil
}

// Done is closed once the connection is gone.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Close ends the connection and waits for the I/O goroutines to exit.
func (a *Agent) Close() {
	a.shutdown()
	a.wg.Wait()
}

func (a *Agent) shutdown() {
	a.closeOnce.Do(func() { close(a.done) })
}

// World returns the latest snapshot; safe from any goroutine.
func (a *Agent) World() *World { return a.cache.World() }

// Status returns the current session flags; safe from any goroutine.
func (a *Agent) Status() Status { return a.cache.Status() }

func (a *Agent) enqueue(m protocol.Message) error {
	select {
	case <-a.done:
		return ErrClosed
	default:
	}
	select {
	case a.control <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Agent) ListLobbies() error {
	return a.enqueue(protocol.ListLobbies{})
}

func (a *Agent) CreateLobby(playerName, lobbyName string) error {
	return a.enqueue(protocol.CreateLobby{PlayerName: playerName, LobbyName: lobbyName})
}

func (a *Agent) JoinLobby(playerName, lobbyID string) error {
	return a.enqueue(protocol.JoinLobby{PlayerName: playerName, LobbyID: lobbyID})
}

// LeaveLobby gives up the seat. The server does not confirm, so the local
// lobby and match state is dropped right away.
func (a *Agent) LeaveLobby() error {
	if err := a.enqueue(protocol.LeaveLobby{}); err != nil {
		return err
	}
	a.cache.leaveLobby()
	return nil
}

func (a *Agent) Ready() error {
	return a.enqueue(protocol.Ready{})
}

// Rejoin reclaims a seat with the token from an earlier GAME_START.
func (a *Agent) Rejoin(token string) error {
	return a.enqueue(protocol.Rejoin{Token: token})
}

// SendIntent replaces the pending intent. Only the latest intent set between
// two flushes goes out.
func (a *Agent) SendIntent(dx, dy float64, shoot bool) {
	a.intentMu.Lock()
	a.intent = protocol.Input{DX: dx, DY: dy, Shoot: shoot}
	a.fresh = true
	a.intentMu.Unlock()
}

func (a *Agent) takeIntent() (protocol.Input, bool) {
	a.intentMu.Lock()
	defer a.intentMu.Unlock()
	if !a.fresh {
		return protocol.Input{}, false
	}
	a.fresh = false
	return a.intent, true
}

func (a *Agent) writeLoop(conn *websocket.Conn) {
	defer a.wg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(a.opts.IntentRate))
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case m := <-a.control:
			if err := a.write(conn, m); err != nil {
				a.log.Warnw("Write failed", "type", m.MessageType(), "error", err)
				a.shutdown()
				return
			}
		case <-ticker.C:
			in, ok := a.takeIntent()
			if !ok {
				continue
			}
			if err := a.write(conn, in); err != nil {
				a.log.Warnw("Intent write failed", "error", err)
				a.shutdown()
				return
			}
		case <-a.done:
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
			return
		}
	}
}

func (a *Agent) write(conn *websocket.Conn, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (a *Agent) readLoop(conn *websocket.Conn) {
	defer func() {
		a.shutdown()
		a.cache.reset()
		a.wg.Done()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.log.Warnw("Connection lost", "error", err)
			} else {
				a.log.Infow("Disconnected", "reason", err)
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			a.log.Errorw("Bad message from server", "error", err)
			return
		}
		a.handle(msg)
	}
}

func (a *Agent) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.State:
		if !a.cache.applyMatchState(m) {
			a.log.Debugw("Dropping state outside a match", "timer", m.Timer)
		}
	case protocol.LobbyList:
		a.cache.update(func(s *Status) { s.Lobbies = m.Lobbies })
	case protocol.LobbyCreated:
		a.cache.update(func(s *Status) {
			s.LobbyID, s.PlayerID = m.LobbyID, m.PlayerID
			s.LobbyError = ""
		})
	case protocol.LobbyJoined:
		a.cache.update(func(s *Status) {
			s.LobbyID, s.PlayerID, s.Members = m.LobbyID, m.PlayerID, m.Members
			s.LobbyError = ""
		})
	case protocol.LobbyUpdate:
		a.cache.update(func(s *Status) { s.Members = m.Members })
	case protocol.LobbyError:
		a.cache.update(func(s *Status) { s.LobbyError = m.Error })
	case protocol.PlayerJoined:
		a.cache.update(func(s *Status) {
			if slices.ContainsFunc(s.Members, func(mm protocol.Member) bool { return mm.PlayerID == m.PlayerID }) {
				return
			}
			members := slices.Clone(s.Members)
			s.Members = append(members, protocol.Member{PlayerID: m.PlayerID, Name: m.Name})
		})
	case protocol.PlayerLeft:
		a.cache.update(func(s *Status) {
			s.Members = slices.DeleteFunc(slices.Clone(s.Members), func(mm protocol.Member) bool {
				return mm.PlayerID == m.PlayerID
			})
		})
	case protocol.GameStart:
		a.cache.update(func(s *Status) {
			s.GameStarted = true
			s.GameOver, s.Victory = false, false
			s.GameOverReason = ""
			if m.ResumeToken != "" {
				s.ResumeToken = m.ResumeToken
			}
		})
	case protocol.GameOver:
		a.cache.clearWorld()
		a.cache.update(func(s *Status) {
			s.GameOver = true
			s.GameOverReason = m.Reason
		})
	case protocol.Victory:
		a.cache.clearWorld()
		a.cache.update(func(s *Status) { s.Victory = true })
	default:
		a.log.Debugw("Ignoring message", "type", msg.MessageType())
	}
}
