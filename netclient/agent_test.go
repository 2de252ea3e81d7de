package netclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"coopshooter/protocol"
)

var upgrader = websocket.Upgrader{}

// fakeServer accepts one connection, forwards every decoded message to recv
// and writes whatever is pushed on send.
type fakeServer struct {
	srv   *httptest.Server
	url   string
	recv  chan protocol.Message
	send  chan protocol.Message
	close chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		recv:  make(chan protocol.Message, 64),
		send:  make(chan protocol.Message, 64),
		close: make(chan struct{}),
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if m, err := protocol.Decode(data); err == nil {
					fs.recv <- m
				}
			}
		}()
		for {
			select {
			case m := <-fs.send:
				data, _ := protocol.Encode(m)
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-fs.close:
				return
			}
		}
	}))
	fs.url = "ws" + strings.TrimPrefix(fs.srv.URL, "http")
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) next(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case m := <-fs.recv:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client message")
		return nil
	}
}

func connect(t *testing.T, fs *fakeServer, opts Options) *Agent {
	t.Helper()
	a := New(opts)
	if err := a.Connect(context.Background(), fs.url); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	a := New(Options{DialTimeout: 500 * time.Millisecond})
	if err := a.Connect(context.Background(), url); err == nil {
		t.Fatal("expected connect error")
	}
	if a.Status().Connected {
		t.Error("agent reports connected after failed dial")
	}
}

func TestConnectTwice(t *testing.T) {
	fs := newFakeServer(t)
	a := connect(t, fs, Options{})
	if err := a.Connect(context.Background(), fs.url); err != ErrAlreadyConnected {
		t.Errorf("second connect err = %v, want ErrAlreadyConnected", err)
	}
}

func TestControlMessagesInOrder(t *testing.T) {
	fs := newFakeServer(t)
	a := connect(t, fs, Options{})

	a.ListLobbies()
	a.CreateLobby("Alice", "Alice's Game")
	a.Ready()

	want := []protocol.Message{
		protocol.ListLobbies{},
		protocol.CreateLobby{PlayerName: "Alice", LobbyName: "Alice's Game"},
		protocol.Ready{},
	}
	var got []protocol.Message
	for range want {
		got = append(got, fs.next(t))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestIntentCoalescing(t *testing.T) {
	fs := newFakeServer(t)
	a := connect(t, fs, Options{IntentRate: 10})

	a.SendIntent(1, 0, false)
	a.SendIntent(0, -1, false)
	a.SendIntent(-0.5, 0.5, true)

	if diff := cmp.Diff(protocol.Message(protocol.Input{DX: -0.5, DY: 0.5, Shoot: true}), fs.next(t)); diff != "" {
		t.Errorf("flushed intent (-want +got):\n%s", diff)
	}
	// Nothing new was set, so the next flushes stay silent.
	select {
	case m := <-fs.recv:
		t.Errorf("unexpected message %T after flush", m)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStatusAndWorldUpdates(t *testing.T) {
	fs := newFakeServer(t)
	a := connect(t, fs, Options{})

	members := []protocol.Member{{PlayerID: 2, Name: "Bob", Host: true}, {PlayerID: 3, Name: "Cy"}}
	fs.send <- protocol.LobbyJoined{LobbyID: "abcd1234", PlayerID: 3, Members: members}
	fs.send <- protocol.GameStart{ResumeToken: "tok"}
	fs.send <- protocol.State{Timer: 1, Enemies: []protocol.EnemyState{{ID: 4}, {ID: 5}}}
	fs.send <- protocol.State{Timer: 2, Enemies: []protocol.EnemyState{{ID: 5}}}

	eventually(t, "second state", func() bool { return a.World().Tick == 2 })
	if _, ok := a.World().Enemies[4]; ok {
		t.Error("enemy 4 not pruned")
	}
	st := a.Status()
	if st.LobbyID != "abcd1234" || st.PlayerID != 3 || !st.GameStarted || st.ResumeToken != "tok" {
		t.Errorf("status = %+v", st)
	}
	if st.Host() {
		t.Error("player 3 is not host")
	}

	fs.send <- protocol.GameOver{}
	eventually(t, "game over", func() bool { return a.Status().GameOver })
	if len(a.World().Enemies) != 0 {
		t.Error("world not cleared on match end")
	}
}

func TestMembershipMessages(t *testing.T) {
	fs := newFakeServer(t)
	a := connect(t, fs, Options{})

	fs.send <- protocol.LobbyCreated{LobbyID: "abcd1234", PlayerID: 1}
	fs.send <- protocol.PlayerJoined{PlayerID: 2, Name: "Bob"}
	eventually(t, "joined member", func() bool { return len(a.Status().Members) == 1 })

	fs.send <- protocol.PlayerLeft{PlayerID: 2}
	eventually(t, "member left", func() bool { return len(a.Status().Members) == 0 })

	fs.send <- protocol.LobbyError{Error: "lobby full"}
	eventually(t, "lobby error", func() bool { return a.Status().LobbyError == "lobby full" })
}

func TestServerCloseClearsCache(t *testing.T) {
	fs := newFakeServer(t)
	a := connect(t, fs, Options{})

	fs.send <- protocol.GameStart{ResumeToken: "tok"}
	fs.send <- protocol.State{Timer: 1, Players: []protocol.PlayerState{{ID: 1}}}
	eventually(t, "state", func() bool { return a.World().Tick == 1 })

	close(fs.close)
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not notice the disconnect")
	}
	eventually(t, "reset", func() bool { return !a.Status().Connected && len(a.World().Players) == 0 })
	if a.Status().ResumeToken != "tok" {
		t.Error("resume token should survive the disconnect")
	}
	if err := a.Ready(); err != ErrClosed {
		t.Errorf("Ready after close err = %v, want ErrClosed", err)
	}
}

func TestLeaveLobbyIgnoresLateState(t *testing.T) {
	fs := newFakeServer(t)
	a := connect(t, fs, Options{})

	fs.send <- protocol.GameStart{ResumeToken: "tok"}
	fs.send <- protocol.State{Timer: 1, Players: []protocol.PlayerState{{ID: 1}}}
	eventually(t, "state", func() bool { return a.World().Tick == 1 })

	if err := a.LeaveLobby(); err != nil {
		t.Fatalf("LeaveLobby: %v", err)
	}
	fs.send <- protocol.State{Timer: 2, Players: []protocol.PlayerState{{ID: 1}}}
	fs.send <- protocol.LobbyList{Lobbies: []protocol.LobbyInfo{{LobbyID: "next"}}}
	eventually(t, "lobby list", func() bool { return len(a.Status().Lobbies) == 1 })

	if w := a.World(); w.Tick != 0 || len(w.Players) != 0 {
		t.Errorf("late state restored the match: %+v", w)
	}
	if st := a.Status(); st.GameStarted || st.ResumeToken != "" {
		t.Errorf("status after leave = %+v", st)
	}
}
