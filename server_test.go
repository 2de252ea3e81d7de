package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"coopshooter/protocol"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server with a running Hub and returns
// the server and its WebSocket URL.
func startTestServer(t *testing.T) (*httptest.Server, string, *Hub) {
	t.Helper()
	return startTestServerWith(t, nil, nil)
}

// startTestServerWith is startTestServer with match history and analytics.
func startTestServerWith(t *testing.T, db *DB, analytics *Analytics) (*httptest.Server, string, *Hub) {
	t.Helper()
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	registry := NewLobbyRegistry(RegistryConfig{
		MaxLobbies: cfg.Game.MaxLobbies,
		TickRate:   cfg.Game.TickRate,
		Engine:     NewWorld,
		Resume:     NewResumeTokens(testSecret, cfg.Game.ResumeWindow),
		Analytics:  analytics,
	})
	hub := NewHub(cfg, registry, nil, analytics)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(SetupRoutes(hub, cfg, db))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", hub
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ protocol.Type) protocol.Message {
	t.Helper()
	for i := 0; i < 500; i++ {
		if msg := readMsg(t, conn); msg.MessageType() == typ {
			return msg
		}
	}
	t.Fatalf("no %s message", typ)
	return nil
}

// ---------- websocket ----------

func TestWebSocketMatchFlow(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	alice := dialWS(t, wsURL)
	bob := dialWS(t, wsURL)

	sendMsg(t, alice, protocol.CreateLobby{PlayerName: "Alice", LobbyName: "Alice's Game"})
	created := readUntil(t, alice, protocol.TypeLobbyCreated).(protocol.LobbyCreated)
	if created.PlayerID != 1 {
		t.Errorf("creator player id = %d, want 1", created.PlayerID)
	}
	x := created.LobbyID

	sendMsg(t, bob, protocol.ListLobbies{})
	list := readUntil(t, bob, protocol.TypeLobbyList).(protocol.LobbyList)
	want := []protocol.LobbyInfo{{LobbyID: x, Name: "Alice's Game", HostName: "Alice", PlayerCount: 1, MaxPlayers: 2}}
	if diff := cmp.Diff(want, list.Lobbies); diff != "" {
		t.Errorf("lobby list (-want +got):\n%s", diff)
	}

	sendMsg(t, bob, protocol.JoinLobby{PlayerName: "Bob", LobbyID: x})
	joined := readUntil(t, bob, protocol.TypeLobbyJoined).(protocol.LobbyJoined)
	if joined.LobbyID != x || joined.PlayerID != 2 || len(joined.Members) != 2 {
		t.Errorf("unexpected %+v", joined)
	}
	pj := readUntil(t, alice, protocol.TypePlayerJoined)
	if pj != (protocol.PlayerJoined{PlayerID: 2, Name: "Bob"}) {
		t.Errorf("unexpected %+v", pj)
	}

	sendMsg(t, alice, protocol.Ready{})
	sendMsg(t, bob, protocol.Ready{})
	start := readUntil(t, alice, protocol.TypeGameStart).(protocol.GameStart)
	if start.ResumeToken == "" {
		t.Error("GAME_START without resume token")
	}
	readUntil(t, bob, protocol.TypeGameStart)

	sendMsg(t, alice, protocol.Input{DX: 1, Shoot: true})
	var last uint64
	for i := 0; i < 5; i++ {
		st := readUntil(t, alice, protocol.TypeState).(protocol.State)
		if last != 0 && st.Timer != last+1 {
			t.Errorf("timer went from %d to %d", last, st.Timer)
		}
		last = st.Timer
		if len(st.Players) != 2 {
			t.Errorf("expected 2 players in state, got %d", len(st.Players))
		}
	}
}

func TestWebSocketLobbyErrorKeepsConnection(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	sendMsg(t, conn, protocol.JoinLobby{PlayerName: "Bob", LobbyID: "missing"})
	if got := readMsg(t, conn); got != (protocol.LobbyError{Error: "lobby not found"}) {
		t.Errorf("expected lobby not found, got %#v", got)
	}
	sendMsg(t, conn, protocol.ListLobbies{})
	readUntil(t, conn, protocol.TypeLobbyList)
}

func TestWebSocketProtocolErrorCloses(t *testing.T) {
	for name, payload := range map[string]string{
		"garbage":      "not json",
		"unknown type": `{"t":"DANCE"}`,
		"server type":  `{"t":"VICTORY"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, wsURL, _ := startTestServer(t)
			conn := dialWS(t, wsURL)
			conn.WriteMessage(websocket.TextMessage, []byte(payload))

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := conn.ReadMessage()
			if !websocket.IsCloseError(err, websocket.CloseProtocolError) {
				t.Errorf("expected protocol error close, got %v", err)
			}
		})
	}
}

func TestWebSocketDisconnectDeletesLobby(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	alice := dialWS(t, wsURL)
	bob := dialWS(t, wsURL)

	sendMsg(t, alice, protocol.CreateLobby{PlayerName: "Alice"})
	x := readUntil(t, alice, protocol.TypeLobbyCreated).(protocol.LobbyCreated).LobbyID
	alice.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sendMsg(t, bob, protocol.ListLobbies{})
		list := readUntil(t, bob, protocol.TypeLobbyList).(protocol.LobbyList)
		found := false
		for _, l := range list.Lobbies {
			if l.LobbyID == x {
				found = true
			}
		}
		if !found {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("lobby still listed after its only member disconnected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubClientCount(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	dialWS(t, wsURL)
	dialWS(t, wsURL)

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := hub.ClientCount(context.Background())
		if err != nil {
			t.Fatalf("client count: %v", err)
		}
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hub.TotalConns() != 2 {
		t.Errorf("tracked connections = %d", hub.TotalConns())
	}
}

// ---------- http ----------

func TestHealthz(t *testing.T) {
	srv, _, _ := startTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestLobbiesEndpointAndInvite(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)
	sendMsg(t, conn, protocol.CreateLobby{PlayerName: "Alice"})
	x := readUntil(t, conn, protocol.TypeLobbyCreated).(protocol.LobbyCreated).LobbyID

	resp, err := http.Get(srv.URL + "/api/lobbies")
	if err != nil {
		t.Fatalf("GET /api/lobbies: %v", err)
	}
	var body struct {
		Lobbies []protocol.LobbyInfo `json:"lobbies"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Lobbies) != 1 || body.Lobbies[0].LobbyID != x || body.Lobbies[0].Name != "Alice's Game" {
		t.Errorf("lobbies = %+v", body.Lobbies)
	}

	resp, err = http.Get(srv.URL + "/api/lobbies/" + x + "/invite")
	if err != nil {
		t.Fatalf("GET invite: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("invite: status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(srv.URL + "/api/lobbies/nope/invite")
	if err != nil {
		t.Fatalf("GET invite: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown lobby invite: status %d", resp.StatusCode)
	}
}

func TestMatchesAndMetricsEndpoints(t *testing.T) {
	srv, _, _ := startTestServer(t)

	for _, path := range []string{"/api/matches", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var body map[string]any
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d, err %v", path, resp.StatusCode, err)
		}
		if len(body) == 0 {
			t.Errorf("%s: empty body", path)
		}
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestMetricsCountProtocolErrors(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	analytics := NewAnalytics(db)
	srv, wsURL, _ := startTestServerWith(t, db, analytics)

	conn := dialWS(t, wsURL)
	conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"READY"}}`))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseProtocolError) {
		t.Fatalf("expected protocol error close, got %v", err)
	}
	// Stop flushes the queued events.
	analytics.Stop()

	var body struct {
		Events map[string]int `json:"events"`
	}
	getJSON(t, srv.URL+"/metrics", &body)
	if body.Events[EvtProtocolError] != 1 {
		t.Errorf("events = %v, want one %s", body.Events, EvtProtocolError)
	}
}

func TestMatchesEndpointReportsOutcomes(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "matches.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	for _, outcome := range []Outcome{OutcomeVictory, OutcomeDefeat, OutcomeVictory} {
		rec := MatchRecord{LobbyID: "abcd1234", Outcome: outcome.String(), EndedAt: time.Now().UTC()}
		if _, err := db.SaveMatch(rec); err != nil {
			t.Fatalf("save match: %v", err)
		}
	}
	srv, _, _ := startTestServerWith(t, db, nil)

	var body struct {
		Matches  []json.RawMessage `json:"matches"`
		Outcomes map[string]int    `json:"outcomes"`
	}
	getJSON(t, srv.URL+"/api/matches", &body)
	if len(body.Matches) != 3 {
		t.Errorf("got %d matches, want 3", len(body.Matches))
	}
	want := map[string]int{"victory": 2, "defeat": 1}
	if diff := cmp.Diff(want, body.Outcomes); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}
