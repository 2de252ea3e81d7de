package main

import (
	"path/filepath"
	"testing"

	"coopshooter/protocol"
)

func stateTimers(c *recordingConn) []uint64 {
	var timers []uint64
	for _, m := range c.messages {
		if st, ok := m.(protocol.State); ok {
			timers = append(timers, st.Timer)
		}
	}
	return timers
}

func TestSchedulerBroadcastsIncreasingTimers(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, alice, bob := startedLobby(t, r)
	s := NewScheduler(r, nil)

	for i := 0; i < 5; i++ {
		s.Tick()
	}
	for _, c := range []*recordingConn{alice, bob} {
		timers := stateTimers(c)
		if len(timers) != 5 {
			t.Fatalf("conn %d got %d states, want 5", c.id, len(timers))
		}
		for i, v := range timers {
			if v != uint64(i+1) {
				t.Errorf("conn %d state %d timer = %d", c.id, i, v)
			}
		}
	}
}

func TestSchedulerSingleTerminalBroadcast(t *testing.T) {
	f := &fakeFactory{script: func(_ int, e *fakeEngine) { e.defeatAt = 3 }}
	r := newTestRegistry(t, f)
	_, alice, bob := startedLobby(t, r)
	metrics := &TickMetrics{}
	s := NewScheduler(r, metrics)

	for i := 0; i < 10; i++ {
		s.Tick()
	}
	for _, c := range []*recordingConn{alice, bob} {
		if n := c.count(protocol.TypeGameOver); n != 1 {
			t.Errorf("conn %d got %d GAME_OVER", c.id, n)
		}
		if n := len(stateTimers(c)); n != 3 {
			t.Errorf("conn %d got %d states after conclusion at tick 3", c.id, n)
		}
		if last := c.messages[len(c.messages)-1]; last.MessageType() != protocol.TypeGameOver {
			t.Errorf("last message is %s", last.MessageType())
		}
	}
	if f.engines[0].steps != 3 {
		t.Errorf("concluded engine stepped %d times", f.engines[0].steps)
	}
	if metrics.MatchesConcluded.Load() != 1 || metrics.SessionSteps.Load() != 3 {
		t.Errorf("metrics = %v", metrics.Snapshot())
	}
}

func TestSchedulerIsolatesEngineFailure(t *testing.T) {
	f := &fakeFactory{script: func(n int, e *fakeEngine) {
		if n == 0 {
			e.failAt = 2
		}
	}}
	r := newTestRegistry(t, f)
	_, a1, b1 := startedLobby(t, r)

	c := []*recordingConn{{id: 3}, {id: 4}}
	id := createLobby(t, r, c[0], "Cy")
	r.Join(c[1], id, "Di")
	r.Ready(c[0])
	r.Ready(c[1])
	c[0].take()
	c[1].take()

	metrics := &TickMetrics{}
	s := NewScheduler(r, metrics)
	for i := 0; i < 6; i++ {
		s.Tick()
	}

	for _, cc := range []*recordingConn{a1, b1} {
		var over []protocol.Message
		for _, m := range cc.messages {
			if m.MessageType() == protocol.TypeGameOver {
				over = append(over, m)
			}
		}
		if len(over) != 1 || over[0] != (protocol.GameOver{Reason: engineFailureReason}) {
			t.Errorf("conn %d terminal messages: %v", cc.id, over)
		}
		if n := len(stateTimers(cc)); n != 1 {
			t.Errorf("conn %d got %d states, want 1", cc.id, n)
		}
	}
	for _, cc := range c {
		if n := len(stateTimers(cc)); n != 6 {
			t.Errorf("healthy lobby conn %d got %d states, want 6", cc.id, n)
		}
		if cc.count(protocol.TypeGameOver) != 0 {
			t.Errorf("healthy lobby conn %d saw GAME_OVER", cc.id)
		}
	}
	if metrics.EngineFailures.Load() != 1 {
		t.Errorf("engine failures = %d", metrics.EngineFailures.Load())
	}
}

func TestSchedulerVictory(t *testing.T) {
	f := &fakeFactory{script: func(_ int, e *fakeEngine) { e.victoryAt = 1 }}
	r := newTestRegistry(t, f)
	id, alice, _ := startedLobby(t, r)
	s := NewScheduler(r, nil)
	s.Tick()
	s.Tick()

	if alice.count(protocol.TypeVictory) != 1 {
		t.Error("expected one VICTORY")
	}
	// Concluded lobbies stay around until they empty.
	if _, ok := r.Lobby(id); !ok {
		t.Error("concluded lobby removed")
	}
	if len(r.runningGames()) != 0 {
		t.Error("concluded game still running")
	}
}

func TestSchedulerRecordsMatch(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "matches.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	analytics := NewAnalytics(db)

	f := &fakeFactory{script: func(_ int, e *fakeEngine) { e.defeatAt = 4 }}
	r := NewLobbyRegistry(RegistryConfig{Engine: f.New, Analytics: analytics})
	id, _, _ := startedLobby(t, r)
	s := NewScheduler(r, nil)
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	analytics.Stop()

	matches, err := db.RecentMatches(5)
	if err != nil {
		t.Fatalf("recent matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.LobbyID != id || m.Outcome != "defeat" || m.Ticks != 4 || len(m.Players) != 2 {
		t.Errorf("unexpected record %+v", m)
	}
	if m.Players[0].Stats.ShotsFired != 4 || !m.Players[0].Survived {
		t.Errorf("player summary %+v", m.Players[0])
	}

	counts, err := db.OutcomeCounts()
	if err != nil || counts["defeat"] != 1 {
		t.Errorf("outcome counts %v, %v", counts, err)
	}
}
