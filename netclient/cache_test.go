package netclient

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"coopshooter/protocol"
)

func TestApplyStatePrunesMissingHandles(t *testing.T) {
	var c Cache
	c.applyState(protocol.State{
		Timer:   1,
		Players: []protocol.PlayerState{{ID: 1, PlayerID: 1, HP: 100, Alive: true}},
		Enemies: []protocol.EnemyState{{ID: 5, Kind: "drone"}, {ID: 6, Kind: "gunship"}},
	})
	first := c.World()
	if len(first.Enemies) != 2 {
		t.Fatalf("expected 2 enemies, got %d", len(first.Enemies))
	}

	c.applyState(protocol.State{
		Timer:   2,
		Players: []protocol.PlayerState{{ID: 1, PlayerID: 1, HP: 90, Alive: true}},
		Enemies: []protocol.EnemyState{{ID: 6, Kind: "gunship"}},
	})
	w := c.World()
	if w.Tick != 2 {
		t.Errorf("tick = %d, want 2", w.Tick)
	}
	if _, ok := w.Enemies[5]; ok {
		t.Error("enemy 5 should have been pruned")
	}
	if w.Players[1].HP != 90 {
		t.Errorf("player hp = %d, want 90", w.Players[1].HP)
	}
	// A reader holding the old world still sees it unchanged.
	if len(first.Enemies) != 2 || first.Players[1].HP != 100 {
		t.Error("published world was mutated")
	}
}

func TestWorldNeverNil(t *testing.T) {
	var c Cache
	if c.World() == nil {
		t.Fatal("World() returned nil on empty cache")
	}
	c.applyState(protocol.State{Timer: 3})
	c.clearWorld()
	if w := c.World(); w == nil || w.Tick != 0 || len(w.Players) != 0 {
		t.Errorf("cleared world = %+v", w)
	}
}

func TestStatusCopyOnWrite(t *testing.T) {
	var c Cache
	c.update(func(s *Status) {
		s.Members = []protocol.Member{{PlayerID: 1, Name: "Alice", Host: true}}
		s.PlayerID = 1
	})
	before := c.Status()

	c.update(func(s *Status) { s.Members = nil; s.LobbyError = "lobby full" })

	if diff := cmp.Diff([]protocol.Member{{PlayerID: 1, Name: "Alice", Host: true}}, before.Members); diff != "" {
		t.Errorf("earlier status changed (-want +got):\n%s", diff)
	}
	if !before.Host() {
		t.Error("expected host in earlier status")
	}
	if got := c.Status(); got.LobbyError != "lobby full" || got.Members != nil {
		t.Errorf("status = %+v", got)
	}
}

func TestResetKeepsResumeToken(t *testing.T) {
	var c Cache
	c.applyState(protocol.State{Timer: 9, Players: []protocol.PlayerState{{ID: 1}}})
	c.update(func(s *Status) {
		s.Connected = true
		s.LobbyID = "abcd1234"
		s.GameStarted = true
		s.ResumeToken = "tok"
	})

	c.reset()

	if diff := cmp.Diff(Status{ResumeToken: "tok"}, c.Status()); diff != "" {
		t.Errorf("status after reset (-want +got):\n%s", diff)
	}
	if len(c.World().Players) != 0 {
		t.Error("world not cleared")
	}
}

func TestApplyMatchStateOnlyDuringMatch(t *testing.T) {
	var c Cache
	if c.applyMatchState(protocol.State{Timer: 1}) {
		t.Error("state applied before GAME_START")
	}
	c.update(func(s *Status) { s.GameStarted = true })
	if !c.applyMatchState(protocol.State{Timer: 2}) || c.World().Tick != 2 {
		t.Fatalf("state not applied during match, tick = %d", c.World().Tick)
	}

	c.leaveLobby()
	if c.applyMatchState(protocol.State{Timer: 3}) {
		t.Error("state applied after leaving")
	}
	if w := c.World(); w.Tick != 0 {
		t.Errorf("world after leaving has tick %d", w.Tick)
	}
}
