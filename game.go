package main

import (
	"fmt"
	"sort"
	"time"

	"coopshooter/protocol"
)

// Outcome is how a game session ended, if it has.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDefeat
	OutcomeVictory
	OutcomeFailed
	// OutcomeAbandoned marks a match whose lobby emptied before it concluded.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "running"
	case OutcomeDefeat:
		return "defeat"
	case OutcomeVictory:
		return "victory"
	case OutcomeFailed:
		return "failed"
	case OutcomeAbandoned:
		return "abandoned"
	}
	return "unknown"
}

const engineFailureReason = "simulation failure"

// GameSession is the simulation of one started lobby: the engine, the tick
// counter and the latest intent of every seated player. It is only touched
// from the hub goroutine.
type GameSession struct {
	LobbyID   string
	StartedAt time.Time

	players []PlayerSlot
	engine  SimulationEngine
	intents map[protocol.PlayerID]Intent
	tick    uint64
	outcome Outcome
	err     error
	last    Snapshot
}

// NewGameSession builds the engine for players, who must already be in
// spawn-slot order.
func NewGameSession(lobbyID string, players []PlayerSlot, factory EngineFactory, seed int64, tickRate int) (*GameSession, error) {
	engine, err := factory(EngineConfig{
		Players:  players,
		Handles:  &HandleAllocator{},
		Seed:     seed,
		TickRate: tickRate,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine for lobby %s: %w", lobbyID, err)
	}
	return &GameSession{
		LobbyID:   lobbyID,
		StartedAt: time.Now(),
		players:   players,
		engine:    engine,
		intents:   make(map[protocol.PlayerID]Intent, len(players)),
	}, nil
}

// SetIntent replaces the latest intent of pid. Intents for players outside
// the roster are ignored.
func (s *GameSession) SetIntent(pid protocol.PlayerID, in Intent) {
	for _, p := range s.players {
		if p.PlayerID == pid {
			s.intents[pid] = in
			return
		}
	}
}

// ClearIntent resets pid to the neutral intent.
func (s *GameSession) ClearIntent(pid protocol.PlayerID) {
	delete(s.intents, pid)
}

// Tick is the number of completed steps.
func (s *GameSession) Tick() uint64 { return s.tick }

// Outcome reports how the session ended, or OutcomeNone while running.
func (s *GameSession) Outcome() Outcome { return s.outcome }

// Concluded reports whether a terminal message has been produced.
func (s *GameSession) Concluded() bool { return s.outcome != OutcomeNone }

// Err is the engine failure that ended the session, if any.
func (s *GameSession) Err() error { return s.err }

// Players returns the roster in spawn-slot order.
func (s *GameSession) Players() []PlayerSlot { return s.players }

// LastSnapshot is the snapshot produced by the most recent successful step.
func (s *GameSession) LastSnapshot() Snapshot { return s.last }

// Step advances the engine by one tick. Players for whom live returns false
// contribute the neutral intent. On success the tick counter is incremented
// and the broadcast state is returned.
func (s *GameSession) Step(live func(protocol.PlayerID) bool) (protocol.State, error) {
	if s.Concluded() {
		return protocol.State{}, fmt.Errorf("lobby %s: step after conclusion", s.LobbyID)
	}
	inputs := make(map[protocol.PlayerID]Intent, len(s.players))
	for _, p := range s.players {
		if live(p.PlayerID) {
			inputs[p.PlayerID] = s.intents[p.PlayerID]
		} else {
			inputs[p.PlayerID] = Intent{}
		}
	}
	snap, err := s.advance(inputs)
	if err != nil {
		return protocol.State{}, err
	}
	s.tick++
	s.last = snap
	return snap.toState(s.tick), nil
}

// advance runs one engine step, turning a panic into an error.
func (s *GameSession) advance(inputs map[protocol.PlayerID]Intent) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return s.engine.Step(inputs)
}

// Fail concludes the session after an engine failure and returns the
// terminal message for it. It returns nil if the session already concluded.
func (s *GameSession) Fail(err error) protocol.Message {
	if s.Concluded() {
		return nil
	}
	s.outcome = OutcomeFailed
	s.err = err
	return protocol.GameOver{Reason: engineFailureReason}
}

// CheckOutcome asks the engine for a terminal condition. The first time
// one holds it returns the message to broadcast; every later call returns
// nil.
func (s *GameSession) CheckOutcome() protocol.Message {
	if s.Concluded() {
		return nil
	}
	switch {
	case s.engine.IsVictorious():
		s.outcome = OutcomeVictory
	case s.engine.IsDefeated():
		s.outcome = OutcomeDefeat
	default:
		return nil
	}
	return s.TerminalMessage()
}

// TerminalMessage returns the message that concluded the session, or nil.
func (s *GameSession) TerminalMessage() protocol.Message {
	switch s.outcome {
	case OutcomeVictory:
		return protocol.Victory{}
	case OutcomeDefeat:
		return protocol.GameOver{}
	case OutcomeFailed:
		return protocol.GameOver{Reason: engineFailureReason}
	}
	return nil
}

// Abandon marks a running session as abandoned.
func (s *GameSession) Abandon() {
	if !s.Concluded() {
		s.outcome = OutcomeAbandoned
	}
}

// PlayerStats returns the engine's per-player statistics when it keeps any.
func (s *GameSession) PlayerStats() map[protocol.PlayerID]PlayerStats {
	if r, ok := s.engine.(StatsReporter); ok {
		return r.PlayerStats()
	}
	return nil
}

// toState converts a snapshot to the wire state, ordering every category by
// handle so identical worlds serialize identically.
func (snap Snapshot) toState(tick uint64) protocol.State {
	st := protocol.State{
		Players:          append([]protocol.PlayerState(nil), snap.Players...),
		Enemies:          append([]protocol.EnemyState(nil), snap.Enemies...),
		Projectiles:      append([]protocol.ProjectileState(nil), snap.Projectiles...),
		EnemyProjectiles: append([]protocol.ProjectileState(nil), snap.EnemyProjectiles...),
		Powerups:         append([]protocol.PowerupState(nil), snap.Powerups...),
		Explosions:       append([]protocol.ExplosionState(nil), snap.Explosions...),
		Timer:            tick,
	}
	sort.Slice(st.Players, func(i, j int) bool { return st.Players[i].ID < st.Players[j].ID })
	sort.Slice(st.Enemies, func(i, j int) bool { return st.Enemies[i].ID < st.Enemies[j].ID })
	sort.Slice(st.Projectiles, func(i, j int) bool { return st.Projectiles[i].ID < st.Projectiles[j].ID })
	sort.Slice(st.EnemyProjectiles, func(i, j int) bool { return st.EnemyProjectiles[i].ID < st.EnemyProjectiles[j].ID })
	sort.Slice(st.Powerups, func(i, j int) bool { return st.Powerups[i].ID < st.Powerups[j].ID })
	sort.Slice(st.Explosions, func(i, j int) bool { return st.Explosions[i].ID < st.Explosions[j].ID })
	return st
}
