package main

import (
	"time"
)

// Scheduler steps every running game once per tick and broadcasts the
// result. It runs on the hub goroutine.
type Scheduler struct {
	registry *LobbyRegistry
	metrics  *TickMetrics
}

// NewScheduler creates a scheduler over registry. metrics may be nil.
func NewScheduler(registry *LobbyRegistry, metrics *TickMetrics) *Scheduler {
	if metrics == nil {
		metrics = &TickMetrics{}
	}
	return &Scheduler{registry: registry, metrics: metrics}
}

// Tick runs one scheduler cycle. A failing session is concluded and
// reported to its own members only; the others are stepped as usual.
func (s *Scheduler) Tick() {
	start := time.Now()
	running := s.registry.runningGames()
	for _, lobby := range running {
		s.step(lobby)
	}
	s.metrics.ActiveGames.Store(int64(len(running)))
	s.metrics.ActiveLobbies.Store(int64(s.registry.LobbyCount()))
	s.metrics.AddTick(time.Since(start).Nanoseconds())
}

func (s *Scheduler) step(lobby *Lobby) {
	sess := lobby.game
	state, err := sess.Step(lobby.connected)
	s.metrics.SessionSteps.Add(1)
	if err != nil {
		s.metrics.EngineFailures.Add(1)
		Log.Errorw("Game session failed", "lobby", lobby.ID, "tick", sess.Tick(), "error", err)
		if msg := sess.Fail(err); msg != nil {
			lobby.broadcast(msg)
			s.conclude(lobby)
		}
		return
	}
	lobby.broadcast(state)

	if msg := sess.CheckOutcome(); msg != nil {
		Log.Infow("Game concluded", "lobby", lobby.ID, "outcome", sess.Outcome(), "tick", sess.Tick())
		lobby.broadcast(msg)
		s.conclude(lobby)
	}
}

func (s *Scheduler) conclude(lobby *Lobby) {
	s.metrics.MatchesConcluded.Add(1)
	s.registry.recordMatch(lobby)
}
