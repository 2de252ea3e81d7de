package main

import "sync/atomic"

// TickMetrics are server-wide counters read by the /metrics endpoint.
type TickMetrics struct {
	TickCount        atomic.Int64 // scheduler cycles run
	TotalTickNs      atomic.Int64 // time spent in scheduler cycles
	MaxTickNs        atomic.Int64
	SessionSteps     atomic.Int64 // individual game session steps
	EngineFailures   atomic.Int64
	MatchesConcluded atomic.Int64
	MessagesIn       atomic.Int64
	ProtocolErrors   atomic.Int64
	RateLimited      atomic.Int64
	SlowConsumers    atomic.Int64
	ActiveLobbies    atomic.Int64
	ActiveGames      atomic.Int64
}

func (m *TickMetrics) AddTick(ns int64) {
	m.TickCount.Add(1)
	m.TotalTickNs.Add(ns)
	for {
		cur := m.MaxTickNs.Load()
		if ns <= cur || m.MaxTickNs.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// Snapshot returns a read-only copy for HTTP output
func (m *TickMetrics) Snapshot() map[string]any {
	ticks := m.TickCount.Load()
	total := m.TotalTickNs.Load()
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]any{
		"tick_count":        ticks,
		"avg_tick_ms":       avgMs,
		"max_tick_ms":       float64(m.MaxTickNs.Load()) / 1e6,
		"session_steps":     m.SessionSteps.Load(),
		"engine_failures":   m.EngineFailures.Load(),
		"matches_concluded": m.MatchesConcluded.Load(),
		"messages_in":       m.MessagesIn.Load(),
		"protocol_errors":   m.ProtocolErrors.Load(),
		"rate_limited":      m.RateLimited.Load(),
		"slow_consumers":    m.SlowConsumers.Load(),
		"active_lobbies":    m.ActiveLobbies.Load(),
		"active_games":      m.ActiveGames.Load(),
	}
}
