package main

import "coopshooter/protocol"

// Intent is the per-tick input of one player. The zero value is the neutral
// intent used for players without a live connection.
type Intent struct {
	DX, DY float64
	Shoot  bool
}

// intentFromInput clamps a wire Input into a valid Intent.
func intentFromInput(in protocol.Input) Intent {
	return Intent{
		DX:    Clamp(in.DX, -1, 1),
		DY:    Clamp(in.DY, -1, 1),
		Shoot: in.Shoot,
	}
}

// Snapshot is everything alive in the simulation after one step, each entity
// tagged with its stable handle.
type Snapshot struct {
	Players          []protocol.PlayerState
	Enemies          []protocol.EnemyState
	Projectiles      []protocol.ProjectileState
	EnemyProjectiles []protocol.ProjectileState
	Powerups         []protocol.PowerupState
	Explosions       []protocol.ExplosionState
}

// SimulationEngine is the game rules collaborator driven once per tick by the
// scheduler. Implementations are only ever called from one goroutine.
type SimulationEngine interface {
	// Step applies the inputs and advances the world by one tick.
	Step(inputs map[protocol.PlayerID]Intent) (Snapshot, error)
	// IsDefeated reports that every player is down and their crash
	// animations have finished.
	IsDefeated() bool
	// IsVictorious reports that the final boss has been destroyed.
	IsVictorious() bool
}

// PlayerSlot is a seated player handed to a new engine, in spawn-slot order.
type PlayerSlot struct {
	PlayerID protocol.PlayerID
	Name     string
}

// EngineConfig carries everything an engine needs at construction.
type EngineConfig struct {
	Players  []PlayerSlot
	Handles  *HandleAllocator
	Seed     int64
	TickRate int
}

// EngineFactory builds the simulation for a newly started match.
type EngineFactory func(cfg EngineConfig) (SimulationEngine, error)

// HandleAllocator hands out entity handles for one game session. Handles
// start at 1 and are never reused.
type HandleAllocator struct {
	next protocol.Handle
}

// Next returns a fresh handle.
func (a *HandleAllocator) Next() protocol.Handle {
	a.next++
	return a.next
}

// PlayerStats are per-player counters an engine may keep for match history.
type PlayerStats struct {
	Kills       int `msgpack:"kills" json:"kills"`
	ShotsFired  int `msgpack:"shots_fired" json:"shots_fired"`
	DamageTaken int `msgpack:"damage_taken" json:"damage_taken"`
	Pickups     int `msgpack:"pickups" json:"pickups"`
}

// StatsReporter is implemented by engines that track PlayerStats.
type StatsReporter interface {
	PlayerStats() map[protocol.PlayerID]PlayerStats
}
