package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"coopshooter/protocol"
)

const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	maxPlayerShots = 200
	maxEnemyShots  = 400

	FirstWaveDelay = 1.0 // seconds before the first wave
	WaveBreak      = 2.5 // seconds between a cleared wave and the next
	SpawnInterval  = 0.6 // seconds between enemies of one wave
)

// spawnSlots are the fixed starting positions, assigned in player id order.
var spawnSlots = [][2]float64{
	{300, 520},
	{500, 520},
}

// wavePlan describes one wave of the boss rush.
type wavePlan struct {
	Drones   int
	Gunships int
	Boss     bool
}

var defaultWaves = []wavePlan{
	{Drones: 6},
	{Drones: 8, Gunships: 2},
	{Drones: 6, Gunships: 4},
	{Boss: true},
}

var errNoHandles = errors.New("engine config has no handle allocator")

// World is the boss rush simulation: enemy waves ending in a three-phase
// boss. It implements SimulationEngine and StatsReporter.
type World struct {
	rng     *rand.Rand
	handles *HandleAllocator
	dt      float64
	elapsed float64

	ships      []*Ship
	byPlayer   map[protocol.PlayerID]*Ship
	byHandle   map[protocol.Handle]*Ship
	mobs       []*Mob
	shots      []*Projectile
	enemyShots []*Projectile
	pickups    []*Pickup
	explosions []*Explosion

	grid     SpatialGrid
	queryBuf []EntityRef

	waves    []wavePlan
	waveIdx  int
	pending  []string
	spawnCD  float64
	breakCD  float64
	bossDown bool

	stats map[protocol.PlayerID]*PlayerStats
}

// NewWorld is the EngineFactory for the boss rush.
func NewWorld(cfg EngineConfig) (SimulationEngine, error) {
	return newWorld(cfg, defaultWaves)
}

func newWorld(cfg EngineConfig, waves []wavePlan) (*World, error) {
	if cfg.Handles == nil {
		return nil, errNoHandles
	}
	if len(cfg.Players) == 0 || len(cfg.Players) > len(spawnSlots) {
		return nil, fmt.Errorf("boss rush needs 1-%d players, got %d", len(spawnSlots), len(cfg.Players))
	}
	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	w := &World{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		handles:  cfg.Handles,
		dt:       1.0 / float64(tickRate),
		byPlayer: make(map[protocol.PlayerID]*Ship),
		byHandle: make(map[protocol.Handle]*Ship),
		waves:    waves,
		waveIdx:  -1,
		breakCD:  FirstWaveDelay,
		stats:    make(map[protocol.PlayerID]*PlayerStats),
	}
	for i, slot := range cfg.Players {
		pos := spawnSlots[i]
		s := NewShip(w.handles.Next(), slot, pos[0], pos[1])
		w.ships = append(w.ships, s)
		w.byPlayer[s.PlayerID] = s
		w.byHandle[s.Handle] = s
		w.stats[s.PlayerID] = &PlayerStats{}
	}
	return w, nil
}

// Step applies inputs and advances the world by one tick.
func (w *World) Step(inputs map[protocol.PlayerID]Intent) (Snapshot, error) {
	dt := w.dt
	w.elapsed += dt

	for _, s := range w.ships {
		in := inputs[s.PlayerID]
		s.Update(dt, in)
		if s.CanFire(in) && len(w.shots) < maxPlayerShots {
			w.shots = append(w.shots, NewShot(w.handles.Next(), s))
			s.ResetFireCooldown()
			w.stats[s.PlayerID].ShotsFired++
		}
	}

	w.spawnWaves(dt)
	for _, m := range w.mobs {
		m.Update(dt, w)
	}
	for _, p := range w.shots {
		p.Update(dt)
	}
	for _, p := range w.enemyShots {
		p.Update(dt)
	}
	for _, p := range w.pickups {
		p.Update(dt)
	}

	w.resolveCollisions(dt)

	for _, e := range w.explosions {
		e.Update(dt)
	}
	w.cull()
	return w.snapshot(), nil
}

// IsDefeated reports every ship down with its crash finished.
func (w *World) IsDefeated() bool {
	for _, s := range w.ships {
		if s.Alive || w.explosionActive(s.Crash) {
			return false
		}
	}
	return true
}

// IsVictorious reports that the boss has been destroyed.
func (w *World) IsVictorious() bool {
	return w.bossDown
}

// PlayerStats returns a copy of the per-player counters.
func (w *World) PlayerStats() map[protocol.PlayerID]PlayerStats {
	out := make(map[protocol.PlayerID]PlayerStats, len(w.stats))
	for id, st := range w.stats {
		out[id] = *st
	}
	return out
}

// spawnWaves releases the pending enemies of the current wave one at a time
// and starts the next wave once the field is clear.
func (w *World) spawnWaves(dt float64) {
	if len(w.pending) > 0 {
		w.spawnCD -= dt
		if w.spawnCD <= 0 {
			kind := w.pending[0]
			w.pending = w.pending[1:]
			w.spawn(kind)
			w.spawnCD = SpawnInterval
		}
		return
	}
	if w.waveIdx+1 >= len(w.waves) || w.mobsAlive() > 0 {
		return
	}
	w.breakCD -= dt
	if w.breakCD > 0 {
		return
	}
	w.waveIdx++
	w.pending = w.waveKinds(w.waves[w.waveIdx])
	w.spawnCD = 0
	w.breakCD = WaveBreak
}

func (w *World) waveKinds(plan wavePlan) []string {
	if plan.Boss {
		return []string{KindBoss}
	}
	kinds := make([]string, 0, plan.Drones+plan.Gunships)
	for i := 0; i < plan.Drones; i++ {
		kinds = append(kinds, KindDrone)
	}
	for i := 0; i < plan.Gunships; i++ {
		kinds = append(kinds, KindGunship)
	}
	w.rng.Shuffle(len(kinds), func(i, j int) { kinds[i], kinds[j] = kinds[j], kinds[i] })
	return kinds
}

func (w *World) spawn(kind string) {
	switch kind {
	case KindDrone:
		x := 40 + w.rng.Float64()*(FieldWidth-80)
		w.mobs = append(w.mobs, NewDrone(w.handles.Next(), x, w.rng.Float64()*2*math.Pi))
	case KindGunship:
		x := GunshipRadius + w.rng.Float64()*(FieldWidth-2*GunshipRadius)
		dir := 1.0
		if w.rng.Intn(2) == 0 {
			dir = -1
		}
		w.mobs = append(w.mobs, NewGunship(w.handles.Next(), x, dir))
	case KindBoss:
		w.mobs = append(w.mobs, NewBoss(w.handles.Next()))
	}
}

func (w *World) mobsAlive() int {
	n := 0
	for _, m := range w.mobs {
		if m.Alive {
			n++
		}
	}
	return n
}

// spawnEnemyShot fires a hostile projectile from m.
func (w *World) spawnEnemyShot(m *Mob, angle, speed float64, dmg int) {
	if len(w.enemyShots) >= maxEnemyShots {
		return
	}
	w.enemyShots = append(w.enemyShots, NewEnemyShot(w.handles.Next(), m.Handle, m.X, m.Y, angle, speed, dmg))
}

// nearestShip returns the closest living ship, or nil if all are down.
func (w *World) nearestShip(x, y float64) *Ship {
	var best *Ship
	bestDist := math.MaxFloat64
	for _, s := range w.ships {
		if !s.Alive {
			continue
		}
		if d := Distance(x, y, s.X, s.Y); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

func (w *World) resolveCollisions(dt float64) {
	// Player shots vs mobs, broad phase through the grid
	w.grid.Clear()
	for i, m := range w.mobs {
		if m.Alive {
			w.grid.InsertCircle(m.X, m.Y, m.Radius, EntityRef{Kind: 'm', Idx: i})
		}
	}
	for _, shot := range w.shots {
		if !shot.Alive {
			continue
		}
		reach := shot.Radius + math.Abs(shot.VY)*dt
		w.queryBuf = w.grid.QueryBuf(shot.X, shot.Y, reach, w.queryBuf[:0])
		for _, ref := range w.queryBuf {
			m := w.mobs[ref.Idx]
			if !m.Alive || !ProjectileHits(shot, dt, m.X, m.Y, m.Radius) {
				continue
			}
			shot.Alive = false
			if m.TakeDamage(shot.Damage) {
				w.killMob(m, shot.Owner)
			}
			break
		}
	}

	for _, s := range w.ships {
		if !s.Alive {
			continue
		}
		for _, shot := range w.enemyShots {
			if shot.Alive && ProjectileHits(shot, dt, s.X, s.Y, ShipRadius) {
				shot.Alive = false
				w.damageShip(s, shot.Damage)
			}
		}
		for _, m := range w.mobs {
			if !m.Alive || !CheckCollision(m.X, m.Y, m.Radius, s.X, s.Y, ShipRadius) {
				continue
			}
			w.damageShip(s, m.Contact)
			if m.Kind == KindDrone {
				m.Alive = false
				w.killMob(m, 0)
			}
		}
		for _, p := range w.pickups {
			if s.Alive && p.Alive && CheckCollision(p.X, p.Y, PickupRadius, s.X, s.Y, ShipRadius) {
				p.Apply(s)
				w.stats[s.PlayerID].Pickups++
			}
		}
	}
}

func (w *World) damageShip(s *Ship, dmg int) {
	before := s.HP
	died := s.TakeDamage(dmg)
	w.stats[s.PlayerID].DamageTaken += before - s.HP
	if died {
		e := NewExplosion(w.handles.Next(), s.X, s.Y, ShipRadius*2.5, CrashExplosionDuration)
		w.explosions = append(w.explosions, e)
		s.Crash = e.Handle
	}
}

// killMob plays the death of m, credits the shooter owning handle owner and
// rolls for a pickup drop.
func (w *World) killMob(m *Mob, owner protocol.Handle) {
	duration := ExplosionDuration
	if m.Kind == KindBoss {
		duration = BossExplosionDuration
		w.bossDown = true
	}
	w.explosions = append(w.explosions, NewExplosion(w.handles.Next(), m.X, m.Y, m.Radius*1.5, duration))
	if s, ok := w.byHandle[owner]; ok {
		w.stats[s.PlayerID].Kills++
	}
	if w.rng.Float64() < m.dropChance() {
		kind := PowerupHeal
		if w.rng.Intn(2) == 0 {
			kind = PowerupRapid
		}
		w.pickups = append(w.pickups, NewPickup(w.handles.Next(), kind, m.X, m.Y))
	}
}

func (w *World) explosionActive(h protocol.Handle) bool {
	if h == 0 {
		return false
	}
	for _, e := range w.explosions {
		if e.Handle == h {
			return true
		}
	}
	return false
}

// cull drops dead entities and finished explosions.
func (w *World) cull() {
	w.mobs = filterAlive(w.mobs, func(m *Mob) bool { return m.Alive })
	w.shots = filterAlive(w.shots, func(p *Projectile) bool { return p.Alive })
	w.enemyShots = filterAlive(w.enemyShots, func(p *Projectile) bool { return p.Alive })
	w.pickups = filterAlive(w.pickups, func(p *Pickup) bool { return p.Alive })
	w.explosions = filterAlive(w.explosions, func(e *Explosion) bool { return !e.Done() })
}

// filterAlive keeps the entries for which keep is true, reusing the backing array.
func filterAlive[T any](list []T, keep func(T) bool) []T {
	out := list[:0]
	for _, v := range list {
		if keep(v) {
			out = append(out, v)
		}
	}
	var zero T
	for i := len(out); i < len(list); i++ {
		list[i] = zero
	}
	return out
}

func (w *World) snapshot() Snapshot {
	snap := Snapshot{
		Players:          make([]protocol.PlayerState, 0, len(w.ships)),
		Enemies:          make([]protocol.EnemyState, 0, len(w.mobs)),
		Projectiles:      make([]protocol.ProjectileState, 0, len(w.shots)),
		EnemyProjectiles: make([]protocol.ProjectileState, 0, len(w.enemyShots)),
		Powerups:         make([]protocol.PowerupState, 0, len(w.pickups)),
		Explosions:       make([]protocol.ExplosionState, 0, len(w.explosions)),
	}
	for _, s := range w.ships {
		snap.Players = append(snap.Players, s.ToState())
	}
	for _, m := range w.mobs {
		snap.Enemies = append(snap.Enemies, m.ToState())
	}
	for _, p := range w.shots {
		snap.Projectiles = append(snap.Projectiles, p.ToState())
	}
	for _, p := range w.enemyShots {
		snap.EnemyProjectiles = append(snap.EnemyProjectiles, p.ToState())
	}
	for _, p := range w.pickups {
		snap.Powerups = append(snap.Powerups, p.ToState())
	}
	for _, e := range w.explosions {
		snap.Explosions = append(snap.Explosions, e.ToState())
	}
	return snap
}
