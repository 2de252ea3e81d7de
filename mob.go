package main

import (
	"math"

	"coopshooter/protocol"
)

// Enemy kinds as they appear on the wire
const (
	KindDrone   = "drone"
	KindGunship = "gunship"
	KindBoss    = "boss"
)

const (
	DroneRadius    = 14.0
	DroneHP        = 20
	DroneSpeed     = 110.0
	DroneSway      = 60.0 // horizontal sway amplitude, pixels/s
	DroneContact   = 25   // damage dealt on ramming a ship
	DroneDropP     = 0.10 // chance to drop a pickup
	GunshipRadius  = 22.0
	GunshipHP      = 60
	GunshipSpeed   = 90.0
	GunshipHoverY  = 150.0
	GunshipDropP   = 0.35
	GunshipContact = 35

	MobBurstSize     = 3
	MobBurstFireRate = 0.15 // seconds between shots in a burst
	MobBurstCooldown = 2.2  // seconds between bursts
	MobShotSpeed     = 240.0
	MobShotDamage    = 10
)

// Mob is an AI-controlled enemy. Bosses are mobs with their own update.
type Mob struct {
	Handle    protocol.Handle
	Kind      string
	X, Y      float64
	VX, VY    float64
	HP        int
	MaxHP     int
	Radius    float64
	Contact   int // damage dealt to a ship on collision
	Alive     bool
	Age       float64
	BurstLeft int     // shots remaining in current burst
	FireCD    float64 // cooldown between individual shots
	BurstCD   float64 // cooldown between bursts
	SwayPhase float64

	boss *bossState
}

// NewDrone spawns a diving drone at the top edge.
func NewDrone(h protocol.Handle, x, swayPhase float64) *Mob {
	return &Mob{
		Handle:    h,
		Kind:      KindDrone,
		X:         x,
		Y:         -DroneRadius,
		HP:        DroneHP,
		MaxHP:     DroneHP,
		Radius:    DroneRadius,
		Contact:   DroneContact,
		Alive:     true,
		SwayPhase: swayPhase,
	}
}

// NewGunship spawns a gunship that descends to its hover line.
func NewGunship(h protocol.Handle, x float64, dir float64) *Mob {
	return &Mob{
		Handle:  h,
		Kind:    KindGunship,
		X:       x,
		Y:       -GunshipRadius,
		VX:      dir * GunshipSpeed,
		HP:      GunshipHP,
		MaxHP:   GunshipHP,
		Radius:  GunshipRadius,
		Contact: GunshipContact,
		Alive:   true,
		BurstCD: 1.0,
	}
}

// Update moves the mob one tick and fires through w.
func (m *Mob) Update(dt float64, w *World) {
	if !m.Alive {
		return
	}
	m.Age += dt
	switch m.Kind {
	case KindDrone:
		m.updateDrone(dt, w)
	case KindGunship:
		m.updateGunship(dt, w)
	case KindBoss:
		m.updateBoss(dt, w)
	}
}

// updateDrone dives toward the nearest ship with a sinusoidal sway. Drones
// that leave the bottom of the field are gone.
func (m *Mob) updateDrone(dt float64, w *World) {
	m.VY = DroneSpeed
	m.VX = math.Sin(m.Age*2.5+m.SwayPhase) * DroneSway
	if target := w.nearestShip(m.X, m.Y); target != nil {
		m.VX += Clamp(target.X-m.X, -1, 1) * DroneSpeed * 0.4
	}
	m.X = Clamp(m.X+m.VX*dt, m.Radius, FieldWidth-m.Radius)
	m.Y += m.VY * dt
	if m.Y > FieldHeight+m.Radius {
		m.Alive = false
	}
}

// updateGunship descends to the hover line, then strafes side to side and
// fires aimed bursts at the nearest ship.
func (m *Mob) updateGunship(dt float64, w *World) {
	if m.Y < GunshipHoverY {
		m.Y += GunshipSpeed * dt
	}
	m.X += m.VX * dt
	if m.X < m.Radius || m.X > FieldWidth-m.Radius {
		m.VX = -m.VX
		m.X = Clamp(m.X, m.Radius, FieldWidth-m.Radius)
	}

	if m.FireCD > 0 {
		m.FireCD -= dt
	}
	if m.BurstCD > 0 {
		m.BurstCD -= dt
	}
	target := w.nearestShip(m.X, m.Y)
	if target == nil || m.Y < GunshipHoverY/2 {
		return
	}

	// Burst fire logic
	if m.BurstLeft > 0 && m.FireCD <= 0 {
		m.fireAt(w, target)
	} else if m.BurstLeft == 0 && m.BurstCD <= 0 {
		m.BurstLeft = MobBurstSize
		m.fireAt(w, target)
	}
}

func (m *Mob) fireAt(w *World, target *Ship) {
	angle := math.Atan2(target.Y-m.Y, target.X-m.X)
	w.spawnEnemyShot(m, angle, MobShotSpeed, MobShotDamage)
	m.BurstLeft--
	m.FireCD = MobBurstFireRate
	if m.BurstLeft == 0 {
		m.BurstCD = MobBurstCooldown
	}
}

// TakeDamage reduces HP and returns true if mob died
func (m *Mob) TakeDamage(dmg int) bool {
	if !m.Alive {
		return false
	}
	m.HP -= dmg
	if m.HP <= 0 {
		m.HP = 0
		m.Alive = false
		return true
	}
	return false
}

// dropChance is the probability of leaving a pickup behind.
func (m *Mob) dropChance() float64 {
	switch m.Kind {
	case KindDrone:
		return DroneDropP
	case KindGunship:
		return GunshipDropP
	}
	return 0
}

// ToState converts to protocol state
func (m *Mob) ToState() protocol.EnemyState {
	st := protocol.EnemyState{
		ID:    m.Handle,
		Kind:  m.Kind,
		X:     round1(m.X),
		Y:     round1(m.Y),
		HP:    m.HP,
		MaxHP: m.MaxHP,
	}
	if m.boss != nil {
		st.Phase = m.boss.phase
	}
	return st
}
