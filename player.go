package main

import (
	"math"

	"coopshooter/protocol"
)

const (
	ShipRadius         = 16.0
	ShipMaxHP          = 100
	ShipSpeed          = 260.0 // pixels/s at full deflection
	FireCooldown       = 0.2   // seconds between shots
	RapidFireCooldown  = 0.08
	RapidFireDuration  = 8.0 // seconds a rapid-fire pickup lasts
	HitInvulnerability = 0.5 // seconds of grace after taking damage
)

// Ship is a player's craft.
type Ship struct {
	Handle   protocol.Handle
	PlayerID protocol.PlayerID
	Name     string
	X, Y     float64
	HP       int
	MaxHP    int
	Alive    bool
	FireCD   float64 // fire cooldown remaining
	RapidT   float64 // rapid fire remaining
	InvulnT  float64 // invulnerability remaining
	// Crash is the handle of the explosion started when the ship went down.
	Crash protocol.Handle
}

// NewShip places a player's ship at its spawn slot.
func NewShip(h protocol.Handle, slot PlayerSlot, x, y float64) *Ship {
	return &Ship{
		Handle:   h,
		PlayerID: slot.PlayerID,
		Name:     slot.Name,
		X:        x,
		Y:        y,
		HP:       ShipMaxHP,
		MaxHP:    ShipMaxHP,
		Alive:    true,
	}
}

// Update moves the ship one tick (dt in seconds) along the intent.
func (s *Ship) Update(dt float64, in Intent) {
	if !s.Alive {
		return
	}
	dx, dy := in.DX, in.DY
	// Diagonals are no faster than straight moves
	if l := math.Hypot(dx, dy); l > 1 {
		dx /= l
		dy /= l
	}
	s.X = Clamp(s.X+dx*ShipSpeed*dt, ShipRadius, FieldWidth-ShipRadius)
	s.Y = Clamp(s.Y+dy*ShipSpeed*dt, ShipRadius, FieldHeight-ShipRadius)

	if s.FireCD > 0 {
		s.FireCD -= dt
	}
	if s.RapidT > 0 {
		s.RapidT -= dt
	}
	if s.InvulnT > 0 {
		s.InvulnT -= dt
	}
}

// CanFire returns true if the ship wants to and may fire this tick
func (s *Ship) CanFire(in Intent) bool {
	return s.Alive && in.Shoot && s.FireCD <= 0
}

// ResetFireCooldown starts the cooldown after a shot.
func (s *Ship) ResetFireCooldown() {
	if s.RapidT > 0 {
		s.FireCD = RapidFireCooldown
	} else {
		s.FireCD = FireCooldown
	}
}

// TakeDamage reduces HP and returns true if the ship went down. Damage taken
// during the grace period after a hit is ignored.
func (s *Ship) TakeDamage(dmg int) bool {
	if !s.Alive || s.InvulnT > 0 {
		return false
	}
	s.HP -= dmg
	s.InvulnT = HitInvulnerability
	if s.HP <= 0 {
		s.HP = 0
		s.Alive = false
		return true
	}
	return false
}

// Heal restores up to n HP to a living ship.
func (s *Ship) Heal(n int) {
	if !s.Alive {
		return
	}
	s.HP += n
	if s.HP > s.MaxHP {
		s.HP = s.MaxHP
	}
}

// ToState converts to protocol state
func (s *Ship) ToState() protocol.PlayerState {
	st := protocol.PlayerState{
		ID:       s.Handle,
		PlayerID: s.PlayerID,
		Name:     s.Name,
		X:        round1(s.X),
		Y:        round1(s.Y),
		HP:       s.HP,
		MaxHP:    s.MaxHP,
		Alive:    s.Alive,
	}
	if s.RapidT > 0 {
		st.Power = PowerupRapid
	}
	return st
}

// round1 rounds to one decimal place to keep state messages small
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
