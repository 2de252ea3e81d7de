package main

import (
	"math"

	"coopshooter/protocol"
)

const (
	ShotSpeed       = 620.0 // pixels/s
	ShotRadius      = 4.0
	ShotDamage      = 10
	ShotOffset      = 20.0 // spawn distance ahead of the ship nose
	EnemyShotRadius = 5.0
	offFieldMargin  = 40.0
)

// Projectile is a shot in flight. Hostile shots come from enemies.
type Projectile struct {
	Handle  protocol.Handle
	Owner   protocol.Handle
	X, Y    float64
	VX, VY  float64
	Radius  float64
	Damage  int
	Hostile bool
	Alive   bool
}

// NewShot fires a player projectile straight up from the ship's nose.
func NewShot(h protocol.Handle, owner *Ship) *Projectile {
	return &Projectile{
		Handle: h,
		Owner:  owner.Handle,
		X:      owner.X,
		Y:      owner.Y - ShotOffset,
		VY:     -ShotSpeed,
		Radius: ShotRadius,
		Damage: ShotDamage,
		Alive:  true,
	}
}

// NewEnemyShot fires a hostile projectile from (x, y) along angle.
func NewEnemyShot(h, owner protocol.Handle, x, y, angle, speed float64, dmg int) *Projectile {
	return &Projectile{
		Handle:  h,
		Owner:   owner,
		X:       x,
		Y:       y,
		VX:      math.Cos(angle) * speed,
		VY:      math.Sin(angle) * speed,
		Radius:  EnemyShotRadius,
		Damage:  dmg,
		Hostile: true,
		Alive:   true,
	}
}

// Update moves the projectile one tick. Shots leaving the field die.
func (p *Projectile) Update(dt float64) {
	if !p.Alive {
		return
	}
	p.X += p.VX * dt
	p.Y += p.VY * dt
	if p.X < -offFieldMargin || p.X > FieldWidth+offFieldMargin ||
		p.Y < -offFieldMargin || p.Y > FieldHeight+offFieldMargin {
		p.Alive = false
	}
}

// ToState converts to protocol state
func (p *Projectile) ToState() protocol.ProjectileState {
	return protocol.ProjectileState{
		ID:    p.Handle,
		X:     round1(p.X),
		Y:     round1(p.Y),
		VX:    round1(p.VX),
		VY:    round1(p.VY),
		Owner: p.Owner,
	}
}
