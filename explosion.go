package main

import (
	"math"

	"coopshooter/protocol"
)

const (
	ExplosionDuration      = 0.5 // seconds
	CrashExplosionDuration = 1.5
	BossExplosionDuration  = 2.0
)

// Explosion is a transient effect. It carries no gameplay state except that
// a ship's crash must finish before a defeat is declared.
type Explosion struct {
	Handle   protocol.Handle
	X, Y     float64
	Radius   float64
	Duration float64
	Age      float64
}

// NewExplosion starts an explosion at (x, y).
func NewExplosion(h protocol.Handle, x, y, radius, duration float64) *Explosion {
	return &Explosion{Handle: h, X: x, Y: y, Radius: radius, Duration: duration}
}

// Update ages the explosion one tick.
func (e *Explosion) Update(dt float64) {
	e.Age += dt
}

// Done reports whether the explosion has played out.
func (e *Explosion) Done() bool {
	return e.Age >= e.Duration
}

// ToState converts to protocol state
func (e *Explosion) ToState() protocol.ExplosionState {
	progress := 1.0
	if e.Duration > 0 {
		progress = Clamp(e.Age/e.Duration, 0, 1)
	}
	return protocol.ExplosionState{
		ID:       e.Handle,
		X:        round1(e.X),
		Y:        round1(e.Y),
		Radius:   e.Radius,
		Progress: round2(progress),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
