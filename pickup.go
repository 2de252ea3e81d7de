package main

import "coopshooter/protocol"

const (
	PickupRadius    = 12.0
	PickupHeal      = 30
	PickupFallSpeed = 70.0 // pixels/s
	PickupTimeout   = 10.0

	PowerupHeal  = "heal"
	PowerupRapid = "rapid"
)

// Pickup is a power-up drifting down the field after an enemy drop.
type Pickup struct {
	Handle protocol.Handle
	Kind   string
	X, Y   float64
	Life   float64
	Alive  bool
}

// NewPickup drops a power-up of kind at (x, y).
func NewPickup(h protocol.Handle, kind string, x, y float64) *Pickup {
	return &Pickup{
		Handle: h,
		Kind:   kind,
		X:      x,
		Y:      y,
		Life:   PickupTimeout,
		Alive:  true,
	}
}

// Update drifts the pickup and ticks down its lifetime
func (p *Pickup) Update(dt float64) {
	if !p.Alive {
		return
	}
	p.Y += PickupFallSpeed * dt
	p.Life -= dt
	if p.Life <= 0 || p.Y > FieldHeight+PickupRadius {
		p.Alive = false
	}
}

// Apply grants the pickup's effect to s.
func (p *Pickup) Apply(s *Ship) {
	switch p.Kind {
	case PowerupHeal:
		s.Heal(PickupHeal)
	case PowerupRapid:
		s.RapidT = RapidFireDuration
	}
	p.Alive = false
}

// ToState converts to protocol state
func (p *Pickup) ToState() protocol.PowerupState {
	return protocol.PowerupState{
		ID:   p.Handle,
		Kind: p.Kind,
		X:    round1(p.X),
		Y:    round1(p.Y),
	}
}
