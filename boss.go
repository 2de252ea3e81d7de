package main

import (
	"math"

	"coopshooter/protocol"
)

const (
	BossRadius    = 60.0
	BossHP        = 1500
	BossEntrySpd  = 60.0
	BossHoverY    = 120.0
	BossSwayAmp   = 220.0
	BossSwayRate  = 0.35 // radians/s
	BossContact   = 50
	BossShotSpeed = 200.0
	BossShotDmg   = 12

	// Phase 1: expanding rings
	RingShots    = 16
	RingInterval = 1.6
	// Phase 2: fans aimed at the nearest ship
	FanShots    = 5
	FanSpread   = 0.55 // radians between the outermost shots
	FanInterval = 0.9
	// Phase 3: twin spiral
	SpiralInterval = 0.08
	SpiralTurn     = 0.22 // radians per volley
)

// bossState is the attack pattern bookkeeping of a boss.
type bossState struct {
	phase       int
	patternCD   float64
	spiralAngle float64
	entered     bool
}

// NewBoss spawns the final boss above the field.
func NewBoss(h protocol.Handle) *Mob {
	return &Mob{
		Handle:  h,
		Kind:    KindBoss,
		X:       FieldWidth / 2,
		Y:       -BossRadius,
		HP:      BossHP,
		MaxHP:   BossHP,
		Radius:  BossRadius,
		Contact: BossContact,
		Alive:   true,
		boss:    &bossState{phase: 1, patternCD: 1.5},
	}
}

// bossPhase maps the remaining HP fraction to an attack phase.
func bossPhase(hp, maxHP int) int {
	frac := float64(hp) / float64(maxHP)
	switch {
	case frac > 2.0/3:
		return 1
	case frac > 1.0/3:
		return 2
	}
	return 3
}

func (m *Mob) updateBoss(dt float64, w *World) {
	b := m.boss
	if !b.entered {
		m.Y += BossEntrySpd * dt
		if m.Y >= BossHoverY {
			m.Y = BossHoverY
			b.entered = true
			m.Age = 0
		}
		return
	}
	m.X = FieldWidth/2 + math.Sin(m.Age*BossSwayRate*2*math.Pi)*BossSwayAmp

	if next := bossPhase(m.HP, m.MaxHP); next != b.phase {
		b.phase = next
		b.patternCD = 1.0
	}
	b.patternCD -= dt
	if b.patternCD > 0 {
		return
	}

	switch b.phase {
	case 1:
		offset := w.rng.Float64() * 2 * math.Pi / RingShots
		for i := 0; i < RingShots; i++ {
			angle := offset + float64(i)*2*math.Pi/RingShots
			w.spawnEnemyShot(m, angle, BossShotSpeed, BossShotDmg)
		}
		b.patternCD = RingInterval
	case 2:
		target := w.nearestShip(m.X, m.Y)
		aim := math.Pi / 2
		if target != nil {
			aim = math.Atan2(target.Y-m.Y, target.X-m.X)
		}
		for i := 0; i < FanShots; i++ {
			angle := aim - FanSpread/2 + float64(i)*FanSpread/float64(FanShots-1)
			w.spawnEnemyShot(m, angle, BossShotSpeed*1.3, BossShotDmg)
		}
		b.patternCD = FanInterval
	default:
		b.spiralAngle += SpiralTurn
		w.spawnEnemyShot(m, b.spiralAngle, BossShotSpeed, BossShotDmg)
		w.spawnEnemyShot(m, b.spiralAngle+math.Pi, BossShotSpeed, BossShotDmg)
		b.patternCD = SpiralInterval
	}
}
