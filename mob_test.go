package main

import (
	"math"
	"testing"

	"coopshooter/protocol"
)

func newTestWorld(t *testing.T, players int) *World {
	t.Helper()
	var slots []PlayerSlot
	for i := 1; i <= players; i++ {
		slots = append(slots, PlayerSlot{PlayerID: protocol.PlayerID(i), Name: "P"})
	}
	w, err := newWorld(EngineConfig{Players: slots, Handles: &HandleAllocator{}, Seed: 1, TickRate: 60}, defaultWaves)
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	return w
}

func TestMobTakeDamage(t *testing.T) {
	m := NewGunship(1, 100, 1)

	if m.TakeDamage(20) {
		t.Error("gunship should not die from 20 damage")
	}
	if m.HP != GunshipHP-20 {
		t.Errorf("expected HP %d, got %d", GunshipHP-20, m.HP)
	}
	if !m.TakeDamage(GunshipHP) {
		t.Error("gunship should die")
	}
	if m.Alive || m.HP != 0 {
		t.Error("gunship should be dead at 0 HP")
	}
	if m.TakeDamage(100) {
		t.Error("dead mob should not report dying again")
	}
}

func TestDroneDivesAndLeaves(t *testing.T) {
	w := newTestWorld(t, 1)
	m := NewDrone(w.handles.Next(), 100, 0)
	startY := m.Y
	m.Update(0.1, w)
	if m.Y <= startY {
		t.Error("drone should move down")
	}
	for i := 0; i < 1000 && m.Alive; i++ {
		m.Update(1.0/60, w)
	}
	if m.Alive {
		t.Error("drone should be gone after leaving the field")
	}
}

func TestDroneSteersTowardShip(t *testing.T) {
	w := newTestWorld(t, 1)
	ship := w.ships[0] // at x=300
	m := NewDrone(w.handles.Next(), 700, -math.Pi/2)
	m.Update(1.0/60, w)
	if m.VX >= 0 {
		t.Errorf("drone right of ship at %f should drift left, vx=%f", ship.X, m.VX)
	}
}

func TestGunshipBurstFire(t *testing.T) {
	w := newTestWorld(t, 1)
	m := NewGunship(w.handles.Next(), 400, 1)
	m.Y = GunshipHoverY
	m.BurstCD = 0

	for i := 0; i < 60; i++ {
		m.Update(1.0/60, w)
	}
	if len(w.enemyShots) != MobBurstSize {
		t.Fatalf("expected one burst of %d shots in a second, got %d", MobBurstSize, len(w.enemyShots))
	}
	for _, p := range w.enemyShots {
		if !p.Hostile || p.Owner != m.Handle {
			t.Errorf("bad enemy shot %+v", p)
		}
		if p.VY <= 0 {
			t.Error("shots should be aimed down toward the ship")
		}
	}
}

func TestGunshipHoldsFireWithoutTargets(t *testing.T) {
	w := newTestWorld(t, 1)
	w.ships[0].Alive = false
	m := NewGunship(w.handles.Next(), 400, 1)
	m.Y = GunshipHoverY
	m.BurstCD = 0
	for i := 0; i < 120; i++ {
		m.Update(1.0/60, w)
	}
	if len(w.enemyShots) != 0 {
		t.Errorf("expected no shots, got %d", len(w.enemyShots))
	}
}

func TestBossPhase(t *testing.T) {
	tests := []struct {
		hp   int
		want int
	}{
		{BossHP, 1},
		{BossHP*2/3 + 1, 1},
		{BossHP * 2 / 3, 2},
		{BossHP/3 + 1, 2},
		{BossHP / 3, 3},
		{1, 3},
	}
	for _, tt := range tests {
		if got := bossPhase(tt.hp, BossHP); got != tt.want {
			t.Errorf("bossPhase(%d) = %d, want %d", tt.hp, got, tt.want)
		}
	}
}

func TestBossEntersThenAttacks(t *testing.T) {
	w := newTestWorld(t, 2)
	b := NewBoss(w.handles.Next())
	for i := 0; i < 60*5 && !b.boss.entered; i++ {
		b.Update(1.0/60, w)
	}
	if !b.boss.entered || b.Y != BossHoverY {
		t.Fatalf("boss should settle at hover line, y=%f", b.Y)
	}
	if len(w.enemyShots) != 0 {
		t.Error("boss should not fire while entering")
	}

	for i := 0; i < 60*2; i++ {
		b.Update(1.0/60, w)
	}
	if len(w.enemyShots) < RingShots {
		t.Errorf("expected a ring volley, got %d shots", len(w.enemyShots))
	}

	b.HP = BossHP / 4
	b.Update(1.0/60, w)
	if got := b.ToState().Phase; got != 3 {
		t.Errorf("expected phase 3 in state, got %d", got)
	}
}
