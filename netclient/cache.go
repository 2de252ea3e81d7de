package netclient

import (
	"sync"
	"sync/atomic"

	"coopshooter/protocol"
)

// World is the latest authoritative snapshot, keyed by entity handle. A World
// is never modified after it is published, so readers may hold on to it.
type World struct {
	Tick             uint64
	Players          map[protocol.Handle]protocol.PlayerState
	Enemies          map[protocol.Handle]protocol.EnemyState
	Projectiles      map[protocol.Handle]protocol.ProjectileState
	EnemyProjectiles map[protocol.Handle]protocol.ProjectileState
	Powerups         map[protocol.Handle]protocol.PowerupState
	Explosions       map[protocol.Handle]protocol.ExplosionState
}

var emptyWorld = &World{}

func byHandle[T any](list []T, handle func(T) protocol.Handle) map[protocol.Handle]T {
	out := make(map[protocol.Handle]T, len(list))
	for _, v := range list {
		out[handle(v)] = v
	}
	return out
}

// worldFromState builds a fresh World. Entities missing from st are simply
// absent, which is how destroyed entities drop out of the cache.
func worldFromState(st protocol.State) *World {
	return &World{
		Tick:             st.Timer,
		Players:          byHandle(st.Players, func(p protocol.PlayerState) protocol.Handle { return p.ID }),
		Enemies:          byHandle(st.Enemies, func(e protocol.EnemyState) protocol.Handle { return e.ID }),
		Projectiles:      byHandle(st.Projectiles, func(p protocol.ProjectileState) protocol.Handle { return p.ID }),
		EnemyProjectiles: byHandle(st.EnemyProjectiles, func(p protocol.ProjectileState) protocol.Handle { return p.ID }),
		Powerups:         byHandle(st.Powerups, func(p protocol.PowerupState) protocol.Handle { return p.ID }),
		Explosions:       byHandle(st.Explosions, func(e protocol.ExplosionState) protocol.Handle { return e.ID }),
	}
}

// Status holds the session flags the render loop polls once per frame.
type Status struct {
	Connected      bool
	LobbyID        string
	PlayerID       protocol.PlayerID
	Members        []protocol.Member
	Lobbies        []protocol.LobbyInfo
	LobbyError     string
	GameStarted    bool
	GameOver       bool
	GameOverReason string
	Victory        bool
	ResumeToken    string
}

// Host reports whether the local player hosts the current lobby.
func (s Status) Host() bool {
	for _, m := range s.Members {
		if m.PlayerID == s.PlayerID {
			return m.Host
		}
	}
	return false
}

// Cache is the single-writer, many-reader handoff between the network
// reader and the renderer. Both values are replaced wholesale on every
// update.
type Cache struct {
	world  atomic.Pointer[World]
	status atomic.Pointer[Status]
	mu     sync.Mutex // serializes status writers
}

// World returns the latest snapshot. It is never nil.
func (c *Cache) World() *World {
	if w := c.world.Load(); w != nil {
		return w
	}
	return emptyWorld
}

// Status returns a copy of the current session flags.
func (c *Cache) Status() Status {
	if s := c.status.Load(); s != nil {
		return *s
	}
	return Status{}
}

func (c *Cache) applyState(st protocol.State) {
	c.world.Store(worldFromState(st))
}

func (c *Cache) clearWorld() {
	c.world.Store(nil)
}

// applyMatchState publishes st only while a match is running, so a STATE
// still in flight after leaving cannot bring the old match back.
func (c *Cache) applyMatchState(st protocol.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Status().GameStarted {
		return false
	}
	c.applyState(st)
	return true
}

// leaveLobby drops the world and every lobby and match field.
func (c *Cache) leaveLobby() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearWorld()
	next := c.Status()
	next.LobbyID = ""
	next.Members = nil
	next.GameStarted, next.GameOver, next.Victory = false, false, false
	next.GameOverReason = ""
	next.ResumeToken = ""
	c.status.Store(&next)
}

// update publishes a modified copy of the status. fn must replace slices
// rather than mutate them in place.
func (c *Cache) update(fn func(s *Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.Status()
	fn(&next)
	c.status.Store(&next)
}

// reset drops everything but the resume token, which outlives the
// connection it was issued on.
func (c *Cache) reset() {
	c.clearWorld()
	c.update(func(s *Status) {
		*s = Status{ResumeToken: s.ResumeToken}
	})
}
