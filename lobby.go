package main

import (
	"sort"
	"time"

	"coopshooter/protocol"
)

const (
	maxPlayersPerLobby = 2
	maxNameLen         = 16
	lobbyIDLen         = 8
	defaultPlayerName  = "Pilot"
)

// Conn is the part of a connection the registry and scheduler talk to.
type Conn interface {
	ID() uint64
	Send(msg protocol.Message)
}

// LobbyState is the lifecycle of a lobby. It only moves forward.
type LobbyState int

const (
	LobbyOpen LobbyState = iota
	LobbyInGame
)

func (s LobbyState) String() string {
	switch s {
	case LobbyOpen:
		return "OPEN"
	case LobbyInGame:
		return "IN_GAME"
	}
	return "UNKNOWN"
}

// Member is a seated player.
type Member struct {
	PlayerID protocol.PlayerID
	Name     string
	Ready    bool
	conn     Conn
	// resumeID is the id of the resume token issued at game start.
	resumeID string
}

// Lobby is a named group of up to two players and, once started, its game.
type Lobby struct {
	ID         string
	Name       string
	HostID     protocol.PlayerID
	MaxPlayers int
	State      LobbyState
	CreatedAt  time.Time

	members map[protocol.PlayerID]*Member
	game    *GameSession
}

func newLobby(id, name string) *Lobby {
	return &Lobby{
		ID:         id,
		Name:       name,
		MaxPlayers: maxPlayersPerLobby,
		State:      LobbyOpen,
		CreatedAt:  time.Now(),
		members:    make(map[protocol.PlayerID]*Member),
	}
}

func (l *Lobby) addMember(m *Member) {
	l.members[m.PlayerID] = m
	if len(l.members) == 1 {
		l.HostID = m.PlayerID
	}
}

// removeMember drops pid and hands the host role to the lowest remaining
// player id if the host left.
func (l *Lobby) removeMember(pid protocol.PlayerID) *Member {
	m, ok := l.members[pid]
	if !ok {
		return nil
	}
	delete(l.members, pid)
	if l.HostID == pid {
		l.HostID = 0
		if ids := l.playerIDs(); len(ids) > 0 {
			l.HostID = ids[0]
		}
	}
	return m
}

func (l *Lobby) isFull() bool { return len(l.members) >= l.MaxPlayers }

func (l *Lobby) isEmpty() bool { return len(l.members) == 0 }

func (l *Lobby) allReady() bool {
	for _, m := range l.members {
		if !m.Ready {
			return false
		}
	}
	return len(l.members) > 0
}

// connected reports whether pid currently has a live seat.
func (l *Lobby) connected(pid protocol.PlayerID) bool {
	_, ok := l.members[pid]
	return ok
}

// playerIDs returns member ids in ascending order.
func (l *Lobby) playerIDs() []protocol.PlayerID {
	ids := make([]protocol.PlayerID, 0, len(l.members))
	for id := range l.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (l *Lobby) memberList() []protocol.Member {
	list := make([]protocol.Member, 0, len(l.members))
	for _, id := range l.playerIDs() {
		m := l.members[id]
		list = append(list, protocol.Member{
			PlayerID: m.PlayerID,
			Name:     m.Name,
			Ready:    m.Ready,
			Host:     m.PlayerID == l.HostID,
		})
	}
	return list
}

func (l *Lobby) info() protocol.LobbyInfo {
	info := protocol.LobbyInfo{
		LobbyID:     l.ID,
		Name:        l.Name,
		PlayerCount: len(l.members),
		MaxPlayers:  l.MaxPlayers,
		InGame:      l.State == LobbyInGame,
	}
	if host, ok := l.members[l.HostID]; ok {
		info.HostName = host.Name
	}
	return info
}

// broadcast sends msg to every member in player id order.
func (l *Lobby) broadcast(msg protocol.Message) {
	for _, id := range l.playerIDs() {
		l.members[id].conn.Send(msg)
	}
}

func (l *Lobby) broadcastExcept(skip protocol.PlayerID, msg protocol.Message) {
	for _, id := range l.playerIDs() {
		if id != skip {
			l.members[id].conn.Send(msg)
		}
	}
}

func (l *Lobby) sendUpdate() {
	l.broadcast(protocol.LobbyUpdate{Members: l.memberList()})
}
