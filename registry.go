package main

import (
	"errors"
	"sort"
	"time"

	"coopshooter/protocol"
)

// Registry errors. Their text is what clients see in LOBBY_ERROR.
var (
	ErrLobbyNotFound   = errors.New("lobby not found")
	ErrLobbyFull       = errors.New("lobby full")
	ErrLobbyInProgress = errors.New("game already in progress")
	ErrAlreadyInLobby  = errors.New("already in a lobby")
	ErrNotInLobby      = errors.New("not in a lobby")
	ErrTooManyLobbies  = errors.New("too many lobbies")
	ErrResumeRejected  = errors.New("resume rejected")
	ErrGameStartFailed = errors.New("failed to start game")
)

// seat is the lobby position a connection currently holds.
type seat struct {
	lobbyID  string
	playerID protocol.PlayerID
}

// RegistryConfig wires a LobbyRegistry to its collaborators.
type RegistryConfig struct {
	MaxLobbies int
	TickRate   int
	Engine     EngineFactory
	// Resume enables seat recovery after a dropped connection. Optional.
	Resume *ResumeTokens
	// Analytics receives lobby events and match records. Optional.
	Analytics *Analytics
	// Seed returns the RNG seed for a new match. Defaults to the clock.
	Seed func() int64
}

// LobbyRegistry owns every lobby and the seat of every connection. All
// methods must be called from the hub goroutine.
type LobbyRegistry struct {
	lobbies map[string]*Lobby
	seats   map[uint64]seat
	cfg     RegistryConfig
}

// NewLobbyRegistry creates an empty registry.
func NewLobbyRegistry(cfg RegistryConfig) *LobbyRegistry {
	if cfg.Seed == nil {
		cfg.Seed = func() int64 { return time.Now().UnixNano() }
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	return &LobbyRegistry{
		lobbies: make(map[string]*Lobby),
		seats:   make(map[uint64]seat),
		cfg:     cfg,
	}
}

// Create opens a lobby with c as its host.
func (r *LobbyRegistry) Create(c Conn, playerName, lobbyName string) error {
	if _, ok := r.seats[c.ID()]; ok {
		return ErrAlreadyInLobby
	}
	if r.cfg.MaxLobbies > 0 && len(r.lobbies) >= r.cfg.MaxLobbies {
		return ErrTooManyLobbies
	}
	playerName = cleanName(playerName, maxNameLen, defaultPlayerName)
	lobbyName = cleanName(lobbyName, maxNameLen*2, playerName+"'s Game")

	lobby := newLobby(r.newLobbyID(), lobbyName)
	pid := protocol.PlayerID(c.ID())
	lobby.addMember(&Member{PlayerID: pid, Name: playerName, conn: c})
	r.lobbies[lobby.ID] = lobby
	r.seats[c.ID()] = seat{lobbyID: lobby.ID, playerID: pid}

	Log.Infow("Lobby created", "lobby", lobby.ID, "name", lobbyName, "host", pid)
	r.cfg.Analytics.Track(EvtLobbyCreated, pid, lobby.ID, "")

	c.Send(protocol.LobbyCreated{LobbyID: lobby.ID, PlayerID: pid})
	lobby.sendUpdate()
	return nil
}

// newLobbyID returns a short id not used by any existing lobby.
func (r *LobbyRegistry) newLobbyID() string {
	for {
		id := ShortID(lobbyIDLen)
		if _, taken := r.lobbies[id]; !taken {
			return id
		}
	}
}

// Join seats c in an open lobby.
func (r *LobbyRegistry) Join(c Conn, lobbyID, playerName string) error {
	if _, ok := r.seats[c.ID()]; ok {
		return ErrAlreadyInLobby
	}
	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		return ErrLobbyNotFound
	}
	if lobby.isFull() {
		return ErrLobbyFull
	}
	if lobby.State == LobbyInGame {
		return ErrLobbyInProgress
	}
	playerName = cleanName(playerName, maxNameLen, defaultPlayerName)
	pid := protocol.PlayerID(c.ID())
	lobby.addMember(&Member{PlayerID: pid, Name: playerName, conn: c})
	r.seats[c.ID()] = seat{lobbyID: lobby.ID, playerID: pid}

	Log.Infow("Player joined lobby", "lobby", lobby.ID, "player", pid, "name", playerName)
	r.cfg.Analytics.Track(EvtLobbyJoined, pid, lobby.ID, "")

	c.Send(protocol.LobbyJoined{LobbyID: lobby.ID, PlayerID: pid, Members: lobby.memberList()})
	lobby.broadcastExcept(pid, protocol.PlayerJoined{PlayerID: pid, Name: playerName})
	lobby.sendUpdate()
	return nil
}

// Leave removes c from its lobby at the player's request. A resumable seat
// is forfeited.
func (r *LobbyRegistry) Leave(c Conn) error {
	if _, ok := r.seats[c.ID()]; !ok {
		return ErrNotInLobby
	}
	r.vacate(c.ID(), true)
	return nil
}

// Disconnect tears down whatever seat c held after its transport closed.
// Unknown connections are ignored.
func (r *LobbyRegistry) Disconnect(c Conn) {
	if _, ok := r.seats[c.ID()]; ok {
		r.vacate(c.ID(), false)
	}
}

func (r *LobbyRegistry) vacate(connID uint64, explicit bool) {
	s := r.seats[connID]
	delete(r.seats, connID)
	lobby, ok := r.lobbies[s.lobbyID]
	if !ok {
		return
	}
	m := lobby.removeMember(s.playerID)
	if m == nil {
		return
	}
	Log.Infow("Player left lobby", "lobby", lobby.ID, "player", s.playerID, "explicit", explicit)
	r.cfg.Analytics.Track(EvtLobbyLeft, s.playerID, lobby.ID, "")

	if lobby.game != nil {
		lobby.game.ClearIntent(s.playerID)
		if m.resumeID != "" && r.cfg.Resume != nil {
			if explicit {
				r.cfg.Resume.Forget(m.resumeID)
			} else {
				r.cfg.Resume.Detach(m.resumeID, DetachedSeat{
					LobbyID:  lobby.ID,
					PlayerID: m.PlayerID,
					Name:     m.Name,
				})
			}
		}
	}

	if lobby.isEmpty() {
		r.closeLobby(lobby)
		return
	}
	lobby.broadcast(protocol.PlayerLeft{PlayerID: s.playerID})
	lobby.sendUpdate()
}

func (r *LobbyRegistry) closeLobby(lobby *Lobby) {
	delete(r.lobbies, lobby.ID)
	if lobby.game != nil && !lobby.game.Concluded() {
		lobby.game.Abandon()
		r.recordMatch(lobby)
	}
	Log.Infow("Lobby closed", "lobby", lobby.ID)
	r.cfg.Analytics.Track(EvtLobbyClosed, 0, lobby.ID, "")
}

// Ready marks c's member ready and starts the game once the lobby is full
// and everyone is ready. Ready in a running game is a no-op.
func (r *LobbyRegistry) Ready(c Conn) error {
	s, ok := r.seats[c.ID()]
	if !ok {
		return ErrNotInLobby
	}
	lobby := r.lobbies[s.lobbyID]
	if lobby.State != LobbyOpen {
		return nil
	}
	lobby.members[s.playerID].Ready = true
	lobby.sendUpdate()

	if lobby.isFull() && lobby.allReady() {
		return r.startGame(lobby)
	}
	return nil
}

// startGame moves lobby to IN_GAME and sends every member GAME_START once.
func (r *LobbyRegistry) startGame(lobby *Lobby) error {
	ids := lobby.playerIDs()
	slots := make([]PlayerSlot, 0, len(ids))
	for _, id := range ids {
		slots = append(slots, PlayerSlot{PlayerID: id, Name: lobby.members[id].Name})
	}
	sess, err := NewGameSession(lobby.ID, slots, r.cfg.Engine, r.cfg.Seed(), r.cfg.TickRate)
	if err != nil {
		Log.Errorw("Could not start game", "lobby", lobby.ID, "error", err)
		for _, m := range lobby.members {
			m.Ready = false
		}
		lobby.sendUpdate()
		return ErrGameStartFailed
	}
	lobby.State = LobbyInGame
	lobby.game = sess

	Log.Infow("Game started", "lobby", lobby.ID, "players", len(slots))
	r.cfg.Analytics.Track(EvtMatchStart, 0, lobby.ID, "")

	for _, id := range ids {
		m := lobby.members[id]
		start := protocol.GameStart{}
		if r.cfg.Resume != nil {
			token, tokenID, err := r.cfg.Resume.Issue(lobby.ID, id)
			if err != nil {
				Log.Warnw("Could not issue resume token", "lobby", lobby.ID, "player", id, "error", err)
			} else {
				start.ResumeToken = token
				m.resumeID = tokenID
			}
		}
		m.conn.Send(start)
	}
	return nil
}

// Input records the latest intent of c. It is ignored unless c is seated in
// a running game.
func (r *LobbyRegistry) Input(c Conn, in protocol.Input) {
	s, ok := r.seats[c.ID()]
	if !ok {
		return
	}
	lobby := r.lobbies[s.lobbyID]
	if lobby.game == nil {
		return
	}
	lobby.game.SetIntent(s.playerID, intentFromInput(in))
}

// Rejoin restores a seat dropped mid-game onto connection c.
func (r *LobbyRegistry) Rejoin(c Conn, token string) error {
	if _, ok := r.seats[c.ID()]; ok {
		return ErrAlreadyInLobby
	}
	if r.cfg.Resume == nil {
		return ErrResumeRejected
	}
	detached, tokenID, err := r.cfg.Resume.Claim(token)
	if err != nil {
		Log.Infow("Resume rejected", "conn", c.ID(), "error", err)
		return ErrResumeRejected
	}
	lobby, ok := r.lobbies[detached.LobbyID]
	if !ok {
		return ErrLobbyNotFound
	}
	if lobby.State != LobbyInGame || lobby.connected(detached.PlayerID) {
		return ErrResumeRejected
	}
	if lobby.isFull() {
		return ErrLobbyFull
	}

	pid := detached.PlayerID
	lobby.addMember(&Member{PlayerID: pid, Name: detached.Name, Ready: true, conn: c, resumeID: tokenID})
	r.seats[c.ID()] = seat{lobbyID: lobby.ID, playerID: pid}

	Log.Infow("Player resumed seat", "lobby", lobby.ID, "player", pid, "conn", c.ID())
	r.cfg.Analytics.Track(EvtPlayerResumed, pid, lobby.ID, "")

	c.Send(protocol.LobbyJoined{LobbyID: lobby.ID, PlayerID: pid, Members: lobby.memberList()})
	c.Send(protocol.GameStart{ResumeToken: token})
	if msg := lobby.game.TerminalMessage(); msg != nil {
		c.Send(msg)
	}
	lobby.broadcastExcept(pid, protocol.PlayerJoined{PlayerID: pid, Name: detached.Name})
	lobby.sendUpdate()
	return nil
}

// List returns the joinable lobbies ordered by id.
func (r *LobbyRegistry) List() []protocol.LobbyInfo {
	list := make([]protocol.LobbyInfo, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		if l.State == LobbyOpen && !l.isFull() {
			list = append(list, l.info())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LobbyID < list[j].LobbyID })
	return list
}

// All returns every lobby, open or not, ordered by id.
func (r *LobbyRegistry) All() []protocol.LobbyInfo {
	list := make([]protocol.LobbyInfo, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		list = append(list, l.info())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LobbyID < list[j].LobbyID })
	return list
}

// Lobby looks up a lobby by id.
func (r *LobbyRegistry) Lobby(id string) (*Lobby, bool) {
	l, ok := r.lobbies[id]
	return l, ok
}

// LobbyCount is the number of existing lobbies.
func (r *LobbyRegistry) LobbyCount() int { return len(r.lobbies) }

// runningGames returns the lobbies whose game still needs stepping.
func (r *LobbyRegistry) runningGames() []*Lobby {
	var running []*Lobby
	for _, l := range r.lobbies {
		if l.game != nil && !l.game.Concluded() {
			running = append(running, l)
		}
	}
	return running
}

// recordMatch hands a concluded match to analytics for persistence.
func (r *LobbyRegistry) recordMatch(lobby *Lobby) {
	if r.cfg.Analytics == nil || lobby.game == nil {
		return
	}
	sess := lobby.game
	rec := MatchRecord{
		LobbyID:  lobby.ID,
		Name:     lobby.Name,
		Outcome:  sess.Outcome().String(),
		Ticks:    sess.Tick(),
		Duration: time.Since(sess.StartedAt),
		EndedAt:  time.Now().UTC(),
	}
	if err := sess.Err(); err != nil {
		rec.Error = err.Error()
	}
	stats := sess.PlayerStats()
	final := make(map[protocol.PlayerID]protocol.PlayerState)
	for _, ps := range sess.LastSnapshot().Players {
		final[ps.PlayerID] = ps
	}
	for _, p := range sess.Players() {
		mp := MatchPlayer{PlayerID: p.PlayerID, Name: p.Name, Stats: stats[p.PlayerID]}
		if ps, ok := final[p.PlayerID]; ok {
			mp.FinalHP = ps.HP
			mp.Survived = ps.Alive
		}
		rec.Players = append(rec.Players, mp)
	}
	AwardCommendations(&rec)
	r.cfg.Analytics.RecordMatch(rec)
}

// errorMessage maps a registry error to the reply sent to the client.
func errorMessage(err error) protocol.LobbyError {
	return protocol.LobbyError{Error: err.Error()}
}
