// Package protocol defines the messages exchanged between the game server
// and its clients, and the codec that puts them on the wire.
package protocol

// Type identifies a message on the wire.
type Type string

// Client -> Server message types
const (
	TypeListLobbies Type = "LIST_LOBBIES"
	TypeCreateLobby Type = "CREATE_LOBBY"
	TypeJoinLobby   Type = "JOIN_LOBBY"
	TypeLeaveLobby  Type = "LEAVE_LOBBY"
	TypeReady       Type = "READY"
	TypeInput       Type = "INPUT"
	TypeRejoin      Type = "REJOIN"
)

// Server -> Client message types
const (
	TypeLobbyList    Type = "LOBBY_LIST"
	TypeLobbyCreated Type = "LOBBY_CREATED"
	TypeLobbyJoined  Type = "LOBBY_JOINED"
	TypeLobbyUpdate  Type = "LOBBY_UPDATE"
	TypeLobbyError   Type = "LOBBY_ERROR"
	TypePlayerJoined Type = "PLAYER_JOINED"
	TypePlayerLeft   Type = "PLAYER_LEFT"
	TypeGameStart    Type = "GAME_START"
	TypeState        Type = "STATE"
	TypeGameOver     Type = "GAME_OVER"
	TypeVictory      Type = "VICTORY"
)

// PlayerID is the server-assigned identity of a seated player. It is the id
// of the connection that first took the seat.
type PlayerID uint64

// Handle is a stable per-session entity id. Handles are never reused within
// one game session.
type Handle uint64

// Message is implemented by every wire message.
type Message interface {
	MessageType() Type
}

// ListLobbies asks for the joinable lobbies.
type ListLobbies struct{}

// CreateLobby opens a new lobby with the sender as host.
type CreateLobby struct {
	PlayerName string `json:"player_name"`
	LobbyName  string `json:"lobby_name"`
}

// JoinLobby takes a free seat in an open lobby.
type JoinLobby struct {
	PlayerName string `json:"player_name"`
	LobbyID    string `json:"lobby_id"`
}

// LeaveLobby gives up the sender's seat.
type LeaveLobby struct{}

// Ready marks the sender as ready to start.
type Ready struct{}

// Input is the sender's latest intent. Only the most recent one per tick is used.
type Input struct {
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
	Shoot bool    `json:"shoot"`
}

// Rejoin reclaims a seat lost to a dropped connection during a match.
type Rejoin struct {
	Token string `json:"token"`
}

// LobbyInfo describes one entry of a lobby listing.
type LobbyInfo struct {
	LobbyID     string `json:"lobby_id"`
	Name        string `json:"name"`
	HostName    string `json:"host_name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	InGame      bool   `json:"in_game"`
}

// Member is one seat of a lobby as seen by clients.
type Member struct {
	PlayerID PlayerID `json:"player_id"`
	Name     string   `json:"name"`
	Ready    bool     `json:"ready"`
	Host     bool     `json:"host"`
}

// LobbyList answers ListLobbies.
type LobbyList struct {
	Lobbies []LobbyInfo `json:"lobbies"`
}

// LobbyCreated confirms CreateLobby.
type LobbyCreated struct {
	LobbyID  string   `json:"lobby_id"`
	PlayerID PlayerID `json:"player_id"`
}

// LobbyJoined confirms JoinLobby (or Rejoin) to the joiner.
type LobbyJoined struct {
	LobbyID  string   `json:"lobby_id"`
	PlayerID PlayerID `json:"player_id"`
	Members  []Member `json:"members"`
}

// LobbyUpdate carries the full membership after any change.
type LobbyUpdate struct {
	Members []Member `json:"members"`
}

// LobbyError reports a recoverable control-plane failure.
type LobbyError struct {
	Error string `json:"error"`
}

// PlayerJoined tells existing members about a new one.
type PlayerJoined struct {
	PlayerID PlayerID `json:"player_id"`
	Name     string   `json:"name"`
}

// PlayerLeft tells remaining members about a departure.
type PlayerLeft struct {
	PlayerID PlayerID `json:"player_id"`
}

// GameStart is sent once to each member when the match begins.
type GameStart struct {
	ResumeToken string `json:"resume_token,omitempty"`
}

// PlayerState is the render view of a player ship.
type PlayerState struct {
	ID       Handle   `json:"id"`
	PlayerID PlayerID `json:"player_id"`
	Name     string   `json:"name"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	HP       int      `json:"hp"`
	MaxHP    int      `json:"max_hp"`
	Alive    bool     `json:"alive"`
	Power    string   `json:"power,omitempty"`
}

// EnemyState is the render view of an enemy (bosses included).
type EnemyState struct {
	ID    Handle  `json:"id"`
	Kind  string  `json:"kind"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	HP    int     `json:"hp"`
	MaxHP int     `json:"max_hp"`
	Phase int     `json:"phase,omitempty"`
}

// ProjectileState is the render view of a shot.
type ProjectileState struct {
	ID    Handle  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Owner Handle  `json:"owner"`
}

// PowerupState is the render view of a pickup.
type PowerupState struct {
	ID   Handle  `json:"id"`
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// ExplosionState is a transient effect; Progress runs from 0 to 1.
type ExplosionState struct {
	ID       Handle  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Radius   float64 `json:"radius"`
	Progress float64 `json:"progress"`
}

// State is the full authoritative snapshot for one tick.
type State struct {
	Players          []PlayerState     `json:"players"`
	Enemies          []EnemyState      `json:"enemies"`
	Projectiles      []ProjectileState `json:"projectiles"`
	EnemyProjectiles []ProjectileState `json:"enemy_projectiles"`
	Powerups         []PowerupState    `json:"powerups"`
	Explosions       []ExplosionState  `json:"explosions"`
	Timer            uint64            `json:"timer"`
}

// GameOver ends the match in defeat (or after a simulation failure).
type GameOver struct {
	Reason string `json:"reason,omitempty"`
}

// Victory ends the match after the final boss falls.
type Victory struct{}

func (ListLobbies) MessageType() Type  { return TypeListLobbies }
func (CreateLobby) MessageType() Type  { return TypeCreateLobby }
func (JoinLobby) MessageType() Type    { return TypeJoinLobby }
func (LeaveLobby) MessageType() Type   { return TypeLeaveLobby }
func (Ready) MessageType() Type        { return TypeReady }
func (Input) MessageType() Type        { return TypeInput }
func (Rejoin) MessageType() Type       { return TypeRejoin }
func (LobbyList) MessageType() Type    { return TypeLobbyList }
func (LobbyCreated) MessageType() Type { return TypeLobbyCreated }
func (LobbyJoined) MessageType() Type  { return TypeLobbyJoined }
func (LobbyUpdate) MessageType() Type  { return TypeLobbyUpdate }
func (LobbyError) MessageType() Type   { return TypeLobbyError }
func (PlayerJoined) MessageType() Type { return TypePlayerJoined }
func (PlayerLeft) MessageType() Type   { return TypePlayerLeft }
func (GameStart) MessageType() Type    { return TypeGameStart }
func (State) MessageType() Type        { return TypeState }
func (GameOver) MessageType() Type     { return TypeGameOver }
func (Victory) MessageType() Type      { return TypeVictory }

// FromClient reports whether t is a message clients may send.
func FromClient(t Type) bool {
	switch t {
	case TypeListLobbies, TypeCreateLobby, TypeJoinLobby, TypeLeaveLobby,
		TypeReady, TypeInput, TypeRejoin:
		return true
	}
	return false
}
