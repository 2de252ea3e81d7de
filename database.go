package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coopshooter/protocol"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// MatchRecord is a concluded (or abandoned) match ready for persistence.
type MatchRecord struct {
	ID       int64
	LobbyID  string
	Name     string
	Outcome  string
	Ticks    uint64
	Duration time.Duration
	Error    string
	EndedAt  time.Time
	Players  []MatchPlayer
}

// MatchPlayer is one player's part in a match.
type MatchPlayer struct {
	PlayerID protocol.PlayerID
	Name     string
	FinalHP  int
	Survived bool
	Stats    PlayerStats
	Awards   []string
}

// matchSummary is the msgpack blob stored per match player.
type matchSummary struct {
	FinalHP  int         `msgpack:"final_hp"`
	Survived bool        `msgpack:"survived"`
	Stats    PlayerStats `msgpack:"stats"`
	Awards   []string    `msgpack:"awards,omitempty"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lobby_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		ticks INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		ended_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id INTEGER NOT NULL REFERENCES matches(id),
		player_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		summary BLOB,
		PRIMARY KEY (match_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_id INTEGER,
		lobby_id TEXT,
		data TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_ended ON matches(ended_at);
	CREATE INDEX IF NOT EXISTS idx_events_type ON analytics_events(event_type, created_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		Log.Errorw("DB migration error", "error", err)
	}
	return err
}

// GetSetting returns a stored setting, or "" when unset.
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			Log.Warnw("Reading setting failed", "key", key, "error", err)
		}
		return ""
	}
	return value
}

// SetSetting stores a setting, replacing any previous value.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// SaveMatch records a match and its players in one transaction and returns
// the match id.
func (db *DB) SaveMatch(rec MatchRecord) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO matches (lobby_id, name, outcome, ticks, duration, error, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.LobbyID, rec.Name, rec.Outcome, rec.Ticks, rec.Duration.Seconds(), rec.Error,
		rec.EndedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting match: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, p := range rec.Players {
		blob, err := msgpack.Marshal(matchSummary{FinalHP: p.FinalHP, Survived: p.Survived, Stats: p.Stats, Awards: p.Awards})
		if err != nil {
			return 0, fmt.Errorf("encoding summary for player %d: %w", p.PlayerID, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO match_players (match_id, player_id, name, summary) VALUES (?, ?, ?, ?)",
			id, int64(p.PlayerID), p.Name, blob,
		); err != nil {
			return 0, fmt.Errorf("inserting match player: %w", err)
		}
	}
	return id, tx.Commit()
}

// RecentMatches returns the latest matches, newest first, with their players.
func (db *DB) RecentMatches(limit int) ([]MatchRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, lobby_id, name, outcome, ticks, duration, error, ended_at
		FROM matches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchRecord
	for rows.Next() {
		var m MatchRecord
		var secs float64
		var ended string
		if err := rows.Scan(&m.ID, &m.LobbyID, &m.Name, &m.Outcome, &m.Ticks, &secs, &m.Error, &ended); err != nil {
			return nil, err
		}
		m.Duration = time.Duration(secs * float64(time.Second))
		m.EndedAt, _ = time.Parse(time.RFC3339, ended)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		players, err := db.matchPlayers(result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Players = players
	}
	return result, nil
}

func (db *DB) matchPlayers(matchID int64) ([]MatchPlayer, error) {
	rows, err := db.conn.Query(
		"SELECT player_id, name, summary FROM match_players WHERE match_id = ? ORDER BY player_id",
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchPlayer
	for rows.Next() {
		var p MatchPlayer
		var pid int64
		var blob []byte
		if err := rows.Scan(&pid, &p.Name, &blob); err != nil {
			return nil, err
		}
		p.PlayerID = protocol.PlayerID(pid)
		var sum matchSummary
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &sum); err != nil {
				return nil, fmt.Errorf("decoding summary for match %d: %w", matchID, err)
			}
		}
		p.FinalHP, p.Survived, p.Stats, p.Awards = sum.FinalHP, sum.Survived, sum.Stats, sum.Awards
		result = append(result, p)
	}
	return result, rows.Err()
}

// OutcomeCounts returns how many recorded matches ended in each outcome.
func (db *DB) OutcomeCounts() (map[string]int, error) {
	rows, err := db.conn.Query("SELECT outcome, COUNT(*) FROM matches GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		result[outcome] = n
	}
	return result, rows.Err()
}
