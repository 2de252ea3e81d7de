package main

import (
	"database/sql"
	"sync"
	"time"

	"coopshooter/protocol"
)

// Event types for analytics tracking
const (
	EvtConnect       = "connect"
	EvtDisconnect    = "disconnect"
	EvtLobbyCreated  = "lobby_created"
	EvtLobbyJoined   = "lobby_joined"
	EvtLobbyLeft     = "lobby_left"
	EvtLobbyClosed   = "lobby_closed"
	EvtMatchStart    = "match_start"
	EvtMatchEnd      = "match_end"
	EvtPlayerResumed = "player_resumed"
	EvtProtocolError = "protocol_error"
)

const (
	analyticsQueueSize  = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	PlayerID  protocol.PlayerID
	LobbyID   string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes. A nil
// *Analytics discards everything, so callers never need to check.
type Analytics struct {
	db      *DB
	events  chan AnalyticsEvent
	matches chan MatchRecord
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:      db,
		events:  make(chan AnalyticsEvent, analyticsQueueSize),
		matches: make(chan MatchRecord, 64),
		stop:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, playerID protocol.PlayerID, lobbyID string, data string) {
	if a == nil {
		return
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		PlayerID:  playerID,
		LobbyID:   lobbyID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Queue full; drop rather than stall the hub loop
	}
}

// RecordMatch enqueues a concluded match for the history tables (non-blocking)
func (a *Analytics) RecordMatch(rec MatchRecord) {
	if a == nil {
		return
	}
	a.Track(EvtMatchEnd, 0, rec.LobbyID, `{"outcome":"`+rec.Outcome+`"}`)
	select {
	case a.matches <- rec:
	default:
		Log.Warnw("Match record dropped, queue full", "lobby", rec.LobbyID)
	}
}

// Stop gracefully shuts down the analytics writer
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	close(a.stop)
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case rec := <-a.matches:
			a.saveMatch(rec)
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain whatever is still queued
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				case rec := <-a.matches:
					a.saveMatch(rec)
				default:
					a.flush(batch)
					return
				}
			}
		}
	}
}

func (a *Analytics) saveMatch(rec MatchRecord) {
	if a.db == nil {
		return
	}
	if _, err := a.db.SaveMatch(rec); err != nil {
		Log.Errorw("Could not save match", "lobby", rec.LobbyID, "error", err)
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		Log.Errorw("analytics: begin tx", "error", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, player_id, lobby_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		Log.Errorw("analytics: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		pid := sql.NullInt64{Int64: int64(evt.PlayerID), Valid: evt.PlayerID > 0}
		lid := sql.NullString{String: evt.LobbyID, Valid: evt.LobbyID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, pid, lid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			Log.Errorw("analytics: insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		Log.Errorw("analytics: commit", "error", err)
	}
}

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}
