package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"coopshooter/protocol"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	// resumeTokenLifetime bounds how long a token stays verifiable. The
	// reconnect window itself is enforced by the detached-seat cache.
	resumeTokenLifetime = 6 * time.Hour
	resumeSecretKey     = "resume_secret"
	resumeIssuer        = "coopshooter"
)

var errSeatNotDetached = errors.New("no detached seat for token")

// ResumeClaims identify the seat a resume token can reclaim.
type ResumeClaims struct {
	LobbyID  string            `json:"lid"`
	PlayerID protocol.PlayerID `json:"pid"`
	jwt.RegisteredClaims
}

// DetachedSeat is a mid-game seat whose connection dropped.
type DetachedSeat struct {
	LobbyID  string
	PlayerID protocol.PlayerID
	Name     string
}

// ResumeTokens issues signed resume tokens and remembers dropped seats for
// the reconnect window.
type ResumeTokens struct {
	secret   []byte
	detached *cache.Cache
}

// NewResumeTokens creates a token issuer. Detached seats expire after window.
func NewResumeTokens(secret []byte, window time.Duration) *ResumeTokens {
	return &ResumeTokens{
		secret:   secret,
		detached: cache.New(window, window),
	}
}

// LoadResumeSecret decodes the configured hex secret, or falls back to one
// persisted in db, generating and storing a fresh one when neither exists.
func LoadResumeSecret(configured string, db *DB) ([]byte, error) {
	if configured != "" {
		b, err := hex.DecodeString(configured)
		if err != nil {
			return nil, fmt.Errorf("decoding game.resume_secret: %w", err)
		}
		if len(b) < 16 {
			return nil, fmt.Errorf("game.resume_secret must be at least 16 bytes, got %d", len(b))
		}
		return b, nil
	}
	if db != nil {
		if h := db.GetSetting(resumeSecretKey); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b, nil
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating resume secret: %w", err)
	}
	if db != nil {
		if err := db.SetSetting(resumeSecretKey, hex.EncodeToString(secret)); err != nil {
			Log.Warnw("Could not persist resume secret", "error", err)
		}
	}
	return secret, nil
}

// Issue signs a token for pid's seat in lobbyID. It returns the token and
// its id.
func (t *ResumeTokens) Issue(lobbyID string, pid protocol.PlayerID) (string, string, error) {
	now := time.Now()
	id := uuid.NewString()
	claims := ResumeClaims{
		LobbyID:  lobbyID,
		PlayerID: pid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    resumeIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(resumeTokenLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing resume token: %w", err)
	}
	return signed, id, nil
}

// Detach makes seat reclaimable with the token tokenID for the window.
func (t *ResumeTokens) Detach(tokenID string, seat DetachedSeat) {
	t.detached.Set(tokenID, seat, cache.DefaultExpiration)
}

// Forget drops any detached seat for tokenID.
func (t *ResumeTokens) Forget(tokenID string) {
	t.detached.Delete(tokenID)
}

// Claim verifies token and consumes its detached seat. A seat can be claimed
// at most once per detach.
func (t *ResumeTokens) Claim(token string) (DetachedSeat, string, error) {
	claims := &ResumeClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(resumeIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return DetachedSeat{}, "", fmt.Errorf("verifying resume token: %w", err)
	}
	v, ok := t.detached.Get(claims.ID)
	if !ok {
		return DetachedSeat{}, "", errSeatNotDetached
	}
	seat := v.(DetachedSeat)
	if seat.LobbyID != claims.LobbyID || seat.PlayerID != claims.PlayerID {
		return DetachedSeat{}, "", errSeatNotDetached
	}
	t.detached.Delete(claims.ID)
	return seat, claims.ID, nil
}

// Pending is the number of seats currently awaiting reconnection.
func (t *ResumeTokens) Pending() int {
	return t.detached.ItemCount()
}
