// services/directory.go
package services

import (
	"fmt"
	"sort"
	"time"

	"cuearena/models"
	"cuearena/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxRoomCodeAttempts = 16

// SessionDirectory owns every live MatchSession and the room code and identity indices that
// point at them. Like the sessions themselves it is only used from the dispatcher goroutine.
type SessionDirectory struct {
	sessions      map[string]*MatchSession
	byCode        map[string]string
	byPlayer      map[string]string
	maxSpectators int
	newCode       func() (string, error)
	log           zerolog.Logger
}

func NewSessionDirectory(maxSpectators int, log zerolog.Logger) *SessionDirectory {
	return &SessionDirectory{
		sessions:      make(map[string]*MatchSession),
		byCode:        make(map[string]string),
		byPlayer:      make(map[string]string),
		maxSpectators: maxSpectators,
		newCode:       utils.NewRoomCode,
		log:           log.With().Str("component", "directory").Logger(),
	}
}

func (d *SessionDirectory) uniqueCode() (string, error) {
	for i := 0; i < maxRoomCodeAttempts; i++ {
		code, err := d.newCode()
		if err != nil {
			return "", err
		}
		if _, taken := d.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to allocate a free room code after %d attempts", maxRoomCodeAttempts)
}

// checkWager rejects a stake the player cannot cover. Balances are single-currency, so a
// staked session must be in the player's currency.
func checkWager(p models.Player, wager int64, currency string) error {
	if wager < 0 {
		return rejectf(ErrInvalidMessage, "wager must not be negative")
	}
	if wager > 0 && currency != p.Currency {
		return rejectf(ErrInsufficientBalance, "no %s balance, account holds %s", currency, p.Currency)
	}
	if p.Balance < wager {
		return rejectf(ErrInsufficientBalance, "balance %d below wager %d", p.Balance, wager)
	}
	return nil
}

// Create opens a WAITING session hosted by host.
func (d *SessionDirectory) Create(host models.Player, wager int64, currency string, now time.Time) (*MatchSession, error) {
	if d.InSession(host.ID) {
		return nil, ErrAlreadyInSession
	}
	if currency == "" {
		currency = host.Currency
	}
	if err := checkWager(host, wager, currency); err != nil {
		return nil, err
	}

	code, err := d.uniqueCode()
	if err != nil {
		return nil, err
	}
	s := NewMatchSession(uuid.NewString(), code, host, wager, currency, d.maxSpectators, now)
	d.sessions[s.ID] = s
	d.byCode[code] = s.ID
	d.byPlayer[host.ID] = s.ID

	d.log.Info().Str("session_id", s.ID).Str("room_code", code).Str("host", host.ID).Int64("wager", wager).Msg("session created")
	return s, nil
}

// CreateMatched opens a READY session for a matchmaking pairing.
func (d *SessionDirectory) CreateMatched(host, guest models.Player, wager int64, currency string, now time.Time) (*MatchSession, error) {
	s, err := d.Create(host, wager, currency, now)
	if err != nil {
		return nil, err
	}
	if _, err := d.Join(s.RoomCode, guest, now); err != nil {
		d.Destroy(s.ID)
		return nil, err
	}
	return s, nil
}

// Join seats guest in the session behind code.
func (d *SessionDirectory) Join(code string, guest models.Player, now time.Time) (*MatchSession, error) {
	s, ok := d.ByCode(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if d.InSession(guest.ID) {
		return nil, ErrAlreadyInSession
	}
	if err := checkWager(guest, s.Wager, s.Currency); err != nil {
		return nil, err
	}
	if err := s.Join(guest, now); err != nil {
		return nil, err
	}
	d.byPlayer[guest.ID] = s.ID

	d.log.Info().Str("session_id", s.ID).Str("room_code", s.RoomCode).Str("guest", guest.ID).Msg("guest joined")
	return s, nil
}

// ActiveSessionFor returns the non-finished session the identity participates in.
func (d *SessionDirectory) ActiveSessionFor(playerID string) *MatchSession {
	id, ok := d.byPlayer[playerID]
	if !ok {
		return nil
	}
	s, ok := d.sessions[id]
	if !ok || !s.IsActive() {
		return nil
	}
	return s
}

func (d *SessionDirectory) InSession(playerID string) bool {
	return d.ActiveSessionFor(playerID) != nil
}

func (d *SessionDirectory) ByCode(code string) (*MatchSession, bool) {
	id, ok := d.byCode[utils.NormalizeRoomCode(code)]
	if !ok {
		return nil, false
	}
	s, ok := d.sessions[id]
	return s, ok
}

func (d *SessionDirectory) Get(id string) (*MatchSession, bool) {
	s, ok := d.sessions[id]
	return s, ok
}

// Release drops the identity mappings of a finished session so its players can queue again.
// The session itself stays addressable until it is swept.
func (d *SessionDirectory) Release(s *MatchSession) {
	for playerID, id := range d.byPlayer {
		if id == s.ID {
			delete(d.byPlayer, playerID)
		}
	}
}

// Unbind removes one identity mapping; used when a participant leaves a pre-game session.
func (d *SessionDirectory) Unbind(playerID string) {
	delete(d.byPlayer, playerID)
}

// Destroy removes a session and every index entry pointing at it.
func (d *SessionDirectory) Destroy(id string) *MatchSession {
	s, ok := d.sessions[id]
	if !ok {
		return nil
	}
	d.Release(s)
	delete(d.byCode, s.RoomCode)
	delete(d.sessions, id)

	d.log.Info().Str("session_id", id).Str("room_code", s.RoomCode).Str("status", string(s.Status())).Msg("session destroyed")
	return s
}

// SweepIdle destroys and returns every session, in any status, idle for at least timeout.
func (d *SessionDirectory) SweepIdle(now time.Time, timeout time.Duration) []*MatchSession {
	var idle []*MatchSession
	for _, s := range d.sessions {
		if s.IdleFor(now) >= timeout {
			idle = append(idle, s)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].ID < idle[j].ID })
	for _, s := range idle {
		d.Destroy(s.ID)
	}
	return idle
}

// Sessions returns every live session ordered by id.
func (d *SessionDirectory) Sessions() []*MatchSession {
	out := make([]*MatchSession, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *SessionDirectory) Counts() map[models.SessionStatus]int {
	counts := make(map[models.SessionStatus]int, 4)
	for _, s := range d.sessions {
		counts[s.Status()]++
	}
	return counts
}

func (d *SessionDirectory) Len() int {
	return len(d.sessions)
}
