package models

// Player is the session-scoped view of an account. It is a value type: queue entries and
// session slots each hold their own copy so that one record never mutates another.
type Player struct {
	ID          string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Rating      int    `json:"rating"`
	Balance     int64  `json:"balance"`
	Currency    string `json:"currency"`

	// ConnID is the transient connection currently bound to this identity.
	ConnID string `json:"-"`
}

// ProfileClaim is what a client sends in its authenticate message. Values other than the
// identity are only trusted when no account store is configured.
type ProfileClaim struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Rating      int    `json:"rating"`
	Balance     int64  `json:"balance"`
	Currency    string `json:"currency"`
}

const (
	DefaultRating   = 1200
	DefaultCurrency = "coins"
)

// Player converts the claim into a player snapshot, filling defaults.
func (c ProfileClaim) Player() Player {
	p := Player{
		ID:          c.PlayerID,
		DisplayName: c.DisplayName,
		Rating:      c.Rating,
		Balance:     c.Balance,
		Currency:    c.Currency,
	}
	if p.DisplayName == "" {
		p.DisplayName = c.PlayerID
	}
	if p.Rating <= 0 {
		p.Rating = DefaultRating
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	return p
}
