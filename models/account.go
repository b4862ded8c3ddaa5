package models

import (
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// PlayerAccount is the persisted rating and balance of an identity.
type PlayerAccount struct {
	PlayerID    string `gorm:"primaryKey;type:varchar(128)" json:"player_id"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Rating      int    `gorm:"not null;default:1200" json:"rating"`
	Balance     int64  `gorm:"not null;default:0" json:"balance"`
	Currency    string `gorm:"type:varchar(16);not null;default:'coins'" json:"currency"`
	GamesPlayed int    `gorm:"not null;default:0" json:"games_played"`
	GamesWon    int    `gorm:"not null;default:0" json:"games_won"`

	Timestamps
}

// MatchRecord is one finished session as kept by the history collaborator.
type MatchRecord struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	RoomCode    string    `gorm:"type:varchar(6);index" json:"room_code"`
	HostID      string    `gorm:"index;not null" json:"host_id"`
	GuestID     string    `gorm:"index;not null" json:"guest_id"`
	WinnerID    string    `gorm:"index;not null" json:"winner_id"`
	Reason      string    `gorm:"type:varchar(16);check:reason IN ('completed','forfeit','disconnect')" json:"reason"`
	Wager       int64     `json:"wager"`
	Currency    string    `gorm:"type:varchar(16)" json:"currency"`
	WinnerDelta int       `json:"winner_delta"`
	LoserDelta  int       `json:"loser_delta"`
	ShotCount   int       `json:"shot_count"`
	ShotsJSON   string    `gorm:"type:jsonb" json:"shots"`
	DurationSec int       `gorm:"default:0" json:"duration_sec"`
	FinishedAt  time.Time `gorm:"index" json:"finished_at"`

	Timestamps
}
