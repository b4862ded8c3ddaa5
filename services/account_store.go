// services/account_store.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"cuearena/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileLoader resolves the player snapshot bound to a connection at authentication.
type ProfileLoader interface {
	LoadProfile(ctx context.Context, claim models.ProfileClaim) (models.Player, error)
}

// ClaimedProfiles trusts the client's claim. It is used when no database is configured.
type ClaimedProfiles struct{}

func (ClaimedProfiles) LoadProfile(_ context.Context, claim models.ProfileClaim) (models.Player, error) {
	return claim.Player(), nil
}

// AccountStore keeps ratings, balances and match history in PostgreSQL.
type AccountStore struct {
	DB  *gorm.DB
	log zerolog.Logger
}

func NewAccountStore(db *gorm.DB, log zerolog.Logger) *AccountStore {
	return &AccountStore{DB: db, log: log.With().Str("component", "accounts").Logger()}
}

func (s *AccountStore) Migrate() error {
	if err := s.DB.AutoMigrate(&models.PlayerAccount{}, &models.MatchRecord{}); err != nil {
		return fmt.Errorf("failed to migrate account tables: %w", err)
	}
	return nil
}

// LoadProfile returns the stored account for the identity, creating it from the claim the
// first time it is seen. Stored rating and balance win over claimed ones.
func (s *AccountStore) LoadProfile(ctx context.Context, claim models.ProfileClaim) (models.Player, error) {
	claimed := claim.Player()

	var acct models.PlayerAccount
	err := s.DB.WithContext(ctx).
		Where(models.PlayerAccount{PlayerID: claimed.ID}).
		Attrs(models.PlayerAccount{
			DisplayName: claimed.DisplayName,
			Rating:      models.DefaultRating,
			Balance:     claimed.Balance,
			Currency:    claimed.Currency,
		}).
		FirstOrCreate(&acct).Error
	if err != nil {
		return models.Player{}, fmt.Errorf("failed to load account %s: %w", claimed.ID, err)
	}

	if claim.DisplayName != "" && claim.DisplayName != acct.DisplayName {
		if err := s.DB.WithContext(ctx).Model(&acct).Update("display_name", claim.DisplayName).Error; err != nil {
			s.log.Warn().Err(err).Str("player_id", acct.PlayerID).Msg("failed to update display name")
		}
	}

	return models.Player{
		ID:          acct.PlayerID,
		DisplayName: acct.DisplayName,
		Rating:      acct.Rating,
		Balance:     acct.Balance,
		Currency:    acct.Currency,
	}, nil
}

func (s *AccountStore) settleAccount(tx *gorm.DB, side models.RatingSide, name, currency string, balanceDelta int64, won int) error {
	acct := models.PlayerAccount{
		PlayerID:    side.PlayerID,
		DisplayName: name,
		Rating:      side.After,
		Balance:     balanceDelta,
		Currency:    currency,
		GamesPlayed: 1,
		GamesWon:    won,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"rating":       side.After,
			"balance":      gorm.Expr("player_accounts.balance + ?", balanceDelta),
			"games_played": gorm.Expr("player_accounts.games_played + 1"),
			"games_won":    gorm.Expr("player_accounts.games_won + ?", won),
		}),
	}).Create(&acct).Error
}

// HandleCompletion applies the settlement and stores the match in one transaction.
func (s *AccountStore) HandleCompletion(ctx context.Context, ev models.CompletionEvent) error {
	shots, err := json.Marshal(ev.ShotHistory)
	if err != nil {
		return fmt.Errorf("failed to encode shot history: %w", err)
	}

	names := make(map[string]string, len(ev.Players))
	record := models.MatchRecord{
		ID:          uuid.NewString(),
		RoomCode:    ev.RoomCode,
		WinnerID:    ev.WinnerID,
		Reason:      string(ev.Reason),
		Wager:       ev.Wager,
		Currency:    ev.Currency,
		WinnerDelta: ev.RatingChange.Winner.Delta,
		LoserDelta:  ev.RatingChange.Loser.Delta,
		ShotCount:   len(ev.ShotHistory),
		ShotsJSON:   string(shots),
		DurationSec: int(ev.Duration.Seconds()),
		FinishedAt:  ev.FinishedAt,
	}
	for _, p := range ev.Players {
		names[p.PlayerID] = p.DisplayName
		if p.Slot == models.HostSlot {
			record.HostID = p.PlayerID
		} else {
			record.GuestID = p.PlayerID
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.settleAccount(tx, ev.RatingChange.Winner, names[ev.WinnerID], ev.Currency, ev.Wager, 1); err != nil {
			return fmt.Errorf("failed to settle winner: %w", err)
		}
		if err := s.settleAccount(tx, ev.RatingChange.Loser, names[ev.LoserID], ev.Currency, -ev.Wager, 0); err != nil {
			return fmt.Errorf("failed to settle loser: %w", err)
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to store match record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("session_id", ev.SessionID).Str("winner", ev.WinnerID).Str("match_id", record.ID).Msg("match settled")
	return nil
}
