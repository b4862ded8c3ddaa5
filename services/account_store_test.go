package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cuearena/models"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *AccountStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "accounts.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewAccountStore(db, zerolog.Nop())
	require.NoError(t, store.Migrate())
	return store
}

func loadAccount(t *testing.T, store *AccountStore, playerID string) models.PlayerAccount {
	t.Helper()
	var acct models.PlayerAccount
	require.NoError(t, store.DB.First(&acct, "player_id = ?", playerID).Error)
	return acct
}

func settledEvent(wager int64) models.CompletionEvent {
	return models.CompletionEvent{
		SessionID: "s-1",
		RoomCode:  "AB12CD",
		Players: []models.CompletionPlayer{
			{Slot: models.HostSlot, PlayerID: "host", DisplayName: "Host"},
			{Slot: models.GuestSlot, PlayerID: "guest", DisplayName: "Guest"},
		},
		WinnerSlot: models.HostSlot,
		WinnerID:   "host",
		LoserID:    "guest",
		Reason:     models.ReasonCompleted,
		Wager:      wager,
		Currency:   models.DefaultCurrency,
		RatingChange: models.RatingChange{
			Winner: models.RatingSide{PlayerID: "host", Before: 1200, After: 1216, Delta: 16},
			Loser:  models.RatingSide{PlayerID: "guest", Before: 1200, After: 1184, Delta: -16},
		},
		ShotHistory: []models.ShotRecord{
			{Slot: models.HostSlot, PlayerID: "host", Power: 80, TakenAt: t0},
			{Slot: models.GuestSlot, PlayerID: "guest", Power: 40, TakenAt: t0.Add(time.Second)},
		},
		Duration:   90 * time.Second,
		FinishedAt: t0.Add(90 * time.Second),
	}
}

func TestLoadProfileCreatesAccountWithDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.LoadProfile(ctx, models.ProfileClaim{PlayerID: "host", Rating: 1900, Balance: 1000})
	require.NoError(t, err)
	assert.Equal(t, "host", p.ID)
	assert.Equal(t, "host", p.DisplayName)
	assert.Equal(t, models.DefaultRating, p.Rating)
	assert.Equal(t, int64(1000), p.Balance)
	assert.Equal(t, models.DefaultCurrency, p.Currency)

	acct := loadAccount(t, store, "host")
	assert.Equal(t, models.DefaultRating, acct.Rating)
	assert.Equal(t, 0, acct.GamesPlayed)
}

func TestLoadProfilePrefersStoredValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LoadProfile(ctx, models.ProfileClaim{PlayerID: "host", Balance: 1000})
	require.NoError(t, err)

	p, err := store.LoadProfile(ctx, models.ProfileClaim{PlayerID: "host", DisplayName: "Renamed", Rating: 2400, Balance: 99999})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRating, p.Rating)
	assert.Equal(t, int64(1000), p.Balance)
	assert.Equal(t, "Renamed", loadAccount(t, store, "host").DisplayName)

	var count int64
	require.NoError(t, store.DB.Model(&models.PlayerAccount{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleCompletionSettlesBothAccounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.LoadProfile(ctx, models.ProfileClaim{PlayerID: "host", Balance: 1000})
	require.NoError(t, err)
	_, err = store.LoadProfile(ctx, models.ProfileClaim{PlayerID: "guest", Balance: 500})
	require.NoError(t, err)

	require.NoError(t, store.HandleCompletion(ctx, settledEvent(100)))

	winner := loadAccount(t, store, "host")
	assert.Equal(t, int64(1100), winner.Balance)
	assert.Equal(t, 1216, winner.Rating)
	assert.Equal(t, 1, winner.GamesPlayed)
	assert.Equal(t, 1, winner.GamesWon)

	loser := loadAccount(t, store, "guest")
	assert.Equal(t, int64(400), loser.Balance)
	assert.Equal(t, 1184, loser.Rating)
	assert.Equal(t, 1, loser.GamesPlayed)
	assert.Equal(t, 0, loser.GamesWon)

	require.NoError(t, store.HandleCompletion(ctx, settledEvent(100)))
	assert.Equal(t, int64(1200), loadAccount(t, store, "host").Balance)
	assert.Equal(t, 2, loadAccount(t, store, "host").GamesWon)
	assert.Equal(t, 2, loadAccount(t, store, "guest").GamesPlayed)

	var records []models.MatchRecord
	require.NoError(t, store.DB.Order("created_at").Find(&records).Error)
	require.Len(t, records, 2)
	assert.Equal(t, "host", records[0].HostID)
	assert.Equal(t, "guest", records[0].GuestID)
	assert.Equal(t, "host", records[0].WinnerID)
	assert.Equal(t, 2, records[0].ShotCount)
	assert.Equal(t, 90, records[0].DurationSec)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestHandleCompletionCreatesMissingAccounts(t *testing.T) {
	store := newTestStore(t)

	ev := settledEvent(50)
	ev.Currency = "gems"
	require.NoError(t, store.HandleCompletion(context.Background(), ev))

	winner := loadAccount(t, store, "host")
	assert.Equal(t, "Host", winner.DisplayName)
	assert.Equal(t, "gems", winner.Currency)
	assert.Equal(t, int64(50), winner.Balance)
	assert.Equal(t, 1, winner.GamesWon)
	assert.Equal(t, int64(-50), loadAccount(t, store, "guest").Balance)
}

func TestHandleCompletionRollsBackOnRecordFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.LoadProfile(ctx, models.ProfileClaim{PlayerID: "host", Balance: 1000})
	require.NoError(t, err)
	_, err = store.LoadProfile(ctx, models.ProfileClaim{PlayerID: "guest", Balance: 1000})
	require.NoError(t, err)
	require.NoError(t, store.DB.Migrator().DropTable(&models.MatchRecord{}))

	err = store.HandleCompletion(ctx, settledEvent(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store match record")

	for _, id := range []string{"host", "guest"} {
		acct := loadAccount(t, store, id)
		assert.Equal(t, int64(1000), acct.Balance, id)
		assert.Equal(t, models.DefaultRating, acct.Rating, id)
		assert.Equal(t, 0, acct.GamesPlayed, id)
	}
}
