package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cuearena/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.CompletionEvent
	err    error
}

func (s *recordingSink) HandleCompletion(_ context.Context, ev models.CompletionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) received() []models.CompletionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CompletionEvent(nil), s.events...)
}

func finishedRecord(t *testing.T) *FinishRecord {
	t.Helper()
	s := playingSession(t)
	_, err := s.SubmitShot(models.HostSlot, models.ShotParams{Power: 40}, t0)
	require.NoError(t, err)
	return s.Leave(models.HostSlot, t0.Add(3*time.Minute)).Finish
}

func TestSettleMovesRatingAndWager(t *testing.T) {
	p := NewCompletionPipeline(NewRatingService(), nil, 0, zerolog.Nop())
	rec := finishedRecord(t)

	settled := p.Settle(rec)
	ev := settled.Event

	assert.Equal(t, "guest", ev.WinnerID)
	assert.Equal(t, "host", ev.LoserID)
	assert.Equal(t, models.GuestSlot, ev.WinnerSlot)
	assert.Equal(t, models.ReasonForfeit, ev.Reason)
	assert.Equal(t, "guest", ev.RatingChange.Winner.PlayerID)
	assert.Equal(t, 1250, ev.RatingChange.Winner.Before)
	assert.Equal(t, 1200, ev.RatingChange.Loser.Before)
	assert.Len(t, ev.ShotHistory, 1)
	assert.Equal(t, 3*time.Minute, ev.Duration)
	require.Len(t, ev.Players, 2)
	assert.Equal(t, models.HostSlot, ev.Players[0].Slot)
	assert.Equal(t, "host", ev.Players[0].PlayerID)

	assert.Equal(t, ev.RatingChange.Winner.After, settled.Winner.Rating)
	assert.Equal(t, ev.RatingChange.Loser.After, settled.Loser.Rating)
	assert.Equal(t, int64(1100), settled.Winner.Balance)
	assert.Equal(t, int64(900), settled.Loser.Balance)
}

func TestPublishReachesEverySink(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("db down")}
	p := NewCompletionPipeline(NewRatingService(), []CompletionSink{ok, failing}, time.Second, zerolog.Nop())

	ev := p.Settle(finishedRecord(t)).Event
	err := p.Publish(context.Background(), ev)
	assert.EqualError(t, err, "db down")

	require.Len(t, ok.received(), 1)
	require.Len(t, failing.received(), 1)
	assert.Equal(t, ev.SessionID, ok.received()[0].SessionID)
}
