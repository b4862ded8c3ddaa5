// services/completion.go
package services

import (
	"context"
	"time"

	"cuearena/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultSinkTimeout = 10 * time.Second

// CompletionSink receives every finished match exactly once.
type CompletionSink interface {
	HandleCompletion(ctx context.Context, ev models.CompletionEvent) error
}

// Settlement is the in-memory outcome of a finish: the event for the sinks and the updated
// snapshots of both players.
type Settlement struct {
	Event  models.CompletionEvent
	Winner models.Player
	Loser  models.Player
}

type CompletionPipeline struct {
	rating  *RatingService
	sinks   []CompletionSink
	timeout time.Duration
	log     zerolog.Logger
}

func NewCompletionPipeline(rating *RatingService, sinks []CompletionSink, timeout time.Duration, log zerolog.Logger) *CompletionPipeline {
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	return &CompletionPipeline{
		rating:  rating,
		sinks:   sinks,
		timeout: timeout,
		log:     log.With().Str("component", "completion").Logger(),
	}
}

// Settle computes the rating change and moves the wager. It does no I/O.
func (p *CompletionPipeline) Settle(rec *FinishRecord) Settlement {
	change := p.rating.UpdateRatings(rec.Winner.Rating, rec.Loser.Rating)
	change.Winner.PlayerID = rec.Winner.ID
	change.Loser.PlayerID = rec.Loser.ID

	winner, loser := rec.Winner, rec.Loser
	winner.Rating = change.Winner.After
	loser.Rating = change.Loser.After
	winner.Balance += rec.Wager
	loser.Balance -= rec.Wager

	players := []models.CompletionPlayer{
		{Slot: rec.WinnerSlot, PlayerID: rec.Winner.ID, DisplayName: rec.Winner.DisplayName},
		{Slot: models.OtherSlot(rec.WinnerSlot), PlayerID: rec.Loser.ID, DisplayName: rec.Loser.DisplayName},
	}
	if players[0].Slot != models.HostSlot {
		players[0], players[1] = players[1], players[0]
	}

	return Settlement{
		Event: models.CompletionEvent{
			SessionID:    rec.SessionID,
			RoomCode:     rec.RoomCode,
			Players:      players,
			WinnerSlot:   rec.WinnerSlot,
			WinnerID:     rec.Winner.ID,
			LoserID:      rec.Loser.ID,
			Reason:       rec.Reason,
			Wager:        rec.Wager,
			Currency:     rec.Currency,
			RatingChange: change,
			ShotHistory:  rec.Shots,
			Fouls:        rec.Fouls,
			Duration:     rec.Duration,
			FinishedAt:   rec.FinishedAt,
		},
		Winner: winner,
		Loser:  loser,
	}
}

// Publish fans ev out to every sink. Sink failures are logged and the first one returned;
// they never affect the finished match.
func (p *CompletionPipeline) Publish(ctx context.Context, ev models.CompletionEvent) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range p.sinks {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			if err := sink.HandleCompletion(sctx, ev); err != nil {
				p.log.Error().Err(err).Str("session_id", ev.SessionID).Msg("completion sink failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
