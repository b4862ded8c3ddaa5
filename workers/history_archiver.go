package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cuearena/models"
	"cuearena/utils"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

var ErrArchiveQueueFull = errors.New("history archive queue full")

const DefaultArchiveBuffer = 128

// HistoryArchiver uploads every finished match to object storage as one JSON document.
type HistoryArchiver struct {
	client utils.ObjectPutter
	bucket string
	events chan models.CompletionEvent
	log    zerolog.Logger
}

func NewHistoryArchiver(client utils.ObjectPutter, bucket string, buffer int, log zerolog.Logger) *HistoryArchiver {
	if buffer <= 0 {
		buffer = DefaultArchiveBuffer
	}
	return &HistoryArchiver{
		client: client,
		bucket: bucket,
		events: make(chan models.CompletionEvent, buffer),
		log:    log.With().Str("component", "archiver").Logger(),
	}
}

// HandleCompletion queues ev for upload. It never waits on storage.
func (a *HistoryArchiver) HandleCompletion(_ context.Context, ev models.CompletionEvent) error {
	select {
	case a.events <- ev:
		return nil
	default:
		a.log.Warn().Str("session_id", ev.SessionID).Msg("archive queue full, dropping match")
		return ErrArchiveQueueFull
	}
}

// Run uploads queued matches until ctx is cancelled.
func (a *HistoryArchiver) Run(ctx context.Context) {
	a.log.Info().Str("bucket", a.bucket).Msg("history archiver started")
	for {
		select {
		case <-ctx.Done():
			a.log.Info().Int("pending", len(a.events)).Msg("history archiver stopped")
			return
		case ev := <-a.events:
			if err := a.archive(ctx, ev); err != nil {
				a.log.Error().Err(err).Str("session_id", ev.SessionID).Msg("failed to archive match")
			}
		}
	}
}

func (a *HistoryArchiver) archive(ctx context.Context, ev models.CompletionEvent) error {
	key := ArchiveKey(ev)
	if err := utils.PutJSON(ctx, a.client, a.bucket, key, ev); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	a.log.Debug().Str("key", key).Msg("match archived")
	return nil
}

// ArchiveKey is matches/YYYY/MM/DD/<host>-vs-<guest>-<room>.json, names slugged.
func ArchiveKey(ev models.CompletionEvent) string {
	host, guest := "host", "guest"
	for _, p := range ev.Players {
		name := slug.Make(p.DisplayName)
		if name == "" {
			name = slug.Make(p.PlayerID)
		}
		if p.Slot == models.HostSlot {
			host = name
		} else {
			guest = name
		}
	}
	return fmt.Sprintf("matches/%s/%s-vs-%s-%s.json",
		ev.FinishedAt.UTC().Format("2006/01/02"), host, guest, strings.ToLower(ev.RoomCode))
}
