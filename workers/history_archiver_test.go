package workers

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"cuearena/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (b *fakeBucket) get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[key]
	return body, ok
}

func sampleEvent() models.CompletionEvent {
	return models.CompletionEvent{
		SessionID: "s-1",
		RoomCode:  "AB12CD",
		Players: []models.CompletionPlayer{
			{Slot: models.HostSlot, PlayerID: "p1", DisplayName: "Minnesota Fats"},
			{Slot: models.GuestSlot, PlayerID: "p2", DisplayName: "Fast Eddie"},
		},
		WinnerSlot: models.GuestSlot,
		WinnerID:   "p2",
		LoserID:    "p1",
		Reason:     models.ReasonCompleted,
		FinishedAt: time.Date(2026, 3, 7, 23, 10, 0, 0, time.UTC),
	}
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "matches/2026/03/07/minnesota-fats-vs-fast-eddie-ab12cd.json", ArchiveKey(sampleEvent()))

	ev := sampleEvent()
	ev.Players[1].DisplayName = ""
	assert.Equal(t, "matches/2026/03/07/minnesota-fats-vs-p2-ab12cd.json", ArchiveKey(ev))
}

func TestHistoryArchiverUploads(t *testing.T) {
	bucket := &fakeBucket{objects: make(map[string][]byte)}
	a := NewHistoryArchiver(bucket, "matches", 4, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.NoError(t, a.HandleCompletion(ctx, sampleEvent()))

	key := ArchiveKey(sampleEvent())
	require.Eventually(t, func() bool {
		_, ok := bucket.get(key)
		return ok
	}, time.Second, 10*time.Millisecond)

	body, _ := bucket.get(key)
	var got models.CompletionEvent
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "p2", got.WinnerID)
	assert.Equal(t, models.ReasonCompleted, got.Reason)
}

func TestHistoryArchiverDropsWhenFull(t *testing.T) {
	a := NewHistoryArchiver(&fakeBucket{objects: make(map[string][]byte)}, "matches", 1, zerolog.Nop())

	require.NoError(t, a.HandleCompletion(context.Background(), sampleEvent()))
	assert.ErrorIs(t, a.HandleCompletion(context.Background(), sampleEvent()), ErrArchiveQueueFull)
}
