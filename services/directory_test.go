package services

import (
	"errors"
	"testing"
	"time"

	"cuearena/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryCreateAndJoin(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())

	s, err := dir.Create(testPlayer("host", 1200), 100, "", t0)
	require.NoError(t, err)
	assert.Len(t, s.RoomCode, 6)
	assert.Equal(t, "coins", s.Currency)
	assert.Equal(t, models.StatusWaiting, s.Status())

	_, err = dir.Create(testPlayer("host", 1200), 0, "", t0)
	assert.ErrorIs(t, err, ErrAlreadyInSession)

	_, err = dir.Join("ZZZZZZ", testPlayer("guest", 1200), t0)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	poor := testPlayer("poor", 1200)
	poor.Balance = 50
	_, err = dir.Join(s.RoomCode, poor, t0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	joined, err := dir.Join(s.RoomCode, testPlayer("guest", 1200), t0)
	require.NoError(t, err)
	assert.Same(t, s, joined)
	assert.Same(t, s, dir.ActiveSessionFor("guest"))

	_, err = dir.Join(s.RoomCode, testPlayer("third", 1200), t0)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestDirectoryRejectsNegativeWager(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())
	_, err := dir.Create(testPlayer("host", 1200), -5, "", t0)
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Equal(t, 0, dir.Len())
}

func TestDirectoryRejectsWagerInForeignCurrency(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())

	_, err := dir.Create(testPlayer("host", 1200), 100, "gems", t0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 0, dir.Len())

	friendly, err := dir.Create(testPlayer("host", 1200), 0, "gems", t0)
	require.NoError(t, err)
	assert.Equal(t, "gems", friendly.Currency)

	staked, err := dir.Create(testPlayer("other", 1200), 100, "", t0)
	require.NoError(t, err)
	gemHolder := testPlayer("guest", 1200)
	gemHolder.Currency = "gems"
	_, err = dir.Join(staked.RoomCode, gemHolder, t0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, staked.HasGuest())
}

func TestDirectoryCodeLookupIgnoresCase(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())
	dir.newCode = func() (string, error) { return "AB12CD", nil }

	s, err := dir.Create(testPlayer("host", 1200), 0, "", t0)
	require.NoError(t, err)

	found, ok := dir.ByCode(" ab12cd")
	require.True(t, ok)
	assert.Same(t, s, found)
}

func TestDirectoryRegeneratesCollidingCodes(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	dir.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := dir.Create(testPlayer("h1", 1200), 0, "", t0)
	require.NoError(t, err)
	second, err := dir.Create(testPlayer("h2", 1200), 0, "", t0)
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first.RoomCode)
	assert.Equal(t, "BBBBBB", second.RoomCode)
}

func TestDirectoryGivesUpOnExhaustedCodes(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())
	dir.newCode = func() (string, error) { return "AAAAAA", nil }

	_, err := dir.Create(testPlayer("h1", 1200), 0, "", t0)
	require.NoError(t, err)
	_, err = dir.Create(testPlayer("h2", 1200), 0, "", t0)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	dir.newCode = func() (string, error) { return "", errors.New("entropy") }
	_, err = dir.Create(testPlayer("h3", 1200), 0, "", t0)
	require.Error(t, err)
}

func TestDirectoryCreateMatched(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())

	s, err := dir.CreateMatched(testPlayer("a", 1200), testPlayer("b", 1210), 250, "coins", t0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, s.Status())
	assert.Equal(t, models.HostSlot, s.SlotOf("a"))
	assert.Equal(t, models.GuestSlot, s.SlotOf("b"))

	poor := testPlayer("poor", 1200)
	poor.Balance = 10
	_, err = dir.CreateMatched(testPlayer("c", 1200), poor, 250, "coins", t0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, dir.InSession("c"))
	assert.Equal(t, 1, dir.Len())
}

func TestDirectoryReleaseKeepsFinishedSession(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())
	s, err := dir.CreateMatched(testPlayer("a", 1200), testPlayer("b", 1210), 0, "coins", t0)
	require.NoError(t, err)
	require.NoError(t, s.Start(t0))
	s.Leave(models.GuestSlot, t0)

	dir.Release(s)
	assert.Nil(t, dir.ActiveSessionFor("a"))
	_, ok := dir.ByCode(s.RoomCode)
	assert.True(t, ok)
	assert.Equal(t, 1, dir.Counts()[models.StatusFinished])

	_, err = dir.Create(testPlayer("a", 1200), 0, "", t0)
	assert.NoError(t, err)
}

func TestDirectoryDestroyAndUnbind(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())
	s, err := dir.CreateMatched(testPlayer("a", 1200), testPlayer("b", 1210), 0, "coins", t0)
	require.NoError(t, err)

	dir.Unbind("b")
	assert.False(t, dir.InSession("b"))
	assert.True(t, dir.InSession("a"))

	assert.Same(t, s, dir.Destroy(s.ID))
	assert.Nil(t, dir.Destroy(s.ID))
	_, ok := dir.Get(s.ID)
	assert.False(t, ok)
	_, ok = dir.ByCode(s.RoomCode)
	assert.False(t, ok)
	assert.False(t, dir.InSession("a"))
}

func TestDirectorySweepIdle(t *testing.T) {
	dir := NewSessionDirectory(8, zerolog.Nop())
	stale, err := dir.Create(testPlayer("a", 1200), 0, "", t0)
	require.NoError(t, err)
	playing, err := dir.CreateMatched(testPlayer("b", 1200), testPlayer("c", 1200), 0, "coins", t0)
	require.NoError(t, err)
	require.NoError(t, playing.Start(t0))
	fresh, err := dir.Create(testPlayer("d", 1200), 0, "", t0.Add(9*time.Minute))
	require.NoError(t, err)

	swept := dir.SweepIdle(t0.Add(10*time.Minute), 10*time.Minute)
	require.Len(t, swept, 2)
	ids := []string{swept[0].ID, swept[1].ID}
	assert.ElementsMatch(t, []string{stale.ID, playing.ID}, ids)

	assert.Equal(t, 1, dir.Len())
	_, ok := dir.Get(fresh.ID)
	assert.True(t, ok)
	assert.False(t, dir.InSession("b"))
	assert.Equal(t, map[models.SessionStatus]int{models.StatusWaiting: 1}, dir.Counts())
	assert.Len(t, dir.Sessions(), 1)
}
