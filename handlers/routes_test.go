package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cuearena/models"
	"cuearena/services"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

type captureConn struct {
	mu   sync.Mutex
	msgs []models.OutboundMessage
}

func (c *captureConn) ID() string { return "conn-1" }

func (c *captureConn) Send(msg models.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureConn) Close() error { return nil }

func (c *captureConn) roomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.msgs {
		if m.Type == models.MsgRoomCreated {
			return m.Payload.(models.SessionSnapshot).RoomCode
		}
	}
	return ""
}

func newTestApp(t *testing.T) (*fiber.App, *services.ConnectionGateway) {
	t.Helper()
	disp := services.NewDispatcher(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go disp.Run(ctx)
	t.Cleanup(cancel)

	dir := services.NewSessionDirectory(4, zerolog.Nop())
	rating := services.NewRatingService()
	gw := services.NewConnectionGateway(services.GatewayDeps{
		Config:    services.DefaultGatewayConfig(),
		Clock:     clockwork.NewRealClock(),
		Dispatch:  disp,
		Directory: dir,
		Queue:     services.NewMatchmakingQueue(services.DefaultMatchmakingConfig(), models.DefaultTiers, dir, zerolog.Nop()),
		Rating:    rating,
		Pipeline:  services.NewCompletionPipeline(rating, nil, time.Second, zerolog.Nop()),
		Log:       zerolog.Nop(),
	})

	app := fiber.New()
	SetupRoutes(app, gw, testToken, zerolog.Nop())
	return app, gw
}

func createRoom(t *testing.T, gw *services.ConnectionGateway) string {
	t.Helper()
	ctx := context.Background()
	conn := &captureConn{}
	require.NoError(t, gw.Connect(ctx, conn))
	require.NoError(t, gw.HandleMessage(ctx, conn.ID(), []byte(`{"type":"authenticate","payload":{"player_id":"host","balance":100}}`)))
	require.NoError(t, gw.HandleMessage(ctx, conn.ID(), []byte(`{"type":"create_room","payload":{"wager":20}}`)))
	code := conn.roomCode()
	require.NotEmpty(t, code)
	return code
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGetRoom(t *testing.T) {
	app, gw := newTestApp(t)
	code := createRoom(t, gw)

	tests := []struct {
		name   string
		code   string
		status int
	}{
		{"existing room", code, fiber.StatusOK},
		{"lowercase code", strings.ToLower(code), fiber.StatusOK},
		{"unknown room", "ZZZZZ9", fiber.StatusNotFound},
		{"malformed code", "ab", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", "/rooms/"+tt.code, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/rooms/"+code, nil))
	require.NoError(t, err)
	var snap models.SessionSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, code, snap.RoomCode)
	assert.Equal(t, models.StatusWaiting, snap.Status)
	assert.Equal(t, int64(20), snap.Wager)
}

func TestAdminStatsRequiresToken(t *testing.T) {
	app, gw := newTestApp(t)
	createRoom(t, gw)

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats models.ServerStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.OnlinePlayers)
	assert.Equal(t, 1, stats.Waiting)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
