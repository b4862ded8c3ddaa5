// services/gateway.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cuearena/models"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Conn is one client connection as seen by the gateway. Send must not block.
type Conn interface {
	ID() string
	Send(msg models.OutboundMessage) error
	Close() error
}

type GatewayConfig struct {
	GracePeriod    time.Duration
	AutoStartDelay time.Duration
	IdleTimeout    time.Duration
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		GracePeriod:    30 * time.Second,
		AutoStartDelay: 3 * time.Second,
		IdleTimeout:    10 * time.Minute,
	}
}

type binding struct {
	conn       Conn
	player     *models.Player
	spectating string
}

type pendingRejoin struct {
	record models.DisconnectRecord
	timer  clockwork.Timer
}

type pendingStart struct {
	timer clockwork.Timer
}

// ConnectionGateway binds connections to identities and routes their commands into the
// queue and the sessions. All of its maps are owned by the dispatcher goroutine.
type ConnectionGateway struct {
	cfg      GatewayConfig
	clock    clockwork.Clock
	disp     *Dispatcher
	dir      *SessionDirectory
	queue    *MatchmakingQueue
	rating   *RatingService
	profiles ProfileLoader
	pipeline *CompletionPipeline
	log      zerolog.Logger

	conns      map[string]*binding
	identities map[string]string
	rejoins    map[string]*pendingRejoin
	starts     map[string]*pendingStart
}

type GatewayDeps struct {
	Config    GatewayConfig
	Clock     clockwork.Clock
	Dispatch  *Dispatcher
	Directory *SessionDirectory
	Queue     *MatchmakingQueue
	Rating    *RatingService
	Profiles  ProfileLoader
	Pipeline  *CompletionPipeline
	Log       zerolog.Logger
}

func NewConnectionGateway(deps GatewayDeps) *ConnectionGateway {
	profiles := deps.Profiles
	if profiles == nil {
		profiles = ClaimedProfiles{}
	}
	return &ConnectionGateway{
		cfg:        deps.Config,
		clock:      deps.Clock,
		disp:       deps.Dispatch,
		dir:        deps.Directory,
		queue:      deps.Queue,
		rating:     deps.Rating,
		profiles:   profiles,
		pipeline:   deps.Pipeline,
		log:        deps.Log.With().Str("component", "gateway").Logger(),
		conns:      make(map[string]*binding),
		identities: make(map[string]string),
		rejoins:    make(map[string]*pendingRejoin),
		starts:     make(map[string]*pendingStart),
	}
}

// Connect registers an unauthenticated connection.
func (g *ConnectionGateway) Connect(ctx context.Context, conn Conn) error {
	return g.disp.Do(ctx, func() {
		g.conns[conn.ID()] = &binding{conn: conn}
		g.log.Debug().Str("conn_id", conn.ID()).Msg("connection opened")
	})
}

// HandleMessage decodes one inbound frame and runs it. Rejections are reported to the
// sending connection only; the returned error is about the dispatcher itself.
func (g *ConnectionGateway) HandleMessage(ctx context.Context, connID string, raw []byte) error {
	var msg models.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		return g.disp.Do(ctx, func() {
			g.reject(connID, "", rejectf(ErrInvalidMessage, "malformed envelope"))
		})
	}

	if msg.Type == models.MsgAuthenticate {
		return g.authenticate(ctx, connID, msg.Payload)
	}

	return g.disp.Do(ctx, func() {
		if err := g.route(connID, msg); err != nil {
			g.reject(connID, msg.Type, err)
		}
	})
}

func (g *ConnectionGateway) authenticate(ctx context.Context, connID string, payload json.RawMessage) error {
	var claim models.ProfileClaim
	if err := decodePayload(payload, &claim); err != nil || claim.PlayerID == "" {
		return g.disp.Do(ctx, func() {
			g.reject(connID, models.MsgAuthenticate, rejectf(ErrAuthenticationRequired, "player_id is required"))
		})
	}

	// Profile I/O stays off the loop.
	player, err := g.profiles.LoadProfile(ctx, claim)
	if err != nil {
		g.log.Error().Err(err).Str("player_id", claim.PlayerID).Msg("failed to load profile")
		return g.disp.Do(ctx, func() {
			g.reject(connID, models.MsgAuthenticate, err)
		})
	}

	return g.disp.Do(ctx, func() {
		if err := g.bind(connID, player); err != nil {
			g.reject(connID, models.MsgAuthenticate, err)
		}
	})
}

func (g *ConnectionGateway) bind(connID string, player models.Player) error {
	b, ok := g.conns[connID]
	if !ok {
		return nil
	}
	if b.player != nil && b.player.ID != player.ID {
		return rejectf(ErrInvalidMessage, "connection already authenticated as another player")
	}

	if old, ok := g.identities[player.ID]; ok && old != connID {
		g.supersede(old)
	}

	now := g.clock.Now()
	player.ConnID = connID
	b.player = &player
	g.identities[player.ID] = connID

	var snap *models.SessionSnapshot
	if s := g.dir.ActiveSessionFor(player.ID); s != nil {
		slot := s.SlotOf(player.ID)
		s.Rebind(slot, connID, now)
		if pr, ok := g.rejoins[player.ID]; ok {
			g.resumeAfterDisconnect(s, slot, pr)
		}
		view := s.Snapshot()
		snap = &view
	}

	g.log.Info().Str("conn_id", connID).Str("player_id", player.ID).Int("rating", player.Rating).Msg("player authenticated")
	g.send(connID, models.MsgAuthenticated, models.AuthenticatedPayload{
		Player:     player,
		RatingTier: g.rating.TierForRating(player.Rating),
		Session:    snap,
		Queued:     g.queue.Contains(player.ID),
	})
	return nil
}

// supersede closes an older connection of an identity that just authenticated again. Its
// later disconnect is ignored because the binding is already gone.
func (g *ConnectionGateway) supersede(connID string) {
	b, ok := g.conns[connID]
	if !ok {
		return
	}
	delete(g.conns, connID)
	g.detachSpectator(connID, b)
	if err := b.conn.Close(); err != nil {
		g.log.Debug().Err(err).Str("conn_id", connID).Msg("failed to close superseded connection")
	}
	g.log.Info().Str("conn_id", connID).Msg("connection superseded")
}

func (g *ConnectionGateway) resumeAfterDisconnect(s *MatchSession, slot int, pr *pendingRejoin) {
	pr.timer.Stop()
	delete(g.rejoins, pr.record.PlayerID)

	g.log.Info().Str("player_id", pr.record.PlayerID).Str("session_id", s.ID).Msg("player rejoined within grace period")
	g.send(g.identities[pr.record.PlayerID], models.MsgGameRejoin, models.GameRejoinPayload{Slot: slot, Session: s.Snapshot()})
	if opp, ok := s.Player(models.OtherSlot(slot)); ok {
		g.sendToPlayer(opp.ID, models.MsgOpponentReconnected, models.OpponentReconnectedPayload{PlayerID: pr.record.PlayerID})
	}
}

// Disconnect releases a connection. A participant of a running match keeps its slot for
// the grace period.
func (g *ConnectionGateway) Disconnect(ctx context.Context, connID string) error {
	return g.disp.Do(ctx, func() {
		g.disconnect(connID)
	})
}

func (g *ConnectionGateway) disconnect(connID string) {
	b, ok := g.conns[connID]
	if !ok {
		return
	}
	delete(g.conns, connID)
	g.detachSpectator(connID, b)
	if b.player == nil {
		return
	}

	id := b.player.ID
	if g.identities[id] != connID {
		return
	}
	delete(g.identities, id)
	g.queue.RemovePlayer(id)

	s := g.dir.ActiveSessionFor(id)
	if s == nil {
		g.log.Debug().Str("player_id", id).Msg("player disconnected")
		return
	}

	now := g.clock.Now()
	slot := s.SlotOf(id)
	if s.Status() != models.StatusPlaying {
		g.leaveSession(s, slot, now)
		return
	}

	s.SetConnected(slot, false)
	pr := &pendingRejoin{record: models.DisconnectRecord{
		PlayerID:       id,
		SessionID:      s.ID,
		Slot:           slot,
		DisconnectedAt: now,
		Deadline:       now.Add(g.cfg.GracePeriod),
	}}
	pr.timer = g.clock.AfterFunc(g.cfg.GracePeriod, func() {
		g.disp.Post(func() { g.graceExpired(pr) })
	})
	g.rejoins[id] = pr

	g.log.Warn().Str("player_id", id).Str("session_id", s.ID).Dur("grace", g.cfg.GracePeriod).Msg("participant disconnected during play")
	g.broadcast(s, models.MsgOpponentDisconnecting, models.OpponentDisconnectingPayload{
		PlayerID:     id,
		GraceSeconds: int(g.cfg.GracePeriod / time.Second),
		Deadline:     pr.record.Deadline,
	})
}

func (g *ConnectionGateway) graceExpired(pr *pendingRejoin) {
	if g.rejoins[pr.record.PlayerID] != pr {
		return
	}
	delete(g.rejoins, pr.record.PlayerID)

	s, ok := g.dir.Get(pr.record.SessionID)
	if !ok {
		return
	}
	g.log.Warn().Str("player_id", pr.record.PlayerID).Str("session_id", s.ID).Msg("grace period expired")
	g.finishSession(s, s.Forfeit(pr.record.Slot, models.ReasonDisconnect, g.clock.Now()))
}

func (g *ConnectionGateway) cancelRejoin(playerID string) {
	if pr, ok := g.rejoins[playerID]; ok {
		pr.timer.Stop()
		delete(g.rejoins, playerID)
	}
}

func (g *ConnectionGateway) cancelStart(sessionID string) {
	if ps, ok := g.starts[sessionID]; ok {
		ps.timer.Stop()
		delete(g.starts, sessionID)
	}
}

func (g *ConnectionGateway) detachSpectator(connID string, b *binding) {
	if b.spectating == "" {
		return
	}
	if s, ok := g.dir.Get(b.spectating); ok {
		s.DetachSpectator(connID)
	}
	b.spectating = ""
}

// finishSession runs once per finished match: settle, release, announce, hand off to sinks.
func (g *ConnectionGateway) finishSession(s *MatchSession, rec *FinishRecord) {
	if rec == nil {
		return
	}
	g.cancelStart(s.ID)
	for _, p := range s.Participants() {
		g.cancelRejoin(p.ID)
	}

	settled := g.pipeline.Settle(rec)
	for _, p := range []models.Player{settled.Winner, settled.Loser} {
		if b := g.bindingFor(p.ID); b != nil && b.player != nil {
			b.player.Rating = p.Rating
			b.player.Balance = p.Balance
		}
	}
	g.dir.Release(s)

	g.log.Info().
		Str("session_id", s.ID).
		Str("winner", rec.Winner.ID).
		Str("reason", string(rec.Reason)).
		Int("winner_delta", settled.Event.RatingChange.Winner.Delta).
		Msg("match finished")
	g.broadcast(s, models.MsgGameOver, models.GameOverPayload{
		WinnerSlot:   rec.WinnerSlot,
		WinnerID:     rec.Winner.ID,
		Reason:       rec.Reason,
		Wager:        rec.Wager,
		Currency:     rec.Currency,
		RatingChange: settled.Event.RatingChange,
		Session:      s.Snapshot(),
	})

	ev := settled.Event
	go func() {
		_ = g.pipeline.Publish(context.Background(), ev)
	}()
}

func (g *ConnectionGateway) bindingFor(playerID string) *binding {
	connID, ok := g.identities[playerID]
	if !ok {
		return nil
	}
	return g.conns[connID]
}

func (g *ConnectionGateway) send(connID, msgType string, payload any) {
	b, ok := g.conns[connID]
	if !ok {
		return
	}
	if err := b.conn.Send(models.OutboundMessage{Type: msgType, Payload: payload}); err != nil {
		g.log.Warn().Err(err).Str("conn_id", connID).Str("type", msgType).Msg("failed to send message")
	}
}

func (g *ConnectionGateway) sendToPlayer(playerID, msgType string, payload any) {
	if connID, ok := g.identities[playerID]; ok {
		g.send(connID, msgType, payload)
	}
}

// broadcast reaches every connected participant and spectator of s.
func (g *ConnectionGateway) broadcast(s *MatchSession, msgType string, payload any) {
	for _, p := range s.Participants() {
		g.sendToPlayer(p.ID, msgType, payload)
	}
	for _, connID := range s.SpectatorConns() {
		g.send(connID, msgType, payload)
	}
}

func (g *ConnectionGateway) reject(connID, requestType string, err error) {
	var ge *GameError
	msg := err.Error()
	if !errors.As(err, &ge) {
		msg = "internal error"
	}
	g.send(connID, models.MsgError, models.ErrorPayload{
		Code:        string(KindOf(err)),
		Message:     msg,
		RequestType: requestType,
	})
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// SweepMatchmaking times out stale queue entries and pairs whoever now fits.
func (g *ConnectionGateway) SweepMatchmaking(ctx context.Context) error {
	return g.disp.Do(ctx, func() {
		now := g.clock.Now()
		res := g.queue.Sweep(now)
		for _, e := range res.Timeouts {
			g.sendToPlayer(e.Player.ID, models.MsgMatchmakingTimeout, models.MatchmakingTimeoutPayload{
				Tier:          e.Tier,
				WaitedSeconds: int(now.Sub(e.EnqueuedAt) / time.Second),
			})
		}
		for _, m := range res.Matches {
			g.announceMatch(m)
		}
		if len(res.Timeouts) > 0 || len(res.Matches) > 0 {
			g.log.Info().Int("timeouts", len(res.Timeouts)).Int("matches", len(res.Matches)).Msg("matchmaking sweep")
		}
	})
}

// SweepIdleSessions destroys sessions with no action for the idle timeout.
func (g *ConnectionGateway) SweepIdleSessions(ctx context.Context) error {
	return g.disp.Do(ctx, func() {
		for _, s := range g.dir.SweepIdle(g.clock.Now(), g.cfg.IdleTimeout) {
			g.cancelStart(s.ID)
			closed := models.RoomClosedPayload{SessionID: s.ID, RoomCode: s.RoomCode, Reason: "idle"}
			if s.Status() == models.StatusFinished {
				// Participants were released at finish and may already sit in another room.
				for _, connID := range s.SpectatorConns() {
					g.send(connID, models.MsgRoomClosed, closed)
				}
			} else {
				for _, p := range s.Participants() {
					g.cancelRejoin(p.ID)
				}
				g.broadcast(s, models.MsgRoomClosed, closed)
			}
			for _, connID := range s.SpectatorConns() {
				if b, ok := g.conns[connID]; ok && b.spectating == s.ID {
					b.spectating = ""
				}
			}
		}
	})
}

// BroadcastPresence pushes server stats to every authenticated connection.
func (g *ConnectionGateway) BroadcastPresence(ctx context.Context) error {
	return g.disp.Do(ctx, func() {
		stats := g.stats()
		for connID, b := range g.conns {
			if b.player != nil {
				g.send(connID, models.MsgServerStats, stats)
			}
		}
	})
}

func (g *ConnectionGateway) stats() models.ServerStats {
	online := 0
	for _, b := range g.conns {
		if b.player != nil {
			online++
		}
	}
	counts := g.dir.Counts()
	return models.ServerStats{
		OnlinePlayers: online,
		QueuedPlayers: g.queue.Len(),
		QueuedByTier:  g.queue.Counts(),
		Sessions:      g.dir.Len(),
		Waiting:       counts[models.StatusWaiting],
		Ready:         counts[models.StatusReady],
		Playing:       counts[models.StatusPlaying],
		Finished:      counts[models.StatusFinished],
		PendingRejoin: len(g.rejoins),
		At:            g.clock.Now(),
	}
}

func (g *ConnectionGateway) Stats(ctx context.Context) (models.ServerStats, error) {
	var stats models.ServerStats
	err := g.disp.Do(ctx, func() { stats = g.stats() })
	return stats, err
}

// RoomSnapshot returns the public view of the session behind code.
func (g *ConnectionGateway) RoomSnapshot(ctx context.Context, code string) (models.SessionSnapshot, bool, error) {
	var (
		snap  models.SessionSnapshot
		found bool
	)
	err := g.disp.Do(ctx, func() {
		if s, ok := g.dir.ByCode(code); ok {
			snap, found = s.Snapshot(), true
		}
	})
	return snap, found, err
}
