// services/gateway_commands.go
package services

import (
	"time"

	"cuearena/models"
)

func (g *ConnectionGateway) route(connID string, msg models.InboundMessage) error {
	b, ok := g.conns[connID]
	if !ok {
		return nil
	}
	if msg.Type == models.MsgPing {
		g.send(connID, models.MsgPong, models.PongPayload{At: g.clock.Now()})
		return nil
	}
	if b.player == nil {
		return ErrAuthenticationRequired
	}

	now := g.clock.Now()
	switch msg.Type {
	case models.MsgCreateRoom:
		var req models.CreateRoomRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return rejectf(ErrInvalidMessage, "create_room: %v", err)
		}
		return g.createRoom(b, req, now)
	case models.MsgJoinRoom:
		var req models.RoomCodeRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return rejectf(ErrInvalidMessage, "join_room: %v", err)
		}
		return g.joinRoom(b, req.RoomCode, now)
	case models.MsgLeaveRoom:
		return g.leaveRoom(b, now)
	case models.MsgSpectateRoom:
		var req models.RoomCodeRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return rejectf(ErrInvalidMessage, "spectate_room: %v", err)
		}
		return g.spectate(connID, b, req.RoomCode, now)
	case models.MsgFindMatch:
		var req models.FindMatchRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			return rejectf(ErrInvalidMessage, "find_match: %v", err)
		}
		return g.findMatch(b, req.Tier, now)
	case models.MsgCancelMatchmaking:
		removed := g.queue.RemovePlayer(b.player.ID)
		g.send(connID, models.MsgMatchmakingCancelled, models.MatchmakingCancelledPayload{Removed: removed})
		return nil
	case models.MsgReady:
		return g.ready(b, now)
	case models.MsgTakeShot:
		var p models.ShotParams
		if err := decodePayload(msg.Payload, &p); err != nil {
			return rejectf(ErrInvalidShotParameters, "%v", err)
		}
		return g.takeShot(b, p, now)
	case models.MsgShotResult:
		var o models.UntrustedShotOutcome
		if err := decodePayload(msg.Payload, &o); err != nil {
			return rejectf(ErrInvalidShotOutcome, "%v", err)
		}
		return g.shotResult(b, o, now)
	case models.MsgCueBallPlaced:
		var pos models.Position
		if err := decodePayload(msg.Payload, &pos); err != nil {
			return rejectf(ErrInvalidPlacement, "%v", err)
		}
		return g.placeCueBall(b, pos, now)
	}
	return rejectf(ErrInvalidMessage, "unknown message type %q", msg.Type)
}

// activeSlot returns the session and slot of an authenticated participant.
func (g *ConnectionGateway) activeSlot(b *binding) (*MatchSession, int, error) {
	s := g.dir.ActiveSessionFor(b.player.ID)
	if s == nil {
		return nil, 0, ErrNotInRoom
	}
	return s, s.SlotOf(b.player.ID), nil
}

func (g *ConnectionGateway) createRoom(b *binding, req models.CreateRoomRequest, now time.Time) error {
	if g.queue.Contains(b.player.ID) {
		return ErrAlreadyQueued
	}
	s, err := g.dir.Create(*b.player, req.Wager, req.Currency, now)
	if err != nil {
		return err
	}
	g.send(b.conn.ID(), models.MsgRoomCreated, s.Snapshot())
	return nil
}

func (g *ConnectionGateway) joinRoom(b *binding, code string, now time.Time) error {
	if g.queue.Contains(b.player.ID) {
		return ErrAlreadyQueued
	}
	s, err := g.dir.Join(code, *b.player, now)
	if err != nil {
		return err
	}
	g.detachSpectatorFrom(b, s)
	g.broadcast(s, models.MsgPlayerJoined, s.Snapshot())
	return nil
}

// detachSpectatorFrom stops spectating s when its viewer takes a seat in it.
func (g *ConnectionGateway) detachSpectatorFrom(b *binding, s *MatchSession) {
	if b.spectating == s.ID {
		g.detachSpectator(b.conn.ID(), b)
	}
}

func (g *ConnectionGateway) leaveRoom(b *binding, now time.Time) error {
	s, slot, err := g.activeSlot(b)
	if err != nil {
		if b.spectating == "" {
			return err
		}
		spectated, ok := g.dir.Get(b.spectating)
		g.detachSpectator(b.conn.ID(), b)
		if ok {
			g.send(b.conn.ID(), models.MsgRoomLeft, models.RoomLeftPayload{SessionID: spectated.ID, RoomCode: spectated.RoomCode})
		}
		return nil
	}
	g.leaveSession(s, slot, now)
	return nil
}

func (g *ConnectionGateway) leaveSession(s *MatchSession, slot int, now time.Time) {
	leaver, _ := s.Player(slot)
	g.cancelStart(s.ID)

	// An opponent still inside its grace window loses by disconnect, as if the timer fired.
	if opp, ok := s.Player(models.OtherSlot(slot)); ok && s.Status() == models.StatusPlaying {
		if pr, pending := g.rejoins[opp.ID]; pending && pr.record.SessionID == s.ID {
			g.cancelRejoin(opp.ID)
			g.log.Info().Str("player_id", leaver.ID).Str("absent", opp.ID).Str("session_id", s.ID).Msg("leave during opponent grace period")
			g.finishSession(s, s.Forfeit(pr.record.Slot, models.ReasonDisconnect, now))
			g.sendToPlayer(leaver.ID, models.MsgRoomLeft, models.RoomLeftPayload{SessionID: s.ID, RoomCode: s.RoomCode})
			return
		}
	}

	res := s.Leave(slot, now)
	switch res.Kind {
	case LeaveForfeit:
		g.finishSession(s, res.Finish)
	case LeaveGuestRemoved, LeaveHostPromoted:
		g.dir.Unbind(leaver.ID)
		g.broadcast(s, models.MsgPlayerLeft, models.PlayerLeftPayload{PlayerID: leaver.ID, Session: s.Snapshot()})
	case LeaveDestroy:
		g.broadcast(s, models.MsgRoomClosed, models.RoomClosedPayload{SessionID: s.ID, RoomCode: s.RoomCode, Reason: "host_left"})
		g.dir.Destroy(s.ID)
	}

	g.log.Info().Str("player_id", leaver.ID).Str("session_id", s.ID).Str("result", string(res.Kind)).Msg("player left session")
	g.sendToPlayer(leaver.ID, models.MsgRoomLeft, models.RoomLeftPayload{SessionID: s.ID, RoomCode: s.RoomCode})
}

func (g *ConnectionGateway) spectate(connID string, b *binding, code string, now time.Time) error {
	s, ok := g.dir.ByCode(code)
	if !ok {
		return ErrRoomNotFound
	}
	if s.SlotOf(b.player.ID) != 0 {
		return ErrAlreadyInSession
	}
	if b.spectating != "" && b.spectating != s.ID {
		g.detachSpectator(connID, b)
	}
	if err := s.AttachSpectator(connID, *b.player, now); err != nil {
		return err
	}
	b.spectating = s.ID
	g.send(connID, models.MsgSpectating, s.Snapshot())
	return nil
}

func (g *ConnectionGateway) findMatch(b *binding, tier string, now time.Time) error {
	res, err := g.queue.AddPlayer(*b.player, tier, now)
	if err != nil {
		return err
	}
	if res.Match != nil {
		g.announceMatch(*res.Match)
		return nil
	}
	g.send(b.conn.ID(), models.MsgMatchmakingStarted, models.MatchmakingStartedPayload{
		Tier:                 res.Tier.Name,
		Stake:                res.Tier.Stake,
		Position:             res.Position,
		EstimatedWaitSeconds: int(res.EstimatedWait / time.Second),
	})
	return nil
}

// announceMatch notifies both paired players and arms the auto-start timer.
func (g *ConnectionGateway) announceMatch(m MatchResult) {
	s := m.Session
	snap := s.Snapshot()
	for _, side := range []struct {
		slot     int
		self     models.Player
		opponent models.Player
	}{
		{models.HostSlot, m.Host.Player, m.Guest.Player},
		{models.GuestSlot, m.Guest.Player, m.Host.Player},
	} {
		if b := g.bindingFor(side.self.ID); b != nil {
			g.detachSpectator(b.conn.ID(), b)
		}
		g.sendToPlayer(side.self.ID, models.MsgMatchFound, models.MatchFoundPayload{
			Tier:             m.Tier.Name,
			Slot:             side.slot,
			Opponent:         side.opponent,
			AutoStartSeconds: int(g.cfg.AutoStartDelay / time.Second),
			Session:          snap,
		})
	}

	ps := &pendingStart{}
	ps.timer = g.clock.AfterFunc(g.cfg.AutoStartDelay, func() {
		g.disp.Post(func() { g.autoStart(s.ID, ps) })
	})
	g.starts[s.ID] = ps
}

func (g *ConnectionGateway) autoStart(sessionID string, ps *pendingStart) {
	if g.starts[sessionID] != ps {
		return
	}
	delete(g.starts, sessionID)
	s, ok := g.dir.Get(sessionID)
	if !ok || s.Status() != models.StatusReady {
		return
	}
	g.startSession(s, g.clock.Now())
}

func (g *ConnectionGateway) startSession(s *MatchSession, now time.Time) {
	g.cancelStart(s.ID)
	if err := s.Start(now); err != nil {
		g.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to start session")
		return
	}
	g.log.Info().Str("session_id", s.ID).Str("room_code", s.RoomCode).Msg("match started")
	g.broadcast(s, models.MsgGameStart, s.Snapshot())
}

func (g *ConnectionGateway) ready(b *binding, now time.Time) error {
	s, slot, err := g.activeSlot(b)
	if err != nil {
		return err
	}
	both, err := s.SetReady(slot, now)
	if err != nil {
		return err
	}
	if both {
		g.startSession(s, now)
		return nil
	}
	g.broadcast(s, models.MsgGameStateUpdate, models.StateUpdatePayload{Result: "player_ready", Session: s.Snapshot()})
	return nil
}

func (g *ConnectionGateway) takeShot(b *binding, p models.ShotParams, now time.Time) error {
	s, slot, err := g.activeSlot(b)
	if err != nil {
		return err
	}
	rec, err := s.SubmitShot(slot, p, now)
	if err != nil {
		return err
	}
	g.broadcast(s, models.MsgShotTaken, models.ShotTakenPayload{Shot: rec, Session: s.Snapshot()})
	return nil
}

func (g *ConnectionGateway) shotResult(b *binding, o models.UntrustedShotOutcome, now time.Time) error {
	s, slot, err := g.activeSlot(b)
	if err != nil {
		return err
	}
	res, err := s.SubmitShotOutcome(slot, o, now)
	if err != nil {
		return err
	}
	g.broadcast(s, models.MsgGameStateUpdate, models.StateUpdatePayload{Result: string(res.Turn), Session: s.Snapshot()})
	g.finishSession(s, res.Finish)
	return nil
}

func (g *ConnectionGateway) placeCueBall(b *binding, pos models.Position, now time.Time) error {
	s, slot, err := g.activeSlot(b)
	if err != nil {
		return err
	}
	if err := s.PlaceCueBall(slot, pos, now); err != nil {
		return err
	}
	g.broadcast(s, models.MsgGameStateUpdate, models.StateUpdatePayload{Result: "cue_ball_placed", Session: s.Snapshot()})
	return nil
}
