package services

import (
	"math"
	"time"

	"cuearena/models"
)

const (
	MaxShotPower = 100.0
	MaxSpin      = 1.0

	// KitchenLineX is the head string in normalized table coordinates; the opening
	// ball-in-hand must be placed at or behind it.
	KitchenLineX = 0.25

	MaxBallNumber = 15
)

type TurnResult string

const (
	TurnRetained TurnResult = "turn_retained"
	TurnSwitched TurnResult = "turn_switched"
	TurnFinished TurnResult = "finished"
)

type LeaveKind string

const (
	LeaveDetached     LeaveKind = "detached"
	LeaveGuestRemoved LeaveKind = "guest_removed"
	LeaveHostPromoted LeaveKind = "host_promoted"
	LeaveDestroy      LeaveKind = "destroy"
	LeaveForfeit      LeaveKind = "forfeit"
)

// FinishRecord is produced exactly once, by the call that moves a session to FINISHED.
type FinishRecord struct {
	SessionID  string
	RoomCode   string
	WinnerSlot int
	Winner     models.Player
	Loser      models.Player
	Reason     models.FinishReason
	Wager      int64
	Currency   string
	Shots      []models.ShotRecord
	Fouls      []models.FoulRecord
	Duration   time.Duration
	FinishedAt time.Time
}

type OutcomeResult struct {
	Turn   TurnResult
	Finish *FinishRecord
}

type LeaveResult struct {
	Kind   LeaveKind
	Finish *FinishRecord
}

type sessionSlot struct {
	player    models.Player
	connected bool
	ready     bool
	group     models.BallGroup
	pocketed  []int
}

func newSessionSlot(p models.Player) *sessionSlot {
	return &sessionSlot{player: p, connected: p.ConnID != "", group: models.GroupNone}
}

// MatchSession is the authoritative rule state of one match. It is not safe for concurrent
// use; the gateway only touches it from the dispatcher goroutine.
type MatchSession struct {
	ID       string
	RoomCode string
	Wager    int64
	Currency string

	status        models.SessionStatus
	host          *sessionSlot
	guest         *sessionSlot
	spectators    map[string]models.Player
	maxSpectators int

	currentPlayer     int
	tableOpen         bool
	ballInHand        bool
	ballInHandSlot    int
	kitchenRestricted bool
	breakShot         bool
	cueBall           *models.Position
	fouls             []models.FoulRecord
	shots             []models.ShotRecord

	winner       int
	reason       models.FinishReason
	completed    bool
	createdAt    time.Time
	startedAt    *time.Time
	finishedAt   time.Time
	lastActionAt time.Time
}

func NewMatchSession(id, roomCode string, host models.Player, wager int64, currency string, maxSpectators int, now time.Time) *MatchSession {
	return &MatchSession{
		ID:            id,
		RoomCode:      roomCode,
		Wager:         wager,
		Currency:      currency,
		status:        models.StatusWaiting,
		host:          newSessionSlot(host),
		spectators:    make(map[string]models.Player),
		maxSpectators: maxSpectators,
		currentPlayer: models.HostSlot,
		tableOpen:     true,
		createdAt:     now,
		lastActionAt:  now,
	}
}

func (s *MatchSession) Status() models.SessionStatus { return s.status }
func (s *MatchSession) CurrentPlayer() int            { return s.currentPlayer }
func (s *MatchSession) Winner() int                   { return s.winner }
func (s *MatchSession) HasGuest() bool                { return s.guest != nil }
func (s *MatchSession) LastActionAt() time.Time       { return s.lastActionAt }
func (s *MatchSession) BallInHand() (bool, int)       { return s.ballInHand, s.ballInHandSlot }
func (s *MatchSession) ShotCount() int                { return len(s.shots) }

// IsActive reports whether the session still holds its participants.
func (s *MatchSession) IsActive() bool { return s.status != models.StatusFinished }

func (s *MatchSession) slot(n int) *sessionSlot {
	switch n {
	case models.HostSlot:
		return s.host
	case models.GuestSlot:
		return s.guest
	}
	return nil
}

// Player returns the snapshot held in a slot.
func (s *MatchSession) Player(slot int) (models.Player, bool) {
	sl := s.slot(slot)
	if sl == nil {
		return models.Player{}, false
	}
	return sl.player, true
}

// SlotOf returns the slot held by identity, or 0.
func (s *MatchSession) SlotOf(playerID string) int {
	if s.host != nil && s.host.player.ID == playerID {
		return models.HostSlot
	}
	if s.guest != nil && s.guest.player.ID == playerID {
		return models.GuestSlot
	}
	return 0
}

func (s *MatchSession) Participants() []models.Player {
	out := make([]models.Player, 0, 2)
	if s.host != nil {
		out = append(out, s.host.player)
	}
	if s.guest != nil {
		out = append(out, s.guest.player)
	}
	return out
}

func (s *MatchSession) SpectatorConns() []string {
	out := make([]string, 0, len(s.spectators))
	for connID := range s.spectators {
		out = append(out, connID)
	}
	return out
}

func (s *MatchSession) touch(now time.Time) {
	s.lastActionAt = now
}

func (s *MatchSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.lastActionAt)
}

// Join seats the guest and moves the session to READY.
func (s *MatchSession) Join(guest models.Player, now time.Time) error {
	switch s.status {
	case models.StatusPlaying:
		return ErrMatchAlreadyStarted
	case models.StatusFinished:
		return ErrMatchFinished
	}
	if s.guest != nil {
		return ErrRoomFull
	}
	if s.host.player.ID == guest.ID {
		return ErrAlreadyInSession
	}

	s.guest = newSessionSlot(guest)
	s.host.ready = false
	s.status = models.StatusReady
	s.touch(now)
	return nil
}

// SetReady marks slot as ready and reports whether both players now are.
func (s *MatchSession) SetReady(slot int, now time.Time) (bool, error) {
	switch s.status {
	case models.StatusPlaying:
		return false, ErrMatchAlreadyStarted
	case models.StatusFinished:
		return false, ErrMatchFinished
	}
	sl := s.slot(slot)
	if sl == nil {
		return false, ErrNotInRoom
	}
	sl.ready = true
	s.touch(now)
	return s.status == models.StatusReady && s.host.ready && s.guest.ready, nil
}

// Start begins play. The host breaks with kitchen-restricted ball in hand.
func (s *MatchSession) Start(now time.Time) error {
	switch s.status {
	case models.StatusWaiting:
		return rejectf(ErrMatchNotStarted, "waiting for an opponent")
	case models.StatusPlaying:
		return ErrMatchAlreadyStarted
	case models.StatusFinished:
		return ErrMatchFinished
	}

	s.status = models.StatusPlaying
	s.currentPlayer = models.HostSlot
	s.tableOpen = true
	s.breakShot = true
	s.ballInHand = true
	s.ballInHandSlot = models.HostSlot
	s.kitchenRestricted = true
	started := now
	s.startedAt = &started
	s.touch(now)
	return nil
}

func (s *MatchSession) requireTurn(slot int) error {
	switch s.status {
	case models.StatusFinished:
		return ErrMatchFinished
	case models.StatusPlaying:
	default:
		return ErrMatchNotStarted
	}
	if slot != s.currentPlayer {
		return ErrNotYourTurn
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateShot(p models.ShotParams) error {
	if !finite(p.Angle) {
		return rejectf(ErrInvalidShotParameters, "angle must be finite")
	}
	if !finite(p.Power) || p.Power < 0 || p.Power > MaxShotPower {
		return rejectf(ErrInvalidShotParameters, "power %v outside [0,%v]", p.Power, MaxShotPower)
	}
	if !finite(p.SpinX) || math.Abs(p.SpinX) > MaxSpin {
		return rejectf(ErrInvalidShotParameters, "spin_x %v outside [-1,1]", p.SpinX)
	}
	if !finite(p.SpinY) || math.Abs(p.SpinY) > MaxSpin {
		return rejectf(ErrInvalidShotParameters, "spin_y %v outside [-1,1]", p.SpinY)
	}
	return nil
}

// SubmitShot records the shooter's intent. Turn state is left alone until the outcome
// arrives.
func (s *MatchSession) SubmitShot(slot int, p models.ShotParams, now time.Time) (models.ShotRecord, error) {
	if err := s.requireTurn(slot); err != nil {
		return models.ShotRecord{}, err
	}
	if err := validateShot(p); err != nil {
		return models.ShotRecord{}, err
	}

	rec := models.ShotRecord{
		Slot:     slot,
		PlayerID: s.slot(slot).player.ID,
		Angle:    p.Angle,
		Power:    p.Power,
		SpinX:    p.SpinX,
		SpinY:    p.SpinY,
		TakenAt:  now,
	}
	s.shots = append(s.shots, rec)
	s.touch(now)
	return rec, nil
}

func validateOutcome(o models.UntrustedShotOutcome) error {
	for _, b := range o.Pocketed {
		if b < 1 || b > MaxBallNumber {
			return rejectf(ErrInvalidShotOutcome, "ball %d outside 1..%d", b, MaxBallNumber)
		}
	}
	switch o.Winner {
	case 0, models.HostSlot, models.GuestSlot:
	default:
		return rejectf(ErrInvalidShotOutcome, "winner %d is not a slot", o.Winner)
	}
	switch o.ShooterGroup {
	case "", models.GroupNone, models.GroupSolids, models.GroupStripes:
	default:
		return rejectf(ErrInvalidShotOutcome, "unknown group %q", o.ShooterGroup)
	}
	return nil
}

// SubmitShotOutcome applies a self-reported shot result. Exactly one of TurnRetained,
// TurnSwitched or TurnFinished is returned for an accepted outcome.
func (s *MatchSession) SubmitShotOutcome(slot int, o models.UntrustedShotOutcome, now time.Time) (OutcomeResult, error) {
	if err := s.requireTurn(slot); err != nil {
		return OutcomeResult{}, err
	}
	if err := validateOutcome(o); err != nil {
		return OutcomeResult{}, err
	}

	other := models.OtherSlot(slot)
	shooter := s.slot(slot)

	s.breakShot = false
	s.clearBallInHand()
	shooter.pocketed = append(shooter.pocketed, o.Pocketed...)
	s.touch(now)

	var switchTurn bool
	switch {
	case o.Foul:
		s.fouls = append(s.fouls, models.FoulRecord{Slot: slot, Reason: o.FoulReason, FouledAt: now})
		s.ballInHand = true
		s.ballInHandSlot = other
		switchTurn = true
	case s.tableOpen && !o.TableOpen && o.ShooterGroup != "" && o.ShooterGroup != models.GroupNone:
		shooter.group = o.ShooterGroup
		if opp := s.slot(other); opp != nil {
			opp.group = o.ShooterGroup.Opposite()
		}
		s.tableOpen = false
		switchTurn = !o.ContinueTurn
	default:
		switchTurn = !o.ContinueTurn
	}

	if o.Winner != 0 {
		return OutcomeResult{Turn: TurnFinished, Finish: s.finish(o.Winner, models.ReasonCompleted, now)}, nil
	}
	if switchTurn {
		s.currentPlayer = other
		return OutcomeResult{Turn: TurnSwitched}, nil
	}
	return OutcomeResult{Turn: TurnRetained}, nil
}

func (s *MatchSession) clearBallInHand() {
	s.ballInHand = false
	s.ballInHandSlot = 0
	s.kitchenRestricted = false
}

// PlaceCueBall moves the cue ball while the turn owner holds ball in hand. The flag stays
// set until the next outcome so the ball can be repositioned.
func (s *MatchSession) PlaceCueBall(slot int, pos models.Position, now time.Time) error {
	if err := s.requireTurn(slot); err != nil {
		return err
	}
	if !s.ballInHand || s.ballInHandSlot != slot {
		return ErrNoBallInHand
	}
	if !finite(pos.X) || !finite(pos.Y) || pos.X < 0 || pos.X > 1 || pos.Y < 0 || pos.Y > 1 {
		return rejectf(ErrInvalidPlacement, "position (%v,%v) off the table", pos.X, pos.Y)
	}
	if s.kitchenRestricted && pos.X > KitchenLineX {
		return rejectf(ErrInvalidPlacement, "opening placement must be behind the head string")
	}

	placed := pos
	s.cueBall = &placed
	s.touch(now)
	return nil
}

// Leave removes slot from the session. During play it forfeits the match to the other
// slot.
func (s *MatchSession) Leave(slot int, now time.Time) LeaveResult {
	switch s.status {
	case models.StatusFinished:
		return LeaveResult{Kind: LeaveDetached}
	case models.StatusPlaying:
		return LeaveResult{Kind: LeaveForfeit, Finish: s.finish(models.OtherSlot(slot), models.ReasonForfeit, now)}
	}

	s.touch(now)
	if slot == models.GuestSlot {
		s.guest = nil
		s.host.ready = false
		s.status = models.StatusWaiting
		return LeaveResult{Kind: LeaveGuestRemoved}
	}
	if s.guest == nil {
		return LeaveResult{Kind: LeaveDestroy}
	}
	s.host = s.guest
	s.guest = nil
	s.host.ready = false
	s.status = models.StatusWaiting
	return LeaveResult{Kind: LeaveHostPromoted}
}

// Forfeit ends a running match against slot. It returns nil when the session is not
// playing, including when it already finished.
func (s *MatchSession) Forfeit(slot int, reason models.FinishReason, now time.Time) *FinishRecord {
	if s.status != models.StatusPlaying {
		return nil
	}
	return s.finish(models.OtherSlot(slot), reason, now)
}

func (s *MatchSession) finish(winner int, reason models.FinishReason, now time.Time) *FinishRecord {
	if s.completed {
		return nil
	}
	s.completed = true
	s.status = models.StatusFinished
	s.winner = winner
	s.reason = reason
	s.finishedAt = now
	s.clearBallInHand()
	s.touch(now)

	rec := &FinishRecord{
		SessionID:  s.ID,
		RoomCode:   s.RoomCode,
		WinnerSlot: winner,
		Reason:     reason,
		Wager:      s.Wager,
		Currency:   s.Currency,
		Shots:      append([]models.ShotRecord(nil), s.shots...),
		Fouls:      append([]models.FoulRecord(nil), s.fouls...),
		FinishedAt: now,
	}
	if w := s.slot(winner); w != nil {
		rec.Winner = w.player
	}
	if l := s.slot(models.OtherSlot(winner)); l != nil {
		rec.Loser = l.player
	}
	start := s.createdAt
	if s.startedAt != nil {
		start = *s.startedAt
	}
	rec.Duration = now.Sub(start)
	return rec
}

// Rebind points slot at a new connection after a reconnect.
func (s *MatchSession) Rebind(slot int, connID string, now time.Time) {
	if sl := s.slot(slot); sl != nil {
		sl.player.ConnID = connID
		sl.connected = true
		s.touch(now)
	}
}

func (s *MatchSession) SetConnected(slot int, connected bool) {
	if sl := s.slot(slot); sl != nil {
		sl.connected = connected
	}
}

func (s *MatchSession) AttachSpectator(connID string, viewer models.Player, now time.Time) error {
	if s.status == models.StatusFinished {
		return ErrMatchFinished
	}
	if _, ok := s.spectators[connID]; ok {
		return nil
	}
	if len(s.spectators) >= s.maxSpectators {
		return ErrSpectatorCapacityExceeded
	}
	s.spectators[connID] = viewer
	s.touch(now)
	return nil
}

func (s *MatchSession) DetachSpectator(connID string) bool {
	if _, ok := s.spectators[connID]; !ok {
		return false
	}
	delete(s.spectators, connID)
	return true
}

func (s *MatchSession) slotView(n int) *models.SlotView {
	sl := s.slot(n)
	if sl == nil {
		return nil
	}
	return &models.SlotView{
		Slot:        n,
		PlayerID:    sl.player.ID,
		DisplayName: sl.player.DisplayName,
		Rating:      sl.player.Rating,
		Connected:   sl.connected,
		Ready:       sl.ready,
		Group:       sl.group,
		Pocketed:    append([]int{}, sl.pocketed...),
	}
}

// Snapshot returns a deep copy of the session for the wire.
func (s *MatchSession) Snapshot() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:         s.ID,
		RoomCode:   s.RoomCode,
		Status:     s.status,
		Host:       s.slotView(models.HostSlot),
		Guest:      s.slotView(models.GuestSlot),
		Spectators: len(s.spectators),
		Wager:      s.Wager,
		Currency:   s.Currency,
		Turn: models.TurnState{
			CurrentPlayer:     s.currentPlayer,
			TableOpen:         s.tableOpen,
			Groups:            [2]models.BallGroup{models.GroupNone, models.GroupNone},
			BallInHand:        s.ballInHand,
			BallInHandSlot:    s.ballInHandSlot,
			KitchenRestricted: s.kitchenRestricted,
			BreakShot:         s.breakShot,
		},
		Fouls:        append([]models.FoulRecord{}, s.fouls...),
		ShotCount:    len(s.shots),
		Winner:       s.winner,
		FinishReason: s.reason,
		CreatedAt:    s.createdAt,
		LastActionAt: s.lastActionAt,
	}
	if s.host != nil {
		snap.Turn.Groups[0] = s.host.group
	}
	if s.guest != nil {
		snap.Turn.Groups[1] = s.guest.group
	}
	if s.cueBall != nil {
		pos := *s.cueBall
		snap.CueBall = &pos
	}
	if n := len(s.shots); n > 0 {
		last := s.shots[n-1]
		snap.LastShot = &last
	}
	if s.startedAt != nil {
		started := *s.startedAt
		snap.StartedAt = &started
	}
	return snap
}
