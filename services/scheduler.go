// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	JobMatchmakingSweep  = "matchmaking-sweep"
	JobIdleSessionSweep  = "idle-session-sweep"
	JobPresenceBroadcast = "presence-broadcast"
)

type SchedulerConfig struct {
	MatchmakingInterval time.Duration
	IdleInterval        time.Duration
	PresenceInterval    time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MatchmakingInterval: 2 * time.Second,
		IdleInterval:        time.Minute,
		PresenceInterval:    15 * time.Second,
	}
}

// SweepTarget is the work the periodic jobs drive. ConnectionGateway implements it.
type SweepTarget interface {
	SweepMatchmaking(ctx context.Context) error
	SweepIdleSessions(ctx context.Context) error
	BroadcastPresence(ctx context.Context) error
}

type Scheduler struct {
	sched gocron.Scheduler
	log   zerolog.Logger
}

func NewScheduler(cfg SchedulerConfig, target SweepTarget, clock clockwork.Clock, log zerolog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, log: log.With().Str("component", "scheduler").Logger()}

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{JobMatchmakingSweep, cfg.MatchmakingInterval, target.SweepMatchmaking},
		{JobIdleSessionSweep, cfg.IdleInterval, target.SweepIdleSessions},
		{JobPresenceBroadcast, cfg.PresenceInterval, target.BroadcastPresence},
	}
	for _, j := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func(ctx context.Context) {
				if err := j.run(ctx); err != nil {
					s.log.Error().Err(err).Str("job", j.name).Msg("scheduled job failed")
				}
			}),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.Info().Strs("jobs", s.JobNames()).Msg("scheduler started")
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) JobNames() []string {
	jobs := s.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	sort.Strings(names)
	return names
}
