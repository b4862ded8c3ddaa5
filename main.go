package main

import (
	"context"
	"fmt"
	"time"

	"cuearena/config"
	"cuearena/modules"
	"cuearena/services"
	"cuearena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fx.New(
		modules.Module,
		fx.NopLogger,
		fx.Invoke(runServer),
	).Run()
}

type serverParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     *config.Config
	App        *fiber.App
	Dispatcher *services.Dispatcher
	Scheduler  *services.Scheduler
	Store      *services.AccountStore
	Archiver   *workers.HistoryArchiver
	Log        zerolog.Logger
}

func runServer(p serverParams) {
	// Background goroutines share one context cancelled on stop.
	bg, cancel := context.WithCancel(context.Background())
	addr := fmt.Sprintf(":%s", p.Config.ServerPort)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go p.Dispatcher.Run(bg)
			if p.Archiver != nil {
				go p.Archiver.Run(bg)
			}
			p.Scheduler.Start()

			go func() {
				p.Log.Info().Str("addr", addr).Msg("server starting")
				if err := p.App.Listen(addr); err != nil {
					p.Log.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Log.Info().Msg("shutting down server")
			defer cancel()

			if err := p.Scheduler.Shutdown(); err != nil {
				p.Log.Warn().Err(err).Msg("error stopping scheduler")
			}
			if err := p.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
				p.Log.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			if p.Store != nil {
				if sqlDB, err := p.Store.DB.DB(); err == nil {
					if err := sqlDB.Close(); err != nil {
						p.Log.Warn().Err(err).Msg("error closing database connection")
					}
				}
			}
			p.Log.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
