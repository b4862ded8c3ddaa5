package modules

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"cuearena/config"
	"cuearena/handlers"
	"cuearena/logger"
	"cuearena/middleware"
	"cuearena/models"
	"cuearena/services"
	"cuearena/utils"
	"cuearena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ProvideConfig() (*config.Config, error) {
	return config.Load(logger.New())
}

func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logger.ForConfig(logger.New(), cfg)
}

func ProvideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

func ProvideDirectory(cfg *config.Config, log zerolog.Logger) *services.SessionDirectory {
	return services.NewSessionDirectory(cfg.MaxSpectators, log)
}

func ProvideQueue(cfg *config.Config, dir *services.SessionDirectory, log zerolog.Logger) *services.MatchmakingQueue {
	mm := services.DefaultMatchmakingConfig()
	mm.InitialTolerance = cfg.Matchmaking.InitialTolerance
	mm.ToleranceStep = cfg.Matchmaking.ToleranceStep
	mm.ExpansionInterval = cfg.Matchmaking.ExpansionInterval
	mm.MaxTolerance = cfg.Matchmaking.MaxTolerance
	mm.MaxWait = cfg.Matchmaking.MaxWait
	mm.MaxMatchesPerSweep = cfg.Matchmaking.MaxMatchesPerSweep
	return services.NewMatchmakingQueue(mm, models.DefaultTiers, dir, log)
}

// ProvideAccountStore returns nil when no database is configured.
func ProvideAccountStore(cfg *config.Config, log zerolog.Logger) (*services.AccountStore, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, trusting claimed profiles and skipping settlement persistence")
		return nil, nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := services.NewAccountStore(db, log)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideArchiver returns nil when R2 is not configured.
func ProvideArchiver(cfg *config.Config, log zerolog.Logger) (*workers.HistoryArchiver, error) {
	if !cfg.R2.Enabled() {
		log.Warn().Msg("R2 not configured, match history archive disabled")
		return nil, nil
	}
	client, err := utils.NewR2Client(context.Background(), cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret)
	if err != nil {
		return nil, err
	}
	return workers.NewHistoryArchiver(client, cfg.R2.Bucket, workers.DefaultArchiveBuffer, log), nil
}

func ProvideProfileLoader(store *services.AccountStore) services.ProfileLoader {
	if store == nil {
		return services.ClaimedProfiles{}
	}
	return store
}

func ProvidePipeline(rating *services.RatingService, store *services.AccountStore, archiver *workers.HistoryArchiver, log zerolog.Logger) *services.CompletionPipeline {
	var sinks []services.CompletionSink
	if store != nil {
		sinks = append(sinks, store)
	}
	if archiver != nil {
		sinks = append(sinks, archiver)
	}
	return services.NewCompletionPipeline(rating, sinks, services.DefaultSinkTimeout, log)
}

type gatewayParams struct {
	fx.In

	Config     *config.Config
	Clock      clockwork.Clock
	Dispatcher *services.Dispatcher
	Directory  *services.SessionDirectory
	Queue      *services.MatchmakingQueue
	Rating     *services.RatingService
	Profiles   services.ProfileLoader
	Pipeline   *services.CompletionPipeline
	Log        zerolog.Logger
}

func ProvideGateway(p gatewayParams) *services.ConnectionGateway {
	return services.NewConnectionGateway(services.GatewayDeps{
		Config: services.GatewayConfig{
			GracePeriod:    p.Config.GracePeriod,
			AutoStartDelay: p.Config.AutoStartDelay,
			IdleTimeout:    p.Config.IdleTimeout,
		},
		Clock:     p.Clock,
		Dispatch:  p.Dispatcher,
		Directory: p.Directory,
		Queue:     p.Queue,
		Rating:    p.Rating,
		Profiles:  p.Profiles,
		Pipeline:  p.Pipeline,
		Log:       p.Log,
	})
}

func ProvideScheduler(cfg *config.Config, gw *services.ConnectionGateway, clock clockwork.Clock, log zerolog.Logger) (*services.Scheduler, error) {
	return services.NewScheduler(services.SchedulerConfig{
		MatchmakingInterval: cfg.MatchmakingSweepInterval,
		IdleInterval:        cfg.IdleSweepInterval,
		PresenceInterval:    cfg.PresenceInterval,
	}, gw, clock, log)
}

func ProvideApp(cfg *config.Config, gw *services.ConnectionGateway, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "cuearena",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, gw, cfg.GameServiceToken, log)
	return app
}

var Module = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideClock),
	fx.Provide(services.NewRatingService),
	fx.Provide(services.NewDispatcher),
	fx.Provide(ProvideDirectory),
	fx.Provide(ProvideQueue),
	fx.Provide(ProvideAccountStore),
	fx.Provide(ProvideArchiver),
	fx.Provide(ProvideProfileLoader),
	fx.Provide(ProvidePipeline),
	fx.Provide(ProvideGateway),
	fx.Provide(ProvideScheduler),
	fx.Provide(ProvideApp),
)
