package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/api"
	"github.com/HCTech2/GOLD-HFT/internal/auth"
	"github.com/HCTech2/GOLD-HFT/internal/database"
	"github.com/HCTech2/GOLD-HFT/internal/engine"
	"github.com/HCTech2/GOLD-HFT/internal/events"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/scorer"
	"github.com/HCTech2/GOLD-HFT/internal/vault"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(cfg.LoggingConfig.Level, cfg.LoggingConfig.JSONFormat)
	log.Info().Str("symbol", cfg.VenueConfig.Symbol).Msg("Starting gold trading engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Venue credentials come from Vault when enabled, config otherwise.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault client")
	}
	creds, err := vaultClient.VenueCredentials(ctx, cfg.VenueConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to retrieve venue credentials")
	}
	cfg.VenueConfig.Token = creds.Token
	cfg.VenueConfig.BaseURL = creds.BaseURL
	cfg.VenueConfig.StreamURL = creds.StreamURL

	bus := events.NewBus()

	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("Database migration failed")
		}
		repo = database.NewRepository(db)
	}

	store := database.NewRiskStateStore(database.NewRedisClient(cfg.RedisConfig))

	deps := engine.Deps{
		Bus:    bus,
		Repo:   repo,
		Store:  store,
		Scorer: scorer.New(cfg.ScorerConfig),
		Now:    time.Now,
	}

	// The mock venue generates its own ticks; the real venue streams them.
	var mock *venue.MockVenue
	var stream *venue.TickStream
	if cfg.VenueConfig.MockMode {
		mock = venue.NewMockVenue(cfg.VenueConfig, nil)
		deps.Venue = mock
		log.Warn().Msg("Running against the simulated venue, no real orders will be placed")
	} else {
		deps.Venue = venue.NewClient(cfg.VenueConfig)
	}

	eng := engine.New(cfg, deps)

	if mock != nil {
		mock.SetTickHandler(eng.OnTick)
	} else {
		stream = venue.NewTickStream(cfg.VenueConfig, eng.OnTick)
	}

	// Risk counters survive restarts through the state store.
	if state, ok, err := store.Load(ctx); err == nil && ok {
		eng.Gate().Restore(state)
		log.Info().Str("day", state.Day).Msg("Restored persisted risk state")
	}

	if err := eng.WarmStart(ctx); err != nil {
		log.Error().Err(err).Msg("Warm start failed, indicators will build from live ticks")
	}

	if cfg.VenueConfig.MockMode {
		go func() {
			if err := mock.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Simulated venue stopped")
			}
		}()
	} else {
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Tick stream stopped")
			}
		}()
	}

	go eng.Positions().Run(ctx)

	if cfg.ServerConfig.Enabled {
		var jwtManager *auth.JWTManager
		if cfg.AuthConfig.Enabled {
			jwtManager = auth.NewJWTManager(
				cfg.AuthConfig.JWTSecret,
				time.Duration(cfg.AuthConfig.TokenTTLMinutes)*time.Minute,
			)
		}
		server := api.NewServer(cfg.ServerConfig, eng, repo, bus, jwtManager)
		go func() {
			if err := server.Start(ctx); err != nil {
				log.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("Engine stopped")
	}

	// The run context is gone; give shutdown persistence its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	eng.Shutdown(shutdownCtx)

	log.Info().Msg("Engine stopped cleanly")
}
