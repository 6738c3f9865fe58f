package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/api"
	"github.com/skybi/session-portal/internal/config"
	"github.com/skybi/session-portal/internal/identity/oidcclient"
	"github.com/skybi/session-portal/internal/storage"
	"github.com/skybi/session-portal/internal/storage/cache"
	"github.com/skybi/session-portal/internal/storage/inmem"
	"github.com/skybi/session-portal/internal/storage/postgres"
	"github.com/skybi/session-portal/internal/supervisor"
	"github.com/skybi/session-portal/internal/task"
)

func main() {
	// Set up zerolog to use pretty printing
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out: os.Stderr,
	})
	log.Info().Msg("starting up...")

	// Load the application configuration
	log.Info().Msg("loading configuration...")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load the configuration")
	}
	if cfg.IsEnvProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Debug().Str("config", fmt.Sprintf("%+v", cfg)).Msg("")

	// Initialize the session storage driver
	log.Info().Str("driver", cfg.StorageDriver).Bool("cache", cfg.StorageCacheEnabled).Msg("initializing the session storage...")
	var driver storage.Driver
	switch cfg.StorageDriver {
	case "postgres":
		driver = postgres.New(cfg.PostgresDSN)
	default:
		driver = inmem.New()
	}
	if err := driver.Initialize(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("could not initialize the session storage")
	}
	defer driver.Close()

	// Wrap the storage driver into a cache if enabled
	if cfg.StorageCacheEnabled {
		cachingDriver := cache.New(driver, cfg.StorageCacheTTL)
		if err := cachingDriver.Initialize(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("could not initialize the session cache")
		}
		defer cachingDriver.Close()
		driver = cachingDriver
	}

	// Schedule a task that purges expired sessions
	purgingTask := task.NewRepeating(func() {
		n, err := driver.Sessions().DeleteExpired(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("could not purge expired sessions")
		} else if n > 0 {
			log.Info().Int("amount", n).Msg("purged expired sessions")
		}
	}, time.Minute)
	purgingTask.Start()
	defer purgingTask.Stop(false)

	// Create the OpenID Connect identity client
	client := oidcclient.New(oidcclient.Config{
		IssuerURL:             cfg.OIDCIssuerURL,
		ClientID:              cfg.OIDCClientID,
		ClientSecret:          cfg.OIDCClientSecret,
		Scopes:                cfg.OIDCScopes,
		SigningAlgorithms:     cfg.OIDCSigningAlgorithms,
		RedirectURL:           cfg.PortalCallbackURL(),
		PostLogoutRedirectURL: cfg.PortalBaseAddress,
		LoginFlowLifetime:     cfg.LoginFlowLifetime,
		OpenBrowser:           cfg.OpenBrowser,
	}, driver.Sessions())
	defer client.Close()

	// Start up the portal & resource APIs
	log.Info().Str("portal", cfg.PortalListenAddress).Bool("resource_api", cfg.ResourceAPIEnabled).Str("resource_api_address", cfg.ResourceAPIListenAddress).Msg("starting up portal & resource APIs...")
	apis := &api.Service{
		Config: cfg,
		Client: client,
	}
	apiErrs := make(chan error, 2)
	apis.Startup(apiErrs)
	go func() {
		err := <-apiErrs
		log.Fatal().Err(err).Msg("the API service raised an unexpected error")
	}()
	defer func() {
		log.Info().Msg("shutting down the portal & resource APIs...")
		apis.Shutdown()
	}()

	// Run the session supervisor until the application gets terminated
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runner := &supervisor.Runner{
		Client:      client,
		Mounter:     apis,
		InitOptions: cfg.InitOptions(),
		Options:     cfg.SupervisorOptions(),
	}
	runnerErrs := make(chan error, 1)
	go func() {
		runnerErrs <- runner.Run(ctx)
	}()

	log.Info().Str("portal", cfg.PortalBaseAddress).Msg("done!")
	defer log.Info().Msg("shutting down...")

	// Wait for the application to be terminated
	if err := <-runnerErrs; err != nil {
		if errors.Is(err, supervisor.ErrInitialization) {
			log.Fatal().Err(err).Msg("the identity client could not be initialized")
		}
		log.Error().Err(err).Msg("the session supervisor stopped unexpectedly")
	}
}
