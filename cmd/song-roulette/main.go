// Command song-roulette serves random catalog songs enriched with Spotify metadata.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/justestif/song-roulette/internal/auth"
	"github.com/justestif/song-roulette/internal/cache"
	"github.com/justestif/song-roulette/internal/config"
	"github.com/justestif/song-roulette/internal/db"
	"github.com/justestif/song-roulette/internal/enrich"
	"github.com/justestif/song-roulette/internal/logger"
	"github.com/justestif/song-roulette/internal/spotify"
	"github.com/justestif/song-roulette/internal/web"
	assets "github.com/justestif/song-roulette/web"
)

var (
	app        = kingpin.New("song-roulette", "Random song roulette with Spotify metadata")
	configPath = app.Flag("config", "Path to config file").Default("config.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	serveCmd = app.Command("serve", "Start the web server (default)").Default()

	migrateCmd = app.Command("migrate", "Apply the catalog schema")

	backfillCmd         = app.Command("backfill", "Look up Spotify metadata for every catalog song")
	backfillConcurrency = backfillCmd.Flag("concurrency", "Number of concurrent lookups").Default("5").Int()
	backfillSkipMatched = backfillCmd.Flag("skip-matched", "Skip songs that already have a Spotify track id").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string) error {
	// A non-nil cfg with cfgErr set means only the database settings are
	// missing or invalid; serve still starts in degraded mode.
	cfg, cfgErr := config.Load(*configPath)
	if cfg == nil {
		return cfgErr
	}

	logCfg := logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level}
	if *verbose {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		return errors.Wrap(err, "initializing logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case migrateCmd.FullCommand():
		return migrate(ctx, cfg, cfgErr)
	case backfillCmd.FullCommand():
		return backfill(ctx, cfg, cfgErr)
	default:
		return serve(ctx, cfg, cfgErr)
	}
}

func serve(ctx context.Context, cfg *config.Config, cfgErr error) error {
	var catalog enrich.Catalog
	var reports enrich.Reports

	database, err := openDB(ctx, cfg, cfgErr)
	if err != nil {
		// The server still starts; catalog endpoints report the failure.
		zlog.Error().Err(err).Msg("Catalog unavailable")
		catalog = enrich.UnavailableCatalog(err)
	} else {
		defer database.Close()
		catalog = database.Songs()
		reports = database.Reports()
	}

	svc := newService(ctx, cfg, catalog, reports)
	defer svc.Wait()

	authenticator, err := auth.New(auth.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("Spotify login disabled")
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:        cfg.Server.Addr,
		TemplatesFS: assets.Templates(),
		StaticFS:    assets.Static(),
		Songs:       svc,
		Auth:        authenticator,
	})
	if err != nil {
		return errors.Wrap(err, "creating server")
	}

	return server.Run(ctx)
}

func migrate(ctx context.Context, cfg *config.Config, cfgErr error) error {
	database, err := openDB(ctx, cfg, cfgErr)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	zlog.Info().Msg("Schema applied")
	return nil
}

func backfill(ctx context.Context, cfg *config.Config, cfgErr error) error {
	database, err := openDB(ctx, cfg, cfgErr)
	if err != nil {
		return err
	}
	defer database.Close()

	if !cfg.HasSpotifyCredentials() {
		return errors.Mark(errors.New("spotify client credentials are required for backfill"), config.ErrConfig)
	}

	songs, err := database.Songs().All(ctx)
	if err != nil {
		return err
	}

	svc := newService(ctx, cfg, database.Songs(), nil)
	defer svc.Wait()

	result := svc.Backfill(ctx, songs, enrich.BackfillOptions{
		Concurrency: *backfillConcurrency,
		SkipMatched: *backfillSkipMatched,
	})
	if n := result.Count(enrich.OutcomeFailed); n > 0 {
		return errors.Newf("%d of %d songs failed", n, len(result.Results))
	}
	return nil
}

func openDB(ctx context.Context, cfg *config.Config, cfgErr error) (*db.DB, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	return db.New(ctx, cfg.Database.URL)
}

func newService(ctx context.Context, cfg *config.Config, catalog enrich.Catalog, reports enrich.Reports) *enrich.Service {
	client := spotify.New(spotify.Config{
		ClientID:          cfg.Spotify.ClientID,
		ClientSecret:      cfg.Spotify.ClientSecret,
		Market:            cfg.Spotify.Market,
		RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
		Timeout:           cfg.Spotify.Timeout,
	})

	results := cache.New[spotify.Track](cfg.Cache.TTL)
	go results.Run(ctx, cfg.Cache.SweepInterval)

	opts := []enrich.Option{
		enrich.WithCache(results),
		enrich.WithLookupTimeout(cfg.Spotify.Timeout),
	}
	if reports != nil {
		opts = append(opts, enrich.WithReports(reports))
	}
	return enrich.New(catalog, enrich.FromSpotify(client), opts...)
}
