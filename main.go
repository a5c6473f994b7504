// Command smashbet is the entrypoint for the stream game-show controller.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, runs idempotent migrations, and resumes the
//     latest match so a restart does not lose show state.
//   - Resolves the channel's custom rewards into the bonus registry.
//   - Serves the admin API, overlay API + websocket, the EventSub webhook,
//     and /healthz, /readyz, /metrics.
//   - Starts background workers: the OAuth token refresher and the optional
//     chat announcer.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kleoz/smashbet/chat"
	"github.com/kleoz/smashbet/config"
	"github.com/kleoz/smashbet/db"
	"github.com/kleoz/smashbet/eventsub"
	"github.com/kleoz/smashbet/game"
	"github.com/kleoz/smashbet/hub"
	"github.com/kleoz/smashbet/oauth"
	"github.com/kleoz/smashbet/rewards"
	"github.com/kleoz/smashbet/server"
	"github.com/kleoz/smashbet/store"
	"github.com/kleoz/smashbet/telemetry"
	"github.com/kleoz/smashbet/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateTwitchReady(); err != nil {
		slog.Error("twitch configuration incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("smashbet", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.RunMigrations(database); err != nil {
		slog.Error("migrations failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Seed the broadcaster token row from env on first boot so the operator
	// only ever pastes the pair once.
	seedUserToken(ctx, database)

	tokenStore := &db.TokenStoreAdapter{DB: database, Provider: "twitch"}
	userTokens := &twitchapi.UserTokenSource{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		Store:        tokenStore,
	}
	appTokens := &twitchapi.TokenSource{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
	}
	helix := &twitchapi.Client{
		ClientID:      cfg.TwitchClientID,
		BroadcasterID: cfg.ChannelUserID,
		UserTokens:    userTokens,
		AppTokens:     appTokens,
	}

	bootCtx, cancelBoot := context.WithTimeout(ctx, 15*time.Second)
	registry, err := rewards.BuildRegistry(bootCtx, helix, cfg.RewardNames())
	cancelBoot()
	if err != nil {
		slog.Error("reward registry build failed", slog.Any("err", err))
		os.Exit(1)
	}
	if registry.Size() == 0 {
		slog.Error("no configured rewards resolved on channel, nothing to run")
		os.Exit(1)
	}

	overlay := hub.New()
	go overlay.Run(ctx)

	announcer := chat.New(cfg.BotUsername, cfg.BotOAuthToken, cfg.ChannelName)
	var engineAnnouncer game.Announcer
	if announcer != nil {
		go announcer.Start(ctx)
		engineAnnouncer = announcer
	}

	scores := &store.ScoreStore{DB: database}
	engine := game.NewEngine(game.EngineConfig{
		Matches:   &store.MatchStore{DB: database},
		Scores:    scores,
		BonusLog:  &store.BonusLogStore{DB: database},
		Registry:  registry,
		Platform:  &rewards.TwitchGateway{Client: helix},
		Broadcast: overlay,
		Announcer: engineAnnouncer,
		Marker:    cfg.PredictionMarker,
	})
	if err := engine.Resume(ctx); err != nil {
		slog.Error("match resume failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Subscription creation is best-effort: the webhook also works with
	// subscriptions created out of band (e.g. twitch-cli).
	if cfg.CallbackURL != "" && cfg.EventSubSecret != "" {
		subCtx, cancelSub := context.WithTimeout(ctx, 15*time.Second)
		if err := helix.EnsureSubscriptions(subCtx, cfg.CallbackURL, cfg.EventSubSecret); err != nil {
			slog.Warn("eventsub subscription setup failed", slog.Any("err", err))
		}
		cancelSub()
	}

	oauth.StartRefresher(ctx, time.Hour, userTokens.ForceRefresh)

	mux := server.NewMux(&server.Handlers{
		Engine:               engine,
		Scores:               scores,
		Hub:                  overlay,
		EventSub:             eventsub.NewHandler(cfg.EventSubSecret, engine),
		DB:                   database,
		AdminToken:           cfg.AdminToken,
		DefaultBonusDuration: cfg.DefaultBonusDuration,
	})
	if err := server.Start(ctx, cfg.HTTPAddr, mux); err != nil {
		slog.Error("http server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// seedUserToken writes INITIAL_ACCESS_TOKEN / INITIAL_REFRESH_TOKEN into the
// token table when no row exists yet, so the operator only pastes the pair
// once after the initial OAuth grant.
func seedUserToken(ctx context.Context, database *sql.DB) {
	access, refresh, _, _, err := db.GetOAuthToken(ctx, database, "twitch")
	if err != nil {
		slog.Warn("token row lookup failed", slog.Any("err", err))
		return
	}
	if access != "" || refresh != "" {
		return
	}
	envAccess := os.Getenv("INITIAL_ACCESS_TOKEN")
	envRefresh := os.Getenv("INITIAL_REFRESH_TOKEN")
	if envAccess == "" && envRefresh == "" {
		return
	}
	// Treat the seeded access token as already expired; the first Helix call
	// refreshes and rotates the pair.
	if err := db.UpsertOAuthToken(ctx, database, "twitch", envAccess, envRefresh, time.Now(), ""); err != nil {
		slog.Error("seeding token row failed", slog.Any("err", err))
		return
	}
	slog.Info("seeded twitch user token from environment")
}
