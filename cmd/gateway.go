package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
	"github.com/mikann-OMO/bot/internal/channels/discord"
	"github.com/mikann-OMO/bot/internal/channels/onebot"
	"github.com/mikann-OMO/bot/internal/channels/telegram"
	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/internal/handlers"
	httpapi "github.com/mikann-OMO/bot/internal/http"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/mcp"
	"github.com/mikann-OMO/bot/internal/plugins"
	"github.com/mikann-OMO/bot/internal/router"
	"github.com/mikann-OMO/bot/internal/schedule"
	"github.com/mikann-OMO/bot/internal/store"
	"github.com/mikann-OMO/bot/internal/store/file"
	"github.com/mikann-OMO/bot/internal/tracing"
	"github.com/mikann-OMO/bot/pkg/protocol"
)

const defaultRedisPrefix = "bot:cooldown:"

// gateway holds the running components of the bot.
type gateway struct {
	cfg       *config.Config
	store     store.Store
	fileStore *file.Store
	keywords  *keyword.Service
	plugins   *plugins.State
	router    *router.Router
	bus       *bus.MessageBus
	channels  *channels.Manager
	notifier  *handlers.OnlineNotifier
	api       *httpapi.Server
	sched     *schedule.Scheduler
	redis     *redis.Client

	stop     chan struct{}
	stopOnce sync.Once
}

func setupLogging(format string) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func runGateway() {
	setupLogging("text")

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging.Format)

	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		slog.Warn("config file not found, running with defaults", "path", cfgPath)
		fmt.Println("No configuration found. Run `bot onboard` to create one.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	gw, err := buildGateway(ctx, cfg)
	if err != nil {
		slog.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}
	defer gw.close()

	slog.Info("bot gateway starting",
		"version", Version,
		"name", cfg.Bot.Name,
		"onebot", protocol.ProtocolVersion,
		"storage", cfg.Storage.Backend,
		"handlers", gw.router.Handlers(),
		"channels", gw.channels.GetEnabledChannels(),
	)

	if err := gw.run(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

// buildGateway wires every component from cfg without starting anything
// that talks to the network, except for store and Redis connectivity.
func buildGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	gw := &gateway{cfg: cfg, bus: bus.New(), stop: make(chan struct{})}

	st, fileStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gw.store, gw.fileStore = st, fileStore

	gate := gw.newGate(ctx)
	gw.keywords = keyword.NewService(keyword.NewStore(), gate, st)
	state, err := loadKeywordState(ctx, st, cfg)
	if err != nil {
		gw.close()
		return nil, err
	}
	gw.keywords.Apply(state)

	gw.plugins = plugins.NewState(cfg.Plugins, st)
	if err := gw.plugins.Load(ctx, st); err != nil {
		gw.close()
		return nil, err
	}

	owners := handlers.NewOwners(cfg.Owners())
	ai := newFallback(cfg.AI)
	matcher := keyword.NewMatcher(gw.keywords.Store(), gate, keyword.NewReplyResolver())

	gw.router = router.New(gw.plugins)
	gw.router.RegisterCommand("commands", handlers.NewCommands(gw.keywords, gw.plugins, owners), handlers.PriorityCommands)
	gw.router.RegisterCommand("system", handlers.NewSystem(handlers.SystemOptions{
		Name:    cfg.Bot.Name,
		Version: Version,
		Owners:  owners,
		Plugins: gw.plugins,
		Stop:    gw.requestShutdown,
	}), handlers.PrioritySystem)
	gw.router.RegisterHandler(plugins.Keyword, handlers.NewKeyword(gw.keywords, matcher, ai, owners), handlers.PriorityKeyword)
	gw.router.RegisterHandler(plugins.Orange, handlers.NewOrange(ai, gw.plugins), handlers.PriorityOrange)

	interval := channels.DefaultSendInterval
	if ms := cfg.Channels.SendIntervalMs; ms != 0 {
		interval = time.Duration(ms) * time.Millisecond
	}
	burst := channels.DefaultSendBurst
	if cfg.Channels.SendBurst > 0 {
		burst = cfg.Channels.SendBurst
	}
	gw.channels = channels.NewManager(gw.bus, channels.NewSendLimiter(interval, burst))
	registerChannels(gw.channels, cfg, gw.bus)

	gw.notifier = handlers.NewOnlineNotifier(cfg.Bot.Name, owners)
	gw.channels.OnConnect(func(ctx context.Context, ev channels.ConnectEvent) {
		go gw.notifier.Notify(ctx, gw.channels.Bot(ev.Channel, ev.ConnID, ev.SelfID))
	})

	if cfg.HTTP.Listen != "" {
		gw.api = httpapi.NewServer(httpapi.Options{
			Token:    cfg.HTTP.Token,
			Version:  Version,
			Keywords: gw.keywords,
			Plugins:  gw.plugins,
			Channels: gw.channels,
			MCP:      mcp.NewServer(gw.keywords, Version).Handler(),
		})
		if cfg.HTTP.Token == "" {
			slog.Warn("http.token is empty, admin api is unauthenticated", "listen", cfg.HTTP.Listen)
		}
	}

	gw.sched = schedule.New()
	if cfg.Backup.Schedule != "" {
		if err := gw.sched.Add(makeBackupJob(cfg, gw.keywords)); err != nil {
			gw.close()
			return nil, err
		}
	}

	return gw, nil
}

// newGate picks the Redis cooldown gate when redis.addr is set, else the
// in-process one.
func (gw *gateway) newGate(ctx context.Context) keyword.Gate {
	window := gw.cfg.Keyword.Cooldown()
	rc := gw.cfg.Redis
	if rc.Addr == "" {
		return keyword.NewMemoryGate(window)
	}

	gw.redis = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := gw.redis.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, cooldown will retry per message", "addr", rc.Addr, "error", err)
	}

	prefix := rc.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	slog.Info("using redis cooldown gate", "addr", rc.Addr, "prefix", prefix)
	return keyword.NewRedisGate(gw.redis, prefix, window)
}

func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus bus.MessageRouter) {
	if cfg.Channels.OneBot.Enabled {
		ch, err := onebot.New(cfg.Channels.OneBot, msgBus)
		if err != nil {
			slog.Error("failed to initialize onebot channel", "error", err)
		} else {
			mgr.RegisterChannel("onebot", ch)
			slog.Info("onebot channel enabled", "mode", cfg.Channels.OneBot.Mode)
		}
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus)
		if err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			mgr.RegisterChannel("telegram", ch)
			slog.Info("telegram channel enabled")
		}
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		ch, err := discord.New(cfg.Channels.Discord, msgBus)
		if err != nil {
			slog.Error("failed to initialize discord channel", "error", err)
		} else {
			mgr.RegisterChannel("discord", ch)
			slog.Info("discord channel enabled")
		}
	}
}

// run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (gw *gateway) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-gw.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := gw.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		consumeInboundMessages(gctx, gw.bus, gw.router, gw.channels)
		return nil
	})

	if gw.api != nil {
		g.Go(func() error {
			return gw.api.Start(gctx, gw.cfg.HTTP.Listen)
		})
		if cleanup := initTailscale(gctx, gw.cfg, gw.api.Handler()); cleanup != nil {
			defer cleanup()
		}
	}

	if gw.sched.Len() > 0 {
		g.Go(func() error {
			return gw.sched.Run(gctx)
		})
	}

	if gw.fileStore != nil {
		g.Go(func() error {
			err := gw.fileStore.Watch(gctx, func() { gw.reload(gctx) })
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("keyword file watcher stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return gw.channels.StopAll(stopCtx)
	})

	return g.Wait()
}

// requestShutdown makes run return as it does on SIGTERM. A request made
// before run starts takes effect once it does.
func (gw *gateway) requestShutdown() {
	gw.stopOnce.Do(func() {
		slog.Info("shutdown requested")
		close(gw.stop)
	})
}

// reload re-reads the store after an external edit.
func (gw *gateway) reload(ctx context.Context) {
	state, err := loadKeywordState(ctx, gw.store, gw.cfg)
	if err != nil {
		slog.Error("keyword reload failed", "error", err)
		return
	}
	gw.keywords.Apply(state)
	if err := gw.plugins.Load(ctx, gw.store); err != nil {
		slog.Error("plugin reload failed", "error", err)
	}
}

func (gw *gateway) close() {
	if gw.store != nil {
		if err := gw.store.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
	}
	if gw.redis != nil {
		gw.redis.Close()
	}
}
