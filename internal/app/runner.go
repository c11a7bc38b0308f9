package app

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	clts "botdash/clients"
	"botdash/config"
	"botdash/internal/prefs"
	"botdash/internal/state"
)

// ensure Runner implements ConfigObserver
var _ config.ConfigObserver = (*Runner)(nil)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Runner wires the transport adapters, the reconciler, and the browser-facing
// surface together and owns their lifecycles.
type Runner struct {
	clients    *clts.Clients
	liveConfig *config.LiveConfig

	store      *state.Store
	dispatcher *state.Dispatcher

	supervisor      *Supervisor
	poller          *Poller
	socketAdapter   *SocketAdapter
	snapshotAdapter *SnapshotAdapter
	lifecycle       *Lifecycle
	stateServer     *StateServer
	prefs           *prefs.Store

	startTime time.Time
}

// ServiceStats holds service statistics for diagnostics.
type ServiceStats struct {
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	Socket struct {
		State          string `json:"state"`
		MessageCount   uint64 `json:"message_count"`
		LastMessageAt  string `json:"last_message_at,omitempty"`
		LastMessageAgo string `json:"last_message_ago,omitempty"`
	} `json:"socket"`

	Snapshot struct {
		Enabled      bool   `json:"enabled"`
		MessageCount uint64 `json:"message_count"`
	} `json:"snapshot"`

	Bot struct {
		Phase   Phase `json:"phase"`
		Running bool  `json:"running"`
	} `json:"bot"`

	Browser struct {
		Clients int `json:"clients"`
	} `json:"browser"`

	Notifications struct {
		DiscordEnabled  bool `json:"discord_enabled"`
		TelegramEnabled bool `json:"telegram_enabled"`
		Queued          int  `json:"queued"`
	} `json:"notifications"`

	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		NumGC      uint32 `json:"num_gc"`
		GoVersion  string `json:"go_version"`
	} `json:"runtime"`
}

func NewRunner(clients *clts.Clients, liveConfig *config.LiveConfig) *Runner {
	return &Runner{
		clients:    clients,
		liveConfig: liveConfig,
	}
}

// OnConfigUpdate is called when the config changes.
// Implements config.ConfigObserver interface.
func (r *Runner) OnConfigUpdate(cfg *config.Config) {
	r.clients.Logger.Info("config update received, propagating to components")

	if r.poller != nil {
		r.poller.SetInterval(cfg.Poll.Interval)
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	logger := r.clients.Logger
	cfg := r.liveConfig.Get()

	// Register as config observer for hot-reload
	r.liveConfig.AddObserver(r)

	logger.Info("starting dashboard agent",
		zap.String("apiURL", cfg.API.BaseURL),
		zap.String("socketURL", cfg.Socket.URL),
		zap.Duration("pollInterval", cfg.Poll.Interval),
		zap.Bool("snapshotEnabled", cfg.Snapshot.Enabled),
	)

	prefsStore, err := prefs.New(logger, cfg.Prefs.DBPath)
	if err != nil {
		return fmt.Errorf("open prefs store: %w", err)
	}
	r.prefs = prefsStore

	r.store = state.NewStore(logger)
	r.dispatcher = state.NewDispatcher(logger, r.store)

	r.lifecycle = NewLifecycle(logger, r.clients.BotAPI, r.store, r.dispatcher, r.clients.Notifier)
	r.socketAdapter = NewSocketAdapter(logger, r.dispatcher, r.lifecycle, r.clients.Notifier)
	r.supervisor = NewSupervisor(logger, cfg, r.clients.Events, r.store, r.clients.BotAPI, r.clients.Notifier)
	r.poller = NewPoller(logger, r.clients.BotAPI, r.dispatcher, r.store, r.clients.Notifier, cfg.Poll.Interval)

	go r.supervisor.Run(ctx)
	go r.socketAdapter.Run(ctx, r.clients.Events.Messages())
	go r.poller.Run(ctx)
	go r.lifecycle.RunUptime(ctx)

	if r.clients.Snapshot != nil {
		r.snapshotAdapter = NewSnapshotAdapter(logger, r.dispatcher, r.store)
		if err := r.clients.Snapshot.Connect(ctx, cfg.Snapshot.Paths); err != nil {
			logger.Warn("snapshot feed unavailable, continuing without it", zap.Error(err))
		} else {
			go r.snapshotAdapter.Run(ctx, r.clients.Snapshot.Values())
			logger.Info("snapshot feed connected", zap.Strings("paths", cfg.Snapshot.Paths))
		}
	}

	if cfg.StateServer.Enabled {
		r.stateServer = NewStateServer(
			logger, cfg, r.store, r.clients.Queue, r.prefs,
			r.lifecycle, r.supervisor, r.clients.BotAPI, r.liveConfig,
		)
		go func() {
			if err := r.stateServer.Run(ctx); err != nil {
				logger.Error("state server exited", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("runner shutting down")

	_ = r.clients.Events.Close()
	if r.clients.Snapshot != nil {
		_ = r.clients.Snapshot.Close()
	}
	if r.prefs != nil {
		_ = r.prefs.Close()
	}

	return nil
}

// GetStats returns service statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	if r.store != nil {
		st := r.store.Get()
		stats.Socket.State = string(st.Connection.SocketState)
		stats.Bot.Running = st.Status.BotRunning
	}
	if r.clients.Events != nil {
		wsStats := r.clients.Events.Stats()
		stats.Socket.MessageCount = wsStats.MessageCount
		if !wsStats.LastMessageAt.IsZero() {
			stats.Socket.LastMessageAt = wsStats.LastMessageAt.UTC().Format(time.RFC3339)
			stats.Socket.LastMessageAgo = time.Since(wsStats.LastMessageAt).Round(time.Second).String()
		}
	}

	stats.Snapshot.Enabled = r.clients.Snapshot != nil
	if r.clients.Snapshot != nil {
		stats.Snapshot.MessageCount = r.clients.Snapshot.Stats().MessageCount
	}

	if r.lifecycle != nil {
		stats.Bot.Phase = r.lifecycle.Phase()
	}
	if r.stateServer != nil {
		stats.Browser.Clients = r.stateServer.hub.ClientCount()
	}

	stats.Notifications.DiscordEnabled = r.clients.Discord != nil
	stats.Notifications.TelegramEnabled = r.clients.Telegram != nil
	if r.clients.Queue != nil {
		stats.Notifications.Queued = len(r.clients.Queue.Recent(0))
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.NumGC = memStats.NumGC
	stats.Runtime.GoVersion = runtime.Version()

	return stats
}
