package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/bnema/afk-farmer/internal/adapters/admin"
	"github.com/bnema/afk-farmer/internal/adapters/altare"
	"github.com/bnema/afk-farmer/internal/adapters/notify/discord"
	statusadapter "github.com/bnema/afk-farmer/internal/adapters/render/status"
	sqlitestore "github.com/bnema/afk-farmer/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/afk-farmer/internal/adapters/repo/toml"
	"github.com/bnema/afk-farmer/internal/application"
	"github.com/bnema/afk-farmer/internal/config"
	"github.com/bnema/afk-farmer/internal/ports"
)

type app struct {
	cfg            config.Config
	viper          *viper.Viper
	statusRenderer func([]application.Snapshot, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client
	now            func() time.Time
}

func (a *app) load(configFile string) error {
	v := config.New(configFile)
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a.cfg = cfg
	a.viper = v
	a.statusRenderer = statusadapter.Render
	a.httpClient = &http.Client{Timeout: 2 * time.Minute}
	a.now = time.Now
	return nil
}

func (a *app) adminClient(url string) *admin.Client {
	if url == "" {
		url = a.cfg.Admin.URL
	}
	return admin.NewClient(url, a.httpClient)
}

type store interface {
	ports.TokenRepository
	ports.LifetimeStatsRepository
}

// runtime is everything `serve` owns.
type runtime struct {
	supervisor *application.Supervisor
	logMux     *application.LogMux
	admin      *admin.Server
	closeStore func() error
}

func (a *app) buildRuntime(logger zerolog.Logger) (*runtime, error) {
	repo, closeStore, err := openStore(a.cfg, a.viper)
	if err != nil {
		return nil, err
	}

	api := altare.NewClient(altare.Config{
		BaseURL:  a.cfg.API.BaseURL,
		Timeout:  a.cfg.API.Timeout,
		Attempts: a.cfg.API.Attempts,
	})

	var notifier ports.Notifier
	if a.cfg.Notify.WebhookURL != "" {
		notifier = discord.NewWebhook(a.cfg.Notify.WebhookURL, nil)
	}
	logMux := application.NewLogMux(application.LogMuxConfig{
		Logger:    logger,
		Notifier:  notifier,
		QueueSize: a.cfg.Notify.QueueSize,
		Throttle:  a.cfg.Notify.Throttle,
	})

	supervisor := application.NewSupervisor(application.Config{
		API:     api,
		Tokens:  repo,
		Stats:   repo,
		LogMux:  logMux,
		Timings: a.cfg.Timings(),
		Logger:  logger,
	})

	return &runtime{
		supervisor: supervisor,
		logMux:     logMux,
		admin:      admin.NewServer(supervisor, logger),
		closeStore: closeStore,
	}, nil
}

func openStore(cfg config.Config, v *viper.Viper) (store, func() error, error) {
	switch cfg.Storage.Driver {
	case config.DriverTOML:
		repo, err := tomlrepo.NewRepository(v)
		if err != nil {
			return nil, nil, fmt.Errorf("wire toml store: %w", err)
		}
		return repo, func() error { return nil }, nil
	default:
		db, err := sqlitestore.Open(cfg.Storage.Path, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("wire sqlite store: %w", err)
		}
		return db, db.Close, nil
	}
}
