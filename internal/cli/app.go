package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/soyeahso/sipdash/internal/api"
	"github.com/soyeahso/sipdash/internal/auth"
	"github.com/soyeahso/sipdash/internal/config"
	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/hub"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
	"github.com/soyeahso/sipdash/internal/persist"
	"github.com/soyeahso/sipdash/internal/store"
	"github.com/soyeahso/sipdash/internal/subscription"
	"github.com/soyeahso/sipdash/internal/supervisor"
	"github.com/soyeahso/sipdash/internal/version"
)

// app is the wired client: one REST client, the two hubs with their
// dispatchers and subscription registries, and the three stores.
type app struct {
	cfg     config.Config
	log     *logging.Logger
	metrics *metrics.Metrics

	state  persist.Backend
	tokens *auth.KVStore
	api    *api.Client

	sipHub     *hub.Conn
	sipEvents  *events.Dispatcher
	chatHub    *hub.Conn
	chatEvents *events.Dispatcher

	sip    *store.SIPStore
	chat   *store.ChatStore
	agents *store.AgentStore

	closers []io.Closer
}

// loadConfig reads and validates the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, logCloser, err := logging.Open(logging.Options{
		Level:        level,
		ConsoleStyle: cfg.Logging.ConsoleStyle,
		File:         cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     logger,
		metrics: metrics.New(),
		closers: []io.Closer{logCloser},
	}

	a.state, err = persist.Open(cfg.State, paths, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening state: %w", err)
	}
	a.closers = append(a.closers, a.state)

	a.tokens = auth.NewKVStore(a.state)
	if cfg.API.Token != "" {
		if err := a.tokens.SetToken(ctx, cfg.API.Token); err != nil {
			a.Close()
			return nil, fmt.Errorf("storing token: %w", err)
		}
	}

	a.api = api.NewClient(api.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout(),
		Tokens:  a.tokens,
		OnUnauthorized: func() {
			logger.Warn().Msg("session expired; run 'sipdash token set' with a fresh token")
		},
	}, logger, a.metrics)

	source := auth.NewTokenSource(a.tokens)
	client := hub.ClientInfo{ID: version.ClientID, Version: version.Version, Platform: version.Platform()}

	a.sipEvents = events.NewDispatcher(logger, a.metrics)
	a.sipHub, err = a.newHub("sip", cfg.Hubs.SIPPath, a.sipEvents, source, client)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.chatEvents = events.NewDispatcher(logger, a.metrics)
	a.chatHub, err = a.newHub("chat", cfg.Hubs.ChatPath, a.chatEvents, source, client)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sip = store.NewSIPStore(store.SIPOptions{
		API:           a.api,
		Hub:           a.sipHub,
		Dispatcher:    a.sipEvents,
		Subscriptions: subscription.NewRegistry(a.sipHub, logger),
		Supervisor: supervisor.New(supervisor.Options{
			Service:     "SIP",
			MaxAttempts: cfg.Connect.MaxAttempts,
			BaseDelay:   cfg.Connect.BaseDelay(),
		}, logger),
		Log:     logger,
		Metrics: a.metrics,
	})
	a.chat = store.NewChatStore(store.ChatOptions{
		API:           a.api,
		Hub:           a.chatHub,
		Dispatcher:    a.chatEvents,
		Subscriptions: subscription.NewRegistry(a.chatHub, logger),
		Log:           logger,
		Metrics:       a.metrics,
	})
	a.agents = store.NewAgentStore(store.AgentOptions{
		API:     a.api,
		KV:      a.state,
		Log:     logger,
		Metrics: a.metrics,
	})
	if err := a.agents.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("ignoring persisted agent state")
	}
	return a, nil
}

func (a *app) newHub(name, hubPath string, d *events.Dispatcher, source *auth.TokenSource, client hub.ClientInfo) (*hub.Conn, error) {
	endpoint, err := hub.Endpoint(a.cfg.API.BaseURL, hubPath)
	if err != nil {
		return nil, fmt.Errorf("%s hub endpoint: %w", name, err)
	}
	return hub.New(hub.Options{
		Name:            name,
		URL:             endpoint,
		Token:           source.HubToken,
		ReconnectDelays: a.cfg.Hubs.ReconnectDelays(),
		Client:          client,
	}, d, a.log, a.metrics), nil
}

// Close disconnects both hubs and releases the state store and log file.
func (a *app) Close() error {
	var errs []error
	if a.sip != nil {
		a.sip.DisconnectSip()
	}
	if a.chat != nil {
		a.chat.Disconnect()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// storeError turns a store's recorded failure into a command error.
func storeError(s interface{ Error() string }, fallback string) error {
	if msg := s.Error(); msg != "" {
		return errors.New(msg)
	}
	return errors.New(fallback)
}
