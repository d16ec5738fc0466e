// Package gateway composes the whole pipeline: session manager, ingestion
// dispatcher, forwarding sink, and control API, supervised as one unit.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wagate/pkg/api"
	"wagate/pkg/bus"
	"wagate/pkg/challenge"
	"wagate/pkg/config"
	"wagate/pkg/forward"
	"wagate/pkg/ingest"
	"wagate/pkg/media"
	"wagate/pkg/session"
	"wagate/pkg/transcribe"
	"wagate/pkg/wire"
	"wagate/pkg/wire/telegram"
)

// Service owns the running gateway.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	bus        *bus.Bus
	manager    *session.Manager
	dispatcher *ingest.Dispatcher
	server     *api.Server
}

// NewService wires every component from config. Nothing starts running
// until Run is called.
func NewService(cfg *config.Config, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	eventBus := bus.New()

	dialer, err := newDialer(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := session.NewCredentialStore(cfg.Session.CredentialDir)
	if err != nil {
		return nil, fmt.Errorf("initialize credential store: %w", err)
	}

	manager, err := session.NewManager(dialer, store, eventBus, backoffFromConfig(cfg.Session), log)
	if err != nil {
		return nil, err
	}
	manager.SetPairingDisplay(&session.TerminalPairing{})

	extractor, err := media.NewExtractor(manager, cfg.Transcription.MaxBytes)
	if err != nil {
		return nil, err
	}

	transcriber, err := transcribe.NewClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize transcription client: %w", err)
	}

	assessor, err := transcribe.NewAssessor(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize assessor: %w", err)
	}

	sink, err := forward.NewWebhook(cfg.Forward)
	if err != nil {
		return nil, err
	}

	// A nil interface value, not an interface holding a typed nil.
	var assessorSeam ingest.Assessor
	if assessor != nil {
		assessorSeam = assessor
	}

	dispatcher, err := ingest.NewDispatcher(eventBus, extractor, transcriber, assessorSeam, sink, log, ingest.Options{
		ProcessSelf: cfg.Ingest.ProcessSelf,
	})
	if err != nil {
		return nil, err
	}

	service := &Service{
		cfg:        cfg,
		log:        log.With("component", "gateway.service"),
		bus:        eventBus,
		manager:    manager,
		dispatcher: dispatcher,
	}

	if cfg.API.Enabled {
		challengeStore, err := challenge.NewStore(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("initialize challenge store: %w", err)
		}

		server, err := api.NewServer(cfg.API, manager, challengeStore, log)
		if err != nil {
			return nil, err
		}
		service.server = server
	}

	return service, nil
}

// Run starts every component and blocks until the context ends or a fatal
// error occurs. A logged-out session is fatal: the operator must re-pair.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.bus.Close()

	go s.logLifecycle(runCtx)

	errCh := make(chan error, 3)

	go func() {
		errCh <- s.dispatcher.Run(runCtx)
	}()

	if s.server != nil {
		go func() {
			errCh <- s.server.Run(runCtx)
		}()
	}

	managerErr := make(chan error, 1)
	go func() {
		managerErr <- s.manager.Run(runCtx)
	}()

	s.log.Info("Gateway started", "transport", s.cfg.Transport.Kind, "api_enabled", s.cfg.API.Enabled)

	select {
	case <-runCtx.Done():
		// Give the manager a moment to close the connection cleanly.
		select {
		case <-managerErr:
		case <-time.After(10 * time.Second):
		}
		return nil

	case err := <-managerErr:
		cancel()
		if errors.Is(err, session.ErrLoggedOut) {
			s.log.Error("Session logged out, shutting down", "error", err)
		}
		return err

	case err := <-errCh:
		cancel()
		if err != nil {
			return fmt.Errorf("gateway component failed: %w", err)
		}
		return nil
	}
}

// logLifecycle mirrors session transitions into the structured log.
func (s *Service) logLifecycle(ctx context.Context) {
	events, unsubscribe := s.bus.SubscribeLifecycle(ctx, 16)
	defer unsubscribe()

	for event := range events {
		attrs := []any{"state", event.State}
		if event.Attempt > 0 {
			attrs = append(attrs, "attempt", event.Attempt, "delay", event.Delay.String())
		}
		if event.CloseCode != 0 {
			attrs = append(attrs, "close_code", event.CloseCode)
		}
		if event.Error != "" {
			attrs = append(attrs, "error", event.Error)
		}

		s.log.Info("Session state changed", attrs...)
	}
}

// newDialer selects the transport named in config.
func newDialer(cfg *config.Config, log *slog.Logger) (wire.Dialer, error) {
	switch cfg.Transport.Kind {
	case "", "telegram":
		return telegram.NewDialer(cfg.Transport.Telegram, log)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport.Kind)
	}
}

func backoffFromConfig(cfg config.SessionConfig) session.Backoff {
	backoff := session.DefaultBackoff()
	if cfg.ReconnectBaseMS > 0 {
		backoff.Base = time.Duration(cfg.ReconnectBaseMS) * time.Millisecond
	}
	if cfg.ReconnectCapMS > 0 {
		backoff.Cap = time.Duration(cfg.ReconnectCapMS) * time.Millisecond
	}
	if cfg.ReconnectJitterMS > 0 {
		backoff.Jitter = time.Duration(cfg.ReconnectJitterMS) * time.Millisecond
	}

	return backoff
}
