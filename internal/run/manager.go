package run

import (
	"context"
	"errors"
	"image/color"
	"sync"

	"github.com/kiesman99/layouttiler/internal/config"
	"github.com/kiesman99/layouttiler/internal/layout"
	"github.com/kiesman99/layouttiler/internal/logging"
	"github.com/kiesman99/layouttiler/internal/pyramid"
)

// Options configures a Manager.
type Options struct {
	Logger *logging.Logger

	// NewUploader builds the uploader for one run. Defaults to a layout.Client.
	NewUploader func(cfg *config.Run, logger *logging.Logger) (pyramid.Uploader, error)
	// NewLayoutPath overrides the per-run layout path generator.
	NewLayoutPath func() string
}

// Manager runs pyramid uploads against a shared State.
type Manager struct {
	state  *State
	opts   Options
	logger logging.Logger
	wg     sync.WaitGroup
}

// NewManager creates an idle manager.
func NewManager(opts Options) *Manager {
	if opts.NewUploader == nil {
		opts.NewUploader = newLayoutClient
	}
	return &Manager{
		state:  NewState(),
		opts:   opts,
		logger: logging.Ensure(opts.Logger).With().Str("component", "run").Logger(),
	}
}

// State exposes the shared run state.
func (m *Manager) State() *State {
	return m.state
}

// Status returns a copy of the current state.
func (m *Manager) Status() Status {
	return m.state.Status()
}

// Cancel requests cancellation of the current run.
func (m *Manager) Cancel() Status {
	m.state.Cancel()
	m.logger.Info().Msg("cancellation requested")
	return m.state.Status()
}

// Run validates cfg and executes one run in the calling goroutine. A
// cancelled run returns an error matching pyramid.ErrCancelled.
func (m *Manager) Run(ctx context.Context, cfg *config.Run) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.state.Begin(); err != nil {
		return nil, err
	}

	outcome, err := m.execute(ctx, cfg)
	return &outcome, err
}

// Start validates cfg, moves the state to Running and executes the run in a
// new goroutine. The run is detached from ctx cancellation; use Cancel.
func (m *Manager) Start(ctx context.Context, cfg *config.Run) (Status, error) {
	if err := cfg.Validate(); err != nil {
		return Status{}, err
	}
	if err := m.state.Begin(); err != nil {
		return m.state.Status(), err
	}

	runCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, _ = m.execute(runCtx, cfg)
	}()

	return m.state.Status(), nil
}

// Wait blocks until a run started with Start has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) execute(ctx context.Context, cfg *config.Run) (Outcome, error) {
	log := m.logger.With().
		Str("image", cfg.ImagePath).
		Str("layout_key", cfg.LayoutKey).
		Logger()

	res, err := m.build(ctx, cfg, &log)
	outcome := m.state.Finish(res, err)

	switch {
	case err == nil:
		log.Info().Str("layout_path", outcome.LayoutPath).Msg(outcome.Message)
	case errors.Is(err, pyramid.ErrCancelled):
		log.Warn().Msg(outcome.Message)
	default:
		log.Error().Err(err).Msg("run failed")
	}
	return outcome, err
}

func (m *Manager) build(ctx context.Context, cfg *config.Run, log *logging.Logger) (*pyramid.Result, error) {
	uploader, err := m.opts.NewUploader(cfg, log)
	if err != nil {
		return nil, err
	}

	builder, err := pyramid.New(pyramid.Options{
		TileSize:      cfg.TileSize,
		Background:    color.NRGBA{R: cfg.Background.R, G: cfg.Background.G, B: cfg.Background.B, A: 0xff},
		LayoutKey:     cfg.LayoutKey,
		Secret:        cfg.Secret,
		Uploader:      uploader,
		Reporter:      m.state,
		Canceller:     m.state,
		Logger:        log,
		NewLayoutPath: m.opts.NewLayoutPath,
	})
	if err != nil {
		return nil, err
	}

	return builder.Run(ctx, cfg.ImagePath)
}

func newLayoutClient(cfg *config.Run, logger *logging.Logger) (pyramid.Uploader, error) {
	return layout.NewClient(layout.Options{
		Server:    cfg.ServerBase(),
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	})
}
