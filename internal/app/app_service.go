package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"
)

// DefaultTurnTimeout is how long a caller waits for one turn.
const DefaultTurnTimeout = 60 * time.Second

// GatewayFactory builds a gateway bound to one credentials snapshot.
type GatewayFactory func(creds *credentials.Credentials) (core.Gateway, error)

// Options tunes an appService. Zero values select defaults.
type Options struct {
	TurnTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

type appService struct {
	driver   *ai.Driver
	gateways GatewayFactory
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(driver *ai.Driver, gateways GatewayFactory, opts Options) ApplicationService {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = DefaultTurnTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &appService{
		driver:   driver,
		gateways: gateways,
		timeout:  opts.TurnTimeout,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// ProcessTurn runs one chat turn.
func (s *appService) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", core.ErrValidation)
	}

	c := ai.Classify(msg)
	var tools *ai.ToolRegistry
	if !req.Credentials.Usable() {
		if c.RequiresTools() {
			return nil, core.ErrNotAuthenticated
		}
		c = c.WithoutTools()
	} else if c.ToolPolicy != ai.PolicyNone {
		var err error
		if tools, err = s.ToolsFor(req.Credentials); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "turn classified",
		"mode", c.Mode,
		"policy", c.ToolPolicy,
		"budget", c.StepBudget,
	)

	transcript, timedOut, err := s.run(ctx, msg, c, tools)
	if err != nil {
		return nil, err
	}
	if timedOut {
		s.logger.WarnContext(ctx, "turn abandoned after timeout", "timeout", s.timeout)
		display := req.Display
		return &TurnResult{
			Result:         NormalizedTurnResult{Text: TimeoutMessage, Display: &display},
			Classification: c,
			TimedOut:       true,
		}, nil
	}

	result := Normalize(transcript)
	display := req.Display.Apply(result.Ops)
	result.Display = &display
	return &TurnResult{Result: result, Classification: c, Transcript: transcript}, nil
}

// CompanyInfo reads the connected company's profile.
func (s *appService) CompanyInfo(ctx context.Context, creds *credentials.Credentials) (*core.CompanyInfo, error) {
	if !creds.Usable() {
		return nil, core.ErrNotAuthenticated
	}
	gw, err := s.gateways(creds)
	if err != nil {
		return nil, err
	}
	return gw.CompanyInfo(ctx)
}

// ToolsFor builds a fresh gateway and tool registry for creds.
func (s *appService) ToolsFor(creds *credentials.Credentials) (*ai.ToolRegistry, error) {
	if !creds.Usable() {
		return nil, core.ErrNotAuthenticated
	}
	gw, err := s.gateways(creds)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}
	return ai.NewInvoiceTools(core.NewInvoiceService(gw, s.now)), nil
}

// ClassifyMessage returns the routing decision for text.
func (s *appService) ClassifyMessage(text string) ai.Classification {
	return ai.Classify(text)
}

// ── private helpers ──────────────────────────────────────────────────────────

type runOutcome struct {
	transcript *ai.Transcript
	err        error
}

// run waits up to the turn timeout. On timeout the work keeps running on a
// context detached from the caller; it is bounded only by its own deadline.
func (s *appService) run(ctx context.Context, msg string, c ai.Classification, tools *ai.ToolRegistry) (*ai.Transcript, bool, error) {
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonedWorkLimit*s.timeout)
	done := make(chan runOutcome, 1)
	go func() {
		defer cancel()
		t, err := s.driver.Run(work, msg, c, tools)
		done <- runOutcome{transcript: t, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, false, fmt.Errorf("run turn: %w", out.err)
		}
		return out.transcript, false, nil
	case <-timer.C:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// abandonedWorkLimit multiplies the turn timeout to bound detached work.
const abandonedWorkLimit = 5
