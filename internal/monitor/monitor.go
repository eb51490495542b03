// Package monitor runs one trading session: it freezes a band per instrument at the
// start, polls live prices and fires at most one alert per instrument.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/bandwatch/internal/band"
	"github.com/rewired-gh/bandwatch/internal/logger"
	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/rewired-gh/bandwatch/internal/session"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// PriceSource supplies daily history and live ticks.
type PriceSource interface {
	HistoricalCloses(ctx context.Context, symbol string, lookbackDays int) ([]models.Bar, error)
	LatestTick(ctx context.Context, symbol string) (models.Tick, error)
}

// Notifier delivers operator messages.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Journal records runs for later audit. It is never read back by the monitor.
type Journal interface {
	StartRun(runID string, startedAt time.Time) error
	FinishRun(runID string, endedAt time.Time, status string) error
	SaveBand(runID string, inst models.Instrument, b models.Band) error
	AddAlert(alert *models.Alert) error
}

// FailurePolicy decides what happens to an instrument whose band cannot be built.
type FailurePolicy string

const (
	// PolicySkip keeps the instrument as Skipped so it shows up in status reports.
	PolicySkip FailurePolicy = "skip"
	// PolicyDrop removes the instrument from the run.
	PolicyDrop FailurePolicy = "drop"
)

type Config struct {
	Instruments     []models.Instrument
	PollInterval    time.Duration
	K               float64
	Shape           models.Shape
	LookbackDays    int
	FailurePolicy   FailurePolicy
	AnnounceSummary bool
	FetchWorkers    int
	PricePrecision  int32
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Minute,
		K:               band.DefaultK,
		Shape:           models.ShapeAsymmetric,
		LookbackDays:    1250,
		FailurePolicy:   PolicySkip,
		AnnounceSummary: true,
		FetchWorkers:    1,
		PricePrecision:  0,
	}
}

// Status is how a run ended. Every status is a graceful exit.
type Status int

const (
	StatusSessionNotOpen Status = iota
	StatusCompleted
	StatusSessionEnded
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusSessionNotOpen:
		return "session_not_open"
	case StatusCompleted:
		return "completed"
	case StatusSessionEnded:
		return "session_ended"
	case StatusInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Outcome is the result of checking one instrument against its band.
type Outcome struct {
	Tick      models.Tick
	Deviation float64
	Side      models.Side
}

type instrumentState struct {
	instrument models.Instrument
	band       models.Band
	state      models.AlertState
	lastSide   models.Side
}

type Monitor struct {
	config   Config
	source   PriceSource
	notifier Notifier
	journal  Journal
	gate     session.Gate
	clock    session.Clock
	runID    string

	mu     sync.RWMutex
	order  []string
	states map[string]*instrumentState
}

type Option func(*Monitor)

// WithNotifier replaces the default log-only notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

func WithJournal(j Journal) Option {
	return func(m *Monitor) { m.journal = j }
}

func WithClock(c session.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// New creates a monitor for a single session run. A Monitor must not be reused.
func New(source PriceSource, gate session.Gate, config Config, opts ...Option) *Monitor {
	if config.FetchWorkers < 1 {
		config.FetchWorkers = 1
	}
	if config.FailurePolicy == "" {
		config.FailurePolicy = PolicySkip
	}
	if config.Shape == "" {
		config.Shape = models.ShapeAsymmetric
	}
	m := &Monitor{
		config:   config,
		source:   source,
		notifier: logNotifier{},
		gate:     gate,
		clock:    session.SystemClock{Location: gate.Location},
		states:   make(map[string]*instrumentState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunID identifies the run in the journal. It is empty until the gate admits the run.
func (m *Monitor) RunID() string {
	return m.runID
}

// Run executes one session and returns how it ended. The error is non-nil only
// when the run was interrupted by ctx.
func (m *Monitor) Run(ctx context.Context) (Status, error) {
	now := m.clock.Now()
	phase := m.gate.Evaluate(now)
	if phase != session.DuringSession {
		logger.Info("Session gate refused run at %s: %s", now.In(m.location()).Format(time.RFC3339), phase)
		m.notify(ctx, m.gate.Reason(phase))
		return StatusSessionNotOpen, nil
	}

	m.runID = uuid.NewString()
	if m.journal != nil {
		if err := m.journal.StartRun(m.runID, now); err != nil {
			logger.Warn("Failed to journal run start: %v", err)
		}
	}

	status, err := m.run(ctx)

	if m.journal != nil {
		if jerr := m.journal.FinishRun(m.runID, m.clock.Now(), status.String()); jerr != nil {
			logger.Warn("Failed to journal run end: %v", jerr)
		}
	}
	logger.Info("Run %s finished: %s", m.runID, status)
	return status, err
}

func (m *Monitor) run(ctx context.Context) (Status, error) {
	m.initialize(ctx)
	if err := ctx.Err(); err != nil {
		return StatusInterrupted, err
	}
	m.announce(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return StatusInterrupted, err
		}
		if m.gate.SessionOver(m.clock.Now()) {
			m.notify(ctx, terminationMessage(m.gate))
			return StatusSessionEnded, nil
		}

		m.sweep(ctx)
		if err := ctx.Err(); err != nil {
			return StatusInterrupted, err
		}

		if m.complete() {
			m.notify(ctx, completionMessage())
			return StatusCompleted, nil
		}

		select {
		case <-ctx.Done():
			return StatusInterrupted, ctx.Err()
		case <-m.clock.After(m.config.PollInterval):
		}
	}
}

// initialize estimates a band per instrument. Bands are never recomputed during the run.
func (m *Monitor) initialize(ctx context.Context) {
	for _, inst := range m.config.Instruments {
		if ctx.Err() != nil {
			return
		}
		b, err := guard(func() (models.Band, error) {
			bars, err := m.source.HistoricalCloses(ctx, inst.Symbol, m.config.LookbackDays)
			if err != nil {
				return models.Band{}, err
			}
			return band.FromBars(bars, m.config.K, m.config.Shape)
		})
		if err != nil {
			logger.Warn("Band estimation failed for %s (%s): %v", inst.Name, inst.Symbol, err)
			if m.config.FailurePolicy == PolicyDrop {
				continue
			}
			m.track(&instrumentState{instrument: inst, state: models.Skipped})
			continue
		}

		logger.Info("Band for %s: mean=%.4f%% std=%.4f%% range=[%.2f%%, %.2f%%] over %d returns",
			inst.Name, b.Mean*100, b.StdDev*100, b.Lower()*100, b.Upper()*100, b.Observations)
		m.track(&instrumentState{instrument: inst, band: b, state: models.Pending})
		if m.journal != nil {
			if err := m.journal.SaveBand(m.runID, inst, b); err != nil {
				logger.Warn("Failed to journal band for %s: %v", inst.Name, err)
			}
		}
	}
}

func (m *Monitor) track(st *instrumentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.states[st.instrument.Name]; !exists {
		m.order = append(m.order, st.instrument.Name)
	}
	m.states[st.instrument.Name] = st
}

func (m *Monitor) announce(ctx context.Context) {
	m.notify(ctx, startMessage(len(m.config.Instruments), m.config.PollInterval))
	if !m.config.AnnounceSummary {
		return
	}

	lines := make([]summaryLine, 0, len(m.order))
	for _, st := range m.tracked() {
		line := summaryLine{instrument: st.instrument, state: st.state, band: st.band}
		if st.state == models.Pending {
			tick, err := guard(func() (models.Tick, error) {
				return m.source.LatestTick(ctx, st.instrument.Symbol)
			})
			if err != nil {
				logger.Warn("Previous close unavailable for %s: %v", st.instrument.Name, err)
			} else {
				line.previousClose = tick.PreviousClose
			}
		}
		lines = append(lines, line)
	}
	m.notify(ctx, summaryMessage(lines, m.config.PricePrecision))
}

// sweep checks every pending instrument once. Ticks may be fetched concurrently,
// but outcomes are applied one by one in configuration order.
func (m *Monitor) sweep(ctx context.Context) {
	pending := lo.Filter(m.tracked(), func(st *instrumentState, _ int) bool {
		return st.state == models.Pending
	})
	if len(pending) == 0 {
		return
	}

	outcomes := make([]Outcome, len(pending))
	errs := make([]error, len(pending))

	var g errgroup.Group
	g.SetLimit(m.config.FetchWorkers)
	for i, st := range pending {
		i, st := i, st
		g.Go(func() error {
			outcomes[i], errs[i] = m.check(ctx, st)
			return nil
		})
	}
	_ = g.Wait()

	for i, st := range pending {
		if ctx.Err() != nil {
			return
		}
		m.apply(ctx, st, outcomes[i], errs[i])
	}
}

// check fetches a tick and classifies it. It has no side effects.
func (m *Monitor) check(ctx context.Context, st *instrumentState) (Outcome, error) {
	return guard(func() (Outcome, error) {
		tick, err := m.source.LatestTick(ctx, st.instrument.Symbol)
		if err != nil {
			return Outcome{}, err
		}
		if err := tick.Validate(); err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
		}
		dev := tick.Deviation()
		return Outcome{Tick: tick, Deviation: dev, Side: st.band.Classify(dev)}, nil
	})
}

func (m *Monitor) apply(ctx context.Context, st *instrumentState, outcome Outcome, err error) {
	name := st.instrument.Name
	switch {
	case err == nil && outcome.Side == models.SideNone:
		logger.Debug("%s within range: deviation=%.2f%% band=[%.2f%%, %.2f%%]",
			name, outcome.Deviation*100, st.band.Lower()*100, st.band.Upper()*100)
	case err == nil:
		m.fire(ctx, st, outcome)
	case errors.Is(err, models.ErrDataUnavailable):
		logger.Warn("Price unavailable for %s, retrying next cycle: %v", name, err)
	case ctx.Err() != nil:
	default:
		logger.Error("Check failed for %s: %v", name, err)
		m.notify(ctx, errorMessage(name, err))
	}
}

// fire marks the instrument Alerted before delivery so a failed send can never
// cause a second alert.
func (m *Monitor) fire(ctx context.Context, st *instrumentState, outcome Outcome) {
	threshold := st.band.Threshold(outcome.Side)
	alert := &models.Alert{
		ID:             uuid.NewString(),
		RunID:          m.runID,
		Instrument:     st.instrument,
		Side:           outcome.Side,
		PreviousClose:  outcome.Tick.PreviousClose,
		CurrentPrice:   outcome.Tick.CurrentPrice,
		Deviation:      outcome.Deviation,
		Threshold:      threshold,
		ThresholdPrice: thresholdPrice(outcome.Tick.PreviousClose, threshold),
		DetectedAt:     m.clock.Now(),
	}

	m.mu.Lock()
	st.state = models.Alerted
	st.lastSide = outcome.Side
	m.mu.Unlock()

	logger.Info("Alert for %s: %s side, deviation=%.2f%% threshold=%.2f%%",
		st.instrument.Name, outcome.Side, outcome.Deviation*100, threshold*100)

	if err := m.notifier.Send(ctx, alertMessage(alert, m.config.PricePrecision)); err != nil {
		logger.Warn("Failed to deliver alert for %s: %v", st.instrument.Name, err)
	} else {
		alert.Notified = true
	}

	if m.journal != nil {
		if err := m.journal.AddAlert(alert); err != nil {
			logger.Warn("Failed to journal alert for %s: %v", st.instrument.Name, err)
		}
	}
}

func (m *Monitor) complete() bool {
	return lo.EveryBy(m.tracked(), func(st *instrumentState) bool {
		return st.state.Done()
	})
}

func (m *Monitor) notify(ctx context.Context, message string) {
	if message == "" {
		return
	}
	if err := m.notifier.Send(ctx, message); err != nil {
		logger.Warn("Failed to send notification: %v", err)
	}
}

// tracked returns instrument states in configuration order.
func (m *Monitor) tracked() []*instrumentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(m.order, func(name string, _ int) *instrumentState {
		return m.states[name]
	})
}

// Snapshot reports every tracked instrument. It is safe to call while Run is active.
func (m *Monitor) Snapshot() []models.InstrumentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(m.order, func(name string, _ int) models.InstrumentStatus {
		st := m.states[name]
		status := models.InstrumentStatus{
			Instrument: st.instrument,
			State:      st.state,
			LastSide:   st.lastSide,
		}
		if st.state != models.Skipped {
			b := st.band
			status.Band = &b
		}
		return status
	})
}

// State returns the alert state of the named instrument.
func (m *Monitor) State(name string) (models.AlertState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[name]
	if !ok {
		return 0, false
	}
	return st.state, true
}

func (m *Monitor) location() *time.Location {
	if m.gate.Location == nil {
		return time.Local
	}
	return m.gate.Location
}

// guard converts a panic in fn into an error so one instrument cannot take down the run.
func guard[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

type logNotifier struct{}

func (logNotifier) Send(_ context.Context, message string) error {
	logger.Info("Notification: %s", message)
	return nil
}
