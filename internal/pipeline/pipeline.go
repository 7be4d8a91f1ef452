// v0
// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"nrgchamp/greenhouse/internal/breaker"
	"nrgchamp/greenhouse/internal/bus"
	"nrgchamp/greenhouse/internal/controller"
	"nrgchamp/greenhouse/internal/detector"
	"nrgchamp/greenhouse/internal/model"
	"nrgchamp/greenhouse/internal/override"
)

// State is the lifecycle of the cycle loop.
type State int

const (
	Idle State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source produces one batch around a baseline.
type Source interface {
	Generate(b model.Baseline, sensorCount int, anomalyRate float64) (model.Batch, error)
}

// Overrides is the consumer side of the operator command channel.
type Overrides interface {
	Drain() (model.Steps, []override.Command)
	Quit() <-chan struct{}
}

// Sink receives per-cycle observations.
type Sink interface {
	CycleCompleted(d time.Duration, published, failed, skipped int)
	CycleFailed(reason string)
	ObserveBaseline(b model.Baseline)
	ObserveSteps(s model.Steps)
	AlertRaised(level string, metric model.Metric)
	InterventionRaised(metric model.Metric)
	DataQualityWarnings(n int)
	OverrideApplied(command string)
}

type Config struct {
	Topic          string
	Interval       time.Duration
	NumSensors     int
	AnomalyRate    float64
	PublishTimeout time.Duration
	// SummarySingles caps the single alerts copied into a summary.
	SummarySingles int
}

type Deps struct {
	Source    Source
	Regulator *controller.Regulator
	Overrides Overrides
	Publisher bus.Publisher
	Sink      Sink
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Pipeline runs the generate, detect, compensate and publish cycle on a
// fixed period. Everything except State and LastSummary is owned by the
// goroutine calling Run or RunCycle.
type Pipeline struct {
	cfg       Config
	source    Source
	reg       *controller.Regulator
	overrides Overrides
	pub       bus.Publisher
	sink      Sink
	log       *slog.Logger
	clock     func() time.Time

	initial model.Baseline
	cycle   uint64

	mu    sync.RWMutex
	state State
	last  *Summary
}

func New(cfg Config, d Deps) *Pipeline {
	if cfg.SummarySingles <= 0 {
		cfg.SummarySingles = 5
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Sink == nil {
		d.Sink = nopSink{}
	}
	if d.Overrides == nil {
		d.Overrides = noOverrides{}
	}
	return &Pipeline{
		cfg:       cfg,
		source:    d.Source,
		reg:       d.Regulator,
		overrides: d.Overrides,
		pub:       d.Publisher,
		sink:      d.Sink,
		log:       d.Logger.With(slog.String("component", "pipeline")),
		clock:     d.Clock,
		initial:   d.Regulator.Baseline(),
	}
}

// Run executes a cycle immediately and then once per tick until ctx is
// cancelled or a quit command arrives. The cycle in progress always
// completes and its summary is emitted.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-p.overrides.Quit():
			p.log.Info("quit_requested")
			cancel()
		case <-ctx.Done():
		}
		p.mu.Lock()
		if p.state == Running {
			p.state = Draining
		}
		p.mu.Unlock()
	}()

	p.setState(Running)
	p.log.Info("pipeline_started",
		slog.Duration("interval", p.cfg.Interval),
		slog.Int("sensors", p.cfg.NumSensors),
		slog.Float64("anomaly_rate", p.cfg.AnomalyRate),
		slog.String("topic", p.cfg.Topic),
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	quit := p.overrides.Quit()
	stopping := func() bool {
		select {
		case <-ctx.Done():
			return true
		case <-quit:
			cancel()
			return true
		default:
			return false
		}
	}

loop:
	for {
		if _, err := p.RunCycle(ctx); err != nil {
			p.log.Error("cycle_failed", slog.Any("err", err))
		}
		if stopping() {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-quit:
			cancel()
			break loop
		case <-ticker.C:
		}
	}

	p.pub.Disconnect()
	p.setState(Stopped)
	p.log.Info("pipeline_stopped", slog.Uint64("cycles", p.cycle))
	return nil
}

// RunCycle performs one iteration. It returns an error only when no batch
// could be generated; transport problems are reported in the summary.
func (p *Pipeline) RunCycle(ctx context.Context) (Summary, error) {
	start := p.clock()
	p.cycle++
	sum := Summary{Cycle: p.cycle, ID: uuid.NewString(), Timestamp: start.UTC()}

	steps, cmds := p.overrides.Drain()
	sum.Steps, sum.Commands = steps, cmds
	for _, c := range cmds {
		p.sink.OverrideApplied(string(c))
	}
	sum.ManualAdjustments = p.reg.ApplySteps(steps)
	for _, adj := range sum.ManualAdjustments {
		p.log.Info("manual_step_applied",
			slog.String("metric", string(adj.Metric)),
			slog.Float64("step", adj.Step),
			slog.Float64("from", adj.Previous),
			slog.Float64("to", adj.Next),
			slog.Float64("drift", model.Round2(adj.Next-p.initial.Get(adj.Metric))),
		)
	}

	batch, err := p.source.Generate(p.reg.Baseline(), p.cfg.NumSensors, p.cfg.AnomalyRate)
	if err != nil {
		sum.Baseline = p.reg.Baseline()
		sum.Fault = err.Error()
		sum.Duration = p.clock().Sub(start)
		p.sink.CycleFailed("generation_fault")
		p.finish(sum)
		return sum, fmt.Errorf("cycle %d: generate: %w", sum.Cycle, err)
	}
	for _, r := range batch {
		if r.IsAnomaly {
			sum.Injected++
		}
	}

	res := detector.Detect(batch)
	sum.SingleAlerts = len(res.Singles)
	if n := min(len(res.Singles), p.cfg.SummarySingles); n > 0 {
		sum.FirstSingles = append([]detector.SingleAlert(nil), res.Singles[:n]...)
	}
	sum.AverageAlerts = res.Averages
	sum.Warnings = res.Warnings
	for _, a := range res.Singles {
		p.sink.AlertRaised("single", a.Metric)
	}
	for _, a := range res.Averages {
		p.sink.AlertRaised("average", a.Metric)
	}
	for _, w := range res.Warnings {
		p.log.Warn("data_quality_warning", slog.Int("sensor", w.SensorID), slog.String("metric", string(w.Metric)), slog.String("reason", w.Reason))
	}
	p.sink.DataQualityWarnings(len(res.Warnings))

	out := p.reg.Regulate(res.Averages)
	sum.Baseline = out.Baseline
	sum.Corrections = out.Corrections
	sum.Interventions = out.Interventions
	for _, c := range out.Corrections {
		p.log.Info("baseline_compensated",
			slog.String("metric", string(c.Metric)),
			slog.Float64("mean", c.Mean),
			slog.Float64("bound", c.Bound),
			slog.Float64("from", c.Previous),
			slog.Float64("to", c.Next),
			slog.Float64("applied", c.Applied),
		)
	}
	for _, s := range out.Interventions {
		p.log.Warn("manual_intervention_required",
			slog.String("metric", string(s.Metric)),
			slog.Float64("required", s.Required),
			slog.Float64("applied", s.Applied),
			slog.Float64("remainder", s.Remainder),
		)
		p.sink.InterventionRaised(s.Metric)
	}

	p.publish(ctx, batch, &sum)

	sum.Duration = p.clock().Sub(start)
	p.sink.CycleCompleted(sum.Duration, sum.Published, sum.Failed, sum.Skipped)
	p.finish(sum)
	return sum, nil
}

// publish sends every reading in order. An in-flight publish is allowed to
// finish after ctx is cancelled; the next reading is not started.
func (p *Pipeline) publish(ctx context.Context, batch model.Batch, sum *Summary) {
	if ctx.Err() != nil {
		sum.Interrupted = true
		sum.Unsent = len(batch)
		return
	}
	if err := p.pub.Connect(ctx); err != nil {
		sum.TransportError = err.Error()
		sum.Unsent = len(batch)
		p.log.Error("transport_connect_failed", slog.Any("err", err), slog.Int("unsent", len(batch)))
		return
	}

	detached := context.WithoutCancel(ctx)
	for i, r := range batch {
		if ctx.Err() != nil {
			sum.Interrupted = true
			sum.Unsent = len(batch) - i
			p.log.Info("publish_interrupted", slog.Int("sent", i), slog.Int("unsent", sum.Unsent))
			return
		}
		payload, err := model.EncodeReading(r)
		if err != nil {
			sum.Skipped++
			p.log.Warn("serialization_fault", slog.Int("sensor", r.SensorID), slog.Any("err", err))
			continue
		}
		pctx, cancel := p.publishContext(detached)
		err = p.pub.Publish(pctx, p.cfg.Topic, []byte(strconv.Itoa(r.SensorID)), payload)
		cancel()
		if err == nil {
			sum.Published++
			continue
		}
		sum.Failed++
		if errors.Is(err, breaker.ErrOpen) {
			sum.TransportError = err.Error()
			sum.Unsent = len(batch) - i - 1
			p.log.Error("transport_unavailable", slog.Int("sensor", r.SensorID), slog.Any("err", err), slog.Int("unsent", sum.Unsent))
			return
		}
		p.log.Warn("publish_failed", slog.Int("sensor", r.SensorID), slog.Any("err", err))
	}
}

func (p *Pipeline) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.PublishTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.cfg.PublishTimeout)
}

func (p *Pipeline) finish(sum Summary) {
	p.sink.ObserveBaseline(sum.Baseline)
	p.sink.ObserveSteps(sum.Steps)
	level := slog.LevelInfo
	if sum.Fault != "" || sum.TransportError != "" {
		level = slog.LevelWarn
	}
	p.log.Log(context.Background(), level, "cycle_summary", sum.logAttrs()...)

	p.mu.Lock()
	p.last = &sum
	p.mu.Unlock()
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State reports the loop lifecycle. Safe for concurrent use.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastSummary returns the most recent cycle summary, if any. Safe for
// concurrent use.
func (p *Pipeline) LastSummary() (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Summary{}, false
	}
	return *p.last, true
}

type nopSink struct{}

func (nopSink) CycleCompleted(time.Duration, int, int, int) {}
func (nopSink) CycleFailed(string)                          {}
func (nopSink) ObserveBaseline(model.Baseline)              {}
func (nopSink) ObserveSteps(model.Steps)                    {}
func (nopSink) AlertRaised(string, model.Metric)            {}
func (nopSink) InterventionRaised(model.Metric)             {}
func (nopSink) DataQualityWarnings(int)                     {}
func (nopSink) OverrideApplied(string)                      {}

type noOverrides struct{}

func (noOverrides) Drain() (model.Steps, []override.Command) { return model.Steps{}, nil }
func (noOverrides) Quit() <-chan struct{}                    { return nil }
