// Package verify compares every fixture record with what the tool reports,
// once through a one-shot read and once through the MQTT bridge.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/internal/eventbus"
	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/metrics"
	"github.com/kilianp07/open3e-harness/mqtt"
	"github.com/kilianp07/open3e-harness/process"
	"github.com/kilianp07/open3e-harness/wait"
)

// Tool is the part of open3e.Tool the verifier drives.
type Tool interface {
	Read(ctx context.Context, ecu string, dids []int, extra ...string) (process.Result, error)
	ReadWithDIDString(ctx context.Context, did string, extra ...string) (process.Result, error)
	Listen(ctx context.Context, m mqtt.Config, fn func(*process.Handle) error) error
}

// Bus is the part of mqtt.Client the verifier drives.
type Bus interface {
	IsBridgeOnline() bool
	Subscribe(ecu string, did int, suffix string) error
	PublishCmd(mode mqtt.Mode, ecu string, dids ...mqtt.DID) error
	ReceivedMessagesCount() int
	ReceivedMessages(ecu string, did int, suffix string) ([]string, error)
	ReceivedMessagePayload(ecu string, did int, suffix string) (string, error)
	Close()
}

// Dialer connects a Bus to the broker described by cfg.
type Dialer func(cfg mqtt.Config, log logger.Logger) (Bus, error)

// DialMQTT connects an mqtt.Client.
func DialMQTT(cfg mqtt.Config, log logger.Logger) (Bus, error) {
	c, err := mqtt.Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures a Verifier.
type Options struct {
	MQTT         mqtt.Config
	Timeout      time.Duration
	PollInterval time.Duration
	Sink         metrics.Sink
	Dial         Dialer
	Logger       logger.Logger
	// Events, when set, receives every result as soon as it is known.
	Events *eventbus.Bus[metrics.CheckResult]
}

// Verifier runs fixture checks.
type Verifier struct {
	tool Tool
	opts Options
	log  logger.Logger
}

// New returns a Verifier driving tool.
func New(tool Tool, opts Options) *Verifier {
	opts.MQTT.SetDefaults()
	if opts.Timeout <= 0 {
		opts.Timeout = wait.DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = wait.DefaultInterval
	}
	if opts.Sink == nil {
		opts.Sink = metrics.NopSink{}
	}
	if opts.Dial == nil {
		opts.Dial = DialMQTT
	}
	return &Verifier{tool: tool, opts: opts, log: logger.OrNop(opts.Logger)}
}

// Tool returns the driven tool.
func (v *Verifier) Tool() Tool { return v.tool }

// Run checks ds over the given transports, both when none is given, and
// records the results in the sink. Failed comparisons are reported in the
// results; the error is reserved for failures that stop the run.
func (v *Verifier) Run(ctx context.Context, ds dataset.Dataset, transports ...metrics.Transport) ([]metrics.CheckResult, error) {
	if len(transports) == 0 {
		transports = []metrics.Transport{metrics.TransportCLI, metrics.TransportMQTT}
	}
	var out []metrics.CheckResult
	for _, tr := range transports {
		var (
			res []metrics.CheckResult
			err error
		)
		switch tr {
		case metrics.TransportCLI:
			res, err = v.CLI(ctx, ds)
		case metrics.TransportMQTT:
			res, err = v.MQTT(ctx, ds)
		default:
			err = fmt.Errorf("unknown transport %q", tr)
		}
		out = append(out, res...)
		if err != nil {
			return out, err
		}
	}
	v.Record(out)
	return out, nil
}

// Record hands res to the sink. Sink failures are logged only.
func (v *Verifier) Record(res []metrics.CheckResult) {
	if err := v.opts.Sink.RecordCheckResults(res); err != nil {
		v.log.Errorf("record check results: %v", err)
	}
}

// Emit publishes r to the progress bus, if any.
func (v *Verifier) Emit(r metrics.CheckResult) {
	if v.opts.Events != nil {
		v.opts.Events.Publish(r)
	}
}

// CLI reads every record with a one-shot invocation and compares stdout with
// the canonical fixture value.
func (v *Verifier) CLI(ctx context.Context, ds dataset.Dataset) ([]metrics.CheckResult, error) {
	out := make([]metrics.CheckResult, 0, len(ds))
	for _, rec := range ds {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		start := time.Now()
		res, err := v.tool.Read(ctx, rec.ECU, []int{rec.DID})
		r := v.compare(metrics.TransportCLI, rec, res.Stdout, err, start)
		if err == nil && res.Stderr != "" {
			r.Passed = false
			r.Err = "unexpected stderr: " + res.Stderr
		}
		v.Emit(r)
		out = append(out, r)
	}
	return out, nil
}

// MQTT starts the bridge once and requests every record with a read-json
// command, comparing the payload published on the record's topic.
func (v *Verifier) MQTT(ctx context.Context, ds dataset.Dataset) ([]metrics.CheckResult, error) {
	out := make([]metrics.CheckResult, 0, len(ds))
	err := v.Session(ctx, func(s *Session) error {
		for _, rec := range ds {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			payload, err := s.Request(mqtt.ModeReadJSON, rec.ECU, rec.DID)
			r := v.compare(metrics.TransportMQTT, rec, payload, err, start)
			v.Emit(r)
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (v *Verifier) compare(tr metrics.Transport, rec dataset.Record, actual string, err error, start time.Time) metrics.CheckResult {
	r := metrics.CheckResult{
		ECU:       rec.ECU,
		DID:       rec.DID,
		Transport: tr,
		Expected:  rec.Canonical(),
		Duration:  time.Since(start),
		Time:      start,
	}
	if err != nil {
		r.Err = err.Error()
		v.log.Warnf("%s %s.%d: %v", tr, rec.ECU, rec.DID, err)
		return r
	}
	r.Actual = dataset.CanonicalizeOutput(actual)
	r.Passed = r.Actual == r.Expected
	if !r.Passed {
		v.log.Warnf("%s %s.%d: expected %s, got %s", tr, rec.ECU, rec.DID, r.Expected, r.Actual)
	}
	return r
}

// Session is a running bridge with a connected bus.
type Session struct {
	Bus        Bus
	ctx        context.Context
	v          *Verifier
	subscribed map[string]bool
}

// Session runs fn while the bridge runs and a bus is connected to the broker.
// fn is only called once the bridge reported itself online.
func (v *Verifier) Session(ctx context.Context, fn func(*Session) error) error {
	return v.tool.Listen(ctx, v.opts.MQTT, func(_ *process.Handle) error {
		bus, err := v.opts.Dial(v.opts.MQTT, v.log)
		if err != nil {
			return err
		}
		defer bus.Close()
		s := &Session{Bus: bus, ctx: ctx, v: v, subscribed: make(map[string]bool)}
		if err := s.Await(bus.IsBridgeOnline); err != nil {
			return fmt.Errorf("bridge did not come online: %w", err)
		}
		return fn(s)
	})
}

// Await polls cond with the verifier's timeout and interval.
func (s *Session) Await(cond func() bool) error {
	return s.AwaitPredicate(wait.Bool(cond))
}

// AwaitPredicate is Await for predicates that can fail; their error ends the
// wait and is returned as is.
func (s *Session) AwaitPredicate(pred wait.Predicate) error {
	return wait.For(s.ctx, s.v.opts.Timeout, s.v.opts.PollInterval, pred)
}

// AwaitMessages waits until at least n messages were received in total.
func (s *Session) AwaitMessages(n int) error {
	err := s.Await(func() bool { return s.Bus.ReceivedMessagesCount() >= n })
	if errors.Is(err, wait.ErrTimeout) {
		return fmt.Errorf("%w: got %d of %d messages", err, s.Bus.ReceivedMessagesCount(), n)
	}
	return err
}

// Subscribe subscribes to the topic of (ecu, did) plus suffix once.
func (s *Session) Subscribe(ecu string, did int, suffix string) error {
	key := fmt.Sprintf("%s/%d%s", ecu, did, suffix)
	if s.subscribed[key] {
		return nil
	}
	if err := s.Bus.Subscribe(ecu, did, suffix); err != nil {
		return err
	}
	s.subscribed[key] = true
	return nil
}

// Request subscribes to the topic of (ecu, did), publishes a command for it
// and returns the payload that arrives in response.
func (s *Session) Request(mode mqtt.Mode, ecu string, did int) (string, error) {
	if err := s.Subscribe(ecu, did, ""); err != nil {
		return "", err
	}
	before, err := s.Bus.ReceivedMessages(ecu, did, "")
	if err != nil {
		return "", err
	}
	if err := s.Bus.PublishCmd(mode, ecu, mqtt.DIDs(did)...); err != nil {
		return "", err
	}
	err = s.AwaitPredicate(func() (bool, error) {
		msgs, err := s.Bus.ReceivedMessages(ecu, did, "")
		return len(msgs) > len(before), err
	})
	if errors.Is(err, wait.ErrTimeout) {
		return "", fmt.Errorf("%w: %s.%d: %w", mqtt.ErrNoMessageReceived, ecu, did, err)
	}
	if err != nil {
		return "", err
	}
	return s.Bus.ReceivedMessagePayload(ecu, did, "")
}
