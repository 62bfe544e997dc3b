package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/open3e-harness/addressing"
	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/metrics"
	"github.com/kilianp07/open3e-harness/mqtt"
	"github.com/kilianp07/open3e-harness/open3e"
	"github.com/kilianp07/open3e-harness/process"
	"github.com/kilianp07/open3e-harness/verify"
)

// Run executes every step of sc and records the results through v. ds
// supplies the values of expectations without a literal value.
func Run(ctx context.Context, v *verify.Verifier, ds dataset.Dataset, sc *Scenario) ([]metrics.CheckResult, error) {
	var out []metrics.CheckResult
	for _, st := range sc.Steps {
		var (
			res []metrics.CheckResult
			err error
		)
		switch metrics.Transport(st.Transport) {
		case metrics.TransportCLI:
			res, err = runCLI(ctx, v, ds, st)
		case metrics.TransportMQTT:
			res, err = runMQTT(ctx, v, ds, st)
		default:
			err = fmt.Errorf("unknown transport %q", st.Transport)
		}
		out = append(out, res...)
		if err != nil {
			return out, fmt.Errorf("scenario %s, step %s: %w", sc.Name, st.Name, err)
		}
	}
	v.Record(out)
	return out, nil
}

func runCLI(ctx context.Context, v *verify.Verifier, ds dataset.Dataset, st Step) ([]metrics.CheckResult, error) {
	extra, err := cliArgs(st.Mode)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var res process.Result
	if len(st.SubPath) > 0 {
		did := st.ECU + "." + addressing.SubDID(st.DIDs[0], st.SubPath...)
		res, err = v.Tool().ReadWithDIDString(ctx, did, extra...)
	} else {
		res, err = v.Tool().Read(ctx, st.ECU, st.DIDs, extra...)
	}
	if err == nil && res.Stderr != "" {
		err = fmt.Errorf("unexpected stderr: %s", res.Stderr)
	}
	actual := map[int]string{}
	if err == nil && len(st.DIDs) > 1 {
		var lines []open3e.ReadLine
		lines, err = open3e.ParseReadLines(res.Stdout)
		for _, l := range lines {
			actual[l.DID] = l.Value
		}
	} else if err == nil {
		actual[st.DIDs[0]] = res.Stdout
	}

	out := make([]metrics.CheckResult, 0, len(st.Expect))
	for _, e := range st.Expect {
		r, cerr := check(ds, st, e, metrics.TransportCLI, start)
		if cerr != nil {
			return out, cerr
		}
		got, ok := actual[e.DID]
		switch {
		case err != nil:
			r.Err = err.Error()
		case !ok:
			r.Err = fmt.Sprintf("did %d missing from output", e.DID)
		default:
			r.Actual = dataset.CanonicalizeOutput(got)
			r.Passed = r.Actual == r.Expected
		}
		v.Emit(r)
		out = append(out, r)
	}
	return out, nil
}

func runMQTT(ctx context.Context, v *verify.Verifier, ds dataset.Dataset, st Step) ([]metrics.CheckResult, error) {
	mode, err := parseMode(st.Mode)
	if err != nil {
		return nil, err
	}
	var out []metrics.CheckResult
	err = v.Session(ctx, func(s *verify.Session) error {
		start := time.Now()
		for _, did := range st.DIDs {
			if err := s.Subscribe(st.ECU, did, st.Suffix); err != nil {
				return err
			}
		}
		dids := mqtt.DIDs(st.DIDs...)
		if len(st.SubPath) > 0 {
			dids = []mqtt.DID{mqtt.SubDID(st.DIDs[0], st.SubPath...)}
		}
		base := s.Bus.ReceivedMessagesCount()
		if err := s.Bus.PublishCmd(mode, st.ECU, dids...); err != nil {
			return err
		}
		waitErr := s.AwaitMessages(base + st.Messages)
		for _, e := range st.Expect {
			r, err := check(ds, st, e, metrics.TransportMQTT, start)
			if err != nil {
				return err
			}
			payload, err := s.Bus.ReceivedMessagePayload(st.ECU, e.DID, e.Suffix)
			switch {
			case waitErr != nil:
				r.Err = waitErr.Error()
			case err != nil:
				r.Err = err.Error()
			default:
				r.Actual = dataset.CanonicalizeOutput(payload)
				r.Passed = r.Actual == r.Expected
			}
			v.Emit(r)
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// check prepares the result of e with its expected value filled in.
func check(ds dataset.Dataset, st Step, e Expect, tr metrics.Transport, start time.Time) (metrics.CheckResult, error) {
	r := metrics.CheckResult{
		ECU:       st.ECU,
		DID:       e.DID,
		Transport: tr,
		Duration:  time.Since(start),
		Time:      start,
	}
	if e.Value != "" {
		r.Expected = dataset.CanonicalizeOutput(e.Value)
		return r, nil
	}
	v, ok := ds.Lookup(st.ECU, e.DID)
	if !ok {
		return r, fmt.Errorf("no fixture value for %s.%d", st.ECU, e.DID)
	}
	r.Expected = v.Canonical()
	return r, nil
}
