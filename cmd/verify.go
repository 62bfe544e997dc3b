package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/internal/eventbus"
	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/metrics"
	"github.com/kilianp07/open3e-harness/pkg/export"
	"github.com/kilianp07/open3e-harness/qa/scenarios"
	"github.com/kilianp07/open3e-harness/verify"
)

var (
	verifyTransports []string
	verifyECU        string
	verifyScenarios  []string
	verifyProgress   bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare every fixture value with what the tool reports",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringSliceVarP(&verifyTransports, "transport", "t", nil, "transports to check: cli, mqtt (default both)")
	verifyCmd.Flags().StringVar(&verifyECU, "ecu", "", "only check records of this ECU")
	verifyCmd.Flags().StringSliceVar(&verifyScenarios, "scenario", nil, "scenario files to run after the fixture checks")
	verifyCmd.Flags().BoolVar(&verifyProgress, "progress", false, "print every result to stderr as it is known")
	rootCmd.AddCommand(verifyCmd)
}

var errChecksFailed = errors.New("checks failed")

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logg := logger.New("verify")

	ds, err := dataset.Load(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	if verifyECU != "" {
		ds = ds.Filter(verifyECU)
	}

	sinks, err := metrics.NewSinks(cfg.Report, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics sinks: %w", err)
	}
	defer sinks.Close()

	tool, err := newTool(cfg)
	if err != nil {
		return err
	}
	opts := verify.Options{
		MQTT:         cfg.MQTT,
		Timeout:      cfg.Wait.Timeout(),
		PollInterval: cfg.Wait.PollInterval(),
		Sink:         sinks.Sink,
		Logger:       logg,
	}
	if verifyProgress {
		events := eventbus.New[metrics.CheckResult](64)
		done := printProgress(cmd.ErrOrStderr(), events.Subscribe())
		defer func() {
			events.Close()
			<-done
			if n := events.Dropped(); n > 0 {
				logg.Warnf("%d progress lines dropped", n)
			}
		}()
		opts.Events = events
	}
	v := verify.New(tool, opts)

	transports := make([]metrics.Transport, len(verifyTransports))
	for i, t := range verifyTransports {
		transports[i] = metrics.Transport(t)
	}
	results, err := v.Run(ctx, ds, transports...)
	if err != nil {
		return err
	}
	for _, path := range verifyScenarios {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		res, err := scenarios.Run(ctx, v, ds, sc)
		results = append(results, res...)
		if err != nil {
			return err
		}
	}

	if sinks.Prom != nil && cfg.Report.TextfilePath != "" {
		if err := sinks.Prom.WriteTextfile(cfg.Report.TextfilePath); err != nil {
			logg.Errorf("write textfile: %v", err)
		}
	}

	if cfg.Report.JUnitPath != "" {
		if err := metrics.WriteJUnit(cfg.Report.JUnitPath, "open3e", results); err != nil {
			logg.Errorf("write junit report: %v", err)
		}
	}

	if cfg.Report.ExportPath != "" {
		if err := export.WriteFile(cfg.Report.ExportPath, results); err != nil {
			logg.Errorf("export results: %v", err)
		}
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Passed {
			continue
		}
		detail := r.Err
		if detail == "" {
			detail = fmt.Sprintf("expected %s, got %s", r.Expected, r.Actual)
		}
		fmt.Fprintf(out, "FAIL %s %s.%d: %s\n", r.Transport, r.ECU, r.DID, detail)
	}
	summary := metrics.Summarize(results)
	fmt.Fprintln(out, summary.String())
	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errChecksFailed, summary.Failed, summary.Total)
	}
	return nil
}

// printProgress writes one line per result until events is closed. The
// returned channel is closed once everything was printed.
func printProgress(w io.Writer, events <-chan metrics.CheckResult) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range events {
			status := "ok  "
			if !r.Passed {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%s %-4s %s.%d (%v)\n", status, r.Transport, r.ECU, r.DID, r.Duration.Round(time.Millisecond))
		}
	}()
	return done
}
