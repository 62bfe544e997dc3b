package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/simulator"
)

var (
	simDelay    time.Duration
	simDropRate float64
	simRawFile  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Answer bridge commands from the fixture file until interrupted",
	RunE:  runSimulator,
}

func init() {
	simulateCmd.Flags().DurationVar(&simDelay, "delay", 0, "delay before each response")
	simulateCmd.Flags().Float64Var(&simDropRate, "drop-rate", 0, "probability of dropping a response")
	simulateCmd.Flags().StringVar(&simRawFile, "raw-file", "", `JSON file of read-raw payloads: {"<ecu>": {"<did>": "<hex>"}}`)
	rootCmd.AddCommand(simulateCmd)
}

func runSimulator(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ds, err := dataset.Load(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	raw, err := readRawFile(simRawFile)
	if err != nil {
		return err
	}
	bridge, err := simulator.NewBridge(simulator.Config{
		MQTT:     cfg.MQTT,
		Raw:      raw,
		Strategy: simulator.RandomDrop{Delay: simDelay, DropRate: simDropRate},
		Logger:   logger.New("simulator"),
	}, ds)
	if err != nil {
		return err
	}
	return bridge.Run(ctx)
}

func readRawFile(path string) (map[string]map[int]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var byKey map[string]map[string]string
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, fmt.Errorf("raw file %s: %w", path, err)
	}
	out := make(map[string]map[int]string, len(byKey))
	for ecu, dids := range byKey {
		out[ecu] = make(map[int]string, len(dids))
		for key, hex := range dids {
			did, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("raw file %s: invalid did %q", path, key)
			}
			out[ecu][did] = hex
		}
	}
	return out, nil
}
