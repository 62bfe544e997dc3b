//go:build !no_containers

package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/open3e-harness/metrics"
	"github.com/kilianp07/open3e-harness/qa/scenarios"
	"github.com/kilianp07/open3e-harness/test/util"
	"github.com/kilianp07/open3e-harness/verify"
)

func TestVerifyFixtureAndScenarios(t *testing.T) {
	tool := util.Tool(t)
	broker := util.StartBroker(t)

	textfile := filepath.Join(t.TempDir(), "harness.prom")
	sinks, err := metrics.NewSinks(metrics.Config{TextfilePath: textfile}, prometheus.NewRegistry())
	require.NoError(t, err)
	defer sinks.Close()

	v := verify.New(tool, verify.Options{MQTT: broker.MQTTConfig(), Sink: sinks.Sink})
	ds := readDataset(t)
	ctx := context.Background()

	results, err := v.Run(ctx, ds)
	require.NoError(t, err)
	assert.Len(t, results, 2*len(ds))

	sc, err := scenarios.Load(filepath.Join("..", "qa", "scenarios", "read.yaml"))
	require.NoError(t, err)
	res, err := scenarios.Run(ctx, v, ds, sc)
	require.NoError(t, err)
	results = append(results, res...)

	for _, r := range results {
		assert.True(t, r.Passed, "%s %s.%d: expected %s, got %s (%s)", r.Transport, r.ECU, r.DID, r.Expected, r.Actual, r.Err)
	}
	require.NoError(t, sinks.Prom.WriteTextfile(textfile))
	assert.FileExists(t, textfile)
}
