package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/open3e-harness/internal/eventbus"
	"github.com/kilianp07/open3e-harness/metrics"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		cfgPath = ""
		datasetECU = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTopicCommand(t *testing.T) {
	out, err := execute(t, "topic", "0x680.256.BusType")
	require.NoError(t, err)
	assert.Contains(t, out, "cli:       0x680.256.BusType\n")
	assert.Contains(t, out, "command:   open3e/cmnd\n")
	assert.Contains(t, out, "topic:     open3e/680_0256/BusType\n")
	assert.Contains(t, out, `published: open3e/680_0256 (sub-DID "256.BusType")`)
}

func TestTopicCommand_BaseFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  base_topic: heating\n"), 0o644))

	out, err := execute(t, "--config", path, "topic", "0x6a1.268")
	require.NoError(t, err)
	assert.Contains(t, out, "topic:     heating/6A1_0268\n")
	assert.NotContains(t, out, "published:")
}

func TestTopicCommand_InvalidAddress(t *testing.T) {
	_, err := execute(t, "topic", "0x680")
	assert.Error(t, err)
}

func TestDatasetCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "read.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0x680": {"505": 1520, "256": {"B": 1, "A": "x"}}, "0x6a1": {"269": true}}`), 0o644))

	out, err := execute(t, "dataset", path, "--ecu", "0x680")
	require.NoError(t, err)
	assert.Contains(t, out, "1520")
	assert.Contains(t, out, `{"A": "x", "B": 1}`)
	assert.NotContains(t, out, "0x6a1")
}

func TestReadRawFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0x680": {"256": "0102"}}`), 0o644))

	raw, err := readRawFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[int]string{"0x680": {256: "0102"}}, raw)

	require.NoError(t, os.WriteFile(path, []byte(`{"0x680": {"BusType": "0102"}}`), 0o644))
	_, err = readRawFile(path)
	assert.ErrorContains(t, err, `invalid did "BusType"`)

	raw, err = readRawFile("")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestPrintProgress(t *testing.T) {
	events := eventbus.New[metrics.CheckResult](4)
	var buf bytes.Buffer
	done := printProgress(&buf, events.Subscribe())

	events.Publish(metrics.CheckResult{ECU: "0x680", DID: 256, Transport: metrics.TransportCLI, Passed: true, Duration: 12 * time.Millisecond})
	events.Publish(metrics.CheckResult{ECU: "0x6a1", DID: 269, Transport: metrics.TransportMQTT})
	events.Close()
	<-done

	assert.Equal(t, "ok   cli  0x680.256 (12ms)\nFAIL mqtt 0x6a1.269 (0s)\n", buf.String())
}
