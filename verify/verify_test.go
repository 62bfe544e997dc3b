package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/internal/eventbus"
	"github.com/kilianp07/open3e-harness/metrics"
	"github.com/kilianp07/open3e-harness/mqtt"
	"github.com/kilianp07/open3e-harness/process"
	"github.com/kilianp07/open3e-harness/wait"
)

const fixture = `{
  "0x680": {
    "256": {"VIN": "1234567801234567", "BusType": {"Text": "CanInternal", "ID": 2}},
    "505": 1520
  },
  "0x6a1": {"269": true}
}`

func loadFixture(t *testing.T) dataset.Dataset {
	t.Helper()
	ds, err := dataset.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	return ds
}

type recordingSink struct {
	got []metrics.CheckResult
}

func (r *recordingSink) RecordCheckResults(res []metrics.CheckResult) error {
	r.got = append(r.got, res...)
	return nil
}

func fastOptions() Options {
	return Options{Timeout: 100 * time.Millisecond, PollInterval: 5 * time.Millisecond}
}

func TestCLI(t *testing.T) {
	tool := &fakeTool{
		stdout: map[string]string{
			"0x680.256": `{"BusType": {"ID": 2, "Text": "CanInternal"}, "VIN": "1234567801234567"}` + "\n",
			"0x680.505": "1519\n",
		},
		fail: map[string]error{
			"0x6a1.269": &process.ExitError{Name: "open3e", Code: 1, Stderr: "no response"},
		},
	}
	v := New(tool, fastOptions())

	res, err := v.CLI(context.Background(), loadFixture(t))
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.True(t, res[0].Passed)
	assert.Equal(t, metrics.TransportCLI, res[0].Transport)
	assert.Equal(t, `{"BusType": {"ID": 2, "Text": "CanInternal"}, "VIN": "1234567801234567"}`, res[0].Actual)

	assert.False(t, res[1].Passed)
	assert.Equal(t, "1520", res[1].Expected)
	assert.Equal(t, "1519", res[1].Actual)

	assert.False(t, res[2].Passed)
	assert.Contains(t, res[2].Err, "exit code 1")
	assert.Equal(t, []string{"0x680.256", "0x680.505", "0x6a1.269"}, tool.requests)
}

func TestCLI_StderrFails(t *testing.T) {
	tool := &fakeTool{
		stdout: map[string]string{"0x680.505": "1520"},
		stderr: map[string]string{"0x680.505": "warning"},
	}
	v := New(tool, fastOptions())
	ds := loadFixture(t).Filter("0x680")[1:]

	res, err := v.CLI(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Passed)
	assert.Equal(t, "unexpected stderr: warning", res[0].Err)
}

func TestMQTT(t *testing.T) {
	bus := newFakeBus(true)
	bus.respond("0x680", 256, "", `{"VIN": "1234567801234567", "BusType": {"ID": 2, "Text": "CanInternal"}}`)
	bus.respond("0x680", 505, "", "1520")
	bus.respond("0x6a1", 269, "", "True")
	opts := fastOptions()
	opts.Dial = bus.dialer()
	v := New(&fakeTool{}, opts)

	res, err := v.MQTT(context.Background(), loadFixture(t))
	require.NoError(t, err)
	require.Len(t, res, 3)
	for _, r := range res {
		assert.True(t, r.Passed, "%s.%d: %s", r.ECU, r.DID, r.Err)
		assert.Equal(t, metrics.TransportMQTT, r.Transport)
	}
	assert.Equal(t, []string{"read-json 0x680/256", "read-json 0x680/505", "read-json 0x6a1/269"}, bus.commands)
	assert.True(t, bus.closed)
}

func TestMQTT_NoMessage(t *testing.T) {
	bus := newFakeBus(true)
	opts := fastOptions()
	opts.Dial = bus.dialer()
	v := New(&fakeTool{}, opts)

	res, err := v.MQTT(context.Background(), loadFixture(t).Filter("0x6a1"))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Passed)
	assert.Contains(t, res[0].Err, mqtt.ErrNoMessageReceived.Error())
}

func TestMQTT_StaleMessageIsNotReused(t *testing.T) {
	bus := newFakeBus(true)
	bus.respond("0x680", 505, "", "1520")
	opts := fastOptions()
	opts.Dial = bus.dialer()
	v := New(&fakeTool{}, opts)

	err := v.Session(context.Background(), func(s *Session) error {
		payload, err := s.Request(mqtt.ModeReadJSON, "0x680", 505)
		require.NoError(t, err)
		assert.Equal(t, "1520", payload)

		delete(bus.responses, "0x680/505")
		_, err = s.Request(mqtt.ModeReadJSON, "0x680", 505)
		assert.ErrorIs(t, err, mqtt.ErrNoMessageReceived)
		assert.ErrorIs(t, err, wait.ErrTimeout)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, bus.subs, 1)
}

func TestRequestPropagatesStoreError(t *testing.T) {
	bus := newFakeBus(true)
	bus.readErr = errors.New("invalid topic")
	opts := fastOptions()
	opts.Dial = bus.dialer()
	v := New(&fakeTool{}, opts)

	err := v.Session(context.Background(), func(s *Session) error {
		_, err := s.Request(mqtt.ModeReadJSON, "0x680", 505)
		return err
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid topic")
	assert.False(t, errors.Is(err, wait.ErrTimeout))
	assert.False(t, errors.Is(err, mqtt.ErrNoMessageReceived))
}

func TestMQTT_BridgeOffline(t *testing.T) {
	bus := newFakeBus(false)
	opts := fastOptions()
	opts.Dial = bus.dialer()
	v := New(&fakeTool{}, opts)

	_, err := v.MQTT(context.Background(), loadFixture(t))
	assert.ErrorIs(t, err, wait.ErrTimeout)
	assert.ErrorContains(t, err, "bridge did not come online")
	assert.Empty(t, bus.commands)
}

func TestMQTT_BridgeFailure(t *testing.T) {
	tool := &fakeTool{listenErr: &process.NotTerminatedError{Name: "open3e", PID: 42, Grace: time.Second}}
	v := New(tool, fastOptions())

	_, err := v.MQTT(context.Background(), loadFixture(t))
	assert.True(t, errors.Is(err, process.ErrDidNotTerminate))
}

func TestRun_RecordsResults(t *testing.T) {
	tool := &fakeTool{stdout: map[string]string{"0x6a1.269": "True"}}
	bus := newFakeBus(true)
	bus.respond("0x6a1", 269, "", "True")
	sink := &recordingSink{}
	opts := fastOptions()
	opts.Dial = bus.dialer()
	opts.Sink = sink
	v := New(tool, opts)

	res, err := v.Run(context.Background(), loadFixture(t).Filter("0x6a1"))
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, metrics.TransportCLI, res[0].Transport)
	assert.Equal(t, metrics.TransportMQTT, res[1].Transport)
	assert.Equal(t, res, sink.got)
	assert.Equal(t, 2, metrics.Summarize(res).Passed)
}

func TestRun_EmitsProgress(t *testing.T) {
	tool := &fakeTool{stdout: map[string]string{"0x680.505": "1520", "0x680.256": "{}"}}
	events := eventbus.New[metrics.CheckResult](4)
	progress := events.Subscribe()
	opts := fastOptions()
	opts.Events = events
	v := New(tool, opts)

	res, err := v.Run(context.Background(), loadFixture(t).Filter("0x680"), metrics.TransportCLI)
	require.NoError(t, err)
	events.Close()

	var got []metrics.CheckResult
	for r := range progress {
		got = append(got, r)
	}
	assert.Equal(t, res, got)
	assert.Zero(t, events.Dropped())
}

func TestRun_UnknownTransport(t *testing.T) {
	v := New(&fakeTool{}, fastOptions())
	_, err := v.Run(context.Background(), loadFixture(t), metrics.Transport("can"))
	assert.ErrorContains(t, err, `unknown transport "can"`)
}
