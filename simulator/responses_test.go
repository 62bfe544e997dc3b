package simulator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/open3e-harness/addressing"
	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/mqtt"
)

const raw256 = "01021f091400fd010109c000020064026500040031323334353637383031323334353637"

func newTestResponder(t *testing.T) *Responder {
	t.Helper()
	ds, err := dataset.Load(filepath.Join("..", "test", "test_data", "read.json"))
	require.NoError(t, err)
	return NewResponder("open3e", addressing.MustParseTopicFormat(addressing.DefaultTopicFormat), ds,
		map[string]map[int]string{"0x680": {256: raw256}})
}

func TestRespondReadJSON(t *testing.T) {
	r := newTestResponder(t)
	msgs, err := r.Respond(mqtt.Command{Mode: mqtt.ModeReadJSON, Addr: "0x680", Data: mqtt.DIDs(505, 256)})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Topic: "open3e/680_0505", Payload: "1520"}, msgs[0])
	assert.Equal(t, "open3e/680_0256", msgs[1].Topic)
	assert.Contains(t, msgs[1].Payload, `"BusType": {"ID": 2, "Text": "CanInternal"}`)
}

func TestRespondSubDIDOnParentTopic(t *testing.T) {
	r := newTestResponder(t)
	msgs, err := r.Respond(mqtt.Command{Mode: mqtt.ModeReadJSON, Addr: "0x680", Data: []mqtt.DID{mqtt.SubDID(256, "BusType")}})
	require.NoError(t, err)
	assert.Equal(t, []Message{{Topic: "open3e/680_0256", Payload: `{"ID": 2, "Text": "CanInternal"}`}}, msgs)
}

func TestRespondReadFlattened(t *testing.T) {
	r := newTestResponder(t)
	msgs, err := r.Respond(mqtt.Command{Mode: mqtt.ModeRead, Addr: "0x680", Data: mqtt.DIDs(256)})
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	assert.Equal(t, Message{Topic: "open3e/680_0256/BusAddress", Payload: "1"}, msgs[0])
	assert.Equal(t, Message{Topic: "open3e/680_0256/BusType/ID", Payload: "2"}, msgs[1])
	assert.Equal(t, Message{Topic: "open3e/680_0256/VIN", Payload: "1234567801234567"}, msgs[9])
}

func TestRespondReadRaw(t *testing.T) {
	r := newTestResponder(t)
	msgs, err := r.Respond(mqtt.Command{Mode: mqtt.ModeReadRaw, Addr: "0x680", Data: mqtt.DIDs(256)})
	require.NoError(t, err)
	assert.Equal(t, []Message{{Topic: "open3e/680_0256", Payload: raw256}}, msgs)

	_, err = r.Respond(mqtt.Command{Mode: mqtt.ModeReadRaw, Addr: "0x680", Data: mqtt.DIDs(505)})
	assert.ErrorContains(t, err, "no raw payload")
}

func TestRespondUnknownDIDKeepsKnownOnes(t *testing.T) {
	r := newTestResponder(t)
	msgs, err := r.Respond(mqtt.Command{Mode: mqtt.ModeReadJSON, Addr: "0x6a1", Data: mqtt.DIDs(999, 268)})
	assert.ErrorContains(t, err, "0x6a1.999: unknown did")
	assert.Equal(t, []Message{{Topic: "open3e/6A1_0268", Payload: "1.2.3"}}, msgs)
}

func TestRespondUnknownMode(t *testing.T) {
	r := newTestResponder(t)
	_, err := r.Respond(mqtt.Command{Mode: "write", Addr: "0x680", Data: mqtt.DIDs(505)})
	assert.ErrorContains(t, err, `unknown mode "write"`)
}
