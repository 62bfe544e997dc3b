// Package simulator stands in for the open3e MQTT bridge. It answers bridge
// commands from a fixture file, so MQTT clients can be exercised against a
// real broker without a CAN bus.
package simulator

import (
	"fmt"

	"github.com/kilianp07/open3e-harness/addressing"
	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/mqtt"
)

// Message is one publish of the bridge.
type Message struct {
	Topic   string
	Payload string
}

// Responder computes the messages the bridge publishes for a command.
type Responder struct {
	base   string
	format addressing.TopicFormat
	data   dataset.Dataset
	// raw holds the hex payloads of read-raw, keyed by ECU then DID.
	raw map[string]map[int]string
}

// NewResponder answers commands from ds, publishing below base with format.
func NewResponder(base string, format addressing.TopicFormat, ds dataset.Dataset, raw map[string]map[int]string) *Responder {
	return &Responder{base: base, format: format, data: ds, raw: raw}
}

// Respond returns the messages for cmd. Unknown DIDs are reported as an
// error after the messages of the known ones.
func (r *Responder) Respond(cmd mqtt.Command) ([]Message, error) {
	var (
		out     []Message
		missing []string
	)
	for _, did := range cmd.Data {
		msgs, err := r.respondDID(cmd.Mode, cmd.Addr, did)
		if err != nil {
			missing = append(missing, err.Error())
			continue
		}
		out = append(out, msgs...)
	}
	if len(missing) > 0 {
		return out, fmt.Errorf("%s: %v", cmd.Mode, missing)
	}
	return out, nil
}

func (r *Responder) respondDID(mode mqtt.Mode, ecu string, did mqtt.DID) ([]Message, error) {
	addr := addressing.Address{ECU: ecu, DID: did.Number, SubPath: did.SubPath}
	if mode == mqtt.ModeReadRaw {
		hex, ok := r.raw[ecu][did.Number]
		if !ok {
			return nil, fmt.Errorf("%s: no raw payload", addr)
		}
		topic, err := r.topic(ecu, did.Number)
		if err != nil {
			return nil, err
		}
		return []Message{{Topic: topic, Payload: hex}}, nil
	}

	v, ok := r.data.Lookup(ecu, did.Number)
	if !ok {
		return nil, fmt.Errorf("%s: unknown did", addr)
	}
	v, ok = v.Field(did.SubPath...)
	if !ok {
		return nil, fmt.Errorf("%s: unknown field", addr)
	}

	switch mode {
	case mqtt.ModeReadJSON:
		topic, err := r.format.SubDIDTopic(ecu, did.Number, did.SubPath...)
		if err != nil {
			return nil, err
		}
		return []Message{{Topic: addressing.JoinTopic(r.base, topic), Payload: v.Canonical()}}, nil
	case mqtt.ModeRead:
		var out []Message
		for _, leaf := range v.Leaves() {
			path := append(append([]string(nil), did.SubPath...), leaf.Path...)
			topic, err := r.format.Topic(ecu, did.Number, path...)
			if err != nil {
				return nil, err
			}
			out = append(out, Message{Topic: addressing.JoinTopic(r.base, topic), Payload: leaf.Value})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func (r *Responder) topic(ecu string, did int) (string, error) {
	t, err := r.format.Topic(ecu, did)
	if err != nil {
		return "", err
	}
	return addressing.JoinTopic(r.base, t), nil
}
