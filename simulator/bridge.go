package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/open3e-harness/addressing"
	"github.com/kilianp07/open3e-harness/dataset"
	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/mqtt"
)

// Config holds parameters for the simulated bridge.
type Config struct {
	MQTT     mqtt.Config
	Raw      map[string]map[int]string
	Strategy Strategy
	Logger   logger.Logger
}

// Bridge connects to MQTT, announces itself online and answers commands.
type Bridge struct {
	cfg       Config
	responder *Responder
	log       logger.Logger
	client    paho.Client
}

// NewBridge creates a bridge answering from ds.
func NewBridge(cfg Config, ds dataset.Dataset) (*Bridge, error) {
	cfg.MQTT.SetDefaults()
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	format, err := addressing.ParseTopicFormat(cfg.MQTT.TopicFormat)
	if err != nil {
		return nil, err
	}
	if cfg.Strategy == nil {
		cfg.Strategy = AutoRespond{}
	}
	return &Bridge{
		cfg:       cfg,
		responder: NewResponder(cfg.MQTT.BaseTopic, format, ds, cfg.Raw),
		log:       logger.OrNop(cfg.Logger),
	}, nil
}

// Run connects to the broker and answers commands until ctx is done. The
// liveness topic is set to "offline" on the way out, and by the broker when
// the connection drops.
func (b *Bridge) Run(ctx context.Context) error {
	m := b.cfg.MQTT
	opts := paho.NewClientOptions().
		AddBroker(m.BrokerURL()).
		SetClientID("open3e-sim-"+m.BaseTopic).
		SetWill(m.LivenessTopicPath(), "offline", m.QoS, true)
	opts.AutoReconnect = true
	if m.Username != "" {
		opts.SetUsername(m.Username)
		opts.SetPassword(m.Password)
	}
	cli := paho.NewClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(m.Timeout()) {
		return fmt.Errorf("%w: %s: timeout after %v", mqtt.ErrConnectionFailed, m.BrokerURL(), m.Timeout())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", mqtt.ErrConnectionFailed, m.BrokerURL(), err)
	}
	b.client = cli

	if token := cli.Subscribe(m.CommandTopic(), m.QoS, b.onCommand(ctx)); token.Wait() && token.Error() != nil {
		cli.Disconnect(m.DisconnectQuiesce)
		return token.Error()
	}
	b.publish(m.LivenessTopicPath(), m.OnlinePayload, true)
	b.log.Infof("simulated bridge online on %s", m.CommandTopic())

	<-ctx.Done()
	b.publish(m.LivenessTopicPath(), "offline", true)
	cli.Disconnect(m.DisconnectQuiesce)
	return nil
}

func (b *Bridge) onCommand(ctx context.Context) func(paho.Client, paho.Message) {
	return func(_ paho.Client, msg paho.Message) {
		var cmd mqtt.Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			b.log.Errorf("decode command %q: %v", msg.Payload(), err)
			return
		}
		msgs, err := b.responder.Respond(cmd)
		if err != nil {
			b.log.Warnf("command %s %s: %v", cmd.Mode, cmd.Addr, err)
		}
		go b.cfg.Strategy.Deliver(ctx, func() {
			for _, m := range msgs {
				b.publish(m.Topic, m.Payload, false)
			}
		})
	}
}

func (b *Bridge) publish(topic, payload string, retained bool) {
	token := b.client.Publish(topic, b.cfg.MQTT.QoS, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		b.log.Errorf("publish timeout on %s", topic)
		return
	}
	if err := token.Error(); err != nil {
		b.log.Errorf("publish on %s: %v", topic, err)
	}
}
