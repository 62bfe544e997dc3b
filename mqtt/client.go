package mqtt

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/open3e-harness/addressing"
	"github.com/kilianp07/open3e-harness/logger"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Client subscribes to DID topics and stores what the bridge publishes on them.
// Payloads arrive on paho goroutines; every accessor is safe for concurrent use.
type Client struct {
	cli    pahoClient
	cfg    Config
	format addressing.TopicFormat
	log    logger.Logger

	mu            sync.Mutex
	messages      map[string][]string
	received      int
	online        bool
	subscriptions []string
}

// Connect applies defaults to cfg, connects to the broker and starts tracking
// the bridge liveness topic.
func Connect(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := addressing.ParseTopicFormat(cfg.TopicFormat)
	if err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "open3e-harness-" + uuid.NewString()
	}
	c := &Client{
		cfg:      cfg,
		format:   format,
		log:      logger.OrNop(log),
		messages: make(map[string][]string),
	}

	opts := NewClientOptions(cfg)
	opts.OnConnect = func(_ paho.Client) { c.handleConnect() }
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		c.log.Warnf("reconnecting to MQTT broker")
	}

	c.cli = newMQTTClient(opts)
	token := c.cli.Connect()
	if !token.WaitTimeout(cfg.Timeout()) {
		return nil, fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, cfg.BrokerURL(), cfg.Timeout())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.BrokerURL(), err)
	}
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(cfg.Timeout()).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// handleConnect runs on every (re)connect.
func (c *Client) handleConnect() {
	c.log.Infof("MQTT connected to %s", c.cfg.BrokerURL())
	liveness := c.cfg.LivenessTopicPath()
	if token := c.cli.Subscribe(liveness, c.cfg.QoS, c.onLiveness); token.WaitTimeout(c.cfg.Timeout()) && token.Error() != nil {
		c.log.Errorf("subscribe %s: %v", liveness, token.Error())
	}
	c.mu.Lock()
	subs := append([]string(nil), c.subscriptions...)
	c.mu.Unlock()
	for _, topic := range subs {
		if token := c.cli.Subscribe(topic, c.cfg.QoS, c.handlerFor(topic)); token.WaitTimeout(c.cfg.Timeout()) && token.Error() != nil {
			c.log.Errorf("restore subscription %s: %v", topic, token.Error())
		}
	}
}

func (c *Client) onLiveness(_ paho.Client, msg paho.Message) {
	online := string(msg.Payload()) == c.cfg.OnlinePayload
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
	c.log.Debugw("bridge liveness", map[string]any{"topic": msg.Topic(), "payload": string(msg.Payload())})
}

// handlerFor returns the message handler of filter. paho calls the handler of
// every matching filter, so a message is stored only by the first registered
// filter that matches its topic.
func (c *Client) handlerFor(filter string) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if msg.Topic() == c.cfg.LivenessTopicPath() {
			return
		}
		payload := string(msg.Payload())
		c.mu.Lock()
		if c.owner(msg.Topic()) != filter {
			c.mu.Unlock()
			return
		}
		c.messages[msg.Topic()] = append(c.messages[msg.Topic()], payload)
		c.received++
		c.mu.Unlock()
		c.log.Debugw("message received", map[string]any{"topic": msg.Topic(), "payload": payload})
	}
}

// owner returns the first subscription matching topic. c.mu must be held.
func (c *Client) owner(topic string) string {
	for _, f := range c.subscriptions {
		if filterMatches(f, topic) {
			return f
		}
	}
	return ""
}

// filterMatches applies MQTT wildcard rules: "+" matches one level, a
// trailing "#" matches the parent level and everything below it.
func filterMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) || (level != "+" && level != t[i]) {
			return false
		}
	}
	return len(f) == len(t)
}

// IsBridgeOnline reports whether the last liveness message announced the
// bridge as online.
func (c *Client) IsBridgeOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Topic returns the absolute topic of (ecu, did) followed by suffix, e.g.
// "open3e/680_0256" or, with suffix "/#", "open3e/680_0256/#".
func (c *Client) Topic(ecu string, did int, suffix string) (string, error) {
	t, err := c.format.Topic(ecu, did)
	if err != nil {
		return "", err
	}
	return addressing.JoinTopic(c.cfg.BaseTopic, t) + suffix, nil
}

// Subscribe registers interest in the topic of (ecu, did) plus suffix and
// waits for the broker to acknowledge it.
func (c *Client) Subscribe(ecu string, did int, suffix string) error {
	topic, err := c.Topic(ecu, did, suffix)
	if err != nil {
		return err
	}
	// Registered before the SUBACK so retained messages are not lost.
	c.mu.Lock()
	added := !slices.Contains(c.subscriptions, topic)
	if added {
		c.subscriptions = append(c.subscriptions, topic)
	}
	c.mu.Unlock()

	token := c.cli.Subscribe(topic, c.cfg.QoS, c.handlerFor(topic))
	err = nil
	if !token.WaitTimeout(c.cfg.Timeout()) {
		err = fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, c.cfg.Timeout())
	} else if terr := token.Error(); terr != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, terr)
	}
	if err != nil {
		if added {
			c.mu.Lock()
			if i := slices.Index(c.subscriptions, topic); i >= 0 {
				c.subscriptions = slices.Delete(c.subscriptions, i, i+1)
			}
			c.mu.Unlock()
		}
		return err
	}
	c.log.Debugf("subscribed to %s", topic)
	return nil
}

// PublishCmd asks the bridge to run mode against dids of ecu.
func (c *Client) PublishCmd(mode Mode, ecu string, dids ...DID) error {
	payload, err := json.Marshal(Command{Mode: mode, Addr: ecu, Data: dids})
	if err != nil {
		return fmt.Errorf("%w: encode command: %w", ErrPublishFailed, err)
	}
	topic := c.cfg.CommandTopic()
	token := c.cli.Publish(topic, c.cfg.QoS, false, payload)
	if !token.WaitTimeout(c.cfg.Timeout()) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, c.cfg.Timeout())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	c.log.Debugw("command published", map[string]any{"topic": topic, "payload": string(payload)})
	return nil
}

// ReceivedMessagesCount returns the number of messages received on all DID
// subscriptions. It never decreases while the client is open.
func (c *Client) ReceivedMessagesCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// ReceivedMessagePayload returns the most recent payload received on the
// topic of (ecu, did) plus suffix.
func (c *Client) ReceivedMessagePayload(ecu string, did int, suffix string) (string, error) {
	msgs, topic, err := c.lookup(ecu, did, suffix)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoMessageReceived, topic)
	}
	return msgs[len(msgs)-1], nil
}

// ReceivedMessages returns every payload received on the topic of (ecu, did)
// plus suffix, oldest first.
func (c *Client) ReceivedMessages(ecu string, did int, suffix string) ([]string, error) {
	msgs, _, err := c.lookup(ecu, did, suffix)
	return msgs, err
}

func (c *Client) lookup(ecu string, did int, suffix string) ([]string, string, error) {
	topic, err := c.Topic(ecu, did, suffix)
	if err != nil {
		return nil, "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages[topic]...), topic, nil
}

// ReceivedTopics lists the topics messages arrived on, sorted.
func (c *Client) ReceivedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for t := range c.messages {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close disconnects from the broker and drops every stored message.
func (c *Client) Close() {
	if c.cli.IsConnected() {
		c.cli.Disconnect(c.cfg.DisconnectQuiesce)
	}
	c.mu.Lock()
	c.messages = make(map[string][]string)
	c.subscriptions = nil
	c.online = false
	c.mu.Unlock()
}
