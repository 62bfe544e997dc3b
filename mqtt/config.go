package mqtt

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/open3e-harness/addressing"
)

// Config defines the broker connection and the topic layout of the bridge.
type Config struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	BaseTopic   string `json:"base_topic"`
	TopicFormat string `json:"topic_format"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	QoS         byte   `json:"qos"`

	// LivenessTopic is relative to BaseTopic.
	LivenessTopic     string `json:"liveness_topic"`
	OnlinePayload     string `json:"online_payload"`
	TimeoutMS         int    `json:"timeout_ms"`
	DisconnectQuiesce uint   `json:"disconnect_quiesce_ms"`
}

// SetDefaults applies the bridge defaults.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.BaseTopic == "" {
		c.BaseTopic = "open3e"
	}
	if c.TopicFormat == "" {
		c.TopicFormat = addressing.DefaultTopicFormat
	}
	if c.LivenessTopic == "" {
		c.LivenessTopic = "LWT"
	}
	if c.OnlinePayload == "" {
		c.OnlinePayload = "online"
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 5000
	}
	if c.DisconnectQuiesce == 0 {
		c.DisconnectQuiesce = 250
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("mqtt host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("mqtt port %d out of range", c.Port)
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos %d: must be 0, 1 or 2", c.QoS)
	}
	if _, err := addressing.ParseTopicFormat(c.TopicFormat); err != nil {
		return err
	}
	return nil
}

// BrokerURL returns the paho broker URL.
func (c Config) BrokerURL() string {
	return "tcp://" + c.Host + ":" + strconv.Itoa(c.Port)
}

// BridgeAddress returns the "host:port:base" value of the tool's -m flag.
func (c Config) BridgeAddress() string {
	return c.Host + ":" + strconv.Itoa(c.Port) + ":" + c.BaseTopic
}

// CommandTopic is the topic the bridge listens on for commands.
func (c Config) CommandTopic() string {
	return addressing.JoinTopic(c.BaseTopic, "cmnd")
}

// LivenessTopicPath is the absolute liveness topic.
func (c Config) LivenessTopicPath() string {
	return addressing.JoinTopic(c.BaseTopic, c.LivenessTopic)
}

// Timeout bounds connect, subscribe and publish acknowledgments.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
