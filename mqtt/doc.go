// Package mqtt correlates the messages the tool's MQTT bridge publishes with
// the DIDs a test asked for. A Client subscribes to DID topics derived from the
// bridge's topic format, stores every received payload by topic, publishes
// read commands on the bridge command topic and tracks the bridge liveness
// topic. Clients are owned by a single test and discarded with Close.
package mqtt
