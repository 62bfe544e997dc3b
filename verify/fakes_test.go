package verify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/mqtt"
	"github.com/kilianp07/open3e-harness/process"
)

// fakeTool answers reads from a fixed table keyed by the -r argument.
type fakeTool struct {
	stdout    map[string]string
	stderr    map[string]string
	fail      map[string]error
	listenErr error
	requests  []string
}

func (f *fakeTool) Read(ctx context.Context, ecu string, dids []int, extra ...string) (process.Result, error) {
	parts := make([]string, len(dids))
	for i, d := range dids {
		parts[i] = fmt.Sprintf("%s.%d", ecu, d)
	}
	return f.ReadWithDIDString(ctx, strings.Join(parts, ","), extra...)
}

func (f *fakeTool) ReadWithDIDString(_ context.Context, did string, extra ...string) (process.Result, error) {
	key := strings.Join(append([]string{did}, extra...), " ")
	f.requests = append(f.requests, key)
	if err := f.fail[key]; err != nil {
		return process.Result{}, err
	}
	return process.Result{Stdout: f.stdout[key], Stderr: f.stderr[key]}, nil
}

func (f *fakeTool) Listen(_ context.Context, _ mqtt.Config, fn func(*process.Handle) error) error {
	if f.listenErr != nil {
		return f.listenErr
	}
	return fn(nil)
}

// fakeBus publishes the configured responses when a command arrives.
type fakeBus struct {
	mu        sync.Mutex
	online    bool
	responses map[string]map[string]string // "ecu/did" -> suffix -> payload
	messages  map[string][]string
	count     int
	commands  []string
	subs      []string
	closed    bool

	// readErr is returned by ReceivedMessages once a command was published.
	readErr error
}

func newFakeBus(online bool) *fakeBus {
	return &fakeBus{online: online, responses: map[string]map[string]string{}, messages: map[string][]string{}}
}

func (b *fakeBus) respond(ecu string, did int, suffix, payload string) {
	key := fmt.Sprintf("%s/%d", ecu, did)
	if b.responses[key] == nil {
		b.responses[key] = map[string]string{}
	}
	b.responses[key][suffix] = payload
}

func (b *fakeBus) dialer() Dialer {
	return func(mqtt.Config, logger.Logger) (Bus, error) { return b, nil }
}

func (b *fakeBus) IsBridgeOnline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *fakeBus) Subscribe(ecu string, did int, suffix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fmt.Sprintf("%s/%d%s", ecu, did, suffix))
	return nil
}

func (b *fakeBus) PublishCmd(mode mqtt.Mode, ecu string, dids ...mqtt.DID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range dids {
		key := fmt.Sprintf("%s/%d", ecu, d.Number)
		b.commands = append(b.commands, string(mode)+" "+key)
		for suffix, payload := range b.responses[key] {
			b.messages[key+suffix] = append(b.messages[key+suffix], payload)
			b.count++
		}
	}
	return nil
}

func (b *fakeBus) ReceivedMessagesCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *fakeBus) ReceivedMessages(ecu string, did int, suffix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil && len(b.commands) > 0 {
		return nil, b.readErr
	}
	return append([]string(nil), b.messages[fmt.Sprintf("%s/%d%s", ecu, did, suffix)]...), nil
}

func (b *fakeBus) ReceivedMessagePayload(ecu string, did int, suffix string) (string, error) {
	msgs, _ := b.ReceivedMessages(ecu, did, suffix)
	if len(msgs) == 0 {
		return "", mqtt.ErrNoMessageReceived
	}
	return msgs[len(msgs)-1], nil
}

func (b *fakeBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
