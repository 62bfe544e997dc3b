// Package open3e drives the open3e command line client: one-shot reads and
// writes, and the MQTT bridge mode run for the duration of a test scope.
package open3e

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kilianp07/open3e-harness/addressing"
	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/mqtt"
	"github.com/kilianp07/open3e-harness/process"
)

// Tool runs the client through a process.Supervisor.
type Tool struct {
	sup *process.Supervisor
}

// New validates cfg and builds the supervisor of the tool.
func New(cfg Config, log logger.Logger) (*Tool, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pcfg := process.DefaultConfig("open3e", cfg.Prefix())
	pcfg.Env = cfg.Env
	pcfg.WorkDir = cfg.WorkDir
	pcfg.RunTimeout = cfg.RunTimeout()
	pcfg.GraceTimeout = cfg.GraceTimeout()
	pcfg.Logger = log
	sup, err := process.NewSupervisor(pcfg)
	if err != nil {
		return nil, err
	}
	return &Tool{sup: sup}, nil
}

// Supervisor exposes the underlying supervisor.
func (t *Tool) Supervisor() *process.Supervisor { return t.sup }

// Read reads dids of ecu, decoded as JSON by the tool.
func (t *Tool) Read(ctx context.Context, ecu string, dids []int, extra ...string) (process.Result, error) {
	return t.ReadWithDIDString(ctx, addressing.CLIArgument(ecu, dids...), extra...)
}

// ReadRaw reads dids of ecu as hex payloads.
func (t *Tool) ReadRaw(ctx context.Context, ecu string, dids ...int) (process.Result, error) {
	return t.Read(ctx, ecu, dids, "--raw")
}

// ReadWithDIDString reads a pre-composed request such as "0x680.256.BusType".
func (t *Tool) ReadWithDIDString(ctx context.Context, did string, extra ...string) (process.Result, error) {
	args := append([]string{"-r", addressing.QualifiedCLIArgument(did)}, extra...)
	return t.sup.Run(ctx, args...)
}

// Write writes a JSON encoded value to did of ecu.
func (t *Tool) Write(ctx context.Context, ecu string, did int, value string) (process.Result, error) {
	return t.WriteWithDIDString(ctx, addressing.CLIArgument(ecu, did), value, "-j")
}

// WriteRaw writes a hex payload to did of ecu.
func (t *Tool) WriteRaw(ctx context.Context, ecu string, did int, value string) (process.Result, error) {
	return t.WriteWithDIDString(ctx, addressing.CLIArgument(ecu, did), value, "--raw")
}

// WriteWithDIDString writes value to a pre-composed request string. Without
// extra arguments the value is passed as JSON (-j).
func (t *Tool) WriteWithDIDString(ctx context.Context, did, value string, extra ...string) (process.Result, error) {
	if len(extra) == 0 {
		extra = []string{"-j"}
	}
	args := append([]string{"-w", addressing.QualifiedCLIArgument(did) + "=" + value}, extra...)
	return t.sup.Run(ctx, args...)
}

// BridgeArgs returns the arguments that put the tool in MQTT bridge mode.
func BridgeArgs(m mqtt.Config) []string {
	m.SetDefaults()
	return []string{
		"-l", m.CommandTopic(),
		"-m", m.BridgeAddress(),
		"-mfstr", m.TopicFormat,
	}
}

// StartBridge launches the bridge detached. The caller must Stop the handle.
func (t *Tool) StartBridge(ctx context.Context, m mqtt.Config) (*process.Handle, error) {
	return t.sup.Start(ctx, BridgeArgs(m)...)
}

// Listen runs fn while the bridge is running and stops the bridge afterwards.
// A bridge that fails, or does not stop in time, makes Listen fail even when
// fn succeeded.
func (t *Tool) Listen(ctx context.Context, m mqtt.Config, fn func(*process.Handle) error) error {
	return t.sup.Scope(ctx, BridgeArgs(m), fn)
}

// ReadLine is one "<did> <value>" line of a multi-DID read.
type ReadLine struct {
	DID   int
	Value string
}

// ParseReadLines splits multi-DID read output, keeping the output order.
func ParseReadLines(stdout string) ([]ReadLine, error) {
	var out []ReadLine
	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		head, value, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("read line %q: want \"<did> <value>\"", line)
		}
		did, err := strconv.Atoi(head)
		if err != nil {
			return nil, fmt.Errorf("read line %q: invalid did %q", line, head)
		}
		out = append(out, ReadLine{DID: did, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
