// Package util provides helper functions shared across integration tests.
//
// StartMosquitto launches a disposable Mosquitto broker in a Docker container
// for MQTT-based tests. It returns the broker address and a cleanup function.
//
// ToolConfig describes the open3e installation under test, taken from the
// OPEN3E_* environment variables.
package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	tcwait "github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/open3e-harness/mqtt"
	"github.com/kilianp07/open3e-harness/open3e"
	"github.com/kilianp07/open3e-harness/wait"
)

const (
	// Default timeouts for helper operations
	MosquittoReadyTimeout = 5 * time.Second

	pollInterval = 50 * time.Millisecond
)

// Broker is a running Mosquitto container.
type Broker struct {
	Host string
	Port int
}

// URL returns the paho broker URL.
func (b Broker) URL() string { return fmt.Sprintf("tcp://%s:%d", b.Host, b.Port) }

// MQTTConfig returns a client configuration pointing at the broker.
func (b Broker) MQTTConfig() mqtt.Config {
	cfg := mqtt.Config{Host: b.Host, Port: b.Port}
	cfg.SetDefaults()
	return cfg
}

// StartMosquitto launches a temporary Mosquitto broker inside a Docker
// container and returns it along with a cleanup function.
func StartMosquitto(ctx context.Context) (Broker, func(), error) {
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
log_type notice
connection_messages true
`

	dir, err := os.MkdirTemp("", "mosq")
	if err != nil {
		return Broker{}, nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   tcwait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}

	cleanup := func() {
		_ = cont.Terminate(context.Background())
		_ = os.RemoveAll(dir)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	b := Broker{Host: host, Port: port.Int()}

	if err := waitForMQTTReady(ctx, b.URL()); err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	return b, cleanup, nil
}

func waitForMQTTReady(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	return wait.For(ctx, MosquittoReadyTimeout, pollInterval, func() (bool, error) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() != nil {
			return false, nil
		}
		cli.Disconnect(100)
		return true, nil
	})
}

// RequireDocker skips t when docker is not installed.
func RequireDocker(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
}

// StartBroker starts Mosquitto for the duration of t, skipping t when no
// container can be started.
func StartBroker(t *testing.T) Broker {
	t.Helper()
	RequireDocker(t)
	b, cleanup, err := StartMosquitto(context.Background())
	if err != nil {
		t.Skipf("mosquitto not available: %v", err)
	}
	t.Cleanup(cleanup)
	return b
}

// ToolConfig returns the tool configuration from OPEN3E_CMD (the command
// line, split on spaces), OPEN3E_CAN and OPEN3E_DEVICES. t is skipped when
// OPEN3E_CMD is unset or its executable cannot be found.
func ToolConfig(t *testing.T) open3e.Config {
	t.Helper()
	command := strings.Fields(os.Getenv("OPEN3E_CMD"))
	if len(command) == 0 {
		t.Skip("OPEN3E_CMD not set")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		t.Skipf("%s not installed", command[0])
	}
	cfg := open3e.Config{
		Command:      command,
		CANInterface: os.Getenv("OPEN3E_CAN"),
		DeviceConfig: os.Getenv("OPEN3E_DEVICES"),
		WorkDir:      os.Getenv("OPEN3E_WORKDIR"),
	}
	cfg.SetDefaults()
	return cfg
}

// Tool builds the tool under test, see ToolConfig.
func Tool(t *testing.T) *open3e.Tool {
	t.Helper()
	tool, err := open3e.New(ToolConfig(t), nil)
	if err != nil {
		t.Fatalf("tool: %v", err)
	}
	return tool
}

// FixturePath returns the path of a file in test/test_data.
func FixturePath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "test_data", name)
}
