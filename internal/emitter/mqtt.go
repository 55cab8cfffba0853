// Package emitter publishes scene summaries and health beats to an MQTT
// broker for companion apps and remote diagnostics. The device is fully
// functional offline; the emitter is an optional module that only exists
// when a broker is configured.
package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/scenebus"
	"github.com/wayline-dev/wayline-wearable/internal/types"
)

const healthInterval = 30 * time.Second

// Emitter is the MQTT publication module. It subscribes to the scene bus
// with a small buffered channel: a slow or absent broker drops scenes, it
// never backpressures perception.
type Emitter struct {
	bus *scenebus.Bus
	cfg config.MQTTConfig

	instanceID string
	client     mqtt.Client
	scenes     chan *types.Scene

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64

	stop chan struct{}
	done chan struct{}
}

// New builds an emitter fed by bus.
func New(bus *scenebus.Bus) *Emitter {
	return &Emitter{bus: bus}
}

func (e *Emitter) Name() string { return "emitter" }

// Initialize connects to the broker. With no broker configured the module
// stays inert and every later phase is a no-op.
func (e *Emitter) Initialize(cfg *config.Config) error {
	e.cfg = cfg.MQTT
	e.instanceID = cfg.InstanceID
	if e.cfg.Broker == "" {
		slog.Info("emitter: no broker configured, publication disabled")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.instanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("emitter: mqtt connected", "broker", e.cfg.Broker, "client_id", e.instanceID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("emitter: mqtt connection lost, auto-reconnecting", "error", err)
	}

	e.client = mqtt.NewClient(opts)
	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout to %s", e.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (e *Emitter) Start() error {
	if e.client == nil {
		return nil
	}

	e.scenes = make(chan *types.Scene, 8)
	if err := e.bus.Subscribe("emitter", e.scenes); err != nil {
		return fmt.Errorf("subscribe scene bus: %w", err)
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run()
	return nil
}

// Stop halts the worker and disconnects. The broker connection opened by
// Initialize is torn down even when Start never ran.
func (e *Emitter) Stop() {
	if e.client == nil {
		return
	}
	if e.stop != nil {
		_ = e.bus.Unsubscribe("emitter")
		close(e.stop)
		<-e.done
		e.stop = nil
	}

	e.client.Disconnect(250)
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
	slog.Info("emitter: mqtt disconnected")
}

func (e *Emitter) run() {
	defer close(e.done)
	health := time.NewTicker(healthInterval)
	defer health.Stop()

	e.publishHealth()
	for {
		select {
		case <-e.stop:
			return
		case scene := <-e.scenes:
			if err := e.publishScene(scene); err != nil {
				slog.Debug("emitter: scene publish failed", "trace_id", scene.TraceID, "error", err)
			}
		case <-health.C:
			e.publishHealth()
		}
	}
}

func (e *Emitter) publishScene(scene *types.Scene) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(scene)
	if err != nil {
		e.countError()
		return fmt.Errorf("marshal scene: %w", err)
	}

	token := e.client.Publish(e.cfg.SceneTopic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	return nil
}

// healthBeat is the periodic liveness payload.
type healthBeat struct {
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
	Published  uint64    `json:"published"`
	Errors     uint64    `json:"errors"`
	BusDrop    float64   `json:"bus_drop_rate"`
}

func (e *Emitter) publishHealth() {
	if !e.isConnected() {
		return
	}

	e.mu.RLock()
	beat := healthBeat{
		InstanceID: e.instanceID,
		Timestamp:  time.Now().UTC(),
		Published:  e.published,
		Errors:     e.errors,
		BusDrop:    e.bus.Stats().DropRate(),
	}
	e.mu.RUnlock()

	payload, err := json.Marshal(beat)
	if err != nil {
		return
	}
	token := e.client.Publish(e.cfg.HealthTopic, 0, false, payload)
	token.WaitTimeout(2 * time.Second)
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
