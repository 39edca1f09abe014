package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/nerrad567/signalchain-core/internal/chain"
	"github.com/nerrad567/signalchain-core/internal/control"
	"github.com/nerrad567/signalchain-core/internal/drivers/mfli"
	"github.com/nerrad567/signalchain-core/internal/nodes"
	"github.com/nerrad567/signalchain-core/internal/simulate"
)

const (
	testChainID  = "bench-1"
	testBridgeID = "test-bridge"

	commandTopic  = "signalchain/bench-1/command"
	ackTopic      = "signalchain/bench-1/ack"
	stateTopic    = "signalchain/bench-1/state"
	advisoryTopic = "signalchain/bench-1/advisory"
	healthTopic   = "signalchain/bridge/test-bridge/health"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	subs      []string
	unsubs    []string
	connected bool
	handlers  map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubs = append(m.unsubs, topic)
	delete(m.handlers, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Disconnect(uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

func (m *MockMQTTClient) PublishedOn(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type testEnv struct {
	bridge *Bridge
	mqtt   *MockMQTTClient
	svc    *control.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bench := simulate.New(simulate.Config{
		Device: "dev1234",
		Model: simulate.Model{
			TransconductanceAPerV: 1e-3,
			SampleResistanceOhm:   10_000,
			PreampGainVPerV:       100,
		},
	})
	drv, err := mfli.New(bench, mfli.Config{Device: "dev1234"})
	if err != nil {
		t.Fatalf("mfli.New() error = %v", err)
	}
	src, _ := nodes.NewMFLISource(drv)
	li, _ := nodes.NewMFLILockIn(drv)
	conv := nodes.NewManualConverter()
	preamp := nodes.NewManualPreamp()

	svc, err := control.New(control.Options{
		ChainID:   testChainID,
		Nodes:     chain.Nodes{Source: src, Converter: conv, Amplifier: preamp, LockIn: li},
		Converter: conv,
		Preamp:    preamp,
	})
	if err != nil {
		t.Fatalf("control.New() error = %v", err)
	}

	client := NewMockMQTTClient()
	b, err := New(Options{BridgeID: testBridgeID, MQTTClient: client, Controller: svc, QoS: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	svc.AddObserver(b)

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})
	return &testEnv{bridge: b, mqtt: client, svc: svc}
}

// send publishes a command and returns the ack it produced.
func (e *testEnv) send(t *testing.T, command string, params string) AckMessage {
	t.Helper()

	id := fmt.Sprintf("cmd-%s-%d", command, len(e.mqtt.PublishedOn(ackTopic)))
	payload := fmt.Sprintf(`{"id":%q,"command":%q,"source":"test"}`, id, command)
	if params != "" {
		payload = fmt.Sprintf(`{"id":%q,"command":%q,"parameters":%s}`, id, command, params)
	}
	e.mqtt.SimulateMessage(commandTopic, []byte(payload))

	acks := e.mqtt.PublishedOn(ackTopic)
	if len(acks) == 0 {
		t.Fatalf("%s: no ack published", command)
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[len(acks)-1].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.CommandID != id {
		t.Fatalf("ack command_id = %q, want %q", ack.CommandID, id)
	}
	return ack
}

func TestNew_Validation(t *testing.T) {
	client := NewMockMQTTClient()
	tests := []struct {
		name string
		opts Options
	}{
		{"no mqtt", Options{BridgeID: "b"}},
		{"no controller", Options{BridgeID: "b", MQTTClient: client}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestStart_SubscribesAndReportsHealth(t *testing.T) {
	env := newTestEnv(t)

	if len(env.mqtt.subs) != 1 || env.mqtt.subs[0] != commandTopic {
		t.Errorf("subscriptions = %v, want [%s]", env.mqtt.subs, commandTopic)
	}

	health := env.mqtt.PublishedOn(healthTopic)
	if len(health) == 0 {
		t.Fatal("no health message published")
	}
	var msg HealthMessage
	if err := json.Unmarshal(health[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if msg.Status != HealthStarting || msg.Bridge != testBridgeID || msg.ChainID != testChainID {
		t.Errorf("first health = %+v, want starting for %s", msg, testBridgeID)
	}
	if !health[0].Retained {
		t.Error("health message should be retained")
	}
}

func TestCommand_SetCurrent(t *testing.T) {
	env := newTestEnv(t)

	ack := env.send(t, CmdSetCurrent, `{"amps": 2e-6}`)
	if ack.Status != AckAccepted {
		t.Fatalf("ack = %+v, want accepted", ack)
	}
	if ack.ChainID != testChainID {
		t.Errorf("ack chain_id = %q, want %q", ack.ChainID, testChainID)
	}

	got, err := env.svc.CommandedCurrent()
	if err != nil {
		t.Fatalf("CommandedCurrent() error = %v", err)
	}
	if math.Abs(got-2e-6) > 1e-15 {
		t.Errorf("CommandedCurrent() = %v, want 2e-6", got)
	}
}

func TestCommand_Failures(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		command  string
		params   string
		wantCode string
	}{
		{"unknown command", "explode", "", ErrCodeInvalidCommand},
		{"missing amps", CmdSetCurrent, `{}`, ErrCodeInvalidParameters},
		{"wrong type", CmdSetCurrent, `{"amps": "lots"}`, ErrCodeInvalidParameters},
		{"non-numeric hz", CmdSetFrequency, `{"hz": true}`, ErrCodeInvalidParameters},
		{"negative frequency", CmdSetFrequency, `{"hz": -5}`, ErrCodeInvalidParameters},
		{"sensitivity off ladder", CmdSetSensitivity, `{"volts": 0.2}`, ErrCodeInvalidParameters},
		{"missing enabled", CmdSetOutput, `{}`, ErrCodeInvalidParameters},
		{"bad margin", CmdSetAdvisory, `{"margin": 0.5}`, ErrCodeInvalidParameters},
		{"bad coupling", CmdSetPreamp, `{"coupling": "XY"}`, ErrCodeInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := env.send(t, tt.command, tt.params)
			if ack.Status != AckFailed {
				t.Fatalf("ack status = %q, want failed", ack.Status)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack error = %+v, want code %s", ack.Error, tt.wantCode)
			}
		})
	}

	if m := env.bridge.Metrics(); m.CommandsFailed != uint64(len(tests)) {
		t.Errorf("CommandsFailed = %d, want %d", m.CommandsFailed, len(tests))
	}
}

func TestCommand_MalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	env.mqtt.SimulateMessage(commandTopic, []byte(`{not json`))

	acks := env.mqtt.PublishedOn(ackTopic)
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Status != AckFailed || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack = %+v, want failed INVALID_COMMAND", ack)
	}
	if ack.CommandID == "" {
		t.Error("ack for an unparseable command should still carry an id")
	}
}

func TestCommand_ZeroTransconductance(t *testing.T) {
	env := newTestEnv(t)

	if ack := env.send(t, CmdSetConverter, `{"gm_a_per_v": 0}`); ack.Status != AckAccepted {
		t.Fatalf("set_converter ack = %+v", ack)
	}
	ack := env.send(t, CmdSetCurrent, `{"amps": 1e-6}`)
	if ack.Error == nil || ack.Error.Code != ErrCodeZeroTransconductance {
		t.Errorf("ack error = %+v, want ZERO_TRANSCONDUCTANCE", ack.Error)
	}
}

func TestCommand_SetAdvisoryMerges(t *testing.T) {
	env := newTestEnv(t)

	if ack := env.send(t, CmdSetAdvisory, `{"r_est_ohm": 10000}`); ack.Status != AckAccepted {
		t.Fatalf("ack = %+v", ack)
	}
	if ack := env.send(t, CmdSetAdvisory, `{"margin": 2}`); ack.Status != AckAccepted {
		t.Fatalf("ack = %+v", ack)
	}
	cfg := env.svc.AdvisoryConfig()
	if cfg.REst == nil || *cfg.REst != 10000 || cfg.Margin != 2 {
		t.Errorf("AdvisoryConfig() = %+v, want r_est 10000 margin 2", cfg)
	}

	if ack := env.send(t, CmdSetAdvisory, `{"r_est_ohm": null}`); ack.Status != AckAccepted {
		t.Fatalf("ack = %+v", ack)
	}
	if cfg := env.svc.AdvisoryConfig(); cfg.REst != nil {
		t.Errorf("REst = %v, want cleared", *cfg.REst)
	}
}

func TestCommand_LockInSettings(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		command string
		params  string
	}{
		{CmdSetFrequency, `{"hz": 137}`},
		{CmdSetTimeConstant, `{"seconds": 0.1}`},
		{CmdSetSensitivity, `{"volts": 0.01}`},
		{CmdSetInputRange, `{"volts": 10}`},
		{CmdSetExcitation, `{"volts": 0.01}`},
		{CmdSetOutput, `{"enabled": true}`},
		{CmdSetPreamp, `{"gain_v_per_v": 1000}`},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if ack := env.send(t, tt.command, tt.params); ack.Status != AckAccepted {
				t.Errorf("ack = %+v, want accepted", ack)
			}
		})
	}

	hz, err := env.svc.ReferenceFrequency()
	if err != nil {
		t.Fatalf("ReferenceFrequency() error = %v", err)
	}
	if hz != 137 {
		t.Errorf("ReferenceFrequency() = %v, want 137", hz)
	}
}

func TestCommand_ReadPublishesState(t *testing.T) {
	env := newTestEnv(t)

	ack := env.send(t, CmdRead, "")
	if ack.Status != AckAccepted {
		t.Fatalf("ack = %+v", ack)
	}

	states := env.mqtt.PublishedOn(stateTopic)
	if len(states) != 1 {
		t.Fatalf("state messages = %d, want 1", len(states))
	}
	if !states[0].Retained {
		t.Error("state should be retained")
	}
	var msg StateMessage
	if err := json.Unmarshal(states[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.ChainID != testChainID || msg.Readback.FrequencyHz != 1e3 {
		t.Errorf("state = %+v", msg)
	}
	if m := env.bridge.Metrics(); m.StatesPublished != 1 {
		t.Errorf("StatesPublished = %d, want 1 for a read command", m.StatesPublished)
	}
}

func TestAdvisoryIsPublished(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, CmdSetAdvisory, `{"r_est_ohm": 10000}`)
	ack := env.send(t, CmdSetCurrent, `{"amps": 1e-4}`)
	if ack.Status != AckAccepted {
		t.Fatalf("ack = %+v, want accepted: advisories never block", ack)
	}

	advs := env.mqtt.PublishedOn(advisoryTopic)
	if len(advs) != 1 {
		t.Fatalf("advisory messages = %d, want 1", len(advs))
	}
	var msg AdvisoryMessage
	if err := json.Unmarshal(advs[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal advisory: %v", err)
	}
	if msg.Advisory.TargetA != 1e-4 || msg.Message == "" {
		t.Errorf("advisory = %+v", msg)
	}
	if m := env.bridge.Metrics(); m.AdvisoriesPublished != 1 {
		t.Errorf("AdvisoriesPublished = %d, want 1", m.AdvisoriesPublished)
	}
}

func TestStop_IgnoresLateCommands(t *testing.T) {
	env := newTestEnv(t)
	env.bridge.Stop()

	env.mqtt.mu.Lock()
	unsubs := append([]string(nil), env.mqtt.unsubs...)
	env.mqtt.mu.Unlock()
	if len(unsubs) != 1 || unsubs[0] != commandTopic {
		t.Errorf("unsubscribed = %v, want [%s]", unsubs, commandTopic)
	}

	env.mqtt.SimulateMessage(commandTopic, []byte(`{"id":"late","command":"read"}`))
	if acks := env.mqtt.PublishedOn(ackTopic); len(acks) != 0 {
		t.Errorf("acks after Stop = %d, want 0", len(acks))
	}

	health := env.mqtt.PublishedOn(healthTopic)
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("last health status = %q, want stopping", last.Status)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", ErrInvalidCommand), ErrCodeInvalidCommand},
		{fmt.Errorf("x: %w", chain.ErrInvalidSetpoint), ErrCodeInvalidParameters},
		{fmt.Errorf("x: %w", mfli.ErrOutOfRange), ErrCodeInvalidParameters},
		{chain.ErrGuardUnavailable, ErrCodeGuardUnavailable},
		{control.ErrNotAdjustable, ErrCodeNotConfigured},
		{context.DeadlineExceeded, ErrCodeTimeout},
		{fmt.Errorf("source: %w", mfli.ErrNodeUnavailable), ErrCodeDeviceError},
		{errors.New("boom"), ErrCodeDeviceError},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
