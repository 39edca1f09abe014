package bridge

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/signalchain-core/internal/chain"
)

// Command names accepted on the command topic.
const (
	CmdSetCurrent      = "set_current"
	CmdSetFrequency    = "set_frequency"
	CmdSetOutput       = "set_output"
	CmdSetExcitation   = "set_excitation"
	CmdSetTimeConstant = "set_time_constant"
	CmdSetSensitivity  = "set_sensitivity"
	CmdSetInputRange   = "set_input_range"
	CmdSetAdvisory     = "set_advisory"
	CmdSetConverter    = "set_converter"
	CmdSetPreamp       = "set_preamp"
	CmdRead            = "read"
)

// CommandMessage is a request to change or read the chain.
//
// Parameters depend on the command:
//
//	set_current        {"amps": 1e-6}
//	set_frequency      {"hz": 137}
//	set_output         {"enabled": true}
//	set_excitation     {"volts": 0.01}
//	set_time_constant  {"seconds": 0.1}
//	set_sensitivity    {"volts": 0.01}
//	set_input_range    {"volts": 1}
//	set_advisory       partial chain.AdvisoryConfig
//	set_converter      partial nodes.ConverterSettings
//	set_preamp         partial nodes.PreampSettings
//	read               none
//
// The partial forms are merged over the current settings, so
// {"margin": 2} leaves r_est_ohm alone and {"r_est_ohm": null} clears it.
type CommandMessage struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Command    string          `json:"command"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Source     string          `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// Error codes carried in failed acks.
const (
	ErrCodeInvalidCommand       = "INVALID_COMMAND"
	ErrCodeInvalidParameters    = "INVALID_PARAMETERS"
	ErrCodeZeroTransconductance = "ZERO_TRANSCONDUCTANCE"
	ErrCodeGuardUnavailable     = "GUARD_UNAVAILABLE"
	ErrCodeNotConfigured        = "NOT_CONFIGURED"
	ErrCodeDeviceError          = "DEVICE_ERROR"
	ErrCodeTimeout              = "TIMEOUT"
)

// AckMessage answers a CommandMessage on the ack topic.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	ChainID   string    `json:"chain_id"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`
	Result    any       `json:"result,omitempty"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SetCurrentResult is the ack result of set_current.
type SetCurrentResult struct {
	TargetA    float64          `json:"target_a"`
	Advisories []chain.Advisory `json:"advisories"`
}

// StateMessage carries a chain readback. Published retained.
type StateMessage struct {
	ChainID   string         `json:"chain_id"`
	Timestamp time.Time      `json:"timestamp"`
	Readback  chain.Readback `json:"readback"`
}

// AdvisoryMessage carries an overload advisory.
type AdvisoryMessage struct {
	ChainID   string         `json:"chain_id"`
	Timestamp time.Time      `json:"timestamp"`
	Advisory  chain.Advisory `json:"advisory"`
	Message   string         `json:"message"`
}

// HealthStatus is the operational state reported on the health topic.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on the bridge health topic. The
// broker replaces it with the LWT payload if the bridge drops off.
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	ChainID       string       `json:"chain_id"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Timestamp     time.Time    `json:"timestamp"`
}

func newAck(cmd CommandMessage, chainID string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		ChainID:   chainID,
		Command:   cmd.Command,
		Timestamp: time.Now().UTC(),
	}
}
