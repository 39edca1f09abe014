package mqtt

import "fmt"

// TopicPrefix is the root of every signalchain topic.
const TopicPrefix = "signalchain"

// Topics builds signalchain topic names.
//
//	topics := mqtt.Topics{}
//	topics.ChainCommand("chain-1") // signalchain/chain-1/command
type Topics struct{}

// ChainCommand returns the topic a chain accepts commands on.
//
// Example: signalchain/chain-1/command
func (Topics) ChainCommand(chainID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefix, chainID)
}

// ChainAck returns the topic command acknowledgements are published on.
//
// Example: signalchain/chain-1/ack
func (Topics) ChainAck(chainID string) string {
	return fmt.Sprintf("%s/%s/ack", TopicPrefix, chainID)
}

// ChainState returns the retained readback topic of a chain.
//
// Example: signalchain/chain-1/state
func (Topics) ChainState(chainID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, chainID)
}

// ChainAdvisory returns the topic overload advisories are published on.
//
// Example: signalchain/chain-1/advisory
func (Topics) ChainAdvisory(chainID string) string {
	return fmt.Sprintf("%s/%s/advisory", TopicPrefix, chainID)
}

// BridgeHealth returns the retained health topic of a bridge. The broker
// publishes the client's last will here.
//
// Example: signalchain/bridge/signalchain-core/health
func (Topics) BridgeHealth(bridgeID string) string {
	return fmt.Sprintf("%s/bridge/%s/health", TopicPrefix, bridgeID)
}
