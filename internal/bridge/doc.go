// Package bridge exposes a signal chain over MQTT.
//
// The bridge subscribes to the chain's command topic, applies each command
// through a Controller and answers on the ack topic. It also registers as an
// observer of the controller so readbacks and overload advisories reach the
// broker:
//
//	signalchain/{chain}/command    <- CommandMessage
//	signalchain/{chain}/ack        -> AckMessage
//	signalchain/{chain}/state      -> StateMessage (retained)
//	signalchain/{chain}/advisory   -> AdvisoryMessage
//	signalchain/bridge/{id}/health -> HealthMessage (retained, LWT offline)
//
// Commands are handled on the MQTT client's callback goroutine. The
// controller serialises access to the instruments, so a command arriving
// during a poll simply waits for it.
package bridge
