// Package mqtt wraps paho.mqtt.golang for the signalchain service.
//
// The client reconnects with backoff, restores its subscriptions after a
// reconnect and registers a retained last will on its bridge health topic,
// so subscribers see "offline" if the process dies without closing.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.ChainCommand("chain-1"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// Handlers run on paho's goroutines. A panicking or failing handler is
// logged through the Logger set with SetLogger and never takes the client
// down.
package mqtt
