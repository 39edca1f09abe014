// Package control owns a signal chain engine at runtime.
//
// The engine itself holds no locks. Service is the one place that calls it:
// every operation takes the service mutex, so the MQTT bridge, the HTTP API
// and the poll loop can share a chain without interleaving a setpoint's
// read-compute-write sequence with another writer.
//
// Around each engine call the service journals what was asked, forwards
// overload advisories to observers and telemetry, and, from Run, polls the
// chain at a fixed interval so readbacks flow to InfluxDB and MQTT.
package control
