// Package influxdb writes signal chain telemetry to InfluxDB 2.x.
//
// Each poll of a chain becomes one signal_chain point tagged with chain_id;
// overload advisories go to signal_chain_advisory. Writes are batched by the
// official client according to batch_size and flush_interval.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteChainSample("chain-1", influxdb.ChainSample{X: 1e-3, FrequencyHz: 1e3})
package influxdb
