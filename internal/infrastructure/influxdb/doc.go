// Package influxdb mirrors irrigation telemetry into InfluxDB.
//
// SQLite remains the system of record. InfluxDB receives a copy of every
// committed reading (soil_moisture), command (pump_command) and status
// change (pump_state) for long-range graphs and retention policies.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	service.AddNotifier(client)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Async write failures are delivered to the SetOnError
// callback; connection and health check errors are returned directly.
package influxdb
