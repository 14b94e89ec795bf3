// Package influxdb pushes bridge telemetry to InfluxDB v2.
//
// The health reporter periodically writes every bridge counter (deltas
// received and published, commands by action, lease count) as a point in
// the bridge_metrics measurement, tagged with the system id.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteBridgeMetric("230099999", "deltas_published", 1523)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write failures are
// reported through SetOnError.
package influxdb
