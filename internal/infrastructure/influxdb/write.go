package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// bridgeMeasurement is the InfluxDB measurement holding bridge counters.
const bridgeMeasurement = "bridge_metrics"

// WriteBridgeMetric writes one bridge counter or gauge.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteBridgeMetric("230099999", "deltas_published", 1523)
//	client.WriteBridgeMetric("230099999", "leases", 4)
func (c *Client) WriteBridgeMetric(systemID, measurement string, value float64) {
	c.WriteBridgeMetricAt(systemID, measurement, value, time.Now())
}

// WriteBridgeMetricAt is WriteBridgeMetric with an explicit timestamp.
func (c *Client) WriteBridgeMetricAt(systemID, measurement string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		bridgeMeasurement,
		map[string]string{
			"system_id":   systemID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}
