package store

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"traderbot/internal/domain"
)

var _ EquityWriter = (*InfluxEquityWriter)(nil)

// InfluxEquityWriter exports equity curves to InfluxDB as the "equity"
// measurement tagged with run_id and symbol.
type InfluxEquityWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxEquityWriter creates a writer for the given server, organization
// and bucket. No connection is made until the first write.
func NewInfluxEquityWriter(url, token, org, bucket string) *InfluxEquityWriter {
	client := influxdb2.NewClient(url, token)
	return &InfluxEquityWriter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// WriteEquityCurve writes one point per bar in a single batch.
func (w *InfluxEquityWriter) WriteEquityCurve(ctx context.Context, runID, symbol string, curve domain.EquityCurve) error {
	if len(curve) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(curve))
	for _, p := range curve {
		points = append(points, influxdb2.NewPoint(
			"equity",
			map[string]string{
				"run_id": runID,
				"symbol": symbol,
			},
			map[string]interface{}{
				"cash":           p.Cash,
				"qty":            p.Qty,
				"position_value": p.PositionValue,
				"equity":         p.Equity,
			},
			p.Timestamp,
		))
	}
	if err := w.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("writing equity curve of run %s to influxdb: %w", runID, err)
	}
	return nil
}

// Close releases the client.
func (w *InfluxEquityWriter) Close() {
	w.client.Close()
}
