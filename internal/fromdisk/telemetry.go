package fromdisk

import (
	"go.opentelemetry.io/otel/metric"

	"prairielearn/backend/internal/telemetry"
)

func telemetryTable(table rankedTable) metric.AddOption {
	return metric.WithAttributes(telemetry.Table(table.name))
}
