package recording

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-livemusic/core/recording"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	fragmentsEncoded, _ = meter.Int64Counter("livemusic.recording.fragments",
		metric.WithDescription("Recorded output fragments"))
)
