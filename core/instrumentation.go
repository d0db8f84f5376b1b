package livemusic

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-livemusic/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	chunksReceived, _ = meter.Int64Counter("livemusic.chunks.received",
		metric.WithDescription("Audio chunks delivered by the generation backend"))
	chunksScheduled, _ = meter.Int64Counter("livemusic.chunks.scheduled",
		metric.WithDescription("Audio chunks scheduled on the output clock"))
	chunksDropped, _ = meter.Int64Counter("livemusic.chunks.dropped",
		metric.WithDescription("Audio chunks dropped because too much audio was already scheduled"))
	chunksDiscarded, _ = meter.Int64Counter("livemusic.chunks.discarded",
		metric.WithDescription("Audio chunks that arrived for a session that was already stopped"))
	decodeFailures, _ = meter.Int64Counter("livemusic.chunks.decode_failures",
		metric.WithDescription("Audio chunks that could not be decoded"))
	underruns, _ = meter.Int64Counter("livemusic.playback.underruns",
		metric.WithDescription("Times playback ran out of scheduled audio"))
)
