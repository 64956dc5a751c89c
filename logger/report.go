package logger

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	errorsStream    int64
	errorsGateway   int64
	warnsStream     int64
	warnsGateway    int64
	streamReads     int64
	eventsPublished int64
	droppedStale    int64
	droppedBad      int64
	sendFailures    int64

	// subscriberCount is set by the hub so the report can include
	// the size of the live fan-out set.
	subscriberCount func() int
)

func recordWarn(component string) {
	if strings.Contains(component, "stream") {
		atomic.AddInt64(&warnsStream, 1)
	} else {
		atomic.AddInt64(&warnsGateway, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "stream") {
		atomic.AddInt64(&errorsStream, 1)
	} else {
		atomic.AddInt64(&errorsGateway, 1)
	}
}

// IncrementStreamRead counts one raw message delivered by the upstream feed.
func IncrementStreamRead() {
	atomic.AddInt64(&streamReads, 1)
}

// IncrementEventPublished counts one event handed to the broadcaster.
func IncrementEventPublished() {
	atomic.AddInt64(&eventsPublished, 1)
}

// IncrementDroppedStale counts one event discarded by the pair drop-check.
func IncrementDroppedStale() {
	atomic.AddInt64(&droppedStale, 1)
}

// IncrementDroppedMalformed counts one upstream message discarded on parse failure.
func IncrementDroppedMalformed() {
	atomic.AddInt64(&droppedBad, 1)
}

// IncrementSendFailure counts one subscriber delivery failure.
func IncrementSendFailure() {
	atomic.AddInt64(&sendFailures, 1)
}

// RegisterSubscriberGauge installs the callback used to sample the
// current number of connected subscribers.
func RegisterSubscriberGauge(fn func() int) {
	subscriberCount = fn
}

// StartReport begins periodic logging of runtime and relay statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	subscribers := 0
	if subscriberCount != nil {
		subscribers = subscriberCount()
	}

	fields := Fields{
		"errors_stream":     atomic.LoadInt64(&errorsStream),
		"errors_gateway":    atomic.LoadInt64(&errorsGateway),
		"warns_stream":      atomic.LoadInt64(&warnsStream),
		"warns_gateway":     atomic.LoadInt64(&warnsGateway),
		"stream_reads":      atomic.LoadInt64(&streamReads),
		"events_published":  atomic.LoadInt64(&eventsPublished),
		"dropped_stale":     atomic.LoadInt64(&droppedStale),
		"dropped_malformed": atomic.LoadInt64(&droppedBad),
		"send_failures":     atomic.LoadInt64(&sendFailures),
		"subscribers":       subscribers,
		"goroutines":        runtime.NumGoroutine(),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("StreamReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["stream_reads"].(int64)))},
		{MetricName: aws.String("EventsPublished"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_published"].(int64)))},
		{MetricName: aws.String("DroppedStale"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["dropped_stale"].(int64)))},
		{MetricName: aws.String("DroppedMalformed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["dropped_malformed"].(int64)))},
		{MetricName: aws.String("SendFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["send_failures"].(int64)))},
		{MetricName: aws.String("Subscribers"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(subscribers))},
		{MetricName: aws.String("ErrorsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_stream"].(int64)))},
		{MetricName: aws.String("ErrorsGateway"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_gateway"].(int64)))},
		{MetricName: aws.String("WarnsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_stream"].(int64)))},
		{MetricName: aws.String("WarnsGateway"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_gateway"].(int64)))},
	}

	publishMetrics(ctx, data)
}
