package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// Attribute keys shared by the sync instruments.
var (
	AttrAccount = attribute.Key("account")
	AttrStream  = attribute.Key("stream")
	AttrOutcome = attribute.Key("outcome")
	AttrJobKind = attribute.Key("job.kind")
	AttrStatus  = attribute.Key("status")
)

// JobDurationBuckets are the histogram boundaries for sync jobs, in seconds.
// Stock runs wait a minute per rate-limited page, so the tail reaches half an hour.
var JobDurationBuckets = []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

// SyncMetrics counts marketplace sync and packing activity.
// It satisfies the sync, packing and job observers.
type SyncMetrics struct {
	pagesFetched    metric.Int64Counter
	recordsFetched  metric.Int64Counter
	recordsOutcome  metric.Int64Counter
	rateLimitWaits  metric.Int64Counter
	packagesCreated metric.Int64Counter
	ordersPacked    metric.Int64Counter
	jobsFinished    metric.Int64Counter
	jobDuration     metric.Float64Histogram
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	var m SyncMetrics
	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.pagesFetched, "wb_pages_fetched_total", "Feed pages fetched from the marketplace", "{page}"},
		{&m.recordsFetched, "wb_records_fetched_total", "Feed records received from the marketplace", "{record}"},
		{&m.recordsOutcome, "wb_records_processed_total", "Feed records by ingestion outcome", "{record}"},
		{&m.rateLimitWaits, "wb_rate_limit_waits_total", "Waits caused by upstream rate limiting", "{wait}"},
		{&m.packagesCreated, "manufacture_packages_created_total", "Packages created for completed batches", "{package}"},
		{&m.ordersPacked, "manufacture_orders_packed_total", "Orders packed into supplies", "{order}"},
		{&m.jobsFinished, "sync_jobs_finished_total", "Sync jobs finished by kind and status", "{job}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.jobDuration, err = meter.Float64Histogram("sync_job_duration_seconds",
		metric.WithDescription("Sync job duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(JobDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram sync_job_duration_seconds: %w", err)
	}
	return &m, nil
}

func streamAttrs(account marketplace.AccountID, stream string, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{AttrAccount.String(account.String()), AttrStream.String(stream)}, extra...)
	return metric.WithAttributes(attrs...)
}

// PageFetched records one fetched page and its records
func (m *SyncMetrics) PageFetched(ctx context.Context, account marketplace.AccountID, stream string, records int) {
	attrs := streamAttrs(account, stream)
	m.pagesFetched.Add(ctx, 1, attrs)
	m.recordsFetched.Add(ctx, int64(records), attrs)
}

// RateLimitWait records one wait for the upstream rate limit
func (m *SyncMetrics) RateLimitWait(ctx context.Context, account marketplace.AccountID, stream string) {
	m.rateLimitWaits.Add(ctx, 1, streamAttrs(account, stream))
}

// RowsProcessed records count rows that ended with outcome; duplicates are dedup hits
func (m *SyncMetrics) RowsProcessed(ctx context.Context, account marketplace.AccountID, stream, outcome string, count int) {
	m.recordsOutcome.Add(ctx, int64(count), streamAttrs(account, stream, AttrOutcome.String(outcome)))
}

// OrdersPacked records the packages and orders of one completed batch
func (m *SyncMetrics) OrdersPacked(ctx context.Context, account marketplace.AccountID, packages, orders int) {
	attrs := metric.WithAttributes(AttrAccount.String(account.String()))
	m.packagesCreated.Add(ctx, int64(packages), attrs)
	m.ordersPacked.Add(ctx, int64(orders), attrs)
}

// JobFinished records a finished scheduler job
func (m *SyncMetrics) JobFinished(ctx context.Context, kind, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(AttrJobKind.String(kind), AttrStatus.String(status))
	m.jobsFinished.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, elapsed.Seconds(), attrs)
}
