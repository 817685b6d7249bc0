package sinks

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/fleetwatch/internal/archive"
	"github.com/JakeFAU/fleetwatch/internal/notify"
	"github.com/JakeFAU/fleetwatch/internal/publisher/memory"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func added(id string, sev notify.Severity) notify.Event {
	return notify.Event{
		Kind: notify.EventAdded,
		Notification: &notify.Notification{
			ID: id, Title: "CPU Usage Alert", Message: "CPU usage on validator-01 exceeds 90%",
			Server: "validator-01", Severity: sev, Category: "performance", Link: "/servers/validator-01",
			Timestamp: testNow,
		},
		Unread: 1, Total: 1, At: testNow,
	}
}

func TestPrometheusSinkCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	evicted := added("a", notify.SeverityInfo)
	evicted.Kind = notify.EventEvicted
	require.NoError(t, sink.Consume(t.Context(), []notify.Event{
		added("a", notify.SeverityCritical),
		added("b", notify.SeverityCritical),
		{Kind: notify.EventRead, Notification: &notify.Notification{ID: "a"}, Unread: 1, Total: 2, At: testNow},
		{Kind: notify.EventAllRead, IDs: []string{"b"}, Unread: 0, Total: 2, At: testNow},
		evicted,
		{Kind: notify.EventCleared, IDs: []string{"b", "c"}, Unread: 0, Total: 0, At: testNow},
	}))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.added.WithLabelValues("critical", "performance")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.read))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.removed.WithLabelValues("evicted")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.removed.WithLabelValues("cleared")))
	require.Zero(t, testutil.ToFloat64(sink.unread))
	require.Zero(t, testutil.ToFloat64(sink.total))
	require.NoError(t, sink.Close(t.Context()))

	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "duplicate registration must fail")
}

func TestAlertSinkPublishesAddedOnly(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink, err := NewAlertSink(pub, "fleet-alerts", nil, nil)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(t.Context(), []notify.Event{
		added("a", notify.SeverityCritical),
		{Kind: notify.EventRead, Notification: &notify.Notification{ID: "a"}, At: testNow},
		added("b", notify.SeverityWarning),
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "fleet-alerts", msgs[0].Topic)

	first, ok := msgs[0].Payload.(Alert)
	require.True(t, ok)
	require.Equal(t, VariantDestructive, first.Variant)
	require.Equal(t, "CPU Usage Alert", first.Title)
	require.Equal(t, "CPU usage on validator-01 exceeds 90%", first.Description)
	require.Equal(t, "/servers/validator-01", first.Link)

	second := msgs[1].Payload.(Alert)
	require.Equal(t, VariantDefault, second.Variant)
	require.Equal(t, notify.SeverityWarning, second.Severity)
}

func TestAlertSinkRateLimit(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink, err := NewAlertSink(pub, "fleet-alerts", rate.NewLimiter(rate.Every(time.Hour), 1), nil)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(t.Context(), []notify.Event{
		added("a", notify.SeverityInfo),
		added("b", notify.SeverityInfo),
		added("c", notify.SeverityInfo),
	}))
	require.Len(t, pub.Messages(), 1)
}

func TestAlertSinkReportsPublishErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("topic not found")
	sink, err := NewAlertSink(publisherFunc(func(context.Context, string, any) (string, error) {
		return "", boom
	}), "fleet-alerts", nil, zap.NewNop())
	require.NoError(t, err)

	err = sink.Consume(t.Context(), []notify.Event{added("a", notify.SeverityInfo)})
	require.ErrorIs(t, err, boom)
}

func TestAlertSinkRequiresPublisherAndTopic(t *testing.T) {
	t.Parallel()

	_, err := NewAlertSink(nil, "fleet-alerts", nil, nil)
	require.Error(t, err)
	_, err = NewAlertSink(memory.New(), "", nil, nil)
	require.Error(t, err)
}

func TestArchiveSinkAppliesEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	sink, err := NewArchiveSink(repo)
	require.NoError(t, err)

	deleted := added("a", notify.SeverityInfo)
	deleted.Kind = notify.EventDeleted
	evicted := added("b", notify.SeverityInfo)
	evicted.Kind = notify.EventEvicted

	require.NoError(t, sink.Consume(t.Context(), []notify.Event{
		added("a", notify.SeverityInfo),
		{Kind: notify.EventRead, Notification: &notify.Notification{ID: "a"}, At: testNow},
		{Kind: notify.EventAllRead, IDs: []string{"b", "c"}, At: testNow},
		{Kind: notify.EventAllRead, At: testNow},
		deleted,
		evicted,
		{Kind: notify.EventCleared, IDs: []string{"c"}, At: testNow},
		{Kind: notify.EventCleared, At: testNow},
	}))

	require.Equal(t, []string{
		"added a",
		"read a",
		"read-all 2",
		"removed deleted 1",
		"removed evicted 1",
		"removed cleared 1",
	}, repo.calls)
}

func TestArchiveSinkStopsOnError(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{err: errors.New("connection refused")}
	sink, err := NewArchiveSink(repo)
	require.NoError(t, err)

	err = sink.Consume(t.Context(), []notify.Event{added("a", notify.SeverityInfo), added("b", notify.SeverityInfo)})
	require.ErrorIs(t, err, repo.err)
	require.Len(t, repo.calls, 1)

	_, err = NewArchiveSink(nil)
	require.Error(t, err)
}

func TestLogSinkWritesOneLinePerEvent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(t.Context(), []notify.Event{
		added("a", notify.SeverityCritical),
		{Kind: notify.EventCleared, IDs: []string{"a"}, At: testNow},
	}))
	require.Equal(t, 2, logs.Len())

	entries := logs.All()
	require.Equal(t, "added", entries[0].ContextMap()["kind"])
	require.Equal(t, "critical", entries[0].ContextMap()["severity"])
	require.Equal(t, int64(1), entries[1].ContextMap()["affected"])
	require.NoError(t, sink.Close(t.Context()))
}

type publisherFunc func(ctx context.Context, topic string, payload any) (string, error)

func (f publisherFunc) Publish(ctx context.Context, topic string, payload any) (string, error) {
	return f(ctx, topic, payload)
}

type fakeRepo struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *fakeRepo) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.err
}

func (r *fakeRepo) RecordAdded(_ context.Context, n notify.Notification) error {
	return r.record("added " + n.ID)
}

func (r *fakeRepo) RecordRead(_ context.Context, id string, _ time.Time) error {
	return r.record("read " + id)
}

func (r *fakeRepo) RecordReadAll(_ context.Context, ids []string, _ time.Time) error {
	return r.record("read-all " + strconv.Itoa(len(ids)))
}

func (r *fakeRepo) RecordRemoved(_ context.Context, ids []string, reason archive.RemovalReason, _ time.Time) error {
	return r.record("removed " + string(reason) + " " + strconv.Itoa(len(ids)))
}

func (r *fakeRepo) Get(context.Context, string) (archive.Record, error) {
	return archive.Record{}, archive.ErrNotFound
}

func (r *fakeRepo) ListRecent(context.Context, int, int) ([]archive.Record, error) {
	return nil, nil
}
