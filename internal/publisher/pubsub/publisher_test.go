package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(t.Context(), "fleet-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(t.Context(), "fleet-alerts")
	require.NoError(t, err)
	return srv, client
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	srv, client := newTestClient(t)
	pub := New(client, map[string]string{"service": "fleetwatch"})
	id, err := pub.Publish(t.Context(), "fleet-alerts", map[string]string{"title": "CPU Usage Alert"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "fleetwatch", msgs[0].Attributes["service"])

	var body map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &body))
	require.Equal(t, "CPU Usage Alert", body["title"])

	require.NoError(t, pub.Close())
}

func TestPublisherPropagatesTraceContext(t *testing.T) {
	t.Parallel()

	srv, client := newTestClient(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	pub := New(client, nil)
	pub.tracer = tp.Tracer("test")
	pub.propagator = propagation.TraceContext{}

	ctx, parent := tp.Tracer("test").Start(t.Context(), "events flush")
	_, err := pub.Publish(ctx, "fleet-alerts", map[string]string{"title": "Disk Space Warning"})
	require.NoError(t, err)
	parent.End()
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	traceparent := msgs[0].Attributes["traceparent"]
	require.NotEmpty(t, traceparent)
	require.Contains(t, traceparent, parent.SpanContext().TraceID().String())

	var producer sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "fleet-alerts publish" {
			producer = span
		}
	}
	require.NotNil(t, producer)
	require.Equal(t, trace.SpanKindProducer, producer.SpanKind())
	require.Equal(t, parent.SpanContext().SpanID(), producer.Parent().SpanID())
	require.Contains(t, traceparent, producer.SpanContext().SpanID().String())
}

func TestPublisherRequiresClientAndTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil).Publish(t.Context(), "fleet-alerts", "x")
	require.Error(t, err)
	require.NoError(t, New(nil, nil).Close())

	pub := &Publisher{client: &pubsub.Client{}, topics: map[string]*pubsub.Topic{}}
	_, err = pub.Publish(t.Context(), "", "x")
	require.Error(t, err)
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
