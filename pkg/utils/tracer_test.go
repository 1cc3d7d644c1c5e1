package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

func TestTracerResource_CarriesStorefrontIdentity(t *testing.T) {
	res, err := tracerResource(context.Background(), TracerConfig{
		ServiceName: "storefront",
		Version:     "1.2.0",
		Env:         "prod",
		Store:       "Podscre",
	})
	require.NoError(t, err)

	want := map[attribute.Key]string{
		semconv.ServiceNamespaceKey:      "podscre",
		semconv.ServiceNameKey:           "storefront",
		semconv.ServiceVersionKey:        "1.2.0",
		semconv.DeploymentEnvironmentKey: "prod",
		"storefront.store":               "Podscre",
	}
	for key, value := range want {
		got, ok := res.Set().Value(key)
		require.True(t, ok, key)
		require.Equal(t, value, got.AsString(), key)
	}
}

func TestTracerSampler_RootDecisions(t *testing.T) {
	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{8: 0xff, 9: 0xff, 10: 0xff, 11: 0xff, 12: 0xff, 13: 0xff, 14: 0xff, 15: 0xff},
		Name:          "Checkout",
	}

	require.Equal(t, sdktrace.RecordAndSample, tracerSampler(1).ShouldSample(params).Decision)
	require.Equal(t, sdktrace.Drop, tracerSampler(0).ShouldSample(params).Decision)
	require.Equal(t, sdktrace.Drop, tracerSampler(0.01).ShouldSample(params).Decision)
}

func TestTracerSampler_FollowsSampledParent(t *testing.T) {
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
	})
	params := sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "Checkout",
	}

	require.Equal(t, sdktrace.RecordAndSample, tracerSampler(0).ShouldSample(params).Decision)
}
