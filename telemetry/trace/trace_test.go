//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracesEndpointDefaults(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	assert.Equal(t, "localhost:4317", tracesEndpoint(ProtocolGRPC))
	assert.Equal(t, "localhost:4318", tracesEndpoint(ProtocolHTTP))
}

func TestTracesEndpointFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	assert.Equal(t, "collector:4317", tracesEndpoint(ProtocolGRPC))

	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "traces:4317")
	assert.Equal(t, "traces:4317", tracesEndpoint(ProtocolGRPC))
}

func TestOptions(t *testing.T) {
	opts := &options{}
	for _, o := range []Option{
		WithEndpoint("example.com:4317"),
		WithProtocol(ProtocolHTTP),
		WithServiceName("flow-svc"),
		WithHeaders(map[string]string{"x-token": "t"}),
	} {
		o(opts)
	}
	assert.Equal(t, "example.com:4317", opts.endpoint)
	assert.Equal(t, ProtocolHTTP, opts.protocol)
	assert.Equal(t, "flow-svc", opts.serviceName)
	assert.Equal(t, "t", opts.headers["x-token"])
}

func TestDefaultTracerIsNoop(t *testing.T) {
	assert.NotNil(t, Tracer)
	assert.NotNil(t, TracerProvider)
}
