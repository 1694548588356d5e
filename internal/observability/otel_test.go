package observability

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret, broken, x=1 ,=v")
	if len(got) != 2 || got["api-key"] != "secret" || got["x"] != "1" {
		t.Errorf("unexpected headers %v", got)
	}
	if ParseHeaders("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.25: 0.25, 3: 1} {
		if got := clampRatio(in); got != want {
			t.Errorf("clampRatio(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown failed: %v", err)
	}
}

func TestInit_StdoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(),
		WithEnabled(true),
		WithService("leadrelay-test", "test", "dev"),
		WithSampleRatio(1),
		WithStdoutWriter(&buf),
	)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "relay.HandleInbound")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("relay.HandleInbound")) {
		t.Errorf("expected exported span in output, got %q", buf.String())
	}
}
