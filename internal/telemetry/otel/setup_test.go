package otel

import (
	"context"
	"testing"
)

func TestNewProvider_EmptyEndpointIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), "", "test-service")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.TracerProvider == nil {
		t.Error("no-op provider missing TracerProvider")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewProvider_InvalidEndpoint(t *testing.T) {
	if _, err := NewProvider(context.Background(), "http://", "test-service"); err == nil {
		t.Error("NewProvider accepted endpoint without host")
	}
}
