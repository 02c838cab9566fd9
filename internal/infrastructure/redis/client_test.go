package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/baotran97/gridpulse-core/internal/infrastructure/config"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if client.Raw() == nil {
		t.Error("Raw() returned nil")
	}
}

func TestConnectUnreachable(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheckAfterServerStop(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	mr.Close()

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after server stop should fail")
	}
}
