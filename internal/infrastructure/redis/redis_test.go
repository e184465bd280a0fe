package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() //nolint:errcheck // only needed a free port

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Connect(ctx, config.RedisConfig{Enabled: true, Addr: addr}); err == nil {
		t.Fatal("Connect() to closed port should fail")
	}
}

func TestConnectLive(t *testing.T) {
	addr := os.Getenv("POWERWATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POWERWATCH_TEST_REDIS_ADDR not set")
	}

	rdb, err := Connect(context.Background(), config.RedisConfig{Enabled: true, Addr: addr})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer rdb.Close()
}
