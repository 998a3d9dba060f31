package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr())
	defer r.Close()

	if !r.Healthy(context.Background()) {
		t.Fatal("expected healthy redis")
	}

	mr.Close()
	if r.Healthy(context.Background()) {
		t.Fatal("expected unhealthy redis after shutdown")
	}

	var nilRedis *Redis
	if nilRedis.Healthy(context.Background()) {
		t.Fatal("nil handle reported healthy")
	}
}
