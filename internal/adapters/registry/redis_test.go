package registry

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/melih/gamehost/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

func TestRedisRegistry(t *testing.T) {
	runContract(t, func(t *testing.T) ports.GameRegistry {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return NewRedisStore(rdb, "test:")
	})
}
