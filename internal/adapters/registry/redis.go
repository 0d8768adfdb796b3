package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/melih/gamehost/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

// raisePort sets KEYS[1] to ARGV[1] when it is higher than the stored value.
var raisePort = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local port = tonumber(ARGV[1])
if port > cur then
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisStore keeps each game as a JSON value, with a sorted set of ids for
// insertion order and a port->id hash for the uniqueness check.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) seqKey() string   { return s.prefix + "games:seq" }
func (s *RedisStore) idsKey() string   { return s.prefix + "games:ids" }
func (s *RedisStore) portsKey() string { return s.prefix + "games:ports" }
func (s *RedisStore) maxKey() string   { return s.prefix + "ports:max" }
func (s *RedisStore) gameKey(id int64) string {
	return s.prefix + "game:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) Create(ctx context.Context, game domain.Game) (domain.Game, error) {
	id, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to allocate game id: %w", err)
	}
	game.ID = id

	claimed, err := s.rdb.HSetNX(ctx, s.portsKey(), strconv.Itoa(game.Port), id).Result()
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to claim port %d: %w", game.Port, err)
	}
	if !claimed {
		return domain.Game{}, domain.ErrPortTaken
	}

	data, err := json.Marshal(game)
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to encode game %d: %w", id, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.gameKey(id), data, 0)
		pipe.ZAdd(ctx, s.idsKey(), redis.Z{Score: float64(id), Member: strconv.FormatInt(id, 10)})
		return nil
	})
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to create game %d: %w", id, err)
	}
	if err := raisePort.Run(ctx, s.rdb, []string{s.maxKey()}, game.Port).Err(); err != nil {
		return domain.Game{}, fmt.Errorf("failed to record port %d: %w", game.Port, err)
	}
	return game, nil
}

func (s *RedisStore) Get(ctx context.Context, id int64) (domain.Game, error) {
	data, err := s.rdb.Get(ctx, s.gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Game{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to get game %d: %w", id, err)
	}
	var game domain.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return domain.Game{}, fmt.Errorf("failed to decode game %d: %w", id, err)
	}
	return game, nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.Game, error) {
	ids, err := s.rdb.ZRange(ctx, s.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	games := make([]domain.Game, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		game, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, nil
}

func (s *RedisStore) Update(ctx context.Context, game domain.Game) error {
	current, err := s.Get(ctx, game.ID)
	if err != nil {
		return err
	}
	if current.Port != game.Port {
		if err := s.claimPort(ctx, game.Port, game.ID); err != nil {
			return err
		}
	}
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to encode game %d: %w", game.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.gameKey(game.ID), data, 0)
		if current.Port != game.Port {
			pipe.HDel(ctx, s.portsKey(), strconv.Itoa(current.Port))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update game %d: %w", game.ID, err)
	}
	if err := raisePort.Run(ctx, s.rdb, []string{s.maxKey()}, game.Port).Err(); err != nil {
		return fmt.Errorf("failed to record port %d: %w", game.Port, err)
	}
	return nil
}

// claimPort takes port for id in the port hash. A port already owned by
// another game is ErrPortTaken.
func (s *RedisStore) claimPort(ctx context.Context, port int, id int64) error {
	field := strconv.Itoa(port)
	claimed, err := s.rdb.HSetNX(ctx, s.portsKey(), field, id).Result()
	if err != nil {
		return fmt.Errorf("failed to claim port %d: %w", port, err)
	}
	if claimed {
		return nil
	}
	owner, err := s.rdb.HGet(ctx, s.portsKey(), field).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read owner of port %d: %w", port, err)
	}
	if owner != id {
		return domain.ErrPortTaken
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.gameKey(id))
		pipe.ZRem(ctx, s.idsKey(), strconv.FormatInt(id, 10))
		pipe.HDel(ctx, s.portsKey(), strconv.Itoa(current.Port))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete game %d: %w", id, err)
	}
	return nil
}

func (s *RedisStore) MaxPort(ctx context.Context) (int, bool, error) {
	port, err := s.rdb.Get(ctx, s.maxKey()).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read port high-water mark: %w", err)
	}
	return port, true, nil
}
