package session

import (
	"context"
	"encoding/json"

	"GCProject/module/chat/model"
	"GCProject/tools/errs"
	"GCProject/tools/security"

	"github.com/redis/go-redis/v9"
)

// RedisConfig mirrors the storage config shape used elsewhere in the stack.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key under which the identity record (JSON) is stored.
	Key string
}

// RedisStore reads a shared identity record, letting several client
// processes reuse one login. The record is the JSON identity object
// ({_id, username, isAdmin, token}); a record holding only a token is
// hydrated from its claims.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errs.ErrConnectionFailure.WrapMsg("redis ping", "addr", cfg.Addr, "err", err)
	}
	return &RedisStore{rdb: rdb, key: cfg.Key}, nil
}

func (s *RedisStore) Current(ctx context.Context) (model.Identity, error) {
	val, err := s.rdb.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return model.Identity{}, errs.ErrAuthFailure.WrapMsg("no identity record", "key", s.key)
	}
	if err != nil {
		return model.Identity{}, errs.ErrConnectionFailure.WrapMsg("redis get", "err", err)
	}

	var identity model.Identity
	if err := json.Unmarshal([]byte(val), &identity); err != nil {
		return model.Identity{}, errs.ErrAuthFailure.WrapMsg("identity record malformed", "err", err)
	}
	if identity.AuthToken == "" {
		return model.Identity{}, errs.ErrAuthFailure.WrapMsg("identity record has no token")
	}
	if identity.ID == "" || identity.Username == "" {
		claims, err := security.Extract(identity.AuthToken)
		if err != nil {
			return model.Identity{}, errs.ErrAuthFailure.WrapMsg("token claims", "err", err)
		}
		if identity.ID == "" {
			identity.ID = claims.UserID
		}
		if identity.Username == "" {
			identity.Username = claims.Username
		}
		identity.IsAdmin = identity.IsAdmin || claims.IsAdmin
	}
	return identity, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
