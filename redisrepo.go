package scripturepath

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisRepository is a StudyRepository on Redis. Each study is one JSON
// value; per-owner and public sorted sets index it.
type RedisRepository struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisRepository connects to addr and pings it.
func NewRedisRepository(ctx context.Context, addr, prefix string) (*RedisRepository, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisRepository) Close() error {
	return r.rdb.Close()
}

func (r *RedisRepository) studyKey(id string) string    { return r.prefix + "study:" + id }
func (r *RedisRepository) ownerKey(owner string) string { return r.prefix + "owner:" + owner }
func (r *RedisRepository) publicKey() string            { return r.prefix + "public" }

func (r *RedisRepository) Get(ctx context.Context, id string) (*Study, error) {
	raw, err := r.rdb.Get(ctx, r.studyKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrStudyNotFound
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	return NormalizeStudy(raw)
}

func (r *RedisRepository) Put(ctx context.Context, study *Study) error {
	data, err := json.Marshal(study)
	if err != nil {
		return fmt.Errorf("failed to encode study: %w", err)
	}

	prev, err := r.Get(ctx, study.ID)
	if err != nil && !errors.Is(err, ErrStudyNotFound) {
		return err
	}

	m := study.Metadata
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, r.studyKey(study.ID), data, 0)
		if prev != nil && prev.Metadata.OwnerID != m.OwnerID {
			p.ZRem(ctx, r.ownerKey(prev.Metadata.OwnerID), study.ID)
		}
		p.ZAdd(ctx, r.ownerKey(m.OwnerID), goredis.Z{Score: float64(m.CreatedAt.UnixMilli()), Member: study.ID})
		if m.IsPublic {
			p.ZAdd(ctx, r.publicKey(), goredis.Z{Score: float64(m.Stats.Score()), Member: study.ID})
		} else {
			p.ZRem(ctx, r.publicKey(), study.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store study: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	prev, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, r.studyKey(id))
		p.ZRem(ctx, r.ownerKey(prev.Metadata.OwnerID), id)
		p.ZRem(ctx, r.publicKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}
	return nil
}

func (r *RedisRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Study, error) {
	ids, err := r.rdb.ZRevRange(ctx, r.ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list owner studies: %w", err)
	}
	studies, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(studies)
	return studies, nil
}

func (r *RedisRepository) ListPublic(ctx context.Context, limit int) ([]*Study, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRevRange(ctx, r.publicKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list public studies: %w", err)
	}
	studies, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortByScore(studies)
	return studies, nil
}

// load fetches studies by id, skipping ids whose value has gone.
func (r *RedisRepository) load(ctx context.Context, ids []string) ([]*Study, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.studyKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load studies: %w", err)
	}
	var studies []*Study
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		study, err := NormalizeStudy([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("failed to decode study %s: %w", ids[i], err)
		}
		studies = append(studies, study)
	}
	return studies, nil
}
