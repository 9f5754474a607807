package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/iris/internal/models"
)

const (
	redisJobKeyPrefix = "iris:job:"
	redisJobIndexKey  = "iris:jobs"
)

// RedisStore persists each job as a JSON document under iris:job:<id>,
// with an index set of known ids for listing.
type RedisStore struct {
	client *redis.Client
}

var _ JobStore = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func jobKey(id uuid.UUID) string {
	return redisJobKeyPrefix + id.String()
}

func (s *RedisStore) write(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, job *models.Job) error {
	if err := s.write(ctx, job); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, redisJobIndexKey, job.ID.String()).Err(); err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Save(ctx context.Context, job *models.Job) error {
	exists, err := s.client.Exists(ctx, jobKey(job.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	clone := job.Clone()
	clone.UpdatedAt = time.Now()
	return s.write(ctx, clone)
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Job, error) {
	ids, err := s.client.SMembers(ctx, redisJobIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}

	out := make([]*models.Job, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue // skip corrupt index entries
		}
		job, err := s.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
