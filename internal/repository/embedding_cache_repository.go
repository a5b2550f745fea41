package repository

import (
	"context"
	"errors"
	"time"

	"cdas-go/pkg/embedding"

	"github.com/go-redis/redis/v8"
)

// EmbeddingCacheRepository 把 Embedding API 返回的向量缓存到 Redis。
// 它满足 embedding.Cache 接口。
type EmbeddingCacheRepository struct {
	redisClient *redis.Client
}

var _ embedding.Cache = (*EmbeddingCacheRepository)(nil)

// NewEmbeddingCacheRepository 创建一个新的 EmbeddingCacheRepository 实例。
func NewEmbeddingCacheRepository(redisClient *redis.Client) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{redisClient: redisClient}
}

// Get 读取缓存的向量，key 不存在时返回 ok=false。
func (r *EmbeddingCacheRepository) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := r.redisClient.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := embedding.DecodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set 写入向量，ttl <= 0 表示不过期。
func (r *EmbeddingCacheRepository) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.redisClient.Set(ctx, key, embedding.EncodeVector(vector), ttl).Err()
}
