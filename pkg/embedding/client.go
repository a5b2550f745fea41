// Package embedding provides a client for interacting with embedding models.
//
// Embed never fails: when no API key is configured, or when any request to
// the remote model fails, every input is mapped to a deterministic pseudo
// vector derived from its sha256 digest so that indexing and retrieval keep
// working offline.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"cdas-go/internal/config"
	"cdas-go/pkg/log"
)

// Provider turns texts into vectors of a fixed dimension.
type Provider interface {
	// Embed returns exactly one vector per input, in input order.
	Embed(ctx context.Context, texts []string) [][]float32
	Dimensions() int
}

// Cache stores vectors returned by the remote model. Fallback vectors are
// never cached.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

var (
	errEmptyResponse     = errors.New("embedding api returned no usable vectors")
	errDimensionMismatch = errors.New("embedding api returned vectors of unexpected dimension")
)

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
	cache  Cache
	ttl    time.Duration
}

// NewClient creates an OpenAI-compatible embedding client. cache may be nil.
func NewClient(cfg config.EmbeddingConfig, cache Cache) Provider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		cache:  cache,
		ttl:    time.Duration(cfg.CacheTTLHours) * time.Hour,
	}
}

func (c *openAICompatibleClient) Dimensions() int {
	return c.cfg.Dimensions
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     *int      `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// embeddingResult 是远端响应归一化后的结果。
type embeddingResult struct {
	Vectors [][]float32
}

func (c *openAICompatibleClient) Embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return [][]float32{}
	}
	if c.cfg.APIKey == "" {
		return FallbackVectors(texts, c.cfg.Dimensions)
	}

	vectors := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += c.cfg.BatchSize {
		end := min(len(missing), start+c.cfg.BatchSize)
		batch := make([]string, 0, end-start)
		for _, idx := range missing[start:end] {
			batch = append(batch, texts[idx])
		}
		result, err := c.requestBatch(ctx, batch)
		if err != nil {
			log.Warnf("[EmbeddingProvider] 调用 Embedding API 失败, 全部 %d 条文本改用 sha256 回退向量: %v", len(texts), err)
			return FallbackVectors(texts, c.cfg.Dimensions)
		}
		for j, idx := range missing[start:end] {
			vectors[idx] = result.Vectors[j]
		}
	}

	for _, idx := range missing {
		c.store(ctx, texts[idx], vectors[idx])
	}
	log.Debugf("[EmbeddingProvider] 成功获取向量, 条数: %d, 命中缓存: %d", len(texts), len(texts)-len(missing))
	return vectors
}

func (c *openAICompatibleClient) requestBatch(ctx context.Context, batch []string) (*embeddingResult, error) {
	reqBytes, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding api returned non-200 status: %s: %s", resp.Status, string(body))
	}
	return decodeEmbeddings(resp.Body, len(batch), c.cfg.Dimensions)
}

// decodeEmbeddings 解析 {"data":[{"index":0,"embedding":[...]}]}。
// 带 index 时按 index 排序；向量条数必须与输入一致，且每个向量都是 dims 维。
func decodeEmbeddings(r io.Reader, want, dims int) (*embeddingResult, error) {
	var raw embeddingResponse
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(raw.Data) != want {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", errEmptyResponse, len(raw.Data), want)
	}
	sort.SliceStable(raw.Data, func(i, j int) bool {
		if raw.Data[i].Index == nil || raw.Data[j].Index == nil {
			return false
		}
		return *raw.Data[i].Index < *raw.Data[j].Index
	})
	result := &embeddingResult{Vectors: make([][]float32, 0, want)}
	for _, item := range raw.Data {
		if len(item.Embedding) == 0 {
			return nil, errEmptyResponse
		}
		if len(item.Embedding) != dims {
			return nil, fmt.Errorf("%w: got %d dims, configured %d", errDimensionMismatch, len(item.Embedding), dims)
		}
		result.Vectors = append(result.Vectors, item.Embedding)
	}
	return result, nil
}

func (c *openAICompatibleClient) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.cfg.Model + "\x00" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

func (c *openAICompatibleClient) lookup(ctx context.Context, text string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	vec, ok, err := c.cache.Get(ctx, c.cacheKey(text))
	if err != nil {
		log.Warnf("[EmbeddingProvider] 读取向量缓存失败: %v", err)
		return nil, false
	}
	if !ok || len(vec) != c.cfg.Dimensions {
		return nil, false
	}
	return vec, true
}

func (c *openAICompatibleClient) store(ctx context.Context, text string, vec []float32) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(text), vec, c.ttl); err != nil {
		log.Warnf("[EmbeddingProvider] 写入向量缓存失败: %v", err)
	}
}

// FallbackVectors 为每条文本生成确定性的伪向量：sha256 摘要字节循环填充到
// dim 维，每个字节 b 映射为 (b-128)/128，取值范围 [-1, 1)。
func FallbackVectors(texts []string, dim int) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		digest := sha256.Sum256([]byte(text))
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = (float32(digest[j%len(digest)]) - 128) / 128
		}
		out[i] = vec
	}
	return out
}
