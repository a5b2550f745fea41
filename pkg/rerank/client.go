// Package rerank 提供第二阶段相关性重排客户端（SiliconFlow 兼容的 /rerank 接口）。
//
// Rerank 从不返回错误：未配置密钥、请求失败、响应无法解析时都退化为原顺序。
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"cdas-go/internal/config"
	"cdas-go/pkg/log"
)

// Provider 返回 documents 下标的一个排列，相关性最高的在前。
type Provider interface {
	Rerank(ctx context.Context, query string, documents []string) []int
}

type siliconFlowClient struct {
	cfg    config.RerankConfig
	client *http.Client
}

// NewClient 创建 Rerank 客户端。
func NewClient(cfg config.RerankConfig) Provider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &siliconFlowClient{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankItem 是归一化之后的单条打分结果。
type rerankItem struct {
	Index int
	Score float64
}

func (c *siliconFlowClient) Rerank(ctx context.Context, query string, documents []string) []int {
	if len(documents) == 0 {
		return []int{}
	}
	if c.cfg.APIKey == "" {
		return Identity(len(documents))
	}
	items, err := c.request(ctx, query, documents)
	if err != nil {
		log.Warnf("[RerankProvider] 调用 Rerank API 失败, 保持原顺序: %v", err)
		return Identity(len(documents))
	}
	return order(items, len(documents))
}

func (c *siliconFlowClient) request(ctx context.Context, query string, documents []string) ([]rerankItem, error) {
	reqBytes, err := json.Marshal(rerankRequest{Model: c.cfg.Model, Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rerank api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank api returned non-200 status: %s: %s", resp.Status, string(body))
	}
	return decodeItems(resp.Body)
}

// decodeItems 解析 {"data":[{"index":..,"relevance_score"|"score":..}]}。
// index 无法解析的条目被跳过；缺少分数记为 0，分数存在但无法解析的条目被跳过。
func decodeItems(r io.Reader) ([]rerankItem, error) {
	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(payload.Data, &raw); err != nil {
		return nil, fmt.Errorf("rerank response data is not a list: %w", err)
	}

	items := make([]rerankItem, 0, len(raw))
	for _, entry := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			continue
		}
		indexRaw, ok := fields["index"]
		if !ok {
			continue
		}
		idx, ok := parseNumber(indexRaw)
		if !ok || idx != float64(int(idx)) {
			continue
		}
		scoreRaw, ok := fields["relevance_score"]
		if !ok {
			scoreRaw, ok = fields["score"]
		}
		score := 0.0
		if ok {
			if score, ok = parseNumber(scoreRaw); !ok {
				continue
			}
		}
		items = append(items, rerankItem{Index: int(idx), Score: score})
	}
	return items, nil
}

// parseNumber 接受 JSON 数字或内容为数字的字符串。
func parseNumber(raw json.RawMessage) (float64, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// order 按分数降序稳定排序，丢弃越界下标；若没有剩余条目则返回原顺序。
func order(items []rerankItem, n int) []int {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	out := make([]int, 0, len(items))
	for _, it := range items {
		if it.Index >= 0 && it.Index < n {
			out = append(out, it.Index)
		}
	}
	if len(out) == 0 {
		return Identity(n)
	}
	return out
}

// Identity 返回 [0, n) 的恒等排列。
func Identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
