package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cdas-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esDocument 是写入 Elasticsearch 的切片文档。
type esDocument struct {
	ChunkID     string    `json:"chunk_id"`
	DocumentID  uint      `json:"document_id"`
	Page        int       `json:"page"`
	ChunkOrder  int       `json:"chunk_order"`
	SubjectID   *uint     `json:"subject_id,omitempty"`
	SubjectName string    `json:"subject_name,omitempty"`
	TextContent string    `json:"text_content"`
	Vector      []float32 `json:"vector,omitempty"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Source esDocument `json:"_source"`
			Score  float64    `json:"_score"`
			Sort   []any      `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// getPageSize 是 Get 每页的大小，等于 index.max_result_window 的默认值。
const getPageSize = 10000

// ES 的 knn.num_candidates 上限
const maxNumCandidates = 10000

type elasticsearchStore struct {
	client *elasticsearch.Client
	index    string
	dims     int
	pageSize int
}

// NewElasticsearch 基于已存在的索引创建向量库，索引映射见 es.IndexMapping。
func NewElasticsearch(client *elasticsearch.Client, index string, dims int) Store {
	return &elasticsearchStore{client: client, index: index, dims: dims, pageSize: getPageSize}
}

func (s *elasticsearchStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if len(e.Embedding) != s.dims {
			return fmt.Errorf("%w: %s has %d dimensions, index %q has %d",
				ErrDimensionMismatch, e.ID, len(e.Embedding), s.index, s.dims)
		}
		action := map[string]interface{}{
			"index": map[string]interface{}{"_index": s.index, "_id": e.ID},
		}
		doc := esDocument{
			ChunkID:     e.ID,
			DocumentID:  e.Metadata.DocumentID,
			Page:        e.Metadata.Page,
			ChunkOrder:  e.Metadata.Order,
			SubjectID:   e.Metadata.SubjectID,
			SubjectName: e.Metadata.SubjectName,
			TextContent: e.Text,
			Vector:      e.Embedding,
		}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   s.index,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk returned an error: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string          `json:"_id"`
			Error json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if len(result.Error) > 0 {
					return fmt.Errorf("elasticsearch bulk item %s failed: %s", result.ID, string(result.Error))
				}
			}
		}
		return errors.New("elasticsearch bulk reported errors")
	}
	log.Debugf("[VectorStore] 批量写入 Elasticsearch 成功, index: %s, 条数: %d", s.index, len(entries))
	return nil
}

func (s *elasticsearchStore) Delete(ctx context.Context, filter Filter) error {
	if filter.IsEmpty() {
		return ErrEmptyFilter
	}
	body, err := encodeBody(map[string]interface{}{"query": filterQuery(filter)})
	if err != nil {
		return err
	}
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:     []string{s.index},
		Body:      body,
		Refresh:   &refresh,
		Conflicts: "proceed",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("elasticsearch delete_by_query failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch delete_by_query returned an error: %s", res.String())
	}
	return nil
}

func (s *elasticsearchStore) Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Hit, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index %q has %d",
			ErrDimensionMismatch, len(embedding), s.index, s.dims)
	}
	if topK <= 0 {
		return []Hit{}, nil
	}
	topK = min(topK, maxNumCandidates)
	numCandidates := maxNumCandidates
	if topK < maxNumCandidates/10 {
		numCandidates = max(100, topK*10)
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   embedding,
		"k":              topK,
		"num_candidates": numCandidates,
	}
	if !filter.IsEmpty() {
		knn["filter"] = filterQuery(filter)
	}
	body, err := encodeBody(map[string]interface{}{
		"knn":     knn,
		"size":    topK,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	})
	if err != nil {
		return nil, err
	}
	return s.search(ctx, body)
}

// Get 用 search_after 逐页读取，chunk_id 作为排序的最后一列保证翻页稳定。
func (s *elasticsearchStore) Get(ctx context.Context, filter Filter) ([]Hit, error) {
	all := []Hit{}
	var after []any
	for {
		req := map[string]interface{}{
			"query": filterQuery(filter),
			"size":  s.pageSize,
			"sort": []map[string]interface{}{
				{"document_id": "asc"},
				{"page": "asc"},
				{"chunk_order": "asc"},
				{"chunk_id": "asc"},
			},
			"_source": map[string]interface{}{"excludes": []string{"vector"}},
		}
		if after != nil {
			req["search_after"] = after
		}
		body, err := encodeBody(req)
		if err != nil {
			return nil, err
		}
		hits, last, err := s.searchPage(ctx, body)
		if err != nil {
			return nil, err
		}
		for i := range hits {
			hits[i].Score = 0
		}
		all = append(all, hits...)
		if len(hits) < s.pageSize || len(last) == 0 {
			return all, nil
		}
		after = last
	}
}

func (s *elasticsearchStore) Count(ctx context.Context) (int64, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count returned an error: %s", res.String())
	}
	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return countResp.Count, nil
}

func (s *elasticsearchStore) Close() error { return nil }

func (s *elasticsearchStore) search(ctx context.Context, body io.Reader) ([]Hit, error) {
	hits, _, err := s.searchPage(ctx, body)
	return hits, err
}

// searchPage 执行一次搜索，并返回最后一条命中的 sort 值用于翻页。
func (s *elasticsearchStore) searchPage(ctx context.Context, body io.Reader) ([]Hit, []any, error) {
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(body),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	// 索引尚未创建视为空集合
	if res.StatusCode == http.StatusNotFound {
		return []Hit{}, nil, nil
	}
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[VectorStore] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		// 索引映射与查询向量维度不一致，例如其他进程重建了索引
		if res.StatusCode == http.StatusBadRequest && strings.Contains(string(bodyBytes), "dimension") {
			return nil, nil, fmt.Errorf("%w: index %q rejected the query vector", ErrDimensionMismatch, s.index)
		}
		return nil, nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	var last []any
	for _, h := range esResponse.Hits.Hits {
		last = h.Sort
		id := h.Source.ChunkID
		if id == "" {
			id = h.ID
		}
		hits = append(hits, Hit{
			ID:   id,
			Text: h.Source.TextContent,
			Metadata: Metadata{
				DocumentID:  h.Source.DocumentID,
				Page:        h.Source.Page,
				Order:       h.Source.ChunkOrder,
				ChunkID:     id,
				SubjectID:   h.Source.SubjectID,
				SubjectName: h.Source.SubjectName,
			},
			Score: h.Score,
		})
	}
	return hits, last, nil
}

// filterQuery 把 Filter 转换为 bool.filter 查询；空过滤条件匹配全部文档。
func filterQuery(filter Filter) map[string]interface{} {
	var clauses []map[string]interface{}
	if filter.DocumentID != nil {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"document_id": *filter.DocumentID},
		})
	}
	if len(filter.SubjectIDs) > 0 {
		clauses = append(clauses, map[string]interface{}{
			"terms": map[string]interface{}{"subject_id": filter.SubjectIDs},
		})
	}
	if len(clauses) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"filter": clauses},
	}
}

func encodeBody(v interface{}) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	return &buf, nil
}
