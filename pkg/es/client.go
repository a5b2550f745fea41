// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cdas-go/internal/config"
	"cdas-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewClient 创建 Elasticsearch 客户端，Addresses 支持逗号分隔的多个地址。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, addr := range strings.Split(esCfg.Addresses, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	if len(addresses) == 0 {
		return nil, errors.New("vector_store.elasticsearch.addresses 未配置")
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// IndexMapping 返回切片向量索引的映射，向量维度由 Embedding 配置决定。
func IndexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "long" },
				"page": { "type": "integer" },
				"chunk_order": { "type": "integer" },
				"subject_id": { "type": "long" },
				"subject_name": { "type": "keyword" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)
}

// EnsureIndex 检查索引是否存在，如果不存在则按 dims 创建它。
// 返回索引实际的向量维度：已存在的索引以其映射中的 vector.dims 为准。
func EnsureIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) (int, error) {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return 0, err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		existing, err := VectorDims(ctx, client, indexName)
		if err != nil {
			return 0, err
		}
		if existing != dims {
			log.Warnf("索引 '%s' 已存在, 向量维度 %d 与配置的 %d 不一致, 以索引为准", indexName, existing, dims)
		} else {
			log.Infof("索引 '%s' 已存在, 向量维度: %d", indexName, existing)
		}
		return existing, nil
	}
	if res.StatusCode != http.StatusNotFound {
		return 0, fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(strings.NewReader(IndexMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return 0, errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功, 向量维度: %d", indexName, dims)
	return dims, nil
}

type mappingResponse map[string]struct {
	Mappings struct {
		Properties struct {
			Vector struct {
				Type string `json:"type"`
				Dims int    `json:"dims"`
			} `json:"vector"`
		} `json:"properties"`
	} `json:"mappings"`
}

// VectorDims 读取索引映射中 vector 字段的维度。
func VectorDims(ctx context.Context, client *elasticsearch.Client, indexName string) (int, error) {
	res, err := client.Indices.GetMapping(
		client.Indices.GetMapping.WithContext(ctx),
		client.Indices.GetMapping.WithIndex(indexName),
	)
	if err != nil {
		return 0, fmt.Errorf("读取索引 '%s' 映射失败: %w", indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("读取索引 '%s' 映射时 Elasticsearch 返回错误: %s", indexName, res.String())
	}
	var mapping mappingResponse
	if err := json.NewDecoder(res.Body).Decode(&mapping); err != nil {
		return 0, fmt.Errorf("解析索引 '%s' 映射失败: %w", indexName, err)
	}
	// 响应以实际索引名为键，indexName 可能是别名
	for _, m := range mapping {
		if dims := m.Mappings.Properties.Vector.Dims; dims > 0 {
			return dims, nil
		}
	}
	return 0, fmt.Errorf("索引 '%s' 的映射中没有 vector.dims", indexName)
}
