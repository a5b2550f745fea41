// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 它在进程启动时构建一次，并通过构造函数注入到各组件中。
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Rerank      RerankConfig      `mapstructure:"rerank"`
	Chunking    ChunkingConfig    `mapstructure:"chunking"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Tika        TikaConfig        `mapstructure:"tika"`
	Seed        SeedConfig        `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储关系库与 Redis 的配置。
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // sqlite | mysql
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用 Embedding 缓存。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig 决定原始文件保存在本地目录还是 MinIO。
type StorageConfig struct {
	Backend      string      `mapstructure:"backend"` // local | minio
	DocumentsDir string      `mapstructure:"documents_dir"`
	MinIO        MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// VectorStoreConfig 选择向量库后端。
type VectorStoreConfig struct {
	Backend       string              `mapstructure:"backend"` // local | elasticsearch
	PersistDir    string              `mapstructure:"persist_dir"`
	Collection    string              `mapstructure:"collection"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	BatchSize      int    `mapstructure:"batch_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	CacheTTLHours  int    `mapstructure:"cache_ttl_hours"`
}

// RerankConfig 存储 Rerank 模型相关的配置。
type RerankConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ChunkingConfig 控制切片窗口大小与重叠（单位：空白分隔的 token）。
type ChunkingConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Overlap   int `mapstructure:"overlap"`
}

// RetrievalConfig 控制检索阶段的候选数量。
// 请求的 limit 会被截断到 MaxLimit，向量召回的候选数不超过 MaxCandidates。
type RetrievalConfig struct {
	CandidateMultiplier int `mapstructure:"candidate_multiplier"`
	DefaultLimit        int `mapstructure:"default_limit"`
	MaxLimit            int `mapstructure:"max_limit"`
	MaxCandidates       int `mapstructure:"max_candidates"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布文档事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置，仅用于旧版 .doc 文件。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SeedConfig 指定启动时导入的系统预置文档目录。
type SeedConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load 从指定路径读取 YAML 配置，并允许 CDAS_ 前缀的环境变量覆盖。
// 配置文件不存在时仅使用默认值与环境变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CDAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只包含默认值的配置，主要用于测试。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 检查配置中不可恢复的错误。
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions 必须为正数, 当前值: %d", c.Embedding.Dimensions)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size 必须为正数, 当前值: %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap 不能为负数, 当前值: %d", c.Chunking.Overlap)
	}
	if c.Retrieval.MaxLimit <= 0 || c.Retrieval.MaxCandidates <= 0 {
		return fmt.Errorf("retrieval.max_limit 与 retrieval.max_candidates 必须为正数, 当前值: %d, %d",
			c.Retrieval.MaxLimit, c.Retrieval.MaxCandidates)
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("不支持的 database.driver: %q", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case "local", "minio":
	default:
		return fmt.Errorf("不支持的 storage.backend: %q", c.Storage.Backend)
	}
	switch c.VectorStore.Backend {
	case "local", "elasticsearch":
	default:
		return fmt.Errorf("不支持的 vector_store.backend: %q", c.VectorStore.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./storage/cdas.db")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.documents_dir", "./storage/documents")
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.access_key_id", "")
	v.SetDefault("storage.minio.secret_access_key", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket_name", "cdas-documents")

	v.SetDefault("vector_store.backend", "local")
	v.SetDefault("vector_store.persist_dir", "./storage/chroma")
	v.SetDefault("vector_store.collection", "cdas-documents")
	v.SetDefault("vector_store.elasticsearch.addresses", "")
	v.SetDefault("vector_store.elasticsearch.username", "")
	v.SetDefault("vector_store.elasticsearch.password", "")
	v.SetDefault("vector_store.elasticsearch.index_name", "cdas-documents")

	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.siliconflow.cn/v1")
	v.SetDefault("embedding.model", "BAAI/bge-large-zh-v1.5")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout_seconds", 60)
	v.SetDefault("embedding.cache_ttl_hours", 168)

	v.SetDefault("rerank.api_key", "")
	v.SetDefault("rerank.base_url", "https://api.siliconflow.cn/v1")
	v.SetDefault("rerank.model", "BAAI/bge-reranker-v2-m3")
	v.SetDefault("rerank.timeout_seconds", 60)

	v.SetDefault("chunking.chunk_size", 800)
	v.SetDefault("chunking.overlap", 200)

	v.SetDefault("retrieval.candidate_multiplier", 3)
	v.SetDefault("retrieval.default_limit", 10)
	v.SetDefault("retrieval.max_limit", 100)
	v.SetDefault("retrieval.max_candidates", 1000)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "cdas-document-events")

	v.SetDefault("tika.server_url", "")
	v.SetDefault("tika.timeout_seconds", 60)

	v.SetDefault("seed.dir", "")
}
