package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Elastic   ElasticConfig
	DuckDB    DuckDBConfig
	Store     StoreConfig
	Storage   StorageConfig
	AI        AIConfig
	Chunking  ChunkingConfig
	Ingestion IngestionConfig
	Retrieval RetrievalConfig
	Teaching  TeachingConfig
	Vision    VisionConfig
	Log       LogConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  []string
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string // postgres | sqlite
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	Path         string // sqlite 文件路径
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ElasticConfig Elasticsearch配置
type ElasticConfig struct {
	Host        string
	Username    string
	Password    string
	IndexPrefix string
}

// DuckDBConfig DuckDB 配置
type DuckDBConfig struct {
	Path string
}

// StoreConfig 知识库存储配置
type StoreConfig struct {
	Backend          string // pgvector | elastic | duckdb | memory
	FallbackUnranked bool   // 混合检索无命中时是否回退为按插入顺序返回
}

// StorageConfig 上传文件存储配置
type StorageConfig struct {
	Type      string // local | minio
	BasePath  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AIConfig AI配置
type AIConfig struct {
	Provider              string
	Temperature           float32
	EvaluationTemperature float32
	Timeout               int // 单次调用超时（秒）
	MaxRetries            int
	OpenAI                OpenAIConfig
	Alibaba               AlibabaConfig
	DeepSeek              DeepSeekConfig
	Embedding             EmbeddingConfig
}

// OpenAIConfig OpenAI配置
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AlibabaConfig 阿里云配置
type AlibabaConfig struct {
	AccessKeySecret string
	Model           string
}

// DeepSeekConfig DeepSeek配置
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// EmbeddingConfig Embedding配置
type EmbeddingConfig struct {
	Provider    string // openai | dashscope | ollama
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     int
	Dimensions  int
	BatchSize   int
	Concurrency int
}

// ChunkingConfig 分块配置
type ChunkingConfig struct {
	Engine       string // builtin | eino
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	HardCut      bool
}

// IngestionConfig 文档入库配置
type IngestionConfig struct {
	AllowedExtensions []string
	MaxUploadMB       int
	Workers           int
	EnrichConcurrency int
	QueueSize         int
	ProcessTimeout    int // 秒，单个文件的处理超时，0 表示不限制
	WatchDir          string
	WatchOwnerID      string
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK              int
	MaxTopK           int // 请求 top_k 的上限
	MaxKeywords       int
	ExpansionCacheTTL int // 秒，0 表示不缓存
}

// TeachingConfig 教学会话配置
type TeachingConfig struct {
	MaxQuestions  int
	TopK          int
	LockTTL       int // 秒
	QuickFeedback bool
	SuggestTopics int // 推荐主题数量
	SuggestSample int // 推荐主题时采样的知识块数量
}

// VisionConfig 图片 OCR 配置
type VisionConfig struct {
	Enabled         bool
	CredentialsFile string
}

// LogConfig 日志配置
type LogConfig struct {
	Mode string // development | production
}

var globalConfig *Config

// Load 加载配置
// 优先级: 环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("failed to read config: %w", err)
				}
			}
		}
	}

	v.SetEnvPrefix("NEXT_TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("config not loaded")
	}
	return globalConfig
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunkSize must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunkOverlap must be in [0, %d), got %d", c.Chunking.ChunkSize, c.Chunking.ChunkOverlap)
	}
	if c.Teaching.MaxQuestions < 1 {
		return fmt.Errorf("teaching.maxQuestions must be at least 1, got %d", c.Teaching.MaxQuestions)
	}
	if c.Retrieval.MaxTopK < 0 || (c.Retrieval.MaxTopK > 0 && c.Retrieval.TopK > c.Retrieval.MaxTopK) {
		return fmt.Errorf("retrieval.maxTopK must be at least retrieval.topK (%d), got %d", c.Retrieval.TopK, c.Retrieval.MaxTopK)
	}
	if c.AI.Embedding.Dimensions < 1 {
		return fmt.Errorf("ai.embedding.dimensions must be at least 1, got %d", c.AI.Embedding.Dimensions)
	}
	return nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes 上传大小上限（字节）
func (c *IngestionConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "next-tutor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.corsOrigins", []string{"*"})

	// Database
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "next_tutor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "./data/next-tutor.db")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Elastic
	v.SetDefault("elastic.host", "http://localhost:9200")
	v.SetDefault("elastic.username", "")
	v.SetDefault("elastic.password", "")
	v.SetDefault("elastic.indexPrefix", "next_tutor")

	// DuckDB
	v.SetDefault("duckdb.path", "./data/knowledge.duckdb")

	// Store
	v.SetDefault("store.backend", "pgvector")
	v.SetDefault("store.fallbackUnranked", true)

	// Storage
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.basePath", "./uploads")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKey", "")
	v.SetDefault("storage.secretKey", "")
	v.SetDefault("storage.bucket", "next-tutor")
	v.SetDefault("storage.useSSL", false)

	// AI
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.evaluationTemperature", 0.8)
	v.SetDefault("ai.timeout", 60)
	v.SetDefault("ai.maxRetries", 2)
	v.SetDefault("ai.openai.apiKey", "")
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.alibaba.accessKeySecret", "")
	v.SetDefault("ai.alibaba.model", "qwen-plus")
	v.SetDefault("ai.deepseek.apiKey", "")
	v.SetDefault("ai.deepseek.baseUrl", "https://api.deepseek.com/v1")
	v.SetDefault("ai.deepseek.model", "deepseek-chat")
	v.SetDefault("ai.embedding.provider", "openai")
	v.SetDefault("ai.embedding.model", "text-embedding-ada-002")
	v.SetDefault("ai.embedding.apiKey", "")
	v.SetDefault("ai.embedding.baseUrl", "")
	v.SetDefault("ai.embedding.timeout", 60)
	v.SetDefault("ai.embedding.dimensions", 1536)
	v.SetDefault("ai.embedding.batchSize", 64)
	v.SetDefault("ai.embedding.concurrency", 4)

	// Chunking
	v.SetDefault("chunking.engine", "builtin")
	v.SetDefault("chunking.chunkSize", 750)
	v.SetDefault("chunking.chunkOverlap", 150)
	v.SetDefault("chunking.separators", []string{"\n\n", "\n", ".", " "})
	v.SetDefault("chunking.hardCut", true)

	// Ingestion
	v.SetDefault("ingestion.allowedExtensions", []string{"pdf", "docx", "txt", "csv", "png", "jpg", "jpeg"})
	v.SetDefault("ingestion.maxUploadMB", 16)
	v.SetDefault("ingestion.workers", 4)
	v.SetDefault("ingestion.enrichConcurrency", 4)
	v.SetDefault("ingestion.queueSize", 64)
	v.SetDefault("ingestion.processTimeout", 600)
	v.SetDefault("ingestion.watchDir", "")
	v.SetDefault("ingestion.watchOwnerID", "")

	// Retrieval
	v.SetDefault("retrieval.topK", 6)
	v.SetDefault("retrieval.maxTopK", 50)
	v.SetDefault("retrieval.maxKeywords", 12)
	v.SetDefault("retrieval.expansionCacheTTL", 3600)

	// Teaching
	v.SetDefault("teaching.maxQuestions", 3)
	v.SetDefault("teaching.topK", 6)
	v.SetDefault("teaching.lockTTL", 120)
	v.SetDefault("teaching.quickFeedback", false)
	v.SetDefault("teaching.suggestTopics", 5)
	v.SetDefault("teaching.suggestSample", 20)

	// Vision
	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.credentialsFile", "")

	// Log
	v.SetDefault("log.mode", "development")
}
