package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Elastic    ElasticConfig
	Vector     VectorConfig
	AI         AIConfig
	Evaluation EvaluationConfig
	Auth       AuthConfig
	Log        LogConfig
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
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string // postgres | sqlite
	Path         string // sqlite 文件路径
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置
type RedisConfig struct {
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

// VectorConfig 向量检索后端配置
type VectorConfig struct {
	Backend     string // elastic | pgvector
	VectorField string // ES 向量字段名
}

// AIConfig AI配置
type AIConfig struct {
	OpenAI    OpenAIConfig
	DashScope DashScopeConfig
	Ollama    OllamaConfig
	Embedding EmbeddingConfig
	Reranker  RerankerConfig
}

// OpenAIConfig OpenAI配置（生成与评审共用）
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// DashScopeConfig 阿里云 DashScope 配置
type DashScopeConfig struct {
	APIKey  string
	Timeout int
}

// OllamaConfig 本地 Ollama 配置
type OllamaConfig struct {
	BaseURL string
	Timeout int
}

// EmbeddingConfig Embedding配置
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    int
	Dimensions int
}

// RerankerConfig 交叉编码器重排服务配置
type RerankerConfig struct {
	Provider string // http | llm
	BaseURL  string
	APIKey   string
	Timeout  int
}

// EvaluationConfig 评估任务配置
type EvaluationConfig struct {
	Workers          int
	QueryConcurrency int
	Queue            string // memory | redis
	QueueKey         string
	QueueSize        int
	Pricing          map[string]ModelPrice
}

// ModelPrice 模型单价（美元 / 百万 tokens）
type ModelPrice struct {
	Input  float64
	Output float64
}

// AuthConfig 认证配置，JWTSecret 为空时不启用认证
type AuthConfig struct {
	JWTSecret string
}

// LogConfig 日志配置
type LogConfig struct {
	Mode string
}

var globalConfig *Config

// Load 加载配置
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("RAG_EVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
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

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
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

// PriceFor 返回模型单价，未配置时返回零值
func (c *EvaluationConfig) PriceFor(model string) ModelPrice {
	if c.Pricing == nil {
		return ModelPrice{}
	}
	// viper 会把 map key 转为小写
	if p, ok := c.Pricing[strings.ToLower(model)]; ok {
		return p
	}
	return ModelPrice{}
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "rag-eval")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", true)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "rag_eval.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "rageval")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Elastic
	v.SetDefault("elastic.host", "http://localhost:9200")
	v.SetDefault("elastic.indexPrefix", "rag_eval")

	// Vector
	v.SetDefault("vector.backend", "elastic")
	v.SetDefault("vector.vectorField", "embedding")

	// AI
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o")
	v.SetDefault("ai.openai.timeout", 60)
	v.SetDefault("ai.dashscope.timeout", 30)
	v.SetDefault("ai.ollama.baseUrl", "http://localhost:11434")
	v.SetDefault("ai.ollama.timeout", 10)
	v.SetDefault("ai.embedding.timeout", 30)
	v.SetDefault("ai.reranker.provider", "http")
	v.SetDefault("ai.reranker.timeout", 30)

	// Evaluation
	v.SetDefault("evaluation.workers", 1)
	v.SetDefault("evaluation.queryConcurrency", 1)
	v.SetDefault("evaluation.queue", "memory")
	v.SetDefault("evaluation.queueKey", "rag_eval:runs")
	v.SetDefault("evaluation.queueSize", 64)

	// Log
	v.SetDefault("log.mode", "development")
}
