package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 RagFlow 的完整配置结构。
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM 外部能力配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Ingest 文档摄取配置
	Ingest IngestConfig `yaml:"ingest" env:"INGEST"`

	// Retrieval 检索编排配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Memory 会话记忆配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Redis 会话记忆 Redis 后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Store 文档持久化配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Guardrails 护栏配置
	Guardrails GuardrailsConfig `yaml:"guardrails" env:"GUARDRAILS"`
}

// LogConfig 日志配置。
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// LLMConfig 外部能力配置。
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，兼容端点）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 补全模型
	Model string `yaml:"model" env:"MODEL"`
	// 嵌入模型
	EmbeddingModel string `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
	// 生成温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 补全最大 token 数
	MaxCompletionTokens int `yaml:"max_completion_tokens" env:"MAX_COMPLETION_TOKENS"`
	// 最大重试次数（指数退避）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 每秒请求上限
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// IngestConfig 文档摄取配置。
type IngestConfig struct {
	// 分块大小（tokens）
	ChunkTokens int `yaml:"chunk_tokens" env:"CHUNK_TOKENS"`
	// 相邻块重叠（tokens），须满足 0 <= overlap < chunk_tokens
	OverlapTokens int `yaml:"overlap_tokens" env:"OVERLAP_TOKENS"`
	// 单文档原始文本上限（字节）
	MaxTextBytes int `yaml:"max_text_bytes" env:"MAX_TEXT_BYTES"`
	// 支持的媒体类型
	SupportedMediaTypes []string `yaml:"supported_media_types" env:"SUPPORTED_MEDIA_TYPES"`
}

// RetrievalConfig 检索编排配置。
type RetrievalConfig struct {
	// 默认策略: basic, knowledge_graph, hybrid
	DefaultStrategy string `yaml:"default_strategy" env:"DEFAULT_STRATEGY"`
	// 证据 token 预算
	EvidenceTokenBudget int `yaml:"evidence_token_budget" env:"EVIDENCE_TOKEN_BUDGET"`
	// 相似度下限
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
	// 相似度度量: cosine, dot
	Metric string `yaml:"metric" env:"METRIC"`
	// 混合融合向量权重
	VectorWeight float64 `yaml:"vector_weight" env:"VECTOR_WEIGHT"`
	// 混合融合图权重
	GraphWeight float64 `yaml:"graph_weight" env:"GRAPH_WEIGHT"`
	// 图遍历最大跳数
	MaxHops int `yaml:"max_hops" env:"MAX_HOPS"`
	// 图遍历最大结果数
	MaxGraphResults int `yaml:"max_graph_results" env:"MAX_GRAPH_RESULTS"`
	// 是否启用网络搜索证据源
	EnableWebSearch bool `yaml:"enable_web_search" env:"ENABLE_WEB_SEARCH"`
}

// MemoryConfig 会话记忆配置。
type MemoryConfig struct {
	// 后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// 记忆窗口 token 预算
	TokenBudget int `yaml:"token_budget" env:"TOKEN_BUDGET"`
	// 会话空闲过期时间
	IdleExpiry time.Duration `yaml:"idle_expiry" env:"IDLE_EXPIRY"`
	// 兜底清扫间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// RedisConfig Redis 后端配置。
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 会话键 TTL；0 表示不过期，过期完全交给懒惰检查
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// StoreConfig 文档持久化配置。
type StoreConfig struct {
	// sqlite 数据库文件路径；":memory:" 表示内存库
	Path string `yaml:"path" env:"PATH"`
}

// GuardrailsConfig 护栏配置。
type GuardrailsConfig struct {
	// 输入长度上限（字符）
	MaxInputChars int `yaml:"max_input_chars" env:"MAX_INPUT_CHARS"`
	// 输出长度上限（字符）
	MaxOutputChars int `yaml:"max_output_chars" env:"MAX_OUTPUT_CHARS"`
	// 使用了证据时是否要求输出带引用
	RequireCitations bool `yaml:"require_citations" env:"REQUIRE_CITATIONS"`
	// 是否启用文档相关性规则
	EnableRelevanceRule bool `yaml:"enable_relevance_rule" env:"ENABLE_RELEVANCE_RULE"`
	// 关键词黑名单（命中即拦截输入）
	BlockedKeywords []string `yaml:"blocked_keywords" env:"BLOCKED_KEYWORDS"`
	// 相关性规则使用的已知主题列表
	RelevanceTopics []string `yaml:"relevance_topics" env:"RELEVANCE_TOPICS"`
}

// Loader 配置加载器（Builder 模式）。
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器。
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RAGFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀。
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器。
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置。优先级: 默认值 → YAML 文件 → 环境变量。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置。
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值。
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置。
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段。
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值。
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration。
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片。
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad 加载配置，失败时 panic。
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
