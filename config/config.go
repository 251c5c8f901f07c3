package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"family-emotions"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"family_emotions"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"fea"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// Claude API 配置
	ClaudeAPIKey      string  `env:"CLAUDE_API_KEY"`
	ClaudeBaseURL     string  `env:"CLAUDE_BASE_URL" envDefault:"https://api.anthropic.com"`
	ClaudeModel       string  `env:"CLAUDE_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	ClaudeMaxTokens   int     `env:"CLAUDE_MAX_TOKENS" envDefault:"1000"`
	ClaudeTemperature float64 `env:"CLAUDE_TEMPERATURE" envDefault:"0.7"`

	// 分析服务速率限制（provider 侧，与用户额度相互独立）
	ProviderRequestsPerMinute int `env:"PROVIDER_REQUESTS_PER_MINUTE" envDefault:"50"`
	ProviderRequestsPerDay    int `env:"PROVIDER_REQUESTS_PER_DAY" envDefault:"1000"`

	// 用户每日额度，统一按 UTC 零点重置
	DailyTranslationLimit int `env:"DAILY_TRANSLATION_LIMIT" envDefault:"10"`
	DailyCheckinLimit     int `env:"DAILY_CHECKIN_LIMIT" envDefault:"3"`

	// 分析结果缓存 TTL（秒）
	AnalysisCacheTTLSeconds int `env:"ANALYSIS_CACHE_TTL_SECONDS" envDefault:"3600"`

	// 打卡默认发送时间（UTC，逗号分隔的 HH:MM 列表，取第一个作为默认）
	CheckinSendTimes string `env:"CHECKIN_SEND_TIMES" envDefault:"09:00,18:00"`

	// 数据保留窗口（天）
	CheckinRetentionDays        int `env:"CHECKIN_RETENTION_DAYS" envDefault:"180"`
	FailedAnalysisRetentionDays int `env:"FAILED_ANALYSIS_RETENTION_DAYS" envDefault:"90"`

	// 前端投递 webhook，为空则只记录日志
	FrontendWebhookURL string `env:"FRONTEND_WEBHOOK_URL"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// OpenTelemetry 配置
	OTelEnabled  bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	SampleRatio  float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.ClaudeAPIKey == "" {
		if Cfg.IsProduction() {
			log.Fatal("CLAUDE_API_KEY is required in production")
		}
		log.Printf("WARN: CLAUDE_API_KEY is not set, analysis provider calls will fail")
	}

	if Cfg.DailyTranslationLimit <= 0 {
		log.Fatal("DAILY_TRANSLATION_LIMIT must be positive")
	}

	if Cfg.CheckinSendTimes == "" {
		log.Printf("WARN: CHECKIN_SEND_TIMES is empty, falling back to 18:00")
		Cfg.CheckinSendTimes = "18:00"
	}
}

// SendTimes 返回配置的打卡发送时间列表
func (c *Config) SendTimes() []string {
	parts := strings.Split(c.CheckinSendTimes, ",")
	times := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			times = append(times, t)
		}
	}
	return times
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
