package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTLHour int
	TurnLockSec    int

	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int
	SurveyDelaySec   int
	NotifyMaxRetry   int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaRetryMax int
	KafkaWriteMS  int
	KafkaEnabled  bool

	LLMPrimaryURL    string
	LLMPrimaryKey    string
	LLMPrimaryModel  string
	LLMFallbackURL   string
	LLMFallbackKey   string
	LLMFallbackModel string
	LLMTimeoutMS     int
	LLMMaxTokens     int

	LineAPIURL          string
	LineChannelToken    string
	LineChannelSecret   string
	FacebookAPIURL      string
	FacebookPageToken   string
	FacebookVerifyToken string
	OversightGroupID    string
	OfficerWebURL       string
	SurveyBaseURL       string
	MediaDir            string
	MediaBaseURL        string

	TokenSecret string
	TokenTTLMin int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	cfg := Config{
		Env:              strings.TrimSpace(os.Getenv("ENV")),
		ServiceName:      serviceNameDefault,
		HTTPPort:         httpPortDefault,
		LogLevel:         "info",
		RequestTimeoutMS: 30000,
		DBMaxConns:       10,
		DBMinConns:       1,
		DBConnMaxIdleSec: 300,
		DBConnMaxLifeSec: 1800,
		SessionTTLHour:   24,
		TurnLockSec:      30,
		AsynqQueue:       "notifications",
		AsynqConcurrency: 10,
		SurveyDelaySec:   60,
		NotifyMaxRetry:   5,
		KafkaRetryMax:    5,
		KafkaWriteMS:     5000,
		LLMTimeoutMS:     3000,
		LLMMaxTokens:     500,
		LLMPrimaryModel:  "gemini-2.0-flash",
		LLMFallbackModel: "claude-haiku-4-5-20251001",
		LineAPIURL:       "https://api.line.me",
		FacebookAPIURL:   "https://graph.facebook.com",
		MediaDir:         "./media",
		TokenTTLMin:      30,
		OtelInsecure:     true,
		OtelSampleRatio:  1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := cfg.Env != ""

	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be >= 0"})
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.SessionTTLHour <= 0 {
		problems = append(problems, Problem{Field: "SESSION_TTL_HOURS", Message: "SESSION_TTL_HOURS must be > 0"})
		cfg.SessionTTLHour = 24
	}
	if cfg.TurnLockSec <= 0 {
		problems = append(problems, Problem{Field: "TURN_LOCK_SECONDS", Message: "TURN_LOCK_SECONDS must be > 0"})
		cfg.TurnLockSec = 30
	}
	if cfg.SurveyDelaySec <= 0 {
		problems = append(problems, Problem{Field: "SURVEY_DELAY_SECONDS", Message: "SURVEY_DELAY_SECONDS must be > 0"})
		cfg.SurveyDelaySec = 60
	}
	if cfg.LLMTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "LLM_TIMEOUT_MS", Message: "LLM_TIMEOUT_MS must be > 0"})
		cfg.LLMTimeoutMS = 3000
	}
	if cfg.LLMMaxTokens <= 0 {
		problems = append(problems, Problem{Field: "LLM_MAX_TOKENS", Message: "LLM_MAX_TOKENS must be > 0"})
		cfg.LLMMaxTokens = 500
	}
	if cfg.TokenTTLMin <= 0 {
		problems = append(problems, Problem{Field: "TOKEN_TTL_MINUTES", Message: "TOKEN_TTL_MINUTES must be > 0"})
		cfg.TokenTTLMin = 30
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be in [0,1]"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func applyEnv(cfg *Config, problems *[]Problem) {
	setString(&cfg.ServiceName, "SERVICE_NAME")
	setInt(&cfg.HTTPPort, "HTTP_PORT", problems)
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setInt(&cfg.RequestTimeoutMS, "REQUEST_TIMEOUT_MS", problems)

	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setInt(&cfg.DBMaxConns, "DB_MAX_CONNS", problems)
	setInt(&cfg.DBMinConns, "DB_MIN_CONNS", problems)
	setInt(&cfg.DBConnMaxIdleSec, "DB_CONN_MAX_IDLE_SECONDS", problems)
	setInt(&cfg.DBConnMaxLifeSec, "DB_CONN_MAX_LIFE_SECONDS", problems)

	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB", problems)
	setInt(&cfg.SessionTTLHour, "SESSION_TTL_HOURS", problems)
	setInt(&cfg.TurnLockSec, "TURN_LOCK_SECONDS", problems)

	setString(&cfg.AsynqRedisAddr, "ASYNQ_REDIS_ADDR")
	setString(&cfg.AsynqRedisPass, "ASYNQ_REDIS_PASSWORD")
	setInt(&cfg.AsynqRedisDB, "ASYNQ_REDIS_DB", problems)
	setString(&cfg.AsynqQueue, "ASYNQ_QUEUE")
	setInt(&cfg.AsynqConcurrency, "ASYNQ_CONCURRENCY", problems)
	setInt(&cfg.SurveyDelaySec, "SURVEY_DELAY_SECONDS", problems)
	setInt(&cfg.NotifyMaxRetry, "NOTIFY_MAX_RETRY", problems)

	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		cfg.KafkaBrokers = parseCSV(raw)
	}
	setString(&cfg.KafkaClientID, "KAFKA_CLIENT_ID")
	setInt(&cfg.KafkaRetryMax, "KAFKA_RETRY_MAX", problems)
	setInt(&cfg.KafkaWriteMS, "KAFKA_WRITE_TIMEOUT_MS", problems)
	setBool(&cfg.KafkaEnabled, "KAFKA_ENABLED", problems)

	setString(&cfg.LLMPrimaryURL, "LLM_PRIMARY_URL")
	setString(&cfg.LLMPrimaryKey, "LLM_PRIMARY_API_KEY")
	setString(&cfg.LLMPrimaryModel, "LLM_PRIMARY_MODEL")
	setString(&cfg.LLMFallbackURL, "LLM_FALLBACK_URL")
	setString(&cfg.LLMFallbackKey, "LLM_FALLBACK_API_KEY")
	setString(&cfg.LLMFallbackModel, "LLM_FALLBACK_MODEL")
	setInt(&cfg.LLMTimeoutMS, "LLM_TIMEOUT_MS", problems)
	setInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS", problems)

	setString(&cfg.LineAPIURL, "LINE_API_URL")
	setString(&cfg.LineChannelToken, "LINE_CHANNEL_TOKEN")
	setString(&cfg.LineChannelSecret, "LINE_CHANNEL_SECRET")
	setString(&cfg.FacebookAPIURL, "FACEBOOK_API_URL")
	setString(&cfg.FacebookPageToken, "FACEBOOK_PAGE_TOKEN")
	setString(&cfg.FacebookVerifyToken, "FACEBOOK_VERIFY_TOKEN")
	setString(&cfg.OversightGroupID, "OVERSIGHT_GROUP_ID")
	setString(&cfg.OfficerWebURL, "OFFICER_WEB_URL")
	setString(&cfg.SurveyBaseURL, "SURVEY_BASE_URL")
	setString(&cfg.MediaDir, "MEDIA_DIR")
	setString(&cfg.MediaBaseURL, "MEDIA_BASE_URL")

	setString(&cfg.TokenSecret, "TOKEN_SECRET")
	setInt(&cfg.TokenTTLMin, "TOKEN_TTL_MINUTES", problems)

	setBool(&cfg.OtelEnabled, "OTEL_ENABLED", problems)
	setString(&cfg.OtelEndpoint, "OTEL_ENDPOINT")
	setBool(&cfg.OtelInsecure, "OTEL_INSECURE", problems)
	setFloat(&cfg.OtelSampleRatio, "OTEL_SAMPLE_RATIO", problems)
}

func setString(dst *string, key string) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		*dst = raw
	}
}

func setInt(dst *int, key string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dst = v
}

func setBool(dst *bool, key string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
	}
}

func setFloat(dst *float64, key string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
		return
	}
	*dst = v
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
