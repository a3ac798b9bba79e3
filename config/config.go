package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置，来自环境变量（可由 .env 文件提供）
type Config struct {
	BotToken    string
	SunoServers []string // 有序，至少一个
	EnvFile     string

	UserDailyLimit   int
	TempDir          string // 下载的音频文件目录
	HistoryFile      string
	HistoryLimit     int
	PollInterval     time.Duration
	PollTimeout      time.Duration
	ProgressInterval time.Duration
	ProbeTimeout     time.Duration

	HTTPAddr     string
	FileTokenTTL time.Duration

	LogLevel string
	LogFile  string

	// 额度存储: memory 或 redis
	QuotaBackend  string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 生成记录（MySQL，可选）
	RecordsEnabled bool
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string

	// MinIO 归档（MinioEndpoint 为空时关闭）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

const (
	QuotaBackendMemory = "memory"
	QuotaBackendRedis  = "redis"
)

var (
	ErrMissingToken   = errors.New("TELEGRAM_BOT_TOKEN is not set")
	ErrMissingServers = errors.New("no Suno API servers configured")
)

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

// Load 加载 .env（不覆盖已有环境变量）并读取配置
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	token := getEnv("TELEGRAM_BOT_TOKEN", "")
	if token == "" {
		token = getEnv("BOT_TOKEN", "")
	}

	return &Config{
		BotToken:    token,
		SunoServers: sunoServers(),
		EnvFile:     envFile,

		UserDailyLimit:   getEnvInt("USER_DAILY_LIMIT", 5),
		TempDir:          getEnv("TEMP_DIR", "temp_audio"),
		HistoryFile:      getEnv("HISTORY_FILE", "user_history.json"),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 10),
		PollInterval:     getEnvSeconds("POLL_INTERVAL_SEC", 5),
		PollTimeout:      getEnvSeconds("POLL_TIMEOUT_SEC", 300),
		ProgressInterval: getEnvSeconds("PROGRESS_INTERVAL_SEC", 30),
		ProbeTimeout:     getEnvSeconds("PROBE_TIMEOUT_SEC", 5),

		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		FileTokenTTL: getEnvSeconds("FILE_TOKEN_TTL_SEC", 3600),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		QuotaBackend:  strings.ToLower(getEnv("QUOTA_BACKEND", QuotaBackendMemory)),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RecordsEnabled: getEnvBool("RECORDS_ENABLED", false),
		DBHost:         getEnv("DB_HOST", "127.0.0.1"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBUser:         getEnv("DB_USER", "root"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         getEnv("DB_NAME", "sunobot"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "sunobot"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

// sunoServers 读取 SUNO_API_SERVERS（逗号分隔），否则按编号读取 SUNO_API_SERVER_1..N
func sunoServers() []string {
	if list := strings.TrimSpace(os.Getenv("SUNO_API_SERVERS")); list != "" {
		var out []string
		for _, s := range strings.Split(list, ",") {
			if s = strings.TrimRight(strings.TrimSpace(s), "/"); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	numbered := map[int]string{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "SUNO_API_SERVER_") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(key, "SUNO_API_SERVER_"))
		if err != nil || n < 1 {
			continue
		}
		if value = strings.TrimRight(strings.TrimSpace(value), "/"); value != "" {
			numbered[n] = value
		}
	}

	keys := make([]int, 0, len(numbered))
	for n := range numbered {
		keys = append(keys, n)
	}
	sort.Ints(keys)

	out := make([]string, 0, len(keys))
	for _, n := range keys {
		out = append(out, numbered[n])
	}
	return out
}

// Validate 检查启动必需的配置
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	if len(c.SunoServers) == 0 {
		return ErrMissingServers
	}
	if c.UserDailyLimit < 0 {
		return fmt.Errorf("USER_DAILY_LIMIT must be >= 0, got %d", c.UserDailyLimit)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be >= 1, got %d", c.HistoryLimit)
	}
	if c.PollInterval <= 0 || c.PollTimeout <= 0 || c.ProgressInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	switch c.QuotaBackend {
	case QuotaBackendMemory, QuotaBackendRedis:
	default:
		return fmt.Errorf("unknown QUOTA_BACKEND %q", c.QuotaBackend)
	}
	return nil
}

// MinioEnabled 是否配置了 MinIO 归档
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}
