package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// 外部サービスのアプリケーション資格情報
	StackoverflowClientKey string
	TwitterConsumerKey     string
	TwitterConsumerSecret  string

	// Poll
	PollTick          time.Duration
	PollTimeout       time.Duration
	PollMaxConcurrent int

	// 次回実行までのモード別ディレイ
	InitialDelay   time.Duration
	NormalDelay    time.Duration
	RateLimitDelay time.Duration

	// エラー回数に応じた指数バックオフ
	ErrorBackoffBase time.Duration
	ErrorBackoffMax  time.Duration

	// ネットワークごとの送信レート制限
	NetworkRatePerSec float64
	NetworkBurst      int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StackoverflowClientKey = getEnvString("STACKOVERFLOW_CLIENT_KEY", "")
	cfg.TwitterConsumerKey = getEnvString("TWITTER_CONSUMER_KEY", "")
	cfg.TwitterConsumerSecret = getEnvString("TWITTER_CONSUMER_SECRET", "")

	cfg.PollTick = getEnvDuration("POLL_TICK", 30*time.Second)
	cfg.PollTimeout = getEnvDuration("POLL_TIMEOUT", 30*time.Second)
	cfg.PollMaxConcurrent = getEnvInt("POLL_MAX_CONCURRENT", 10)

	cfg.InitialDelay = getEnvDuration("POLL_INITIAL_DELAY", time.Minute)
	cfg.NormalDelay = getEnvDuration("POLL_NORMAL_DELAY", 15*time.Minute)
	// レート制限ディレイは各上流のクォータ窓（twitter 15分、github 60分）を
	// 上回る必要がある
	cfg.RateLimitDelay = getEnvDuration("POLL_RATELIMIT_DELAY", 65*time.Minute)

	cfg.ErrorBackoffBase = getEnvDuration("POLL_ERROR_BACKOFF_BASE", time.Minute)
	cfg.ErrorBackoffMax = getEnvDuration("POLL_ERROR_BACKOFF_MAX", 6*time.Hour)

	cfg.NetworkRatePerSec = getEnvFloat("NETWORK_RATE_PER_SEC", 1.0)
	cfg.NetworkBurst = getEnvInt("NETWORK_BURST", 5)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
