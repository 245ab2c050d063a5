package config

import (
	"testing"
	"time"
)

func TestLoad_RequiredMissing(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("DATABASE_URL未設定時はエラーを返すべき")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/favhub?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() がエラーを返した: %v", err)
	}

	if cfg.PollTick != 30*time.Second {
		t.Errorf("PollTick = %v, want 30s", cfg.PollTick)
	}
	if cfg.PollMaxConcurrent != 10 {
		t.Errorf("PollMaxConcurrent = %d, want 10", cfg.PollMaxConcurrent)
	}
	if cfg.InitialDelay != time.Minute {
		t.Errorf("InitialDelay = %v, want 1m", cfg.InitialDelay)
	}
	if cfg.NormalDelay != 15*time.Minute {
		t.Errorf("NormalDelay = %v, want 15m", cfg.NormalDelay)
	}
	if cfg.RateLimitDelay != 65*time.Minute {
		t.Errorf("RateLimitDelay = %v, want 65m", cfg.RateLimitDelay)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/favhub?sslmode=disable")
	t.Setenv("POLL_TICK", "10s")
	t.Setenv("POLL_MAX_CONCURRENT", "3")
	t.Setenv("POLL_RATELIMIT_DELAY", "2h")
	t.Setenv("TWITTER_CONSUMER_KEY", "ck")
	t.Setenv("TWITTER_CONSUMER_SECRET", "cs")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() がエラーを返した: %v", err)
	}

	if cfg.PollTick != 10*time.Second {
		t.Errorf("PollTick = %v, want 10s", cfg.PollTick)
	}
	if cfg.PollMaxConcurrent != 3 {
		t.Errorf("PollMaxConcurrent = %d, want 3", cfg.PollMaxConcurrent)
	}
	if cfg.RateLimitDelay != 2*time.Hour {
		t.Errorf("RateLimitDelay = %v, want 2h", cfg.RateLimitDelay)
	}
	if cfg.TwitterConsumerKey != "ck" {
		t.Errorf("TwitterConsumerKey = %q, want %q", cfg.TwitterConsumerKey, "ck")
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/favhub?sslmode=disable")
	t.Setenv("POLL_NORMAL_DELAY", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() がエラーを返した: %v", err)
	}

	if cfg.NormalDelay != 15*time.Minute {
		t.Errorf("不正な値の場合はデフォルトへフォールバックすべき: %v", cfg.NormalDelay)
	}
}
