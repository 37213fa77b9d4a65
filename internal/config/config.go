// Package config は環境変数（と任意の.envファイル）からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// bcryptが受け付けるコストの範囲
const (
	minBcryptCost     = 4
	maxBcryptCost     = 31
	defaultBcryptCost = 10
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	TokenMaxAge          time.Duration
	TokenCleanupInterval time.Duration
	BcryptCost           int

	// Voting
	VoteRequireOpenWindow bool

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitVote    int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// source は環境変数を優先し、なければ.envファイルの値を返す。
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

// Load は環境変数からConfigを読み込む。
// dotenvFilesに指定した.envファイルは存在する場合のみ読み込み、
// 既に設定されている環境変数を上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load(dotenvFiles ...string) (*Config, error) {
	src := source{file: map[string]string{}}
	for _, path := range dotenvFiles {
		vals, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range vals {
			// 先に指定したファイルを優先
			if _, ok := src.file[k]; !ok {
				src.file[k] = v
			}
		}
	}

	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = src.get("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.TokenMaxAge = src.getDuration("TOKEN_MAX_AGE", 720*time.Hour)
	cfg.TokenCleanupInterval = src.getDuration("TOKEN_CLEANUP_INTERVAL", time.Hour)
	cfg.BcryptCost = src.getInt("BCRYPT_COST", defaultBcryptCost)
	if cfg.BcryptCost < minBcryptCost || cfg.BcryptCost > maxBcryptCost {
		cfg.BcryptCost = defaultBcryptCost
	}
	cfg.VoteRequireOpenWindow = src.getBool("VOTE_REQUIRE_OPEN_WINDOW", true)
	cfg.RateLimitGeneral = src.getPositiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitVote = src.getPositiveInt("RATE_LIMIT_VOTE", 10)
	cfg.ServerPort = src.getString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = src.getString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = src.getString("LOG_LEVEL", "info")

	return cfg, nil
}

func (s source) getString(key, defaultVal string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getPositiveInt(key string, defaultVal int) int {
	if i := s.getInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}

func (s source) getBool(key string, defaultVal bool) bool {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
