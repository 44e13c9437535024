package config

import (
	"log"
	"os"
	"time"

	"RescueNet/pkg/cache"
	"RescueNet/pkg/logger"
	"RescueNet/pkg/notification"
	"RescueNet/pkg/util"
)

// Config is the process-wide configuration, loaded once from the environment.
type Config struct {
	Addr     string `env:"ADDR"`
	Mode     string `env:"MODE"`
	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`

	Log   logger.LogConfig
	Mail  notification.MailConfig
	Cache cache.Config

	// Dispatch tuning
	DeadlineWindow time.Duration `env:"DISPATCH_DEADLINE_WINDOW"`
	SweepInterval  time.Duration `env:"DISPATCH_SWEEP_INTERVAL"`
	SearchRadiiKm  []float64     `env:"DISPATCH_SEARCH_RADII_KM"`
	MaxCandidates  int           `env:"DISPATCH_MAX_CANDIDATES"`
	CreateRate     string        `env:"DISPATCH_CREATE_RATE"`
}

var GlobalConfig *Config

func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	GlobalConfig = &Config{
		Addr:     util.GetEnvDefault("ADDR", ":8080"),
		Mode:     util.GetEnv("MODE"),
		DBDriver: util.GetEnvDefault("DB_DRIVER", "mysql"),
		DSN:      util.GetEnv("DSN"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Mail: notification.MailConfig{
			Host:     util.GetEnv("MAIL_HOST"),
			Port:     int(util.GetIntEnv("MAIL_PORT")),
			Username: util.GetEnv("MAIL_USERNAME"),
			Password: util.GetEnv("MAIL_PASSWORD"),
			From:     util.GetEnv("MAIL_FROM"),
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "gocache"),
			Redis: cache.RedisConfig{
				Addr:         util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
				Password:     util.GetEnv("REDIS_PASSWORD"),
				DB:           int(util.GetIntEnv("REDIS_DB")),
				PoolSize:     int(util.GetIntEnv("REDIS_POOL_SIZE")),
				MinIdleConns: int(util.GetIntEnv("REDIS_MIN_IDLE_CONNS")),
				DialTimeout:  util.GetDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  util.GetDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: util.GetDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnv("LOCAL_CACHE_MAX_SIZE")),
				DefaultExpiration: util.GetDurationEnv("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnv("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		DeadlineWindow: util.GetDurationEnv("DISPATCH_DEADLINE_WINDOW", 2*time.Minute),
		SweepInterval:  util.GetDurationEnv("DISPATCH_SWEEP_INTERVAL", 30*time.Second),
		SearchRadiiKm:  util.GetFloatSliceEnv("DISPATCH_SEARCH_RADII_KM", []float64{1, 3, 5, 10}),
		MaxCandidates:  int(util.GetIntEnv("DISPATCH_MAX_CANDIDATES")),
		CreateRate:     util.GetEnvDefault("DISPATCH_CREATE_RATE", "10-M"),
	}
	return nil
}
