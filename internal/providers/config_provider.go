package providers

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"crawlerd/internal/structures"
)

const appName = "crawlerd"

var envBindings = map[string]string{
	"logger.level":             "CRAWLERD_LOG_LEVEL",
	"logger.dir":               "CRAWLERD_LOG_DIR",
	"webServer.host":           "CRAWLERD_HOST",
	"webServer.port":           "CRAWLERD_PORT",
	"storage.driver":           "CRAWLERD_STORAGE_DRIVER",
	"storage.rollup":           "CRAWLERD_STORAGE_ROLLUP",
	"database.dsn":             "CRAWLERD_DATABASE_DSN",
	"redis.url":                "CRAWLERD_REDIS_URL",
	"auth.source":              "CRAWLERD_AUTH_SOURCE",
	"auth.cacheTTL":            "CRAWLERD_AUTH_CACHE_TTL",
	"persistence.filePath":     "CRAWLERD_PERSISTENCE_PATH",
	"persistence.saveInterval": "CRAWLERD_SAVE_INTERVAL",
	"cache.enabled":            "CRAWLERD_CACHE_ENABLED",
	"cache.size":               "CRAWLERD_CACHE_SIZE",
	"cache.ttl":                "CRAWLERD_CACHE_TTL",
	"metrics.enabled":          "CRAWLERD_METRICS_ENABLED",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("webServer.readTimeout", 10*time.Second)
	v.SetDefault("webServer.writeTimeout", 10*time.Second)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.rollup", "same")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)
	v.SetDefault("redis.keyPrefix", "crawlerd:")
	v.SetDefault("redis.timeout", 2*time.Second)
	v.SetDefault("auth.source", "static")
	v.SetDefault("auth.cacheTTL", 60*time.Second)
	v.SetDefault("auth.cacheSize", 8)
	v.SetDefault("ingest.maxBatchSize", 1000)
	v.SetDefault("ingest.maxBodySize", 5<<20)
	v.SetDefault("cache.ttl", 30*time.Second)
}

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	v := viper.New()
	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = appName
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
