package structures

import "time"

type Server struct {
	Host           string        `yaml:"host" validate:"required"`
	Port           int           `yaml:"port" validate:"required|uint|min:1"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type Persistence struct {
	FilePath     string        `yaml:"filePath" validate:"unixPath"`
	SaveInterval time.Duration `yaml:"saveInterval" validate:"min:0"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

// StorageConfig selects the raw event backend and the rollup backend.
// Rollup "same" keeps rollups next to the raw events.
type StorageConfig struct {
	Driver string `yaml:"driver" validate:"required|in:memory,postgres,sqlite3"`
	Rollup string `yaml:"rollup" validate:"in:same,redis"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"keyPrefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// StaticKey declares an API key by its SHA-256 hex hash. Raw keys never
// appear in configuration.
type StaticKey struct {
	Hash      string   `yaml:"hash"`
	OwnerID   string   `yaml:"ownerId"`
	Name      string   `yaml:"name"`
	Workspace string   `yaml:"workspace"`
	Domains   []string `yaml:"domains"`
	Disabled  bool     `yaml:"disabled"`
}

type AuthConfig struct {
	Source    string        `yaml:"source" validate:"required|in:static,database"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	CacheSize int           `yaml:"cacheSize"`
	Keys      []StaticKey   `yaml:"keys"`
}

type IngestConfig struct {
	MaxBatchSize int     `yaml:"maxBatchSize" validate:"required|min:1"`
	MaxBodySize  int64   `yaml:"maxBodySize" validate:"required|min:1"`
	RateLimit    float64 `yaml:"rateLimit"`
	RateBurst    int     `yaml:"rateBurst"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName     string
	Debug       bool
	Path        string
	WebServer   Server         `yaml:"webServer"`
	Persistence Persistence    `yaml:"persistence"`
	Logger      LoggerConfig   `yaml:"logger"`
	Storage     StorageConfig  `yaml:"storage"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Auth        AuthConfig     `yaml:"auth"`
	Ingest      IngestConfig   `yaml:"ingest"`
	Cache       CacheConfig    `yaml:"cache"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}
