package providers

import (
	"strings"
	"testing"
	"time"

	"crawlerd/internal/structures"

	"github.com/stretchr/testify/assert"
)

func validConfig() *structures.Config {
	return &structures.Config{
		WebServer: structures.Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Persistence: structures.Persistence{
			FilePath:     "/tmp/crawlerd.dat",
			SaveInterval: 30 * time.Second,
		},
		Logger: structures.LoggerConfig{
			Level: "info",
			Mode:  0644,
			Dir:   "/tmp/logs",
		},
		Storage: structures.StorageConfig{
			Driver: "memory",
			Rollup: "same",
		},
		Auth: structures.AuthConfig{
			Source:   "static",
			CacheTTL: time.Minute,
		},
		Ingest: structures.IngestConfig{
			MaxBatchSize: 1000,
			MaxBodySize:  5 << 20,
		},
	}
}

func TestConfigValidator_ValidConfig(t *testing.T) {
	v := NewCnfValidator(validConfig())
	assert.NoError(t, v.Validate())
}

func TestConfigValidator_EmptyHost(t *testing.T) {
	c := validConfig()
	c.WebServer.Host = ""
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_ZeroPort(t *testing.T) {
	c := validConfig()
	c.WebServer.Port = 0
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_EmptyLogLevel(t *testing.T) {
	c := validConfig()
	c.Logger.Level = ""
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_InvalidLogLevel(t *testing.T) {
	c := validConfig()
	c.Logger.Level = "verbose"
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_UnknownStorageDriver(t *testing.T) {
	c := validConfig()
	c.Storage.Driver = "mysql"
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_SQLDriverNeedsDSN(t *testing.T) {
	c := validConfig()
	c.Storage.Driver = "postgres"
	assert.Error(t, NewCnfValidator(c).Validate())

	c.Database.DSN = "postgres://localhost/crawlerd?sslmode=disable"
	assert.NoError(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_RedisRollupNeedsURL(t *testing.T) {
	c := validConfig()
	c.Storage.Rollup = "redis"
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_DatabaseAuthNeedsSQLDriver(t *testing.T) {
	c := validConfig()
	c.Auth.Source = "database"
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_StaticKeys(t *testing.T) {
	c := validConfig()
	c.Auth.Keys = []structures.StaticKey{{Hash: "not-a-hash", OwnerID: "owner"}}
	assert.Error(t, NewCnfValidator(c).Validate())

	c.Auth.Keys = []structures.StaticKey{{Hash: strings.Repeat("ab", 32)}}
	assert.Error(t, NewCnfValidator(c).Validate(), "owner is required")

	c.Auth.Keys = []structures.StaticKey{{Hash: strings.Repeat("ab", 32), OwnerID: "owner"}}
	assert.NoError(t, NewCnfValidator(c).Validate())
}
