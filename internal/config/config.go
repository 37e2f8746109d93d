package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults returns a Config populated with the same fallback values the
// teacher's env-var loader used, adapted to the engine's domain.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       8080,
			GRPCPort:       9090,
			MaxConnections: 1000,
			ReadTimeout:    "30s",
			WriteTimeout:   "30s",
		},
		Engine: EngineConfig{
			DefaultReserveVersions: 16,
			BranchCacheSize:        1024,
			SnapshotBackend:        "local",
			WALSegmentSize:         256 * 1024 * 1024,
		},
		Storage: StorageConfig{
			DataDir:         "./data",
			Backend:         "local",
			CompressionType: "zstd",
			Local: LocalFSConfig{
				BasePath: "./data/snapshots",
			},
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		WAL: WALConfig{
			Dir:             "./data/wal",
			SegmentSize:     256 * 1024 * 1024,
			MaxSegments:     16,
			SyncPolicy:      "always",
			SyncInterval:    "1s",
			CompressionType: "zstd",
		},
		Auth: AuthConfig{
			Enabled:       true,
			JWTSecret:     "change-me",
			JWTIssuer:     "versionedkv",
			JWTExpiration: "24h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Load loads configuration from environment variables only, starting
// from Defaults(). Kept for parity with the teacher's env-only Load(),
// used when no config file is given.
func Load() (*Config, error) {
	cfg := Defaults()
	applyEnv(cfg)
	return cfg, cfg.Validate()
}

// LoadFile loads configuration from a YAML file, then overlays any set
// environment variables on top of it (env wins) -- the teacher's
// "file defaults + env overrides" pattern, just moved from env-only to
// file+env.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.Server.HTTPPort = getEnvInt("KV_HTTP_PORT", cfg.Server.HTTPPort)
	cfg.Server.GRPCPort = getEnvInt("KV_GRPC_PORT", cfg.Server.GRPCPort)
	cfg.Server.MaxConnections = getEnvInt("KV_MAX_CONNECTIONS", cfg.Server.MaxConnections)
	cfg.Server.ReadTimeout = getEnvString("KV_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvString("KV_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Engine.DefaultReserveVersions = getEnvInt("KV_DEFAULT_RESERVE_VERSIONS", cfg.Engine.DefaultReserveVersions)
	cfg.Engine.BranchCacheSize = getEnvInt("KV_BRANCH_CACHE_SIZE", cfg.Engine.BranchCacheSize)
	cfg.Engine.SnapshotBackend = getEnvString("KV_SNAPSHOT_BACKEND", cfg.Engine.SnapshotBackend)
	cfg.Engine.WALSegmentSize = getEnvInt64("KV_WAL_SEGMENT_SIZE", cfg.Engine.WALSegmentSize)

	cfg.Storage.DataDir = getEnvString("KV_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.Backend = getEnvString("KV_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.CompressionType = getEnvString("KV_STORAGE_COMPRESSION", cfg.Storage.CompressionType)
	cfg.Storage.Local.BasePath = getEnvString("KV_LOCAL_BASE_PATH", cfg.Storage.Local.BasePath)
	cfg.Storage.S3.Bucket = getEnvString("KV_S3_BUCKET", cfg.Storage.S3.Bucket)
	cfg.Storage.S3.Region = getEnvString("KV_S3_REGION", cfg.Storage.S3.Region)
	cfg.Storage.S3.AccessKeyID = getEnvString("KV_S3_ACCESS_KEY_ID", cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = getEnvString("KV_S3_SECRET_ACCESS_KEY", cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.S3.Endpoint = getEnvString("KV_S3_ENDPOINT", cfg.Storage.S3.Endpoint)

	cfg.WAL.Dir = getEnvString("KV_WAL_DIR", cfg.WAL.Dir)
	cfg.WAL.SegmentSize = getEnvInt64("KV_WAL_SEGMENT_SIZE", cfg.WAL.SegmentSize)
	cfg.WAL.MaxSegments = getEnvInt("KV_WAL_MAX_SEGMENTS", cfg.WAL.MaxSegments)
	cfg.WAL.SyncPolicy = getEnvString("KV_WAL_SYNC_POLICY", cfg.WAL.SyncPolicy)
	cfg.WAL.SyncInterval = getEnvString("KV_WAL_SYNC_INTERVAL", cfg.WAL.SyncInterval)
	cfg.WAL.CompressionType = getEnvString("KV_WAL_COMPRESSION", cfg.WAL.CompressionType)

	cfg.Auth.Enabled = getEnvBool("KV_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnvString("KV_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTIssuer = getEnvString("KV_JWT_ISSUER", cfg.Auth.JWTIssuer)
	cfg.Auth.JWTExpiration = getEnvString("KV_JWT_EXPIRATION", cfg.Auth.JWTExpiration)

	cfg.Logging.Level = getEnvString("KV_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvString("KV_LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.File = getEnvString("KV_LOG_FILE", cfg.Logging.File)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// String returns a pretty-printed JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}
	if c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}
	if c.Engine.SnapshotBackend != "local" && c.Engine.SnapshotBackend != "s3" {
		return fmt.Errorf("invalid snapshot backend: %s", c.Engine.SnapshotBackend)
	}
	if c.Engine.DefaultReserveVersions < 0 {
		return fmt.Errorf("invalid default reserve versions: %d", c.Engine.DefaultReserveVersions)
	}
	return nil
}
