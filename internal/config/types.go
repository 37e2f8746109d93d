package config

// Config holds configuration for the kv-server and kvctl binaries.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	WAL     WALConfig     `yaml:"wal" json:"wal"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP and gRPC front doors.
type ServerConfig struct {
	HTTPPort       int    `yaml:"http_port" json:"http_port"`
	GRPCPort       int    `yaml:"grpc_port" json:"grpc_port"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
	ReadTimeout    string `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout" json:"write_timeout"`
}

// EngineConfig tunes internal/engine behavior. Grounded on spec.md's
// branch/version/prune operations rather than the teacher's tenant
// ingestion path.
type EngineConfig struct {
	// DefaultReserveVersions is loaded and validated but not passed to the
	// engine; Prune with no explicit reserve uses the engine's own default.
	DefaultReserveVersions int `yaml:"default_reserve_versions" json:"default_reserve_versions"`
	// BranchCacheSize is passed to internal/catalog as Config.CacheSize,
	// which the catalog does not read.
	BranchCacheSize int `yaml:"branch_cache_size" json:"branch_cache_size"`
	// SnapshotBackend is validated as "local" or "s3"; kv-server picks the
	// checkpoint store from StorageConfig.Backend, not from this field.
	SnapshotBackend string `yaml:"snapshot_backend" json:"snapshot_backend"`
	// WALSegmentSize is loaded but not read; the WAL's segment size comes
	// from WALConfig.SegmentSize.
	WALSegmentSize int64 `yaml:"wal_segment_size" json:"wal_segment_size"`
}

// StorageConfig selects and configures the snapshot/checkpoint backend.
type StorageConfig struct {
	DataDir         string          `yaml:"data_dir" json:"data_dir"`
	Backend         string          `yaml:"backend" json:"backend"` // "local" or "s3"
	CompressionType string          `yaml:"compression_type" json:"compression_type"`
	Local           LocalFSConfig   `yaml:"local" json:"local"`
	S3              S3Config        `yaml:"s3" json:"s3"`
}

// LocalFSConfig for local-filesystem checkpoint storage.
type LocalFSConfig struct {
	BasePath string `yaml:"base_path" json:"base_path"`
}

// S3Config for S3-backed checkpoint storage.
type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
}

// WALConfig for the engine's write-ahead log.
type WALConfig struct {
	Dir             string `yaml:"dir" json:"dir"`
	SegmentSize     int64  `yaml:"segment_size" json:"segment_size"`
	MaxSegments     int    `yaml:"max_segments" json:"max_segments"`
	SyncPolicy      string `yaml:"sync_policy" json:"sync_policy"` // always, batch, periodic
	SyncInterval    string `yaml:"sync_interval" json:"sync_interval"`
	CompressionType string `yaml:"compression_type" json:"compression_type"` // none, zstd
}

// AuthConfig for the HTTP/gRPC front door's bearer-token auth.
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	JWTSecret     string `yaml:"jwt_secret" json:"jwt_secret"`
	JWTIssuer     string `yaml:"jwt_issuer" json:"jwt_issuer"`
	JWTExpiration string `yaml:"jwt_expiration" json:"jwt_expiration"`
}

// LoggingConfig for the stdlib-backed logger (see internal/config doc
// in SPEC_FULL.md §1.2 for why this stays on log, not a third-party lib).
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"` // debug, info, warn, error
	Output string `yaml:"output" json:"output"` // stdout, file
	File   string `yaml:"file" json:"file"`
}
