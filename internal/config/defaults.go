// Package config provides configuration loading, defaults, and validation for
// the sitesim reaction-network simulator platform.
package config

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultGRPCHost = "0.0.0.0"
	DefaultGRPCPort = 9090

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "sitesim"
	DefaultDBMaxConns = 25

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "sitesim-group"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 10

	// DefaultSimVolume and DefaultSimTemperature match the reference
	// conditions used when a parameter file omits volume/temperature: a
	// unit reaction volume at temperature 298.
	DefaultSimVolume      = 1.0
	DefaultSimTemperature = 298.0
	DefaultSimLimitKind   = "time"
)

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}

	// ── gRPC ──────────────────────────────────────────────────────────────────
	if cfg.GRPC.Host == "" {
		cfg.GRPC.Host = DefaultGRPCHost
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.Mode == "" {
		cfg.Worker.Mode = "local"
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Simulation ────────────────────────────────────────────────────────────
	if cfg.Simulation.Volume == 0 {
		cfg.Simulation.Volume = DefaultSimVolume
	}
	if cfg.Simulation.Temperature == 0 {
		cfg.Simulation.Temperature = DefaultSimTemperature
	}
	if cfg.Simulation.ReferenceVolume == 0 {
		cfg.Simulation.ReferenceVolume = cfg.Simulation.Volume
	}
	if cfg.Simulation.ReferenceTemp == 0 {
		cfg.Simulation.ReferenceTemp = cfg.Simulation.Temperature
	}
	if cfg.Simulation.ResizeVolume == 0 {
		cfg.Simulation.ResizeVolume = 1
	}
	if cfg.Simulation.RescaleTemp == 0 {
		cfg.Simulation.RescaleTemp = 1
	}
	if cfg.Simulation.RingClosureFactor == 0 {
		cfg.Simulation.RingClosureFactor = 1
	}
	if cfg.Simulation.SimLimitKind == "" {
		cfg.Simulation.SimLimitKind = DefaultSimLimitKind
	}
}
