package structures

import "time"

type Server struct {
	Host         string `yaml:"host" validate:"required"`
	Port         int    `yaml:"port" validate:"required|uint|min:1"`
	CommandToken string `yaml:"commandToken"`
}

// Persistence is only read by the memory driver; CnfValidator enforces it there.
type Persistence struct {
	FilePath     string        `yaml:"filePath"`
	SaveInterval time.Duration `yaml:"saveInterval"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
	// MaxSizeMB is the lumberjack rotation threshold, 0 keeps the lumberjack default.
	MaxSizeMB  int `yaml:"maxSizeMB"`
	MaxBackups int `yaml:"maxBackups"`
}

// LedgerConfig holds the reward constants. They are read once when the
// ledger is constructed and never change afterwards.
type LedgerConfig struct {
	Decimals             uint64 `yaml:"decimals" validate:"required|min:1"`
	ReferralBonus        uint64 `yaml:"referralBonus" validate:"required"`
	SecondsUntilInactive uint64 `yaml:"secondsUntilInactive" validate:"required|min:1"`
	Level1Rate           uint64 `yaml:"level1Rate"`
	Level2Rate           uint64 `yaml:"level2Rate"`
	PointsPerUnit        uint64 `yaml:"pointsPerUnit"`
	UnitDecimals         uint8  `yaml:"unitDecimals"`
	CycleCheckDepth      int    `yaml:"cycleCheckDepth"`
	MaxChainDepth        int    `yaml:"maxChainDepth"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"required|in:memory,leveldb,postgres,sqlite"`
	// DSN is the gorm DSN for postgres/sqlite and the directory for leveldb.
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type CentrifugoConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Key     string `yaml:"key"`
	Prefix  string `yaml:"prefix"`
}

type EventsConfig struct {
	JournalSize int              `yaml:"journalSize"`
	// ArchiveDir also carries the last seq across restarts.
	ArchiveDir  string           `yaml:"archiveDir" validate:"required"`
	FlushEvery  time.Duration    `yaml:"flushEvery"`
	QueueSize   int              `yaml:"queueSize"`
	Workers     int              `yaml:"workers"`
	LogSink     bool             `yaml:"logSink"`
	Redis       RedisConfig      `yaml:"redis"`
	Centrifugo  CentrifugoConfig `yaml:"centrifugo"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
	// TTL in seconds; entries are also keyed by ledger version.
	TTL int `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName     string
	Debug       bool
	Path        string
	Ledger      LedgerConfig  `yaml:"ledger"`
	Storage     StorageConfig `yaml:"storage"`
	Events      EventsConfig  `yaml:"events"`
	WebServer   Server        `yaml:"webServer"`
	Persistence Persistence   `yaml:"persistence"`
	Logger      LoggerConfig  `yaml:"logger"`
	Cache       CacheConfig   `yaml:"cache"`
	Metrics     MetricsConfig `yaml:"metrics"`
}
