package providers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"referrald/internal/structures"
)

func setLedgerDefaults(v *viper.Viper) {
	v.SetDefault("ledger.decimals", 10000)
	v.SetDefault("ledger.referralBonus", 2000)
	v.SetDefault("ledger.secondsUntilInactive", 30*24*60*60)
	v.SetDefault("ledger.level1Rate", 7500)
	v.SetDefault("ledger.level2Rate", 2500)
	v.SetDefault("ledger.pointsPerUnit", 1000)
	v.SetDefault("ledger.unitDecimals", 18)
	v.SetDefault("ledger.cycleCheckDepth", 2)
	v.SetDefault("ledger.maxChainDepth", 64)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("events.journalSize", 4096)
	v.SetDefault("events.archiveDir", "data/events")
	v.SetDefault("events.flushEvery", "30s")
	v.SetDefault("events.queueSize", 1024)
	v.SetDefault("events.workers", 2)
	v.SetDefault("events.redis.channel", "referral.events")
	v.SetDefault("events.centrifugo.prefix", "referral")
	v.SetDefault("cache.ttl", 5)
}

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config
	v := viper.New()

	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")

	setLedgerDefaults(v)

	_ = v.BindEnv("logger.level", "RLD_LOG_LEVEL")
	_ = v.BindEnv("storage.driver", "RLD_STORAGE_DRIVER")
	_ = v.BindEnv("storage.dsn", "RLD_STORAGE_DSN")
	_ = v.BindEnv("persistence.saveInterval", "RLD_SAVE_INTERVAL")
	_ = v.BindEnv("cache.enabled", "RLD_CACHE_ENABLED")
	_ = v.BindEnv("cache.size", "RLD_CACHE_SIZE")
	_ = v.BindEnv("events.redis.addr", "RLD_REDIS_ADDR")
	_ = v.BindEnv("webServer.commandToken", "RLD_COMMAND_TOKEN")

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

	conf.AppName = "ReferralLedgerDaemon"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
