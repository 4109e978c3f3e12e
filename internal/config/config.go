// Package config loads service configuration with viper. Values come from an
// optional config.yaml and are overridden by environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"wagering_service/internal/wagering"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Log        LogConfig        `mapstructure:"log"`
	Platform   PlatformConfig   `mapstructure:"platform"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration. A non-empty DSN
// wins over the individual fields.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig is optional; an empty Addr disables the Redis publisher and
// cross-process settings invalidation.
type RedisConfig struct {
	Addr            string `mapstructure:"addr"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	BalanceChannel  string `mapstructure:"balance_channel"`
	SettingsChannel string `mapstructure:"settings_channel"`
}

type SettlementConfig struct {
	CommitTimeout time.Duration `mapstructure:"commit_timeout"`
	LockTimeout   time.Duration `mapstructure:"lock_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// PlatformConfig seeds the settings row when the table is empty. Rates are
// decimal strings.
type PlatformConfig struct {
	DepositWRMultiplier     int64  `mapstructure:"deposit_wr_multiplier"`
	BonusWRMultiplier       int64  `mapstructure:"bonus_wr_multiplier"`
	FreeSpinWRMultiplier    int64  `mapstructure:"free_spin_wr_multiplier"`
	AvgFreeSpinWinValue     int64  `mapstructure:"avg_free_spin_win_value"`
	JackpotContributionRate string `mapstructure:"jackpot_contribution_rate"`
	VIPPointsPerWager       string `mapstructure:"vip_points_per_wager"`
	VIPPointsPerWin         string `mapstructure:"vip_points_per_win"`
}

// ConnString returns the PostgreSQL connection string.
func (d *DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name,
	)
}

// Settings converts the seed values into wagering settings.
func (p PlatformConfig) Settings() (wagering.Settings, error) {
	jackpot, err := decimal.NewFromString(p.JackpotContributionRate)
	if err != nil {
		return wagering.Settings{}, fmt.Errorf("invalid platform.jackpot_contribution_rate: %w", err)
	}
	perWager, err := decimal.NewFromString(p.VIPPointsPerWager)
	if err != nil {
		return wagering.Settings{}, fmt.Errorf("invalid platform.vip_points_per_wager: %w", err)
	}
	perWin, err := decimal.NewFromString(p.VIPPointsPerWin)
	if err != nil {
		return wagering.Settings{}, fmt.Errorf("invalid platform.vip_points_per_win: %w", err)
	}
	s := wagering.Settings{
		DepositWRMultiplier:     p.DepositWRMultiplier,
		BonusWRMultiplier:       p.BonusWRMultiplier,
		FreeSpinWRMultiplier:    p.FreeSpinWRMultiplier,
		AvgFreeSpinWinValue:     p.AvgFreeSpinWinValue,
		JackpotContributionRate: jackpot,
		VIPPointsPerWager:       perWager,
		VIPPointsPerWin:         perWin,
	}
	if err := s.Validate(); err != nil {
		return wagering.Settings{}, fmt.Errorf("invalid platform settings: %w", err)
	}
	return s, nil
}

// Load reads config.yaml from configPath, the working directory or ./config.
// A missing file is fine; env vars such as DATABASE_DSN or SERVER_ADDR can
// provide everything.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Settlement.MaxRetries < 0 {
		return nil, fmt.Errorf("settlement.max_retries must be >= 0, got %d", cfg.Settlement.MaxRetries)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	// DSN is bound explicitly so AutomaticEnv sees DATABASE_DSN during Unmarshal.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "wagering")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.balance_channel", "wagering:balance_changed")
	v.SetDefault("redis.settings_channel", "wagering:settings_changed")

	v.SetDefault("settlement.commit_timeout", "3s")
	v.SetDefault("settlement.lock_timeout", "5s")
	v.SetDefault("settlement.max_retries", 3)
	v.SetDefault("settlement.retry_delay", "10ms")
	v.SetDefault("settlement.max_retry_delay", "200ms")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("platform.deposit_wr_multiplier", 1)
	v.SetDefault("platform.bonus_wr_multiplier", 35)
	v.SetDefault("platform.free_spin_wr_multiplier", 40)
	v.SetDefault("platform.avg_free_spin_win_value", 20)
	v.SetDefault("platform.jackpot_contribution_rate", "0")
	v.SetDefault("platform.vip_points_per_wager", "0.01")
	v.SetDefault("platform.vip_points_per_win", "0")
}
