package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is badgelinkd's process-level configuration: storage
// locations, quotas, and timing that the core session package takes
// as explicit arguments become runtime flag/env/file settings at
// this layer, sourced through viper.
type Config struct {
	DataDir           string        `mapstructure:"data_dir"`
	FsRoot            string        `mapstructure:"fs_root"`
	AppStoreQuotaMB   uint64        `mapstructure:"app_store_quota_mb"`
	RebootDelay       time.Duration `mapstructure:"reboot_delay"`
	FragmentQueueSize int           `mapstructure:"fragment_queue_size"`
	FrameBufferBytes  int           `mapstructure:"frame_buffer_bytes"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	LogLevel          string        `mapstructure:"log_level"`
}

func defaultConfig() Config {
	return Config{
		DataDir:           "./badgelinkd-data",
		FsRoot:            "./badgelinkd-data/fs",
		AppStoreQuotaMB:   16,
		RebootDelay:       200 * time.Millisecond,
		FragmentQueueSize: 16,
		FrameBufferBytes:  2048,
		MetricsAddr:       ":9090",
		LogLevel:          "info",
	}
}

func loadConfig(path string) (Config, error) {
	v := viper.New()
	cfg := defaultConfig()

	v.SetEnvPrefix("BADGELINKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only consults the environment for keys viper already
	// knows, so every Config key is bound explicitly.
	for _, key := range []string{"data_dir", "fs_root", "app_store_quota_mb", "reboot_delay",
		"fragment_queue_size", "frame_buffer_bytes", "metrics_addr", "log_level"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("badgelinkd")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
