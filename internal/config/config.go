package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type GridConfig struct {
	Cluster struct {
		Addresses   []string      `mapstructure:"addresses"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
	} `mapstructure:"cluster"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func Load(path string) (*GridConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("cluster.addresses", []string{"127.0.0.1:10800"})
	v.SetDefault("cluster.dial_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg GridConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
