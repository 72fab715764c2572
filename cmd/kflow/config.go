package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config configures the run command. Every key can be overridden by an
// environment variable: kafka.brokers becomes KFLOW_KAFKA_BROKERS.
type Config struct {
	Name            string        `mapstructure:"name"`
	Transform       string        `mapstructure:"transform"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Kafka           KafkaConfig   `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Group          string        `mapstructure:"group"`
	Input          string        `mapstructure:"input"`
	Output         string        `mapstructure:"output"`
	Format         string        `mapstructure:"format"`
	Partitions     int32         `mapstructure:"partitions"`
	CommitInterval time.Duration `mapstructure:"commit_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "kflow")
	v.SetDefault("transform", "identity")
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group", "kflow")
	v.SetDefault("kafka.input", "")
	v.SetDefault("kafka.output", "")
	v.SetDefault("kafka.format", "string")
	v.SetDefault("kafka.partitions", 1)
	v.SetDefault("kafka.commit_interval", 5*time.Second)
}

// LoadConfig reads path, if given, and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("KFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Kafka.Input == "" {
		return errors.New("kafka.input is required")
	}
	if c.Kafka.Output == "" {
		return errors.New("kafka.output is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if _, ok := transforms[c.Transform]; !ok {
		return fmt.Errorf("unknown transform %q", c.Transform)
	}
	if _, ok := formats[c.Kafka.Format]; !ok {
		return fmt.Errorf("unknown kafka.format %q", c.Kafka.Format)
	}
	return nil
}
