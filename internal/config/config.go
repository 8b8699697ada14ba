package config

import (
	"log"

	"gopkg.in/yaml.v3"

	"habitsync/pkg/config"
)

type Config struct {
	Server config.ServerConfig `yaml:"server"`
	Remote config.RemoteConfig `yaml:"remote"`
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
}

func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	// Environment overrides win over file configuration.
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideRemoteFromEnv(&cfg.Remote)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)

	return &cfg
}
