package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	Device deviceConfig `yaml:"device"`
	MQTT   mqttConfig   `yaml:"mqtt"`
	Debug  bool         `yaml:"debug"`
}

type deviceConfig struct {
	Name           string        `yaml:"name"`
	Addr           string        `yaml:"addr"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

type mqttConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	// Defaults, overridden by whatever the file sets
	cfg := config{
		Device: deviceConfig{
			Name:           "MEATER",
			ConnectTimeout: 10 * time.Second,
			BackoffBase:    time.Second,
			BackoffMax:     30 * time.Second,
		},
		MQTT: mqttConfig{
			Broker:   "localhost",
			Port:     1883,
			ClientID: "meater-exporter",
			Topic:    "probes/meater",
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if cfg.Device.Name == "" && cfg.Device.Addr == "" {
		return nil, fmt.Errorf("either device.name or device.addr must be set")
	}
	if cfg.MQTT.Port <= 0 || cfg.MQTT.Port > 65535 {
		return nil, fmt.Errorf("invalid mqtt.port %d", cfg.MQTT.Port)
	}
	if cfg.MQTT.Topic == "" {
		return nil, fmt.Errorf("mqtt.topic must not be empty")
	}

	return &cfg, nil
}
