//go:build no_mqtt

package main

import (
	"log/slog"

	"meshdash/internal/dashboard"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *dashboard.EventBus, cfg *Config, logger *slog.Logger) *mqttStopper {
	if cfg.MQTT.Enabled {
		logger.Warn("mqtt enabled in config but not compiled in (no_mqtt)")
	}
	return &mqttStopper{}
}
