//go:build !no_mqtt

package main

import (
	"log/slog"

	"meshdash/internal/dashboard"
	"meshdash/internal/mqtt"
)

type mqttStopper struct {
	publisher *mqtt.Publisher
}

func (m *mqttStopper) Stop() {
	if m.publisher != nil {
		m.publisher.Stop()
	}
}

func initMQTT(events *dashboard.EventBus, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	publisher, err := mqtt.NewPublisher(mqtt.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		ClientID:    cfg.MQTT.ClientID,

		ConnectTimeout: cfg.MQTT.ConnectTimeout,
	}, logger)
	if err != nil {
		logger.Error("mqtt publisher", "err", err)
		return &mqttStopper{}
	}
	publisher.Start(events)
	return &mqttStopper{publisher: publisher}
}
