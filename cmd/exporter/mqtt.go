package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/matze/meater"
)

const publishTimeout = 5 * time.Second

// telemetry is the JSON payload published for every reading
type telemetry struct {
	Timestamp       time.Time `json:"timestamp"`
	TipCelsius      float64   `json:"tip_c"`
	AmbientCelsius  float64   `json:"ambient_c"`
	BatteryFraction float64   `json:"battery"`
}

// health is the retained JSON payload mirroring the link state
type health struct {
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// publisher forwards session events to an MQTT broker
type publisher struct {
	client mqtt.Client
	cfg    mqttConfig
	logger meater.Logger
}

func newPublisher(cfg mqttConfig, logger meater.Logger) *publisher {
	p := &publisher{
		cfg:    cfg,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Infof("mqtt connected to %s:%d", cfg.Broker, cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warnf("mqtt connection lost: %s", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// connect waits for the initial broker connection, honoring ctx
func (p *publisher) connect(ctx context.Context) error {
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (p *publisher) publishReading(r meater.Reading) error {
	return p.publish(p.cfg.Topic+"/telemetry", false, telemetry{
		Timestamp:       r.TimeStamp,
		TipCelsius:      r.TemperatureTip,
		AmbientCelsius:  r.TemperatureAmbient,
		BatteryFraction: r.BatteryFraction,
	})
}

func (p *publisher) publishState(status meater.ConnectionStatus) error {
	h := health{
		State:     status.State.String(),
		ChangedAt: time.Now(),
	}
	if status.Error != nil {
		h.Error = status.Error.Error()
	}

	// Retained so late subscribers see the current link state
	return p.publish(p.cfg.Topic+"/health", true, h)
}

func (p *publisher) publish(topic string, retained bool, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	token := p.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

func (p *publisher) close() {
	p.client.Disconnect(250)
	p.logger.Infof("mqtt disconnected")
}
