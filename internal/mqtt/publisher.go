package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"enviroscan-backend/internal/models"
	"enviroscan-backend/internal/sensor"
)

// TokenPublisher is the part of the paho client the Publisher needs
type TokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher forwards readings from a channel to the broker
type Publisher struct {
	client TokenPublisher

	// Input channel (written by the acquisition service)
	ReadingChan <-chan *models.Reading

	readingTopic   string // e.g., "enviroscan/{device_id}/reading"
	qos            byte
	publishTimeout time.Duration
}

// PublisherConfig holds configuration for the MQTT publisher
type PublisherConfig struct {
	ReadingTopic   string // e.g., "enviroscan/{device_id}/reading"
	QoS            byte
	PublishTimeout time.Duration
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		ReadingTopic:   "enviroscan/{device_id}/reading",
		QoS:            1,
		PublishTimeout: 5 * time.Second,
	}
}

// NewPublisher creates a publisher reading from readingChan
func NewPublisher(client TokenPublisher, config PublisherConfig, readingChan <-chan *models.Reading) *Publisher {
	if config.ReadingTopic == "" {
		config.ReadingTopic = DefaultPublisherConfig().ReadingTopic
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultPublisherConfig().PublishTimeout
	}
	return &Publisher{
		client:         client,
		ReadingChan:    readingChan,
		readingTopic:   config.ReadingTopic,
		qos:            config.QoS,
		publishTimeout: config.PublishTimeout,
	}
}

// Start publishes readings until the context is cancelled or the channel closes
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return

		case reading, ok := <-p.ReadingChan:
			if !ok {
				log.Println("MQTT Publisher: Reading channel closed, shutting down...")
				return
			}

			if err := p.publishReading(reading); err != nil {
				log.Printf("MQTT Publisher: Error publishing reading: %v", err)
			}
		}
	}
}

func (p *Publisher) publishReading(reading *models.Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	topic := formatTopic(p.readingTopic, sensor.NormalizeMAC(reading.MAC))

	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish reading: %w", err)
	}

	log.Printf("MQTT Publisher: Published reading %s to topic: %s", reading.ID, topic)
	return nil
}

// formatTopic replaces the {device_id} placeholder
func formatTopic(topicPattern, deviceID string) string {
	if deviceID == "" {
		deviceID = "unknown"
	}
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
