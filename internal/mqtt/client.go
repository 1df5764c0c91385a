package mqtt

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClientConfig describes the broker carrying the live reading feed
type ClientConfig struct {
	Broker         string // e.g., "tcp://localhost:1883"
	ClientID       string // e.g., "enviroscan-backend"
	Username       string
	Password       string
	ConnectTimeout time.Duration // Bound on the initial connect, default 10s
}

// Client owns the broker session used by the reading Publisher.
// The session reconnects on its own; readings offered while it is
// down fail their publish and are logged by the Publisher.
type Client struct {
	client mqtt.Client
	broker string
}

// NewClient opens the feed session, failing if the broker cannot be
// reached within ConnectTimeout
func NewClient(config ClientConfig) (*Client, error) {
	opts := feedOptions(config)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", config.Broker, err)
	}

	log.Println("MQTT Client: Reading feed connected to", config.Broker)
	return &Client{client: client, broker: config.Broker}, nil
}

// feedOptions builds the paho options for a publish-only session
func feedOptions(config ClientConfig) *mqtt.ClientOptions {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	// The feed is live data; nothing is worth replaying after a restart
	opts.SetCleanSession(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT Client: Session up (%s)", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT Client: Warning - session lost, readings will be dropped until reconnect: %v", err)
	})
	return opts
}

// Publisher returns the session as the sink the reading Publisher writes to
func (c *Client) Publisher() TokenPublisher {
	return c.client
}

// IsConnected reports whether readings can currently be delivered
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close ends the session, giving in-flight publishes 250ms to drain
func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Printf("MQTT Client: Reading feed disconnected from %s", c.broker)
}
