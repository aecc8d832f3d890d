package mqttclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Client publishes pipeline notifications to an MQTT broker.
type Client struct {
	conn      mqtt.Client
	topic     string
	connected atomic.Bool
	log       zerolog.Logger
}

type Options struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	Log       zerolog.Logger
}

var errPublishTimeout = errors.New("mqtt publish timed out")

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topic: strings.TrimRight(opts.Topic, "/"),
		log:   opts.Log.With().Str("component", "mqtt").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("topic", c.topic).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Publish sends v as JSON to the configured topic, with subtopic appended
// when non-empty. It waits at most five seconds for the broker to ack.
func (c *Client) Publish(subtopic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	topic := Topic(c.topic, subtopic)
	token := c.conn.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

// Topic joins a base topic and a subtopic. MQTT wildcards and empty levels
// are stripped from the subtopic.
func Topic(base, subtopic string) string {
	var levels []string
	for _, l := range strings.Split(subtopic, "/") {
		l = strings.TrimSpace(l)
		if l == "" || l == "+" || l == "#" {
			continue
		}
		levels = append(levels, l)
	}
	if len(levels) == 0 {
		return base
	}
	return base + "/" + strings.Join(levels, "/")
}
