// Package mqtt publishes registry activity to a broker.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"tagkeep/coordinator"
	"tagkeep/registry"
)

// Client wraps the MQTT client with application-specific functionality.
type Client struct {
	client       paho.Client
	clientID     string
	prefix       string
	enabled      bool
	onConnect    func()
	onDisconnect func()
}

var _ coordinator.Listener = (*Client)(nil)

// Config holds MQTT connection settings.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	CACert      string `yaml:"ca_cert"`
	ClientCert  string `yaml:"client_cert"`
	ClientKey   string `yaml:"client_key"`
	TopicPrefix string `yaml:"topic_prefix"` // default "tagkeep"
}

// Handlers holds callback functions for MQTT events.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
}

// New creates a new MQTT client. Returns a disabled no-op client if host is empty.
func New(cfg Config, clientID string, handlers Handlers) (*Client, error) {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "tagkeep"
	}
	c := &Client{
		clientID:     clientID,
		prefix:       fmt.Sprintf("%s/status/node/%s", prefix, clientID),
		onConnect:    handlers.OnConnect,
		onDisconnect: handlers.OnDisconnect,
	}

	// If no host configured, return disabled client
	if cfg.Host == "" {
		c.enabled = false
		log.Println("MQTT disabled (no host configured)")
		return c, nil
	}

	c.enabled = true

	var broker string
	var tlsConfig *tls.Config

	if cfg.CACert != "" || cfg.ClientCert != "" {
		if cfg.Port == 0 {
			cfg.Port = 8883
		}
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)

		var err error
		tlsConfig, err = buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
	} else {
		if cfg.Port == 0 {
			cfg.Port = 1883
		}
		broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
		log.Println("MQTT using non-TLS connection")
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60*time.Second).
		SetWill(c.topic("online"), "false", 0, true).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect)

	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(opts)

	paho.ERROR = log.New(os.Stdout, "[MQTT ERROR] ", 0)
	paho.CRITICAL = log.New(os.Stdout, "[MQTT CRIT] ", 0)
	paho.WARN = log.New(os.Stdout, "[MQTT WARN] ", 0)

	return c, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connect connects to the MQTT broker. If disabled, calls onConnect immediately.
func (c *Client) Connect() error {
	if !c.enabled {
		// indicators leave the connection lost state
		if c.onConnect != nil {
			c.onConnect()
		}
		return nil
	}

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	log.Println("MQTT connected")
	return nil
}

// Disconnect disconnects from the MQTT broker. No-op if disabled.
func (c *Client) Disconnect() {
	if !c.enabled || c.client == nil {
		return
	}
	c.publish("online", []byte("false"), true)
	c.client.Disconnect(250)
}

// IsEnabled returns whether MQTT is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func (c *Client) topic(leaf string) string {
	return c.prefix + "/" + leaf
}

// publish sends without waiting for the broker.
func (c *Client) publish(leaf string, payload []byte, retained bool) {
	if !c.enabled || c.client == nil {
		return
	}
	c.client.Publish(c.topic(leaf), 0, retained, payload)
}

func (c *Client) handleConnect(client paho.Client) {
	log.Println("MQTT connection established")
	c.publish("online", []byte("true"), true)
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) handleConnectionLost(client paho.Client, err error) {
	log.Printf("MQTT connection lost: %v", err)
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

// Submitted implements coordinator.Listener.
func (c *Client) Submitted(p coordinator.Pending) {
	c.send("armed", armedPayload(p))
}

// Finished implements coordinator.Listener.
func (c *Client) Finished(ev coordinator.Event) {
	c.send("result", resultPayload(ev))
}

// Deleted implements coordinator.Listener.
func (c *Client) Deleted(e registry.Entry) {
	c.send("deleted", itemPayload{Name: e.Label, UID: e.ID.String(), Slot: e.Slot})
}

// Ping publishes a heartbeat with the current item count.
func (c *Client) Ping(items int) {
	c.send("ping", pingMessage{Status: "ok", Items: items})
}

func (c *Client) send(leaf string, v any) {
	if !c.enabled {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Encode %s message: %v", leaf, err)
		return
	}
	c.publish(leaf, payload, false)
}
