package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/metrics"
	"github.com/ukydev/drivebidrent/internal/models"
)

const mqttConnectTimeout = 5 * time.Second

// MQTTClient is the subset of mqtt.Client used for publishing.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// ConnectMQTT connects to broker with automatic reconnects enabled.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	log.WithFields(log.Fields{"broker": broker, "client_id": clientID}).Info("Connected to MQTT broker")
	return client, nil
}

// MQTTPublisher publishes auction events to <prefix>/auctions/<id>.
type MQTTPublisher struct {
	client MQTTClient
	prefix string
	qos    byte
}

// NewMQTTPublisher creates a publisher using QoS 1.
func NewMQTTPublisher(client MQTTClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: 1}
}

// Topic returns the topic events of auctionID are published to.
func (p *MQTTPublisher) Topic(auctionID string) string {
	if p.prefix == "" {
		return "auctions/" + auctionID
	}
	return p.prefix + "/auctions/" + auctionID
}

func (p *MQTTPublisher) Publish(ctx context.Context, event models.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("mqtt", "error").Inc()
		return err
	}

	token := p.client.Publish(p.Topic(event.AuctionID), p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		metrics.EventsPublishedTotal.WithLabelValues("mqtt", "error").Inc()
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("mqtt", "error").Inc()
		return fmt.Errorf("mqtt publish %s: %w", event.Type, err)
	}
	metrics.EventsPublishedTotal.WithLabelValues("mqtt", "ok").Inc()
	return nil
}

// Close disconnects from the broker after in-flight messages are sent.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
