// Package mqtt wraps the paho MQTT client with the connection policy the
// console needs: connect with timeout, auto-reconnect with capped
// exponential backoff, re-subscription of every handler after a
// reconnect, and QoS-1 publishes with explicit timeouts.
package mqtt

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/vantagesign/signdeck/internal/config"
	sderrors "github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/logging"
)

const (
	publishTimeout   = 10 * time.Second
	subscribeTimeout = 10 * time.Second

	reconnectBase = 1 * time.Second
	reconnectMax  = 2 * time.Minute
)

// MessageHandler receives messages for a subscription.
type MessageHandler func(topic string, payload []byte)

// Session is the console's connection to the broker. Subscriptions
// registered through it survive reconnects.
type Session struct {
	client paho.Client
	qos    byte
	log    logging.Logger

	mu       sync.RWMutex
	handlers map[string]MessageHandler

	onConnect func()
}

// Dial connects to the configured broker and blocks until the connection
// is up or the connect timeout elapses. The client ID gets a random
// suffix so several consoles can share a broker.
func Dial(cfg config.MQTTConfig, log logging.Logger) (*Session, error) {
	s := &Session{
		qos:      byte(cfg.QoS),
		log:      log.WithComponent("mqtt"),
		handlers: make(map[string]MessageHandler),
	}

	clientID := fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, uuid.NewString()[:8])

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectMax).
		SetConnectRetryInterval(withJitter(reconnectBase)).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(s.handleConnect).
		SetConnectionLostHandler(s.handleConnectionLost)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	s.client = paho.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout + time.Second) {
		return nil, sderrors.NewPublish("mqtt_connect_timeout",
			fmt.Sprintf("broker %s did not answer within %s", cfg.BrokerURL, cfg.ConnectTimeout), nil)
	}
	if err := token.Error(); err != nil {
		return nil, sderrors.NewPublish("mqtt_connect", "broker connect failed", err)
	}

	s.log.Info(context.Background(), "connected to broker",
		"broker", cfg.BrokerURL, "client_id", clientID)
	return s, nil
}

// withJitter spreads reconnect storms out by up to 25%.
func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// OnConnect registers a callback invoked on every successful (re)connect,
// after subscriptions are restored.
func (s *Session) OnConnect(fn func()) {
	s.mu.Lock()
	s.onConnect = fn
	s.mu.Unlock()
}

// handleConnect restores every registered subscription. Paho clears
// subscriptions on a clean-session reconnect, so this runs on first
// connect and every reconnect alike.
func (s *Session) handleConnect(client paho.Client) {
	s.mu.RLock()
	handlers := make(map[string]MessageHandler, len(s.handlers))
	for topic, h := range s.handlers {
		handlers[topic] = h
	}
	onConnect := s.onConnect
	s.mu.RUnlock()

	ctx := context.Background()
	for topic, handler := range handlers {
		if err := s.subscribe(topic, handler); err != nil {
			s.log.Error(ctx, err, "resubscribe failed", "topic", topic)
		}
	}
	s.log.Info(ctx, "broker session established", "subscriptions", len(handlers))

	if onConnect != nil {
		onConnect()
	}
}

func (s *Session) handleConnectionLost(client paho.Client, err error) {
	s.log.Warn(context.Background(), err, "broker connection lost, reconnecting")
}

// Publish sends a payload at the session QoS and waits for the broker
// acknowledgement.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte) error {
	token := s.client.Publish(topic, s.qos, false, payload)

	acked := make(chan bool, 1)
	go func() { acked <- token.WaitTimeout(publishTimeout) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ok := <-acked:
		if err := token.Error(); err != nil {
			return sderrors.NewPublish("mqtt_publish",
				fmt.Sprintf("publish to %s failed", topic), err)
		}
		if !ok {
			return sderrors.NewPublish("mqtt_publish_timeout",
				fmt.Sprintf("publish to %s not acknowledged within %s", topic, publishTimeout), nil)
		}
	}
	return nil
}

// Subscribe registers a handler for a topic filter. The handler is
// re-registered automatically after reconnects.
func (s *Session) Subscribe(topic string, handler MessageHandler) error {
	s.mu.Lock()
	s.handlers[topic] = handler
	s.mu.Unlock()

	return s.subscribe(topic, handler)
}

func (s *Session) subscribe(topic string, handler MessageHandler) error {
	token := s.client.Subscribe(topic, s.qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return sderrors.NewPublish("mqtt_subscribe_timeout",
			fmt.Sprintf("subscribe to %s timed out", topic), nil)
	}
	if err := token.Error(); err != nil {
		return sderrors.NewPublish("mqtt_subscribe",
			fmt.Sprintf("subscribe to %s failed", topic), err)
	}
	return nil
}

// Connected reports whether the session currently has a live broker
// connection.
func (s *Session) Connected() bool {
	return s.client.IsConnectionOpen()
}

// Close disconnects cleanly, giving in-flight messages 250ms to drain.
func (s *Session) Close() {
	s.client.Disconnect(250)
	s.log.Info(context.Background(), "disconnected from broker")
}
