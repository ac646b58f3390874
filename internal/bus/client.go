// Package bus адаптирует paho.mqtt.golang под топик-ориентированный
// publish/subscribe клиент, чьи subscribe/unsubscribe завершения
// доставляются в inbox уже привязанными к топику, а не голым
// идентификатором пакета.
package bus

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/shaiso/upparat/internal/inbox"
)

// ALPNProtocol — протокол, который AWS IoT Core ожидает на портах 443/8883
// при TLS client-auth без отдельного порта для MQTT.
const ALPNProtocol = "x-amzn-mqtt-ca"

// subscribeTimeout ограничивает, сколько Client ждёт подтверждения
// подписки/отписки в фоновой горутине перед тем, как списать попытку.
const subscribeTimeout = 30 * time.Second

// Config — параметры подключения к broker-у.
type Config struct {
	Host     string
	Port     int
	ClientID string

	// TLS — либо все три поля заданы, либо ни одного.
	CAFile   string
	CertFile string
	KeyFile  string
}

// pendingSubscription — запись в id→topic таблице.
//
// Критическая деталь протокола (см. spec.md §4.2): мы регистрируем эту
// запись ДО вызова Subscribe/Unsubscribe у нижележащей библиотеки —
// потому что библиотека асинхронна и её завершение может быть
// доставлено раньше, чем вызывающий код увидит возврат из своего
// Subscribe(). Python-реализация добивается этого, генерируя mid до
// вызова внутреннего _subscribe() и переживая Paho-internal методы;
// paho.mqtt.golang не выставляет свой packet id в публичном API, так
// что здесь тем же целям служит собственный монотонный correlation id,
// зарегистрированный перед вызовом и разрешаемый в горутине,
// ожидающей Token.
type pendingSubscription struct {
	topic string
}

// Client — topic-ориентированная обёртка над paho.mqtt.golang.
type Client struct {
	mqtt   mqtt.Client
	logger *slog.Logger
	inbox  *inbox.Inbox

	nextID uint64

	mu            sync.Mutex
	subscriptions map[string]byte // желаемые подписки (topic -> qos), переживают reconnect
	pendingSub    map[uint64]pendingSubscription
	pendingUnsub  map[uint64]pendingSubscription
}

// NewClient создаёт Client и конфигурирует paho с AutoReconnect и
// ре-подпиской при восстановлении соединения.
func NewClient(cfg Config, logger *slog.Logger, box *inbox.Inbox) (*Client, error) {
	c := &Client{
		logger:        logger,
		inbox:         box,
		subscriptions: make(map[string]byte),
		pendingSub:    make(map[uint64]pendingSubscription),
		pendingUnsub:  make(map[uint64]pendingSubscription),
	}

	opts := mqtt.NewClientOptions()

	scheme := "tcp"
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		scheme = "ssl"
		opts.SetTLSConfig(tlsConfig)
	}

	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.mqtt = mqtt.NewClient(opts)
	return c, nil
}

// buildTLSConfig валидирует cafile/certfile/keyfile all-or-none и
// порт 443/8883, и negotiates ALPN "x-amzn-mqtt-ca" когда TLS material
// задан.
func buildTLSConfig(cfg Config) (*tls.Config, error) {
	set := []bool{cfg.CAFile != "", cfg.CertFile != "", cfg.KeyFile != ""}
	anySet := set[0] || set[1] || set[2]
	allSet := set[0] && set[1] && set[2]

	if !anySet {
		return nil, nil
	}
	if !allSet {
		return nil, fmt.Errorf("bus: cafile, certfile and keyfile must be set together or not at all")
	}
	if cfg.Port != 443 && cfg.Port != 8883 {
		return nil, fmt.Errorf("bus: TLS requires port 443 or 8883, got %d", cfg.Port)
	}

	caCert, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("bus: read cafile: %w", err)
	}
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("bus: invalid cafile %s", cfg.CAFile)
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("bus: load client cert/key: %w", err)
	}

	return &tls.Config{
		RootCAs:      certPool,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Run подключается к broker-у. Подключение асинхронно продолжается в
// фоне (AutoReconnect); ошибки первой попытки возвращаются к
// вызывающей стороне, последующие — логируются из onConnectionLost.
func (c *Client) Run() error {
	token := c.mqtt.Connect()
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("bus: connect timed out")
	}
	return token.Error()
}

// Disconnect закрывает соединение с broker-ом.
func (c *Client) Disconnect() {
	c.mqtt.Disconnect(250)
}

// onMessage переводит входящее сообщение в mqtt-message-received
// событие.
func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	c.inbox.Put(inbox.WithMQTT(msg.Topic(), payload))
}

// onConnect переподписывается на все желаемые топики. Вызывается
// paho и при первом подключении, и при каждом reconnect.
func (c *Client) onConnect(_ mqtt.Client) {
	c.mu.Lock()
	desired := make(map[string]byte, len(c.subscriptions))
	for topic, qos := range c.subscriptions {
		desired[topic] = qos
	}
	c.mu.Unlock()

	for topic, qos := range desired {
		if _, _, err := c.Subscribe(topic, qos); err != nil {
			c.logger.Warn("resubscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("bus connection lost", "error", err)
}

// Subscribe подписывается на topic с заданным qos. Id→topic запись
// регистрируется перед вызовом paho, как того требует протокол (см.
// комментарий у pendingSubscription).
func (c *Client) Subscribe(topic string, qos byte) (bool, uint64, error) {
	id := atomic.AddUint64(&c.nextID, 1)

	c.mu.Lock()
	c.pendingSub[id] = pendingSubscription{topic: topic}
	c.subscriptions[topic] = qos
	c.mu.Unlock()

	token := c.mqtt.Subscribe(topic, qos, c.onMessage)

	go func() {
		ok := token.WaitTimeout(subscribeTimeout)
		err := token.Error()

		c.mu.Lock()
		_, stillPending := c.pendingSub[id]
		delete(c.pendingSub, id)
		c.mu.Unlock()

		if !stillPending {
			return
		}

		if !ok || err != nil {
			c.logger.Warn("subscribe failed", "topic", topic, "error", err)
			return
		}

		c.inbox.Put(inbox.WithTopic(inbox.MQTTSubscribed, topic))
	}()

	return true, id, nil
}

// Unsubscribe отписывается от topic. Топик удаляется из желаемых
// подписок сразу, так что reconnect его не восстановит; id→topic
// запись регистрируется перед вызовом paho по той же причине, что и
// Subscribe.
func (c *Client) Unsubscribe(topic string) (bool, uint64, error) {
	id := atomic.AddUint64(&c.nextID, 1)

	c.mu.Lock()
	c.pendingUnsub[id] = pendingSubscription{topic: topic}
	delete(c.subscriptions, topic)
	c.mu.Unlock()

	token := c.mqtt.Unsubscribe(topic)

	go func() {
		ok := token.WaitTimeout(subscribeTimeout)
		err := token.Error()

		c.mu.Lock()
		_, stillPending := c.pendingUnsub[id]
		delete(c.pendingUnsub, id)
		c.mu.Unlock()

		if !stillPending {
			return
		}

		if !ok || err != nil {
			c.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
			return
		}

		c.inbox.Put(inbox.WithTopic(inbox.MQTTUnsubscribed, topic))
	}()

	return true, id, nil
}

// Publish публикует payload на topic с qos 1, как того требует
// протокол job-control трафика.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.mqtt.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("bus: publish to %s timed out", topic)
	}
	return token.Error()
}
