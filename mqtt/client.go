package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config holds MQTT configuration
type Config struct {
	Broker      string `yaml:"Broker" env:"MQTT_BROKER"`
	Port        int    `yaml:"Port" env:"MQTT_PORT"`
	Username    string `yaml:"Username" env:"MQTT_USERNAME"`
	Password    string `yaml:"Password" env:"MQTT_PASSWORD"`
	ClientID    string `yaml:"ClientID" env:"MQTT_CLIENT_ID"`
	TopicPrefix string `yaml:"TopicPrefix" env:"MQTT_TOPIC_PREFIX"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

func (c Config) prefix() string {
	if c.TopicPrefix == "" {
		return "weather"
	}
	return strings.TrimRight(c.TopicPrefix, "/")
}

// Client wraps MQTT client functionality
type Client struct {
	client      mqtt.Client
	config      Config
	log         logrus.FieldLogger
	commandChan chan Command
	statusChan  chan Status
}

// Actions accepted on the command topic.
const (
	ActionRefresh  = "refresh"
	ActionDiscover = "discover"
	ActionLogout   = "logout"
)

// Command is a request received on <prefix>/command/<device_id>.
type Command struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
}

// Status is the classified reading published after every refresh.
type Status struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	PM1         *float64  `json:"pm1,omitempty"`
	PM25        *float64  `json:"pm25,omitempty"`
	PM10        *float64  `json:"pm10,omitempty"`
	Pressure    *float64  `json:"pressure,omitempty"`
	AQI         string    `json:"aqi"`
	Clothing    string    `json:"clothing,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// CommandHandler defines the interface for handling MQTT commands
type CommandHandler interface {
	HandleCommand(cmd Command) error
}

// NewClient creates a new MQTT client
func NewClient(config Config, log logrus.FieldLogger) *Client {
	if config.Port == 0 {
		config.Port = 1883
	}
	if config.ClientID == "" {
		config.ClientID = "weather-dashboard-" + uuid.NewString()[:8]
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", config.Broker, config.Port))
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetPingTimeout(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		log.WithField("topic", msg.Topic()).Debug("unexpected message")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.WithError(err).Warn("connection lost")
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info("connected")
	})

	return newClient(mqtt.NewClient(opts), config, log)
}

func newClient(client mqtt.Client, config Config, log logrus.FieldLogger) *Client {
	return &Client{
		client:      client,
		config:      config,
		log:         log,
		commandChan: make(chan Command, 100),
		statusChan:  make(chan Status, 100),
	}
}

// Connect establishes connection to MQTT broker
func (c *Client) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	c.log.WithField("broker", fmt.Sprintf("%s:%d", c.config.Broker, c.config.Port)).Info("connected to broker")
	return nil
}

// Disconnect closes the connection to MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func (c *Client) commandTopic() string {
	return c.config.prefix() + "/command/+"
}

func (c *Client) statusTopic(deviceID string) string {
	return c.config.prefix() + "/status/" + deviceID
}

// SubscribeCommands subscribes to command topics and starts processing
func (c *Client) SubscribeCommands(ctx context.Context, handler CommandHandler) error {
	topic := c.commandTopic()
	token := c.client.Subscribe(topic, 1, func(client mqtt.Client, msg mqtt.Message) {
		c.receive(msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to commands: %w", token.Error())
	}
	c.log.WithField("topic", topic).Info("subscribed to commands")

	go c.processCommands(ctx, handler)
	return nil
}

// receive parses a command message and queues it, dropping it when the
// queue is full.
func (c *Client) receive(msg mqtt.Message) {
	cmd, err := c.parseCommand(msg.Topic(), msg.Payload())
	if err != nil {
		c.log.WithError(err).WithField("topic", msg.Topic()).Warn("invalid command")
		return
	}
	select {
	case c.commandChan <- cmd:
	default:
		c.log.WithField("device_id", cmd.DeviceID).Warn("command channel full, dropping command")
	}
}

func (c *Client) parseCommand(topic string, payload []byte) (Command, error) {
	prefix := c.config.prefix() + "/command/"
	if !strings.HasPrefix(topic, prefix) {
		return Command{}, fmt.Errorf("unexpected topic %q", topic)
	}
	deviceID := strings.TrimPrefix(topic, prefix)
	if deviceID == "" || strings.Contains(deviceID, "/") {
		return Command{}, fmt.Errorf("invalid command topic format: %s", topic)
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return Command{}, fmt.Errorf("failed to parse command payload: %w", err)
	}
	switch body.Action {
	case ActionRefresh, ActionDiscover, ActionLogout:
	default:
		return Command{}, fmt.Errorf("unknown action %q", body.Action)
	}
	return Command{DeviceID: deviceID, Action: body.Action}, nil
}

// processCommands handles incoming commands from MQTT
func (c *Client) processCommands(ctx context.Context, handler CommandHandler) {
	for {
		select {
		case cmd := <-c.commandChan:
			log := c.log.WithFields(logrus.Fields{"device_id": cmd.DeviceID, "action": cmd.Action})
			if err := handler.HandleCommand(cmd); err != nil {
				log.WithError(err).Error("failed to handle command")
			} else {
				log.Info("handled command")
			}
		case <-ctx.Done():
			return
		}
	}
}

// PublishStatus publishes a status to <prefix>/status/<device_id> and waits
// for the broker.
func (c *Client) PublishStatus(status Status) error {
	topic := c.statusTopic(status.DeviceID)

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	token := c.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish status: %w", token.Error())
	}

	c.log.WithFields(logrus.Fields{"topic": topic, "aqi": status.AQI}).Debug("published status")
	return nil
}

// PublishStatusAsync queues a status for the background publisher.
func (c *Client) PublishStatusAsync(status Status) {
	select {
	case c.statusChan <- status:
	default:
		c.log.WithField("device_id", status.DeviceID).Warn("status channel full, dropping status")
	}
}

// StartStatusPublisher starts the background status publisher
func (c *Client) StartStatusPublisher(ctx context.Context) {
	go func() {
		for {
			select {
			case status := <-c.statusChan:
				if err := c.PublishStatus(status); err != nil {
					c.log.WithError(err).Error("failed to publish status")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// IsConnected checks if the client is connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
