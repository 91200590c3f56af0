package mqconsumer

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	amqp "github.com/rabbitmq/amqp091-go"
)

const envconfigPrefix = "AMQP"

// ConsumerConfig names the broker topology a Consumer binds to.
type ConsumerConfig struct {
	RoutingKey   string
	ExchangeName string
	QueueName    string
}

// BrokerConfig holds connection options read from AMQP_* environment
// variables.
type BrokerConfig struct {
	URL            string        `envconfig:"URL" required:"true"`
	ExchangeKind   string        `envconfig:"EXCHANGE_KIND" default:"direct"`
	Prefetch       int           `envconfig:"PREFETCH" default:"0"`
	Heartbeat      time.Duration `envconfig:"HEARTBEAT" default:"10s"`
	ConnectionName string        `envconfig:"CONNECTION_NAME" default:"mqconsumer"`
}

// NewBrokerConfigWithDefaults returns a BrokerConfig with default values
// already applied. Callers still have to provide URL.
func NewBrokerConfigWithDefaults() BrokerConfig {
	return BrokerConfig{
		ExchangeKind:   amqp.ExchangeDirect,
		Heartbeat:      10 * time.Second,
		ConnectionName: "mqconsumer",
	}
}

// GetBrokerConfigFromEnvironment returns configuration derived from
// environment variables. A missing or unparsable AMQP_URL is reported as a
// *ConfigurationError.
func GetBrokerConfigFromEnvironment() (BrokerConfig, error) {
	c := NewBrokerConfigWithDefaults()
	if err := envconfig.Process(envconfigPrefix, &c); err != nil {
		return c, NewConfigurationError(err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the broker URL can be parsed as an AMQP URI.
func (c BrokerConfig) Validate() error {
	if c.URL == "" {
		return NewConfigurationError(errMissingURL)
	}
	if _, err := amqp.ParseURI(c.URL); err != nil {
		return NewConfigurationError(err)
	}
	if c.Prefetch < 0 {
		return NewConfigurationError(errNegativePrefetch)
	}
	return nil
}

// endpoint describes the broker without credentials, for logging.
func (c BrokerConfig) endpoint() (host string, port int, vhost string) {
	uri, err := amqp.ParseURI(c.URL)
	if err != nil {
		return "", 0, ""
	}
	return uri.Host, uri.Port, uri.Vhost
}
