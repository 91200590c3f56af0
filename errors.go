package mqconsumer

import (
	"fmt"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected is returned by StartConsuming when no broker session is
	// established.
	ErrNotConnected = errors.New("consumer is not connected")

	// ErrConsuming is returned by SetupConnection while the consume loop owns
	// the session.
	ErrConsuming = errors.New("consumer is already consuming")

	errMissingURL        = errors.New("broker URL is empty")
	errNegativePrefetch  = errors.New("prefetch must not be negative")
	errDeliveriesClosed  = errors.New("delivery channel closed by broker")
	errChannelNotifyDone = errors.New("channel closed without error")
)

// ConfigurationError reports a missing or malformed broker URL.
type ConfigurationError struct {
	cause error
}

// ConnectionError reports an unreachable broker or a rejected login.
type ConnectionError struct {
	host  string
	cause error
}

// ChannelError reports the broker closing or refusing an operation on the
// channel.
type ChannelError struct {
	Op    string
	cause error
}

// CallbackError reports a handler failure for a delivery that was already
// acknowledged. The message is lost.
type CallbackError struct {
	msg   amqp.Delivery
	cause error
}

type AckFailedError struct {
	msg   amqp.Delivery
	cause error
}

func NewConfigurationError(cause error) *ConfigurationError {
	return &ConfigurationError{cause: cause}
}

func NewConnectionError(host string, cause error) *ConnectionError {
	return &ConnectionError{host: host, cause: cause}
}

func NewChannelError(op string, cause error) *ChannelError {
	return &ChannelError{Op: op, cause: cause}
}

func NewCallbackError(msg amqp.Delivery, cause error) *CallbackError {
	return &CallbackError{msg: msg, cause: cause}
}

func NewAckFailedError(msg amqp.Delivery, cause error) *AckFailedError {
	return &AckFailedError{msg: msg, cause: cause}
}

func (err *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid broker configuration: %s", err.cause)
}

func (err *ConnectionError) Error() string {
	if err.host == "" {
		return fmt.Sprintf("broker connection failed: %s", err.cause)
	}
	return fmt.Sprintf("broker connection to %s failed: %s", err.host, err.cause)
}

func (err *ChannelError) Error() string {
	return fmt.Sprintf("channel %s failed: %s", err.Op, err.cause)
}

func (err *CallbackError) Error() string {
	return fmt.Sprintf(
		"handler failed for delivery_tag: %d, routing_key: %s: %s",
		err.msg.DeliveryTag,
		err.msg.RoutingKey,
		err.cause,
	)
}

func (err *AckFailedError) Error() string {
	return fmt.Sprintf(
		"ACK failed for delivery_tag: %d, routing_key: %s: %s",
		err.msg.DeliveryTag,
		err.msg.RoutingKey,
		err.cause,
	)
}

func (err *ConfigurationError) Unwrap() error { return err.cause }
func (err *ConnectionError) Unwrap() error    { return err.cause }
func (err *ChannelError) Unwrap() error       { return err.cause }
func (err *CallbackError) Unwrap() error      { return err.cause }
func (err *AckFailedError) Unwrap() error     { return err.cause }

// Delivery returns the message the handler failed on.
func (err *CallbackError) Delivery() amqp.Delivery { return err.msg }
