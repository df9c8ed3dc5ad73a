package rabbitmq

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is one AMQP connection with a single channel shared by every
// queue of the process. Channel operations are serialised.
type Connection struct {
	mu      sync.Mutex
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Dial connects to the broker and opens the shared channel.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	return &Connection{
		Conn:    conn,
		Channel: channel,
	}, nil
}

// do runs fn with exclusive use of the channel.
func (c *Connection) do(fn func(ch *amqp.Channel) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.Channel)
}

func (c *Connection) Close() error {
	if err := c.Channel.Close(); err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := c.Conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
