package storage

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// REACTIONS_EXCHANGE is the topic exchange reaction events are published on
const REACTIONS_EXCHANGE = "post-reactions"

func ReactionsRoutingKey(region string) string {
	return fmt.Sprintf("%s-%s", REACTIONS_EXCHANGE, region)
}

func RabbitMQClient(ctx context.Context, username string, password string, address string, port int) (*amqp.Channel, *amqp.Connection, error) {
	uri := fmt.Sprintf("amqp://%s:%s@%s:%d/", username, password, address, port)
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("error establishing connection with rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("error openning channel for rabbitmq: %w", err)
	}
	return ch, conn, nil
}
