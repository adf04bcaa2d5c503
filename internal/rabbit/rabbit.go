package rabbit

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// dial opens a connection+channel and declares the durable topic exchange.
// The declare is idempotent; every service asserts the exchange it uses.
func dial(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	return conn, ch, nil
}
