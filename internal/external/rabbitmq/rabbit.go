package points

import (
	"context"
	"encoding/json"

	model "github.com/glkeru/loyalty/userpoints/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitConsumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	msg   <-chan amqp.Delivery
	chout *amqp.Channel
}

const queue = "points_uses"
const queueout = "points_confirms"

func declare(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func NewRabbitConsumer(dsn string, prefetch int) (rabbit *RabbitConsumer, err error) {
	conn, err := amqp.Dial(dsn)
	if err != nil {
		return nil, err
	}
	// канал для входящих
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err = declare(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err = ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// канал для исходящих
	chout, err := conn.Channel()
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err = declare(chout, queueout); err != nil {
		chout.Close()
		ch.Close()
		conn.Close()
		return nil, err
	}

	msg, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		chout.Close()
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitConsumer{conn, ch, msg, chout}, nil
}

// команда списания, ack после обработки: prefetch ограничивает число неподтвержденных команд
func (r *RabbitConsumer) ReadCommand(ctx context.Context) (model.QueueMessage, error) {
	select {
	case <-ctx.Done():
		return model.QueueMessage{}, ctx.Err()
	case msg, ok := <-r.msg:
		if !ok {
			return model.QueueMessage{}, model.ErrQueueClosed
		}
		return model.QueueMessage{
			Payload: msg.Body,
			Ack: func() error {
				return msg.Ack(false)
			},
		}, nil
	}
}

func confirmPublishing(confirm model.CommandConfirm) (amqp.Publishing, error) {
	body, err := json.Marshal(confirm)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: confirm.CommandID,
		Body:          body,
	}, nil
}

// подтверждение списания
func (r *RabbitConsumer) Confirm(ctx context.Context, confirm model.CommandConfirm) error {
	msg, err := confirmPublishing(confirm)
	if err != nil {
		return err
	}
	return r.chout.PublishWithContext(ctx,
		"",       // exchange
		queueout, // routing key
		false,    // mandatory
		false,    // immediate
		msg)
}

func (r *RabbitConsumer) Close() error {
	r.chout.Close()
	r.ch.Close()
	return r.conn.Close()
}
