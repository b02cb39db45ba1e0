// Package whatsappamqp publica los envíos de WhatsApp en una cola AMQP
// que drena un worker externo (el bridge). Publicar con éxito cuenta como
// "sent"; este canal no confirma delivery, así que sent es terminal.
package whatsappamqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"

	"github.com/streadway/amqp"
)

var ErrNotConfigured = errors.New("whatsapp amqp publisher not configured")

const DefaultQueue = "whatsapp_sends"

// Publisher implementa channels.Sender sobre una cola AMQP.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func New(url, queue string) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	// durable: los sends pendientes sobreviven un restart del broker
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

type job struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (p *Publisher) Send(ctx context.Context, address, content string) (channels.Receipt, error) {
	address = strings.TrimSpace(address)
	if address == "" || !strings.HasPrefix(address, "+") {
		return channels.Receipt{}, channels.Permanent(fmt.Errorf("invalid whatsapp number: %q", address))
	}
	if err := ctx.Err(); err != nil {
		return channels.Receipt{}, channels.Transient(err)
	}

	body, err := json.Marshal(job{To: address, Body: content})
	if err != nil {
		return channels.Receipt{}, channels.Permanent(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		// broker caído o canal cerrado: reintentable
		return channels.Receipt{}, channels.Transient(fmt.Errorf("amqp publish: %w", err))
	}

	return channels.Receipt{}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
