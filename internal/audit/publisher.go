package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/metrics"
)

// Publisher envia eventos de auditoria. Falhas nunca desfazem a mutação já gravada.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher apenas registra o evento no log estruturado.
type LogPublisher struct{}

// Publish escreve o evento no log.
func (LogPublisher) Publish(_ context.Context, ev Event) error {
	log.Info().
		Str("audit_action", ev.Action).
		Str("actor_id", ev.ActorID).
		Str("user_id", ev.UserID).
		Str("role", ev.Role).
		Str("permission", ev.Permission).
		Msg("rbac audit")
	return nil
}

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConnection interface {
	Close() error
	IsClosed() bool
}

const (
	defaultDialTimeout = 3 * time.Second
	defaultRedialDelay = 10 * time.Second
)

// ErrBrokerUnavailable indica que a última tentativa de conexão falhou há pouco.
var ErrBrokerUnavailable = errors.New("rabbitmq indisponível")

// AMQPPublisher mantém conexão com o RabbitMQ e publica na fila durável de auditoria.
// A conexão é aberta com o mutex preso, então o dial tem prazo curto e,
// após uma falha, novas tentativas esperam redialDelay.
type AMQPPublisher struct {
	url   string
	queue string

	dialTimeout time.Duration
	redialDelay time.Duration

	mu       sync.Mutex
	conn     amqpConnection
	channel  amqpChannel
	dial     func(url string, timeout time.Duration) (amqpConnection, amqpChannel, error)
	failedAt time.Time
	now      func() time.Time
}

// NewAMQPPublisher cria o publicador; a conexão é aberta sob demanda.
func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	return &AMQPPublisher{
		url:         url,
		queue:       queue,
		dialTimeout: defaultDialTimeout,
		redialDelay: defaultRedialDelay,
		dial:        dialAMQP,
		now:         time.Now,
	}
}

// dialAMQP limita conexão TCP e handshake AMQP ao mesmo prazo.
func dialAMQP(url string, timeout time.Duration) (amqpConnection, amqpChannel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial:      amqp.DefaultDial(timeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) ensureChannel() (amqpChannel, error) {
	if p.channel != nil && (p.conn == nil || !p.conn.IsClosed()) {
		return p.channel, nil
	}

	if !p.failedAt.IsZero() && p.now().Sub(p.failedAt) < p.redialDelay {
		return nil, ErrBrokerUnavailable
	}

	conn, ch, err := p.dial(p.url, p.dialTimeout)
	if err != nil {
		p.failedAt = p.now()
		return nil, err
	}
	p.failedAt = time.Time{}

	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return nil, err
	}

	p.conn = conn
	p.channel = ch
	return ch, nil
}

// Publish serializa o evento e publica como mensagem persistente.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.ensureChannel()
	if err != nil {
		log.Warn().Err(err).Str("audit_action", ev.Action).Msg("rabbitmq: conexão indisponível")
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Action,
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		log.Warn().Err(err).Str("audit_action", ev.Action).Msg("rabbitmq: falha ao publicar")
		p.resetLocked()
		return err
	}
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.channel = nil
	p.conn = nil
}

// Close encerra canal e conexão.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

// New escolhe o publicador conforme a configuração: sem URL os eventos só vão para o log.
func New(url, queue string) Publisher {
	if url == "" {
		return LogPublisher{}
	}
	if queue == "" {
		queue = "rbac.audit"
	}
	return NewAMQPPublisher(url, queue)
}

// Emit publica sem propagar falhas, apenas registrando-as.
func Emit(ctx context.Context, p Publisher, ev Event) {
	metrics.RBACMutationsTotal.WithLabelValues(ev.Action).Inc()
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("audit_action", ev.Action).Msg("auditoria não publicada")
	}
}
