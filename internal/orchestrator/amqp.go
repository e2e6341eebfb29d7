package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"courtclip/internal/logging"
	"courtclip/internal/services"
)

// Request is the message body of a run request.
type Request struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	RequestedAt time.Time `json:"requested_at"`
}

// AMQPOptions configures the AMQP orchestrator.
type AMQPOptions struct {
	URL       string
	Queue     string
	EventType string
	Timeout   time.Duration
}

// channel is the subset of *amqp.Channel used here.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Dialer opens a channel and returns the connection that owns it.
type Dialer func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

// AMQP requests runs by publishing to a durable queue consumed by
// `courtclip worker`. A run counts as in progress while a request is
// waiting in the queue or, with a lease attached, while a worker holds it.
type AMQP struct {
	opts   AMQPOptions
	dial   Dialer
	lease  *Lease
	logger *slog.Logger
	now    func() time.Time
}

// NewAMQP returns an AMQP orchestrator. Connections are opened per call.
func NewAMQP(opts AMQPOptions, logger *slog.Logger) *AMQP {
	return &AMQP{opts: opts, dial: dialAMQP, logger: logger, now: time.Now}
}

// WithDialer replaces the connection factory.
func (a *AMQP) WithDialer(d Dialer) *AMQP {
	clone := *a
	clone.dial = d
	return &clone
}

// WithLease records executing requests in l so InProgress sees them after
// delivery.
func (a *AMQP) WithLease(l *Lease) *AMQP {
	clone := *a
	clone.lease = l
	return &clone
}

func (a *AMQP) open() (channel, func(), error) {
	ch, conn, err := a.dial(a.opts.URL)
	if err != nil {
		return nil, nil, err
	}
	return ch, func() {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
	}, nil
}

func (a *AMQP) InProgress(ctx context.Context) (bool, error) {
	queued, err := a.queued()
	if err != nil || queued {
		return queued, err
	}
	if a.lease == nil {
		return false, nil
	}
	return a.lease.Active(ctx)
}

// queued reports whether requests are waiting for a worker. Messages that are
// delivered but unacknowledged are not counted by the broker.
func (a *AMQP) queued() (bool, error) {
	ch, closeFn, err := a.open()
	if err != nil {
		return false, services.Wrap(services.ErrOrchestratorQuery, "orchestrator", "connect", a.opts.Queue, err)
	}
	defer closeFn()
	q, err := ch.QueueDeclarePassive(a.opts.Queue, true, false, false, false, nil)
	if err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
			return false, nil
		}
		return false, services.Wrap(services.ErrOrchestratorQuery, "orchestrator", "inspect queue", a.opts.Queue, err)
	}
	return q.Messages > 0, nil
}

func (a *AMQP) Trigger(ctx context.Context) error {
	ch, closeFn, err := a.open()
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "orchestrator", "connect", a.opts.Queue, err)
	}
	defer closeFn()
	if _, err := ch.QueueDeclare(a.opts.Queue, true, false, false, false, nil); err != nil {
		return services.Wrap(services.ErrTransientIO, "orchestrator", "declare queue", a.opts.Queue, err)
	}

	req := Request{ID: uuid.NewString(), EventType: a.opts.EventType, RequestedAt: a.now().UTC()}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	err = ch.PublishWithContext(ctx, "", a.opts.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    req.ID,
		Timestamp:    req.RequestedAt,
	})
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "orchestrator", "publish", a.opts.Queue, err)
	}
	return nil
}

// Consume handles run requests one at a time until ctx is cancelled or the
// broker closes the delivery channel. A request is acknowledged after handle
// returns nil; a failed request is rejected without requeue so that a
// persistent failure cannot loop.
func (a *AMQP) Consume(ctx context.Context, handle func(ctx context.Context, req Request) error) error {
	ch, closeFn, err := a.open()
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "orchestrator", "connect", a.opts.Queue, err)
	}
	defer closeFn()
	if _, err := ch.QueueDeclare(a.opts.Queue, true, false, false, false, nil); err != nil {
		return services.Wrap(services.ErrTransientIO, "orchestrator", "declare queue", a.opts.Queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, a.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	logger := logging.NewComponentLogger(a.logger, "worker")
	logger.Info("waiting for run requests", logging.String("queue", a.opts.Queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return services.Wrap(services.ErrTransientIO, "orchestrator", "consume", "delivery channel closed", nil)
			}
			a.process(ctx, logger, d, handle)
		}
	}
}

func (a *AMQP) process(ctx context.Context, logger *slog.Logger, d amqp.Delivery, handle func(ctx context.Context, req Request) error) {
	var req Request
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logging.WarnWithContext(logger, "discarding malformed run request", "run_request_malformed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "request dropped"),
		)
		settled(logger, "reject", d.Reject(false))
		return
	}
	reqCtx := services.WithRequestID(ctx, req.ID)
	run := func(ctx context.Context) error { return handle(ctx, req) }
	var err error
	if a.lease != nil {
		err = a.lease.Hold(reqCtx, req.ID, run)
	} else {
		err = run(reqCtx)
	}
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(reqCtx, logger), "run request failed", "run_request_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the supervisor requests another run on its next tick"),
		)
		settled(logging.WithContext(reqCtx, logger), "nack", d.Nack(false, false))
		return
	}
	settled(logging.WithContext(reqCtx, logger), "ack", d.Ack(false))
}

func settled(logger *slog.Logger, op string, err error) {
	if err == nil {
		return
	}
	logging.WarnWithContext(logger, "could not settle run request", "run_request_settle_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the broker may redeliver the request"),
	)
}
