package nats

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/resilience"
)

const (
	DefaultIndexedSubject = "reports.indexed"
	DefaultReindexSubject = "reports.reindex"
	reindexQueueGroup     = "indexers"
)

// Queue announces finished rebuilds and carries reindex requests to the
// worker.
type Queue struct {
	conn           *nats.Conn
	indexedSubject string
	reindexSubject string
	executor       *resilience.Executor
	logger         *slog.Logger
	now            func() time.Time
}

type Options struct {
	IndexedSubject       string
	ReindexSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func (o Options) withDefaults() Options {
	o.IndexedSubject = cmp.Or(o.IndexedSubject, DefaultIndexedSubject)
	o.ReindexSubject = cmp.Or(o.ReindexSubject, DefaultReindexSubject)
	o.ConnectTimeout = cmp.Or(max(o.ConnectTimeout, 0), 2*time.Second)
	o.ReconnectWait = cmp.Or(max(o.ReconnectWait, 0), 2*time.Second)
	o.MaxReconnects = cmp.Or(max(o.MaxReconnects, 0), 60)
	if o.RetryOnFailedConnect == nil {
		retry := true
		o.RetryOnFailedConnect = &retry
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) natsOptions() []nats.Option {
	logger := o.Logger
	return []nats.Option{
		nats.Name("autoreport-rag"),
		nats.Timeout(o.ConnectTimeout),
		nats.ReconnectWait(o.ReconnectWait),
		nats.MaxReconnects(o.MaxReconnects),
		nats.RetryOnFailedConnect(*o.RetryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	}
}

func New(url string, options Options) (*Queue, error) {
	options = options.withDefaults()
	conn, err := nats.Connect(url, options.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		indexedSubject: options.IndexedSubject,
		reindexSubject: options.ReindexSubject,
		executor:       options.ResilienceExecutor,
		logger:         options.Logger,
		now:            time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIndexed(ctx context.Context, event domain.IndexedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal indexed event: %w", err)
	}
	return q.publish(ctx, q.indexedSubject, payload)
}

func (q *Queue) RequestReindex(ctx context.Context, reason string) error {
	payload, err := json.Marshal(domain.ReindexRequest{Reason: reason, RequestedAt: q.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal reindex request: %w", err)
	}
	return q.publish(ctx, q.reindexSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if q.executor == nil {
		return publishFailure(call(ctx))
	}
	return publishFailure(q.executor.Execute(ctx, "nats.publish", call, classifyPublishError))
}

// SubscribeReindex hands every reindex request to handler until ctx is
// canceled, then drains the subscription. Workers share one queue group so
// each request triggers a single rebuild.
func (q *Queue) SubscribeReindex(ctx context.Context, handler func(context.Context, domain.ReindexRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.reindexSubject, reindexQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		req, err := decodeReindexRequest(msg.Data)
		if err != nil {
			q.logger.Warn("reindex_request_invalid", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req); err != nil {
			q.logger.Error("reindex_failed", "reason", req.Reason, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeReindexRequest also accepts a bare reason string from manual
// `nats pub` invocations.
func decodeReindexRequest(data []byte) (domain.ReindexRequest, error) {
	var req domain.ReindexRequest
	if len(data) == 0 {
		return req, nil
	}
	if data[0] != '{' {
		req.Reason = string(data)
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.ReindexRequest{}, fmt.Errorf("decode reindex request: %w", err)
	}
	return req, nil
}
