package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/platform/observability"
)

// Notifier listens on a NOTIFY channel over a dedicated connection and fans
// change events out to subscribers. It implements ports.ChangeFeed.
type Notifier struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zerolog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	subs   map[uint64]subscription
	nextID uint64
	closed bool
}

type subscription struct {
	filter  domain.ChangeFilter
	onEvent func(domain.ChangeEvent)
}

// NewNotifier creates a notifier for channel (DefaultChangeChannel when empty).
func NewNotifier(pool *pgxpool.Pool, channel string, logger *zerolog.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChangeChannel
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Notifier{
		pool:    pool,
		channel: channel,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(reconnectInterval), 1),
		subs:    make(map[uint64]subscription),
	}
}

// Subscribe registers onEvent for events matching filter. Callbacks run on the
// listener goroutine and must not block.
func (n *Notifier) Subscribe(filter domain.ChangeFilter, onEvent func(domain.ChangeEvent)) (func(), error) {
	if onEvent == nil {
		return nil, fmt.Errorf("nil change callback: %w", coreerrors.ErrInvalidInput)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, coreerrors.ErrSubscriptionClosed
	}

	n.nextID++
	id := n.nextID
	n.subs[id] = subscription{filter: filter, onEvent: onEvent}

	var once sync.Once

	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}, nil
}

// Subscribers returns the number of active subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.subs)
}

// Run listens until ctx is canceled, reconnecting after connection loss.
// Subscriptions are refused once Run returns.
func (n *Notifier) Run(ctx context.Context) error {
	defer n.close()

	for {
		err := n.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}

		n.logger.Warn().Err(err).Str("channel", n.channel).Msg("change listener dropped, reconnecting")
		observability.ChangeListenerReconnects.Inc()

		if werr := n.limiter.Wait(ctx); werr != nil {
			return nil
		}
	}
}

func (n *Notifier) listen(ctx context.Context) error {
	pooled, err := n.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}

	// The connection keeps LISTEN state, so it never goes back to the pool.
	conn := pooled.Hijack()

	defer func() {
		_ = conn.Close(context.Background())
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", n.channel, err)
	}

	n.logger.Info().Str("channel", n.channel).Msg("change listener started")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		n.dispatch(notification.Payload)
	}
}

// dispatch decodes one payload and calls every matching subscriber outside the lock.
func (n *Notifier) dispatch(payload string) {
	ev, err := decodeChangeEvent(payload)
	if err != nil {
		n.logger.Warn().Err(err).Str("payload", payload).Msg("undecodable change notification")

		return
	}

	observability.ChangeEvents.WithLabelValues(ev.Table).Inc()

	n.mu.Lock()

	targets := make([]func(domain.ChangeEvent), 0, len(n.subs))

	for _, s := range n.subs {
		if s.filter.Matches(ev) {
			targets = append(targets, s.onEvent)
		}
	}

	n.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}

func (n *Notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.subs = make(map[uint64]subscription)
}

var errEmptyTable = errors.New("change notification without table")

func decodeChangeEvent(payload string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent

	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}

	if ev.Table == "" {
		return domain.ChangeEvent{}, errEmptyTable
	}

	ev.CapturedAt = ev.CapturedAt.UTC()

	return ev, nil
}
