package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/flashloan-executor/business/blockchain/app"
	"github.com/fd1az/flashloan-executor/business/blockchain/domain"
	"github.com/fd1az/flashloan-executor/internal/logger"
)

// HeadWatcherConfig holds configuration for the head feed.
type HeadWatcherConfig struct {
	WSURL          string        // websocket endpoint; empty means polling only
	PollInterval   time.Duration // polling interval for the HTTP fallback
	ReconnectDelay time.Duration // time spent polling before retrying the websocket
}

// DefaultHeadWatcherConfig returns sensible defaults.
func DefaultHeadWatcherConfig(wsURL string) HeadWatcherConfig {
	return HeadWatcherConfig{
		WSURL:          wsURL,
		PollInterval:   2 * time.Second,
		ReconnectDelay: 30 * time.Second,
	}
}

type headWatcherMetrics struct {
	headsReceived   metric.Int64Counter
	subscribeErrors metric.Int64Counter
	fallbacks       metric.Int64Counter
}

// HeadWatcher follows the chain head over a websocket subscription, falling
// back to polling the HTTP backend, and fans heads out to subscribers.
type HeadWatcher struct {
	config HeadWatcherConfig
	logger logger.LoggerInterface
	poller Backend

	mu        sync.Mutex
	subs      map[int]chan domain.Head
	nextID    int
	state     domain.ConnectionState
	lastBlock uint64

	metrics *headWatcherMetrics
}

var _ app.HeadWatcher = (*HeadWatcher)(nil)

// NewHeadWatcher creates a head watcher polling through poller when the websocket is unavailable.
func NewHeadWatcher(poller Backend, cfg HeadWatcherConfig, log logger.LoggerInterface) (*HeadWatcher, error) {
	h := &HeadWatcher{
		config: cfg,
		logger: log,
		poller: poller,
		subs:   make(map[int]chan domain.Head),
		state:  domain.StateDisconnected,
	}

	if err := h.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return h, nil
}

func (h *HeadWatcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	h.metrics = &headWatcherMetrics{}

	h.metrics.headsReceived, err = meter.Int64Counter(
		"eth_heads_received_total",
		metric.WithDescription("Total chain heads observed"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	h.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total head subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	h.metrics.fallbacks, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times HTTP polling fallback was used"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Subscribe registers a listener. Slow listeners miss heads rather than block the feed.
func (h *HeadWatcher) Subscribe() (<-chan domain.Head, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan domain.Head, 1)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// State returns the current feed state.
func (h *HeadWatcher) State() domain.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Run follows the head until ctx is done. Subscriber channels are closed on return.
func (h *HeadWatcher) Run(ctx context.Context) {
	defer h.closeAll()

	for ctx.Err() == nil {
		if h.config.WSURL != "" {
			h.setState(domain.StateConnecting)
			if err := h.stream(ctx); err != nil && ctx.Err() == nil {
				h.metrics.subscribeErrors.Add(ctx, 1)
				h.logger.Warn(ctx, "head subscription ended, falling back to polling", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
			h.metrics.fallbacks.Add(ctx, 1)
			h.poll(ctx, h.config.ReconnectDelay)
			continue
		}

		h.poll(ctx, 0)
	}
}

// stream runs a websocket newHeads subscription until it fails.
func (h *HeadWatcher) stream(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, h.config.WSURL)
	if err != nil {
		return fmt.Errorf("dial ws: %w", err)
	}
	defer client.Close()

	headers := make(chan *types.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("subscribe new head: %w", err)
	}
	defer sub.Unsubscribe()

	h.setState(domain.StateStreaming)
	h.logger.Info(ctx, "subscribed to new heads via ws")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case header := <-headers:
			if header != nil {
				h.publish(ctx, header)
			}
		}
	}
}

// poll fetches the latest header every PollInterval. A positive limit bounds
// how long polling lasts before returning.
func (h *HeadWatcher) poll(ctx context.Context, limit time.Duration) {
	h.setState(domain.StatePolling)

	ticker := time.NewTicker(h.config.PollInterval)
	defer ticker.Stop()

	var expired <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-expired:
			return
		case <-ticker.C:
			header, err := h.poller.HeaderByNumber(ctx, nil)
			if err != nil {
				h.metrics.subscribeErrors.Add(ctx, 1)
				h.logger.Debug(ctx, "head poll failed", "error", err)
				continue
			}
			h.publish(ctx, header)
		}
	}
}

func (h *HeadWatcher) publish(ctx context.Context, header *types.Header) {
	head := domain.Head{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash(),
		Timestamp: time.Unix(int64(header.Time), 0),
		BaseFee:   header.BaseFee,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if head.Number <= h.lastBlock {
		return
	}
	h.lastBlock = head.Number
	h.metrics.headsReceived.Add(ctx, 1)

	for _, ch := range h.subs {
		select {
		case ch <- head:
		default:
		}
	}
}

func (h *HeadWatcher) setState(state domain.ConnectionState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}

func (h *HeadWatcher) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.state = domain.StateDisconnected
}
