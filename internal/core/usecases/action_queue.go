package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
	"github.com/samirrijal/studyspot/internal/pkg/metrics"
	"github.com/samirrijal/studyspot/internal/pkg/observe"
	"github.com/samirrijal/studyspot/internal/pkg/telemetry"
)

const queueStateKey = "queue:state"

// QueueConfig bounds retries of failed deliveries.
type QueueConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
}

// DefaultQueueConfig returns the production retry policy.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
		Multiplier:     2,
		Jitter:         0.2,
	}
}

// queueState is the durable document; one key keeps id allocation and the
// action list consistent with each other.
type queueState struct {
	LastID  int64                 `json:"last_id"`
	Actions []domain.QueuedAction `json:"actions"`
}

// ActionQueue delivers user mutations to the backend at least once and in
// order, across connectivity loss and restarts. It is the only writer of the
// durable action list. Construct one per process and share it.
type ActionQueue struct {
	cache        *PersistentCache
	dispatcher   ports.ActionDispatcher
	connectivity ports.Connectivity
	cfg          QueueConfig
	logger       *slog.Logger
	events       *observe.Broadcaster[domain.QueueEvent]
	tracer       trace.Tracer

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) (stop func() bool)
	newKey    func() string

	mu         sync.Mutex
	loaded     bool
	state      queueState
	online     bool
	lastSyncAt *time.Time
	removeConn func()
	stopRetry  func() bool

	draining     atomic.Bool
	forcePending atomic.Bool
	forceAfter   atomic.Bool
	kick         chan struct{}
}

// QueueOption customizes an ActionQueue.
type QueueOption func(*ActionQueue)

// WithQueueClock replaces the wall clock.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *ActionQueue) { q.now = now }
}

// WithRetryTimer replaces time.AfterFunc for scheduling retries.
func WithRetryTimer(afterFunc func(d time.Duration, f func()) (stop func() bool)) QueueOption {
	return func(q *ActionQueue) { q.afterFunc = afterFunc }
}

// WithIdempotencyKeys replaces the idempotency key generator.
func WithIdempotencyKeys(newKey func() string) QueueOption {
	return func(q *ActionQueue) { q.newKey = newKey }
}

// NewActionQueue creates a queue. connectivity may be nil, in which case the
// queue always considers itself online.
func NewActionQueue(cache *PersistentCache, dispatcher ports.ActionDispatcher, connectivity ports.Connectivity, cfg QueueConfig, opts ...QueueOption) *ActionQueue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultQueueConfig().MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultQueueConfig().InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultQueueConfig().Multiplier
	}

	online := true
	if connectivity != nil {
		online = connectivity.Online()
	}

	q := &ActionQueue{
		cache:        cache,
		dispatcher:   dispatcher,
		connectivity: connectivity,
		cfg:          cfg,
		logger:       slog.Default().With("component", "action_queue"),
		events:       observe.New[domain.QueueEvent](),
		tracer:       otel.Tracer(telemetry.TracerQueue),
		now:          time.Now,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		newKey: uuid.NewString,
		online: online,
		kick:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load reads the durable queue. Storage failures are returned rather than
// treated as an empty queue, so a later write cannot clobber pending actions.
func (q *ActionQueue) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ensureLoadedLocked(ctx)
}

func (q *ActionQueue) ensureLoadedLocked(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	var st queueState
	if _, err := q.cache.Lookup(ctx, queueStateKey, &st); err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	for _, a := range st.Actions {
		if a.ID > st.LastID {
			st.LastID = a.ID
		}
	}
	q.state = st
	q.loaded = true
	metrics.QueuePending.Set(float64(len(st.Actions)))
	if len(st.Actions) > 0 {
		q.logger.Info("restored pending actions", "count", len(st.Actions))
	}
	return nil
}

// persistLocked writes next and swaps it in only after the write succeeded.
func (q *ActionQueue) persistLocked(ctx context.Context, next queueState) error {
	if err := q.cache.Set(ctx, queueStateKey, next); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	q.state = next
	metrics.QueuePending.Set(float64(len(next.Actions)))
	return nil
}

// Enqueue durably appends an action and, when online, schedules a drain.
func (q *ActionQueue) Enqueue(ctx context.Context, kind domain.ActionKind, payload json.RawMessage) (int64, error) {
	if kind == "" {
		return 0, fmt.Errorf("%w: empty kind", domain.ErrUnknownAction)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return 0, errors.New("action payload is not valid JSON")
	}

	q.mu.Lock()
	if err := q.ensureLoadedLocked(ctx); err != nil {
		q.mu.Unlock()
		return 0, err
	}

	action := domain.QueuedAction{
		ID:             q.state.LastID + 1,
		Kind:           kind,
		Payload:        append(json.RawMessage(nil), payload...),
		IdempotencyKey: q.newKey(),
		CreatedAt:      q.now().UTC(),
	}
	next := queueState{
		LastID:  action.ID,
		Actions: append(append([]domain.QueuedAction(nil), q.state.Actions...), action),
	}
	if err := q.persistLocked(ctx, next); err != nil {
		q.mu.Unlock()
		return 0, err
	}
	online := q.online
	q.mu.Unlock()

	metrics.ActionsEnqueued.WithLabelValues(string(kind)).Inc()
	q.logger.Info("action queued", "id", action.ID, "kind", kind, "online", online)
	q.publish(domain.QueueEvent{Type: domain.EventQueued, Action: &action})

	if online {
		q.trigger(false)
	}
	return action.ID, nil
}

// ProcessQueue drains the queue, honoring the backoff of a failing head action.
func (q *ActionQueue) ProcessQueue(ctx context.Context) error {
	return q.drain(ctx, false)
}

// ForceSync drains immediately, ignoring any pending backoff. If a pass is
// already running, a forced pass is queued on the Run worker behind it.
func (q *ActionQueue) ForceSync(ctx context.Context) error {
	return q.drain(ctx, true)
}

// drain delivers actions strictly one at a time from the head. A retryable
// failure stops the pass so later actions never overtake an earlier one; a
// permanent failure drops the action and the pass continues.
func (q *ActionQueue) drain(ctx context.Context, force bool) error {
	if !q.draining.CompareAndSwap(false, true) {
		if !force {
			return nil
		}
		// Hand the force to the running pass, which re-triggers on exit.
		q.forceAfter.Store(true)
		if q.draining.Load() || !q.forceAfter.Swap(false) {
			return nil
		}
		return q.drain(ctx, true)
	}
	defer func() {
		q.draining.Store(false)
		if q.forceAfter.Swap(false) {
			q.trigger(true)
		}
	}()

	var (
		started   bool
		delivered int
		begin     = q.now()
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		q.mu.Lock()
		if err := q.ensureLoadedLocked(ctx); err != nil {
			q.mu.Unlock()
			return err
		}
		if !q.online || len(q.state.Actions) == 0 {
			q.mu.Unlock()
			break
		}
		head := q.state.Actions[0]
		if !force && head.NextAttemptAt != nil && q.now().Before(*head.NextAttemptAt) {
			wait := head.NextAttemptAt.Sub(q.now())
			q.mu.Unlock()
			q.scheduleRetry(wait)
			return nil
		}
		q.mu.Unlock()

		if !started {
			started = true
			q.publish(domain.QueueEvent{Type: domain.EventSyncStart})
		}

		err := q.deliver(ctx, head)
		if err == nil {
			if err := q.resolve(ctx, head.ID); err != nil {
				return err
			}
			delivered++
			metrics.ActionsDelivered.WithLabelValues(string(head.Kind)).Inc()
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stop, err := q.fail(ctx, head, err)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}

	if !started {
		return nil
	}
	metrics.DrainDuration.Observe(q.now().Sub(begin).Seconds())

	q.mu.Lock()
	empty := len(q.state.Actions) == 0
	if empty {
		at := q.now().UTC()
		q.lastSyncAt = &at
	}
	q.mu.Unlock()

	if empty {
		q.logger.Info("queue synced", "delivered", delivered)
		q.publish(domain.QueueEvent{Type: domain.EventSyncComplete, Delivered: delivered})
	}
	return nil
}

func (q *ActionQueue) deliver(ctx context.Context, action domain.QueuedAction) error {
	ctx, span := q.tracer.Start(ctx, telemetry.SpanQueueDeliver, trace.WithAttributes(
		attribute.Int64("action.id", action.ID),
		attribute.String("action.kind", string(action.Kind)),
		attribute.Int("action.attempts", action.Attempts),
	))
	defer span.End()

	err := q.dispatcher.Dispatch(ctx, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// resolve removes a delivered or abandoned action from the durable list.
func (q *ActionQueue) resolve(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := make([]domain.QueuedAction, 0, len(q.state.Actions))
	for _, a := range q.state.Actions {
		if a.ID != id {
			remaining = append(remaining, a)
		}
	}
	return q.persistLocked(ctx, queueState{LastID: q.state.LastID, Actions: remaining})
}

// fail records a failed delivery and reports whether the pass must stop.
func (q *ActionQueue) fail(ctx context.Context, action domain.QueuedAction, cause error) (bool, error) {
	class, code := domain.ClassifyDelivery(cause)
	attempts := action.Attempts + 1
	if class == domain.Retryable && attempts >= q.cfg.MaxAttempts {
		class, code = domain.Permanent, domain.CodeExhausted
	}
	metrics.ActionsFailed.WithLabelValues(string(action.Kind), class.String()).Inc()

	if class == domain.Permanent {
		if err := q.resolve(ctx, action.ID); err != nil {
			return true, err
		}
		action.Attempts = attempts
		action.LastError = cause.Error()
		q.logger.Warn("action dropped", "id", action.ID, "kind", action.Kind, "code", code, "attempts", attempts, "error", cause)
		q.publish(domain.QueueEvent{
			Type:     domain.EventSyncError,
			Action:   &action,
			Error:    cause.Error(),
			Code:     code,
			Terminal: true,
		})
		return false, nil
	}

	delay := q.backoffFor(attempts)
	retryAt := q.now().Add(delay).UTC()

	q.mu.Lock()
	next := queueState{LastID: q.state.LastID, Actions: append([]domain.QueuedAction(nil), q.state.Actions...)}
	for i := range next.Actions {
		if next.Actions[i].ID == action.ID {
			next.Actions[i].Attempts = attempts
			next.Actions[i].LastError = cause.Error()
			next.Actions[i].NextAttemptAt = &retryAt
			action = next.Actions[i]
			break
		}
	}
	err := q.persistLocked(ctx, next)
	q.mu.Unlock()
	if err != nil {
		return true, err
	}

	q.logger.Warn("action delivery failed, will retry", "id", action.ID, "kind", action.Kind, "attempts", attempts, "retry_in", delay, "error", cause)
	q.publish(domain.QueueEvent{
		Type:   domain.EventSyncError,
		Action: &action,
		Error:  cause.Error(),
		Code:   code,
	})
	q.scheduleRetry(delay)
	return true, nil
}

// backoffFor returns the delay before retry number attempts.
func (q *ActionQueue) backoffFor(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.InitialBackoff
	b.MaxInterval = q.cfg.MaxBackoff
	b.Multiplier = q.cfg.Multiplier
	b.RandomizationFactor = q.cfg.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (q *ActionQueue) scheduleRetry(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopRetry != nil {
		q.stopRetry()
	}
	q.stopRetry = q.afterFunc(d, func() { q.trigger(false) })
}

// trigger wakes the Run loop. A forced trigger survives coalescing with an
// unforced one.
func (q *ActionQueue) trigger(force bool) {
	if force {
		q.forcePending.Store(true)
	}
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Run drains the queue whenever it is triggered, until ctx ends.
func (q *ActionQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.kick:
			force := q.forcePending.Swap(false)
			if err := q.drain(ctx, force); err != nil && ctx.Err() == nil {
				q.logger.Error("queue drain failed", "error", err)
			}
		}
	}
}

// StartListening attaches the connectivity observer. Coming back online
// triggers an immediate drain.
func (q *ActionQueue) StartListening() {
	if q.connectivity == nil {
		return
	}

	q.mu.Lock()
	if q.removeConn != nil {
		q.mu.Unlock()
		return
	}
	q.online = q.connectivity.Online()
	online := q.online
	q.mu.Unlock()

	remove := q.connectivity.Subscribe(q.setOnline)

	q.mu.Lock()
	q.removeConn = remove
	q.mu.Unlock()

	q.setGauge(online)
	if online {
		q.trigger(true)
	}
}

// StopListening detaches the connectivity observer. Safe to call more than once.
func (q *ActionQueue) StopListening() {
	q.mu.Lock()
	remove := q.removeConn
	q.removeConn = nil
	q.mu.Unlock()

	if remove != nil {
		remove()
	}
}

func (q *ActionQueue) setOnline(online bool) {
	q.mu.Lock()
	was := q.online
	q.online = online
	q.mu.Unlock()

	q.setGauge(online)
	if online && !was {
		q.logger.Info("connectivity restored, syncing")
		q.trigger(true)
	} else if !online && was {
		q.logger.Info("connectivity lost, queueing")
	}
}

func (q *ActionQueue) setGauge(online bool) {
	if online {
		metrics.QueueOnline.Set(1)
	} else {
		metrics.QueueOnline.Set(0)
	}
}

// Status returns a snapshot safe to poll.
func (q *ActionQueue) Status() domain.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := domain.QueueStatus{
		IsOnline:     q.online,
		PendingCount: len(q.state.Actions),
		Syncing:      q.draining.Load(),
	}
	if q.lastSyncAt != nil {
		at := *q.lastSyncAt
		st.LastSyncAt = &at
	}
	return st
}

// Pending returns a copy of the queued actions in delivery order.
func (q *ActionQueue) Pending() []domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.QueuedAction(nil), q.state.Actions...)
}

// Subscribe registers fn for queue events.
func (q *ActionQueue) Subscribe(fn func(domain.QueueEvent)) *observe.Subscription {
	return q.events.Subscribe(fn)
}

// Close detaches listeners and cancels any scheduled retry.
func (q *ActionQueue) Close() {
	q.StopListening()
	q.mu.Lock()
	if q.stopRetry != nil {
		q.stopRetry()
		q.stopRetry = nil
	}
	q.mu.Unlock()
	q.events.Close()
}

func (q *ActionQueue) publish(ev domain.QueueEvent) {
	ev.At = q.now().UTC()
	q.events.Publish(ev)
}
