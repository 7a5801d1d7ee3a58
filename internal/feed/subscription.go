package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dxtools/quotetap/internal/model"
)

// Listener receives decoded quote events. It is invoked on the
// subscription's delivery goroutine, never on the caller's.
type Listener func(q model.Quote)

// Subscription binds symbols and a listener to a feed session under a small
// numeric tag. The setup sequence is create, AttachListener, AddSymbol;
// teardown reverses it: RemoveSymbol, DetachListener, Close. Each step is
// error-checked and records the session's last-error state on failure.
type Subscription struct {
	conn   *Conn
	tag    int
	events model.EventType
	logger *slog.Logger

	queue *GrowableBuffer[model.Quote]
	wg    sync.WaitGroup

	mu       sync.Mutex
	listener Listener
	symbols  map[string]int64 // symbol → server-assigned sid
	closing  bool
	closed   bool
}

// newSubscription allocates the event queue and starts the delivery
// goroutine. Called with the Conn registry lock held.
func newSubscription(c *Conn, tag int, events model.EventType) *Subscription {
	s := &Subscription{
		conn:    c,
		tag:     tag,
		events:  events,
		logger:  c.logger.With("tag", tag),
		queue:   NewGrowableBuffer[model.Quote](c.cfg.QueueSize),
		symbols: make(map[string]int64),
	}

	s.wg.Add(1)
	go s.deliverLoop()

	return s
}

// Tag returns the caller-chosen numeric identity of the subscription.
func (s *Subscription) Tag() int {
	return s.tag
}

// Events returns the event mask the subscription was created with.
func (s *Subscription) Events() model.EventType {
	return s.events
}

// Symbols returns the currently subscribed symbols.
func (s *Subscription) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// AttachListener installs the event listener. A subscription holds at most
// one listener; attaching over an existing one is an error.
func (s *Subscription) AttachListener(l Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.conn.lastErr.set(CodeClosed, ErrSubClosed)
		return ErrSubClosed
	}
	if s.listener != nil {
		s.conn.lastErr.set(CodeSubscribeFailed, ErrListenerAttached)
		return ErrListenerAttached
	}

	s.listener = l
	s.logger.Debug("listener attached")
	return nil
}

// DetachListener removes the installed listener. Events already queued are
// still drained but no longer delivered anywhere.
func (s *Subscription) DetachListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		s.conn.lastErr.set(CodeUnsubscribeFailed, ErrNoListener)
		return ErrNoListener
	}

	s.listener = nil
	s.logger.Debug("listener detached")
	return nil
}

// AddSymbol subscribes the symbol on the feed and routes its events to this
// subscription. Adding a symbol twice is a no-op.
func (s *Subscription) AddSymbol(ctx context.Context, symbol string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.conn.lastErr.set(CodeClosed, ErrSubClosed)
		return ErrSubClosed
	}
	if _, exists := s.symbols[symbol]; exists {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Debug("adding symbol", "symbol", symbol)

	// Network round-trip happens outside the lock.
	sid, err := s.conn.subscribe(ctx, s.events, symbol)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		// Closed while the subscribe was in flight; roll it back.
		s.mu.Unlock()
		s.conn.unsubscribe(ctx, sid)
		return ErrSubClosed
	}
	s.symbols[symbol] = sid
	s.mu.Unlock()

	s.conn.route(sid, s)
	return nil
}

// RemoveSymbol unsubscribes the symbol and stops routing its events here.
func (s *Subscription) RemoveSymbol(ctx context.Context, symbol string) error {
	s.mu.Lock()
	sid, ok := s.symbols[symbol]
	s.mu.Unlock()

	if !ok {
		s.conn.lastErr.set(CodeUnsubscribeFailed, ErrSymbolNotFound)
		return ErrSymbolNotFound
	}

	s.logger.Debug("removing symbol", "symbol", symbol, "sid", sid)

	if err := s.conn.unsubscribe(ctx, sid); err != nil {
		return err
	}

	s.conn.unroute(sid)

	s.mu.Lock()
	delete(s.symbols, symbol)
	s.mu.Unlock()

	return nil
}

// Close tears the subscription down: every symbol is removed, the listener
// detached, and the event queue released. The first failing step aborts the
// teardown so it can be retried; the session's forced shutdown path covers
// the rest. Idempotent; under concurrent calls only one performs the
// teardown and the others return nil. Must not be called from the listener
// itself.
func (s *Subscription) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	s.logger.Debug("closing subscription")

	for _, sym := range symbols {
		if err := s.RemoveSymbol(ctx, sym); err != nil {
			// Leave the subscription retryable.
			s.mu.Lock()
			s.closing = false
			s.mu.Unlock()
			return err
		}
	}

	s.shutdown()
	return nil
}

// shutdown releases local resources unconditionally: detaches the listener,
// closes the queue, waits for delivery to drain, and unregisters from the
// session. Safe to call more than once.
func (s *Subscription) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listener = nil
	for _, sid := range s.symbols {
		s.conn.unroute(sid)
	}
	s.symbols = make(map[string]int64)
	s.mu.Unlock()

	s.queue.Close()
	s.wg.Wait()

	s.conn.removeSub(s.tag)
	s.logger.Debug("subscription closed")
}

// dispatch enqueues a decoded quote for delivery. Called from the session's
// read goroutine.
func (s *Subscription) dispatch(q model.Quote) {
	if !s.events.Has(model.EventQuote) {
		return
	}
	s.queue.Send(q)
}

// deliverLoop drains the event queue and invokes the listener. This
// goroutine is the only place listener callbacks run.
func (s *Subscription) deliverLoop() {
	defer s.wg.Done()

	for {
		q, ok := s.queue.Receive()
		if !ok {
			return
		}

		s.mu.Lock()
		l := s.listener
		s.mu.Unlock()

		if l != nil {
			l(q)
		}
	}
}

// resubscribe re-sends subscribe commands for the current symbols after a
// reconnect, refreshing sids and routing.
func (s *Subscription) resubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	for _, sym := range symbols {
		sid, err := s.conn.subscribe(ctx, s.events, sym)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.symbols[sym] = sid
		s.mu.Unlock()

		s.conn.route(sid, s)
	}

	return nil
}
