package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dxtools/quotetap/internal/model"
)

// Conn is a feed session: one socket plus the subscriptions attached to it.
//
// Conn owns command/response correlation, quote dispatch to subscriptions,
// the last-error state, and reconnection. Close tears down all live
// subscriptions before the socket goes away.
type Conn struct {
	cfg     ConnConfig
	logger  *slog.Logger
	session uuid.UUID

	clientMu sync.RWMutex
	client   Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Subscription registry (tag → subscription)
	mu     sync.RWMutex
	closed bool
	subs   map[int]*Subscription

	// Quote routing (sid → subscription)
	routeMu sync.RWMutex
	routes  map[int64]*Subscription

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan Response
	cmdID     int64

	lastErr lastErrorState
}

// ConnStats provides statistics about a feed session.
type ConnStats struct {
	Connected     bool
	Subscriptions int
	Symbols       int
}

// Dial opens a feed session. The context bounds the initial handshake only;
// the session itself lives until Close.
func Dial(ctx context.Context, cfg ConnConfig, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSubscriptions == 0 {
		cfg.MaxSubscriptions = DefaultConnConfig().MaxSubscriptions
	}

	c := &Conn{
		cfg:     cfg,
		session: uuid.New(),
		subs:    make(map[int]*Subscription),
		routes:  make(map[int64]*Subscription),
		pending: make(map[int64]chan Response),
	}
	c.logger = logger.With("session", c.session.String())
	c.ctx, c.cancel = context.WithCancel(context.Background())

	client := NewClient(c.clientConfig(), c.logger)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	c.client = client

	c.wg.Add(1)
	go c.readLoop(client)

	c.logger.Info("feed session opened", "url", cfg.URL)

	return c, nil
}

// SessionID returns the session identity assigned at dial.
func (c *Conn) SessionID() uuid.UUID {
	return c.session
}

// LastError returns the most recent failure recorded on this session.
// A LastError with CodeSuccess means no error information is stored.
func (c *Conn) LastError() LastError {
	return c.lastErr.get()
}

// Stats returns current session statistics.
func (c *Conn) Stats() ConnStats {
	c.mu.RLock()
	subs := len(c.subs)
	c.mu.RUnlock()

	c.routeMu.RLock()
	symbols := len(c.routes)
	c.routeMu.RUnlock()

	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	return ConnStats{
		Connected:     client != nil && client.IsConnected(),
		Subscriptions: subs,
		Symbols:       symbols,
	}
}

// CreateSubscription registers a new tagged subscription for the given event
// mask. The tag is caller-chosen identity used in logs and listener output.
func (c *Conn) CreateSubscription(tag int, events model.EventType) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.lastErr.set(CodeClosed, ErrAlreadyClosed)
		return nil, ErrAlreadyClosed
	}
	if len(c.subs) >= c.cfg.MaxSubscriptions {
		c.lastErr.set(CodeSubscribeFailed, ErrTooManySubs)
		return nil, ErrTooManySubs
	}
	if _, exists := c.subs[tag]; exists {
		err := fmt.Errorf("subscription tag %d already in use", tag)
		c.lastErr.set(CodeSubscribeFailed, err)
		return nil, err
	}

	s := newSubscription(c, tag, events)
	c.subs[tag] = s

	c.logger.Debug("subscription created", "tag", tag, "events", events.String())

	return s, nil
}

// Close tears the session down: every live subscription is closed first
// (detaching its listener and releasing its queue), then the socket.
// Idempotent.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	// Subscriptions must be detached before the socket closes.
	for _, s := range subs {
		if err := s.Close(ctx); err != nil {
			c.logger.Warn("subscription close failed, forcing teardown",
				"tag", s.Tag(),
				"error", err,
			)
			s.shutdown()
		}
	}

	c.cancel()

	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()
	if client != nil {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("session shutdown timeout")
	}

	c.logger.Info("feed session closed")
	return nil
}

// clientConfig builds the socket config for this session.
func (c *Conn) clientConfig() ClientConfig {
	return ClientConfig{
		URL:          c.cfg.URL,
		Token:        c.cfg.Token,
		SessionID:    c.session.String(),
		PingInterval: c.cfg.PingInterval,
		PingTimeout:  c.cfg.PingTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		BufferSize:   c.cfg.FrameBufferSize,
	}
}

// removeSub drops a closed subscription from the registry.
func (c *Conn) removeSub(tag int) {
	c.mu.Lock()
	delete(c.subs, tag)
	c.mu.Unlock()
}

// route binds a server-assigned sid to a subscription.
func (c *Conn) route(sid int64, s *Subscription) {
	c.routeMu.Lock()
	c.routes[sid] = s
	c.routeMu.Unlock()
}

// unroute drops a sid binding.
func (c *Conn) unroute(sid int64) {
	c.routeMu.Lock()
	delete(c.routes, sid)
	c.routeMu.Unlock()
}

// readLoop consumes frames from a socket and dispatches them.
func (c *Conn) readLoop(client Client) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return

		case err := <-client.Errors():
			c.logger.Warn("feed socket error", "error", err)
			c.wg.Add(1)
			go c.reconnect()
			return

		case msg, ok := <-client.Messages():
			if !ok {
				return
			}

			if resp, ok := c.tryParseResponse(msg.Data); ok {
				c.routeResponse(resp)
				continue
			}

			c.dispatchData(msg)
		}
	}
}

// dispatchData decodes a data frame and hands it to the owning subscription.
func (c *Conn) dispatchData(msg TimestampedMessage) {
	var wire QuoteWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		c.lastErr.set(CodeProtocol, err)
		c.logger.Warn("failed to parse data frame", "error", err)
		return
	}

	if wire.Type != "quote" {
		c.logger.Debug("skipping frame type", "type", wire.Type)
		return
	}

	c.routeMu.RLock()
	sub := c.routes[wire.SID]
	c.routeMu.RUnlock()

	if sub == nil {
		// Frames can race an unsubscribe; drop them.
		c.logger.Debug("no subscription for sid", "sid", wire.SID)
		return
	}

	sub.dispatch(decodeQuote(wire, msg.ReceivedAt))
}

// decodeQuote converts a wire quote frame to a model.Quote.
func decodeQuote(wire QuoteWire, receivedAt time.Time) model.Quote {
	return model.Quote{
		Symbol:          wire.Msg.Symbol,
		Sequence:        wire.Msg.Sequence,
		BidTime:         wire.Msg.BidTime,
		BidExchangeCode: wire.Msg.BidExchangeCode,
		BidPrice:        wire.Msg.BidPrice,
		BidSize:         wire.Msg.BidSize,
		AskTime:         wire.Msg.AskTime,
		AskExchangeCode: wire.Msg.AskExchangeCode,
		AskPrice:        wire.Msg.AskPrice,
		AskSize:         wire.Msg.AskSize,
		Scope:           model.ScopeFromWire(wire.Msg.Scope),
		ReceivedAt:      receivedAt,
	}
}

// tryParseResponse attempts to parse a frame as a command response.
func (c *Conn) tryParseResponse(data []byte) (Response, bool) {
	// Quick check for response markers
	if !bytes.Contains(data, []byte(`"id":`)) {
		return Response{}, false
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, false
	}

	switch resp.Type {
	case "subscribed", "unsubscribed", "error", "ok":
		return resp, true
	}

	return Response{}, false
}

// routeResponse hands a response to the goroutine waiting on it.
func (c *Conn) routeResponse(resp Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// subscribe sends a subscribe command for one symbol and waits for the
// server-assigned sid.
func (c *Conn) subscribe(ctx context.Context, events model.EventType, symbol string) (int64, error) {
	id := atomic.AddInt64(&c.cmdID, 1)
	respCh := make(chan Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	cmd := Command{
		ID:  id,
		Cmd: "subscribe",
		Params: SubscribeParams{
			Events:  eventNames(events),
			Symbols: []string{symbol},
		},
	}

	data, _ := json.Marshal(cmd)

	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	if err := client.Send(data); err != nil {
		c.lastErr.set(CodeNotConnected, err)
		return 0, err
	}

	select {
	case <-ctx.Done():
		c.lastErr.set(CodeSubscribeFailed, ctx.Err())
		return 0, ctx.Err()
	case <-c.ctx.Done():
		c.lastErr.set(CodeClosed, c.ctx.Err())
		return 0, c.ctx.Err()
	case <-time.After(c.cfg.SubscribeTimeout):
		c.lastErr.set(CodeTimeout, ErrTimeout)
		return 0, ErrTimeout
	case resp := <-respCh:
		if resp.Type == "error" {
			var errMsg ErrorMsg
			json.Unmarshal(resp.Msg, &errMsg)
			err := fmt.Errorf("%s: %s", errMsg.Code, errMsg.Message)
			c.lastErr.set(CodeSubscribeFailed, err)
			return 0, err
		}

		var subMsg SubscribedMsg
		if err := json.Unmarshal(resp.Msg, &subMsg); err != nil {
			c.lastErr.set(CodeProtocol, err)
			return 0, err
		}

		c.logger.Debug("subscribed",
			"symbol", symbol,
			"sid", subMsg.SID,
		)

		return subMsg.SID, nil
	}
}

// unsubscribe sends an unsubscribe command for a sid and waits for the ack.
func (c *Conn) unsubscribe(ctx context.Context, sid int64) error {
	id := atomic.AddInt64(&c.cmdID, 1)
	respCh := make(chan Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	cmd := Command{
		ID:  id,
		Cmd: "unsubscribe",
		Params: UnsubscribeParams{
			SIDs: []int64{sid},
		},
	}

	data, _ := json.Marshal(cmd)

	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	if err := client.Send(data); err != nil {
		c.lastErr.set(CodeNotConnected, err)
		return err
	}

	select {
	case <-ctx.Done():
		c.lastErr.set(CodeUnsubscribeFailed, ctx.Err())
		return ctx.Err()
	case <-c.ctx.Done():
		c.lastErr.set(CodeClosed, c.ctx.Err())
		return c.ctx.Err()
	case <-time.After(c.cfg.SubscribeTimeout):
		c.lastErr.set(CodeTimeout, ErrTimeout)
		return ErrTimeout
	case resp := <-respCh:
		if resp.Type == "error" {
			var errMsg ErrorMsg
			json.Unmarshal(resp.Msg, &errMsg)
			err := fmt.Errorf("%s: %s", errMsg.Code, errMsg.Message)
			c.lastErr.set(CodeUnsubscribeFailed, err)
			return err
		}

		c.logger.Debug("unsubscribed", "sid", sid)
		return nil
	}
}

// reconnect re-dials with exponential backoff, then re-subscribes every
// symbol held by live subscriptions.
func (c *Conn) reconnect() {
	defer c.wg.Done()

	wait := c.cfg.ReconnectBaseWait
	maxWait := c.cfg.ReconnectMaxWait

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(wait):
		}

		c.logger.Info("attempting reconnection")

		c.clientMu.Lock()
		if c.client != nil {
			c.client.Close()
		}
		client := NewClient(c.clientConfig(), c.logger)
		c.client = client
		c.clientMu.Unlock()

		// Drop stale correlation state from the old socket.
		c.pendingMu.Lock()
		c.pending = make(map[int64]chan Response)
		c.pendingMu.Unlock()

		if err := client.Connect(c.ctx); err != nil {
			c.lastErr.set(CodeConnectFailed, err)
			c.logger.Warn("reconnection failed", "error", err)

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		c.logger.Info("reconnected")

		c.wg.Add(1)
		go c.readLoop(client)

		c.resubscribeAll()
		return
	}
}

// resubscribeAll re-sends subscribe commands for every symbol of every live
// subscription, rebuilding the sid routing table.
func (c *Conn) resubscribeAll() {
	c.mu.RLock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.RUnlock()

	c.routeMu.Lock()
	c.routes = make(map[int64]*Subscription)
	c.routeMu.Unlock()

	for _, s := range subs {
		if err := s.resubscribe(c.ctx); err != nil {
			c.logger.Warn("resubscribe failed",
				"tag", s.Tag(),
				"error", err,
			)
		}
	}
}

// eventNames converts an event mask to wire event names.
func eventNames(events model.EventType) []string {
	names := []string{}
	if events.Has(model.EventQuote) {
		names = append(names, "quote")
	}
	if events.Has(model.EventTrade) {
		names = append(names, "trade")
	}
	if events.Has(model.EventOrder) {
		names = append(names, "order")
	}
	if events.Has(model.EventSummary) {
		names = append(names, "summary")
	}
	if events.Has(model.EventProfile) {
		names = append(names, "profile")
	}
	return names
}
