// feedsim serves a synthetic quote feed speaking the quotetap wire
// protocol. It accepts subscribe/unsubscribe commands, assigns sids, and
// emits random-walk quotes for every subscribed symbol.
// Usage: go run ./cmd/feedsim --addr :7300 --interval 500ms
package main

import (
	"context"
	"encoding/json"
	"flag"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dxtools/quotetap/internal/feed"
	"github.com/dxtools/quotetap/internal/version"
)

func main() {
	addr := flag.String("addr", ":7300", "listen address")
	path := flag.String("path", "/feed", "websocket path")
	interval := flag.Duration("interval", 500*time.Millisecond, "quote emit interval")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedsim",
		"version", version.Version,
		"addr", *addr,
		"path", *path,
		"interval", *interval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	sim := &simulator{
		logger:   logger,
		interval: *interval,
		prices:   make(map[string]float64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(*path, sim.handle)

	server := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("feedsim stopped")
}

// simulator holds shared random-walk price state across client sessions.
type simulator struct {
	logger   *slog.Logger
	interval time.Duration

	priceMu sync.Mutex
	prices  map[string]float64

	nextSID atomic.Int64
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// session is one connected client with its live subscriptions.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[int64]string // sid → symbol
	seqs map[int64]int64  // sid → next sequence
}

func (sim *simulator) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sim.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := &session{
		conn: conn,
		subs: make(map[int64]string),
		seqs: make(map[int64]int64),
	}

	logger := sim.logger.With("remote", conn.RemoteAddr().String(), "session", r.Header.Get("X-Session-ID"))
	logger.Info("client connected")

	done := make(chan struct{})
	defer close(done)
	go sim.emitLoop(sess, logger, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("client disconnected", "error", err)
			return
		}

		var cmd feed.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			logger.Warn("bad command frame", "error", err)
			continue
		}

		sim.handleCommand(sess, logger, data, cmd)
	}
}

// handleCommand dispatches one client command and writes the response.
func (sim *simulator) handleCommand(sess *session, logger *slog.Logger, raw []byte, cmd feed.Command) {
	switch cmd.Cmd {
	case "subscribe":
		var wire struct {
			Params feed.SubscribeParams `json:"params"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil || len(wire.Params.Symbols) == 0 {
			sess.writeError(cmd.ID, "bad_request", "subscribe requires at least one symbol")
			return
		}

		// One sid per command; quotetap subscribes one symbol at a time.
		symbol := wire.Params.Symbols[0]
		sid := sim.nextSID.Add(1)

		sess.mu.Lock()
		sess.subs[sid] = symbol
		sess.seqs[sid] = 1
		sess.mu.Unlock()

		logger.Debug("subscribed", "symbol", symbol, "sid", sid)
		sess.writeResponse(cmd.ID, "subscribed", feed.SubscribedMsg{SID: sid, Symbol: symbol})

	case "unsubscribe":
		var wire struct {
			Params feed.UnsubscribeParams `json:"params"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			sess.writeError(cmd.ID, "bad_request", "malformed unsubscribe")
			return
		}

		sess.mu.Lock()
		for _, sid := range wire.Params.SIDs {
			delete(sess.subs, sid)
			delete(sess.seqs, sid)
		}
		sess.mu.Unlock()

		logger.Debug("unsubscribed", "sids", wire.Params.SIDs)
		sess.writeResponse(cmd.ID, "unsubscribed", feed.UnsubscribedMsg{SIDs: wire.Params.SIDs})

	default:
		sess.writeError(cmd.ID, "unknown_command", "unknown command: "+cmd.Cmd)
	}
}

// emitLoop pushes synthetic quotes for every live subscription.
func (sim *simulator) emitLoop(sess *session, logger *slog.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(sim.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sess.mu.Lock()
			subs := make(map[int64]string, len(sess.subs))
			for sid, sym := range sess.subs {
				subs[sid] = sym
				sess.seqs[sid]++
			}
			seqs := make(map[int64]int64, len(sess.seqs))
			for sid, seq := range sess.seqs {
				seqs[sid] = seq
			}
			sess.mu.Unlock()

			for sid, symbol := range subs {
				frame := sim.makeQuote(sid, symbol, seqs[sid])
				if err := sess.write(frame); err != nil {
					logger.Debug("write failed", "error", err)
					return
				}
			}
		}
	}
}

// makeQuote advances the symbol's random walk and builds a quote frame.
func (sim *simulator) makeQuote(sid int64, symbol string, seq int64) []byte {
	sim.priceMu.Lock()
	mid, ok := sim.prices[symbol]
	if !ok {
		mid = basePrice(symbol)
	}
	mid += (rand.Float64() - 0.5) * mid * 0.001
	sim.prices[symbol] = mid
	sim.priceMu.Unlock()

	now := time.Now().UnixMilli()
	spread := mid * 0.0005

	var wire feed.QuoteWire
	wire.Type = "quote"
	wire.SID = sid
	wire.Msg.Symbol = symbol
	wire.Msg.Sequence = seq
	wire.Msg.BidTime = now
	wire.Msg.BidExchangeCode = "Q"
	wire.Msg.BidPrice = mid - spread
	wire.Msg.BidSize = float64(1 + rand.Intn(100))
	wire.Msg.AskTime = now
	wire.Msg.AskExchangeCode = "Q"
	wire.Msg.AskPrice = mid + spread
	wire.Msg.AskSize = float64(1 + rand.Intn(100))
	wire.Msg.Scope = "composite"

	data, _ := json.Marshal(wire)
	return data
}

// basePrice derives a stable starting price from the symbol name.
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 50 + float64(h.Sum32()%100000)/10
}

func (s *session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) writeResponse(id int64, typ string, msg interface{}) {
	payload, _ := json.Marshal(msg)
	data, _ := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": typ,
		"msg":  json.RawMessage(payload),
	})
	s.write(data)
}

func (s *session) writeError(id int64, code, message string) {
	payload, _ := json.Marshal(feed.ErrorMsg{Code: code, Message: message})
	data, _ := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": "error",
		"msg":  json.RawMessage(payload),
	})
	s.write(data)
}
