package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/logger"
)

const (
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Stream consumes the market-data websocket and feeds trade ticks into the
// cache. Subscriptions follow the open position book: a ticker is added
// when a position opens and dropped when it closes.
type Stream struct {
	url    string
	key    string
	secret string
	cache  *Cache
	logger *logger.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	symbols   map[string]bool
	symbolsMu sync.RWMutex

	stopCh       chan struct{}
	doneCh       chan struct{}
	reconnecting bool
	reconnectMu  sync.Mutex
}

// NewStream creates a stream consumer over the given cache.
func NewStream(cfg *config.Config, cache *Cache, log *logger.Logger) *Stream {
	return &Stream{
		url:     cfg.Alpaca.StreamURL,
		key:     cfg.Alpaca.APIKey,
		secret:  cfg.Alpaca.SecretKey,
		cache:   cache,
		logger:  log,
		symbols: make(map[string]bool),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start connects and launches the read and ping loops.
func (s *Stream) Start(ctx context.Context) error {
	s.logger.Info("Starting price stream")

	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go s.readLoop(ctx)
	go s.pingLoop(ctx)

	return nil
}

// Stop closes the connection and waits for the read loop to drain.
func (s *Stream) Stop() {
	s.logger.Info("Stopping price stream")

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	<-s.doneCh
}

// Subscribe adds a ticker to the live trade feed.
func (s *Stream) Subscribe(ticker string) {
	s.symbolsMu.Lock()
	already := s.symbols[ticker]
	s.symbols[ticker] = true
	s.symbolsMu.Unlock()

	if !already {
		s.sendSubscription("subscribe", []string{ticker})
	}
}

// Unsubscribe drops a ticker from the live trade feed.
func (s *Stream) Unsubscribe(ticker string) {
	s.symbolsMu.Lock()
	present := s.symbols[ticker]
	delete(s.symbols, ticker)
	s.symbolsMu.Unlock()

	if present {
		s.sendSubscription("unsubscribe", []string{ticker})
	}
}

// ActiveSymbols returns the currently subscribed tickers.
func (s *Stream) ActiveSymbols() []string {
	s.symbolsMu.RLock()
	defer s.symbolsMu.RUnlock()

	out := make([]string, 0, len(s.symbols))
	for ticker := range s.symbols {
		out = append(out, ticker)
	}
	return out
}

func (s *Stream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.logger.WithField("url", s.url).Debug("Connecting to price stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	s.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	auth := map[string]string{"action": "auth", "key": s.key, "secret": s.secret}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return fmt.Errorf("auth failed: %w", err)
	}

	s.logger.Info("Connected to price stream")

	// Re-subscribe everything the book is tracking.
	s.symbolsMu.RLock()
	tickers := make([]string, 0, len(s.symbols))
	for ticker := range s.symbols {
		tickers = append(tickers, ticker)
	}
	s.symbolsMu.RUnlock()

	if len(tickers) > 0 {
		msg := map[string]interface{}{"action": "subscribe", "trades": tickers}
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.WithError(err).Error("Failed to restore subscriptions")
		}
	}

	return nil
}

func (s *Stream) sendSubscription(action string, tickers []string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	msg := map[string]interface{}{"action": action, "trades": tickers}
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.WithError(err).WithField("action", action).Error("Subscription message failed")
	}
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()

		if conn == nil {
			time.Sleep(1 * time.Second)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.WithError(err).Error("Failed to read stream message")
			s.handleDisconnect(ctx)
			continue
		}

		if err := s.handleMessage(message); err != nil {
			s.logger.WithError(err).Error("Failed to handle stream message")
		}
	}
}

// streamMessage is one element of the stream's JSON array frame.
type streamMessage struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	Price     float64   `json:"p"`
	Timestamp time.Time `json:"t"`
}

func (s *Stream) handleMessage(message []byte) error {
	var msgs []streamMessage
	if err := json.Unmarshal(message, &msgs); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	for _, msg := range msgs {
		if msg.Type != "t" || msg.Symbol == "" || msg.Price <= 0 {
			continue
		}

		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}

		s.cache.Update(&Quote{
			Ticker:    msg.Symbol,
			Price:     msg.Price,
			Timestamp: ts,
			Source:    "stream",
		})
	}
	return nil
}

func (s *Stream) handleDisconnect(ctx context.Context) {
	s.reconnectMu.Lock()
	if s.reconnecting {
		s.reconnectMu.Unlock()
		return
	}
	s.reconnecting = true
	s.reconnectMu.Unlock()

	defer func() {
		s.reconnectMu.Lock()
		s.reconnecting = false
		s.reconnectMu.Unlock()
	}()

	s.logger.Warn("Price stream disconnected, attempting to reconnect")

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(delay):
		}

		if err := s.connect(ctx); err != nil {
			s.logger.WithError(err).WithField("delay", delay).Error("Reconnect failed, retrying")

			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		s.logger.Info("Reconnected to price stream")
		return
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				s.logger.WithError(err).Error("Failed to send ping")
			}
		}
	}
}
