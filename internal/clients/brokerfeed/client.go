// Package brokerfeed is the websocket client for the broker gateway.
// It maintains caches of positions, quotes, option chains and history
// frames pushed by the gateway, serves them through the market data
// boundary, and submits hedging orders through the execution boundary.
package brokerfeed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/jackleonard0102/ibtrading/internal/domain"
	"github.com/jackleonard0102/ibtrading/internal/events"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute

	historyWait = 15 * time.Second
)

// Compile-time checks: the client serves both collaborator boundaries
var (
	_ domain.MarketDataClient = (*Client)(nil)
	_ domain.ExecutionClient  = (*Client)(nil)
)

// Client is the broker gateway websocket client
type Client struct {
	// Connection
	url        string
	sid        string       // Optional gateway session ID
	httpClient *http.Client // Reusable HTTP client configured for HTTP/1.1
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	// Dependencies
	bus *events.Bus
	log zerolog.Logger

	// State
	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
	symbols      []string // subscription list, replayed on reconnect

	// Caches (thread-safe)
	cacheMu   sync.RWMutex
	positions map[string][]domain.Position
	quotes    map[string]domain.Quote
	chains    map[string][]domain.OptionQuote

	// In-flight history requests and locally tracked orders
	waiterMu       sync.Mutex
	historyWaiters map[string][]chan domain.PriceSeries
	orderMu        sync.Mutex
	openOrders     map[string]domain.OrderAck
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// Proxies in front of the gateway may negotiate HTTP/2 via TLS ALPN,
// but the websocket upgrade handshake requires HTTP/1.1.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewClient creates a broker feed client for the given gateway URL and
// subscription symbols
func NewClient(url, sid string, symbols []string, bus *events.Bus, log zerolog.Logger) *Client {
	return &Client{
		url:            url,
		sid:            sid,
		symbols:        symbols,
		httpClient:     createHTTP1Client(),
		bus:            bus,
		log:            log.With().Str("component", "broker_feed").Logger(),
		stopChan:       make(chan struct{}),
		positions:      make(map[string][]domain.Position),
		quotes:         make(map[string]domain.Quote),
		chains:         make(map[string][]domain.OptionQuote),
		historyWaiters: make(map[string][]chan domain.PriceSeries),
		openOrders:     make(map[string]domain.OrderAck),
	}
}

// Start establishes the gateway connection and begins the read loop.
// A failed initial connection is not fatal; the reconnect loop keeps
// trying in the background.
func (c *Client) Start() error {
	c.log.Info().Msg("Starting broker feed client")

	if err := c.Connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial gateway connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	c.mu.RLock()
	ctx := c.connCtx
	c.mu.RUnlock()
	go c.readMessages(ctx)

	c.log.Info().Msg("Broker feed client started")
	return nil
}

// Stop gracefully shuts down the gateway connection
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.log.Info().Msg("Stopping broker feed client")
	close(c.stopChan)
	return c.Disconnect()
}

// Connect dials the gateway and replays the subscription list
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wsURL := c.url
	if c.sid != "" {
		wsURL += "?SID=" + c.sid
	}

	c.log.Info().Str("url", wsURL).Msg("Connecting to broker gateway")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	if err := c.writeFrame(connCtx, outboundFrame{Type: frameSubscribe, Symbols: c.symbols}); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		c.conn = nil
		c.connCtx = nil
		c.cancelFunc = nil
		c.connected = false
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.emitFeedStatus(true)
	c.log.Info().Strs("symbols", c.symbols).Msg("Connected to broker gateway")
	return nil
}

// Disconnect closes the gateway connection
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	c.connCtx = nil
	c.connected = false
	c.emitFeedStatus(false)

	if err != nil {
		return fmt.Errorf("error closing gateway connection: %w", err)
	}
	return nil
}

func (c *Client) writeFrame(ctx context.Context, frame outboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", frame.Type, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", frame.Type, err)
	}
	return nil
}

// send marshals and writes a frame on the current connection
func (c *Client) send(frame outboundFrame) error {
	c.mu.RLock()
	conn := c.conn
	ctx := c.connCtx
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected to broker gateway")
	}
	return c.writeFrame(ctx, frame)
}

// readMessages continuously reads frames from the gateway
func (c *Client) readMessages(ctx context.Context) {
	defer func() {
		c.log.Info().Msg("Read loop stopped")
		c.mu.RLock()
		stopped := c.stopped
		c.mu.RUnlock()
		if !stopped {
			c.markDisconnected()
			go c.reconnectLoop()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				c.log.Info().Int("status", int(closeStatus)).Msg("Gateway closed connection")
			} else if ctx.Err() != nil {
				c.log.Debug().Msg("Read cancelled by context")
			} else {
				c.log.Error().Err(err).Msg("Unexpected gateway read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := c.handleMessage(message); err != nil {
			c.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle gateway frame")
		}
	}
}

// handleMessage dispatches one gateway frame to its cache or waiter
func (c *Client) handleMessage(message []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return fmt.Errorf("failed to parse frame: %w", err)
	}

	switch frame.Type {
	case framePositions:
		positions := make([]domain.Position, 0, len(frame.Positions))
		for _, p := range frame.Positions {
			positions = append(positions, p.toDomain())
		}
		c.cacheMu.Lock()
		c.positions[frame.Symbol] = positions
		c.cacheMu.Unlock()

	case frameQuote:
		if frame.Quote == nil {
			return fmt.Errorf("quote frame without payload")
		}
		c.cacheMu.Lock()
		c.quotes[frame.Quote.Symbol] = frame.Quote.toDomain(time.Now())
		c.cacheMu.Unlock()

	case frameOptionChain:
		chain := make([]domain.OptionQuote, 0, len(frame.Quotes))
		for _, q := range frame.Quotes {
			chain = append(chain, q.toDomain(frame.Underlying))
		}
		c.cacheMu.Lock()
		c.chains[frame.Underlying] = chain
		c.cacheMu.Unlock()

	case frameHistory:
		c.deliverHistory(frame.Symbol, toPriceSeries(frame.Points))

	case frameOrderStatus:
		c.handleOrderStatus(frame)

	default:
		c.log.Debug().Str("type", frame.Type).Msg("Ignoring unknown frame type")
	}
	return nil
}

func (c *Client) handleOrderStatus(frame inboundFrame) {
	status := domain.OrderStatus(frame.Status)

	if status.IsTerminal() {
		c.orderMu.Lock()
		delete(c.openOrders, frame.OrderID)
		c.orderMu.Unlock()
	}

	c.log.Info().
		Str("order_id", frame.OrderID).
		Str("symbol", frame.Symbol).
		Str("status", frame.Status).
		Msg("Order status update")

	if c.bus != nil {
		c.bus.EmitTyped("broker_feed", &events.OrderStatusChangedData{
			OrderID:   frame.OrderID,
			Symbol:    frame.Symbol,
			Status:    frame.Status,
			FillPrice: frame.FillPrice,
		})
	}
}

func (c *Client) deliverHistory(symbol string, series domain.PriceSeries) {
	c.waiterMu.Lock()
	waiters := c.historyWaiters[symbol]
	delete(c.historyWaiters, symbol)
	c.waiterMu.Unlock()

	for _, ch := range waiters {
		ch <- series
	}
}

// reconnectLoop retries the gateway connection with exponential backoff
func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseReconnectDelay
	policy.MaxInterval = maxReconnectDelay

	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		attempt++
		delay := policy.NextBackOff()
		c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting to broker gateway")

		select {
		case <-time.After(delay):
		case <-c.stopChan:
			return
		}

		if err := c.Connect(); err != nil {
			c.log.Error().Err(err).Int("attempt", attempt).Msg("Reconnection failed")
			continue
		}

		c.log.Info().Int("attempt", attempt).Msg("Reconnected to broker gateway")
		c.mu.RLock()
		ctx := c.connCtx
		c.mu.RUnlock()
		go c.readMessages(ctx)
		return
	}
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.emitFeedStatus(false)
}

func (c *Client) emitFeedStatus(connected bool) {
	if c.bus == nil {
		return
	}
	c.bus.EmitTyped("broker_feed", &events.FeedStatusChangedData{
		Connected: connected,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// --- domain.MarketDataClient ---

// GetPositions returns the cached positions for a symbol
func (c *Client) GetPositions(symbol string) ([]domain.Position, error) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	positions, ok := c.positions[symbol]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Position, len(positions))
	copy(out, positions)
	return out, nil
}

// GetQuote returns the cached quote for a symbol
func (c *Client) GetQuote(symbol string) (domain.Quote, error) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	quote, ok := c.quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: no quote for %s", domain.ErrInvalidPrice, symbol)
	}
	return quote, nil
}

// GetOptionChain returns the cached option chain for an underlying
func (c *Client) GetOptionChain(symbol string) ([]domain.OptionQuote, error) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	chain, ok := c.chains[symbol]
	if !ok {
		return nil, nil
	}
	out := make([]domain.OptionQuote, len(chain))
	copy(out, chain)
	return out, nil
}

// GetHistoricalCloses requests a daily close series from the gateway
// and blocks until the history frame arrives or the wait times out
func (c *Client) GetHistoricalCloses(symbol string, days int) (domain.PriceSeries, error) {
	ch := make(chan domain.PriceSeries, 1)
	c.waiterMu.Lock()
	c.historyWaiters[symbol] = append(c.historyWaiters[symbol], ch)
	c.waiterMu.Unlock()

	if err := c.send(outboundFrame{Type: frameHistoryReq, Symbol: symbol, Days: days}); err != nil {
		c.removeHistoryWaiter(symbol, ch)
		return nil, err
	}

	select {
	case series := <-ch:
		return series, nil
	case <-time.After(historyWait):
		c.removeHistoryWaiter(symbol, ch)
		return nil, fmt.Errorf("timed out waiting for history for %s", symbol)
	case <-c.stopChan:
		return nil, fmt.Errorf("client stopped")
	}
}

func (c *Client) removeHistoryWaiter(symbol string, ch chan domain.PriceSeries) {
	c.waiterMu.Lock()
	defer c.waiterMu.Unlock()

	waiters := c.historyWaiters[symbol]
	for i, w := range waiters {
		if w == ch {
			c.historyWaiters[symbol] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
}

// IsConnected reports whether the gateway connection is up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// --- domain.ExecutionClient ---

// PlaceOrder submits a market order to the gateway. The order ID is
// generated client-side so the order can be tracked before the first
// status frame arrives.
func (c *Client) PlaceOrder(symbol string, side domain.OrderSide, quantity int64) (*domain.OrderAck, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: order quantity must be positive, got %d", domain.ErrInvalidInput, quantity)
	}

	ack := domain.OrderAck{
		OrderID:     uuid.New().String(),
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		SubmittedAt: time.Now(),
	}

	if err := c.send(outboundFrame{
		Type:     framePlaceOrder,
		OrderID:  ack.OrderID,
		Symbol:   symbol,
		Side:     string(side),
		Quantity: quantity,
	}); err != nil {
		return nil, err
	}

	c.orderMu.Lock()
	c.openOrders[ack.OrderID] = ack
	c.orderMu.Unlock()

	return &ack, nil
}

// CancelOrder asks the gateway to cancel an order. The order stays
// tracked until the terminal status frame confirms the cancellation.
func (c *Client) CancelOrder(orderID string) error {
	return c.send(outboundFrame{Type: frameCancelOrder, OrderID: orderID})
}

// GetPendingOrders returns locally tracked orders without a terminal
// status yet
func (c *Client) GetPendingOrders() ([]domain.OrderAck, error) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	out := make([]domain.OrderAck, 0, len(c.openOrders))
	for _, ack := range c.openOrders {
		out = append(out, ack)
	}
	return out, nil
}
