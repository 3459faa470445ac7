// Package main wires and runs the order matching engine server.
//
// Architecture Overview:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Client    │────▶│  Gateway    │────▶│   Risk      │     │   Ingress   │
//	│  (HTTP API) │     │ (admission) │     │   Checker   │     │    Queue    │
//	└─────────────┘     └──────┬──────┘     └─────────────┘     └──────┬──────┘
//	                           │ journal.Append                        │
//	                           ▼                                       ▼
//	                   ┌─────────────┐   dispatch    ┌─────────────────────────┐
//	                   │Order Journal│◀──────────────│ Sequencer / Ring Buffer │
//	                   └─────────────┘   (sequencing) │    (internal/disruptor)│
//	                                                  └───────────┬─────────────┘
//	                                                              ▼
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐  Event Processor
//	│  Market     │◀────│   Event     │◀────│   Event     │  (single-threaded,
//	│  Data Pub   │     │   Writer    │     │   Buffer    │◀──engine.ProcessOrder)
//	└─────────────┘     └──────┬──────┘     └─────────────┘
//	                           ▼
//	                   ┌─────────────┐     ┌─────────────┐
//	                   │  Clearing   │     │   Event     │
//	                   │   House     │     │  Storage    │
//	                   └─────────────┘     └─────────────┘
//
// NewServer's job is wiring: every component above is constructed by its own
// package constructor; main only assembles them and owns the HTTP surface
// and process lifecycle.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rishav/matching-engine/internal/config"
	"github.com/rishav/matching-engine/internal/disruptor"
	"github.com/rishav/matching-engine/internal/events"
	"github.com/rishav/matching-engine/internal/gateway"
	"github.com/rishav/matching-engine/internal/journal"
	"github.com/rishav/matching-engine/internal/marketdata"
	"github.com/rishav/matching-engine/internal/matching"
	"github.com/rishav/matching-engine/internal/metrics"
	"github.com/rishav/matching-engine/internal/orders"
	"github.com/rishav/matching-engine/internal/queue"
	"github.com/rishav/matching-engine/internal/recovery"
	"github.com/rishav/matching-engine/internal/risk"
	"github.com/rishav/matching-engine/internal/settlement"
	"github.com/rishav/matching-engine/internal/snapshot"
)

// Server is the order matching engine server: an HTTP admission surface in
// front of a single-threaded matching core, with durability and recovery
// wired around it.
type Server struct {
	cfg config.Config
	log zerolog.Logger

	engine        *matching.Engine
	riskChecker   *risk.Checker
	publisher     *marketdata.Publisher
	clearingHouse *settlement.ClearingHouse

	journal        journal.OrderJournal
	queueSender    *queue.QueueSender
	queueReceiver  *queue.QueueReceiver
	gw             *gateway.Gateway
	registry       *gateway.MarketRegistry

	eventLog    *events.EventLog
	eventBuffer *events.EventBuffer
	eventWriter *events.Writer

	snapshotStorage snapshot.Storage
	snapshotter     *snapshot.Snapshotter

	ringBuffer     *disruptor.RingBuffer
	sequencer      *disruptor.Sequencer
	eventProcessor *disruptor.EventProcessor

	metrics *metrics.Registry
	wsFeed  *marketdata.WSServer

	httpServer       *http.Server
	metricsServer    *http.Server
	dispatchShutdown chan struct{}
	dispatchDone     chan struct{}
	samplerDone      chan struct{}
}

// NewServer constructs every component and wires them together. It does not
// start any goroutines or run crash recovery — call Start for that.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	eventLog, err := events.NewEventLog(events.EventLogConfig{
		Path:     cfg.EventLogPath,
		SyncMode: cfg.EventLogSync,
		Compress: cfg.EventLogCompress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	engine := matching.NewEngine(cfg.Symbol)

	riskChecker := risk.NewChecker(cfg.Symbol, risk.DefaultConfig())
	publisher := marketdata.NewPublisher(1000)
	clearingHouse := settlement.NewClearingHouse(cfg.Symbol)
	for _, acct := range []string{"TRADER1", "TRADER2", "MM1", "MM2"} {
		clearingHouse.GetOrCreateAccount(acct, 10000000) // $100,000 each
	}

	orderJournal := journal.NewMemoryOrderJournal()
	queueSender, queueReceiver := queue.New(cfg.QueueCapacity)
	registry := gateway.NewMarketRegistry(cfg.Symbol)

	var redisClient redis.Cmdable
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	gw := gateway.New(riskChecker, orderJournal, queueSender, registry, redisClient, gateway.Config{
		IdempotencyTTL:  cfg.IdempotencyTTL,
		RateLimitPerSec: int64(cfg.RateLimitPerSec),
	}, log)

	eventBuffer := events.NewEventBuffer(cfg.EventBufferSize)

	ringBuffer := disruptor.NewRingBuffer(disruptor.DefaultConfig())
	sequencer := disruptor.NewSequencer(ringBuffer)
	eventProcessor := disruptor.NewEventProcessor(ringBuffer, engine, eventBuffer)

	eventWriter := events.NewWriter(eventBuffer, eventLog, orderJournal, events.ProjectionSinks{
		MarketData: publisher,
		Clearing:   clearingHouse,
		Pending:    gw,
	}, events.WriterConfig{BatchSize: cfg.EventBatchSize, BatchTimeout: cfg.EventBatchTimeout}, log)

	var snapshotStorage snapshot.Storage
	if cfg.SnapshotDir != "" {
		fileStorage, err := snapshot.NewFileSnapshotStorage(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot directory: %w", err)
		}
		snapshotStorage = fileStorage
	} else {
		snapshotStorage = snapshot.NewMemoryStorage()
	}
	snapshotter := snapshot.NewSnapshotter(eventProcessor, snapshotStorage, snapshot.Config{
		Interval:        cfg.SnapshotInterval,
		RetainSnapshots: cfg.SnapshotRetain,
	}, log)

	metricsReg := metrics.NewRegistry()
	snapshotter.SetMetrics(metricsReg)
	eventWriter.SetMetrics(metricsReg)

	wsFeed := marketdata.NewWSServer(publisher, log)

	s := &Server{
		cfg:              cfg,
		log:              log,
		engine:           engine,
		riskChecker:      riskChecker,
		publisher:        publisher,
		clearingHouse:    clearingHouse,
		journal:          orderJournal,
		queueSender:      queueSender,
		queueReceiver:    queueReceiver,
		gw:               gw,
		registry:         registry,
		eventLog:         eventLog,
		eventBuffer:      eventBuffer,
		eventWriter:      eventWriter,
		snapshotStorage:  snapshotStorage,
		snapshotter:      snapshotter,
		ringBuffer:       ringBuffer,
		sequencer:        sequencer,
		eventProcessor:   eventProcessor,
		metrics:          metricsReg,
		wsFeed:           wsFeed,
		dispatchShutdown: make(chan struct{}),
		dispatchDone:     make(chan struct{}),
		samplerDone:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/order", s.handleOrder)
	mux.HandleFunc("/cancel", s.handleCancel)
	mux.HandleFunc("/book", s.handleBook)
	mux.HandleFunc("/account", s.handleAccount)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", wsFeed.ServeHTTP)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metricsReg.Registerer(), promhttp.HandlerOpts{}))
	s.metricsServer = &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s, nil
}

// Recover runs the startup recovery path (load snapshot, replay events,
// reconcile the journal) before Start begins accepting traffic.
func (s *Server) Recover() (*recovery.Result, error) {
	coordinator := recovery.NewCoordinator(s.snapshotStorage, s.eventLog, s.journal, s.engine, s.gw, s.log)
	return coordinator.Recover()
}

// Start begins the matching loop, the dispatcher between the Ingress Queue
// and the sequencer, the Event Writer, the Snapshotter, and the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Str("symbol", s.engine.Symbol()).Msg("starting order matching engine")

	s.eventProcessor.Start()
	s.eventWriter.Start()
	s.snapshotter.Start()
	go s.dispatchLoop()
	go s.sampleGauges()

	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server error")
		}
	}()

	return s.httpServer.ListenAndServe()
}

// sampleGauges periodically reports queue depth, event buffer depth, and
// journal active-order count, since those are point-in-time reads rather
// than events a counter or histogram can observe directly.
func (s *Server) sampleGauges() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer close(s.samplerDone)

	for {
		select {
		case <-ticker.C:
			s.metrics.QueueDepth.Set(float64(s.queueReceiver.Len()))
			s.metrics.EventBufferDepth.Set(float64(s.eventBuffer.Len()))

			active := 0
			for _, entry := range s.journal.Replay() {
				if entry.Status == journal.StatusActive {
					active++
				}
			}
			s.metrics.JournalActiveOrders.Set(float64(active))

		case <-s.dispatchShutdown:
			return
		}
	}
}

// Shutdown drains every stage of the pipeline in dependency order so no
// admitted order is lost: stop HTTP admission, drain the Ingress Queue into
// the ring buffer, drain the ring buffer through the matching engine, flush
// the Event Buffer to durable storage, then close the event log.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		return err
	}

	close(s.dispatchShutdown)
	<-s.dispatchDone
	<-s.samplerDone

	s.eventProcessor.Shutdown()
	s.snapshotter.Shutdown()
	s.eventWriter.Shutdown()

	if err := s.eventLog.Close(); err != nil {
		return err
	}

	s.publisher.Close()
	return nil
}

// dispatchLoop pulls admitted commands off the Ingress Queue and hands them
// to the sequencer/ring buffer, the Gateway's own internal request-
// sequencing layer ahead of the single-threaded matching loop. It is the
// sole producer into the ring buffer, so sequencer.Next()/Publish() here
// never races with another goroutine.
func (s *Server) dispatchLoop() {
	defer close(s.dispatchDone)

	for {
		cmd, ok := s.queueReceiver.Recv()
		if !ok {
			select {
			case <-s.dispatchShutdown:
				return
			default:
				runtime.Gosched()
				continue
			}
		}
		s.dispatch(cmd)
	}
}

func (s *Server) dispatch(cmd queue.Command) {
	switch c := cmd.(type) {
	case gateway.NewOrderCommand:
		s.dispatchNewOrder(c.Order)
	case gateway.CancelOrderCommand:
		s.dispatchCancel(c.Symbol, c.OrderID)
	default:
		s.log.Warn().Str("type", fmt.Sprintf("%T", cmd)).Msg("unknown ingress command type")
	}
}

func (s *Server) dispatchNewOrder(order *orders.Order) {
	start := time.Now()

	seq, ok := s.claimSequence(order.ID)
	if !ok {
		s.log.Warn().Str("order_id", order.ID).Msg("shutting down with an admitted order still unsequenced; recovery will reenqueue it from the journal")
		return
	}

	responseCh := make(chan *disruptor.OrderResponse, 1)
	s.sequencer.Publish(seq, &disruptor.OrderRequest{Type: disruptor.RequestTypeNewOrder, Order: order}, responseCh)

	select {
	case resp := <-responseCh:
		s.metrics.MatchingLatency.Observe(time.Since(start).Seconds())
		if resp.Success {
			s.applyFillSideEffects(resp.Result.Fills)
		}
	case <-time.After(5 * time.Second):
		s.log.Warn().Str("order_id", order.ID).Msg("timed out waiting for matching engine response")
	}
}

func (s *Server) dispatchCancel(symbol, orderID string) {
	seq, ok := s.claimSequence(orderID)
	if !ok {
		s.log.Warn().Str("order_id", orderID).Msg("shutting down with an admitted cancel still unsequenced")
		return
	}

	responseCh := make(chan *disruptor.OrderResponse, 1)
	s.sequencer.Publish(seq, &disruptor.OrderRequest{Type: disruptor.RequestTypeCancelOrder, Symbol: symbol, OrderID: orderID}, responseCh)

	select {
	case <-responseCh:
	case <-time.After(5 * time.Second):
		s.log.Warn().Str("order_id", orderID).Msg("timed out waiting for cancel response")
	}
}

// claimSequence retries the sequencer's ring-buffer claim until it
// succeeds or shutdown is signaled. A command reaching dispatch has
// already been ACKed to the client and, for a new order, marked Active in
// the journal — dropping it here on a full ring buffer would silently
// break the at-least-once admission guarantee the journal exists to
// provide (ErrBufferFull is transient backpressure from the matching
// loop, not a reason to discard work the client was told was accepted).
// Only a shutdown in progress is allowed to abandon the claim; an
// in-flight order left unsequenced at shutdown is picked back up by the
// Recovery Coordinator's journal sweep on the next restart.
func (s *Server) claimSequence(orderID string) (uint64, bool) {
	for {
		seq, err := s.sequencer.Next()
		if err == nil {
			return seq, true
		}

		select {
		case <-s.dispatchShutdown:
			return 0, false
		default:
		}

		s.log.Warn().Str("order_id", orderID).Err(err).Msg("ring buffer backpressure, retrying admission")
		runtime.Gosched()
	}
}

// applyFillSideEffects updates the risk checker's live position and
// reference-price state from each fill. Market data and settlement
// projection already happen downstream in the Event Writer once the
// corresponding TradeExecutedEvent is durable; this is the one side effect
// that has to happen here, since risk decisions for the *next* order need
// it synchronously rather than after a batched commit.
func (s *Server) applyFillSideEffects(fills []orders.Fill) {
	for _, fill := range fills {
		s.riskChecker.UpdatePosition(fill.TakerAccountID, fill.TakerSide, fill.Quantity)
		s.riskChecker.UpdatePosition(fill.MakerAccountID, fill.TakerSide.Opposite(), fill.Quantity)
		s.riskChecker.SetReferencePrice(fill.Price)
	}
}

// OrderRequest represents an order submission request.
type OrderRequest struct {
	OrderID       string `json:"order_id,omitempty"` // idempotency key; generated if omitted
	Symbol        string `json:"symbol"`
	Side          string `json:"side"` // "buy" or "sell"
	Type          string `json:"type"` // "market", "limit", "ioc", "fok"
	Price         string `json:"price"`
	Quantity      int64  `json:"quantity"`
	AccountID     string `json:"account_id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// OrderResponse is the Gateway's admission acknowledgement. It does not
// carry fills or final status — the order is admitted asynchronously; a
// client tracks outcome via the market data feed or a status query.
type OrderResponse struct {
	Accepted bool   `json:"accepted"`
	OrderID  string `json:"order_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var side orders.Side
	switch req.Side {
	case "buy", "BUY":
		side = orders.SideBuy
	case "sell", "SELL":
		side = orders.SideSell
	default:
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: "invalid side: must be 'buy' or 'sell'"})
		return
	}

	var orderType orders.OrderType
	switch req.Type {
	case "market", "MARKET":
		orderType = orders.OrderTypeMarket
	case "limit", "LIMIT", "":
		orderType = orders.OrderTypeLimit
	case "ioc", "IOC":
		orderType = orders.OrderTypeIOC
	case "fok", "FOK":
		orderType = orders.OrderTypeFOK
	default:
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: "invalid type: must be 'market', 'limit', 'ioc', or 'fok'"})
		return
	}

	ack, err := s.gw.SubmitOrder(r.Context(), gateway.SubmitRequest{
		OrderID:     req.OrderID,
		Symbol:      req.Symbol,
		Side:        side,
		Type:        orderType,
		PriceString: req.Price,
		Quantity:    req.Quantity,
		AccountID:   req.AccountID,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, OrderResponse{Error: err.Error()})
		return
	}

	status := http.StatusAccepted
	if ack.Accepted {
		s.metrics.OrdersAdmittedTotal.Inc()
	} else {
		status = http.StatusBadRequest
		s.metrics.OrdersRejectedTotal.Inc()
	}
	writeJSON(w, status, OrderResponse{Accepted: ack.Accepted, OrderID: ack.OrderID, Reason: ack.Reason})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	orderID := r.URL.Query().Get("order_id")
	if symbol == "" || orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol and order_id required"})
		return
	}

	if err := s.gw.CancelOrder(r.Context(), symbol, orderID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"order_id": orderID, "status": "cancel admitted"})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol required"})
		return
	}

	if symbol != s.engine.Symbol() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "symbol not found"})
		return
	}
	book := s.engine.Book()

	levels := 10
	if l := r.URL.Query().Get("levels"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			levels = parsed
		}
	}

	bids := book.GetBidDepth(levels)
	asks := book.GetAskDepth(levels)

	bidData := make([]map[string]interface{}, len(bids))
	for i, level := range bids {
		bidData[i] = map[string]interface{}{"price": orders.FormatPrice(level.Price), "quantity": level.TotalQty, "orders": level.Count()}
	}

	askData := make([]map[string]interface{}, len(asks))
	for i, level := range asks {
		askData[i] = map[string]interface{}{"price": orders.FormatPrice(level.Price), "quantity": level.TotalQty, "orders": level.Count()}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"bids":   bidData,
		"asks":   askData,
		"spread": orders.FormatPrice(book.GetSpread()),
		"mid":    orders.FormatPrice(book.GetMidPrice()),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("id")
	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id required"})
		return
	}

	account := s.clearingHouse.GetAccount(accountID)
	if account == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       account.ID,
		"cash":     orders.FormatPrice(account.Cash),
		"holdings": account.Holdings,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.clearingHouse.GetSettlementStats()

	totalOrders := s.engine.Book().TotalOrders()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders_in_book":   totalOrders,
		"event_log_seq":    s.eventLog.GetLastSequence(),
		"queue_depth":      s.queueReceiver.Len(),
		"settlement_stats": stats,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	listenAddr := flag.String("addr", "", "Listen address, overrides config")
	eventLogPath := flag.String("event-log", "", "Path to event log file, overrides config")
	syncMode := flag.Bool("sync", false, "Enable sync mode for event log (slower but durable)")
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *eventLogPath != "" {
		cfg.EventLogPath = *eventLogPath
	}
	if *syncMode {
		cfg.EventLogSync = true
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	if result, err := server.Recover(); err != nil {
		logger.Fatal().Err(err).Msg("recovery failed")
	} else {
		logger.Info().
			Bool("snapshot_loaded", result.SnapshotLoaded).
			Int("events_replayed", result.EventsReplayed).
			Int("reenqueued", len(result.Reenqueued)).
			Msg("recovery finished")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := server.Start(); err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}

	logger.Info().Msg("server stopped")
}
