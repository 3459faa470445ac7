package marketdata

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSServer fans a Publisher's subscriptions out to external WebSocket
// clients, one connection per client, each subscribing to either a single
// symbol's L1 quotes/trades or the firehose across all symbols.
//
// Grounded on the websocket-per-client fan-out pattern used for market
// feeds by the pack's Polymarket market-maker repos, adapted here from
// Publisher's existing Go-channel pub-sub rather than introduced as its own
// transport.
type WSServer struct {
	publisher *Publisher
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// NewWSServer creates a WS fan-out server over publisher.
func NewWSServer(publisher *Publisher, log zerolog.Logger) *WSServer {
	return &WSServer{
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "marketdata_ws").Logger(),
	}
}

// wsMessage is the envelope every frame is sent as, tagged by kind so a
// client subscribing to both quotes and trades over one connection can
// dispatch on the wire without two socket round-trips.
type wsMessage struct {
	Kind string      `json:"kind"` // "l1" or "trade"
	Data interface{} `json:"data"`
}

// ServeHTTP upgrades the connection and streams L1 quotes and trade reports
// for the symbol named by the "symbol" query parameter, or every symbol if
// omitted.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	symbol := r.URL.Query().Get("symbol")

	var l1Ch <-chan L1Quote
	var tradeCh <-chan TradeReport
	if symbol != "" {
		l1Ch = s.publisher.SubscribeL1(symbol)
		tradeCh = s.publisher.SubscribeTrades(symbol)
	} else {
		l1Ch = s.publisher.SubscribeAllL1()
		tradeCh = s.publisher.SubscribeAllTrades()
	}

	// Detect client disconnects so the loop below can exit instead of
	// leaking the subscription goroutine forever.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case quote, ok := <-l1Ch:
			if !ok {
				return
			}
			if err := s.writeJSON(conn, wsMessage{Kind: "l1", Data: quote}); err != nil {
				return
			}

		case trade, ok := <-tradeCh:
			if !ok {
				return
			}
			if err := s.writeJSON(conn, wsMessage{Kind: "trade", Data: trade}); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return
		}
	}
}

func (s *WSServer) writeJSON(conn *websocket.Conn, msg wsMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, body)
}
