// Package operator implements the browser-facing side of a connection
// (component D): a JSON-RPC 2.0 command surface over the same liveness
// discipline as a station session, backed by the router and the log store.
package operator

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/defaultresponse"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-csms/internal/ocpp16"
	"github.com/seu-repo/ocpp-csms/internal/router"
)

// JSON-RPC 2.0 error codes (spec §4.D).
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Default liveness parameters, matching the station session's.
const (
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultClientTimeout     = 600 * time.Second
)

// Conn is the subset of *websocket.Conn (or gofiber/websocket) the session
// needs, narrowed so tests can substitute a fake socket.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
}

const (
	textMessage   = 1
	binaryMessage = 2
	closeMessage  = 8
	pingMessage   = 9
	pongMessage   = 10
)

// RouterClient is the router surface an operator session needs.
type RouterClient interface {
	ConnectOperator(clientID string, sink router.OperatorSink)
	DisconnectOperator(clientID string)
	OperatorToStation(clientID, charger, action string, payload json.RawMessage) (string, error)
	OperatorToStationDefault(clientID, charger string, env defaultresponse.Envelope) error
}

// LogStore is the component F surface an operator session needs.
type LogStore interface {
	Extract(stationName string, begin, end time.Time) (string, error)
	Purge() error
}

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Session is a single operator's (browser) connection. The zero value is
// not usable; construct with New.
type Session struct {
	clientID   string
	conn       Conn
	rt         RouterClient
	logs       LogStore
	log        *zap.Logger
	logBaseURL string

	heartbeatInterval time.Duration
	clientTimeout     time.Duration

	outbound  chan string
	done      chan struct{}
	closeOnce sync.Once

	lastHeartbeatMu sync.Mutex
	lastHeartbeat   time.Time
}

// New constructs a Session. Call Serve to run it; Serve blocks until the
// connection closes. logBaseURL is prefixed to extracted log filenames to
// build the address returned by get_log (e.g. "http://host:8080/logs/").
func New(clientID string, conn Conn, rt RouterClient, logs LogStore, log *zap.Logger, logBaseURL string, heartbeatInterval, clientTimeout time.Duration) *Session {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if clientTimeout <= 0 {
		clientTimeout = DefaultClientTimeout
	}
	return &Session{
		clientID:          clientID,
		conn:              conn,
		rt:                rt,
		logs:              logs,
		log:               log,
		logBaseURL:        logBaseURL,
		heartbeatInterval: heartbeatInterval,
		clientTimeout:     clientTimeout,
		outbound:          make(chan string, 64),
		done:              make(chan struct{}),
		lastHeartbeat:     time.Now(),
	}
}

// Serve runs the read loop, write pump, and liveness ticker until the
// connection closes. Blocks; intended to run in the goroutine that
// accepted the connection. Unlike a station session, an operator session
// registers with the router only on an explicit "connect" command (§4.D).
func (s *Session) Serve() {
	telemetry.OperatorConnectionsActive.Inc()
	defer func() {
		s.rt.DisconnectOperator(s.clientID)
		telemetry.OperatorConnectionsActive.Dec()
	}()

	s.conn.SetPingHandler(func(string) error {
		s.touchHeartbeat()
		return nil
	})
	s.conn.SetPongHandler(func(string) error {
		s.touchHeartbeat()
		return nil
	})

	go s.writePump()
	go s.livenessLoop()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Info("operator connection read error", zap.String("client_id", s.clientID), zap.Error(err))
			s.closeOnce.Do(func() { close(s.done) })
			return
		}

		switch msgType {
		case textMessage:
			s.touchHeartbeat()
			s.Ingest(data)
		case pingMessage, pongMessage:
			s.touchHeartbeat()
		case binaryMessage:
			s.log.Warn("operator sent binary frame, ignoring", zap.String("client_id", s.clientID))
		case closeMessage:
			s.closeOnce.Do(func() { close(s.done) })
			return
		}
	}
}

func (s *Session) touchHeartbeat() {
	s.lastHeartbeatMu.Lock()
	s.lastHeartbeat = time.Now()
	s.lastHeartbeatMu.Unlock()
}

// Ingest decodes and dispatches one inbound JSON-RPC request. Exported for
// direct unit testing without a socket.
func (s *Session) Ingest(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeError(nil, CodeParseError, "invalid JSON-RPC request")
		return
	}

	switch req.Method {
	case "connect":
		s.rt.ConnectOperator(s.clientID, s)
		s.writeResult(req.ID, "connected to the ocpp server")

	case "disconnect":
		s.writeResult(req.ID, "disconnecting from the ocpp server")
		s.rt.DisconnectOperator(s.clientID)
		s.closeOnce.Do(func() { close(s.done) })

	case "get_current_timestamp":
		s.writeResult(req.ID, time.Now().Format("2006-01-02T15:04:05.000Z07:00"))

	case "get_log":
		s.handleGetLog(req)

	case "clear_logs":
		if err := s.logs.Purge(); err != nil {
			s.writeError(req.ID, CodeInternalError, err.Error())
			return
		}
		s.writeResult(req.ID, "logs cleared")

	case "send_ocpp_call":
		s.handleSendOCPPCall(req)

	case "set_default_response":
		s.handleSetDefaultResponse(req)

	default:
		s.writeError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

type getLogParams struct {
	ChargerSN      string  `json:"charger_sn"`
	BeginTimestamp string  `json:"begin_timestamp"`
	EndTimestamp   *string `json:"end_timestamp,omitempty"`
}

func (s *Session) handleGetLog(req jsonRPCRequest) {
	var params getLogParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(req.ID, CodeInvalidParams, "params must have charger_sn and begin_timestamp")
		return
	}
	begin, err := time.Parse(time.RFC3339, params.BeginTimestamp)
	if err != nil {
		s.writeError(req.ID, CodeInvalidParams, "begin_timestamp is not RFC3339")
		return
	}
	end := time.Now()
	if params.EndTimestamp != nil {
		end, err = time.Parse(time.RFC3339, *params.EndTimestamp)
		if err != nil {
			s.writeError(req.ID, CodeInvalidParams, "end_timestamp is not RFC3339")
			return
		}
	}

	path, err := s.logs.Extract(params.ChargerSN, begin, end)
	if err != nil {
		s.writeError(req.ID, CodeInternalError, err.Error())
		return
	}
	s.writeResult(req.ID, map[string]string{"address": s.logBaseURL + path})
}

type sendCallParams struct {
	Charger string          `json:"charger"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Session) handleSendOCPPCall(req jsonRPCRequest) {
	var params sendCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(req.ID, CodeInvalidParams, "params must have charger, action, payload")
		return
	}
	wireFrame, validationErr, routeErr := SendOCPPCall(s.rt, s.clientID, params.Charger, params.Action, params.Payload)
	if validationErr != nil {
		s.writeError(req.ID, CodeInvalidParams, validationErr.Error())
		return
	}
	if routeErr != nil {
		s.writeError(req.ID, CodeInternalError, routeErr.Error())
		return
	}
	s.writeResult(req.ID, wireFrame)
}

// SendOCPPCall validates and routes a single operator-issued OCPP call
// through rt, the same path handleSendOCPPCall uses for the "send_ocpp_call"
// JSON-RPC method. Exported so the legacy synchronous REST equivalent
// (§6.3's POST /api/post-request) can share this logic without a live
// websocket session. validationErr and routeErr are mutually exclusive;
// callers map them to their own error surface (JSON-RPC error codes, HTTP
// status codes, ...).
func SendOCPPCall(rt RouterClient, clientID, charger, action string, payload json.RawMessage) (wireFrame string, validationErr, routeErr error) {
	if err := ocpp16.ValidateRequest(action, payload); err != nil {
		return "", err, nil
	}
	wireFrame, err := rt.OperatorToStation(clientID, charger, action, payload)
	if err != nil {
		return "", nil, err
	}
	return wireFrame, nil, nil
}

type setDefaultParams struct {
	Charger string          `json:"charger"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Session) handleSetDefaultResponse(req jsonRPCRequest) {
	var params setDefaultParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(req.ID, CodeInvalidParams, "params must have charger, action, payload")
		return
	}
	if !defaultresponse.IsOverridableAction(params.Action) {
		s.writeError(req.ID, CodeInvalidParams, fmt.Sprintf("action %q does not have a default response", params.Action))
		return
	}
	env, err := defaultresponse.BuildEnvelope(params.Action, params.Payload)
	if err != nil {
		s.writeError(req.ID, CodeInvalidParams, err.Error())
		return
	}
	if err := s.rt.OperatorToStationDefault(s.clientID, params.Charger, env); err != nil {
		s.writeError(req.ID, CodeInternalError, err.Error())
		return
	}
	s.writeResult(req.ID, fmt.Sprintf("default response for %s updated on %s", params.Action, params.Charger))
}

func (s *Session) writeResult(id json.RawMessage, result interface{}) {
	b, _ := json.Marshal(jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
	s.enqueue(string(b))
}

func (s *Session) writeError(id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	b, _ := json.Marshal(jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: code, Message: message}, ID: id})
	s.log.Warn("operator request rejected", zap.String("client_id", s.clientID), zap.Int("code", code), zap.String("message", message))
	s.enqueue(string(b))
}

// Deliver satisfies router.OperatorSink: an unsolicited push from the
// router (a forwarded station reply, or a confirmation) is wrapped as a
// JSON-RPC response carrying a freshly generated id, since the operator
// did not originate a matching request.
func (s *Session) Deliver(event router.OperatorEvent) {
	id, _ := json.Marshal(uuid.New().String())
	b, _ := json.Marshal(jsonRPCResponse{JSONRPC: "2.0", Result: event.Text, ID: id})
	s.enqueue(string(b))
}

// Close satisfies router.OperatorSink.
func (s *Session) Close(reason string) {
	s.log.Info("closing operator session", zap.String("client_id", s.clientID), zap.String("reason", reason))
	s.closeOnce.Do(func() { close(s.done) })
	_ = s.conn.Close()
}

func (s *Session) enqueue(frame string) {
	select {
	case s.outbound <- frame:
	case <-s.done:
	}
}

func (s *Session) writePump() {
	for {
		select {
		case frame := <-s.outbound:
			if err := s.conn.WriteMessage(textMessage, []byte(frame)); err != nil {
				s.log.Info("operator connection write error", zap.String("client_id", s.clientID), zap.Error(err))
				s.closeOnce.Do(func() { close(s.done) })
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) livenessLoop() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.lastHeartbeatMu.Lock()
			idle := time.Since(s.lastHeartbeat)
			s.lastHeartbeatMu.Unlock()
			if idle > s.clientTimeout {
				s.log.Info("operator liveness deadline exceeded", zap.String("client_id", s.clientID), zap.Duration("idle", idle))
				s.Close("liveness deadline exceeded")
				return
			}
			if err := s.conn.WriteMessage(pingMessage, nil); err != nil {
				s.log.Info("operator ping write error", zap.String("client_id", s.clientID), zap.Error(err))
				s.closeOnce.Do(func() { close(s.done) })
				return
			}
		case <-s.done:
			return
		}
	}
}
