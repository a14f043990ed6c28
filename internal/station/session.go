// Package station implements the charge-station side of a connection
// (component C): the per-socket unit of concurrency that decodes inbound
// OCPP-J frames, answers them from the default-response table or a
// synthesized builder, and forwards replies to the router.
package station

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/defaultresponse"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-csms/internal/ocpp16"
	"github.com/seu-repo/ocpp-csms/internal/ocppj"
	"github.com/seu-repo/ocpp-csms/internal/router"
)

// Default liveness parameters, overridable per SPEC_FULL.md's config
// surface.
const (
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultClientTimeout     = 600 * time.Second
)

// Conn is the subset of *websocket.Conn the session needs. Narrowed to an
// interface so tests can substitute a fake socket.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
}

// Only the gorilla/websocket frame-type constants the session cares about;
// redeclared here so this package does not need to import gorilla/websocket
// just for five integers.
const (
	textMessage   = 1
	binaryMessage = 2
	closeMessage  = 8
	pingMessage   = 9
	pongMessage   = 10
)

// RouterClient is the router surface a station session needs: registering
// itself, and forwarding replies to whichever operator is waiting on them.
type RouterClient interface {
	ConnectStation(serialID string, sink router.StationSink)
	DisconnectStation(serialID string)
	StationToOperator(reply router.StationReply)
}

// LogAppendFunc persists one log line for this station, per component F.
type LogAppendFunc func(level, message string)

// Session is a single charge station's connection. The zero value is not
// usable; construct with New.
type Session struct {
	serialID  string
	conn      Conn
	rt        RouterClient
	logAppend LogAppendFunc
	log       *zap.Logger

	heartbeatInterval time.Duration
	clientTimeout     time.Duration
	timeOffset        time.Duration

	defaultsMu sync.Mutex
	defaults   *defaultresponse.Table

	outbound  chan string
	done      chan struct{}
	closeOnce sync.Once

	lastHeartbeatMu sync.Mutex
	lastHeartbeat   time.Time
}

// New constructs a Session. Call Serve to run it; Serve blocks until the
// connection closes.
func New(serialID string, conn Conn, rt RouterClient, logAppend LogAppendFunc, log *zap.Logger, heartbeatInterval, clientTimeout, timeOffset time.Duration) *Session {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if clientTimeout <= 0 {
		clientTimeout = DefaultClientTimeout
	}
	if logAppend == nil {
		logAppend = func(string, string) {}
	}
	return &Session{
		serialID:          serialID,
		conn:              conn,
		rt:                rt,
		logAppend:         logAppend,
		log:               log,
		heartbeatInterval: heartbeatInterval,
		clientTimeout:     clientTimeout,
		timeOffset:        timeOffset,
		defaults:          defaultresponse.New(),
		outbound:          make(chan string, 64),
		done:              make(chan struct{}),
		lastHeartbeat:     time.Now(),
	}
}

// Serve registers the session with the router and runs its read loop,
// write pump, and liveness ticker until the connection closes or the
// liveness deadline is exceeded. Blocks; intended to run in the goroutine
// that accepted the connection.
func (s *Session) Serve() {
	s.rt.ConnectStation(s.serialID, s)
	telemetry.StationConnectionsActive.Inc()
	defer func() {
		s.rt.DisconnectStation(s.serialID)
		telemetry.StationConnectionsActive.Dec()
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
			s.log.Info("station connection read error", zap.String("station", s.serialID), zap.Error(err))
			s.closeOnce.Do(func() { close(s.done) })
			return
		}

		switch msgType {
		case textMessage:
			s.touchHeartbeat()
			s.ingest(data)
		case pingMessage:
			s.touchHeartbeat()
		case pongMessage:
			s.touchHeartbeat()
		case binaryMessage:
			s.log.Warn("station sent binary frame, ignoring", zap.String("station", s.serialID))
		case closeMessage:
			s.closeOnce.Do(func() { close(s.done) })
			return
		}
	}
}

// Ingest decodes and dispatches one inbound OCPP-J text frame. Exported
// for direct unit testing without a socket.
func (s *Session) Ingest(data []byte) {
	s.touchHeartbeat()
	s.ingest(data)
}

func (s *Session) touchHeartbeat() {
	s.lastHeartbeatMu.Lock()
	s.lastHeartbeat = time.Now()
	s.lastHeartbeatMu.Unlock()
}

func (s *Session) ingest(data []byte) {
	s.log.Info("station inbound frame", zap.String("station", s.serialID), zap.ByteString("frame", data))
	s.logAppend("info", string(data))

	frame, err := ocppj.Decode(data)
	if err != nil {
		reply := ocppj.WrapCallError(bestEffortMessageID(data), ocppj.FormatViolation, "{}")
		s.writeReply(reply, true)
		return
	}

	switch frame.Type {
	case ocppj.Call:
		s.dispatchCall(frame.MessageID, frame.Action, frame.Payload)
	case ocppj.CallResult:
		telemetry.RecordOCPPMessage("_callresult", true)
		s.rt.StationToOperator(router.StationReply{
			SerialID:  s.serialID,
			MessageID: frame.MessageID,
			Kind:      router.ReplyResult,
			Payload:   frame.Payload,
		})
	case ocppj.CallError:
		telemetry.RecordOCPPMessage("_callerror", true)
		s.rt.StationToOperator(router.StationReply{
			SerialID:         s.serialID,
			MessageID:        frame.MessageID,
			Kind:             router.ReplyError,
			ErrorCode:        frame.ErrorCode,
			ErrorDescription: frame.ErrorDescription,
			ErrorDetails:     frame.ErrorDetails,
		})
	}
}

func (s *Session) dispatchCall(messageID, action string, payload json.RawMessage) {
	telemetry.RecordOCPPMessage(action, true)

	s.defaultsMu.Lock()
	resp, isDefaultAction := s.defaults.ResponseFor(action)
	s.defaultsMu.Unlock()
	if isDefaultAction {
		if err := ocpp16.ValidateRequest(action, payload); err != nil {
			s.writeReply(ocppj.WrapCallError(messageID, ocppj.FormatViolation, "{}"), true)
			return
		}
		s.defaultsMu.Lock()
		resp, _ = s.defaults.ResponseFor(action)
		s.defaultsMu.Unlock()
		body, _ := json.Marshal(resp)
		s.writeReply(ocppj.WrapCallResult(messageID, string(body)), false)
		return
	}

	if ocpp16.IsSynthesizedAction(action) {
		body := ocpp16.BuildSynthesizedResponse(action, time.Now(), s.timeOffset, s.heartbeatInterval)
		s.writeReply(ocppj.WrapCallResult(messageID, string(body)), false)
		return
	}

	s.writeReply(ocppj.WrapCallError(messageID, ocppj.NotImplemented, "{}"), true)
}

func (s *Session) writeReply(wireFrame string, isError bool) {
	level := "info"
	if isError {
		level = "error"
		s.log.Error("station outbound reply", zap.String("station", s.serialID), zap.String("frame", wireFrame))
	} else {
		s.log.Info("station outbound reply", zap.String("station", s.serialID), zap.String("frame", wireFrame))
	}
	s.logAppend(level, wireFrame)
	s.enqueue(wireFrame)
}

// Deliver satisfies router.StationSink. Message form is written to the
// peer unchanged; Response form updates the default-response table.
func (s *Session) Deliver(env router.StationEnvelope) {
	if env.Message != nil {
		s.enqueue(*env.Message)
		return
	}
	if env.Response != nil {
		s.defaultsMu.Lock()
		s.defaults.Apply(*env.Response)
		s.defaultsMu.Unlock()
	}
}

// Close satisfies router.StationSink.
func (s *Session) Close(reason string) {
	s.log.Info("closing station session", zap.String("station", s.serialID), zap.String("reason", reason))
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
				s.log.Info("station connection write error", zap.String("station", s.serialID), zap.Error(err))
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
				s.log.Info("station liveness deadline exceeded", zap.String("station", s.serialID), zap.Duration("idle", idle))
				s.Close("liveness deadline exceeded")
				return
			}
			if err := s.conn.WriteMessage(pingMessage, nil); err != nil {
				s.log.Info("station ping write error", zap.String("station", s.serialID), zap.Error(err))
				s.closeOnce.Do(func() { close(s.done) })
				return
			}
		case <-s.done:
			return
		}
	}
}

// bestEffortMessageID tries to recover a MessageId from a frame that
// otherwise failed to decode, so the resulting CallError still correlates
// with the wire message where possible.
func bestEffortMessageID(data []byte) string {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 2 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw[1], &s); err == nil {
		return s
	}
	return fmt.Sprintf("%s", raw[1])
}
