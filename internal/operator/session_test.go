package operator

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/defaultresponse"
	"github.com/seu-repo/ocpp-csms/internal/router"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type fakeConn struct {
	mu          sync.Mutex
	written     [][]byte
	pingHandler func(string) error
	pongHandler func(string) error
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == textMessage {
		cp := make([]byte, len(data))
		copy(cp, data)
		c.written = append(c.written, cp)
	}
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) { select {} }
func (c *fakeConn) Close() error                       { return nil }

func (c *fakeConn) SetPingHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingHandler = h
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

type fakeRouter struct {
	mu               sync.Mutex
	connectedClient  string
	disconnectCalls  int
	calledCharger    string
	calledAction     string
	calledPayload    json.RawMessage
	sendErr          error
	defaultErr       error
	lastDefaultEnv   defaultresponse.Envelope
}

func (f *fakeRouter) ConnectOperator(clientID string, sink router.OperatorSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectedClient = clientID
}

func (f *fakeRouter) DisconnectOperator(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
}

func (f *fakeRouter) OperatorToStation(clientID, charger, action string, payload json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calledCharger = charger
	f.calledAction = action
	f.calledPayload = payload
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return `[2,"x","` + action + `",{}]`, nil
}

func (f *fakeRouter) OperatorToStationDefault(clientID, charger string, env defaultresponse.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDefaultEnv = env
	return f.defaultErr
}

type fakeLogStore struct {
	extractPath string
	extractErr  error
	purgeErr    error
}

func (l *fakeLogStore) Extract(stationName string, begin, end time.Time) (string, error) {
	return l.extractPath, l.extractErr
}

func (l *fakeLogStore) Purge() error {
	return l.purgeErr
}

func newTestSession(conn *fakeConn, rt *fakeRouter, logs *fakeLogStore) *Session {
	return New("client-1", conn, rt, logs, newTestLogger(), "http://localhost:8080/logs/", time.Minute, time.Hour)
}

func (s *Session) drain(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-s.outbound:
		return frame
	default:
		return ""
	}
}

func decodeResponse(t *testing.T, frame string) jsonRPCResponse {
	t.Helper()
	var resp jsonRPCResponse
	if err := json.Unmarshal([]byte(frame), &resp); err != nil {
		t.Fatalf("response did not decode as JSON-RPC: %v (%s)", err, frame)
	}
	return resp
}

func TestIngest_Connect_RegistersWithRouterAndReturnsLiteral(t *testing.T) {
	rt := &fakeRouter{}
	s := newTestSession(&fakeConn{}, rt, &fakeLogStore{})

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"connect","id":1}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Result != "connected to the ocpp server" {
		t.Errorf("unexpected result: %v", resp.Result)
	}
	if rt.connectedClient != "client-1" {
		t.Errorf("expected router registration, got %q", rt.connectedClient)
	}
}

func TestIngest_Disconnect_DeregistersAndReturnsLiteral(t *testing.T) {
	rt := &fakeRouter{}
	s := newTestSession(&fakeConn{}, rt, &fakeLogStore{})

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"disconnect","id":2}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Result != "disconnecting from the ocpp server" {
		t.Errorf("unexpected result: %v", resp.Result)
	}
	if rt.disconnectCalls != 1 {
		t.Errorf("expected 1 disconnect call, got %d", rt.disconnectCalls)
	}
}

func TestIngest_GetCurrentTimestamp_ReturnsRFC3339(t *testing.T) {
	s := newTestSession(&fakeConn{}, &fakeRouter{}, &fakeLogStore{})

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"get_current_timestamp","id":3}`))

	resp := decodeResponse(t, s.drain(t))
	ts, ok := resp.Result.(string)
	if !ok {
		t.Fatalf("expected a string result, got %T", resp.Result)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z07:00", ts); err != nil {
		t.Errorf("result %q is not RFC3339 ms: %v", ts, err)
	}
}

func TestIngest_UnknownMethod_ReturnsMethodNotFound(t *testing.T) {
	s := newTestSession(&fakeConn{}, &fakeRouter{}, &fakeLogStore{})

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"nonsense","id":4}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("expected CodeMethodNotFound, got %+v", resp.Error)
	}
}

func TestIngest_UnparsableFrame_ReturnsParseError(t *testing.T) {
	s := newTestSession(&fakeConn{}, &fakeRouter{}, &fakeLogStore{})

	s.Ingest([]byte(`not json`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected CodeParseError, got %+v", resp.Error)
	}
}

func TestIngest_SendOCPPCall_ValidatesPayloadSchema(t *testing.T) {
	s := newTestSession(&fakeConn{}, &fakeRouter{}, &fakeLogStore{})

	// Authorize requires idTag; this payload omits it.
	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"send_ocpp_call","params":{"charger":"CP-1","action":"Authorize","payload":{}},"id":5}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("expected CodeInvalidParams, got %+v", resp.Error)
	}
}

func TestIngest_SendOCPPCall_RoutesValidCallAndEchoesWireFrame(t *testing.T) {
	rt := &fakeRouter{}
	s := newTestSession(&fakeConn{}, rt, &fakeLogStore{})

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"send_ocpp_call","params":{"charger":"CP-1","action":"Reset","payload":{"type":"Hard"}},"id":6}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if rt.calledCharger != "CP-1" || rt.calledAction != "Reset" {
		t.Errorf("expected router to be called with CP-1/Reset, got %s/%s", rt.calledCharger, rt.calledAction)
	}
}

func TestIngest_SetDefaultResponse_RejectsNonOverridableAction(t *testing.T) {
	s := newTestSession(&fakeConn{}, &fakeRouter{}, &fakeLogStore{})

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"set_default_response","params":{"charger":"CP-1","action":"Heartbeat","payload":{}},"id":7}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("expected CodeInvalidParams for a non-overridable action, got %+v", resp.Error)
	}
}

func TestIngest_SetDefaultResponse_UpdatesTableThroughRouter(t *testing.T) {
	rt := &fakeRouter{}
	s := newTestSession(&fakeConn{}, rt, &fakeLogStore{})

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"set_default_response","params":{"charger":"CP-1","action":"Authorize","payload":{"idTagInfo":{"status":"Blocked"}}},"id":8}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if rt.lastDefaultEnv.Authorize == nil || rt.lastDefaultEnv.Authorize.IDTagInfo.Status != "Blocked" {
		t.Errorf("expected the envelope to carry the Blocked status, got %+v", rt.lastDefaultEnv)
	}
}

func TestIngest_GetLog_ReturnsAddressFromLogStore(t *testing.T) {
	logs := &fakeLogStore{extractPath: "CP-1-20260101.log"}
	s := newTestSession(&fakeConn{}, &fakeRouter{}, logs)

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"get_log","params":{"charger_sn":"CP-1","begin_timestamp":"2026-01-01T00:00:00Z"},"id":9}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a map result, got %T", resp.Result)
	}
	if result["address"] != "http://localhost:8080/logs/CP-1-20260101.log" {
		t.Errorf("unexpected address: %v", result["address"])
	}
}

func TestIngest_ClearLogs_InvokesPurge(t *testing.T) {
	logs := &fakeLogStore{}
	s := newTestSession(&fakeConn{}, &fakeRouter{}, logs)

	s.Ingest([]byte(`{"jsonrpc":"2.0","method":"clear_logs","id":10}`))

	resp := decodeResponse(t, s.drain(t))
	if resp.Result != "logs cleared" {
		t.Errorf("unexpected result: %v", resp.Result)
	}
}

func TestDeliver_UsesAFreshlyGeneratedID(t *testing.T) {
	s := newTestSession(&fakeConn{}, &fakeRouter{}, &fakeLogStore{})

	s.Deliver(router.OperatorEvent{Text: "CallResult from CP-1 for abc: {}"})

	resp := decodeResponse(t, s.drain(t))
	if resp.Result != "CallResult from CP-1 for abc: {}" {
		t.Errorf("unexpected result: %v", resp.Result)
	}
	var idStr string
	if err := json.Unmarshal(resp.ID, &idStr); err != nil || idStr == "" {
		t.Errorf("expected a non-empty generated id, got %v", resp.ID)
	}
}

func TestServe_RegistersPongHandlerThatRefreshesLiveness(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, &fakeRouter{}, &fakeLogStore{})

	s.lastHeartbeatMu.Lock()
	s.lastHeartbeat = time.Now().Add(-time.Hour)
	stale := s.lastHeartbeat
	s.lastHeartbeatMu.Unlock()

	go s.Serve()
	deadline := time.Now().Add(time.Second)
	for {
		conn.mu.Lock()
		pong := conn.pongHandler
		conn.mu.Unlock()
		if pong != nil {
			if err := pong("unused"); err != nil {
				t.Fatalf("pong handler returned error: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for Serve to register a pong handler")
		}
		time.Sleep(time.Millisecond)
	}

	s.lastHeartbeatMu.Lock()
	refreshed := s.lastHeartbeat
	s.lastHeartbeatMu.Unlock()
	if !refreshed.After(stale) {
		t.Errorf("expected pong handler to advance lastHeartbeat past %v, got %v", stale, refreshed)
	}
}
