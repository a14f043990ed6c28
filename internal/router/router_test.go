package router

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/defaultresponse"
	"github.com/seu-repo/ocpp-csms/internal/ocpp16"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	r := New(logger, nil, nil)
	go r.Run()
	t.Cleanup(r.Stop)
	return r
}

type fakeStationSink struct {
	mu         sync.Mutex
	delivered  []StationEnvelope
	closeCalls []string
}

func (f *fakeStationSink) Deliver(env StationEnvelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, env)
}

func (f *fakeStationSink) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls = append(f.closeCalls, reason)
}

func (f *fakeStationSink) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func (f *fakeStationSink) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closeCalls) > 0
}

type fakeOperatorSink struct {
	mu        sync.Mutex
	delivered []OperatorEvent
}

func (f *fakeOperatorSink) Deliver(event OperatorEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, event)
}

func (f *fakeOperatorSink) Close(reason string) {}

func (f *fakeOperatorSink) last() (OperatorEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.delivered) == 0 {
		return OperatorEvent{}, false
	}
	return f.delivered[len(f.delivered)-1], true
}

func (f *fakeOperatorSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func TestOperatorToStation_InsertsPendingEntryAndDeliversToStation(t *testing.T) {
	r := newTestRouter(t)
	station := &fakeStationSink{}
	r.ConnectStation("CP-1", station)

	wireFrame, err := r.OperatorToStation("op-1", "CP-1", "Reset", json.RawMessage(`{"type":"Hard"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wireFrame == "" {
		t.Fatal("expected a non-empty wire frame")
	}
	if station.deliveredCount() != 1 {
		t.Errorf("expected 1 delivery to the station, got %d", station.deliveredCount())
	}
	if r.PendingCount() != 1 {
		t.Errorf("expected 1 pending entry, got %d", r.PendingCount())
	}
}

func TestOperatorToStation_UnknownAction_ReturnsErrorWithoutTouchingPending(t *testing.T) {
	r := newTestRouter(t)
	station := &fakeStationSink{}
	r.ConnectStation("CP-1", station)

	_, err := r.OperatorToStation("op-1", "CP-1", "NotARealAction", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected an error for an unrecognized action")
	}
	if r.PendingCount() != 0 {
		t.Errorf("expected no pending entry, got %d", r.PendingCount())
	}
	if station.deliveredCount() != 0 {
		t.Errorf("expected no delivery to the station, got %d", station.deliveredCount())
	}
}

func TestOperatorToStation_StationNotConnected_ReturnsError(t *testing.T) {
	r := newTestRouter(t)

	_, err := r.OperatorToStation("op-1", "CP-ghost", "Reset", json.RawMessage(`{"type":"Hard"}`))
	if err == nil {
		t.Fatal("expected an error for a disconnected station")
	}
}

func TestStationToOperator_RemovesPendingAndDeliversToOwningOperator(t *testing.T) {
	r := newTestRouter(t)
	station := &fakeStationSink{}
	operator := &fakeOperatorSink{}
	r.ConnectStation("CP-1", station)
	r.ConnectOperator("op-1", operator)

	r.OperatorToStation("op-1", "CP-1", "Reset", json.RawMessage(`{"type":"Hard"}`))
	if r.PendingCount() != 1 {
		t.Fatalf("expected 1 pending entry before the reply, got %d", r.PendingCount())
	}

	// Find the message id the router generated by inspecting the delivered
	// envelope's wire frame, mirroring what a station session's decoder
	// would extract.
	env := station.delivered[len(station.delivered)-1]
	messageID := extractMessageID(t, *env.Message)

	r.StationToOperator(StationReply{
		SerialID:  "CP-1",
		MessageID: messageID,
		Kind:      ReplyResult,
		Payload:   json.RawMessage(`{"status":"Accepted"}`),
	})

	if r.PendingCount() != 0 {
		t.Errorf("expected the pending entry to be removed, got %d remaining", r.PendingCount())
	}
	event, ok := operator.last()
	if !ok {
		t.Fatal("expected a delivery to the operator")
	}
	if !contains(event.Text, "CallResult") || !contains(event.Text, "CP-1") {
		t.Errorf("expected the forwarded text to describe the CallResult, got %q", event.Text)
	}
}

func TestStationToOperator_UnknownMessageID_IsDroppedWithoutPanicOrDelivery(t *testing.T) {
	r := newTestRouter(t)
	operator := &fakeOperatorSink{}
	r.ConnectOperator("op-1", operator)

	r.StationToOperator(StationReply{
		SerialID:  "CP-1",
		MessageID: "never-issued",
		Kind:      ReplyResult,
		Payload:   json.RawMessage(`{}`),
	})

	if operator.count() != 0 {
		t.Errorf("expected no delivery for an unknown message id, got %d", operator.count())
	}
}

func TestDisconnectOperator_SweepsPendingEntriesItOwns(t *testing.T) {
	r := newTestRouter(t)
	station := &fakeStationSink{}
	operator := &fakeOperatorSink{}
	r.ConnectStation("CP-1", station)
	r.ConnectOperator("op-1", operator)

	r.OperatorToStation("op-1", "CP-1", "Reset", json.RawMessage(`{"type":"Hard"}`))
	if r.PendingCount() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", r.PendingCount())
	}

	r.DisconnectOperator("op-1")

	if r.PendingCount() != 0 {
		t.Errorf("expected the pending entry to be swept on disconnect, got %d", r.PendingCount())
	}
}

func TestDisconnectStation_RemovesFromListStations(t *testing.T) {
	r := newTestRouter(t)
	r.ConnectStation("CP-1", &fakeStationSink{})
	r.ConnectStation("CP-2", &fakeStationSink{})

	r.DisconnectStation("CP-1")

	stations := r.ListStations()
	if len(stations) != 1 || stations[0] != "CP-2" {
		t.Errorf("expected only CP-2 to remain, got %v", stations)
	}
}

func TestConnectStation_DisplacesAndClosesPriorConnectionUnderTheSameSerialID(t *testing.T) {
	r := newTestRouter(t)
	first := &fakeStationSink{}
	second := &fakeStationSink{}

	r.ConnectStation("CP-1", first)
	r.ConnectStation("CP-1", second)

	if !first.wasClosed() {
		t.Error("expected the prior connection to be closed on displacement")
	}
	stations := r.ListStations()
	if len(stations) != 1 {
		t.Errorf("expected exactly 1 station entry after displacement, got %d", len(stations))
	}
}

func TestOperatorToStationDefault_DeliversEnvelopeToStationAndConfirmsOperator(t *testing.T) {
	r := newTestRouter(t)
	station := &fakeStationSink{}
	operator := &fakeOperatorSink{}
	r.ConnectStation("CP-1", station)
	r.ConnectOperator("op-1", operator)

	err := r.OperatorToStationDefault("op-1", "CP-1", defaultEnvelopeForTest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if station.deliveredCount() != 1 {
		t.Errorf("expected 1 delivery to the station, got %d", station.deliveredCount())
	}
	if station.delivered[0].Response == nil {
		t.Error("expected a Response-form envelope to be delivered")
	}
	if _, ok := operator.last(); !ok {
		t.Error("expected a confirmation delivered to the operator")
	}
}

func TestOperatorToStationDefault_StationNotConnected_ReturnsError(t *testing.T) {
	r := newTestRouter(t)

	err := r.OperatorToStationDefault("op-1", "CP-ghost", defaultEnvelopeForTest())
	if err == nil {
		t.Fatal("expected an error for a disconnected station")
	}
}

func TestConcurrentConnectStation_AllRegistrationsSucceed(t *testing.T) {
	r := newTestRouter(t)
	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			r.ConnectStation(serialFor(i), &fakeStationSink{})
		}(i)
	}
	wg.Wait()

	if got := len(r.ListStations()); got != n {
		t.Errorf("expected %d stations registered, got %d", n, got)
	}
}

func serialFor(i int) string {
	digits := "0123456789"
	if i < 10 {
		return "CP-" + string(digits[i])
	}
	return "CP-" + string(digits[i/10]) + string(digits[i%10])
}

func extractMessageID(t *testing.T, wireFrame string) string {
	t.Helper()
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(wireFrame), &parts); err != nil {
		t.Fatalf("failed to decode wire frame %q: %v", wireFrame, err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected at least 2 elements in the wire frame, got %d", len(parts))
	}
	var messageID string
	if err := json.Unmarshal(parts[1], &messageID); err != nil {
		t.Fatalf("failed to decode message id: %v", err)
	}
	return messageID
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return len(needle) == 0
}

// defaultEnvelopeForTest builds a minimal default-response envelope for
// tests that only care about dispatch, not content.
func defaultEnvelopeForTest() defaultresponse.Envelope {
	return defaultresponse.Envelope{
		Authorize: &ocpp16.AuthorizeResponse{IDTagInfo: ocpp16.IDTagInfo{Status: "Blocked"}},
	}
}
