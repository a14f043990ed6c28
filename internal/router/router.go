// Package router implements the process-wide coordinator between station
// and operator sessions (component E): the three correlation mappings of
// stations, operators, and pending operator-issued calls, plus the
// dispatch operations that move frames between them.
//
// The router runs as a single goroutine consuming commands from a
// buffered channel, generalizing the register/unregister/broadcast loop
// of a websocket hub to the eight router operations. All mutations to the
// three maps happen inside that one goroutine; station and operator
// sessions never see the maps directly.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/defaultresponse"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-csms/internal/ocpp16"
	"github.com/seu-repo/ocpp-csms/internal/ocppj"
)

// StationEnvelope is delivered to a station session by the router. Message
// form is written to the peer unchanged; Response form updates the
// station's default-response table and produces no immediate wire output.
type StationEnvelope struct {
	Message  *string
	Response *defaultresponse.Envelope
}

// StationSink is the router's view of a station session: a write-capable
// handle it can deliver envelopes to and tear down, without sharing the
// session's internal state.
type StationSink interface {
	Deliver(env StationEnvelope)
	Close(reason string)
}

// OperatorEvent is pushed to an operator session by the router: either a
// confirmation/echo string, or a forwarded station reply description.
type OperatorEvent struct {
	Text string
}

// OperatorSink is the router's view of an operator session.
type OperatorSink interface {
	Deliver(event OperatorEvent)
	Close(reason string)
}

// ReplyKind distinguishes a CallResult from a CallError in StationReply.
type ReplyKind int

const (
	ReplyResult ReplyKind = iota
	ReplyError
)

// StationReply is what a station session forwards to the router when it
// receives a CallResult or CallError — i.e. a reply to a Call the router
// previously routed to it on an operator's behalf.
type StationReply struct {
	SerialID         string
	MessageID        string
	Kind             ReplyKind
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Router is the single coordinator described in the package doc. Zero
// value is not usable; construct with New.
type Router struct {
	log       *zap.Logger
	tracer    trace.Tracer
	logAppend func(station, level, message string)
	publish   func(event string, stationID string)
	commands  chan func(*state)
	done      chan struct{}
}

type state struct {
	stations  map[string]StationSink
	operators map[string]OperatorSink
	pending   map[string]string // messageID -> clientID
}

// LogAppendFunc persists a router-observed event, grounded on component F.
type LogAppendFunc func(station, level, message string)

// PublishFunc optionally emits a lifecycle event to an external bus
// (component E's optional NATS wiring); implementations must not block.
type PublishFunc func(event string, stationID string)

// New constructs a Router. logAppend and publish may be nil no-ops.
func New(log *zap.Logger, logAppend LogAppendFunc, publish PublishFunc) *Router {
	if logAppend == nil {
		logAppend = func(string, string, string) {}
	}
	if publish == nil {
		publish = func(string, string) {}
	}
	return &Router{
		log:       log,
		tracer:    telemetry.Tracer(),
		logAppend: logAppend,
		publish:   publish,
		commands:  make(chan func(*state), 256),
		done:      make(chan struct{}),
	}
}

// Run processes commands serially until Stop is called. Intended to run
// in its own goroutine for the lifetime of the process.
func (r *Router) Run() {
	st := &state{
		stations:  make(map[string]StationSink),
		operators: make(map[string]OperatorSink),
		pending:   make(map[string]string),
	}
	for {
		select {
		case cmd := <-r.commands:
			cmd(st)
		case <-r.done:
			return
		}
	}
}

// Stop terminates Run. Any goroutine blocked submitting a command after
// Stop may block forever; callers must stop submitting before calling Stop.
func (r *Router) Stop() {
	close(r.done)
}

func (r *Router) exec(fn func(*state)) {
	done := make(chan struct{})
	r.commands <- func(st *state) {
		fn(st)
		close(done)
	}
	<-done
}

// ConnectStation inserts sink into the stations map, replacing and closing
// any prior session under the same serialID.
func (r *Router) ConnectStation(serialID string, sink StationSink) {
	r.exec(func(st *state) {
		if prior, ok := st.stations[serialID]; ok {
			prior.Close("replaced by new connection")
		}
		st.stations[serialID] = sink
		r.publish("station.connected", serialID)
	})
}

// DisconnectStation removes serialID from the stations map.
func (r *Router) DisconnectStation(serialID string) {
	r.exec(func(st *state) {
		delete(st.stations, serialID)
		r.publish("station.disconnected", serialID)
	})
}

// ConnectOperator inserts sink into the operators map.
func (r *Router) ConnectOperator(clientID string, sink OperatorSink) {
	r.exec(func(st *state) {
		st.operators[clientID] = sink
	})
}

// DisconnectOperator removes clientID from the operators map and sweeps
// every pending entry it owns.
func (r *Router) DisconnectOperator(clientID string) {
	r.exec(func(st *state) {
		delete(st.operators, clientID)
		for msgID, owner := range st.pending {
			if owner == clientID {
				delete(st.pending, msgID)
			}
		}
	})
}

// ListStations returns a snapshot of the currently connected station ids.
func (r *Router) ListStations() []string {
	var result []string
	r.exec(func(st *state) {
		result = make([]string, 0, len(st.stations))
		for id := range st.stations {
			result = append(result, id)
		}
	})
	return result
}

// OperatorToStation routes a new operator-issued Call to charger. On
// success it returns the wire frame sent, having recorded
// pending[messageID] = clientID.
func (r *Router) OperatorToStation(clientID, charger, action string, payload json.RawMessage) (string, error) {
	_, span := r.tracer.Start(context.Background(), "router.operator_to_station",
		trace.WithAttributes(
			attribute.String("ocpp.action", action),
			attribute.String("ocpp.station", charger),
		),
	)
	defer span.End()

	if !ocpp16.IsKnownAction(action) {
		err := fmt.Errorf("action %q is not in the supported action set", action)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.RecordRouterOutcome("dropped")
		return "", err
	}

	var wireFrame string
	var err error
	r.exec(func(st *state) {
		sink, ok := st.stations[charger]
		if !ok {
			err = fmt.Errorf("station %q is not connected", charger)
			return
		}
		messageID := uuid.New().String()
		wireFrame = ocppj.WrapCall(messageID, action, string(payload))
		msg := wireFrame
		sink.Deliver(StationEnvelope{Message: &msg})
		st.pending[messageID] = clientID
		r.logAppend(charger, "info", wireFrame)
		telemetry.RouterPendingGauge.Set(float64(len(st.pending)))

		if op, ok := st.operators[clientID]; ok {
			op.Deliver(OperatorEvent{Text: wireFrame})
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.RecordRouterOutcome("dropped")
		return "", err
	}
	telemetry.RecordRouterOutcome("dispatched")
	return wireFrame, nil
}

// OperatorToStationDefault ships a default-response envelope to charger
// and confirms to the operator.
func (r *Router) OperatorToStationDefault(clientID, charger string, env defaultresponse.Envelope) error {
	_, span := r.tracer.Start(context.Background(), "router.operator_to_station_default",
		trace.WithAttributes(attribute.String("ocpp.station", charger)),
	)
	defer span.End()

	var err error
	r.exec(func(st *state) {
		sink, ok := st.stations[charger]
		if !ok {
			err = fmt.Errorf("station %q is not connected", charger)
			return
		}
		sink.Deliver(StationEnvelope{Response: &env})
		if op, ok := st.operators[clientID]; ok {
			op.Deliver(OperatorEvent{Text: fmt.Sprintf("default response updated for %s", charger)})
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.RecordRouterOutcome("dropped")
		return err
	}
	telemetry.RecordRouterOutcome("dispatched")
	return nil
}

// StationToOperator delivers a CallResult/CallError to the operator that
// owns reply.MessageID in pending, if any, then removes the entry. A
// reply whose MessageID is unknown to pending is logged and dropped.
func (r *Router) StationToOperator(reply StationReply) {
	_, span := r.tracer.Start(context.Background(), "router.station_to_operator",
		trace.WithAttributes(
			attribute.String("ocpp.station", reply.SerialID),
			attribute.String("ocpp.message_id", reply.MessageID),
		),
	)
	defer span.End()

	r.exec(func(st *state) {
		clientID, ok := st.pending[reply.MessageID]
		if !ok {
			r.log.Info("dropping station reply with no pending operator",
				zap.String("station", reply.SerialID),
				zap.String("message_id", reply.MessageID),
			)
			span.SetStatus(codes.Error, "no pending operator for message id")
			telemetry.RecordRouterOutcome("dropped")
			return
		}
		delete(st.pending, reply.MessageID)
		telemetry.RouterPendingGauge.Set(float64(len(st.pending)))

		op, ok := st.operators[clientID]
		if !ok {
			// No operator session is registered under clientID (the call
			// came from a client that never sent "connect", such as the
			// REST endpoint); treat the same as "no operator".
			telemetry.RecordRouterOutcome("dropped")
			return
		}

		var text string
		switch reply.Kind {
		case ReplyResult:
			text = fmt.Sprintf("CallResult from %s for %s: %s", reply.SerialID, reply.MessageID, string(reply.Payload))
		case ReplyError:
			text = fmt.Sprintf("CallError from %s for %s: %s (%s)", reply.SerialID, reply.MessageID, reply.ErrorCode, reply.ErrorDescription)
		}
		op.Deliver(OperatorEvent{Text: text})
		telemetry.RecordRouterOutcome("forwarded")
	})
}

// PendingCount reports the current size of the pending map, for tests and
// metrics.
func (r *Router) PendingCount() int {
	var n int
	r.exec(func(st *state) { n = len(st.pending) })
	return n
}
