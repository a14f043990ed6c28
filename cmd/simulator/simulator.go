package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/ocpp16"
	"github.com/seu-repo/ocpp-csms/internal/ocppj"
)

// SimulatorConfig holds a single charge point's identity and connection
// parameters, mirroring the fields a real charger's provisioning would
// fix at boot.
type SimulatorConfig struct {
	ServerURL       string
	ChargePointID   string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	AuthPassword    string
	ConnectorCount  int
}

// ConnectorState tracks one connector's current StatusNotification status.
type ConnectorState struct {
	ID      int
	Status  string
	MeterWh int
}

// Simulator is a single OCPP-J 1.6 charge point connection: it dials the
// central server, answers the liveness/boot sequence, and lets an operator
// drive it interactively through bufio-read commands.
type Simulator struct {
	config     *SimulatorConfig
	conn       *websocket.Conn
	log        *zap.Logger
	connectors []ConnectorState

	currentTxID int
	txActive    bool

	pendingMu sync.Mutex
	pending   map[string]chan *ocppj.Frame

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSimulator constructs a Simulator with connectors in the Available
// state. Call Connect before driving it.
func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	connectors := make([]ConnectorState, config.ConnectorCount)
	for i := range connectors {
		connectors[i] = ConnectorState{ID: i + 1, Status: "Available"}
	}
	return &Simulator{
		config:     config,
		log:        log,
		connectors: connectors,
		pending:    make(map[string]chan *ocppj.Frame),
		stopChan:   make(chan struct{}),
	}
}

// Connect dials the server, optionally presenting HTTP Basic credentials,
// starts the read pump, sends BootNotification, and then sends one
// StatusNotification per connector.
func (s *Simulator) Connect() error {
	header := http.Header{}
	if s.config.AuthPassword != "" {
		header.Set("Authorization", basicAuthHeader(s.config.ChargePointID, s.config.AuthPassword))
	}

	url := strings.TrimRight(s.config.ServerURL, "/") + "/" + s.config.ChargePointID
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	s.conn = conn

	s.wg.Add(1)
	go s.readPump()

	if _, err := s.call("BootNotification", ocpp16.BootNotificationRequest{
		ChargePointVendor:       s.config.Vendor,
		ChargePointModel:        s.config.Model,
		ChargePointSerialNumber: &s.config.SerialNumber,
		FirmwareVersion:         &s.config.FirmwareVersion,
	}); err != nil {
		s.log.Warn("BootNotification failed", zap.Error(err))
	}
	for _, c := range s.connectors {
		s.sendStatusNotification(c.ID, c.Status)
	}
	return nil
}

// Stop closes the connection and stops the read pump.
func (s *Simulator) Stop() {
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
}

func basicAuthHeader(userID, password string) string {
	req := &http.Request{Header: http.Header{}}
	req.SetBasicAuth(userID, password)
	return req.Header.Get("Authorization")
}

// readPump decodes inbound frames: CallResult/CallError are routed to the
// waiting call() goroutine by MessageId; Call frames (operator-issued
// remote commands) are answered from a small synthesized-response table,
// matching the server's own default-response idiom for actions this
// simulator does not otherwise model.
func (s *Simulator) readPump() {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				s.log.Info("connection closed", zap.Error(err))
				return
			}
		}

		frame, err := ocppj.Decode(data)
		if err != nil {
			s.log.Warn("received malformed frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case ocppj.CallResult, ocppj.CallError:
			s.pendingMu.Lock()
			ch, ok := s.pending[frame.MessageID]
			if ok {
				delete(s.pending, frame.MessageID)
			}
			s.pendingMu.Unlock()
			if ok {
				ch <- frame
			}
		case ocppj.Call:
			s.handleIncomingCall(frame)
		}
	}
}

func (s *Simulator) handleIncomingCall(frame *ocppj.Frame) {
	s.log.Info("received remote command", zap.String("action", frame.Action), zap.String("message_id", frame.MessageID))
	resp := `{}`
	switch frame.Action {
	case "Reset":
		resp = `{"status":"Accepted"}`
	case "RemoteStartTransaction":
		resp = `{"status":"Accepted"}`
	case "RemoteStopTransaction":
		resp = `{"status":"Accepted"}`
	case "UnlockConnector":
		resp = `{"status":"Unlocked"}`
	case "ChangeAvailability":
		resp = `{"status":"Accepted"}`
	case "GetConfiguration":
		resp = `{"configurationKey":[]}`
	case "ChangeConfiguration":
		resp = `{"status":"Accepted"}`
	case "ClearCache":
		resp = `{"status":"Accepted"}`
	}
	s.send(ocppj.WrapCallResult(frame.MessageID, resp))
}

// call sends a Call frame and blocks for its matching CallResult/CallError,
// up to a fixed timeout.
func (s *Simulator) call(action string, payload interface{}) (*ocppj.Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msgID := uuid.New().String()

	ch := make(chan *ocppj.Frame, 1)
	s.pendingMu.Lock()
	s.pending[msgID] = ch
	s.pendingMu.Unlock()

	s.send(ocppj.WrapCall(msgID, action, string(body)))

	select {
	case frame := <-ch:
		if frame.Type == ocppj.CallError {
			return frame, fmt.Errorf("%s: %s", frame.ErrorCode, frame.ErrorDescription)
		}
		return frame, nil
	case <-time.After(30 * time.Second):
		s.pendingMu.Lock()
		delete(s.pending, msgID)
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("timed out waiting for response to %s", action)
	}
}

func (s *Simulator) send(wireFrame string) {
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(wireFrame)); err != nil {
		s.log.Warn("write failed", zap.Error(err))
	}
}

func (s *Simulator) sendStatusNotification(connectorID int, status string) {
	ts := time.Now().Format(time.RFC3339)
	if _, err := s.call("StatusNotification", ocpp16.StatusNotificationRequest{
		ConnectorID: connectorID,
		ErrorCode:   "NoError",
		Status:      status,
		Timestamp:   &ts,
	}); err != nil {
		s.log.Warn("StatusNotification failed", zap.Error(err))
	}
}

func (s *Simulator) heartbeat() {
	if _, err := s.call("Heartbeat", ocpp16.HeartbeatRequest{}); err != nil {
		s.log.Warn("Heartbeat failed", zap.Error(err))
	}
}

func (s *Simulator) authorize(idTag string) {
	resp, err := s.call("Authorize", ocpp16.AuthorizeRequest{IDTag: idTag})
	if err != nil {
		fmt.Println("Authorize error:", err)
		return
	}
	fmt.Println("Authorize response:", string(resp.Payload))
}

func (s *Simulator) startTransaction(connectorID int, idTag string) {
	resp, err := s.call("StartTransaction", ocpp16.StartTransactionRequest{
		ConnectorID: connectorID,
		IDTag:       idTag,
		MeterStart:  s.connectors[connectorID-1].MeterWh,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		fmt.Println("StartTransaction error:", err)
		return
	}
	var parsed struct {
		TransactionID int `json:"transactionId"`
	}
	json.Unmarshal(resp.Payload, &parsed)
	s.currentTxID = parsed.TransactionID
	s.txActive = true
	s.connectors[connectorID-1].Status = "Charging"
	s.sendStatusNotification(connectorID, "Charging")
	fmt.Println("Transaction started:", s.currentTxID)
}

func (s *Simulator) stopTransaction(connectorID int) {
	if !s.txActive {
		fmt.Println("no active transaction")
		return
	}
	if _, err := s.call("StopTransaction", ocpp16.StopTransactionRequest{
		TransactionID: s.currentTxID,
		MeterStop:     s.connectors[connectorID-1].MeterWh,
		Timestamp:     time.Now().Format(time.RFC3339),
	}); err != nil {
		fmt.Println("StopTransaction error:", err)
		return
	}
	s.txActive = false
	s.connectors[connectorID-1].Status = "Available"
	s.sendStatusNotification(connectorID, "Available")
	fmt.Println("Transaction stopped")
}

func (s *Simulator) meterValue(connectorID, wh int) {
	s.connectors[connectorID-1].MeterWh = wh
	if _, err := s.call("MeterValues", ocpp16.MeterValuesRequest{
		ConnectorID: connectorID,
		MeterValue: []ocpp16.MeterValue{{
			Timestamp:    time.Now().Format(time.RFC3339),
			SampledValue: []ocpp16.SampledValue{{Value: strconv.Itoa(wh)}},
		}},
	}); err != nil {
		fmt.Println("MeterValues error:", err)
	}
}

// RunInteractive reads commands from stdin until "quit" or EOF.
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "heartbeat":
			s.heartbeat()
		case "authorize":
			if len(fields) < 2 {
				fmt.Println("usage: authorize <idTag>")
				continue
			}
			s.authorize(fields[1])
		case "start":
			if len(fields) < 3 {
				fmt.Println("usage: start <connector> <idTag>")
				continue
			}
			conn, _ := strconv.Atoi(fields[1])
			s.startTransaction(conn, fields[2])
		case "stop":
			conn := 1
			if len(fields) >= 2 {
				conn, _ = strconv.Atoi(fields[1])
			}
			s.stopTransaction(conn)
		case "meter":
			if len(fields) < 3 {
				fmt.Println("usage: meter <connector> <wh>")
				continue
			}
			conn, _ := strconv.Atoi(fields[1])
			wh, _ := strconv.Atoi(fields[2])
			s.meterValue(conn, wh)
		case "status":
			if len(fields) < 3 {
				fmt.Println("usage: status <connector> <Available|Occupied|Faulted>")
				continue
			}
			conn, _ := strconv.Atoi(fields[1])
			s.connectors[conn-1].Status = fields[2]
			s.sendStatusNotification(conn, fields[2])
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
