package ocpp16

import (
	"encoding/json"
	"time"
)

// synthesizedActions is the set of recognized actions whose response is
// produced by a pure builder rather than by the per-station default-
// response table (component B covers the other five: Authorize,
// DataTransfer, SignCertificate, StartTransaction, StopTransaction).
var synthesizedActions = map[string]bool{
	"BootNotification":                 true,
	"Heartbeat":                        true,
	"MeterValues":                      true,
	"StatusNotification":               true,
	"DiagnosticsStatusNotification":    true,
	"FirmwareStatusNotification":       true,
	"LogStatusNotification":            true,
	"SecurityEventNotification":        true,
	"SignedFirmwareStatusNotification": true,
}

// IsSynthesizedAction reports whether action's response is produced by
// BuildSynthesizedResponse rather than read from the default-response
// table.
func IsSynthesizedAction(action string) bool {
	return synthesizedActions[action]
}

// BuildSynthesizedResponse returns the JSON-encoded response body for one
// of the synthesized actions. now and timeOffset/heartbeatInterval are
// threaded in explicitly rather than read from an ambient clock or
// config, keeping the builder pure and testable.
func BuildSynthesizedResponse(action string, now time.Time, timeOffset time.Duration, heartbeatInterval time.Duration) []byte {
	switch action {
	case "BootNotification":
		resp := BootNotificationResponse{
			CurrentTime: now.Add(timeOffset).Format("2006-01-02T15:04:05.000Z07:00"),
			Interval:    int(heartbeatInterval.Seconds()),
			Status:      "Accepted",
		}
		b, _ := json.Marshal(resp)
		return b
	case "Heartbeat":
		resp := HeartbeatResponse{
			CurrentTime: now.Add(timeOffset).Format("2006-01-02T15:04:05.000Z07:00"),
		}
		b, _ := json.Marshal(resp)
		return b
	default:
		b, _ := json.Marshal(emptyResponse{})
		return b
	}
}
