package ocpp16

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// requestPrototype returns a new zero value of the request struct for
// action, or nil if action is not one of the recognized OCPP 1.6 (plus
// security extension) actions named in the wire format.
func requestPrototype(action string) interface{} {
	switch action {
	case "Authorize":
		return &AuthorizeRequest{}
	case "BootNotification":
		return &BootNotificationRequest{}
	case "CancelReservation":
		return &CancelReservationRequest{}
	case "ChangeAvailability":
		return &ChangeAvailabilityRequest{}
	case "ChangeConfiguration":
		return &ChangeConfigurationRequest{}
	case "ClearCache":
		return &ClearCacheRequest{}
	case "ClearChargingProfile":
		return &ClearChargingProfileRequest{}
	case "DataTransfer":
		return &DataTransferRequest{}
	case "DiagnosticsStatusNotification":
		return &DiagnosticsStatusNotificationRequest{}
	case "FirmwareStatusNotification":
		return &FirmwareStatusNotificationRequest{}
	case "GetCompositeSchedule":
		return &GetCompositeScheduleRequest{}
	case "GetConfiguration":
		return &GetConfigurationRequest{}
	case "GetDiagnostics":
		return &GetDiagnosticsRequest{}
	case "GetLocalListVersion":
		return &GetLocalListVersionRequest{}
	case "Heartbeat":
		return &HeartbeatRequest{}
	case "MeterValues":
		return &MeterValuesRequest{}
	case "RemoteStartTransaction":
		return &RemoteStartTransactionRequest{}
	case "RemoteStopTransaction":
		return &RemoteStopTransactionRequest{}
	case "ReserveNow":
		return &ReserveNowRequest{}
	case "Reset":
		return &ResetRequest{}
	case "SendLocalList":
		return &SendLocalListRequest{}
	case "SetChargingProfile":
		return &SetChargingProfileRequest{}
	case "StartTransaction":
		return &StartTransactionRequest{}
	case "StatusNotification":
		return &StatusNotificationRequest{}
	case "StopTransaction":
		return &StopTransactionRequest{}
	case "TriggerMessage":
		return &TriggerMessageRequest{}
	case "UnlockConnector":
		return &UnlockConnectorRequest{}
	case "UpdateFirmware":
		return &UpdateFirmwareRequest{}
	case "CertificateSigned":
		return &CertificateSignedRequest{}
	case "DeleteCertificate":
		return &DeleteCertificateRequest{}
	case "ExtendedTriggerMessage":
		return &ExtendedTriggerMessageRequest{}
	case "GetInstalledCertificateIds":
		return &GetInstalledCertificateIdsRequest{}
	case "GetLog":
		return &GetLogRequest{}
	case "InstallCertificate":
		return &InstallCertificateRequest{}
	case "LogStatusNotification":
		return &LogStatusNotificationRequest{}
	case "SecurityEventNotification":
		return &SecurityEventNotificationRequest{}
	case "SignCertificate":
		return &SignCertificateRequest{}
	case "SignedFirmwareStatusNotification":
		return &SignedFirmwareStatusNotificationRequest{}
	case "SignedUpdateFirmware":
		return &SignedUpdateFirmwareRequest{}
	default:
		return nil
	}
}

// IsKnownAction reports whether action is in the recognized OCPP 1.6 (plus
// security extension) action set.
func IsKnownAction(action string) bool {
	return requestPrototype(action) != nil
}

// ValidateRequest unmarshals payload into the request shape for action and
// runs required-field validation. An error here means the caller should
// reply with a FormatViolation CallError.
func ValidateRequest(action string, payload []byte) error {
	proto := requestPrototype(action)
	if proto == nil {
		return fmt.Errorf("unknown action %q", action)
	}
	if err := json.Unmarshal(payload, proto); err != nil {
		return fmt.Errorf("payload does not match %s schema: %w", action, err)
	}
	if err := validate.Struct(proto); err != nil {
		return fmt.Errorf("payload fails %s validation: %w", action, err)
	}
	return nil
}
