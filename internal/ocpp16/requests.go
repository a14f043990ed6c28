// Package ocpp16 models the OCPP 1.6 (plus security extension) request and
// response payload shapes named in the wire format, and the pure response
// builders for the synthesized-response actions.
package ocpp16

// Request types carry the required-field constraints enforced by
// validator.Struct in Validate. Optional OCPP fields are pointers or slices
// so that absence is distinguishable from the zero value, except
// ReserveNowRequest.ParentIDTag, a plain string where absence reads as "";
// unlisted extra
// fields in the wire payload are tolerated because json.Unmarshal ignores
// them by default.

type AuthorizeRequest struct {
	IDTag string `json:"idTag" validate:"required"`
}

type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required"`
	ChargeBoxSerialNumber   *string `json:"chargeBoxSerialNumber,omitempty"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty"`
	ICCID                   *string `json:"iccid,omitempty"`
	IMSI                    *string `json:"imsi,omitempty"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty"`
	MeterType               *string `json:"meterType,omitempty"`
}

type CancelReservationRequest struct {
	ReservationID int `json:"reservationId" validate:"required"`
}

type ChangeAvailabilityRequest struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type" validate:"required,oneof=Inoperative Operative"`
}

type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

type ClearCacheRequest struct{}

type ClearChargingProfileRequest struct {
	ID                     *int    `json:"id,omitempty"`
	ConnectorID            *int    `json:"connectorId,omitempty"`
	ChargingProfilePurpose *string `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int    `json:"stackLevel,omitempty"`
}

type DataTransferRequest struct {
	VendorID  string  `json:"vendorId" validate:"required"`
	MessageID *string `json:"messageId,omitempty"`
	Data      *string `json:"data,omitempty"`
}

type DiagnosticsStatusNotificationRequest struct {
	Status string `json:"status" validate:"required,oneof=Idle Uploaded UploadFailed Uploading"`
}

type FirmwareStatusNotificationRequest struct {
	Status string `json:"status" validate:"required"`
}

type GetCompositeScheduleRequest struct {
	ConnectorID      int     `json:"connectorId"`
	Duration         int     `json:"duration"`
	ChargingRateUnit *string `json:"chargingRateUnit,omitempty"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type GetDiagnosticsRequest struct {
	Location      string  `json:"location" validate:"required"`
	Retries       *int    `json:"retries,omitempty"`
	RetryInterval *int    `json:"retryInterval,omitempty"`
	StartTime     *string `json:"startTime,omitempty"`
	StopTime      *string `json:"stopTime,omitempty"`
}

type GetLocalListVersionRequest struct{}

type HeartbeatRequest struct{}

type MeterValue struct {
	Timestamp    string          `json:"timestamp" validate:"required"`
	SampledValue []SampledValue  `json:"sampledValue" validate:"required,min=1,dive"`
}

type SampledValue struct {
	Value     string  `json:"value" validate:"required"`
	Context   *string `json:"context,omitempty"`
	Format    *string `json:"format,omitempty"`
	Measurand *string `json:"measurand,omitempty"`
	Phase     *string `json:"phase,omitempty"`
	Location  *string `json:"location,omitempty"`
	Unit      *string `json:"unit,omitempty"`
}

type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1,dive"`
}

type RemoteStartTransactionRequest struct {
	IDTag       string `json:"idTag" validate:"required"`
	ConnectorID *int   `json:"connectorId,omitempty"`
}

type RemoteStopTransactionRequest struct {
	TransactionID int `json:"transactionId"`
}

type ReserveNowRequest struct {
	ConnectorID   int    `json:"connectorId"`
	ExpiryDate    string `json:"expiryDate" validate:"required"`
	IDTag         string `json:"idTag" validate:"required"`
	ReservationID int    `json:"reservationId"`
	ParentIDTag   string `json:"parentIdTag,omitempty"`
}

type ResetRequest struct {
	Type string `json:"type" validate:"required,oneof=Hard Soft"`
}

type SendLocalListRequest struct {
	ListVersion     int    `json:"listVersion"`
	UpdateType      string `json:"updateType" validate:"required,oneof=Differential Full"`
}

type SetChargingProfileRequest struct {
	ConnectorID int `json:"connectorId"`
}

type StartTransactionRequest struct {
	ConnectorID   int    `json:"connectorId"`
	IDTag         string `json:"idTag" validate:"required"`
	MeterStart    int    `json:"meterStart"`
	Timestamp     string `json:"timestamp" validate:"required"`
	ReservationID *int   `json:"reservationId,omitempty"`
}

type StatusNotificationRequest struct {
	ConnectorID     int    `json:"connectorId"`
	ErrorCode       string `json:"errorCode" validate:"required"`
	Status          string `json:"status" validate:"required"`
	Timestamp       *string `json:"timestamp,omitempty"`
	Info            *string `json:"info,omitempty"`
	VendorID        *string `json:"vendorId,omitempty"`
	VendorErrorCode *string `json:"vendorErrorCode,omitempty"`
}

type StopTransactionRequest struct {
	MeterStop     int    `json:"meterStop"`
	Timestamp     string `json:"timestamp" validate:"required"`
	TransactionID int    `json:"transactionId"`
	Reason        *string `json:"reason,omitempty"`
	IDTag         *string `json:"idTag,omitempty"`
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

type UnlockConnectorRequest struct {
	ConnectorID int `json:"connectorId"`
}

type UpdateFirmwareRequest struct {
	Location      string `json:"location" validate:"required"`
	RetrieveDate  string `json:"retrieveDate" validate:"required"`
	Retries       *int   `json:"retries,omitempty"`
	RetryInterval *int   `json:"retryInterval,omitempty"`
}

// --- Security extension ---

type CertificateSignedRequest struct {
	CertificateChain string `json:"certificateChain" validate:"required"`
}

type DeleteCertificateRequest struct {
	CertificateHashData map[string]interface{} `json:"certificateHashData" validate:"required"`
}

type ExtendedTriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

type GetInstalledCertificateIdsRequest struct {
	CertificateType *string `json:"certificateType,omitempty"`
}

type GetLogRequest struct {
	LogType      string                 `json:"logType" validate:"required"`
	RequestID    int                    `json:"requestId"`
	Log          map[string]interface{} `json:"log" validate:"required"`
	Retries      *int                   `json:"retries,omitempty"`
	RetryInterval *int                  `json:"retryInterval,omitempty"`
}

type InstallCertificateRequest struct {
	CertificateType string `json:"certificateType" validate:"required"`
	Certificate     string `json:"certificate" validate:"required"`
}

type LogStatusNotificationRequest struct {
	Status    string `json:"status" validate:"required"`
	RequestID *int   `json:"requestId,omitempty"`
}

type SecurityEventNotificationRequest struct {
	Type      string `json:"type" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
	TechInfo  *string `json:"techInfo,omitempty"`
}

type SignCertificateRequest struct {
	CSR string `json:"csr" validate:"required"`
}

type SignedFirmwareStatusNotificationRequest struct {
	Status    string `json:"status" validate:"required"`
	RequestID *int   `json:"requestId,omitempty"`
}

type SignedUpdateFirmwareRequest struct {
	RequestID int                    `json:"requestId"`
	Firmware  map[string]interface{} `json:"firmware" validate:"required"`
}
