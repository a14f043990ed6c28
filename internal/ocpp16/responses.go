package ocpp16

// IDTagInfo is the status envelope shared by Authorize and StartTransaction
// responses, and is the shape of the Authorize/StartTransaction entries in
// the default-response table (component B).
type IDTagInfo struct {
	Status      string  `json:"status"`
	ExpiryDate  *string `json:"expiryDate,omitempty"`
	ParentIDTag *string `json:"parentIdTag,omitempty"`
}

type AuthorizeResponse struct {
	IDTagInfo IDTagInfo `json:"idTagInfo"`
}

type BootNotificationResponse struct {
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
	Status      string `json:"status"`
}

type DataTransferResponse struct {
	Status string  `json:"status"`
	Data   *string `json:"data,omitempty"`
}

type StartTransactionResponse struct {
	IDTagInfo     IDTagInfo `json:"idTagInfo"`
	TransactionID int       `json:"transactionId"`
}

type StopTransactionResponse struct {
	IDTagInfo *IDTagInfo `json:"idTagInfo,omitempty"`
}

type SignCertificateResponse struct {
	Status string `json:"status"`
}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

// emptyResponse is the shape returned by every action whose OCPP 1.6
// response carries no fields (MeterValues, StatusNotification, and the
// various *StatusNotification actions).
type emptyResponse struct{}
