// Package defaultresponse models the per-station mutable table of canned
// replies for the five overridable OCPP actions (component B). Modeled as
// a record of five optional-typed fields plus a generic delivery envelope,
// not as a string-keyed heterogeneous map, per the design note on keeping
// type-safety in the default-response shape.
package defaultresponse

import (
	"encoding/json"
	"fmt"

	"github.com/seu-repo/ocpp-csms/internal/ocpp16"
)

// Table is initialized at station-session creation with hard-coded
// defaults and mutated by Apply as the operator issues set_default_response
// commands.
type Table struct {
	Authorize        *ocpp16.AuthorizeResponse
	DataTransfer     *ocpp16.DataTransferResponse
	SignCertificate  *ocpp16.SignCertificateResponse
	StartTransaction *ocpp16.StartTransactionResponse
	StopTransaction  *ocpp16.StopTransactionResponse
}

// placeholderTransactionID is the fixed placeholder transaction id used in
// the initial StartTransaction default.
const placeholderTransactionID = 1

// New returns a table initialized with hard-coded Accepted defaults, a
// fixed placeholder transaction id, and empty optionals.
func New() *Table {
	return &Table{
		Authorize: &ocpp16.AuthorizeResponse{
			IDTagInfo: ocpp16.IDTagInfo{Status: "Accepted"},
		},
		DataTransfer: &ocpp16.DataTransferResponse{
			Status: "Accepted",
		},
		SignCertificate: &ocpp16.SignCertificateResponse{
			Status: "Accepted",
		},
		StartTransaction: &ocpp16.StartTransactionResponse{
			IDTagInfo:     ocpp16.IDTagInfo{Status: "Accepted"},
			TransactionID: placeholderTransactionID,
		},
		StopTransaction: &ocpp16.StopTransactionResponse{
			IDTagInfo: &ocpp16.IDTagInfo{Status: "Accepted"},
		},
	}
}

// Envelope is the discriminated delivery form the router ships to a
// station to mutate its default table. Exactly one field should be set;
// present fields overwrite the corresponding table entry, absent fields
// (nil) are left unchanged.
type Envelope struct {
	Authorize        *ocpp16.AuthorizeResponse
	DataTransfer     *ocpp16.DataTransferResponse
	SignCertificate  *ocpp16.SignCertificateResponse
	StartTransaction *ocpp16.StartTransactionResponse
	StopTransaction  *ocpp16.StopTransactionResponse
}

// Apply mutates t in place according to env: present fields overwrite,
// absent fields are left untouched.
func (t *Table) Apply(env Envelope) {
	if env.Authorize != nil {
		t.Authorize = env.Authorize
	}
	if env.DataTransfer != nil {
		t.DataTransfer = env.DataTransfer
	}
	if env.SignCertificate != nil {
		t.SignCertificate = env.SignCertificate
	}
	if env.StartTransaction != nil {
		t.StartTransaction = env.StartTransaction
	}
	if env.StopTransaction != nil {
		t.StopTransaction = env.StopTransaction
	}
}

// IsOverridableAction reports whether action is one of the five recognized
// set_default_response targets.
func IsOverridableAction(action string) bool {
	switch action {
	case "Authorize", "DataTransfer", "SignCertificate", "StartTransaction", "StopTransaction":
		return true
	default:
		return false
	}
}

// BuildEnvelope unmarshals payload into the response shape for action and
// wraps it in an Envelope with exactly that field set. An error here means
// the caller (the operator session's set_default_response handler) should
// reply with a JSON-RPC Invalid params error.
func BuildEnvelope(action string, payload []byte) (Envelope, error) {
	switch action {
	case "Authorize":
		var r ocpp16.AuthorizeResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return Envelope{}, fmt.Errorf("payload does not match Authorize response schema: %w", err)
		}
		return Envelope{Authorize: &r}, nil
	case "DataTransfer":
		var r ocpp16.DataTransferResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return Envelope{}, fmt.Errorf("payload does not match DataTransfer response schema: %w", err)
		}
		return Envelope{DataTransfer: &r}, nil
	case "SignCertificate":
		var r ocpp16.SignCertificateResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return Envelope{}, fmt.Errorf("payload does not match SignCertificate response schema: %w", err)
		}
		return Envelope{SignCertificate: &r}, nil
	case "StartTransaction":
		var r ocpp16.StartTransactionResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return Envelope{}, fmt.Errorf("payload does not match StartTransaction response schema: %w", err)
		}
		return Envelope{StartTransaction: &r}, nil
	case "StopTransaction":
		var r ocpp16.StopTransactionResponse
		if err := json.Unmarshal(payload, &r); err != nil {
			return Envelope{}, fmt.Errorf("payload does not match StopTransaction response schema: %w", err)
		}
		return Envelope{StopTransaction: &r}, nil
	default:
		return Envelope{}, fmt.Errorf("action %q is not a recognized default-response action", action)
	}
}

// ResponseFor returns the current default response object for one of the
// five recognized actions, and whether action is one of them.
func (t *Table) ResponseFor(action string) (interface{}, bool) {
	switch action {
	case "Authorize":
		return t.Authorize, true
	case "DataTransfer":
		return t.DataTransfer, true
	case "SignCertificate":
		return t.SignCertificate, true
	case "StartTransaction":
		return t.StartTransaction, true
	case "StopTransaction":
		return t.StopTransaction, true
	default:
		return nil, false
	}
}
