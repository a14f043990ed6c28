package ocppj

// ErrorCode is the fixed CallError code enumeration. Each code carries a
// fixed human description, grounded on the original server's error table.
type ErrorCode string

const (
	FormatViolation               ErrorCode = "FormationViolation"
	GenericError                  ErrorCode = "GenericError"
	InternalError                 ErrorCode = "InternalError"
	MessageTypeNotSupported       ErrorCode = "MessageTypeNotSupported"
	NotImplemented                ErrorCode = "NotImplemented"
	NotSupported                  ErrorCode = "NotSupported"
	OccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	PropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ProtocolError                 ErrorCode = "ProtocolError"
	RpcFrameworkError             ErrorCode = "RpcFrameworkError"
	SecurityError                 ErrorCode = "SecurityError"
	TypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
)

var errorDescriptions = map[ErrorCode]string{
	FormatViolation:               "Payload for Action is syntactically incorrect or not conform the PDU structure for Action",
	GenericError:                  "Non specific error",
	InternalError:                 "An internal error occurred and the receiver was not able to process the requested Action successfully",
	MessageTypeNotSupported:       "A message with an Message Type Number received that is not supported by this implementation",
	NotImplemented:                "Requested Action is not known by receiver",
	NotSupported:                  "Requested Action is recognized but not supported by the receiver",
	OccurrenceConstraintViolation: "Payload for Action is syntactically correct but at least one of the fields violates occurrence constraints",
	PropertyConstraintViolation:   "Payload for Action is syntactically correct but at least one of the fields violates occurrence constraints",
	ProtocolError:                 "Payload for Action is not conform the PDU structure",
	RpcFrameworkError:             "Content of the call is not a valid RPC Request, for example: MessageId could not be read.",
	SecurityError:                 "During the processing of Action a security issue occurred preventing receiver from completing the Action successfully",
	TypeConstraintViolation:       "Payload for Action is syntactically correct but at least one of the fields violates data type constraints",
}

// Description returns the fixed human-readable description for code.
func (c ErrorCode) Description() string {
	return errorDescriptions[c]
}
