// Package ocppj implements the OCPP-J wire framing: the three JSON-array
// message shapes exchanged between a charge station and the central server,
// and the fixed CallError code table.
package ocppj

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

// Frame is the decoded form of a wire message. It preserves the raw
// MessageId and raw payload JSON; payload is not schema-validated here.
type Frame struct {
	Type             MessageType
	MessageID        string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// FrameMalformed is returned by Decode when the payload is not a JSON
// array, the first element is not one of {2,3,4}, or the arity does not
// match the shape implied by the type.
type FrameMalformed struct {
	Reason string
}

func (e *FrameMalformed) Error() string {
	return fmt.Sprintf("ocppj: malformed frame: %s", e.Reason)
}

// Decode parses a textual WebSocket payload into a Frame.
func Decode(data []byte) (*Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FrameMalformed{Reason: "payload is not a JSON array"}
	}
	if len(raw) == 0 {
		return nil, &FrameMalformed{Reason: "empty array"}
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, &FrameMalformed{Reason: "first element is not a message type number"}
	}

	switch MessageType(msgType) {
	case Call:
		if len(raw) != 4 {
			return nil, &FrameMalformed{Reason: "Call frame must have 4 elements"}
		}
		msgID, err := unquoteMessageID(raw[1])
		if err != nil {
			return nil, err
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return nil, &FrameMalformed{Reason: "Action is not a string"}
		}
		return &Frame{Type: Call, MessageID: msgID, Action: action, Payload: raw[3]}, nil

	case CallResult:
		if len(raw) != 3 {
			return nil, &FrameMalformed{Reason: "CallResult frame must have 3 elements"}
		}
		msgID, err := unquoteMessageID(raw[1])
		if err != nil {
			return nil, err
		}
		return &Frame{Type: CallResult, MessageID: msgID, Payload: raw[2]}, nil

	case CallError:
		if len(raw) != 5 {
			return nil, &FrameMalformed{Reason: "CallError frame must have 5 elements"}
		}
		msgID, err := unquoteMessageID(raw[1])
		if err != nil {
			return nil, err
		}
		var code, desc string
		if err := json.Unmarshal(raw[2], &code); err != nil {
			return nil, &FrameMalformed{Reason: "ErrorCode is not a string"}
		}
		if err := json.Unmarshal(raw[3], &desc); err != nil {
			return nil, &FrameMalformed{Reason: "ErrorDescription is not a string"}
		}
		return &Frame{
			Type: CallError, MessageID: msgID,
			ErrorCode: code, ErrorDescription: desc, ErrorDetails: raw[4],
		}, nil

	default:
		return nil, &FrameMalformed{Reason: "first element is not 2, 3 or 4"}
	}
}

// unquoteMessageID accepts a raw JSON token that is either a JSON string
// ("abc") or a bare token (abc, resulting from an already-unquoted value
// upstream) and returns the plain MessageId text in both cases.
func unquoteMessageID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	trimmed := strings.Trim(string(raw), `"`)
	if trimmed == "" {
		return "", &FrameMalformed{Reason: "MessageId could not be read"}
	}
	return trimmed, nil
}

// quoteMessageID returns msgID as a single JSON string token regardless of
// whether the caller already wrapped it in quotes. This makes WrapCall and
// friends idempotent in MessageId quoting, per the wire format's quoting
// rule.
func quoteMessageID(msgID string) string {
	unquoted := strings.Trim(msgID, `"`)
	b, _ := json.Marshal(unquoted)
	return string(b)
}

// WrapCall encodes a Call frame: [2,"<MessageId>","<Action>",<Payload>].
func WrapCall(messageID, action string, payloadJSON string) string {
	return fmt.Sprintf("[2,%s,%s,%s]", quoteMessageID(messageID), mustQuoteString(action), payloadJSON)
}

// WrapCallResult encodes a CallResult frame: [3,"<MessageId>",<Payload>].
func WrapCallResult(messageID string, payloadJSON string) string {
	return fmt.Sprintf("[3,%s,%s]", quoteMessageID(messageID), payloadJSON)
}

// WrapCallError encodes a CallError frame using the fixed description for
// code. errorDetailsJSON may be "{}" or "null".
func WrapCallError(messageID string, code ErrorCode, errorDetailsJSON string) string {
	if errorDetailsJSON == "" {
		errorDetailsJSON = "{}"
	}
	return fmt.Sprintf("[4,%s,%s,%s,%s]",
		quoteMessageID(messageID), mustQuoteString(string(code)), mustQuoteString(code.Description()), errorDetailsJSON)
}

func mustQuoteString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
