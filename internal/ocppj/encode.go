package ocppj

import "fmt"

// Encode renders f back to its wire text. It is the inverse of Decode:
// Decode(f.Encode()) reproduces f for any well-formed frame.
func (f *Frame) Encode() string {
	switch f.Type {
	case Call:
		return WrapCall(f.MessageID, f.Action, string(f.Payload))
	case CallResult:
		return WrapCallResult(f.MessageID, string(f.Payload))
	case CallError:
		details := string(f.ErrorDetails)
		if details == "" {
			details = "null"
		}
		return fmt.Sprintf("[4,%s,%s,%s,%s]",
			quoteMessageID(f.MessageID), mustQuoteString(f.ErrorCode), mustQuoteString(f.ErrorDescription), details)
	default:
		return ""
	}
}
