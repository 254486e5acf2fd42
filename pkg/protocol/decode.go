package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// DecodeReason classifies why a payload was rejected at the decode boundary.
type DecodeReason string

const (
	// ReasonUnsupportedPayload marks a payload that is neither text nor a
	// byte sequence.
	ReasonUnsupportedPayload DecodeReason = "unsupported-payload"
	// ReasonMalformed marks text that does not parse as a JSON object or
	// whose fields do not fit the declared variant.
	ReasonMalformed DecodeReason = "malformed"
	// ReasonMissingDiscriminator marks an object without a string `t` field.
	ReasonMissingDiscriminator DecodeReason = "missing-discriminator"
)

// DecodeError reports a rejected payload. Decode failures are non-fatal
// signals: the caller logs and drops the message.
type DecodeError struct {
	Reason DecodeReason
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return "decode: " + string(e.Reason)
	}
	return "decode: " + string(e.Reason) + ": " + e.Detail
}

// Decode converts a raw channel payload into exactly one Message.
// Text and byte-sequence payloads are accepted; bytes are treated as UTF-8
// text. Unrecognized discriminators decode into Unknown rather than failing.
// Decode is pure: it never touches shared state.
func Decode(raw any) (Message, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		return nil, &DecodeError{Reason: ReasonUnsupportedPayload, Detail: fmt.Sprintf("%T", raw)}
	}
	if !utf8.Valid(data) {
		return nil, &DecodeError{Reason: ReasonMalformed, Detail: "payload is not valid UTF-8"}
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Reason: ReasonMalformed, Detail: err.Error()}
	}
	tag, ok := fields["t"].(string)
	if !ok {
		return nil, &DecodeError{Reason: ReasonMissingDiscriminator}
	}

	switch tag {
	case TagHello:
		return decodeAs[Hello](data)
	case TagVersionNegotiate:
		return decodeAs[VersionNegotiate](data)
	case TagVersionAck:
		return decodeAs[VersionAck](data)
	case TagGetModel:
		return decodeAs[GetModel](data)
	case TagModelInfo:
		return decodeAs[ModelInfo](data)
	case TagPrompt:
		return decodeAs[Prompt](data)
	case TagStart:
		return decodeAs[Start](data)
	case TagToken:
		return decodeAs[Token](data)
	case TagReasoningToken:
		return decodeAs[ReasoningToken](data)
	case TagEnd:
		return decodeAs[End](data)
	case TagError:
		return decodeAs[ErrorMsg](data)
	default:
		delete(fields, "t")
		return Unknown{T: tag, Fields: fields}, nil
	}
}

func decodeAs[M Message](data []byte) (Message, error) {
	var m M
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Reason: ReasonMalformed, Detail: err.Error()}
	}
	return m, nil
}
