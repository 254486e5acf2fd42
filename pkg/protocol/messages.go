// Package protocol defines the wire messages exchanged with a remote
// peer-link host and the tolerant decode boundary that turns raw channel
// payloads into typed messages.
package protocol

import "encoding/json"

// Wire discriminator values carried in the `t` field.
const (
	TagHello            = "hello"
	TagVersionNegotiate = "version_negotiate"
	TagVersionAck       = "version_ack"
	TagGetModel         = "get_model"
	TagModelInfo        = "model_info"
	TagPrompt           = "prompt"
	TagStart            = "start"
	TagToken            = "token"
	TagReasoningToken   = "reasoning_token"
	TagEnd              = "end"
	TagError            = "error"
)

// Message is one decoded wire message. The set of implementations is closed
// except for Unknown, which absorbs any unrecognized discriminator.
type Message interface {
	Tag() string
}

// Hello announces identity and implementation info. Either side may send it
// at any time; it carries no protocol obligations.
type Hello struct {
	ClientID string `json:"clientId,omitempty"`
	Impl     string `json:"impl,omitempty"`
	Version  string `json:"version,omitempty"`
}

// VersionNegotiate opens the handshake with the sender's protocol version
// and the oldest version it can still talk to.
type VersionNegotiate struct {
	ProtocolVersion      string `json:"protocolVersion"`
	MinCompatibleVersion string `json:"minCompatibleVersion"`
}

// VersionAck is the host's terminal negotiation decision.
type VersionAck struct {
	Compatible      bool   `json:"compatible"`
	ProtocolVersion string `json:"protocolVersion"`
	Reason          string `json:"reason,omitempty"`
}

// GetModel asks the host for its current model descriptor.
type GetModel struct{}

// ModelInfo describes the model available on the host. It replaces any
// previously cached descriptor wholesale.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Installed   bool   `json:"installed"`
}

// ChatMessage is one entry of a prompt conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt submits a generation request under a caller-chosen correlation id.
type Prompt struct {
	ID        string        `json:"id"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// Start begins the response stream for a correlation id.
type Start struct {
	ID string `json:"id"`
}

// Token carries one visible-channel chunk.
type Token struct {
	ID  string `json:"id"`
	Tok string `json:"tok"`
}

// ReasoningToken carries one hidden-channel chunk.
type ReasoningToken struct {
	ID  string `json:"id"`
	Tok string `json:"tok"`
}

// End terminates a stream successfully.
type End struct {
	ID string `json:"id"`
}

// ErrorMsg terminates a stream with a failure message.
type ErrorMsg struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Unknown holds any message whose discriminator we do not recognize.
// Fields is the raw field bag minus the discriminator itself.
type Unknown struct {
	T      string
	Fields map[string]any
}

func (Hello) Tag() string            { return TagHello }
func (VersionNegotiate) Tag() string { return TagVersionNegotiate }
func (VersionAck) Tag() string       { return TagVersionAck }
func (GetModel) Tag() string         { return TagGetModel }
func (ModelInfo) Tag() string        { return TagModelInfo }
func (Prompt) Tag() string           { return TagPrompt }
func (Start) Tag() string            { return TagStart }
func (Token) Tag() string            { return TagToken }
func (ReasoningToken) Tag() string   { return TagReasoningToken }
func (End) Tag() string              { return TagEnd }
func (ErrorMsg) Tag() string         { return TagError }
func (u Unknown) Tag() string        { return u.T }

// Marshal encodes m as a single JSON object carrying the `t` discriminator.
// Optional fields that are unset are omitted rather than sent as null.
func Marshal(m Message) ([]byte, error) {
	var fields map[string]any
	if u, ok := m.(Unknown); ok {
		fields = make(map[string]any, len(u.Fields)+1)
		for k, v := range u.Fields {
			fields[k] = v
		}
	} else {
		body, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
	}
	fields["t"] = m.Tag()
	return json.Marshal(fields)
}
