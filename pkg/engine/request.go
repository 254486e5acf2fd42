package engine

import (
	"errors"
	"strings"

	"github.com/navedmerchant/mydeviceai-link/pkg/protocol"
)

// Conversation roles accepted by hosts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request validation failures.
var (
	ErrEmptyRequestID   = errors.New("request: empty id")
	ErrEmptyUserMessage = errors.New("request: empty user message")
)

// BuildPrompt validates and assembles an outgoing generation request.
// Both text inputs are trimmed; a blank user message is rejected, a blank
// system prompt is simply omitted. maxTokens is included only when strictly
// positive. The id is caller-chosen and must be unique among requests
// outstanding to the same peer; the engine does not deduplicate.
func BuildPrompt(id, systemPrompt, userContent string, maxTokens int) (protocol.Prompt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return protocol.Prompt{}, ErrEmptyRequestID
	}
	user := strings.TrimSpace(userContent)
	if user == "" {
		return protocol.Prompt{}, ErrEmptyUserMessage
	}

	var msgs []protocol.ChatMessage
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		msgs = append(msgs, protocol.ChatMessage{Role: RoleSystem, Content: sys})
	}
	msgs = append(msgs, protocol.ChatMessage{Role: RoleUser, Content: user})

	p := protocol.Prompt{ID: id, Messages: msgs}
	if maxTokens > 0 {
		p.MaxTokens = maxTokens
	}
	return p, nil
}
