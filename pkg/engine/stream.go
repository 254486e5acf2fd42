package engine

import "strings"

// StreamStatus is the lifecycle of one generation stream.
type StreamStatus int

const (
	StreamIdle StreamStatus = iota
	StreamStreaming
	StreamCompleted
	StreamErrored
)

func (s StreamStatus) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamStreaming:
		return "streaming"
	case StreamCompleted:
		return "completed"
	case StreamErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// streamState reassembles one token stream per peer. At most one correlation
// id is live at a time: a new start unconditionally supersedes the previous
// stream and clears both buffers, and chunks for any other id are dropped by
// the caller. Buffers grow strictly in arrival order.
type streamState struct {
	activeID  string
	status    StreamStatus
	visible   strings.Builder
	reasoning strings.Builder
	errMsg    string
}

// start begins (or supersedes into) a new stream.
func (st *streamState) start(id string) {
	st.activeID = id
	st.status = StreamStreaming
	st.visible.Reset()
	st.reasoning.Reset()
	st.errMsg = ""
}

func (st *streamState) live(id string) bool {
	return st.status == StreamStreaming && id != "" && id == st.activeID
}

// appendVisible appends a visible-channel chunk iff id matches the live
// stream.
func (st *streamState) appendVisible(id, tok string) bool {
	if !st.live(id) {
		return false
	}
	st.visible.WriteString(tok)
	return true
}

// appendReasoning appends a hidden-channel chunk iff id matches the live
// stream.
func (st *streamState) appendReasoning(id, tok string) bool {
	if !st.live(id) {
		return false
	}
	st.reasoning.WriteString(tok)
	return true
}

// end completes the live stream; the buffers become the terminal result.
func (st *streamState) end(id string) bool {
	if !st.live(id) {
		return false
	}
	st.status = StreamCompleted
	st.activeID = ""
	return true
}

// fail marks the stream errored. It applies when id matches the live stream
// or when no stream is live at all; a mismatched id while another stream is
// live leaves that stream untouched.
func (st *streamState) fail(id, msg string) bool {
	if st.activeID != "" && id != st.activeID {
		return false
	}
	st.status = StreamErrored
	st.errMsg = msg
	st.activeID = ""
	return true
}
