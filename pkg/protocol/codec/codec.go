// Package codec provides pluggable serialization for structured records.
// The wire protocol itself is JSON; CBOR is used for compact local records
// and Proto is available for hosts that exchange protobuf payloads.
package codec

// Codec marshals and unmarshals typed values. Implementations must be
// deterministic so encoded records are stable across peers.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct {
	byType map[string]Codec
}

// NewRegistry returns a registry preloaded with the codecs that construct
// without an error path: JSON and Proto. CBOR is registered explicitly via
// Register(MustCBOR()).
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	return r
}

// Register adds or replaces a codec by its content type.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns the codec for contentType, or nil when unregistered.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }
