package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDecodeTextAndBytes(t *testing.T) {
	m, err := Decode(`{"t":"token","id":"x1","tok":"Hel"}`)
	if err != nil {
		t.Fatalf("decode text: %v", err)
	}
	if tok, ok := m.(Token); !ok || tok.ID != "x1" || tok.Tok != "Hel" {
		t.Fatalf("unexpected message: %#v", m)
	}

	m, err = Decode([]byte(`{"t":"end","id":"x1"}`))
	if err != nil {
		t.Fatalf("decode bytes: %v", err)
	}
	if e, ok := m.(End); !ok || e.ID != "x1" {
		t.Fatalf("unexpected message: %#v", m)
	}
}

func TestDecodeUnsupportedPayload(t *testing.T) {
	_, err := Decode(42)
	var de *DecodeError
	if !errors.As(err, &de) || de.Reason != ReasonUnsupportedPayload {
		t.Fatalf("want unsupported-payload, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"not json", "[1,2,3]", `{"t":"token","tok":5}`, string([]byte{0xff, 0xfe})} {
		_, err := Decode(raw)
		var de *DecodeError
		if !errors.As(err, &de) || de.Reason != ReasonMalformed {
			t.Fatalf("raw %q: want malformed, got %v", raw, err)
		}
	}
}

func TestDecodeMissingDiscriminator(t *testing.T) {
	for _, raw := range []string{`{}`, `{"id":"x"}`, `{"t":5}`, `{"t":null}`} {
		_, err := Decode(raw)
		var de *DecodeError
		if !errors.As(err, &de) || de.Reason != ReasonMissingDiscriminator {
			t.Fatalf("raw %q: want missing-discriminator, got %v", raw, err)
		}
	}
}

func TestDecodeUnknownTagTolerated(t *testing.T) {
	m, err := Decode(`{"t":"future_thing","x":1,"y":"z"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	u, ok := m.(Unknown)
	if !ok || u.T != "future_thing" {
		t.Fatalf("unexpected message: %#v", m)
	}
	if _, present := u.Fields["t"]; present {
		t.Fatalf("discriminator leaked into field bag: %#v", u.Fields)
	}
	if u.Fields["x"].(float64) != 1 || u.Fields["y"].(string) != "z" {
		t.Fatalf("fields lost: %#v", u.Fields)
	}
}

func TestMarshalDecodeRoundTrip(t *testing.T) {
	msgs := []Message{
		Hello{ClientID: "pk:ed25519:abc", Impl: "mydeviceai-link", Version: "0.3.0"},
		VersionNegotiate{ProtocolVersion: "1.0.0", MinCompatibleVersion: "1.0.0"},
		VersionAck{Compatible: true, ProtocolVersion: "1.0.0"},
		VersionAck{Compatible: false, ProtocolVersion: "2.0.0", Reason: "too old"},
		GetModel{},
		ModelInfo{ID: "m1", DisplayName: "Test Model", Installed: true},
		Prompt{ID: "r1", Messages: []ChatMessage{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}}, MaxTokens: 128},
		Prompt{ID: "r2", Messages: []ChatMessage{{Role: "user", Content: "hi"}}},
		Start{ID: "x1"},
		Token{ID: "x1", Tok: "Hel"},
		ReasoningToken{ID: "x1", Tok: "thinking"},
		End{ID: "x1"},
		ErrorMsg{ID: "x1", Message: "oom"},
		Unknown{T: "future_thing", Fields: map[string]any{"x": float64(1)}},
	}
	for _, in := range msgs {
		b, err := Marshal(in)
		if err != nil {
			t.Fatalf("%s: marshal: %v", in.Tag(), err)
		}
		out, err := Decode(b)
		if err != nil {
			t.Fatalf("%s: decode: %v", in.Tag(), err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("%s: round trip mismatch:\n in: %#v\nout: %#v", in.Tag(), in, out)
		}
	}
}

func TestMarshalOmitsUnsetOptionals(t *testing.T) {
	b, err := Marshal(Prompt{ID: "r1", Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), `"max_tokens"`) {
		t.Fatalf("max_tokens should be omitted: %s", b)
	}
	b, err = Marshal(VersionAck{Compatible: true, ProtocolVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), `"reason"`) {
		t.Fatalf("reason should be omitted: %s", b)
	}
}
