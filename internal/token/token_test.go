package token

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/go-test/deep"
)

func fixture() Token {
	var id [16]byte
	copy(id[:], []byte("0011223344556677"))
	return Token{
		Version:    Version,
		Type:       TypeRecoveryToken,
		ID:         id,
		Options:    OptionStatusRequested,
		Issuer:     "https://ap.example",
		Audience:   "https://rp.example",
		IssuedTime: "2017-01-31T15:04:05+00:00",
		Data:       []byte("hello"),
		Binding:    nil,
		Signature:  []byte{0x30, 0x02, 0x01, 0x00},
	}
}

// Property 1: round-trip. deserialize(serialize(t)) == t byte-for-byte.
func TestRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		tok := randomToken(t)
		raw, err := tok.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if diff := deep.Equal(got, tok); diff != nil {
			t.Errorf("round trip mismatch: %v", diff)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	tok := fixture()
	enc, err := tok.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := deep.Equal(got, tok); diff != nil {
		t.Errorf("mismatch: %v", diff)
	}
}

func TestEmptyFields(t *testing.T) {
	tok := fixture()
	tok.Data = nil
	tok.Binding = nil
	raw, err := tok.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Data) != 0 || len(got.Binding) != 0 {
		t.Errorf("expected empty Data/Binding, got %v %v", got.Data, got.Binding)
	}
}

func TestTruncatedBuffer(t *testing.T) {
	tok := fixture()
	raw, err := tok.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for n := 0; n < len(raw)-len(tok.Signature); n++ {
		if _, err := Parse(raw[:n]); err == nil {
			t.Errorf("Parse(raw[:%d]) = nil, want error", n)
		}
	}
}

// Property 6: length-field totality. Any byte sequence whose declared
// lengths sum beyond the buffer is rejected with ErrMalformedToken.
func TestLengthFieldOverrun(t *testing.T) {
	tok := fixture()
	raw, err := tok.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Locate the issuer length prefix (right after version+type+id+options)
	// and inflate it so it overruns the rest of the buffer.
	lenOff := 1 + 1 + 16 + 1
	mangled := append([]byte(nil), raw...)
	mangled[lenOff] = 0xFF
	mangled[lenOff+1] = 0xFF
	if _, err := Parse(mangled); err == nil {
		t.Error("Parse with inflated length prefix = nil, want error")
	}
}

func TestNonASCIIField(t *testing.T) {
	tok := fixture()
	tok.Issuer = "https://\xc3\xa9xample"
	raw, err := tok.SigningInput()
	if err != nil {
		t.Fatalf("SigningInput: %v", err)
	}
	raw = append(raw, tok.Signature...)
	if _, err := Parse(raw); err == nil {
		t.Error("Parse with non-ASCII issuer = nil, want error")
	}
}

func TestTrailingBytesAreSignature(t *testing.T) {
	// Everything after the five length-prefixed fields is Signature, so
	// "trailing bytes" can only be detected by the consumer (the
	// signature verifier), not by this layer. Verify that parsing still
	// succeeds and captures all of it.
	tok := fixture()
	tok.Signature = append(tok.Signature, []byte("garbage-that-looks-like-more-data")...)
	raw, err := tok.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got.Signature, tok.Signature) {
		t.Error("Signature not captured verbatim")
	}
}

func TestReservedOptionBits(t *testing.T) {
	tok := fixture()
	tok.Options = 0x80
	raw, err := tok.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := Parse(raw); err == nil {
		t.Error("Parse with reserved option bits = nil, want error")
	}
}

func randomToken(t *testing.T) Token {
	t.Helper()
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	data := make([]byte, 10)
	rand.Read(data)
	binding := make([]byte, 4)
	rand.Read(binding)
	sig := make([]byte, 70)
	rand.Read(sig)
	return Token{
		Version:    Version,
		Type:       TypeCountersignedToken,
		ID:         id,
		Options:    OptionLowFrictionRequested,
		Issuer:     "https://ap.example",
		Audience:   "https://rp.example",
		IssuedTime: "2020-06-15T10:00:00+00:00",
		Data:       data,
		Binding:    binding,
		Signature:  sig,
	}
}
