package filter

import (
	"bytes"
	"strings"
	"testing"
)

func TestIdentityRoundTrips(t *testing.T) {
	f := NewIdentity()
	src := []byte("hello filter chain")

	fwd, err := f.ApplyForward(src)
	if err != nil {
		t.Fatalf("ApplyForward: %v", err)
	}
	rev, err := f.ApplyReverse(fwd)
	if err != nil {
		t.Fatalf("ApplyReverse: %v", err)
	}
	if !bytes.Equal(rev, src) {
		t.Fatalf("round trip = %q, want %q", rev, src)
	}
}

func TestCompressionRoundTrips(t *testing.T) {
	f := NewCompression(WithBlockSize(64))
	src := bytes.Repeat([]byte("abcabcabcabc"), 200)

	fwd, err := f.ApplyForward(src)
	if err != nil {
		t.Fatalf("ApplyForward: %v", err)
	}
	rev, err := f.ApplyReverse(fwd)
	if err != nil {
		t.Fatalf("ApplyReverse: %v", err)
	}
	if !bytes.Equal(rev, src) {
		t.Fatal("round-tripped data does not match source")
	}
}

func TestCompressionSkipsHighEntropyInput(t *testing.T) {
	called := false
	f := NewCompression(WithEntropySource(func() float64 {
		called = true
		return 0.99
	}))

	src := []byte("looks random but isn't, doesn't matter here")
	fwd, err := f.ApplyForward(src)
	if err != nil {
		t.Fatalf("ApplyForward: %v", err)
	}
	if !called {
		t.Fatal("entropy source was never consulted")
	}
	if fwd[0] != 0 {
		t.Fatalf("expected identity tag byte 0 for high-entropy input, got %d", fwd[0])
	}

	rev, err := f.ApplyReverse(fwd)
	if err != nil {
		t.Fatalf("ApplyReverse: %v", err)
	}
	if !bytes.Equal(rev, src) {
		t.Fatal("round-tripped data does not match source")
	}
}

func TestEncryptedCompressionIsAnUnimplementedContract(t *testing.T) {
	f := NewEncryptedCompression()
	if f.ID() != EncryptedCompression {
		t.Fatalf("ID() = %d, want %d", f.ID(), EncryptedCompression)
	}
	if _, err := f.ApplyForward([]byte("x")); err == nil {
		t.Fatal("expected an error from the unimplemented encrypted-compression filter")
	}
}

func TestChainComposesInOrder(t *testing.T) {
	c := NewChain(NewIdentity(), NewCompression(WithBlockSize(64)), NewIdentity())
	src := bytes.Repeat([]byte("chain me up"), 100)

	fwd, err := c.Forward(src)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	rev, err := c.Reverse(fwd)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if !bytes.Equal(rev, src) {
		t.Fatal("chain round trip does not match source")
	}
}

func TestChainForwardErrorNamesFailingFilter(t *testing.T) {
	c := NewChain(NewEncryptedCompression())
	_, err := c.Forward([]byte("x"))
	if err == nil || !strings.Contains(err.Error(), "ID 2") {
		t.Fatalf("Forward error = %v, want it to name the failing filter ID", err)
	}
}
