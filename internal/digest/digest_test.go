package digest

import (
	"bytes"
	"testing"
)

func TestChunkDeterministic(t *testing.T) {
	data := []byte("hello world")
	a := Chunk(data)
	b := Chunk(append([]byte(nil), data...))
	if a != b {
		t.Fatalf("Chunk() not deterministic: %x != %x", a, b)
	}
}

func TestChunkKnownVector(t *testing.T) {
	// sha1("hello world") per spec S2
	got := Chunk([]byte("hello world"))
	want := "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"
	if hexEncode(got[:]) != want {
		t.Fatalf("Chunk(\"hello world\") = %s, want %s", hexEncode(got[:]), want)
	}
}

func TestChunkHasherMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	h := NewChunkHasher()
	h.Update(data[:10])
	h.Update(data[10:])
	got := h.Finalize()
	want := Chunk(data)
	if got != want {
		t.Fatalf("incremental ChunkHasher diverges from one-shot Chunk")
	}
}

func TestContainerHasherMatchesOneShot(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 4096)
	h := NewContainerHasher()
	h.Update(data[:2048])
	h.Update(data[2048:])
	got := h.Finalize()
	want := Container(data)
	if got != want {
		t.Fatalf("incremental ContainerHasher diverges from one-shot Container")
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0xf]
	}
	return string(out)
}
