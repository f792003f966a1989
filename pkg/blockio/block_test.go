package blockio

import "testing"

func TestModeRoundTrip(t *testing.T) {
	m := Mode{Sorter: SorterBWT, Coder: CoderQLFCAdaptive, LZPMinLen: 8, LZPHashSize: 16}
	got, err := UnpackMode(m.Pack())
	if err != nil {
		t.Fatalf("UnpackMode: %v", err)
	}
	if got != m {
		t.Fatalf("UnpackMode(Pack()) = %+v, want %+v", got, m)
	}
}

func TestUnpackModeZeroIsStored(t *testing.T) {
	m, err := UnpackMode(0)
	if err != nil {
		t.Fatalf("UnpackMode(0): %v", err)
	}
	if m.Sorter != SorterStored {
		t.Fatalf("Sorter = %d, want SorterStored", m.Sorter)
	}
}

func TestUnpackModeRejectsBadSorter(t *testing.T) {
	bad := Mode{Sorter: 3, Coder: CoderQLFCStatic}.Pack()
	if _, err := UnpackMode(bad); err == nil {
		t.Fatal("expected error for unsupported sorter")
	}
}

func TestUnpackModeRejectsBadCoder(t *testing.T) {
	bad := Mode{Sorter: SorterBWT, Coder: 5}.Pack()
	if _, err := UnpackMode(bad); err == nil {
		t.Fatal("expected error for unsupported coder")
	}
}

func TestUnpackModeRejectsBadLZPFields(t *testing.T) {
	cases := []Mode{
		{Sorter: SorterBWT, Coder: CoderQLFCStatic, LZPMinLen: 2},
		{Sorter: SorterBWT, Coder: CoderQLFCStatic, LZPHashSize: 5},
		{Sorter: SorterBWT, Coder: CoderQLFCStatic, LZPHashSize: 29},
	}
	for _, m := range cases {
		if _, err := UnpackMode(m.Pack()); err == nil {
			t.Fatalf("expected error for mode %+v", m)
		}
	}
}

func TestInspectBlockRejectsShortHeader(t *testing.T) {
	if _, err := InspectBlock(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestInspectBlockDetectsHeaderCorruption(t *testing.T) {
	h := Header{BlockSize: 30, DataSize: 2, SrcAdler: 1, CompAdler: 2}
	buf := h.Encode()

	if _, err := InspectBlock(buf[:]); err != nil {
		t.Fatalf("InspectBlock on untouched header: %v", err)
	}

	buf[0] ^= 0xFF // corrupt a byte covered by the header checksum
	if _, err := InspectBlock(buf[:]); err == nil {
		t.Fatal("expected DataCorrupt after flipping a header byte")
	}
}

func TestInspectBlockRejectsImplausibleSizes(t *testing.T) {
	h := Header{BlockSize: 1000, DataSize: 2} // blockSize far exceeds HeaderSize+DataSize
	buf := h.Encode()
	if _, err := InspectBlock(buf[:]); err == nil {
		t.Fatal("expected error for blockSize exceeding HeaderSize+DataSize")
	}

	h2 := Header{BlockSize: 28, DataSize: 2, PrimaryIndex: 9}
	buf2 := h2.Encode()
	if _, err := InspectBlock(buf2[:]); err == nil {
		t.Fatal("expected error for primaryIndex exceeding dataSize")
	}
}

func TestPreHeaderRoundTrip(t *testing.T) {
	p := PreHeader{SourceOffset: 12345, RecordSize: 1, SortingContext: 1}
	buf := p.Encode()
	got, err := DecodePreHeader(buf[:])
	if err != nil {
		t.Fatalf("DecodePreHeader: %v", err)
	}
	if got != p {
		t.Fatalf("DecodePreHeader(Encode()) = %+v, want %+v", got, p)
	}
}

func TestDecodePreHeaderRejectsBadFields(t *testing.T) {
	bad := PreHeader{RecordSize: 0, SortingContext: 1}.Encode()
	if _, err := DecodePreHeader(bad[:]); err == nil {
		t.Fatal("expected error for recordSize < 1")
	}

	bad2 := PreHeader{RecordSize: 1, SortingContext: 3}.Encode()
	if _, err := DecodePreHeader(bad2[:]); err == nil {
		t.Fatal("expected error for unsupported sortingContext")
	}
}

func TestPostProcessIdentity(t *testing.T) {
	data := []byte("unchanged")
	out, err := PostProcess(data, 1, 1)
	if err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if string(out) != "unchanged" {
		t.Fatalf("PostProcess(identity) = %q, want unchanged", out)
	}
}

func TestPostProcessReversesRecords(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6} // three 2-byte records
	out, err := PostProcess(data, 2, 2)
	if err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	want := []byte{5, 6, 3, 4, 1, 2}
	if string(out) != string(want) {
		t.Fatalf("PostProcess(reversed) = %v, want %v", out, want)
	}
}
