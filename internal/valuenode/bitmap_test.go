package valuenode

import "testing"

func TestBitmapSetGetBit(t *testing.T) {
	b := NewBitmap()
	if old := b.SetBit(7, 1); old != 0 {
		t.Fatalf("SetBit(7,1) old = %d, want 0", old)
	}
	if got := b.GetBit(7); got != 1 {
		t.Fatalf("GetBit(7) = %d, want 1", got)
	}
	if old := b.SetBit(7, 1); old != 1 {
		t.Fatalf("SetBit(7,1) again old = %d, want 1", old)
	}
	if old := b.SetBit(7, 0); old != 1 {
		t.Fatalf("SetBit(7,0) old = %d, want 1", old)
	}
	if got := b.GetBit(7); got != 0 {
		t.Fatalf("GetBit(7) after clear = %d, want 0", got)
	}
}

func TestBitmapLen(t *testing.T) {
	b := NewBitmap()
	if b.Len() != 0 {
		t.Fatalf("Len() of empty bitmap = %d, want 0", b.Len())
	}
	b.SetBit(15, 1)
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestBitmapCount(t *testing.T) {
	b := NewBitmap()
	b.SetBit(0, 1)
	b.SetBit(9, 1)
	b.SetBit(17, 1)
	if got := b.Count(0, 2); got != 3 {
		t.Fatalf("Count(0,2) = %d, want 3", got)
	}
	if got := b.Count(1, 1); got != 1 {
		t.Fatalf("Count(1,1) = %d, want 1", got)
	}
}

func TestBitmapPos(t *testing.T) {
	b := NewBitmap()
	b.SetBit(10, 1)
	if got := b.Pos(1, 0, 5); got != 10 {
		t.Fatalf("Pos(1,0,5) = %d, want 10", got)
	}
	if got := b.Pos(0, 0, 0); got != 0 {
		t.Fatalf("Pos(0,0,0) = %d, want 0", got)
	}
}

func TestBitmapToBytesFromBytesRoundTrip(t *testing.T) {
	b := NewBitmap()
	b.SetBit(0, 1)
	b.SetBit(7, 1)
	b.SetBit(8, 1)
	data := b.ToBytes()
	want := []byte{0x81, 0x80}
	if len(data) != len(want) || data[0] != want[0] || data[1] != want[1] {
		t.Fatalf("ToBytes() = %v, want %v", data, want)
	}

	rebuilt := FromBytes(data)
	if rebuilt.GetBit(0) != 1 || rebuilt.GetBit(7) != 1 || rebuilt.GetBit(8) != 1 || rebuilt.GetBit(1) != 0 {
		t.Fatalf("FromBytes round-trip mismatch: %v", rebuilt.bits)
	}
}

func TestBitOpAnd(t *testing.T) {
	a := FromBytes([]byte{0xFF})
	b := FromBytes([]byte{0x0F})
	result := BitOp(func(x, y byte) byte { return x & y }, [][]byte{a.ToBytes(), b.ToBytes()})
	if got := result.ToBytes(); len(got) != 1 || got[0] != 0x0F {
		t.Fatalf("BitOp AND = %v, want [0x0F]", got)
	}
}

func TestBitOpNot(t *testing.T) {
	src := []byte{0x0F}
	result := BitOpNot(src)
	if got := result.ToBytes(); len(got) != 1 || got[0] != 0xF0 {
		t.Fatalf("BitOpNot = %v, want [0xF0]", got)
	}
}

func TestBitmapClone(t *testing.T) {
	b := NewBitmap()
	b.SetBit(3, 1)
	clone := b.Clone()
	clone.SetBit(4, 1)
	if b.GetBit(4) != 0 {
		t.Fatal("mutating clone affected original")
	}
	if clone.GetBit(3) != 1 {
		t.Fatal("clone missing original bit")
	}
}
