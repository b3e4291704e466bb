package dlep

import (
	"bytes"
	"testing"
)

func TestOutBufferAppendAndTruncate(t *testing.T) {
	b := newOutBuffer()
	b.appendU8(0x01)
	b.appendU16(0x0203)
	b.appendU32(0x04050607)
	b.append([]byte{0xAA, 0xBB})

	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xAA, 0xBB}
	if !bytes.Equal(b.data(), want) {
		t.Fatalf("data() = % x, want % x", b.data(), want)
	}
	if b.length() != len(want) {
		t.Fatalf("length() = %d, want %d", b.length(), len(want))
	}

	b.truncate(3)
	if !bytes.Equal(b.data(), want[:3]) {
		t.Fatalf("after truncate(3), data() = % x, want % x", b.data(), want[:3])
	}

	// Truncating past the current length or negative is a no-op.
	b.truncate(100)
	if b.length() != 3 {
		t.Fatalf("truncate(100) should be a no-op, length() = %d", b.length())
	}
	b.truncate(-1)
	if b.length() != 3 {
		t.Fatalf("truncate(-1) should be a no-op, length() = %d", b.length())
	}
}

func TestOutBufferPatchU16(t *testing.T) {
	b := newOutBuffer()
	b.appendU16(0)
	b.append([]byte{1, 2, 3, 4})
	b.patchU16(0, 0x1234)

	want := []byte{0x12, 0x34, 1, 2, 3, 4}
	if !bytes.Equal(b.data(), want) {
		t.Fatalf("data() = % x, want % x", b.data(), want)
	}
}
