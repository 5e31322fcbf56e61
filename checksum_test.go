package rpng

import "testing"

func TestCRC32_KnownVectors(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		want uint32
	}{
		{name: "empty", in: "", want: 0x00000000},
		{name: "check", in: "123456789", want: 0xCBF43926},
		{name: "iend", in: "IEND", want: 0xAE426082},
		{name: "single", in: "a", want: 0xE8B7BE43},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := CRC32([]byte(tc.in)); got != tc.want {
				t.Fatalf("CRC32(%q) = 0x%08X, want 0x%08X", tc.in, got, tc.want)
			}
		})
	}
}

func TestCRC32_Deterministic(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 7)
	}
	if CRC32(data) != CRC32(data) {
		t.Fatalf("CRC32 not deterministic")
	}
}

func TestAdler32_KnownVectors(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		want uint32
	}{
		{name: "empty", in: "", want: 0x00000001},
		{name: "wikipedia", in: "Wikipedia", want: 0x11E60398},
		{name: "abc", in: "abc", want: 0x024D0127},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Adler32(adlerInit, []byte(tc.in)); got != tc.want {
				t.Fatalf("Adler32(%q) = 0x%08X, want 0x%08X", tc.in, got, tc.want)
			}
		})
	}
}

func TestAdler32_Incremental(t *testing.T) {
	data := make([]byte, 100000)
	for i := range data {
		data[i] = byte(i)
	}
	whole := Adler32(adlerInit, data)
	split := Adler32(Adler32(adlerInit, data[:33333]), data[33333:])
	if whole != split {
		t.Fatalf("incremental mismatch: whole 0x%08X, split 0x%08X", whole, split)
	}
}
