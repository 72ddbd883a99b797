package v3

import (
	"bytes"
	"testing"
)

func TestValidateCBORAccepts(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"small int", []byte{0x05}},
		{"empty map", []byte{0xa0}},
		{"text string", []byte{0x63, 'a', 'b', 'c'}},
		{"nested map", []byte{0xa1, 0x61, 'k', 0xa1, 0x61, 'v', 0x01}},
		{"array of ints", []byte{0x83, 0x01, 0x02, 0x03}},
		{"tagged item", []byte{0xc2, 0x41, 0x01}},
		{"float", []byte{0xfb, 0x40, 0x09, 0x21, 0xfb, 0x54, 0x44, 0x2d, 0x18}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateCBOR(tt.buf); err != nil {
				t.Errorf("ValidateCBOR(%x) = %v", tt.buf, err)
			}
		})
	}
}

func TestValidateCBORRejects(t *testing.T) {
	deepNest := bytes.Repeat([]byte{0x81}, maxCBORNesting+2)
	deepNest = append(deepNest, 0x01)

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"truncated string", []byte{0x63, 'a'}},
		// Array claiming 0x20000000 elements in a 6-byte buffer.
		{"allocation bomb array", []byte{0x9a, 0x20, 0x00, 0x00, 0x00, 0x00}},
		// Map claiming 0xffff pairs.
		{"allocation bomb map", []byte{0xba, 0x00, 0x00, 0xff, 0xff, 0x00}},
		{"indefinite array", []byte{0x9f, 0x01, 0xff}},
		{"indefinite string", []byte{0x7f, 0x61, 'a', 0xff}},
		{"excess nesting", deepNest},
		{"trailing bytes", []byte{0x01, 0x02}},
		{"reserved info", []byte{0x1c}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateCBOR(tt.buf); err == nil {
				t.Errorf("ValidateCBOR(%x) accepted hostile input", tt.buf)
			}
		})
	}
}

func TestValidateCBORHappyPathNoAllocation(t *testing.T) {
	buf := []byte{0xa2, 0x61, 'a', 0x83, 0x01, 0x02, 0x03, 0x61, 'b', 0x63, 'x', 'y', 'z'}
	if err := ValidateCBOR(buf); err != nil {
		t.Fatalf("ValidateCBOR: %v", err)
	}
	allocs := testing.AllocsPerRun(100, func() {
		_ = ValidateCBOR(buf)
	})
	if allocs != 0 {
		t.Errorf("allocs per run = %.0f, want 0", allocs)
	}
}

func FuzzDecodeFrame(f *testing.F) {
	seed, err := EncodeFrame(&WireFrame{Type: FrameHello, Hello: &WorkerHello{
		ShardID:           1,
		SupportedVersions: DefaultSupportedVersions,
		Capabilities:      DefaultCapabilities(1 << 16),
	}})
	if err != nil {
		f.Fatal(err)
	}
	f.Add(seed)
	f.Add([]byte{0xa0})
	f.Add([]byte{0x9a, 0xff, 0xff, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		frame, err := DecodeFrame(data)
		if err != nil {
			return
		}
		// Whatever decoded must re-encode without panicking.
		if _, err := EncodeFrame(frame); err != nil {
			t.Errorf("re-encode of decoded frame failed: %v", err)
		}
	})
}
