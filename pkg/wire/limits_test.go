package wire

import (
	"strconv"
	"testing"
)

func TestDefaultLimitsEnvOverride(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want uint32
	}{
		{"unset", "", DefaultMaxFrameBytes},
		{"valid", "1048576", 1048576},
		{"clamped to hard cap", strconv.Itoa(HardMaxFrameBytes * 2), HardMaxFrameBytes},
		{"garbage ignored", "not-a-number", DefaultMaxFrameBytes},
		{"zero ignored", "0", DefaultMaxFrameBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetEnvLimitForTest()
			t.Cleanup(resetEnvLimitForTest)
			if tt.env != "" {
				t.Setenv(MaxFrameSizeEnvVar, tt.env)
			}
			if got := DefaultLimits().MaxFrameBytes; got != tt.want {
				t.Errorf("MaxFrameBytes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDefaultLimitsCached(t *testing.T) {
	resetEnvLimitForTest()
	t.Cleanup(resetEnvLimitForTest)

	t.Setenv(MaxFrameSizeEnvVar, "2048")
	first := DefaultLimits().MaxFrameBytes
	t.Setenv(MaxFrameSizeEnvVar, "4096")
	second := DefaultLimits().MaxFrameBytes

	if first != 2048 || second != 2048 {
		t.Errorf("limits = (%d, %d), want both 2048 (env read once)", first, second)
	}
}

func TestWithMaxFrameBytes(t *testing.T) {
	if got := WithMaxFrameBytes(HardMaxFrameBytes + 1).MaxFrameBytes; got != HardMaxFrameBytes {
		t.Errorf("over hard cap: got %d, want %d", got, HardMaxFrameBytes)
	}
	if got := WithMaxFrameBytes(512).MaxFrameBytes; got != 512 {
		t.Errorf("explicit: got %d, want 512", got)
	}
}
