package wire

import (
	"os"
	"strconv"
	"sync"
)

const (
	// LenPrefixBytes is the size of the frame length prefix.
	LenPrefixBytes = 4

	// DefaultMaxFrameBytes is the frame payload ceiling used when no
	// override is configured. Default: 32 MiB.
	DefaultMaxFrameBytes = 32 * 1024 * 1024

	// HardMaxFrameBytes is the absolute payload ceiling. Configuration may
	// lower the limit but never raise it past this value. 64 MiB.
	HardMaxFrameBytes = 64 * 1024 * 1024

	// MaxFrameSizeEnvVar overrides the default frame payload ceiling for
	// the whole process. Values above HardMaxFrameBytes are clamped;
	// unparseable values are ignored.
	MaxFrameSizeEnvVar = "SATURN_RPC_MAX_MESSAGE_SIZE"
)

// Limits bounds what a single connection will read or write.
type Limits struct {
	// MaxFrameBytes is the largest payload accepted or produced.
	MaxFrameBytes uint32
}

// DefaultLimits returns the process-wide default limits, honoring
// SATURN_RPC_MAX_MESSAGE_SIZE. The environment is consulted once per
// process and the result cached.
func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: envMaxFrameBytes()}
}

// WithMaxFrameBytes returns limits with the given payload ceiling, clamped
// to HardMaxFrameBytes. A zero value selects the default.
func WithMaxFrameBytes(n uint32) Limits {
	if n == 0 {
		return DefaultLimits()
	}
	if n > HardMaxFrameBytes {
		n = HardMaxFrameBytes
	}
	return Limits{MaxFrameBytes: n}
}

var (
	envOnce  sync.Once
	envLimit uint32
)

func envMaxFrameBytes() uint32 {
	envOnce.Do(func() {
		envLimit = DefaultMaxFrameBytes
		raw, ok := os.LookupEnv(MaxFrameSizeEnvVar)
		if !ok {
			return
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v == 0 {
			return
		}
		if v > HardMaxFrameBytes {
			v = HardMaxFrameBytes
		}
		envLimit = uint32(v)
	})
	return envLimit
}

// resetEnvLimitForTest clears the cached environment override so tests can
// exercise different SATURN_RPC_MAX_MESSAGE_SIZE values.
func resetEnvLimitForTest() {
	envOnce = sync.Once{}
	envLimit = 0
}
