package v3

import "fmt"

// ProtocolVersion is a negotiable major.minor pair, unlike the single
// integer of protocol version 2.
type ProtocolVersion struct {
	Major uint16 `cbor:"major"`
	Minor uint16 `cbor:"minor"`
}

// Current is the version this implementation speaks natively.
var Current = ProtocolVersion{Major: 3, Minor: 0}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less orders versions by major then minor.
func (v ProtocolVersion) Less(o ProtocolVersion) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// SupportedVersions is an inclusive version range offered in a hello.
type SupportedVersions struct {
	Min ProtocolVersion `cbor:"min"`
	Max ProtocolVersion `cbor:"max"`
}

// DefaultSupportedVersions is the range this implementation offers.
var DefaultSupportedVersions = SupportedVersions{Min: Current, Max: Current}

// ChooseCommon picks the highest version inside both ranges, or false when
// the ranges do not overlap.
func (s SupportedVersions) ChooseCommon(o SupportedVersions) (ProtocolVersion, bool) {
	hi := s.Max
	if o.Max.Less(hi) {
		hi = o.Max
	}
	lo := s.Min
	if lo.Less(o.Min) {
		lo = o.Min
	}
	if hi.Less(lo) {
		return ProtocolVersion{}, false
	}
	return hi, true
}

// Compression identifiers a peer may offer for packet payloads.
const (
	CompressionNone uint8 = 0
	CompressionZstd uint8 = 1
)

// Capabilities are the per-connection operating limits and feature flags
// exchanged at handshake time. Every field must be non-zero-meaningful:
// a hello whose capabilities are all zero values is rejected as malformed.
type Capabilities struct {
	// MaxFrameLen is the largest single frame the peer will accept.
	MaxFrameLen uint32 `cbor:"max_frame_len"`
	// MaxPacketLen is the largest logical packet, possibly spanning
	// multiple chunked frames.
	MaxPacketLen uint32 `cbor:"max_packet_len"`
	// SupportedCompression lists acceptable packet compression codes.
	SupportedCompression []uint8 `cbor:"supported_compression"`
	// SupportsCancel reports whether the peer honors Cancel payloads.
	SupportsCancel bool `cbor:"supports_cancel"`
	// SupportsChunking reports whether the peer accepts PacketChunk frames.
	SupportsChunking bool `cbor:"supports_chunking"`
}

// IsZero reports whether no capability field has been populated.
func (c Capabilities) IsZero() bool {
	return c.MaxFrameLen == 0 && c.MaxPacketLen == 0 &&
		len(c.SupportedCompression) == 0 && !c.SupportsCancel && !c.SupportsChunking
}

// Negotiate intersects two capability sets, taking the smaller of each
// limit and the conjunction of each flag.
func Negotiate(a, b Capabilities) Capabilities {
	out := Capabilities{
		MaxFrameLen:      min(a.MaxFrameLen, b.MaxFrameLen),
		MaxPacketLen:     min(a.MaxPacketLen, b.MaxPacketLen),
		SupportsCancel:   a.SupportsCancel && b.SupportsCancel,
		SupportsChunking: a.SupportsChunking && b.SupportsChunking,
	}
	for _, c := range a.SupportedCompression {
		for _, d := range b.SupportedCompression {
			if c == d {
				out.SupportedCompression = append(out.SupportedCompression, c)
				break
			}
		}
	}
	if len(out.SupportedCompression) == 0 {
		out.SupportedCompression = []uint8{CompressionNone}
	}
	return out
}

// DefaultCapabilities returns this implementation's offer for the given
// frame limit.
func DefaultCapabilities(maxFrameLen uint32) Capabilities {
	return Capabilities{
		MaxFrameLen:          maxFrameLen,
		MaxPacketLen:         maxFrameLen,
		SupportedCompression: []uint8{CompressionNone},
		SupportsCancel:       true,
		SupportsChunking:     false,
	}
}
