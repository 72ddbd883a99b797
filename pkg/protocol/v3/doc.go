// Package v3 implements protocol version 3, the multiplexed CBOR wire
// protocol.
//
// Frames are self-describing CBOR maps, so either side may add fields or
// frame variants without breaking the other: unknown map keys are ignored
// and unknown frame variants decode to an Unknown frame instead of
// failing the connection. The handshake negotiates an explicit version
// range and a capability set, and packets carry request ids so responses
// may arrive out of order.
//
// Every decode is preceded by a non-allocating structural validation pass
// (see validate.go) so a small hostile frame cannot claim enormous
// containers and force large allocations.
package v3
