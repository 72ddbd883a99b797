// Package legacy implements protocol version 2, the lockstep wire protocol
// older workers speak.
//
// The message set is closed: every message is a one-byte tag followed by
// fixed-layout little-endian fields, and both sides must agree on the
// single integer Version. There is no negotiation and no forward
// compatibility; an unknown tag or a version mismatch fails the
// connection. Traffic is strictly request/response in order.
//
// The byte layout is pinned by golden-vector tests in this package and
// must never change.
package legacy
