// Package wire implements the length-prefixed frame format used on every
// router/worker connection.
//
// A frame is a 4-byte little-endian payload length followed by the payload
// bytes. The length counts the payload only, never the prefix. All frame
// size enforcement goes through an explicit Limits value so callers can
// see and test the active ceiling instead of relying on ambient state.
//
// # Usage
//
//	limits := wire.DefaultLimits()
//	if err := wire.WriteFrame(conn, payload, limits); err != nil {
//	    return err
//	}
//	payload, err := wire.ReadFrame(conn, limits)
//
// Oversized frames are rejected from the length prefix alone, before any
// payload memory is allocated.
package wire
