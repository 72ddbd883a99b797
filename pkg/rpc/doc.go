// Package rpc provides the connection layer between router and workers.
//
// A Conn is a multiplexed protocol version 3 connection: calls carry
// request ids, responses may arrive out of order, and either side may
// send notifications or cancellations at any time. Request ids are
// partitioned by parity so the two sides can allocate without
// coordination: router-originated ids are even starting at 2, worker
// ids odd starting at 1.
//
// Lockstep is the protocol version 2 equivalent: strictly one message in
// flight, used for workers that have not been upgraded.
//
// Handshakes for both versions start from the same listener. The first
// frame's payload distinguishes them, so RouterHandshake returns either
// a Conn or a legacy session.
package rpc
