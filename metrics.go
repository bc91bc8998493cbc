package dht

import "expvar"

// Package-level counters, grounded on the teacher's dht/expvar.go. Kept
// as plain expvar.Int rather than per-Server fields: these are process-wide
// diagnostics, not per-node state, matching how the teacher exposes them.
var (
	read               = expvar.NewInt("dhtRead")
	readBlocked        = expvar.NewInt("dhtReadBlocked")
	readUnmarshalError = expvar.NewInt("dhtReadUnmarshalError")
	readQuery          = expvar.NewInt("dhtReadQuery")
	readReply          = expvar.NewInt("dhtReadReply")
	announceErrors     = expvar.NewInt("dhtAnnounceErrors")
)
