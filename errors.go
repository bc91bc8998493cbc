package dht

import "errors"

// errQueryTimeout is passed to a query's error callback when no reply
// arrived before the transaction's timeout elapsed.
var errQueryTimeout = errors.New("dht: query timed out")

// errNoReplyBody is passed to a query's error callback when a reply
// message carried no "r" dict (shouldn't happen for a well-formed peer,
// but the wire format doesn't rule it out).
var errNoReplyBody = errors.New("dht: reply had no body")

// ErrNoQuota is returned by a query method when PacketSender.HasQuota
// reports no room to send; the query is not sent and no transaction is
// registered, so the caller (typically a traversal) should retry later.
var ErrNoQuota = errors.New("dht: send quota exhausted")
