// Package transactions implements the generic RPC transaction table: each
// outstanding query is tracked by its transaction ID plus the remote
// address it was sent to, so a reply can be matched back to the state
// that sent the query.
package transactions

// Key matches both the KRPC transaction ID and the remote address a
// query was sent to, since transaction IDs are only required to be
// unique per-peer.
type Key struct {
	T          Id
	RemoteAddr string
}

// Id is the transaction ID type, matching the `t` field of a KRPC
// message.
type Id = string
