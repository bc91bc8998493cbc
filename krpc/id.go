package krpc

import (
	"github.com/anacrolix/dht/int160"
)

// ID is the 20-byte node identifier as it appears on the wire.
type ID = int160.T
