package dht

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dht/int160"
)

func TestSecureIdVectors(t *testing.T) {
	for _, c := range []struct {
		ipStr     string
		nodeIDHex string
		valid     bool
	}{
		{"124.31.75.21", "5fbfbff10c5d6a4ec8a88e4c6ab4c28b95eee401", true},
		{"21.75.31.124", "5a3ce9c14e7a08645677bbd1cfe7d8f956d53256", true},
		{"65.23.51.170", "a5d43220bc8f112a3d426c84764f8c2a1150e616", true},
		{"84.124.73.14", "1b0321dd1bb1fe518101ceef99462b947a01ff41", true},
		{"43.213.53.83", "e56f6cbf5b7c4be0237986d5243b87aa6d51305a", true},
		{"124.31.75.21", "5fbfbff10c5d7a4ec8a88e4c6ab4c28b95eee401", true},
		{"21.75.31.124", "5a3ce1c14e7a08645677bbd1cfe7d8f956d53256", false},
		{"65.23.51.170", "a5d43620bc8f112a3d426c84764f8c2a1150e616", true},
		{"84.124.73.14", "1b0321dd1bb1fe518101ceef99462b947a01fe01", true},
		{"43.213.53.83", "e56f6cbf5b7c4be0237986d5243b87aa6d51303e", false},
		{"10.213.53.83", "e56f6cbf5b7c4be0237986d5243b87aa6d51305a", true},
		{"12.213.53.83", "e56f6cbf5b7c4be0237986d5243b87aa6d51305a", false},
		{"192.168.53.83", "e56f6cbf5b7c4be0237986d5243b87aa6d51305a", true},
	} {
		ip := net.ParseIP(c.ipStr)
		raw, err := hex.DecodeString(c.nodeIDHex)
		require.NoError(t, err)
		var arr [20]byte
		copy(arr[:], raw)
		id := int160.FromByteArray(arr)

		secure := NodeIdSecure(id, ip)
		assert.Equal(t, c.valid, secure, "%v", c)
		if !secure {
			SecureNodeId(&id, ip)
			assert.True(t, NodeIdSecure(id, ip), "%v", c)
		}
	}
}

func getInsecureIP(id int160.T, ip net.IP) {
	for {
		rand.Read(ip)
		if !NodeIdSecure(id, ip) {
			break
		}
	}
}

// A node ID secured against one IP cannot also be secure against an
// unrelated second IP.
func TestSecureNodeIdBindsToSingleIP(t *testing.T) {
	id := int160.Random()
	ip4 := make(net.IP, 4)
	getInsecureIP(id, ip4)
	ip6 := make(net.IP, 16)
	getInsecureIP(id, ip6)

	require.False(t, NodeIdSecure(id, ip4))
	require.False(t, NodeIdSecure(id, ip6))

	SecureNodeId(&id, ip4)
	assert.True(t, NodeIdSecure(id, ip4))
	assert.False(t, NodeIdSecure(id, ip6))

	SecureNodeId(&id, ip6)
	assert.True(t, NodeIdSecure(id, ip6))
	assert.False(t, NodeIdSecure(id, ip4))
}
