package dht

import (
	"hash/crc32"
	"net"

	"github.com/anacrolix/dht/int160"
)

// BEP-42 secure node IDs bind an ID to the IP address that generated it,
// deterring Sybil attacks that would otherwise let an attacker choose IDs
// clustering around a target.

func maskForIP(ip net.IP) []byte {
	if ip.To4() != nil {
		return []byte{0x03, 0x0f, 0x3f, 0xff}
	}
	return []byte{0x01, 0x03, 0x07, 0x0f, 0x1f, 0x3f, 0x7f, 0xff}
}

// crcIP computes the CRC32C used to derive or validate a secure node ID.
func crcIP(ip net.IP, rnd uint8) uint32 {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	ip = append(make(net.IP, 0, len(ip)), ip...)
	mask := maskForIP(ip)
	for i := range mask {
		ip[i] &= mask[i]
	}
	r := rnd & 7
	ip[0] |= r << 5
	return crc32.Checksum(ip[:len(mask)], crc32.MakeTable(crc32.Castagnoli))
}

// SecureNodeId overwrites id in place with a BEP-42-compliant value bound
// to ip, preserving id[19] (the random byte the derivation keys off) and
// the low 3 bits of id[2].
func SecureNodeId(id *int160.T, ip net.IP) {
	b := id.BytesMut()
	crc := crcIP(ip, b[19])
	b[0] = byte(crc >> 24 & 0xff)
	b[1] = byte(crc >> 16 & 0xff)
	b[2] = byte(crc>>8&0xf8) | b[2]&7
}

// NodeIdSecure reports whether id is a valid BEP-42 secure ID for ip.
// Private, loopback and link-local addresses are exempt and always pass.
func NodeIdSecure(id int160.T, ip net.IP) bool {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	b := id.Bytes()
	crc := crcIP(ip, b[19])
	if b[0] != byte(crc>>24&0xff) {
		return false
	}
	if b[1] != byte(crc>>16&0xff) {
		return false
	}
	if b[2]&0xf8 != byte(crc>>8&0xf8) {
		return false
	}
	return true
}

// GenerateSecureNodeId returns a fresh random ID secured for ip.
func GenerateSecureNodeId(ip net.IP) int160.T {
	id := int160.Random()
	SecureNodeId(&id, ip)
	return id
}
