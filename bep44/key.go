// Package bep44 implements BEP-44 ("Storing arbitrary data in the DHT")
// immutable and mutable items: target-id derivation, Ed25519 signing and
// verification, and an in-memory store with CAS/sequence enforcement.
package bep44

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha1"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/anacrolix/dht/bencode"
)

// Put is a BEP-44 item as carried by a put query or get reply: either
// immutable (K is nil, target = SHA1(bencode(V))) or mutable (K is the
// 32-byte Ed25519 public key, target = SHA1(K || Salt)).
type Put struct {
	V    interface{}
	K    *[32]byte
	Salt []byte
	Sig  [64]byte
	// Cas is nil when the putter supplied no compare-and-swap constraint;
	// a non-nil value must equal the stored item's current Seq or the put
	// is rejected. Left as a pointer (rather than int64) so "omitted" and
	// "explicitly zero" stay distinguishable all the way into the store.
	Cas *int64
	Seq int64
}

// Mutable reports whether this is a mutable (signed, key-addressed) item.
func (p Put) Mutable() bool {
	return p.K != nil
}

// Target is the 160-bit storage key this item is addressed by.
func (p Put) Target() (id [20]byte) {
	if p.K == nil {
		b, err := bencode.Marshal(p.V)
		if err != nil {
			panic(err)
		}
		id = sha1.Sum(b)
		return
	}
	h := sha1.New()
	h.Write(p.K[:])
	h.Write(p.Salt)
	copy(id[:], h.Sum(nil))
	return
}

// bufferToSign builds the exact byte string a mutable item's signature is
// computed over: optional salt, then seq, then the already-bencoded value.
// The shape is fixed by BEP-44, not a local encoding choice, hence the
// hand assembly instead of a generic dict marshal (a bencode dict would
// also include "k"/"sig"/"cas", none of which are part of the signed
// payload).
func bufferToSign(salt []byte, bencodedV []byte, seq int64) []byte {
	var buf bytes.Buffer
	if len(salt) > 0 {
		fmt.Fprintf(&buf, "4:salt%d:%s", len(salt), salt)
	}
	fmt.Fprintf(&buf, "3:seqi%de", seq)
	buf.WriteString("1:v")
	buf.Write(bencodedV)
	return buf.Bytes()
}

// NewItem constructs an unsigned item: immutable when k is nil, otherwise
// a mutable item shell whose Sig must be filled in separately (the server
// side of a put query receives an already-signed item and only verifies
// it; it never signs on the recipient's behalf).
func NewItem(v interface{}, k *[32]byte, seq int64, cas *int64, salt []byte) (Put, error) {
	return Put{V: v, K: k, Salt: salt, Seq: seq, Cas: cas}, nil
}

// NewMutableItem signs v with privateKey (the 64-byte expanded Ed25519
// private key: 32-byte clamped scalar followed by the 32-byte prefix, as
// produced by SHA512 of an Ed25519 seed) and returns the complete, signed
// item.
func NewMutableItem(v interface{}, privateKey [64]byte, publicKey [32]byte, seq int64, cas *int64, salt []byte) (Put, error) {
	bv, err := bencode.Marshal(v)
	if err != nil {
		return Put{}, err
	}
	sig := EdwardsSignSha512(privateKey, publicKey[:], bufferToSign(salt, bv, seq))
	p := Put{V: v, K: &publicKey, Salt: salt, Seq: seq, Cas: cas}
	copy(p.Sig[:], sig)
	return p, nil
}

// Verify checks p's signature against its public key, for a mutable item.
func (p Put) Verify() bool {
	if p.K == nil {
		return true
	}
	bv, err := bencode.Marshal(p.V)
	if err != nil {
		return false
	}
	msg := bufferToSign(p.Salt, bv, p.Seq)
	return ed25519.Verify(p.K[:], msg, p.Sig[:])
}

// EdwardsSignSha512 signs message with the 64-byte expanded private key
// (clamped scalar || prefix), as used by BEP-44's reference test vectors.
// Ordinary ed25519.Sign cannot be used here since its private key is a
// 32-byte seed followed by the public key, not a pre-expanded scalar/prefix
// pair.
func EdwardsSignSha512(privateKey [64]byte, publicKey []byte, message []byte) []byte {
	signature := make([]byte, ed25519.SignatureSize)
	edwardsSignSha512(signature, privateKey, publicKey, message)
	return signature
}

func edwardsSignSha512(signature []byte, h [64]byte, publicKey []byte, message []byte) {
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		panic(err)
	}
	prefix := h[32:]

	mh := sha512.New()
	mh.Write(prefix)
	mh.Write(message)
	messageDigest := make([]byte, 0, sha512.Size)
	messageDigest = mh.Sum(messageDigest)
	r, err := edwards25519.NewScalar().SetUniformBytes(messageDigest)
	if err != nil {
		panic(err)
	}

	R := (&edwards25519.Point{}).ScalarBaseMult(r)

	kh := sha512.New()
	kh.Write(R.Bytes())
	kh.Write(publicKey)
	kh.Write(message)
	hramDigest := make([]byte, 0, sha512.Size)
	hramDigest = kh.Sum(hramDigest)
	k, err := edwards25519.NewScalar().SetUniformBytes(hramDigest)
	if err != nil {
		panic(err)
	}

	S := edwards25519.NewScalar().MultiplyAdd(k, s, r)

	copy(signature[:32], R.Bytes())
	copy(signature[32:], S.Bytes())
}
