package interaction

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// NonceSize is the size of the hello nonce in bytes.
const NonceSize = 16

// proofInfo binds derived proofs to this protocol.
var proofInfo = []byte("opcda-bridge hello v1")

// NewNonce returns a fresh random nonce.
func NewNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, err
	}
	return n, nil
}

// ComputeProof derives the hello proof for user from the shared secret and
// the nonce. The secret never crosses the wire.
func ComputeProof(secret, nonce []byte, user string) []byte {
	info := append(append([]byte{}, proofInfo...), user...)
	r := hkdf.New(sha256.New, secret, nonce, info)
	out := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf only fails past 255 blocks
		panic(err)
	}
	return out
}

// VerifyProof checks a hello proof in constant time.
func VerifyProof(secret, nonce []byte, user string, proof []byte) bool {
	return hmac.Equal(ComputeProof(secret, nonce, user), proof)
}
