// Package simcrypto is a non-cryptographic stand-in for the zkAbacus
// Pointcheval-Sanders backend: the blind-signature scheme and its
// accompanying zero-knowledge proofs are treated as opaque operations with
// stated contracts throughout the zkabacus, establish, pay and closer
// packages (that proof system's internals are explicitly out of scope).
// simcrypto gives cmd/zkchannels-customer and cmd/zkchannels-merchantd a
// concrete backend to run against by authenticating every proof,
// signature and token with HMAC-SHA256 under a key shared between the two
// parties out of band, in place of a real blind signature keypair.
//
// This is not zero-knowledge and not unforgeable against a party that
// doesn't hold the shared key: a merchant running this backend could
// forge a customer's proofs, and vice versa. It exists only so the
// reference binaries are demonstrably wired end to end; production
// deployments must replace it with a real Pointcheval-Sanders
// implementation behind the same interfaces.
package simcrypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// SharedKey stands in for the merchant's zkAbacus keypair: both the
// customer and merchant processes must be configured with the same key,
// distributed out of band, for their proofs and signatures to verify
// against one another.
type SharedKey [32]byte

// GenerateSharedKey draws a fresh random key.
func GenerateSharedKey() (SharedKey, error) {
	var k SharedKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("simcrypto: generating shared key: %w", err)
	}
	return k, nil
}

// LoadSharedKey reads a hex-encoded key previously written by Save. If the
// file does not exist, LoadSharedKey generates a fresh key and saves it to
// path, so a lone customer or merchant run against a fresh data directory
// can start up without a manual provisioning step; copying the resulting
// file to the other party is still required before a real session can
// complete.
func LoadSharedKey(path string) (SharedKey, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		k, genErr := GenerateSharedKey()
		if genErr != nil {
			return k, genErr
		}
		return k, k.Save(path)
	}
	if err != nil {
		return SharedKey{}, fmt.Errorf("simcrypto: reading %s: %w", path, err)
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil || len(decoded) != len(SharedKey{}) {
		return SharedKey{}, fmt.Errorf("simcrypto: %s does not contain a valid shared key", path)
	}
	var k SharedKey
	copy(k[:], decoded)
	return k, nil
}

// Save writes the key to path, hex-encoded, creating parent directories as
// needed and restricting the file to the owner.
func (k SharedKey) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("simcrypto: creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(k[:])), 0600); err != nil {
		return fmt.Errorf("simcrypto: writing %s: %w", path, err)
	}
	return nil
}

// mac computes a length-prefixed HMAC-SHA256 tag over parts, so that e.g.
// ("ab", "c") and ("a", "bc") never collide.
func mac(key SharedKey, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key[:])
	var length [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(length[:], uint64(len(p)))
		h.Write(length[:])
		h.Write(p)
	}
	return h.Sum(nil)
}

// verify reports whether tag is the HMAC of parts under key.
func verify(tag []byte, key SharedKey, parts ...[]byte) bool {
	return hmac.Equal(tag, mac(key, parts...))
}

func u64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b
}

func i64(n int64) []byte { return u64(uint64(n)) }

// PublicTag derives a non-secret identity tag for key, suitable for
// publishing over the wire (e.g. as the "zkAbacus public key" field of a
// Parameters exchange) without revealing key itself. A real
// Pointcheval-Sanders backend would publish an actual public key here;
// this is the symmetric-key analogue used for escrow.NewKeyHash binding.
func PublicTag(key SharedKey) [32]byte {
	var out [32]byte
	copy(out[:], mac(key, []byte("public-tag")))
	return out
}
