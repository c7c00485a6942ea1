package zkabacus

import (
	"golang.org/x/crypto/blake2b"
)

var revocationLockDomain = []byte("zkchannels-revocation-lock")

// HashRevocationSecret computes the RevocationLock that a RevocationSecret
// opens. Matches Open (RevocationLock.Open), which is the inverse check
// performed at disclosure time.
func HashRevocationSecret(secret RevocationSecret) RevocationLock {
	h, err := blake2b.New256(revocationLockDomain)
	if err != nil {
		// blake2b.New256 only errors for an over-long key; our domain
		// separator is fixed and well under the limit.
		panic(err)
	}
	h.Write(secret[:])
	var lock RevocationLock
	copy(lock[:], h.Sum(nil))
	return lock
}

// NewRevocationPair draws a fresh revocation secret and its corresponding
// lock.
func NewRevocationPair() (RevocationLock, RevocationSecret, error) {
	var secret RevocationSecret
	if _, err := randRead(secret[:]); err != nil {
		return RevocationLock{}, RevocationSecret{}, err
	}
	return HashRevocationSecret(secret), secret, nil
}
