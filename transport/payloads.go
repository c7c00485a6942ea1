package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// writeBytes writes a 4-byte big-endian length prefix followed by b.
func writeBytes(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxMessagePayload {
		return nil, fmt.Errorf("transport: declared field length %d exceeds max payload", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeInt64(w io.Writer, v int64) error { return writeUint64(w, uint64(v)) }
func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readFixed(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	return err
}

// EstablishRequest is step 1 of the Establish protocol: the customer's
// channel-funding proposal.
type EstablishRequest struct {
	CustomerRandomness zkabacus.CustomerRandomness
	CustomerBalance    zkabacus.CustomerBalance
	MerchantBalance    zkabacus.MerchantBalance
	Note               string
}

func (*EstablishRequest) MsgType() MessageType { return MsgEstablishRequest }

func (m *EstablishRequest) Encode(w io.Writer) error {
	if err := writeFixed(w, m.CustomerRandomness[:]); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(m.CustomerBalance)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(m.MerchantBalance)); err != nil {
		return err
	}
	return writeBytes(w, []byte(m.Note))
}

func (m *EstablishRequest) Decode(r io.Reader) error {
	if err := readFixed(r, m.CustomerRandomness[:]); err != nil {
		return err
	}
	cb, err := readUint64(r)
	if err != nil {
		return err
	}
	m.CustomerBalance = zkabacus.CustomerBalance(cb)
	mb, err := readUint64(r)
	if err != nil {
		return err
	}
	m.MerchantBalance = zkabacus.MerchantBalance(mb)
	note, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Note = string(note)
	return nil
}

// MerchantRandomnessMsg carries the merchant's randomness contribution to
// ChannelId derivation.
type MerchantRandomnessMsg struct {
	MerchantRandomness zkabacus.MerchantRandomness
}

func (*MerchantRandomnessMsg) MsgType() MessageType { return MsgMerchantRandomness }
func (m *MerchantRandomnessMsg) Encode(w io.Writer) error {
	return writeFixed(w, m.MerchantRandomness[:])
}
func (m *MerchantRandomnessMsg) Decode(r io.Reader) error {
	return readFixed(r, m.MerchantRandomness[:])
}

// EstablishProofMsg carries the zkAbacus establish proof.
type EstablishProofMsg struct {
	Proof zkabacus.EstablishProof
}

func (*EstablishProofMsg) MsgType() MessageType { return MsgEstablishProof }
func (m *EstablishProofMsg) Encode(w io.Writer) error { return writeBytes(w, m.Proof.Bytes) }
func (m *EstablishProofMsg) Decode(r io.Reader) error {
	b, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Proof = zkabacus.EstablishProof{Bytes: b}
	return nil
}

// ClosingSignatureMsg carries a ClosingSignature, reused for both the
// initial Establish signature and the fresh per-payment signature in Pay.
type ClosingSignatureMsg struct {
	Signature zkabacus.ClosingSignature
}

func (*ClosingSignatureMsg) MsgType() MessageType { return MsgClosingSignature }
func (m *ClosingSignatureMsg) Encode(w io.Writer) error { return writeBytes(w, m.Signature.Bytes) }
func (m *ClosingSignatureMsg) Decode(r io.Reader) error {
	b, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Signature = zkabacus.ClosingSignature{Bytes: b}
	return nil
}

// PayTokenMsg carries a blinded PayToken, reused for Establish activation
// and for each Pay round's new token.
type PayTokenMsg struct {
	Token zkabacus.PayToken
}

func (*PayTokenMsg) MsgType() MessageType { return MsgPayToken }
func (m *PayTokenMsg) Encode(w io.Writer) error { return writeBytes(w, m.Token.Bytes) }
func (m *PayTokenMsg) Decode(r io.Reader) error {
	b, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Token = zkabacus.PayToken{Bytes: b}
	return nil
}

// PayRequest is step 1 of the Pay protocol.
type PayRequest struct {
	Amount int64
	Note   string
}

func (*PayRequest) MsgType() MessageType { return MsgPayRequest }
func (m *PayRequest) Encode(w io.Writer) error {
	if err := writeInt64(w, m.Amount); err != nil {
		return err
	}
	return writeBytes(w, []byte(m.Note))
}
func (m *PayRequest) Decode(r io.Reader) error {
	amt, err := readInt64(r)
	if err != nil {
		return err
	}
	m.Amount = amt
	note, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Note = string(note)
	return nil
}

// StartMessageMsg carries the nonce and pay proof that starts a payment.
type StartMessageMsg struct {
	Nonce zkabacus.Nonce
	Proof zkabacus.PayProof
}

func (*StartMessageMsg) MsgType() MessageType { return MsgStartMessage }
func (m *StartMessageMsg) Encode(w io.Writer) error {
	if err := writeFixed(w, m.Nonce[:]); err != nil {
		return err
	}
	return writeBytes(w, m.Proof.Bytes)
}
func (m *StartMessageMsg) Decode(r io.Reader) error {
	if err := readFixed(r, m.Nonce[:]); err != nil {
		return err
	}
	b, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Proof = zkabacus.PayProof{Bytes: b}
	return nil
}

// LockMessageMsg discloses the previous revocation secret and commits to a
// new revocation lock via its blinding factor.
type LockMessageMsg struct {
	RevocationLock   zkabacus.RevocationLock
	RevocationSecret zkabacus.RevocationSecret
	BlindingFactor   zkabacus.BlindingFactor
}

func (*LockMessageMsg) MsgType() MessageType { return MsgLockMessage }
func (m *LockMessageMsg) Encode(w io.Writer) error {
	if err := writeFixed(w, m.RevocationLock[:]); err != nil {
		return err
	}
	if err := writeFixed(w, m.RevocationSecret[:]); err != nil {
		return err
	}
	return writeFixed(w, m.BlindingFactor[:])
}
func (m *LockMessageMsg) Decode(r io.Reader) error {
	if err := readFixed(r, m.RevocationLock[:]); err != nil {
		return err
	}
	if err := readFixed(r, m.RevocationSecret[:]); err != nil {
		return err
	}
	return readFixed(r, m.BlindingFactor[:])
}

// CloseRequest is the customer's mutual-close proposal.
type CloseRequest struct {
	Signature  zkabacus.ClosingSignature
	CloseState zkabacus.CloseState
}

func (*CloseRequest) MsgType() MessageType { return MsgCloseRequest }
func (m *CloseRequest) Encode(w io.Writer) error {
	if err := writeBytes(w, m.Signature.Bytes); err != nil {
		return err
	}
	if err := writeFixed(w, m.CloseState.ChannelId[:]); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(m.CloseState.CustomerBalance)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(m.CloseState.MerchantBalance)); err != nil {
		return err
	}
	return writeFixed(w, m.CloseState.RevocationLock[:])
}
func (m *CloseRequest) Decode(r io.Reader) error {
	b, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Signature = zkabacus.ClosingSignature{Bytes: b}
	if err := readFixed(r, m.CloseState.ChannelId[:]); err != nil {
		return err
	}
	cb, err := readUint64(r)
	if err != nil {
		return err
	}
	m.CloseState.CustomerBalance = zkabacus.CustomerBalance(cb)
	mb, err := readUint64(r)
	if err != nil {
		return err
	}
	m.CloseState.MerchantBalance = zkabacus.MerchantBalance(mb)
	return readFixed(r, m.CloseState.RevocationLock[:])
}

// MutualCloseAuthMsg carries the merchant's on-chain authorization
// signature for a mutual close.
type MutualCloseAuthMsg struct {
	Signature escrow.AuthorizationSignature
}

func (*MutualCloseAuthMsg) MsgType() MessageType { return MsgMutualCloseAuth }
func (m *MutualCloseAuthMsg) Encode(w io.Writer) error { return writeBytes(w, m.Signature.Bytes) }
func (m *MutualCloseAuthMsg) Decode(r io.Reader) error {
	b, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Signature = escrow.AuthorizationSignature{Bytes: b}
	return nil
}

// ParametersMsg carries the merchant's public key material, delivered
// during the Parameters exchange (branch 0) so a customer can
// independently verify it before establishing a channel.
type ParametersMsg struct {
	ZkAbacusPublicKey []byte
	TezosPublicKey    escrow.TezosPublicKey
	KeyHash           escrow.KeyHash
}

func (*ParametersMsg) MsgType() MessageType { return MsgParameters }
func (m *ParametersMsg) Encode(w io.Writer) error {
	if err := writeBytes(w, m.ZkAbacusPublicKey); err != nil {
		return err
	}
	if err := writeBytes(w, m.TezosPublicKey); err != nil {
		return err
	}
	return writeFixed(w, m.KeyHash[:])
}
func (m *ParametersMsg) Decode(r io.Reader) error {
	pk, err := readBytes(r)
	if err != nil {
		return err
	}
	m.ZkAbacusPublicKey = pk
	tpk, err := readBytes(r)
	if err != nil {
		return err
	}
	m.TezosPublicKey = tpk
	return readFixed(r, m.KeyHash[:])
}
