package zkabacus

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

// TLV type numbers for the fields that make up an encoded State. Grouped by
// which variants use them; a decoder tolerates any subset being present
// because tlv.Stream skips unknown/absent types.
const (
	typeStateName        tlv.Type = 0
	typeChannelId        tlv.Type = 1
	typeCustomerBalance  tlv.Type = 2
	typeMerchantBalance  tlv.Type = 3
	typeClosingSignature tlv.Type = 4
	typeRevocationLock   tlv.Type = 5
	typePayToken         tlv.Type = 6
	typeNewCustomerBal   tlv.Type = 7
	typeNewMerchantBal   tlv.Type = 8
	typeNonce            tlv.Type = 9
	typePayProof         tlv.Type = 10
	typePendingSecret    tlv.Type = 11
	typeBlindingFactor   tlv.Type = 12
	typeDisclosedLock    tlv.Type = 13
	typeDisclosedSecret  tlv.Type = 14
	typeOwnSecret        tlv.Type = 15
)

// Encode serializes a State into a length-prefixed TLV stream suitable for a
// round trip back through Decode. Every variant encodes a leading
// StateName record so the decoder knows which variant to reconstruct.
func Encode(w io.Writer, s State) error {
	name := uint8(s.StateName())
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeStateName, &name),
	}

	switch v := s.(type) {
	case Inactive:
		records = append(records, closeCapableRecords(v.closeCapable)...)
	case Originated:
		records = append(records, closeCapableRecords(v.closeCapable)...)
	case CustomerFunded:
		records = append(records, closeCapableRecords(v.closeCapable)...)
	case MerchantFunded:
		records = append(records, closeCapableRecords(v.closeCapable)...)
	case Ready:
		records = append(records, closeCapableRecords(v.closeCapable)...)
		records = append(records, tlv.MakeDynamicRecord(
			typePayToken, &v.payToken.Bytes, func() uint64 {
				return uint64(len(v.payToken.Bytes))
			}, tlv.EVarBytes, tlv.DVarBytes,
		))
		records = append(records, tlv.MakePrimitiveRecord(typeOwnSecret, &v.revocationSecret))
	case Started:
		records = append(records, closeCapableRecords(v.previous.closeCapable)...)
		newCustomer := uint64(v.newCustomerBalance)
		newMerchant := uint64(v.newMerchantBalance)
		nonce := v.nonce
		records = append(records,
			tlv.MakePrimitiveRecord(typeNewCustomerBal, &newCustomer),
			tlv.MakePrimitiveRecord(typeNewMerchantBal, &newMerchant),
			tlv.MakePrimitiveRecord(typeNonce, &nonce),
			tlv.MakeDynamicRecord(typePayProof, &v.proof.Bytes, func() uint64 {
				return uint64(len(v.proof.Bytes))
			}, tlv.EVarBytes, tlv.DVarBytes),
			tlv.MakePrimitiveRecord(typeOwnSecret, &v.previous.revocationSecret),
		)
	case Locked:
		records = append(records, closeCapableRecords(v.closeCapable)...)
		records = append(records,
			tlv.MakePrimitiveRecord(typePendingSecret, &v.pendingRevocationSecret),
			tlv.MakePrimitiveRecord(typeBlindingFactor, &v.blindingFactor),
			tlv.MakePrimitiveRecord(typeDisclosedLock, &v.disclosedLock),
			tlv.MakePrimitiveRecord(typeDisclosedSecret, &v.disclosedSecret),
		)
	case PendingClose:
		records = append(records, closingMessageRecords(v.closing)...)
	case PendingCustomerClaim:
		records = append(records, closingMessageRecords(v.closing)...)
	case Dispute:
		records = append(records, closingMessageRecords(v.closing)...)
	case Closed:
		records = append(records, closingMessageRecords(v.closing)...)
	default:
		return fmt.Errorf("zkabacus: unknown state variant %T", s)
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return fmt.Errorf("zkabacus: building tlv stream: %w", err)
	}
	return stream.Encode(w)
}

func closeCapableRecords(c closeCapable) []tlv.Record {
	customer := uint64(c.customerBalance)
	merchant := uint64(c.merchantBalance)
	channelId := c.channelId
	revocationLock := c.revocationLock
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeChannelId, &channelId),
		tlv.MakePrimitiveRecord(typeCustomerBalance, &customer),
		tlv.MakePrimitiveRecord(typeMerchantBalance, &merchant),
		tlv.MakePrimitiveRecord(typeRevocationLock, &revocationLock),
		tlv.MakeDynamicRecord(typeClosingSignature, &c.closingSignature.Bytes, func() uint64 {
			return uint64(len(c.closingSignature.Bytes))
		}, tlv.EVarBytes, tlv.DVarBytes),
	}
}

func closingMessageRecords(m ClosingMessage) []tlv.Record {
	channelId := m.CloseState.ChannelId
	customer := uint64(m.CloseState.CustomerBalance)
	merchant := uint64(m.CloseState.MerchantBalance)
	lock := m.CloseState.RevocationLock
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeChannelId, &channelId),
		tlv.MakePrimitiveRecord(typeCustomerBalance, &customer),
		tlv.MakePrimitiveRecord(typeMerchantBalance, &merchant),
		tlv.MakePrimitiveRecord(typeRevocationLock, &lock),
		tlv.MakeDynamicRecord(typeClosingSignature, &m.Signature.Bytes, func() uint64 {
			return uint64(len(m.Signature.Bytes))
		}, tlv.EVarBytes, tlv.DVarBytes),
	}
}

// Decode reconstructs a State from a stream previously produced by Encode.
func Decode(r io.Reader) (State, error) {
	var (
		name                                    uint8
		channelId                               ChannelId
		customerBalance, merchantBalance        uint64
		revocationLock                          RevocationLock
		closingSignature, payToken, proof       []byte
		newCustomerBalance, newMerchantBalance   uint64
		nonce                                   Nonce
		pendingSecret                           RevocationSecret
		blindingFactor                          BlindingFactor
		disclosedLock                           RevocationLock
		disclosedSecret                         RevocationSecret
		ownSecret                               RevocationSecret
	)

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeStateName, &name),
		tlv.MakePrimitiveRecord(typeChannelId, &channelId),
		tlv.MakePrimitiveRecord(typeCustomerBalance, &customerBalance),
		tlv.MakePrimitiveRecord(typeMerchantBalance, &merchantBalance),
		tlv.MakePrimitiveRecord(typeRevocationLock, &revocationLock),
		tlv.MakeDynamicRecord(typeClosingSignature, &closingSignature, func() uint64 {
			return uint64(len(closingSignature))
		}, tlv.EVarBytes, tlv.DVarBytes),
		tlv.MakeDynamicRecord(typePayToken, &payToken, func() uint64 {
			return uint64(len(payToken))
		}, tlv.EVarBytes, tlv.DVarBytes),
		tlv.MakePrimitiveRecord(typeNewCustomerBal, &newCustomerBalance),
		tlv.MakePrimitiveRecord(typeNewMerchantBal, &newMerchantBalance),
		tlv.MakePrimitiveRecord(typeNonce, &nonce),
		tlv.MakeDynamicRecord(typePayProof, &proof, func() uint64 {
			return uint64(len(proof))
		}, tlv.EVarBytes, tlv.DVarBytes),
		tlv.MakePrimitiveRecord(typePendingSecret, &pendingSecret),
		tlv.MakePrimitiveRecord(typeBlindingFactor, &blindingFactor),
		tlv.MakePrimitiveRecord(typeDisclosedLock, &disclosedLock),
		tlv.MakePrimitiveRecord(typeDisclosedSecret, &disclosedSecret),
		tlv.MakePrimitiveRecord(typeOwnSecret, &ownSecret),
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, fmt.Errorf("zkabacus: building tlv stream: %w", err)
	}
	if err := stream.Decode(r); err != nil {
		return nil, fmt.Errorf("zkabacus: decoding state: %w", err)
	}

	base := closeCapable{
		channelId:        channelId,
		customerBalance:  CustomerBalance(customerBalance),
		merchantBalance:  MerchantBalance(merchantBalance),
		closingSignature: ClosingSignature{Bytes: closingSignature},
		revocationLock:   revocationLock,
	}

	switch StateName(name) {
	case StateInactive:
		return Inactive{base}, nil
	case StateOriginated:
		return Originated{base}, nil
	case StateCustomerFunded:
		return CustomerFunded{base}, nil
	case StateMerchantFunded:
		return MerchantFunded{base}, nil
	case StateReady:
		return Ready{closeCapable: base, payToken: PayToken{Bytes: payToken}, revocationSecret: ownSecret}, nil
	case StateStarted:
		return Started{
			previous:           Ready{closeCapable: base, revocationSecret: ownSecret},
			newCustomerBalance: CustomerBalance(newCustomerBalance),
			newMerchantBalance: MerchantBalance(newMerchantBalance),
			nonce:              nonce,
			proof:              PayProof{Bytes: proof},
		}, nil
	case StateLocked:
		return Locked{
			closeCapable:            base,
			pendingRevocationSecret: pendingSecret,
			blindingFactor:          blindingFactor,
			disclosedLock:           disclosedLock,
			disclosedSecret:         disclosedSecret,
		}, nil
	case StatePendingClose, StatePendingCustomerClaim, StateDispute, StateClosed:
		msg := ClosingMessage{
			CloseState: CloseState{
				ChannelId:       channelId,
				CustomerBalance: CustomerBalance(customerBalance),
				MerchantBalance: MerchantBalance(merchantBalance),
				RevocationLock:  revocationLock,
			},
			Signature: ClosingSignature{Bytes: closingSignature},
		}
		switch StateName(name) {
		case StatePendingClose:
			return PendingClose{channelId: channelId, closing: msg}, nil
		case StatePendingCustomerClaim:
			return PendingCustomerClaim{channelId: channelId, closing: msg}, nil
		case StateDispute:
			return Dispute{channelId: channelId, closing: msg}, nil
		default:
			return Closed{channelId: channelId, closing: msg}, nil
		}
	default:
		return nil, fmt.Errorf("zkabacus: unknown encoded state name %d", name)
	}
}

// EncodeBytes is a convenience wrapper around Encode for callers that want
// a []byte rather than a Writer, such as the store's row serialization.
func EncodeBytes(s State) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBytes is the inverse of EncodeBytes.
func DecodeBytes(b []byte) (State, error) {
	return Decode(bytes.NewReader(b))
}
