package closer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// closingDocument is the off-chain JSON artifact spec.md names Closing,
// written to <hex(channel_id)>.close.json when the customer posts a
// unilateral close without a live chain client.
type closingDocument struct {
	ChannelId        string `json:"channel_id"`
	CustomerBalance  uint64 `json:"customer_balance"`
	MerchantBalance  uint64 `json:"merchant_balance"`
	ClosingSignature []byte `json:"closing_signature"`
	RevocationLock   string `json:"revocation_lock"`
}

// RunCustomerUnilateralClose produces a close message for label. If
// onChain is true it invokes custClose through client directly; otherwise
// it serializes the close as JSON to dir for the operator to submit
// manually. Either way the channel's final balances are recorded
// immediately against the posted close state, ahead of confirmation — the
// chain-watching loop reconciles this optimistic record against what
// actually lands on chain (spec.md §4.H's dispute row).
func RunCustomerUnilateralClose(ctx context.Context, db *store.CustomerStore, client escrow.Client, label zkabacus.ChannelName, onChain bool, dir string) error {
	record, err := db.Get(ctx, label)
	if err != nil {
		return fmt.Errorf("closer: loading channel %v: %w", label, err)
	}

	closing, err := db.WithCloseableChannel(ctx, label, func(c zkabacus.Closeable) (zkabacus.ClosingMessage, zkabacus.PendingClose, error) {
		return c.Close(rand.Reader)
	})
	if err != nil {
		if errors.Is(err, store.ErrUncloseableState) {
			return ErrUncloseableState
		}
		return fmt.Errorf("closer: producing close message: %w", err)
	}

	if onChain {
		if record.ContractId == nil {
			return fmt.Errorf("closer: channel %v has no on-chain contract", label)
		}
		status, level, err := client.CustomerClose(ctx, *record.ContractId, closing)
		if err != nil {
			return fmt.Errorf("closer: posting unilateral close: %w", err)
		}
		if status != escrow.OperationConfirmed {
			return fmt.Errorf("closer: ledger rejected unilateral close for channel %v", label)
		}
		if err := db.SetContractLevel(ctx, label, level); err != nil {
			log.Errorf("Failed to record contract level for channel %v: %v", label, err)
		}
	} else if err := writeClosingDocument(dir, closing); err != nil {
		return fmt.Errorf("closer: writing close document: %w", err)
	}

	return db.RecordFinalBalances(ctx, label, closing.CloseState.CustomerBalance, closing.CloseState.MerchantBalance)
}

func writeClosingDocument(dir string, closing zkabacus.ClosingMessage) error {
	doc := closingDocument{
		ChannelId:        closing.CloseState.ChannelId.String(),
		CustomerBalance:  uint64(closing.CloseState.CustomerBalance),
		MerchantBalance:  uint64(closing.CloseState.MerchantBalance),
		ClosingSignature: closing.Signature.Bytes,
		RevocationLock:   closing.CloseState.RevocationLock.String(),
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.close.json", hex.EncodeToString(closing.CloseState.ChannelId[:])))
	return os.WriteFile(path, b, 0o600)
}
