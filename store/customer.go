package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
	"github.com/boltlabs-inc/zkchannels/zkchanlog"
)

var log = zkchanlog.NewSubsystemLogger("STOR")

// SetLogLevel sets this subsystem's logging level, for main to wire up
// from its --loglevel configuration.
func SetLogLevel(level string) { zkchanlog.SetLevel(log, level) }

// ChannelRecord is the customer's single persisted row for a channel: one
// row per label, storing the address used to reach the merchant, the
// tagged state blob, and the on-chain bookkeeping fields that accumulate as
// Establish and Close progress.
type ChannelRecord struct {
	Label                  zkabacus.ChannelName
	Address                string
	State                  zkabacus.State
	ContractId             *escrow.ContractId
	ContractLevel          *uint64
	MerchantTezosPublicKey escrow.TezosPublicKey
	FinalCustomerBalance   *zkabacus.CustomerBalance
	FinalMerchantBalance   *zkabacus.MerchantBalance
}

// CustomerStore is the customer-side persistent store described in
// spec.md §4.C, implemented over database/sql. The default driver is
// modernc.org/sqlite (pure Go, no cgo), matching the reference
// implementation's SQLite customer store.
type CustomerStore struct {
	db *sql.DB
}

// OpenCustomerStore opens (and, if necessary, creates) the customer store
// at the given modernc.org/sqlite data source name, running schema
// migrations before returning.
func OpenCustomerStore(ctx context.Context, dataSourceName string) (*CustomerStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, wrapStoreErr("open", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers
	s := &CustomerStore{db: db}
	if err := runCustomerMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the store's underlying connection.
func (s *CustomerStore) Close() error { return s.db.Close() }

// NewChannel inserts a fresh Inactive channel under label, bound to the
// given merchant address. If label is already in use, NewChannel returns
// ErrChannelExists and the caller's inactive value is left untouched — Go's
// pass-by-value semantics give this "returned intact on failure" property
// for free, unlike the Rust original which must hand the value back
// explicitly across the error boundary.
func (s *CustomerStore) NewChannel(ctx context.Context, label zkabacus.ChannelName, address string, inactive zkabacus.Inactive) error {
	blob, err := zkabacus.EncodeBytes(inactive)
	if err != nil {
		return fmt.Errorf("store: encoding inactive state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return wrapStoreErr("new_channel/begin", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM channels WHERE label = ?`, string(label)).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		// fresh label, proceed
	case err != nil:
		return wrapStoreErr("new_channel/check", err)
	default:
		return ErrChannelExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channels (label, address, state_name, state_blob)
		VALUES (?, ?, ?, ?)`,
		string(label), address, inactive.StateName().String(), blob,
	)
	if err != nil {
		return wrapStoreErr("new_channel/insert", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreErr("new_channel/commit", err)
	}

	log.Infof("Inserted new channel %v for channel id %v", label, inactive.ChannelId())
	return nil
}

// Get returns the full persisted record for label.
func (s *CustomerStore) Get(ctx context.Context, label zkabacus.ChannelName) (*ChannelRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, state_blob, contract_id, contract_level,
		       merchant_tezos_public_key, final_customer_balance, final_merchant_balance
		FROM channels WHERE label = ?`, string(label))
	return scanChannelRecord(label, row)
}

func scanChannelRecord(label zkabacus.ChannelName, row *sql.Row) (*ChannelRecord, error) {
	var (
		address                string
		stateBlob              []byte
		contractId             sql.NullString
		contractLevel          sql.NullInt64
		merchantTezosPublicKey []byte
		finalCustomer          sql.NullInt64
		finalMerchant          sql.NullInt64
	)
	if err := row.Scan(&address, &stateBlob, &contractId, &contractLevel, &merchantTezosPublicKey, &finalCustomer, &finalMerchant); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoSuchChannel
		}
		return nil, wrapStoreErr("get/scan", err)
	}

	state, err := zkabacus.DecodeBytes(stateBlob)
	if err != nil {
		return nil, fmt.Errorf("store: decoding channel state: %w", err)
	}

	record := &ChannelRecord{
		Label:                  label,
		Address:                address,
		State:                  state,
		MerchantTezosPublicKey: merchantTezosPublicKey,
	}
	if contractId.Valid {
		record.ContractId = &escrow.ContractId{Address: contractId.String}
	}
	if contractLevel.Valid {
		lvl := uint64(contractLevel.Int64)
		record.ContractLevel = &lvl
	}
	if finalCustomer.Valid {
		b := zkabacus.CustomerBalance(finalCustomer.Int64)
		record.FinalCustomerBalance = &b
	}
	if finalMerchant.Valid {
		b := zkabacus.MerchantBalance(finalMerchant.Int64)
		record.FinalMerchantBalance = &b
	}
	return record, nil
}

// WithChannelState runs f within a serializable transaction: it reads the
// current tagged state, lets f compute a replacement and an arbitrary
// output, writes the replacement, and returns the output. If f returns an
// error the transaction is rolled back and the stored state is unchanged.
func (s *CustomerStore) WithChannelState(ctx context.Context, label zkabacus.ChannelName, f func(zkabacus.State) (zkabacus.State, interface{}, error)) (interface{}, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, wrapStoreErr("with_channel_state/begin", err)
	}
	defer tx.Rollback()

	var stateBlob []byte
	err = tx.QueryRowContext(ctx, `SELECT state_blob FROM channels WHERE label = ?`, string(label)).Scan(&stateBlob)
	if err == sql.ErrNoRows {
		return nil, ErrNoSuchChannel
	} else if err != nil {
		return nil, wrapStoreErr("with_channel_state/read", err)
	}

	current, err := zkabacus.DecodeBytes(stateBlob)
	if err != nil {
		return nil, fmt.Errorf("store: decoding channel state: %w", err)
	}

	newState, output, err := f(current)
	if err != nil {
		return nil, err
	}

	newBlob, err := zkabacus.EncodeBytes(newState)
	if err != nil {
		return nil, fmt.Errorf("store: encoding channel state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE channels SET state_name = ?, state_blob = ? WHERE label = ?`,
		newState.StateName().String(), newBlob, string(label))
	if err != nil {
		return nil, wrapStoreErr("with_channel_state/write", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStoreErr("with_channel_state/commit", err)
	}

	return output, nil
}

// WithCloseableChannel runs f with the channel's current state narrowed to
// Closeable, writing the returned PendingClose state and returning the
// ClosingMessage. Fails with ErrUncloseableState if the current state is
// Dispute or Closed.
func (s *CustomerStore) WithCloseableChannel(ctx context.Context, label zkabacus.ChannelName, f func(zkabacus.Closeable) (zkabacus.ClosingMessage, zkabacus.PendingClose, error)) (zkabacus.ClosingMessage, error) {
	var closing zkabacus.ClosingMessage
	_, err := s.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		closeable, ok := current.(zkabacus.Closeable)
		if !ok {
			return nil, nil, ErrUncloseableState
		}
		msg, pending, err := f(closeable)
		if err != nil {
			return nil, nil, err
		}
		closing = msg
		return pending, nil, nil
	})
	return closing, err
}

// RelabelChannel renames a channel's label, used to resolve --label
// collisions by appending a numeric suffix.
func (s *CustomerStore) RelabelChannel(ctx context.Context, oldLabel, newLabel zkabacus.ChannelName) error {
	res, err := s.db.ExecContext(ctx, `UPDATE channels SET label = ? WHERE label = ?`, string(newLabel), string(oldLabel))
	if err != nil {
		return wrapStoreErr("relabel", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("relabel/rows_affected", err)
	}
	if n == 0 {
		return ErrNoSuchChannel
	}
	return nil
}

// ReaddressChannel updates the merchant address a channel reaches.
func (s *CustomerStore) ReaddressChannel(ctx context.Context, label zkabacus.ChannelName, address string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE channels SET address = ? WHERE label = ?`, address, string(label))
	if err != nil {
		return wrapStoreErr("readdress", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("readdress/rows_affected", err)
	}
	if n == 0 {
		return ErrNoSuchChannel
	}
	return nil
}

// SetContractDetails records the on-chain contract id, level, and
// merchant's Tezos public key once Establish originates the contract.
func (s *CustomerStore) SetContractDetails(ctx context.Context, label zkabacus.ChannelName, contractId escrow.ContractId, level uint64, merchantTezosPublicKey escrow.TezosPublicKey) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE channels SET contract_id = ?, contract_level = ?, merchant_tezos_public_key = ?
		WHERE label = ?`,
		contractId.Address, level, []byte(merchantTezosPublicKey), string(label),
	)
	if err != nil {
		return wrapStoreErr("set_contract_details", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("set_contract_details/rows_affected", err)
	}
	if n == 0 {
		return ErrNoSuchChannel
	}
	return nil
}

// SetContractLevel updates the last-observed chain level for a channel's
// contract, used by the chain-watching control loop to track confirmation
// depth progress.
func (s *CustomerStore) SetContractLevel(ctx context.Context, label zkabacus.ChannelName, level uint64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET contract_level = ? WHERE label = ?`, level, string(label))
	return wrapStoreErr("set_contract_level", err)
}

// RecordFinalBalances records the final (customer_balance, merchant_balance)
// once a close has confirmed, used by the finalization helpers in spec.md
// §4.H.
func (s *CustomerStore) RecordFinalBalances(ctx context.Context, label zkabacus.ChannelName, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels SET final_customer_balance = ?, final_merchant_balance = ?
		WHERE label = ?`, uint64(customerBalance), uint64(merchantBalance), string(label))
	return wrapStoreErr("record_final_balances", err)
}

// ListLabels returns every channel label known locally, used by the
// chain-watching loop and the `channels` CLI command.
func (s *CustomerStore) ListLabels(ctx context.Context) ([]zkabacus.ChannelName, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label FROM channels ORDER BY label`)
	if err != nil {
		return nil, wrapStoreErr("list_labels", err)
	}
	defer rows.Close()

	var labels []zkabacus.ChannelName
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, wrapStoreErr("list_labels/scan", err)
		}
		labels = append(labels, zkabacus.ChannelName(l))
	}
	return labels, rows.Err()
}
