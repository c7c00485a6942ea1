package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// ChannelStatus is the merchant's bookkeeping status for a channel,
// enumerated per ChannelId (spec.md §3, merchant-side storage).
type ChannelStatus string

const (
	ChannelStatusActive       ChannelStatus = "active"
	ChannelStatusPendingClose ChannelStatus = "pending_close"
	ChannelStatusClosed       ChannelStatus = "closed"
)

// MerchantStore is the merchant-side persistent store: a nonce set, a
// revocation lock table, and a channel status table, implemented over
// Postgres via jackc/pgx.
type MerchantStore struct {
	db *sql.DB
}

// OpenMerchantStore opens the merchant store at the given Postgres DSN and
// runs its schema migrations through golang-migrate.
func OpenMerchantStore(ctx context.Context, dataSourceName string) (*MerchantStore, error) {
	db, err := sql.Open("pgx", dataSourceName)
	if err != nil {
		return nil, wrapStoreErr("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrapStoreErr("ping", err)
	}
	if err := runMerchantMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &MerchantStore{db: db}, nil
}

func runMerchantMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return wrapStoreErr("migrate/driver", err)
	}
	src, err := iofs.New(migrationFS, "migrations/merchant")
	if err != nil {
		return wrapStoreErr("migrate/source", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return wrapStoreErr("migrate/new", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return wrapStoreErr("migrate/up", err)
	}
	return nil
}

// Close releases the store's underlying connection.
func (s *MerchantStore) Close() error { return s.db.Close() }

// InsertNonce atomically inserts a nonce, returning true if it was added
// (fresh) and false if it already existed (a replay).
func (s *MerchantStore) InsertNonce(ctx context.Context, nonce zkabacus.Nonce) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO nonces (data) VALUES ($1) ON CONFLICT (data) DO NOTHING`, nonce[:])
	if err != nil {
		return false, wrapStoreErr("insert_nonce", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapStoreErr("insert_nonce/rows_affected", err)
	}
	return n > 0, nil
}

// RevocationPair is a previously-stored (lock, secret?) pair returned by
// InsertRevocation.
type RevocationPair struct {
	Lock   zkabacus.RevocationLock
	Secret *zkabacus.RevocationSecret
}

// InsertRevocation inserts a revocation lock and optional secret within a
// transaction, returning every (lock, secret?) pair that existed for that
// lock prior to this insert. An empty result means the lock is fresh. If a
// prior entry is returned with no secret and this call supplies one, or
// vice versa, the merchant now holds both halves and has dispute evidence
// (spec.md invariant 6).
func (s *MerchantStore) InsertRevocation(ctx context.Context, lock zkabacus.RevocationLock, secret *zkabacus.RevocationSecret) ([]RevocationPair, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStoreErr("insert_revocation/begin", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT lock, secret FROM revocations WHERE lock = $1`, lock[:])
	if err != nil {
		return nil, wrapStoreErr("insert_revocation/select", err)
	}
	var existing []RevocationPair
	for rows.Next() {
		var lockBytes []byte
		var secretBytes []byte
		if err := rows.Scan(&lockBytes, &secretBytes); err != nil {
			rows.Close()
			return nil, wrapStoreErr("insert_revocation/scan", err)
		}
		var pair RevocationPair
		copy(pair.Lock[:], lockBytes)
		if secretBytes != nil {
			var sec zkabacus.RevocationSecret
			copy(sec[:], secretBytes)
			pair.Secret = &sec
		}
		existing = append(existing, pair)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapStoreErr("insert_revocation/rows", err)
	}
	rows.Close()

	var secretBytes []byte
	if secret != nil {
		secretBytes = secret[:]
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO revocations (lock, secret) VALUES ($1, $2)`, lock[:], secretBytes); err != nil {
		return nil, wrapStoreErr("insert_revocation/insert", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStoreErr("insert_revocation/commit", err)
	}
	return existing, nil
}

// NewChannelStatus inserts a channel's initial status row (Active), called
// once Establish completes on the merchant side.
func (s *MerchantStore) NewChannelStatus(ctx context.Context, channelId zkabacus.ChannelId) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_status (channel_id, status) VALUES ($1, $2)
		ON CONFLICT (channel_id) DO NOTHING`, channelId.String(), ChannelStatusActive)
	return wrapStoreErr("new_channel_status", err)
}

// ChannelStatusOf returns the current merchant-side status for channelId.
func (s *MerchantStore) ChannelStatusOf(ctx context.Context, channelId zkabacus.ChannelId) (ChannelStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM channel_status WHERE channel_id = $1`, channelId.String()).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNoSuchChannel
	} else if err != nil {
		return "", wrapStoreErr("channel_status_of", err)
	}
	return ChannelStatus(status), nil
}

// BindSession records the transport session a channel was established over,
// so a later Pay or Close arriving on a reconnect of the same session can be
// resolved back to its channel without the customer repeating its identity
// (the merchant dispatcher's only lookup key — spec.md §4.I).
func (s *MerchantStore) BindSession(ctx context.Context, channelId zkabacus.ChannelId, key transport.SessionKey) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE channel_status SET session_key = $1 WHERE channel_id = $2`, key.String(), channelId.String())
	if err != nil {
		return wrapStoreErr("bind_session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("bind_session/rows_affected", err)
	}
	if n == 0 {
		return ErrNoSuchChannel
	}
	return nil
}

// ChannelIdForSession resolves a session key bound by BindSession back to
// its channel. Returns ErrNoSuchChannel if no channel was established over
// this session.
func (s *MerchantStore) ChannelIdForSession(ctx context.Context, key transport.SessionKey) (zkabacus.ChannelId, error) {
	var idHex string
	err := s.db.QueryRowContext(ctx, `SELECT channel_id FROM channel_status WHERE session_key = $1`, key.String()).Scan(&idHex)
	if err == sql.ErrNoRows {
		return zkabacus.ChannelId{}, ErrNoSuchChannel
	} else if err != nil {
		return zkabacus.ChannelId{}, wrapStoreErr("channel_id_for_session", err)
	}
	raw, err := hex.DecodeString(idHex)
	if err != nil {
		return zkabacus.ChannelId{}, wrapStoreErr("channel_id_for_session/decode", err)
	}
	return zkabacus.NewChannelId(raw)
}

// SetContractId records the on-chain contract originated for channelId, so
// the dispatcher can hand it to the Close handler without the customer
// resending it.
func (s *MerchantStore) SetContractId(ctx context.Context, channelId zkabacus.ChannelId, contractId escrow.ContractId) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE channel_status SET contract_id = $1 WHERE channel_id = $2`, contractId.String(), channelId.String())
	if err != nil {
		return wrapStoreErr("set_contract_id", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("set_contract_id/rows_affected", err)
	}
	if n == 0 {
		return ErrNoSuchChannel
	}
	return nil
}

// ContractIdOf returns the on-chain contract bound to channelId by
// SetContractId.
func (s *MerchantStore) ContractIdOf(ctx context.Context, channelId zkabacus.ChannelId) (escrow.ContractId, error) {
	var address sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT contract_id FROM channel_status WHERE channel_id = $1`, channelId.String()).Scan(&address)
	if err == sql.ErrNoRows {
		return escrow.ContractId{}, ErrNoSuchChannel
	} else if err != nil {
		return escrow.ContractId{}, wrapStoreErr("contract_id_of", err)
	}
	if !address.Valid || address.String == "" {
		return escrow.ContractId{}, fmt.Errorf("%w: channel has no contract bound", ErrUnexpectedState)
	}
	return escrow.ContractId{Address: address.String}, nil
}

// CompareAndSwapChannelStatus transitions channelId's status from expected
// to desired, failing cleanly (ErrUnexpectedState) if the current status is
// not expected. This is what makes a successful mutual close move
// Active->PendingClose via CAS rather than blindly overwriting (spec.md
// §4.H failure semantics).
func (s *MerchantStore) CompareAndSwapChannelStatus(ctx context.Context, channelId zkabacus.ChannelId, expected, desired ChannelStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE channel_status SET status = $1 WHERE channel_id = $2 AND status = $3`,
		desired, channelId.String(), expected)
	if err != nil {
		return wrapStoreErr("compare_and_swap_channel_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr("compare_and_swap_channel_status/rows_affected", err)
	}
	if n == 0 {
		current, statusErr := s.ChannelStatusOf(ctx, channelId)
		if statusErr != nil {
			return statusErr
		}
		return fmt.Errorf("%w: channel %v has status %v, expected %v", ErrUnexpectedState, channelId, current, expected)
	}
	return nil
}
