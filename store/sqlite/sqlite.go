/*
Package sqlite provides the SQLite-backed persistence layer.

PURPOSE:
  Stores clients, contracts and payments, plus the derived per-client
  metrics and quarterly/yearly summaries the dashboard reads. Built on
  sqlx over mattn/go-sqlite3.

SOFT DELETES:
  Clients, contracts and payments are never physically deleted. Rows carry
  valid_from/valid_to timestamps; a populated valid_to means the row is
  retired. Every read filters on "valid_to IS NULL".

KEY TABLES:
  clients:              Advisory clients
  contracts:            Fee terms (one active contract per client)
  payments:             Recorded fee payments with applied-period columns
  client_metrics:       Cached last-payment/YTD/average figures
  quarterly_summaries:  Per-quarter payment aggregates
  yearly_summaries:     Per-year payment aggregates

APPLIED PERIODS:
  A payment stores its applied range in one of two mutually exclusive
  column groups, matching the contract's schedule: monthly
  (applied_start_month..applied_end_month_year) or quarterly
  (applied_start_quarter..applied_end_quarter_year). Updates null out the
  group that does not apply.

CONCURRENCY:
  A sync.RWMutex serializes writes; SQLite runs in WAL mode so readers do
  not block.

USAGE:
  store, err := sqlite.New("./data/401k_payments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Noodieknoodie/4GPTK/fees"
)

// Store wraps the SQLite database.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at the given path and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		client_id INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT NOT NULL,
		full_name TEXT,
		ima_signed_date TEXT,
		valid_from TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		valid_to TEXT
	);

	CREATE TABLE IF NOT EXISTS contracts (
		contract_id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(client_id),
		contract_number TEXT,
		provider_name TEXT,
		contract_start_date TEXT,
		fee_type TEXT NOT NULL,
		percent_rate REAL,
		flat_rate REAL,
		payment_schedule TEXT NOT NULL,
		num_people INTEGER,
		notes TEXT,
		valid_from TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		valid_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_client
		ON contracts(client_id) WHERE valid_to IS NULL;

	CREATE TABLE IF NOT EXISTS payments (
		payment_id INTEGER PRIMARY KEY AUTOINCREMENT,
		contract_id INTEGER NOT NULL REFERENCES contracts(contract_id),
		client_id INTEGER NOT NULL REFERENCES clients(client_id),
		received_date TEXT NOT NULL,
		total_assets REAL,
		expected_fee REAL,
		actual_fee REAL NOT NULL,
		method TEXT,
		notes TEXT,
		applied_start_month INTEGER,
		applied_start_month_year INTEGER,
		applied_end_month INTEGER,
		applied_end_month_year INTEGER,
		applied_start_quarter INTEGER,
		applied_start_quarter_year INTEGER,
		applied_end_quarter INTEGER,
		applied_end_quarter_year INTEGER,
		valid_from TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		valid_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payments_client
		ON payments(client_id) WHERE valid_to IS NULL;
	CREATE INDEX IF NOT EXISTS idx_payments_received
		ON payments(received_date DESC);

	CREATE TABLE IF NOT EXISTS client_metrics (
		client_id INTEGER PRIMARY KEY REFERENCES clients(client_id),
		last_payment_date TEXT,
		last_payment_amount REAL,
		last_payment_quarter INTEGER,
		last_payment_year INTEGER,
		total_ytd_payments REAL,
		avg_quarterly_payment REAL,
		last_recorded_assets REAL,
		last_updated TEXT
	);

	CREATE TABLE IF NOT EXISTS quarterly_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(client_id),
		year INTEGER NOT NULL,
		quarter INTEGER NOT NULL,
		total_payments REAL,
		total_assets REAL,
		payment_count INTEGER,
		avg_payment REAL,
		expected_total REAL,
		UNIQUE(client_id, year, quarter)
	);

	CREATE TABLE IF NOT EXISTS yearly_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(client_id),
		year INTEGER NOT NULL,
		total_payments REAL,
		total_assets REAL,
		payment_count INTEGER,
		avg_payment REAL,
		yoy_growth REAL,
		UNIQUE(client_id, year)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW TYPES
// =============================================================================

// Client is a client row joined with its active contract's provider and the
// cached last-payment metrics.
type Client struct {
	ClientID          int64               `db:"client_id" json:"client_id"`
	DisplayName       string              `db:"display_name" json:"display_name"`
	FullName          sql.NullString      `db:"full_name" json:"-"`
	IMASignedDate     sql.NullString      `db:"ima_signed_date" json:"-"`
	ProviderName      sql.NullString      `db:"provider_name" json:"-"`
	PaymentSchedule   sql.NullString      `db:"payment_schedule" json:"-"`
	LastPaymentDate   sql.NullString      `db:"last_payment_date" json:"-"`
	LastPaymentAmount decimal.NullDecimal `db:"last_payment_amount" json:"-"`
}

// Contract is a contract row.
type Contract struct {
	ContractID        int64               `db:"contract_id"`
	ClientID          int64               `db:"client_id"`
	ContractNumber    sql.NullString      `db:"contract_number"`
	ProviderName      sql.NullString      `db:"provider_name"`
	ContractStartDate sql.NullString      `db:"contract_start_date"`
	FeeType           string              `db:"fee_type"`
	PercentRate       decimal.NullDecimal `db:"percent_rate"`
	FlatRate          decimal.NullDecimal `db:"flat_rate"`
	PaymentSchedule   string              `db:"payment_schedule"`
	NumPeople         sql.NullInt64       `db:"num_people"`
	Notes             sql.NullString      `db:"notes"`
}

// Domain converts the row into the pure fees.Contract the calculation core
// operates on.
func (c Contract) Domain() fees.Contract {
	contract := fees.Contract{
		ContractID:     c.ContractID,
		ClientID:       c.ClientID,
		ContractNumber: c.ContractNumber.String,
		ProviderName:   c.ProviderName.String,
		FeeType:        fees.ParseFeeType(c.FeeType),
		Schedule:       fees.Schedule(c.PaymentSchedule),
		NumPeople:      int(c.NumPeople.Int64),
		Notes:          c.Notes.String,
	}
	if c.PercentRate.Valid {
		rate := c.PercentRate.Decimal
		contract.PercentRate = &rate
	}
	if c.FlatRate.Valid {
		rate := c.FlatRate.Decimal
		contract.FlatRate = &rate
	}
	if c.ContractStartDate.Valid {
		if start, err := time.Parse("2006-01-02", c.ContractStartDate.String); err == nil {
			contract.StartDate = &start
		}
	}
	return contract
}

// =============================================================================
// CLIENTS
// =============================================================================

const clientColumns = `
	c.client_id, c.display_name, c.full_name, c.ima_signed_date,
	co.provider_name, co.payment_schedule,
	cm.last_payment_date, cm.last_payment_amount`

// ListClients returns all active clients, optionally filtered by provider,
// ordered by display name.
func (s *Store) ListClients(ctx context.Context, provider string) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + clientColumns + `
		FROM clients c
		LEFT JOIN contracts co ON c.client_id = co.client_id AND co.valid_to IS NULL
		LEFT JOIN client_metrics cm ON c.client_id = cm.client_id
		WHERE c.valid_to IS NULL`
	args := []any{}
	if provider != "" {
		query += " AND co.provider_name = ?"
		args = append(args, provider)
	}
	query += " ORDER BY c.display_name"

	var clients []Client
	if err := s.db.SelectContext(ctx, &clients, query, args...); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// GetClient returns a single active client, or nil if not found.
func (s *Store) GetClient(ctx context.Context, clientID int64) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + clientColumns + `
		FROM clients c
		LEFT JOIN contracts co ON c.client_id = co.client_id AND co.valid_to IS NULL
		LEFT JOIN client_metrics cm ON c.client_id = cm.client_id
		WHERE c.client_id = ? AND c.valid_to IS NULL`

	var client Client
	err := s.db.GetContext(ctx, &client, query, clientID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client %d: %w", clientID, err)
	}
	return &client, nil
}

// SaveClient inserts a new client and returns its id.
func (s *Store) SaveClient(ctx context.Context, displayName, fullName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (display_name, full_name) VALUES (?, ?)`,
		displayName, fullName)
	if err != nil {
		return 0, fmt.Errorf("save client: %w", err)
	}
	return res.LastInsertId()
}

// ListClientIDs returns the ids of all active clients. Used by the summary
// scheduler.
func (s *Store) ListClientIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT client_id FROM clients WHERE valid_to IS NULL ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("list client ids: %w", err)
	}
	return ids, nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `
	contract_id, client_id, contract_number, provider_name, contract_start_date,
	fee_type, percent_rate, flat_rate, payment_schedule, num_people, notes`

// GetContract returns an active contract by id, or nil if not found.
func (s *Store) GetContract(ctx context.Context, contractID int64) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var contract Contract
	err := s.db.GetContext(ctx, &contract,
		`SELECT `+contractColumns+` FROM contracts WHERE contract_id = ? AND valid_to IS NULL`,
		contractID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contract %d: %w", contractID, err)
	}
	return &contract, nil
}

// GetClientContract returns the client's active contract, or nil if the
// client has none.
func (s *Store) GetClientContract(ctx context.Context, clientID int64) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var contract Contract
	err := s.db.GetContext(ctx, &contract,
		`SELECT `+contractColumns+` FROM contracts WHERE client_id = ? AND valid_to IS NULL`,
		clientID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contract for client %d: %w", clientID, err)
	}
	return &contract, nil
}

// SaveContract inserts a new contract and returns its id. Any previously
// active contract for the client is retired first.
func (s *Store) SaveContract(ctx context.Context, c Contract) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE contracts SET valid_to = CURRENT_TIMESTAMP WHERE client_id = ? AND valid_to IS NULL`,
		c.ClientID)
	if err != nil {
		return 0, fmt.Errorf("retire contracts for client %d: %w", c.ClientID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO contracts
		(client_id, contract_number, provider_name, contract_start_date,
		 fee_type, percent_rate, flat_rate, payment_schedule, num_people, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ClientID, c.ContractNumber, c.ProviderName, c.ContractStartDate,
		c.FeeType, c.PercentRate, c.FlatRate, c.PaymentSchedule, c.NumPeople, c.Notes)
	if err != nil {
		return 0, fmt.Errorf("save contract: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}
