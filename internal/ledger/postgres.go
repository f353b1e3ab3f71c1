package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarpay/bazaarpay/internal/money"
)

const (
	txColumns = `id, owner_id, direction, kind, amount, description, payment_method,
        reference_id, status, metadata, created_at, updated_at`

	uniqueViolation = "23505"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxWriter is the Postgres Writer bound to one transaction.
type TxWriter struct {
	tx pgx.Tx
}

// NewTxWriter binds a writer to tx.
func NewTxWriter(tx pgx.Tx) *TxWriter {
	return &TxWriter{tx: tx}
}

// Append implements Writer.
func (w *TxWriter) Append(ctx context.Context, t Transaction) (Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return Transaction{}, fmt.Errorf("encode metadata: %w", err)
	}

	_, err = w.tx.Exec(ctx, `INSERT INTO transactions (`+txColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.OwnerID, string(t.Direction), string(t.Kind), t.Amount.Minor(), t.Description,
		t.PaymentMethod, t.Reference, string(t.Status), meta, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// LockForUpdate implements Writer.
func (w *TxWriter) LockForUpdate(ctx context.Context, id string) (Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Transaction{}, ErrNotFound
	}
	t, err := scanTransaction(w.tx.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("lock transaction %s: %w", id, err)
	}
	return t, nil
}

// SetStatus implements Writer. The row must already be locked by LockForUpdate.
func (w *TxWriter) SetStatus(ctx context.Context, id string, status Status) (Transaction, error) {
	current, err := w.LockForUpdate(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if !current.Status.CanTransition(status) {
		return Transaction{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	t, err := scanTransaction(w.tx.QueryRow(ctx, `UPDATE transactions SET status = $2, updated_at = NOW()
        WHERE id = $1 RETURNING `+txColumns, id, string(status)))
	if err != nil {
		return Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	return t, nil
}

// ClaimKey implements Writer. A concurrent claim of the same key blocks on the
// unique index until the first unit ends.
func (w *TxWriter) ClaimKey(ctx context.Context, owner, key string, claim Claim) error {
	_, err := w.tx.Exec(ctx, `INSERT INTO idempotency_keys (owner_id, key, reference_id, kind, fingerprint)
        VALUES ($1, $2, $3, $4, $5)`,
		owner, key, claim.Reference, string(claim.Kind), claim.Fingerprint)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	return nil
}

// PostgresReader reads committed rows from the pool.
type PostgresReader struct {
	db *pgxpool.Pool
}

// NewPostgresReader builds a reader backed by PostgreSQL.
func NewPostgresReader(db *pgxpool.Pool) *PostgresReader {
	return &PostgresReader{db: db}
}

// Get implements Reader.
func (r *PostgresReader) Get(ctx context.Context, id string) (Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Transaction{}, ErrNotFound
	}
	t, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// History implements Reader, newest first.
func (r *PostgresReader) History(ctx context.Context, owner string, page Page) ([]Transaction, error) {
	page = page.Normalize()
	return queryTransactions(ctx, r.db, `SELECT `+txColumns+` FROM transactions
        WHERE owner_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, owner, page.Limit, page.Offset)
}

// ByReference implements Reader, debits first.
func (r *PostgresReader) ByReference(ctx context.Context, reference string) ([]Transaction, error) {
	return queryTransactions(ctx, r.db, `SELECT `+txColumns+` FROM transactions
        WHERE reference_id = $1 ORDER BY created_at, CASE direction WHEN 'debit' THEN 0 ELSE 1 END`, reference)
}

// Totals implements Reader.
func (r *PostgresReader) Totals(ctx context.Context, owner string) (Totals, error) {
	var credits, debits int64
	err := r.db.QueryRow(ctx, `SELECT
            COALESCE(SUM(amount) FILTER (WHERE direction = 'credit'), 0),
            COALESCE(SUM(amount) FILTER (WHERE direction = 'debit'), 0)
        FROM transactions WHERE owner_id = $1`, owner).Scan(&credits, &debits)
	if err != nil {
		return Totals{}, fmt.Errorf("sum transactions for %s: %w", owner, err)
	}
	return Totals{Credits: money.FromMinor(credits), Debits: money.FromMinor(debits)}, nil
}

// LookupKey implements Reader.
func (r *PostgresReader) LookupKey(ctx context.Context, owner, key string) (Claim, error) {
	var (
		claim Claim
		kind  string
	)
	err := r.db.QueryRow(ctx, `SELECT reference_id, kind, fingerprint FROM idempotency_keys
        WHERE owner_id = $1 AND key = $2`, owner, key).Scan(&claim.Reference, &kind, &claim.Fingerprint)
	if errors.Is(err, pgx.ErrNoRows) {
		return Claim{}, ErrNotFound
	}
	if err != nil {
		return Claim{}, fmt.Errorf("lookup idempotency key: %w", err)
	}
	claim.Kind = Kind(kind)
	return claim, nil
}

func queryTransactions(ctx context.Context, q querier, sql string, args ...any) ([]Transaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t                       Transaction
		id                      uuid.UUID
		direction, kind, status string
		amount                  int64
		meta                    []byte
	)
	if err := row.Scan(&id, &t.OwnerID, &direction, &kind, &amount, &t.Description, &t.PaymentMethod,
		&t.Reference, &status, &meta, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	t.ID = id.String()
	t.Direction = Direction(direction)
	t.Kind = Kind(kind)
	t.Status = Status(status)
	t.Amount = money.FromMinor(amount)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
