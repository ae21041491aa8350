package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cocart-replica/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Load(ctx context.Context, cartKey string) (*domain.CartRecord, error) {
	return r.load(ctx, "cocart_sessions", cartKey)
}

func (r *postgresRepo) LoadDurable(ctx context.Context, cartKey string) (*domain.CartRecord, error) {
	return r.load(ctx, "cocart_carts", cartKey)
}

func (r *postgresRepo) load(ctx context.Context, table, cartKey string) (*domain.CartRecord, error) {
	q := fmt.Sprintf(`
SELECT cart_id, trim(cart_key), cart_value, cart_created, cart_expiry, cart_source, cart_hash
FROM %s
WHERE cart_key = $1 AND cart_expiry >= EXTRACT(EPOCH FROM now())::bigint
`, table)
	var rec domain.CartRecord
	err := r.pool.QueryRow(ctx, q, cartKey).Scan(
		&rec.ID, &rec.Key, &rec.Value, &rec.Created, &rec.Expiry, &rec.Source, &rec.Hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("session repo: load table=%s key=%s error=%v", table, cartKey, err)
		return nil, err
	}
	return &rec, nil
}

// Save writes both rows inside one transaction so a failure on the
// durable upsert never leaves only the session row updated.
func (r *postgresRepo) Save(ctx context.Context, rec domain.CartRecord, sessionExpiry, cartExpiry int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const upsert = `
INSERT INTO %s (cart_key, cart_value, cart_created, cart_expiry, cart_source, cart_hash)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (cart_key) DO UPDATE
SET cart_value = EXCLUDED.cart_value,
    cart_expiry = EXCLUDED.cart_expiry,
    cart_source = EXCLUDED.cart_source,
    cart_hash = EXCLUDED.cart_hash
`
	if _, err := tx.Exec(ctx, fmt.Sprintf(upsert, "cocart_sessions"),
		rec.Key, rec.Value, rec.Created, sessionExpiry, rec.Source, rec.Hash); err != nil {
		r.logger.Printf("session repo: save session key=%s error=%v", rec.Key, err)
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(upsert, "cocart_carts"),
		rec.Key, rec.Value, rec.Created, cartExpiry, rec.Source, rec.Hash); err != nil {
		r.logger.Printf("session repo: save cart key=%s error=%v", rec.Key, err)
		return err
	}

	return tx.Commit(ctx)
}

func (r *postgresRepo) Delete(ctx context.Context, cartKey string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cocart_sessions WHERE cart_key = $1`, cartKey); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cocart_carts WHERE cart_key = $1`, cartKey); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Rename is the guest-to-authenticated key rotation. The destination
// rows are locked before the check so two concurrent logins cannot both
// pass the conflict test.
func (r *postgresRepo) Rename(ctx context.Context, oldKey, newKey string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existing int64
	err = tx.QueryRow(ctx, `
SELECT cart_id FROM cocart_carts
WHERE cart_key = $1 AND cart_expiry >= EXTRACT(EPOCH FROM now())::bigint
FOR UPDATE
`, newKey).Scan(&existing)
	switch {
	case err == nil:
		return domain.ErrConflict
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	for _, table := range []string{"cocart_sessions", "cocart_carts"} {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE cart_key = $1`, table), newKey); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET cart_key = $1 WHERE cart_key = $2`, table), newKey, oldKey); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) SweepExpired(ctx context.Context, now int64) (int64, error) {
	var total int64
	for _, table := range []string{"cocart_sessions", "cocart_carts"} {
		cmd, err := r.pool.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE cart_expiry < $1`, table), now)
		if err != nil {
			r.logger.Printf("session repo: sweep table=%s error=%v", table, err)
			return total, err
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

// TransferLegacy copies still-valid legacy session rows into the
// durable table. The install_flags row makes the migration one-shot;
// INSERT ... ON CONFLICT DO NOTHING makes a crashed run safe to repeat.
func (r *postgresRepo) TransferLegacy(ctx context.Context) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
INSERT INTO install_flags (flag_name) VALUES ('legacy_sessions_transferred')
ON CONFLICT (flag_name) DO NOTHING
`)
	if err != nil {
		return 0, err
	}
	if cmd.RowsAffected() == 0 {
		// Already transferred on a previous start.
		return 0, tx.Commit(ctx)
	}

	moved, err := tx.Exec(ctx, `
INSERT INTO cocart_carts (cart_key, cart_value, cart_created, cart_expiry, cart_source, cart_hash)
SELECT session_key, session_value, EXTRACT(EPOCH FROM now())::bigint, session_expiry, 'woocommerce', ''
FROM legacy_sessions
WHERE session_expiry >= EXTRACT(EPOCH FROM now())::bigint
ON CONFLICT (cart_key) DO NOTHING
`)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM legacy_sessions`); err != nil {
		return 0, err
	}
	return moved.RowsAffected(), tx.Commit(ctx)
}

func (r *postgresRepo) List(ctx context.Context, limit int) ([]domain.CartRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT cart_id, trim(cart_key), cart_value, cart_created, cart_expiry, cart_source, cart_hash
FROM cocart_carts
ORDER BY cart_created DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CartRecord
	for rows.Next() {
		var rec domain.CartRecord
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.Value, &rec.Created, &rec.Expiry, &rec.Source, &rec.Hash); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
