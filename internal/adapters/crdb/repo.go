package crdb

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/shopspring/decimal"
)

// SerializationFailureCode is the SQLSTATE CockroachDB returns when a transaction must be retried.
const SerializationFailureCode = "40001"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

const positionColumns = `
	p.id, p.positionid, o.code, o.secret, o.event_id, p.secret,
	COALESCE(p.attendee_name, ''), COALESCE(parent.attendee_name, ''),
	p.item_name, COALESCE(p.variation_name, '{}'::JSONB), p.price::STRING,
	COALESCE(p.seat, ''), COALESCE(p.meta_info, '{}'::JSONB)
	FROM order_positions p
	JOIN orders o ON o.id = p.order_id
	LEFT JOIN order_positions parent ON parent.id = p.addon_to`

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		pos   domain.Position
		price string
		meta  []byte
	)
	err := row.Scan(&pos.ID, &pos.PositionNo, &pos.OrderCode, &pos.OrderSecret, &pos.EventID, &pos.Secret,
		&pos.AttendeeName, &pos.AddonToAttendeeName, &pos.ItemName, &pos.VariationName, &price,
		&pos.Seat, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if pos.Price, err = decimal.NewFromString(price); err != nil {
		return nil, errors.Wrapf(err, "parse price of position %s", pos.ID)
	}
	if err := json.Unmarshal(meta, &pos.MetaInfo); err != nil {
		return nil, errors.Wrapf(err, "decode meta_info of position %s", pos.ID)
	}
	if pos.MetaInfo == nil {
		pos.MetaInfo = domain.MetaInfo{}
	}
	return &pos, nil
}

func (r *Repository) GetPosition(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	return scanPosition(r.pool.QueryRow(ctx, `SELECT `+positionColumns+` WHERE p.id = $1`, id))
}

// GetOrderPosition looks a ticket up by order code and position number. Callers compare
// the order secret themselves.
func (r *Repository) GetOrderPosition(ctx context.Context, orderCode string, positionNo int) (*domain.Position, error) {
	return scanPosition(r.pool.QueryRow(ctx, `SELECT `+positionColumns+`
		WHERE o.code = $1 AND p.positionid = $2 AND NOT p.canceled`, orderCode, positionNo))
}

func (r *Repository) SetWalletObjectID(ctx context.Context, id uuid.UUID, objectID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE order_positions
		SET meta_info = jsonb_set(COALESCE(meta_info, '{}'::JSONB), ARRAY[$3::STRING], to_jsonb($2::STRING))
		WHERE id = $1
	`, id, objectID, domain.WalletMetaKey)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearWalletObjectID drops the marker only if it still holds objectID, so a marker
// written by a newer generate is never lost.
func (r *Repository) ClearWalletObjectID(ctx context.Context, id uuid.UUID, objectID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE order_positions
		SET meta_info = meta_info - $3::STRING
		WHERE id = $1 AND meta_info->>($3::STRING) = $2
	`, id, objectID, domain.WalletMetaKey)
	return err
}

func (r *Repository) FindPositionByWalletObjectID(ctx context.Context, objectID string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM order_positions WHERE meta_info->>($2::STRING) = $1 LIMIT 1
	`, objectID, domain.WalletMetaKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (r *Repository) ListPositionIDsByOrder(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM order_positions WHERE order_id = $1 ORDER BY positionid
	`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *Repository) GetGlobalSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM global_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *Repository) SetGlobalSetting(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `UPSERT INTO global_settings (key, value) VALUES ($1, $2)`, key, value)
	return err
}

func (r *Repository) InsertGlobalSettingIfAbsent(ctx context.Context, key, value string) (string, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO global_settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING
	`, key, value)
	if err != nil {
		return "", err
	}
	stored, _, err := r.GetGlobalSetting(ctx, key)
	return stored, err
}
