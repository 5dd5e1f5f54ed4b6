package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/set-night/acueducto/internal/domain"
)

const customerColumns = `id, name, email, telegram_chat_id, is_admin, created_at`

func scanCustomer(row pgx.Row) (domain.Customer, error) {
	var (
		c      domain.Customer
		chatID pgtype.Int8
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &chatID, &c.IsAdmin, &c.CreatedAt)
	c.TelegramChatID = pgInt8ToPtr(chatID)
	return c, err
}

func (q *Queries) CreateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO customers (name, email, telegram_chat_id, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING `+customerColumns,
		c.Name, c.Email, ptrToPgInt8(c.TelegramChatID), c.IsAdmin)
	out, err := scanCustomer(row)
	return out, dbError("create customer", err, nil)
}

func (q *Queries) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	row := q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	return c, dbError("get customer", err, domain.ErrCustomerNotFound)
}

// LockCustomer takes the customer row lock that serializes changes to the
// customer's running payment streak.
func (q *Queries) LockCustomer(ctx context.Context, id int64) error {
	var locked int64
	err := q.db.QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return dbError("lock customer", err, domain.ErrCustomerNotFound)
}

func (q *Queries) GetCustomerByTelegram(ctx context.Context, chatID int64) (domain.Customer, error) {
	row := q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE telegram_chat_id = $1`, chatID)
	c, err := scanCustomer(row)
	return c, dbError("get customer by telegram", err, domain.ErrCustomerNotFound)
}

// UpsertTelegramCustomer links a chat to a customer, creating one on first
// contact and refreshing the display name afterwards.
func (q *Queries) UpsertTelegramCustomer(ctx context.Context, chatID int64, name string) (domain.Customer, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO customers (name, telegram_chat_id)
		VALUES ($1, $2)
		ON CONFLICT (telegram_chat_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING `+customerColumns,
		name, chatID)
	c, err := scanCustomer(row)
	return c, dbError("upsert telegram customer", err, nil)
}
