package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/orderdesk/orderdesk-backend/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteRepository implements OrderRepository using an embedded SQLite
// database. This is the sidecar default: the backend owns the file and the
// schema.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository creates a new SQLite repository.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	// WAL lets the poller read while command handlers write.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping verifies database connectivity for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// RunMigrations runs database migrations.
func (r *SQLiteRepository) RunMigrations(migrationSQL string) error {
	_, err := r.db.Exec(migrationSQL)
	return err
}

func (r *SQLiteRepository) ListOrderStates(ctx context.Context) ([]models.OrderState, error) {
	var states []models.OrderState
	query := `
		SELECT id, order_number, status, ready, billing, review, sublimation, sewing, shipping
		FROM orders
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &states, query); err != nil {
		return nil, fmt.Errorf("failed to list order states: %w", err)
	}
	return states, nil
}

func (r *SQLiteRepository) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	query := `SELECT * FROM orders WHERE id = ?`

	err := r.db.GetContext(ctx, &order, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return &order, err
}

func (r *SQLiteRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	query := `
		INSERT INTO orders (order_number, client_name, status, ready, billing, review, sublimation, sewing, shipping, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		order.Number,
		order.ClientName,
		order.Status,
		order.Ready,
		order.Billing,
		order.Review,
		order.Sublimation,
		order.Sewing,
		order.Shipping,
		now,
		now,
	)
	if err != nil {
		return err
	}

	order.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *SQLiteRepository) UpdateOrderFlags(ctx context.Context, id int64, flags models.OrderFlags) error {
	set, args := flagAssignments(flags)
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now(), id)

	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = ?", strings.Join(set, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *SQLiteRepository) DeleteOrder(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// flagAssignments builds the SET clause for a partial flags update.
func flagAssignments(flags models.OrderFlags) ([]string, []interface{}) {
	var set []string
	var args []interface{}
	add := func(col string, v *bool) {
		if v != nil {
			set = append(set, col+" = ?")
			args = append(args, *v)
		}
	}
	add("ready", flags.Ready)
	add("billing", flags.Billing)
	add("review", flags.Review)
	add("sublimation", flags.Sublimation)
	add("sewing", flags.Sewing)
	add("shipping", flags.Shipping)
	return set, args
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return nil
}
