package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/orderdesk/orderdesk-backend/internal/models"
)

// PostgresRepository implements OrderRepository against the shared shop
// database. This matches the multi-terminal deployment where several desktop
// clients point at one PostgreSQL instance.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(connectionString string) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Ping verifies database connectivity for readiness probes.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// RunMigrations runs database migrations.
func (r *PostgresRepository) RunMigrations(migrationSQL string) error {
	_, err := r.db.Exec(migrationSQL)
	return err
}

func (r *PostgresRepository) ListOrderStates(ctx context.Context) ([]models.OrderState, error) {
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

func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	query := `SELECT * FROM orders WHERE id = $1`

	err := r.db.GetContext(ctx, &order, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return &order, err
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	query := `
		INSERT INTO orders (order_number, client_name, status, ready, billing, review, sublimation, sewing, shipping, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	now := time.Now()
	return r.db.QueryRowContext(ctx, query,
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
	).Scan(&order.ID)
}

func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *PostgresRepository) UpdateOrderFlags(ctx context.Context, id int64, flags models.OrderFlags) error {
	set, args := flagAssignments(flags)
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now(), id)

	// Rebind converts the shared ?-style clause to $n placeholders.
	query := r.db.Rebind(fmt.Sprintf("UPDATE orders SET %s WHERE id = ?", strings.Join(set, ", ")))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *PostgresRepository) DeleteOrder(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}
