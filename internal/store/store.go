package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Sentinel errors surfaced by the repository. The unique-index violations
// are distinguished by constraint so callers can treat an order-number
// collision (retry with a new suffix) differently from a duplicate payment
// reference (fetch and return the existing order).
var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrDuplicatePayment     = errors.New("order already exists for payment reference")
	ErrInvalidStatus        = errors.New("invalid order status")
)

const (
	constraintOrderNumber = "orders_order_number_key"
	constraintPaymentID   = "orders_gateway_payment_id_key"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// classifyUniqueViolation maps a pq unique-violation (23505) to the sentinel
// for the constraint it hit. Any other error passes through unchanged.
func classifyUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case constraintOrderNumber:
		return ErrDuplicateOrderNumber
	case constraintPaymentID:
		return ErrDuplicatePayment
	}
	return err
}
