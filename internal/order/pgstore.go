package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dukaan/internal/events"
	"github.com/noah-isme/backend-dukaan/internal/pricing"
)

// PGStore persists orders and domain events in PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)
var _ events.Store = (*PGStore)(nil)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS orders (
    id          TEXT PRIMARY KEY,
    cart_id     TEXT NOT NULL,
    status      TEXT NOT NULL,
    currency    TEXT NOT NULL,
    grand_total NUMERIC(14,2) NOT NULL,
    items       JSONB NOT NULL,
    totals      JSONB NOT NULL,
    proof       JSONB NOT NULL,
    customer    JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS domain_events (
    id           UUID PRIMARY KEY,
    topic        TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    payload      JSONB NOT NULL,
    occurred_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_domain_events_aggregate ON domain_events (aggregate_id);
`

// EnsureSchema creates the backing tables when they do not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("order: ensure schema: %w", err)
	}
	return nil
}

// storedTotals mirrors pricing.Totals without the warning errors, which
// do not survive a JSON round trip.
type storedTotals struct {
	Subtotal    string `json:"subtotal"`
	Discount    string `json:"discount"`
	GST         string `json:"gst"`
	HandlingFee string `json:"handlingFee"`
	Shipping    string `json:"shipping"`
	PlatformFee string `json:"platformFee"`
	GrandTotal  string `json:"grandTotal"`
}

func toStoredTotals(t pricing.Totals) storedTotals {
	return storedTotals{
		Subtotal:    t.Subtotal.String(),
		Discount:    t.Discount.String(),
		GST:         t.GST.String(),
		HandlingFee: t.HandlingFee.String(),
		Shipping:    t.Shipping.String(),
		PlatformFee: t.PlatformFee.String(),
		GrandTotal:  t.GrandTotal.String(),
	}
}

func (st storedTotals) toTotals() (pricing.Totals, error) {
	var t pricing.Totals
	var err error
	parse := decimal.NewFromString
	if t.Subtotal, err = parse(st.Subtotal); err != nil {
		return t, err
	}
	if t.Discount, err = parse(st.Discount); err != nil {
		return t, err
	}
	if t.GST, err = parse(st.GST); err != nil {
		return t, err
	}
	if t.HandlingFee, err = parse(st.HandlingFee); err != nil {
		return t, err
	}
	if t.Shipping, err = parse(st.Shipping); err != nil {
		return t, err
	}
	if t.PlatformFee, err = parse(st.PlatformFee); err != nil {
		return t, err
	}
	if t.GrandTotal, err = parse(st.GrandTotal); err != nil {
		return t, err
	}
	return t, nil
}

// Create inserts the order inside a transaction.
func (s *PGStore) Create(ctx context.Context, o Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("order: encode items: %w", err)
	}
	totals, err := json.Marshal(toStoredTotals(o.Totals))
	if err != nil {
		return fmt.Errorf("order: encode totals: %w", err)
	}
	proof, err := json.Marshal(o.Proof)
	if err != nil {
		return fmt.Errorf("order: encode proof: %w", err)
	}
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("order: encode customer: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO orders (id, cart_id, status, currency, grand_total, items, totals, proof, customer, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)`,
		o.ID, o.CartID, string(o.Status), o.Currency, o.Totals.GrandTotal.String(),
		items, totals, proof, customer, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("order: insert: %w", err)
	}
	return nil
}

// Get loads one order by id.
func (s *PGStore) Get(ctx context.Context, id string) (Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, cart_id, status, currency, items, totals, proof, customer, created_at
		FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}

// List returns orders newest first with the total row count.
func (s *PGStore) List(ctx context.Context, limit, offset int) ([]Order, int64, error) {
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("order: count: %w", err)
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, cart_id, status, currency, items, totals, proof, customer, created_at
		FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("order: list: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("order: scan: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("order: list rows: %w", err)
	}
	return orders, total, nil
}

// InsertEvent persists a domain event, letting the store double as the
// event bus sink.
func (s *PGStore) InsertEvent(ctx context.Context, event events.Event) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.Topic, event.AggregateID, []byte(event.Payload), event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("order: insert event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o        Order
		status   string
		items    []byte
		totals   []byte
		proof    []byte
		customer []byte
	)
	if err := row.Scan(&o.ID, &o.CartID, &status, &o.Currency, &items, &totals, &proof, &customer, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode items: %w", err)
	}
	var st storedTotals
	if err := json.Unmarshal(totals, &st); err != nil {
		return Order{}, fmt.Errorf("decode totals: %w", err)
	}
	t, err := st.toTotals()
	if err != nil {
		return Order{}, fmt.Errorf("decode totals: %w", err)
	}
	o.Totals = t
	if err := json.Unmarshal(proof, &o.Proof); err != nil {
		return Order{}, fmt.Errorf("decode proof: %w", err)
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return Order{}, fmt.Errorf("decode customer: %w", err)
	}
	return o, nil
}
