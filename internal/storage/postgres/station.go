package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Station is reference data the ledger points at through weak refs. It
// lives here rather than in a domain package because the core never
// reads station attributes, only carries the id.
type Station struct {
	ID      string
	Name    string
	Address string
}

const (
	upsertStationSQL = `INSERT INTO stations (id, name, address)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address`

	listStationsSQL = `SELECT id, name, address FROM stations ORDER BY id`
)

// StationRepository provides station reference data access.
type StationRepository struct {
	pool *pgxpool.Pool
}

// NewStationRepository returns a StationRepository that uses the given
// pool.
func NewStationRepository(pool *pgxpool.Pool) *StationRepository {
	return &StationRepository{pool: pool}
}

// Upsert inserts or updates a station.
func (r *StationRepository) Upsert(ctx context.Context, s Station) error {
	_, err := r.pool.Exec(ctx, upsertStationSQL, s.ID, s.Name, s.Address)
	if err != nil {
		return fmt.Errorf("upserting station %q: %w", s.ID, err)
	}
	return nil
}

// List returns all stations ordered by ID.
func (r *StationRepository) List(ctx context.Context) ([]Station, error) {
	rows, err := r.pool.Query(ctx, listStationsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Station, error) {
		var s Station
		err := row.Scan(&s.ID, &s.Name, &s.Address)
		return s, err
	})
}
