package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/averden/stationledger/internal/domain/inventory"
)

const (
	selectTankSQL = `SELECT station_ref, fuel_type, current_level, capacity, minimum_level, version
		FROM fuel_tanks`

	getTankSQL = selectTankSQL + ` WHERE station_ref = $1 AND fuel_type = $2`

	// FOR UPDATE serializes concurrent commits touching the same tank.
	getTankForUpdateSQL = getTankSQL + ` FOR UPDATE`

	listTanksByStationSQL = selectTankSQL + ` WHERE station_ref = $1 ORDER BY fuel_type`

	// The version guard turns a lost update into zero affected rows.
	updateTankSQL = `UPDATE fuel_tanks SET current_level = $4, version = version + 1
		WHERE station_ref = $1 AND fuel_type = $2 AND version = $3`

	upsertTankSQL = `INSERT INTO fuel_tanks (station_ref, fuel_type, current_level, capacity, minimum_level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (station_ref, fuel_type) DO NOTHING`
)

var _ inventory.Repository = (*TankRepository)(nil)

// TankRepository implements inventory.Repository backed by PostgreSQL.
type TankRepository struct {
	pool *pgxpool.Pool
}

// NewTankRepository returns a TankRepository that uses the given pool.
func NewTankRepository(pool *pgxpool.Pool) *TankRepository {
	return &TankRepository{pool: pool}
}

// GetByFuelType returns the tank for one fuel grade at a station.
func (r *TankRepository) GetByFuelType(ctx context.Context, stationRef, fuelType string) (*inventory.FuelTank, error) {
	return getTank(ctx, r.pool, getTankSQL, stationRef, fuelType)
}

// ListByStation returns all tanks at a station ordered by fuel type.
func (r *TankRepository) ListByStation(ctx context.Context, stationRef string) ([]inventory.FuelTank, error) {
	rows, err := r.pool.Query(ctx, listTanksByStationSQL, stationRef)
	if err != nil {
		return nil, fmt.Errorf("listing tanks at station %q: %w", stationRef, err)
	}
	return pgx.CollectRows(rows, scanTank)
}

// Seed inserts the tank if the station does not have one for that fuel
// type yet. Existing tanks keep their levels.
func (r *TankRepository) Seed(ctx context.Context, t inventory.FuelTank) error {
	_, err := r.pool.Exec(ctx, upsertTankSQL,
		t.StationRef, t.FuelType, t.CurrentLevel, t.Capacity, t.MinimumLevel)
	if err != nil {
		return fmt.Errorf("seeding %s tank at station %q: %w", t.FuelType, t.StationRef, err)
	}
	return nil
}

func getTank(ctx context.Context, q querier, sql, stationRef, fuelType string) (*inventory.FuelTank, error) {
	rows, err := q.Query(ctx, sql, stationRef, fuelType)
	if err != nil {
		return nil, fmt.Errorf("getting %s tank at station %q: %w", fuelType, stationRef, err)
	}

	t, err := pgx.CollectExactlyOneRow(rows, scanTank)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting %s tank at station %q: %w", fuelType, stationRef, err)
	}
	return &t, nil
}

func scanTank(row pgx.CollectableRow) (inventory.FuelTank, error) {
	var t inventory.FuelTank
	err := row.Scan(&t.StationRef, &t.FuelType, &t.CurrentLevel, &t.Capacity, &t.MinimumLevel, &t.Version)
	return t, err
}
