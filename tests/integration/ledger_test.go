//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/averden/stationledger/internal/domain/inventory"
	"github.com/averden/stationledger/internal/domain/loyalty"
	"github.com/averden/stationledger/internal/domain/sale"
	"github.com/averden/stationledger/internal/ledger"
	"github.com/averden/stationledger/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("../../docker-compose.test.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}

	err = dc.
		WaitForService("postgres", wait.ForListeningPort("5432/tcp")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}
	defer func() {
		_ = dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true))
	}()

	pgContainer, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	databaseURL := fmt.Sprintf("postgres://ledger:ledger@%s:%s/ledger_test", host, port.Port())

	pool, err = postgres.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

// seedFixtures resets and reloads the station fixture used by each test.
func seedFixtures(t *testing.T, level string) {
	t.Helper()
	ctx := context.Background()

	_, err := pool.Exec(ctx, `TRUNCATE transactions, fuel_tanks, loyalty_accounts, stations CASCADE`)
	require.NoError(t, err)

	stations := postgres.NewStationRepository(pool)
	require.NoError(t, stations.Upsert(ctx, postgres.Station{ID: "station-1", Name: "Test Station"}))

	tanks := postgres.NewTankRepository(pool)
	require.NoError(t, tanks.Seed(ctx, inventory.FuelTank{
		StationRef:   "station-1",
		FuelType:     sale.FuelRegular,
		CurrentLevel: decimal.RequireFromString(level),
		Capacity:     decimal.RequireFromString("12000"),
		MinimumLevel: decimal.RequireFromString("10"),
	}))

	accounts := postgres.NewAccountRepository(pool)
	require.NoError(t, accounts.Enroll(ctx, "cust-1"))
}

func fuelTransaction(t *testing.T, qty string) *sale.Transaction {
	t.Helper()
	item, err := sale.BuildItem(sale.KindFuel, sale.ItemParams{
		FuelType:  sale.FuelRegular,
		Quantity:  decimal.RequireFromString(qty),
		UnitPrice: decimal.RequireFromString("3.59"),
	})
	require.NoError(t, err)

	tx, err := sale.Compose(sale.KindFuel, []sale.LineItem{item},
		decimal.RequireFromString("0.06"), loyalty.DefaultRates())
	require.NoError(t, err)
	tx.StationRef = "station-1"
	tx.CustomerRef = "cust-1"
	tx.PaymentMethod = sale.MethodCard
	return tx
}

func TestCommitPersistsEverythingAtomically(t *testing.T) {
	seedFixtures(t, "100")
	ctx := context.Background()
	c := ledger.NewCoordinator(postgres.NewStore(pool))

	committed, err := c.Commit(ctx, fuelTransaction(t, "10"))
	require.NoError(t, err)

	tank, err := postgres.NewTankRepository(pool).GetByFuelType(ctx, "station-1", sale.FuelRegular)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("90").Equal(tank.CurrentLevel))

	account, err := postgres.NewAccountRepository(pool).GetByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(359), account.PointsBalance)

	stored, err := postgres.NewTransactionRepository(pool).GetByID(ctx, committed.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.StatusPending, stored.PaymentStatus)
	assert.True(t, decimal.RequireFromString("35.90").Equal(stored.Total))
	assert.True(t, decimal.RequireFromString("33.87").Equal(stored.Subtotal))
	assert.True(t, stored.Total.Equal(stored.Subtotal.Add(stored.Tax)))
	require.Len(t, stored.Items, 1)
	assert.Equal(t, sale.FuelRegular, stored.Items[0].FuelType)
}

func TestCommitInsufficientInventoryLeavesNoPartialState(t *testing.T) {
	seedFixtures(t, "20")
	ctx := context.Background()
	c := ledger.NewCoordinator(postgres.NewStore(pool))

	_, err := c.Commit(ctx, fuelTransaction(t, "25"))

	var invErr *inventory.InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)

	tank, err := postgres.NewTankRepository(pool).GetByFuelType(ctx, "station-1", sale.FuelRegular)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20").Equal(tank.CurrentLevel))

	account, err := postgres.NewAccountRepository(pool).GetByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.PointsBalance)

	list, err := postgres.NewTransactionRepository(pool).ListByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentCommitsSerializePerTank(t *testing.T) {
	seedFixtures(t, "100")
	ctx := context.Background()
	c := ledger.NewCoordinator(postgres.NewStore(pool), ledger.WithMaxAttempts(10))

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := c.Commit(ctx, fuelTransaction(t, "5"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	tank, err := postgres.NewTankRepository(pool).GetByFuelType(ctx, "station-1", sale.FuelRegular)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("60").Equal(tank.CurrentLevel),
		"8 commits of 5 gal from 100 must leave 60, got %s", tank.CurrentLevel)
}

func TestRefundReversesPointsButKeepsTankLevel(t *testing.T) {
	seedFixtures(t, "100")
	ctx := context.Background()
	c := ledger.NewCoordinator(postgres.NewStore(pool))

	tx := fuelTransaction(t, "10")
	tx.PaymentStatus = sale.StatusPaid
	committed, err := c.Commit(ctx, tx)
	require.NoError(t, err)

	refunded, err := c.Refund(ctx, committed.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.StatusRefunded, refunded.PaymentStatus)

	account, err := postgres.NewAccountRepository(pool).GetByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.PointsBalance)

	tank, err := postgres.NewTankRepository(pool).GetByFuelType(ctx, "station-1", sale.FuelRegular)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("90").Equal(tank.CurrentLevel))

	// Refunded is terminal.
	_, err = c.Refund(ctx, committed.ID)
	var trErr *sale.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
}
