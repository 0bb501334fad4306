// Command seed-db creates the schema and loads reference data: a
// station with its fuel tanks, the shop catalog, loyalty accounts, and
// a batch of sample transactions run through the real compose + commit
// path.
package main

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"os"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/averden/stationledger/internal/app"
	"github.com/averden/stationledger/internal/domain/inventory"
	"github.com/averden/stationledger/internal/domain/loyalty"
	"github.com/averden/stationledger/internal/domain/product"
	"github.com/averden/stationledger/internal/domain/sale"
	"github.com/averden/stationledger/internal/ledger"
	"github.com/averden/stationledger/internal/storage/postgres"
)

func main() {
	sdkapp.Run(func(ctx context.Context, lg *zap.Logger, m *sdkapp.Telemetry) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		return run(zctx.Base(ctx, lg), lg, cfg)
	})
}

// fuelPrices are per-gallon pump prices (tax inclusive) per grade.
var fuelPrices = map[string]string{
	sale.FuelRegular:  "3.59",
	sale.FuelMidgrade: "3.89",
	sale.FuelPremium:  "4.09",
	sale.FuelDiesel:   "4.19",
}

// services are the flat-charge offerings at the station bay.
var services = []struct {
	name  string
	price string
}{
	{"Oil Change", "49.99"},
	{"Car Wash", "12.00"},
	{"Tire Rotation", "29.99"},
	{"State Inspection", "35.00"},
}

var defaultProducts = []product.Product{
	{ID: "prod-coffee", SKU: "BEV-001", Name: "Coffee", Price: decimal.RequireFromString("2.99"), Category: "beverages"},
	{ID: "prod-soda", SKU: "BEV-002", Name: "Soda 20oz", Price: decimal.RequireFromString("2.19"), Category: "beverages"},
	{ID: "prod-chips", SKU: "SNK-001", Name: "Chips", Price: decimal.RequireFromString("3.49"), Category: "snacks"},
	{ID: "prod-candy", SKU: "SNK-002", Name: "Candy Bar", Price: decimal.RequireFromString("1.89"), Category: "snacks"},
	{ID: "prod-washer", SKU: "AUT-001", Name: "Washer Fluid", Price: decimal.RequireFromString("4.99"), Category: "automotive"},
}

var customers = []string{"cust-1", "cust-2", "cust-3", "cust-4", "cust-5"}

var employees = []string{"emp-1", "emp-2", "emp-3"}

func run(ctx context.Context, lg *zap.Logger, cfg *app.Config) error {
	taxRate, err := cfg.TaxRateDecimal()
	if err != nil {
		return err
	}

	lg.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	stations := postgres.NewStationRepository(pool)
	tanks := postgres.NewTankRepository(pool)
	products := postgres.NewProductRepository(pool)
	accounts := postgres.NewAccountRepository(pool)

	if err := seedStation(ctx, lg, cfg.StationID, stations, tanks); err != nil {
		return errors.Wrap(err, "seed station")
	}
	if err := seedProducts(ctx, lg, cfg.Seed.ProductsFile, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	for _, c := range customers {
		if err := accounts.Enroll(ctx, c); err != nil {
			return errors.Wrap(err, "enroll customer")
		}
	}
	lg.Info("enrolled loyalty accounts", zap.Int("count", len(customers)))

	coordinator := ledger.NewCoordinator(postgres.NewStore(pool))
	if err := seedTransactions(ctx, lg, cfg, taxRate, products, coordinator); err != nil {
		return errors.Wrap(err, "seed transactions")
	}

	lg.Info("seed completed")
	return nil
}

func seedStation(ctx context.Context, lg *zap.Logger, stationID string, stations *postgres.StationRepository, tanks *postgres.TankRepository) error {
	err := stations.Upsert(ctx, postgres.Station{
		ID:      stationID,
		Name:    "Northgate Fuel & Go",
		Address: "1480 Northgate Blvd",
	})
	if err != nil {
		return err
	}

	seedTanks := []inventory.FuelTank{
		{StationRef: stationID, FuelType: sale.FuelRegular, CurrentLevel: dec("9500"), Capacity: dec("12000"), MinimumLevel: dec("2000")},
		{StationRef: stationID, FuelType: sale.FuelMidgrade, CurrentLevel: dec("4200"), Capacity: dec("8000"), MinimumLevel: dec("1500")},
		{StationRef: stationID, FuelType: sale.FuelPremium, CurrentLevel: dec("3800"), Capacity: dec("8000"), MinimumLevel: dec("1500")},
		{StationRef: stationID, FuelType: sale.FuelDiesel, CurrentLevel: dec("6700"), Capacity: dec("10000"), MinimumLevel: dec("2000")},
	}
	for _, t := range seedTanks {
		if err := tanks.Seed(ctx, t); err != nil {
			return err
		}
	}

	lg.Info("seeded station", zap.String("station", stationID), zap.Int("tanks", len(seedTanks)))
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, productsFile string, repo *postgres.ProductRepository) error {
	catalog := defaultProducts
	if data, err := os.ReadFile(productsFile); err == nil {
		var fromFile []productJSON
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return errors.Wrapf(err, "parse %s", productsFile)
		}
		catalog = make([]product.Product, len(fromFile))
		for i, p := range fromFile {
			catalog[i] = product.Product{ID: p.ID, SKU: p.SKU, Name: p.Name, Price: p.Price, Category: p.Category}
		}
		lg.Info("loaded products file", zap.String("path", productsFile), zap.Int("count", len(catalog)))
	}

	for _, p := range catalog {
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}
	}
	lg.Info("seeded products", zap.Int("count", len(catalog)))
	return nil
}

type productJSON struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

func seedTransactions(
	ctx context.Context,
	lg *zap.Logger,
	cfg *app.Config,
	taxRate decimal.Decimal,
	products *postgres.ProductRepository,
	coordinator *ledger.Coordinator,
) error {
	seed := cfg.Seed.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	catalog, err := products.List(ctx)
	if err != nil {
		return err
	}
	rates := loyalty.DefaultRates()

	committed := 0
	for i := 0; i < cfg.Seed.Transactions; i++ {
		t, err := randomTransaction(rng, cfg, taxRate, catalog, rates)
		if err != nil {
			return err
		}
		if _, err := coordinator.Commit(ctx, t); err != nil {
			// Tanks can legitimately run dry mid-seed.
			var short *inventory.InsufficientInventoryError
			if errors.As(err, &short) {
				lg.Warn("skipping sample sale", zap.Error(err))
				continue
			}
			return err
		}
		committed++
	}

	lg.Info("seeded transactions", zap.Int("committed", committed), zap.Int64("rand_seed", seed))
	return nil
}

func randomTransaction(
	rng *rand.Rand,
	cfg *app.Config,
	taxRate decimal.Decimal,
	catalog []product.Product,
	rates loyalty.Rates,
) (*sale.Transaction, error) {
	var (
		kind  sale.Kind
		items []sale.LineItem
	)

	switch rng.IntN(3) {
	case 0:
		kind = sale.KindFuel
		grades := []string{sale.FuelRegular, sale.FuelMidgrade, sale.FuelPremium, sale.FuelDiesel}
		grade := grades[rng.IntN(len(grades))]
		qty := decimal.NewFromInt(int64(5 + rng.IntN(15))).Add(decimal.NewFromInt(int64(rng.IntN(100))).Div(decimal.NewFromInt(100)))
		item, err := sale.BuildItem(kind, sale.ItemParams{
			FuelType:  grade,
			Quantity:  qty,
			UnitPrice: decimal.RequireFromString(fuelPrices[grade]),
		})
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	case 1:
		kind = sale.KindProduct
		for n := 1 + rng.IntN(3); n > 0; n-- {
			p := catalog[rng.IntN(len(catalog))]
			item, err := sale.BuildItem(kind, sale.ItemParams{
				Name:       p.Name,
				ProductRef: p.ID,
				Quantity:   decimal.NewFromInt(int64(1 + rng.IntN(3))),
				UnitPrice:  p.Price,
			})
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	default:
		kind = sale.KindService
		svc := services[rng.IntN(len(services))]
		item, err := sale.BuildItem(kind, sale.ItemParams{
			Name:      svc.name,
			UnitPrice: decimal.RequireFromString(svc.price),
		})
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	t, err := sale.Compose(kind, items, taxRate, rates)
	if err != nil {
		return nil, err
	}

	// Everything starts paid except services, which stay pending with
	// the configured probability (invoiced later).
	t.PaymentStatus = sale.StatusPaid
	if kind == sale.KindService && rng.IntN(100) < cfg.Seed.PendingPercent {
		t.PaymentStatus = sale.StatusPending
	}

	methods := []sale.PaymentMethod{sale.MethodCash, sale.MethodCard, sale.MethodMobile}
	t.PaymentMethod = methods[rng.IntN(len(methods))]
	t.StationRef = cfg.StationID
	t.EmployeeRef = employees[rng.IntN(len(employees))]
	if rng.IntN(100) < 70 {
		t.CustomerRef = customers[rng.IntN(len(customers))]
	}
	return t, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
