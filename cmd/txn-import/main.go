// Command txn-import loads historical transaction archives (gzipped
// JSON lines) into the ledger. Records are re-composed through the real
// pricing path, so archives with drifted totals are rejected rather
// than imported verbatim. Inventory and loyalty side effects are NOT
// re-applied: history already happened to the tanks and balances.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/averden/stationledger/internal/domain/loyalty"
	"github.com/averden/stationledger/internal/domain/sale"
	"github.com/averden/stationledger/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.0001
	progressEvery = 10_000
)

// rawRecord is one archive line before validation.
type rawRecord struct {
	ID            string
	Kind          string
	Date          time.Time
	PaymentMethod string
	PaymentStatus string
	Redeemed      int64
	CustomerRef   string
	EmployeeRef   string
	StationRef    string
	Notes         string
	Items         []rawItem
}

type rawItem struct {
	FuelType   string
	Name       string
	ProductRef string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

func main() {
	var (
		databaseURL string
		taxRateStr  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&taxRateStr, "tax-rate", "0.06", "sales tax rate used to re-compose records")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one archive file argument is required")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	taxRate, err := decimal.NewFromString(taxRateStr)
	if err != nil || taxRate.IsNegative() {
		slog.Error("invalid tax rate", slog.String("tax_rate", taxRateStr))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, taxRate, files); err != nil {
		slog.Error("transaction import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("transaction import completed successfully")
}

func run(ctx context.Context, databaseURL string, taxRate decimal.Decimal, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewTransactionRepository(pool)
	records := make(chan rawRecord, 256)

	// Cancel producers if the consumer bails out early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	// Producers: one goroutine per archive.
	for _, f := range files {
		g.Go(scanArchive(ctx, f, records))
	}

	// Single consumer owns the bloom filter and the writes, so the
	// filter needs no locking.
	var stats importStats
	consumer := func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		rates := loyalty.DefaultRates()

		for rec := range records {
			if err := importRecord(ctx, pool, repo, filter, rates, taxRate, rec, &stats); err != nil {
				return err
			}
			if total := stats.imported + stats.duplicates + stats.invalid; total%progressEvery == 0 {
				slog.Info("import progress",
					slog.Int("imported", stats.imported),
					slog.Int("duplicates", stats.duplicates),
					slog.Int("invalid", stats.invalid),
				)
			}
		}
		return nil
	}

	go func() {
		_ = g.Wait()
		close(records)
	}()

	if err := consumer(); err != nil {
		return err
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("import finished",
		slog.Int("imported", stats.imported),
		slog.Int("duplicates", stats.duplicates),
		slog.Int("invalid", stats.invalid),
	)
	return nil
}

type importStats struct {
	imported   int
	duplicates int
	invalid    int
}

func importRecord(
	ctx context.Context,
	pool *pgxpool.Pool,
	repo *postgres.TransactionRepository,
	filter *bloom.BloomFilter,
	rates loyalty.Rates,
	taxRate decimal.Decimal,
	rec rawRecord,
	stats *importStats,
) error {
	if rec.ID == "" {
		stats.invalid++
		return nil
	}

	// The bloom filter screens ids cheaply; only a maybe-hit pays for
	// an exact database lookup.
	if filter.TestOrAddString(rec.ID) {
		exists, err := transactionExists(ctx, pool, rec.ID)
		if err != nil {
			return err
		}
		if exists {
			stats.duplicates++
			return nil
		}
	}

	t, err := composeRecord(rec, taxRate, rates)
	if err != nil {
		slog.Warn("skipping invalid record", slog.String("id", rec.ID), slog.String("error", err.Error()))
		stats.invalid++
		return nil
	}

	if err := repo.Create(ctx, t); err != nil {
		return errors.Wrapf(err, "import transaction %s", rec.ID)
	}
	stats.imported++
	return nil
}

func transactionExists(ctx context.Context, pool *pgxpool.Pool, id string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "check transaction %s", id)
	}
	return exists, nil
}

// composeRecord rebuilds the transaction through the pricing path so the
// stored totals always satisfy the ledger invariants.
func composeRecord(rec rawRecord, taxRate decimal.Decimal, rates loyalty.Rates) (*sale.Transaction, error) {
	kind := sale.Kind(rec.Kind)
	items := make([]sale.LineItem, 0, len(rec.Items))
	for _, it := range rec.Items {
		item, err := sale.BuildItem(kind, sale.ItemParams{
			FuelType:   it.FuelType,
			Name:       it.Name,
			ProductRef: it.ProductRef,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
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

	t.ID = rec.ID
	t.Date = rec.Date
	t.PaymentMethod = sale.PaymentMethod(rec.PaymentMethod)
	if rec.PaymentStatus != "" {
		t.PaymentStatus = sale.PaymentStatus(rec.PaymentStatus)
	}
	t.LoyaltyPointsRedeemed = rec.Redeemed
	t.CustomerRef = rec.CustomerRef
	t.EmployeeRef = rec.EmployeeRef
	t.StationRef = rec.StationRef
	t.Notes = rec.Notes

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// scanArchive streams one gzipped JSONL archive into the records channel.
func scanArchive(ctx context.Context, path string, records chan<- rawRecord) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)

		var line int
		for scanner.Scan() {
			line++
			if len(scanner.Bytes()) == 0 {
				continue
			}
			rec, err := parseRecord(scanner.Bytes())
			if err != nil {
				return errors.Wrapf(err, "parse %s line %d", path, line)
			}
			select {
			case records <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("archive scanned", slog.String("path", path), slog.Int("lines", line))
		return nil
	}
}

// parseRecord decodes one archive line. Quantities and prices may be
// JSON strings or numbers; both enter as exact decimals.
func parseRecord(data []byte) (rawRecord, error) {
	var rec rawRecord
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			rec.ID, err = d.Str()
		case "kind":
			rec.Kind, err = d.Str()
		case "date":
			var s string
			if s, err = d.Str(); err == nil {
				rec.Date, err = time.Parse(time.RFC3339, s)
			}
		case "payment_method":
			rec.PaymentMethod, err = d.Str()
		case "payment_status":
			rec.PaymentStatus, err = d.Str()
		case "loyalty_points_redeemed":
			rec.Redeemed, err = d.Int64()
		case "customer_ref":
			rec.CustomerRef, err = d.Str()
		case "employee_ref":
			rec.EmployeeRef, err = d.Str()
		case "station_ref":
			rec.StationRef, err = d.Str()
		case "notes":
			rec.Notes, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := parseItem(d)
				if err != nil {
					return err
				}
				rec.Items = append(rec.Items, item)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return rawRecord{}, err
	}
	return rec, nil
}

func parseItem(d *jx.Decoder) (rawItem, error) {
	var item rawItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "fuel_type":
			item.FuelType, err = d.Str()
		case "name":
			item.Name, err = d.Str()
		case "product_ref":
			item.ProductRef, err = d.Str()
		case "quantity":
			item.Quantity, err = decimalField(d)
		case "unit_price":
			item.UnitPrice, err = decimalField(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

func decimalField(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	num, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(num.String())
}
