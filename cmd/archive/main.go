package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/orderdesk/api/internal/config"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/metrics"
	"github.com/orderdesk/api/internal/pricing"
	"github.com/orderdesk/api/internal/service"
)

const usage = `usage:
  archive list          list archived batches, newest first
  archive show -id N    print the orders of batch N`

type batchReader interface {
	ListBatches(ctx context.Context) ([]service.ArchiveBatch, error)
	GetBatch(ctx context.Context, id int64) (service.ArchiveBatch, error)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "archive", Format: "console", Output: os.Stderr})
	ctx := context.Background()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logg.Error(ctx, "unable to connect to database", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := service.NewArchiveService(pool, func(db database.DBTX) service.ArchiveStore {
		return database.New(db)
	}, logger.Nop(), metrics.NewRegistry())

	if err := run(ctx, svc, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		logg.Error(ctx, "archive command failed", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, svc batchReader, args []string, out io.Writer) error {
	switch args[0] {
	case "list":
		batches, err := svc.ListBatches(ctx)
		if err != nil {
			return err
		}
		return renderBatches(out, batches)

	case "show":
		fs := flag.NewFlagSet("show", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.Int64("id", 0, "batch id")
		if err := fs.Parse(args[1:]); err != nil || *id <= 0 {
			return errUsage
		}
		batch, err := svc.GetBatch(ctx, *id)
		if err != nil {
			return err
		}
		return renderBatch(out, batch)
	}
	return errUsage
}

func renderBatches(out io.Writer, batches []service.ArchiveBatch) error {
	table := tablewriter.NewWriter(out)
	table.Header("Batch", "Order code", "Created", "Orders", "Total USD", "Total qty", "Total profit")
	for _, b := range batches {
		if err := table.Append([]string{
			strconv.FormatInt(b.ID, 10),
			b.OrderCode,
			b.CreatedAt.Local().Format("02/01/2006 15:04"),
			strconv.Itoa(len(b.Orders)),
			b.Totals.USD.StringFixed(pricing.Places),
			strconv.FormatInt(b.Totals.Quantity, 10),
			b.Totals.Profit.StringFixed(pricing.Places),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderBatch(out io.Writer, b service.ArchiveBatch) error {
	fmt.Fprintf(out, "Batch %d  %s  %s\n", b.ID, b.OrderCode, b.CreatedAt.Local().Format("02/01/2006 15:04"))

	table := tablewriter.NewWriter(out)
	table.Header("Date", "User", "Phone", "Title", "Page", "USD", "Qty", "Customer price", "Deposit", "Remaining", "Profit")
	for _, r := range b.Orders {
		if err := table.Append([]string{
			r.Date,
			r.User,
			r.Phone,
			r.Title,
			r.PageName,
			r.UsdPrice.StringFixed(pricing.Places),
			strconv.Itoa(int(r.Qty)),
			r.CustomerPrice.StringFixed(pricing.Places),
			r.Deposit.StringFixed(pricing.Places),
			r.Remaining.StringFixed(pricing.Places),
			r.Profit.StringFixed(pricing.Places),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Total USD %s  qty %d  profit %s\n",
		b.Totals.USD.StringFixed(pricing.Places),
		b.Totals.Quantity,
		b.Totals.Profit.StringFixed(pricing.Places))
	return nil
}
