// Command report печатает статистику продавца таблицами.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/report"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

type options struct {
	sellerID string
	cycle    report.Cycle
	months   int
	dsn      string
}

// statistics — методы report.Service, которые печатает команда.
type statistics interface {
	Revenue(ctx context.Context, sellerID string, cycle report.Cycle) (report.Comparison, error)
	OrderCount(ctx context.Context, sellerID string, cycle report.Cycle) (report.OrderCount, error)
	CustomerCount(ctx context.Context, sellerID string, cycle report.Cycle) (report.Comparison, error)
	MonthlyRevenue(ctx context.Context, sellerID string, months int) ([]report.MonthRevenue, error)
	Customers(ctx context.Context, sellerID string) (report.CustomerSummary, error)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	opts, err := parseFlags(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()
	orders, closeFn, err := openOrders(ctx, opts.dsn)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}
	defer closeFn()

	if err := render(ctx, os.Stdout, report.NewService(orders), opts); err != nil {
		log.WithError(err).Fatal("failed to build report")
	}
}

func parseFlags(fs *flag.FlagSet, args []string, lookup func(string) (string, bool)) (options, error) {
	var (
		opts  options
		cycle string
	)
	fs.StringVar(&opts.sellerID, "seller", "", "seller id")
	fs.StringVar(&cycle, "cycle", string(report.CycleMonth), "comparison cycle: year, month or week")
	fs.IntVar(&opts.months, "months", report.DefaultMonths, "months of monthly revenue")
	fs.StringVar(&opts.dsn, "dsn", "", "postgres DSN (fallback: MARKETPLACE_POSTGRES_DSN, empty memory store otherwise)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(opts.sellerID) == "" {
		return options{}, errors.New("-seller is required")
	}
	parsed, err := report.ParseCycle(cycle)
	if err != nil {
		return options{}, err
	}
	opts.cycle = parsed
	if opts.months <= 0 || opts.months > 24 {
		return options{}, fmt.Errorf("-months must be in 1..24, got %d", opts.months)
	}
	if opts.dsn == "" {
		opts.dsn, _ = lookup("MARKETPLACE_POSTGRES_DSN")
	}
	return opts, nil
}

func openOrders(ctx context.Context, dsn string) (domain.OrderRepository, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		log.Warn("no postgres DSN given, reporting over an empty memory store")
		return memory.NewStore().Orders(), func() {}, nil
	}
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return store.Orders(), func() { _ = store.Close() }, nil
}

func render(ctx context.Context, w io.Writer, stats statistics, opts options) error {
	revenue, err := stats.Revenue(ctx, opts.sellerID, opts.cycle)
	if err != nil {
		return fmt.Errorf("revenue: %w", err)
	}
	orders, err := stats.OrderCount(ctx, opts.sellerID, opts.cycle)
	if err != nil {
		return fmt.Errorf("order count: %w", err)
	}
	customers, err := stats.CustomerCount(ctx, opts.sellerID, opts.cycle)
	if err != nil {
		return fmt.Errorf("customer count: %w", err)
	}
	monthly, err := stats.MonthlyRevenue(ctx, opts.sellerID, opts.months)
	if err != nil {
		return fmt.Errorf("monthly revenue: %w", err)
	}
	summary, err := stats.Customers(ctx, opts.sellerID)
	if err != nil {
		return fmt.Errorf("customers: %w", err)
	}

	fmt.Fprintf(w, "Seller %s, cycle %s\n", opts.sellerID, opts.cycle)
	cycleTable := tablewriter.NewWriter(w)
	cycleTable.Header("Metric", "Current", "Previous", "Percentage")
	rows := [][]string{
		comparisonRow("revenue", revenue),
		comparisonRow("orders", orders.Comparison),
		{"order value", itoa(orders.CurrentCycleTotalPrice), itoa(orders.PreviousCycleTotalPrice), ""},
		comparisonRow("customers", customers),
	}
	for _, row := range rows {
		if err := cycleTable.Append(row[0], row[1], row[2], row[3]); err != nil {
			return err
		}
	}
	if err := cycleTable.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w, "Monthly revenue")
	monthTable := tablewriter.NewWriter(w)
	monthTable.Header("Month", "Revenue", "Orders")
	for _, m := range monthly {
		if err := monthTable.Append(m.Month, itoa(m.TotalRevenue), strconv.Itoa(m.TotalOrders)); err != nil {
			return err
		}
	}
	if err := monthTable.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w, "Customers")
	summaryTable := tablewriter.NewWriter(w)
	summaryTable.Header("Total", "Returning", "Average revenue")
	if err := summaryTable.Append(
		strconv.Itoa(summary.TotalCustomers),
		strconv.Itoa(summary.ReturningCustomers),
		strconv.FormatFloat(summary.AverageRevenue, 'f', 2, 64),
	); err != nil {
		return err
	}
	return summaryTable.Render()
}

func comparisonRow(name string, c report.Comparison) []string {
	return []string{name, itoa(c.CurrentCycle), itoa(c.PreviousCycle), itoa(c.Percentage) + "%"}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
