package commands

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	csvrepo "github.com/vsinha/lineplan/pkg/infrastructure/repositories/csv"
)

// GenerateConfig holds configuration for scenario generation
type GenerateConfig struct {
	Lines     int       // number of production lines
	Orders    int       // number of pending orders
	Holidays  int       // number of holidays spread over the first quarter
	StartDate time.Time // first day holidays may fall on
	OutputDir string
	Seed      int64 // zero picks a time based seed
}

// Generator writes a random but reproducible CSV scenario
type Generator struct {
	config GenerateConfig
	rand   *rand.Rand
}

// NewGenerator creates a generator; equal seeds give equal scenarios
func NewGenerator(config GenerateConfig) *Generator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		config: config,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// Run writes lines.csv, holidays.csv, ramp_up_plans.csv and orders.csv
func (g *Generator) Run() error {
	if g.config.Lines < 1 || g.config.Orders < 1 {
		return fmt.Errorf("need at least one line and one order")
	}
	if err := os.MkdirAll(g.config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []struct {
		file string
		rows func() [][]string
	}{
		{csvrepo.LinesFile, g.lines},
		{csvrepo.HolidaysFile, g.holidays},
		{csvrepo.RampUpPlansFile, g.rampUpPlans},
		{csvrepo.OrdersFile, g.orders},
	}
	for _, step := range steps {
		if err := writeCSV(filepath.Join(g.config.OutputDir, step.file), step.rows()); err != nil {
			return fmt.Errorf("failed to generate %s: %w", step.file, err)
		}
	}
	return nil
}

// lines draws capacities between 300 and 1800 pieces a day; roughly one line
// in ten is inactive, never the first
func (g *Generator) lines() [][]string {
	rows := [][]string{{"line_id", "name", "daily_capacity", "operator_count", "active"}}
	for i := 1; i <= g.config.Lines; i++ {
		operators := 20 + g.rand.Intn(41)
		capacity := operators * (15 + g.rand.Intn(16))
		active := i == 1 || g.rand.Float32() >= 0.1
		rows = append(rows, []string{
			fmt.Sprintf("L%02d", i),
			fmt.Sprintf("Sewing line %d", i),
			strconv.Itoa(capacity),
			strconv.Itoa(operators),
			strconv.FormatBool(active),
		})
	}
	return rows
}

func (g *Generator) holidays() [][]string {
	rows := [][]string{{"date", "scope", "description"}}
	start := g.config.StartDate
	if start.IsZero() {
		start = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	}
	seen := make(map[string]bool)
	for i := 0; i < g.config.Holidays; i++ {
		day := start.AddDate(0, 0, g.rand.Intn(90))
		date := day.Format("2006-01-02")
		if seen[date] {
			continue
		}
		seen[date] = true

		if g.rand.Float32() < 0.7 {
			rows = append(rows, []string{date, "global", fmt.Sprintf("Public holiday %d", i+1)})
			continue
		}
		line := fmt.Sprintf("L%02d", 1+g.rand.Intn(g.config.Lines))
		rows = append(rows, []string{date, line, "Line maintenance"})
	}
	return rows
}

// rampUpPlans writes two fixed learning curves so scenarios can exercise the
// ramp-up method without extra flags
func (g *Generator) rampUpPlans() [][]string {
	return [][]string{
		{"plan_id", "name", "working_day", "efficiency_percent"},
		{"RU-STD", "Standard style change", "1", "50"},
		{"RU-STD", "Standard style change", "2", "70"},
		{"RU-STD", "Standard style change", "3", "85"},
		{"RU-STD", "Standard style change", "final", "95"},
		{"RU-NEW", "New style", "1", "30"},
		{"RU-NEW", "New style", "2", "45"},
		{"RU-NEW", "New style", "3", "60"},
		{"RU-NEW", "New style", "4", "75"},
		{"RU-NEW", "New style", "final", "90"},
	}
}

// orders draws quantities between 500 and 10000 in steps of 50
func (g *Generator) orders() [][]string {
	rows := [][]string{{"order_id", "po_number", "style_id", "order_quantity", "smv"}}
	styles := 1 + g.config.Orders/4
	for i := 1; i <= g.config.Orders; i++ {
		quantity := 500 + 50*g.rand.Intn(191)
		smv := 8 + g.rand.Float64()*32
		rows = append(rows, []string{
			fmt.Sprintf("ORD-%05d", i),
			fmt.Sprintf("PO-%06d", 100000+g.rand.Intn(900000)),
			fmt.Sprintf("ST-%03d", 1+g.rand.Intn(styles)),
			strconv.Itoa(quantity),
			strconv.FormatFloat(smv, 'f', 2, 64),
		})
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func newGenerateCommand() *cobra.Command {
	var config GenerateConfig
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a random CSV scenario for import",
		Example: `  # small reproducible scenario
  lineplan generate --lines 3 --orders 20 --seed 42 --out ./scenario

  # larger load test
  lineplan generate --lines 40 --orders 5000 --holidays 12 --out ./large`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NewGenerator(config).Run(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario with %d lines and %d orders written to %s\n",
				config.Lines, config.Orders, config.OutputDir)
			return nil
		},
	}
	cmd.Flags().IntVar(&config.Lines, "lines", 3, "number of production lines")
	cmd.Flags().IntVar(&config.Orders, "orders", 20, "number of pending orders")
	cmd.Flags().IntVar(&config.Holidays, "holidays", 4, "number of holidays")
	cmd.Flags().Int64Var(&config.Seed, "seed", 0, "random seed for reproducible output")
	cmd.Flags().StringVar(&config.OutputDir, "out", "", "output directory")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
