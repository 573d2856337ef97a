package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	csvrepo "github.com/vsinha/lineplan/pkg/infrastructure/repositories/csv"
)

func init() {
	color.NoColor = true
}

var june9 = time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

func writeScenario(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		csvrepo.LinesFile: `line_id,name,daily_capacity,operator_count,active
L1,Sewing 1,100,10,true
`,
		csvrepo.HolidaysFile: `date,scope,description
2025-06-12,global,Founders day
`,
		csvrepo.RampUpPlansFile: `plan_id,name,working_day,efficiency_percent
RU-STD,Standard,1,50
RU-STD,Standard,final,90
`,
		csvrepo.OrdersFile: `order_id,po_number,style_id,order_quantity,smv
A,PO-1,ST-1,250,20
B,PO-2,ST-2,150,20
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func useMemory(t *testing.T) {
	t.Setenv("LINEPLAN_STORAGE_DRIVER", "memory")
	t.Setenv("LINEPLAN_REDIS_URL", "")
	t.Setenv("LINEPLAN_KAFKA_BROKERS", "")
}

func useSQLite(t *testing.T) {
	t.Setenv("LINEPLAN_STORAGE_DRIVER", "sqlite")
	t.Setenv("LINEPLAN_DATA_DIR", t.TempDir())
	t.Setenv("LINEPLAN_REDIS_URL", "")
	t.Setenv("LINEPLAN_KAFKA_BROKERS", "")
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSchedule_OneShotScenario(t *testing.T) {
	useMemory(t)
	dir := writeScenario(t)

	code, stdout, stderr := run(t, "--scenario", dir, "--format", "json",
		"schedule", "A", "--line", "L1", "--date", "2025-06-09")
	require.Equal(t, ExitOK, code, stderr)

	var result dto.ScheduleResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result), stdout)
	require.Len(t, result.Committed, 1)
	plan := result.Committed[0]
	assert.Equal(t, entities.OrderID("A"), plan.OrderID)
	assert.Equal(t, june9, plan.PlanStartDate)
	assert.Equal(t, june9.AddDate(0, 0, 2), plan.PlanEndDate)
	assert.Equal(t, entities.Quantity(250), plan.DailyPlan.Total())
}

func TestBatch_SkipsHoliday(t *testing.T) {
	useMemory(t)
	dir := writeScenario(t)

	code, stdout, stderr := run(t, "--scenario", dir, "--format", "csv",
		"batch", "A", "B", "--line", "L1", "--date", "2025-06-09")
	require.Equal(t, ExitOK, code, stderr)

	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"B", "L1", "2025-06-13", "2025-06-16"}, rows[2][:4])
}

func TestCommand_ArgumentErrors(t *testing.T) {
	useMemory(t)
	dir := writeScenario(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing date", []string{"schedule", "A", "--line", "L1"}},
		{"bad date", []string{"schedule", "A", "--line", "L1", "--date", "09/06/2025"}},
		{"bad policy", []string{"schedule", "A", "--line", "L1", "--date", "2025-06-09", "--policy", "sideways"}},
		{"bad decision", []string{"batch", "A", "--line", "L1", "--date", "2025-06-09", "--decide", "A=later"}},
		{"unknown format", []string{"--format", "xml", "show"}},
		{"weekend", []string{"schedule", "A", "--line", "L1", "--date", "2025-06-14"}},
		{"unknown order", []string{"schedule", "Z", "--line", "L1", "--date", "2025-06-09"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--scenario", dir}, tt.args...)
			code, _, stderr := run(t, args...)
			assert.Equal(t, ExitError, code)
			assert.Contains(t, stderr, "Error:")
		})
	}
}

func TestPersistentFlow(t *testing.T) {
	useSQLite(t)
	dir := writeScenario(t)

	code, stdout, stderr := run(t, "import", dir)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "Imported 1 lines, 1 holidays, 1 ramp-up plans, 2 orders")

	code, _, stderr = run(t, "schedule", "A", "--line", "L1", "--date", "2025-06-09")
	require.Equal(t, ExitOK, code, stderr)

	// B overlaps A and no policy was given
	code, stdout, _ = run(t, "schedule", "B", "--line", "L1", "--date", "2025-06-10")
	assert.Equal(t, ExitChoiceRequired, code)
	assert.Contains(t, stdout, "overlaps 1 scheduled orders")
	assert.Contains(t, stdout, "PO-1")

	code, stdout, stderr = run(t, "--format", "csv", "schedule", "B",
		"--line", "L1", "--date", "2025-06-10", "--policy", "insert_before")
	require.Equal(t, ExitOK, code, stderr)
	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "B", rows[1][0])
	assert.Equal(t, "A", rows[2][0])
	assert.Equal(t, "true", rows[2][6])

	code, stdout, stderr = run(t, "--format", "csv", "show", "--status", "scheduled")
	require.Equal(t, ExitOK, code, stderr)
	rows, err = csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	code, stdout, stderr = run(t, "unschedule", "A")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "released to pending")

	code, stdout, stderr = run(t, "--format", "json", "split", "A", "--quantity", "100")
	require.Equal(t, ExitOK, code, stderr)
	var split dto.SplitResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &split))
	require.Len(t, split.Children, 2)
	assert.Equal(t, entities.Quantity(100), split.Children[0].OrderQuantity)
	assert.Equal(t, entities.Quantity(150), split.Children[1].OrderQuantity)

	code, stdout, stderr = run(t, "--format", "csv", "capacity", "L1", "--from", "2025-06-09", "--to", "2025-06-13")
	require.Equal(t, ExitOK, code, stderr)
	rows, err = csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"2025-06-12", "false", "0", "0", "0"}, rows[4])

	gantt := filepath.Join(t.TempDir(), "plan.svg")
	code, _, stderr = run(t, "show", "--gantt", gantt)
	require.Equal(t, ExitOK, code, stderr)
	svg, err := os.ReadFile(gantt)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "B on L1")
}

func TestGenerate_ThenImport(t *testing.T) {
	useMemory(t)
	out := filepath.Join(t.TempDir(), "scenario")

	code, _, stderr := run(t, "generate", "--lines", "4", "--orders", "30", "--seed", "7", "--out", out)
	require.Equal(t, ExitOK, code, stderr)

	scenario, err := csvrepo.NewLoader().LoadDir(out)
	require.NoError(t, err)
	assert.Len(t, scenario.Lines, 4)
	assert.Len(t, scenario.Orders, 30)
	assert.Len(t, scenario.RampUpPlans, 2)
	assert.True(t, scenario.Lines[0].Active)

	code, _, stderr = run(t, "--scenario", out, "schedule", "ORD-00001",
		"--line", "L01", "--date", "2025-09-01", "--method", "ramp_up", "--plan", "RU-STD", "--policy", "insert_after")
	require.Equal(t, ExitOK, code, stderr)
}

func TestGenerate_IsReproducible(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	require.NoError(t, NewGenerator(GenerateConfig{Lines: 2, Orders: 5, Holidays: 3, Seed: 99, OutputDir: a}).Run())
	require.NoError(t, NewGenerator(GenerateConfig{Lines: 2, Orders: 5, Holidays: 3, Seed: 99, OutputDir: b}).Run())

	for _, name := range []string{csvrepo.LinesFile, csvrepo.HolidaysFile, csvrepo.OrdersFile} {
		x, err := os.ReadFile(filepath.Join(a, name))
		require.NoError(t, err)
		y, err := os.ReadFile(filepath.Join(b, name))
		require.NoError(t, err)
		assert.Equal(t, string(x), string(y), name)
	}
}
