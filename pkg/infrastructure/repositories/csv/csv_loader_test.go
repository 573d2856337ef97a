package csv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/memory"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

var scenarioFiles = map[string]string{
	LinesFile: `line_id,name,daily_capacity,operator_count,active
L1,Sewing 1,100,10,true
L2,Sewing 2,80,8,false
`,
	HolidaysFile: `date,scope,description
2025-06-12,global,Founders day
2025-06-20,L1;L2,Maintenance
`,
	RampUpPlansFile: `plan_id,name,working_day,efficiency_percent
RU-STD,Standard,2,70
RU-STD,Standard,1,50
RU-STD,Standard,final,90
`,
	OrdersFile: `order_id,po_number,style_id,order_quantity,smv
A,PO-1,ST-1,250,20.5
B,PO-2,ST-2,150,18
`,
}

func TestLoadDir(t *testing.T) {
	dir := writeFiles(t, scenarioFiles)

	s, err := NewLoader().LoadDir(dir)
	require.NoError(t, err)

	require.Len(t, s.Lines, 2)
	assert.Equal(t, entities.Quantity(100), s.Lines[0].DailyCapacity)
	assert.False(t, s.Lines[1].Active)

	require.Len(t, s.Holidays, 2)
	assert.True(t, s.Holidays[0].Global)
	assert.Equal(t, []entities.LineID{"L1", "L2"}, s.Holidays[1].LineIDs)

	require.Len(t, s.RampUpPlans, 1)
	plan := s.RampUpPlans[0]
	assert.Equal(t, 1, plan.Steps[0].WorkingDay)
	assert.True(t, plan.EfficiencyFor(2).Equal(decimal.NewFromInt(70)))
	assert.True(t, plan.EfficiencyFor(9).Equal(decimal.NewFromInt(90)))

	require.Len(t, s.Orders, 2)
	assert.True(t, s.Orders[0].SMV.Equal(decimal.RequireFromString("20.5")))
	assert.Equal(t, entities.Pending, s.Orders[1].Status)
}

func TestLoadDir_OptionalFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		LinesFile:  scenarioFiles[LinesFile],
		OrdersFile: scenarioFiles[OrdersFile],
	})

	s, err := NewLoader().LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, s.Holidays)
	assert.Empty(t, s.RampUpPlans)
}

func TestLoader_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		file  string
		body  string
		load  func(l *Loader, path string) error
		match string
	}{
		{
			name:  "header mismatch",
			file:  LinesFile,
			body:  "id,name,capacity,operators,active\nL1,x,1,1,true\n",
			load:  func(l *Loader, p string) error { _, err := l.LoadLines(p); return err },
			match: "header mismatch",
		},
		{
			name:  "no data rows",
			file:  OrdersFile,
			body:  "order_id,po_number,style_id,order_quantity,smv\n",
			load:  func(l *Loader, p string) error { _, err := l.LoadOrders(p); return err },
			match: "at least one data row",
		},
		{
			name:  "bad quantity",
			file:  OrdersFile,
			body:  "order_id,po_number,style_id,order_quantity,smv\nA,PO,ST,lots,20\n",
			load:  func(l *Loader, p string) error { _, err := l.LoadOrders(p); return err },
			match: "row 2: invalid order_quantity",
		},
		{
			name:  "zero quantity",
			file:  OrdersFile,
			body:  "order_id,po_number,style_id,order_quantity,smv\nA,PO,ST,0,20\n",
			load:  func(l *Loader, p string) error { _, err := l.LoadOrders(p); return err },
			match: "quantity must be positive",
		},
		{
			name:  "bad holiday date",
			file:  HolidaysFile,
			body:  "date,scope,description\n12/06/2025,global,x\n",
			load:  func(l *Loader, p string) error { _, err := l.LoadHolidays(p); return err },
			match: "invalid date",
		},
		{
			name:  "missing final efficiency",
			file:  RampUpPlansFile,
			body:  "plan_id,name,working_day,efficiency_percent\nRU,x,1,50\n",
			load:  func(l *Loader, p string) error { _, err := l.LoadRampUpPlans(p); return err },
			match: "no final efficiency",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{tc.file: tc.body})
			err := tc.load(NewLoader(), filepath.Join(dir, tc.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.match)
		})
	}
}

func TestImport(t *testing.T) {
	s, err := NewLoader().LoadDir(writeFiles(t, scenarioFiles))
	require.NoError(t, err)

	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, Import(ctx, store, s))

	line, err := store.GetLine(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Sewing 1", line.Name)

	holidays, err := store.GetHolidays(ctx, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, holidays, 1)

	order, err := store.GetOrder(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.Version)

	// importing the same orders twice is refused
	assert.Error(t, Import(ctx, store, &Scenario{Orders: s.Orders}))
}
