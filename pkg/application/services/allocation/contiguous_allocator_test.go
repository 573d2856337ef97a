package allocation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/vsinha/lineplan/pkg/application/services/testing"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

func flatRequest(id string, qty entities.Quantity, startOffset int) Request {
	return Request{
		OrderID:   entities.OrderID(id),
		LineID:    "L1",
		Quantity:  qty,
		StartDate: testhelpers.Day(startOffset),
		Method:    entities.Flat,
	}
}

func TestAllocate_ScenarioA(t *testing.T) {
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)}, nil)

	result, err := NewAllocator(nil).Allocate(snapshot, flatRequest("A", 250, 0))
	require.NoError(t, err)

	expected := entities.DailyPlan{
		{Date: testhelpers.Day(0), Quantity: 100},
		{Date: testhelpers.Day(1), Quantity: 100},
		{Date: testhelpers.Day(2), Quantity: 50},
	}
	assert.Equal(t, expected, result.DailyPlan)
	assert.Equal(t, testhelpers.Day(2), result.EndDate)
	assert.True(t, result.Complete())
}

func TestAllocate_ScenarioB_HolidayAndWeekendSkipped(t *testing.T) {
	friday := &entities.Holiday{Date: testhelpers.Day(4), Global: true}
	snapshot := testhelpers.NewSnapshot(
		[]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)},
		[]*entities.Holiday{friday},
	)

	result, err := NewAllocator(nil).Allocate(snapshot, flatRequest("B", 150, 3))
	require.NoError(t, err)

	expected := entities.DailyPlan{
		{Date: testhelpers.Day(3), Quantity: 100},
		{Date: testhelpers.Day(7), Quantity: 50},
	}
	assert.Equal(t, expected, result.DailyPlan)
	for _, day := range []int{4, 5, 6} {
		assert.Zero(t, result.DailyPlan.Get(testhelpers.Day(day)))
	}
}

func TestAllocate_StartOnWeekendMovesToMonday(t *testing.T) {
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)}, nil)

	result, err := NewAllocator(nil).Allocate(snapshot, flatRequest("W", 80, 5))
	require.NoError(t, err)
	assert.Equal(t, testhelpers.Day(7), result.StartDate)
	assert.Equal(t, testhelpers.Day(7), result.EndDate)
}

func TestAllocate_FillsAroundExistingWork(t *testing.T) {
	existing := testhelpers.Schedule(testhelpers.MustCreateOrder("X", 130, 20), "L1", testhelpers.Monday, 100, 30)
	snapshot := testhelpers.NewSnapshot(
		[]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)},
		nil,
		existing,
	)

	result, err := NewAllocator(nil).Allocate(snapshot, flatRequest("N", 150, 0))
	require.NoError(t, err)

	expected := entities.DailyPlan{
		{Date: testhelpers.Day(1), Quantity: 70},
		{Date: testhelpers.Day(2), Quantity: 80},
	}
	assert.Equal(t, expected, result.DailyPlan)
	assert.Equal(t, testhelpers.Day(1), result.StartDate)
}

func TestAllocate_Idempotent(t *testing.T) {
	existing := testhelpers.Schedule(testhelpers.MustCreateOrder("X", 130, 20), "L1", testhelpers.Monday, 100, 30)
	snapshot := testhelpers.NewSnapshot(
		[]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)},
		[]*entities.Holiday{{Date: testhelpers.Day(3), Global: true}},
		existing,
	)
	allocator := NewAllocator(nil)

	first, err := allocator.Allocate(snapshot, flatRequest("N", 420, 0))
	require.NoError(t, err)
	second, err := allocator.Allocate(snapshot, flatRequest("N", 420, 0))
	require.NoError(t, err)

	assert.Equal(t, first.DailyPlan, second.DailyPlan)
	assert.Equal(t, entities.Quantity(130), snapshot.Used("L1", testhelpers.Monday, "")+snapshot.Used("L1", testhelpers.Day(1), ""))
}

func TestAllocate_FirstDayOverride(t *testing.T) {
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)}, nil)
	override := entities.Quantity(30)

	req := flatRequest("O", 150, 0)
	req.FirstDayOverride = &override
	result, err := NewAllocator(nil).Allocate(snapshot, req)
	require.NoError(t, err)

	expected := entities.DailyPlan{
		{Date: testhelpers.Day(0), Quantity: 30},
		{Date: testhelpers.Day(1), Quantity: 100},
		{Date: testhelpers.Day(2), Quantity: 20},
	}
	assert.Equal(t, expected, result.DailyPlan)

	// an override larger than the formula leaves the formula in charge
	big := entities.Quantity(500)
	req.FirstDayOverride = &big
	result, err = NewAllocator(nil).Allocate(snapshot, req)
	require.NoError(t, err)
	assert.Equal(t, entities.Quantity(100), result.DailyPlan[0].Quantity)
}

func TestAllocate_RampUpCurve(t *testing.T) {
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 1000, 10)}, nil)
	snapshot.AddRampUpPlan(testhelpers.MustCreateRampUpPlan("RU", map[int]int64{1: 50, 2: 70}, 90))

	result, err := NewAllocator(nil).Allocate(snapshot, Request{
		OrderID:      "R",
		LineID:       "L1",
		Quantity:     800,
		StartDate:    testhelpers.Day(3),
		Method:       entities.RampUp,
		SMV:          decimal.NewFromInt(20),
		RampUpPlanID: "RU",
	})
	require.NoError(t, err)

	// Thu 135, Fri 189, weekend skipped, Mon 243, Tue 233
	expected := entities.DailyPlan{
		{Date: testhelpers.Day(3), Quantity: 135},
		{Date: testhelpers.Day(4), Quantity: 189},
		{Date: testhelpers.Day(7), Quantity: 243},
		{Date: testhelpers.Day(8), Quantity: 233},
	}
	assert.Equal(t, expected, result.DailyPlan)
}

func TestAllocate_HorizonExceededReturnsPartial(t *testing.T) {
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 1, 1)}, nil)

	result, err := NewAllocator(nil).Allocate(snapshot, flatRequest("H", 1000, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrPlanningHorizonExceeded))
	require.NotNil(t, result)
	assert.False(t, result.Complete())
	assert.Equal(t, entities.Quantity(1000)-result.DailyPlan.Total(), result.Shortfall)
	assert.LessOrEqual(t, entities.DaysBetween(testhelpers.Monday, result.EndDate), entities.HorizonDays)

	partial, ok := PartialAllocation(err)
	require.True(t, ok)
	assert.Same(t, result, partial)
}

func TestAllocate_NoAvailableCapacity(t *testing.T) {
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 0, 1)}, nil)

	result, err := NewAllocator(nil).Allocate(snapshot, flatRequest("Z", 10, 0))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, entities.ErrNoAvailableCapacity)

	_, ok := PartialAllocation(err)
	assert.False(t, ok)
}

func TestAllocate_InvalidRequests(t *testing.T) {
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)}, nil)
	allocator := NewAllocator(nil)

	_, err := allocator.Allocate(snapshot, flatRequest("Q", 0, 0))
	assert.Error(t, err)

	req := flatRequest("Q", 10, 0)
	req.LineID = "missing"
	_, err = allocator.Allocate(snapshot, req)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	req = flatRequest("Q", 10, 0)
	req.Method = entities.RampUp
	_, err = allocator.Allocate(snapshot, req)
	assert.ErrorIs(t, err, entities.ErrInvalidRampUpInputs)
}

func TestAllocate_NeverOversellsOrTouchesHolidays(t *testing.T) {
	holidays := []*entities.Holiday{
		{Date: testhelpers.Day(2), Global: true},
		{Date: testhelpers.Day(8), LineIDs: []entities.LineID{"L1"}},
	}
	snapshot := testhelpers.NewSnapshot([]*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)}, holidays)
	allocator := NewAllocator(nil)

	quantities := []entities.Quantity{250, 70, 330, 45, 120, 95}
	for i, qty := range quantities {
		order := testhelpers.MustCreateOrder(string(rune('A'+i)), qty, 20)
		result, err := allocator.Allocate(snapshot, Request{
			OrderID:   order.ID,
			LineID:    "L1",
			Quantity:  qty,
			StartDate: testhelpers.Day(i),
			Method:    entities.Flat,
		})
		require.NoError(t, err)
		assert.Equal(t, qty, result.DailyPlan.Total())
		for _, day := range result.DailyPlan {
			assert.True(t, snapshot.Calendar().IsWorkingDay("L1", day.Date), "planned on %s", entities.FormatDate(day.Date))
		}

		order.Status = entities.Scheduled
		order.Schedule = result.Schedule(entities.Flat, "")
		require.NoError(t, order.Validate())
		snapshot.PutOrder(order)
		require.NoError(t, snapshot.CheckInvariant("L1"))
	}
}
