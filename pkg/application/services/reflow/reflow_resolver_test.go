package reflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/lineplan/pkg/application/services/allocation"
	"github.com/vsinha/lineplan/pkg/application/services/conflict"
	"github.com/vsinha/lineplan/pkg/application/services/lifecycle"
	"github.com/vsinha/lineplan/pkg/application/services/shared"
	testhelpers "github.com/vsinha/lineplan/pkg/application/services/testing"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

func newResolver(opts Options) *Resolver {
	allocator := allocation.NewAllocator(nil)
	return NewResolver(allocator, conflict.NewDetector(allocator), lifecycle.NewOrderLifecycle(nil), nil, opts)
}

func lineL1() []*entities.ProductionLine {
	return []*entities.ProductionLine{testhelpers.MustCreateLine("L1", 100, 10)}
}

func plan(pairs ...any) entities.DailyPlan {
	var out entities.DailyPlan
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, entities.DayAllocation{Date: testhelpers.June(pairs[i].(int)), Quantity: entities.Quantity(pairs[i+1].(int))})
	}
	return out
}

func TestResolve_NoConflicts(t *testing.T) {
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, testhelpers.MustCreateOrder("N", 250, 20))

	res, err := newResolver(Options{}).Resolve(snapshot, Placement{
		OrderID: "N", LineID: "L1", StartDate: testhelpers.June(9), Method: entities.Flat,
	})
	require.NoError(t, err)
	assert.Equal(t, Resolving, res.Machine.State())
	assert.Equal(t, plan(9, 100, 10, 100, 11, 50), res.Incoming.Allocation.DailyPlan)
	assert.Empty(t, res.Displaced)

	// input snapshot untouched, working snapshot updated
	assert.False(t, snapshot.Order("N").IsScheduled())
	assert.True(t, res.Snapshot.Order("N").IsScheduled())
	assert.Equal(t, entities.Quantity(100), res.Snapshot.Used("L1", testhelpers.June(9), ""))
}

func TestResolve_ScenarioC_InsertBefore(t *testing.T) {
	existing := testhelpers.Schedule(testhelpers.MustCreateOrder("X", 300, 20), "L1", testhelpers.June(10), 100, 100, 100)
	incoming := testhelpers.MustCreateOrder("N", 150, 20)
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, existing, incoming)
	resolver := newResolver(Options{})

	placement := Placement{OrderID: "N", LineID: "L1", StartDate: testhelpers.June(11), Method: entities.Flat}
	res, err := resolver.Resolve(snapshot, placement)
	var choice *ChoiceRequiredError
	require.True(t, errors.As(err, &choice))
	assert.ErrorIs(t, err, entities.ErrPlacementChoiceRequired)
	assert.Equal(t, AwaitingPlacementChoice, res.Machine.State())
	require.Len(t, choice.Conflicts, 1)
	assert.Equal(t, entities.OrderID("X"), choice.Conflicts[0].ID)

	placement.Policy = entities.InsertBefore
	res, err = resolver.Resolve(snapshot, placement)
	require.NoError(t, err)
	assert.Equal(t, []State{Idle, ConflictFound, Resolving}, res.Machine.History())

	// new order takes Jun 11 onward, existing order restarts the day after
	assert.Equal(t, plan(11, 100, 12, 50), res.Incoming.Allocation.DailyPlan)
	require.Len(t, res.Displaced, 1)
	assert.Equal(t, entities.OrderID("X"), res.Displaced[0].OrderID)
	assert.Equal(t, plan(13, 100, 16, 100, 17, 100), res.Displaced[0].Allocation.DailyPlan)

	moved := res.Snapshot.Order("X")
	assert.Equal(t, testhelpers.June(13), moved.Schedule.PlanStartDate)
	assert.Zero(t, res.Snapshot.Used("L1", testhelpers.June(10), ""))
	require.NoError(t, res.Snapshot.CheckInvariant("L1"))

	// the original snapshot still has X on Jun 10-12
	assert.Equal(t, testhelpers.June(10), snapshot.Order("X").Schedule.PlanStartDate)
}

func TestResolve_InsertBeforeChainsInOrder(t *testing.T) {
	a := testhelpers.Schedule(testhelpers.MustCreateOrder("A", 200, 20), "L1", testhelpers.June(10), 100, 100)
	b := testhelpers.Schedule(testhelpers.MustCreateOrder("B", 60, 20), "L1", testhelpers.June(12), 60)
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, a, b, testhelpers.MustCreateOrder("N", 100, 20))

	res, err := newResolver(Options{}).Resolve(snapshot, Placement{
		OrderID: "N", LineID: "L1", StartDate: testhelpers.June(10), Method: entities.Flat, Policy: entities.InsertBefore,
	})
	require.NoError(t, err)

	assert.Equal(t, plan(10, 100), res.Incoming.Allocation.DailyPlan)
	require.Len(t, res.Displaced, 2)
	assert.Equal(t, entities.OrderID("A"), res.Displaced[0].OrderID)
	assert.Equal(t, plan(11, 100, 12, 100), res.Displaced[0].Allocation.DailyPlan)
	assert.Equal(t, entities.OrderID("B"), res.Displaced[1].OrderID)
	assert.Equal(t, plan(13, 60), res.Displaced[1].Allocation.DailyPlan)

	changed := shared.ChangedOrders(snapshot, res.Snapshot)
	assert.Len(t, changed, 3)
}

func TestResolve_InsertAfterUsesLeftover(t *testing.T) {
	existing := testhelpers.Schedule(testhelpers.MustCreateOrder("X", 260, 20), "L1", testhelpers.June(10), 100, 100, 60)
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, existing, testhelpers.MustCreateOrder("N", 150, 20))

	res, err := newResolver(Options{}).Resolve(snapshot, Placement{
		OrderID: "N", LineID: "L1", StartDate: testhelpers.June(11), Method: entities.Flat, Policy: entities.InsertAfter,
	})
	require.NoError(t, err)

	// Jun 12 had 40 left, then Friday the 13th takes the rest
	assert.Equal(t, plan(12, 40, 13, 100, 16, 10), res.Incoming.Allocation.DailyPlan)
	assert.Empty(t, res.Displaced)
	assert.Equal(t, testhelpers.June(10), res.Snapshot.Order("X").Schedule.PlanStartDate)
	require.NoError(t, res.Snapshot.CheckInvariant("L1"))
}

func TestResolve_InsertAfterFullDayStartsNextDay(t *testing.T) {
	existing := testhelpers.Schedule(testhelpers.MustCreateOrder("X", 200, 20), "L1", testhelpers.June(10), 100, 100)
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, existing, testhelpers.MustCreateOrder("N", 50, 20))

	res, err := newResolver(Options{}).Resolve(snapshot, Placement{
		OrderID: "N", LineID: "L1", StartDate: testhelpers.June(10), Method: entities.Flat, Policy: entities.InsertAfter,
	})
	require.NoError(t, err)
	assert.Equal(t, plan(12, 50), res.Incoming.Allocation.DailyPlan)
}

func TestResolve_CascadeAbortIsAllOrNothing(t *testing.T) {
	// X was placed with a ramp-up plan that no longer exists, so it cannot be
	// re-placed and the whole cascade must abort
	existing := testhelpers.Schedule(testhelpers.MustCreateOrder("X", 100, 20), "L1", testhelpers.June(10), 100)
	existing.Schedule.Method = entities.RampUp
	existing.Schedule.RampUpPlanID = "gone"
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, existing, testhelpers.MustCreateOrder("N", 100, 20))
	before := snapshot.String()

	res, err := newResolver(Options{}).Resolve(snapshot, Placement{
		OrderID: "N", LineID: "L1", StartDate: testhelpers.June(10), Method: entities.Flat, Policy: entities.InsertBefore,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrCascadeAborted)
	assert.ErrorIs(t, err, entities.ErrInvalidRampUpInputs)

	var cascade *CascadeError
	require.True(t, errors.As(err, &cascade))
	assert.Equal(t, entities.OrderID("X"), cascade.OrderID)

	assert.Equal(t, Aborted, res.Machine.State())
	assert.Nil(t, res.Snapshot)
	assert.Empty(t, res.Displaced)
	assert.Equal(t, before, snapshot.String())
	assert.True(t, snapshot.Order("X").IsScheduled())
}

func TestResolve_MovesScheduledOrder(t *testing.T) {
	order := testhelpers.Schedule(testhelpers.MustCreateOrder("N", 100, 20), "L1", testhelpers.June(10), 100)
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, order)

	// dropping the order onto its own days is not a conflict
	res, err := newResolver(Options{}).Resolve(snapshot, Placement{
		OrderID: "N", LineID: "L1", StartDate: testhelpers.June(10), Method: entities.Flat,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, plan(10, 100), res.Incoming.Allocation.DailyPlan)
}

func TestResolve_PartialPlanPolicy(t *testing.T) {
	lines := []*entities.ProductionLine{testhelpers.MustCreateLine("L1", 1, 1)}
	snapshot := testhelpers.NewSnapshot(lines, nil, testhelpers.MustCreateOrder("N", 1000, 20))
	placement := Placement{OrderID: "N", LineID: "L1", StartDate: testhelpers.June(9), Method: entities.Flat}

	res, err := newResolver(Options{}).Resolve(snapshot, placement)
	assert.ErrorIs(t, err, entities.ErrPlanningHorizonExceeded)
	assert.Equal(t, Aborted, res.Machine.State())

	res, err = newResolver(Options{AllowPartialPlans: true}).Resolve(snapshot, placement)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Less(t, res.Incoming.Allocation.DailyPlan.Total(), entities.Quantity(1000))
}

func TestResolve_UnknownOrRetiredOrder(t *testing.T) {
	retired := testhelpers.MustCreateOrder("R", 10, 20)
	now := testhelpers.Monday
	retired.RetiredAt = &now
	snapshot := testhelpers.NewSnapshot(lineL1(), nil, retired)
	resolver := newResolver(Options{})

	_, err := resolver.Resolve(snapshot, Placement{OrderID: "missing", LineID: "L1", StartDate: testhelpers.Monday})
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = resolver.Resolve(snapshot, Placement{OrderID: "R", LineID: "L1", StartDate: testhelpers.Monday})
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestMachine_Transitions(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(ConflictFound))
	require.NoError(t, m.Transition(AwaitingPlacementChoice))
	assert.ErrorIs(t, m.Transition(Committed), entities.ErrInvalidTransition)
	require.NoError(t, m.Transition(Resolving))
	require.NoError(t, m.Transition(Committed))
	assert.True(t, m.Terminal())
	assert.ErrorIs(t, m.Transition(Aborted), entities.ErrInvalidTransition)
	assert.Equal(t, "committed", m.State().String())
}
