package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/lineplan/pkg/application/services/shared"
	testhelpers "github.com/vsinha/lineplan/pkg/application/services/testing"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/memory"
)

func proposal(line entities.LineID, plan entities.DailyPlan) *entities.Schedule {
	return &entities.Schedule{
		LineID:        line,
		PlanStartDate: plan.StartDate(),
		PlanEndDate:   plan.EndDate(),
		DailyPlan:     plan,
	}
}

func TestApplyProposalAndMoveToPending(t *testing.T) {
	lc := NewOrderLifecycle(nil)
	order := testhelpers.MustCreateOrder("A", 250, 20)

	plan := entities.DailyPlan{{Date: testhelpers.Day(0), Quantity: 100}, {Date: testhelpers.Day(1), Quantity: 100}}
	require.NoError(t, lc.ApplyProposal(order, proposal("L1", plan)))
	assert.Equal(t, entities.Scheduled, order.Status)
	assert.Equal(t, entities.LineID("L1"), order.LineID())

	// the proposal is copied, not aliased
	plan[0].Quantity = 1
	assert.Equal(t, entities.Quantity(200), order.Schedule.DailyPlan.Total())

	require.NoError(t, lc.MoveToPending(order))
	assert.Equal(t, entities.Pending, order.Status)
	assert.Nil(t, order.Schedule)

	assert.ErrorIs(t, lc.MoveToPending(order), entities.ErrInvalidTransition)
}

func TestApplyProposal_RejectsInvalidPlan(t *testing.T) {
	lc := NewOrderLifecycle(nil)
	order := testhelpers.MustCreateOrder("A", 100, 20)

	tooMuch := entities.DailyPlan{{Date: testhelpers.Day(0), Quantity: 101}}
	assert.Error(t, lc.ApplyProposal(order, proposal("L1", tooMuch)))
	assert.Equal(t, entities.Pending, order.Status)
	assert.Nil(t, order.Schedule)

	assert.ErrorIs(t, lc.ApplyProposal(order, nil), entities.ErrInvalidTransition)
}

func TestSplit_ConservesQuantity(t *testing.T) {
	lc := NewOrderLifecycle(nil)

	for _, first := range []entities.Quantity{1, 100, 249} {
		parent := testhelpers.MustCreateOrder("P", 250, 20)
		a, b, err := lc.Split(parent, first)
		require.NoError(t, err)

		assert.Equal(t, parent.OrderQuantity, a.OrderQuantity+b.OrderQuantity)
		assert.Equal(t, first, a.OrderQuantity)
		assert.Equal(t, parent.ID, a.ParentID)
		assert.Equal(t, parent.ID, b.ParentID)
		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, entities.Pending, a.Status)
		assert.True(t, parent.IsRetired())
		assert.True(t, parent.SMV.Equal(a.SMV))
	}
}

func TestSplit_Guards(t *testing.T) {
	lc := NewOrderLifecycle(nil)

	parent := testhelpers.MustCreateOrder("P", 250, 20)
	_, _, err := lc.Split(parent, 0)
	assert.Error(t, err)
	_, _, err = lc.Split(parent, 250)
	assert.Error(t, err)
	assert.False(t, parent.IsRetired())

	scheduled := testhelpers.Schedule(testhelpers.MustCreateOrder("S", 100, 20), "L1", testhelpers.Monday, 100)
	_, _, err = lc.Split(scheduled, 50)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	_, _, err = lc.Split(parent, 100)
	require.NoError(t, err)
	_, _, err = lc.Split(parent, 100)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func loadSnapshot(t *testing.T, store *memory.Store) *shared.AllocationSnapshot {
	t.Helper()
	snapshot, err := shared.NewSnapshotLoader(store, store, store, store).Load(context.Background(), "L1", nil)
	require.NoError(t, err)
	return snapshot
}

func TestCommit_WritesAtomically(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.BuildScenarioStore()
	lc := NewOrderLifecycle(store)

	snapshot := loadSnapshot(t, store)
	order, err := store.GetOrder(ctx, "PO-A")
	require.NoError(t, err)
	plan := entities.DailyPlan{{Date: testhelpers.Day(0), Quantity: 100}, {Date: testhelpers.Day(1), Quantity: 100}, {Date: testhelpers.Day(2), Quantity: 50}}
	require.NoError(t, lc.ApplyProposal(order, proposal("L1", plan)))

	require.NoError(t, lc.Commit(ctx, snapshot, lc.NewChangeSet(snapshot, []*entities.Order{order}, nil)))

	stored, err := store.GetOrder(ctx, "PO-A")
	require.NoError(t, err)
	assert.True(t, stored.IsScheduled())
	assert.Equal(t, entities.Quantity(250), stored.Schedule.DailyPlan.Total())
}

func TestCommit_RefusesOverAllocation(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.BuildScenarioStore()
	lc := NewOrderLifecycle(store)
	snapshot := loadSnapshot(t, store)

	// a concurrent writer books Monday after our snapshot was taken
	other, _ := store.GetOrder(ctx, "PO-B")
	require.NoError(t, lc.ApplyProposal(other, proposal("L1", entities.DailyPlan{{Date: testhelpers.Monday, Quantity: 80}})))
	require.NoError(t, lc.Commit(ctx, snapshot, lc.NewChangeSet(snapshot, []*entities.Order{other}, nil)))

	order, _ := store.GetOrder(ctx, "PO-A")
	require.NoError(t, lc.ApplyProposal(order, proposal("L1", entities.DailyPlan{{Date: testhelpers.Monday, Quantity: 50}})))

	// the stale line revision is caught by the store
	err := lc.Commit(ctx, snapshot, lc.NewChangeSet(snapshot, []*entities.Order{order}, nil))
	assert.ErrorIs(t, err, entities.ErrAllocationConflict)

	// without a revision guard the invariant re-check still refuses it
	cs := lc.NewChangeSet(snapshot, []*entities.Order{order}, nil)
	cs.LineRevisions = nil
	err = lc.Commit(ctx, snapshot, cs)
	assert.ErrorIs(t, err, entities.ErrAllocationConflict)

	stored, _ := store.GetOrder(ctx, "PO-A")
	assert.False(t, stored.IsScheduled())
}

func TestCommit_RefusesInvalidOrders(t *testing.T) {
	store := testhelpers.BuildScenarioStore()
	lc := NewOrderLifecycle(store)
	snapshot := loadSnapshot(t, store)

	broken := testhelpers.MustCreateOrder("PO-A", 250, 20)
	broken.Status = entities.Scheduled
	err := lc.Commit(context.Background(), snapshot, lc.NewChangeSet(snapshot, []*entities.Order{broken}, nil))
	assert.Error(t, err)

	assert.Error(t, NewOrderLifecycle(nil).Commit(context.Background(), snapshot, lc.NewChangeSet(snapshot, []*entities.Order{broken}, nil)))
}
