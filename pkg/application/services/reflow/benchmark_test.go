package reflow

import (
	"fmt"
	"testing"
	"time"

	"github.com/vsinha/lineplan/pkg/application/services/shared"
	testhelpers "github.com/vsinha/lineplan/pkg/application/services/testing"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// setupFullLine fills L1 with n one-day orders on consecutive working days
// from June 9, plus a pending incoming order "N"
func setupFullLine(n int) *shared.AllocationSnapshot {
	orders := make([]*entities.Order, 0, n+1)
	day := testhelpers.June(9)
	for i := 0; i < n; i++ {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		order := testhelpers.MustCreateOrder(fmt.Sprintf("X%04d", i), 100, 20)
		orders = append(orders, testhelpers.Schedule(order, "L1", day, 100))
		day = day.AddDate(0, 0, 1)
	}
	orders = append(orders, testhelpers.MustCreateOrder("N", 100, 20))
	return testhelpers.NewSnapshot(lineL1(), nil, orders...)
}

func benchmarkInsertBefore(b *testing.B, n int) {
	snapshot := setupFullLine(n)
	resolver := newResolver(Options{})
	placement := Placement{
		OrderID:   "N",
		LineID:    "L1",
		StartDate: testhelpers.June(9),
		Method:    entities.Flat,
		Policy:    entities.InsertBefore,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := resolver.Resolve(snapshot, placement)
		if err != nil {
			b.Fatalf("Resolve failed: %v", err)
		}
		if len(res.Displaced) != n {
			b.Fatalf("expected %d displaced orders, got %d", n, len(res.Displaced))
		}
	}
}

func BenchmarkResolve_InsertBeforeCascade10(b *testing.B) {
	benchmarkInsertBefore(b, 10)
}

func BenchmarkResolve_InsertBeforeCascade100(b *testing.B) {
	benchmarkInsertBefore(b, 100)
}

func BenchmarkResolve_InsertAfterFullLine(b *testing.B) {
	snapshot := setupFullLine(100)
	resolver := newResolver(Options{})
	placement := Placement{
		OrderID:   "N",
		LineID:    "L1",
		StartDate: testhelpers.June(9),
		Method:    entities.Flat,
		Policy:    entities.InsertAfter,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := resolver.Resolve(snapshot, placement); err != nil {
			b.Fatalf("Resolve failed: %v", err)
		}
	}
}
