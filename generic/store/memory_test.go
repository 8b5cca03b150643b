package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/poultry-reports/generic"
)

func day(d int) generic.TimePoint { return generic.NewTimePoint(2024, time.March, d) }

func TestMemory_RangeAggregateSumsPerDay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, r := range []generic.ProductionRecord{
		{FarmID: "f1", Date: day(2), Large: 10, Broken: 2},
		{FarmID: "f1", Date: day(2), Small: 5},
		{FarmID: "f1", Date: day(6), Small: 1},
		{FarmID: "f2", Date: day(2), Large: 99},
	} {
		_, err := m.AddProduction(ctx, r)
		require.NoError(t, err)
	}

	rows, err := m.RangeAggregate(ctx, generic.MetricUsableEggs, generic.Scope{FarmID: "f1"}, day(1), day(5))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, day(2).Key(), rows[0].Date.Key())
	assert.Equal(t, 15.0, rows[0].Value)
}

func TestMemory_RangeAggregateUnknownMetric(t *testing.T) {
	m := NewMemory()
	_, err := m.RangeAggregate(context.Background(), generic.Metric("weight"), generic.Scope{}, day(1), day(2))
	assert.ErrorIs(t, err, generic.ErrUnknownMetric)
}

func TestMemory_RejectsUnknownPartyAndUndatedMortality(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.AddLedgerEntry(ctx, generic.LedgerEntry{PartyID: "nobody", Date: day(1)})
	assert.ErrorIs(t, err, generic.ErrPartyNotFound)
	assert.True(t, generic.IsNotFound(err))

	// An undated death would count before every as-of date.
	_, err = m.AddMortality(ctx, generic.MortalityEvent{FlockID: "fl", Count: 5})
	assert.ErrorIs(t, err, generic.ErrInvalidRecord)
}

func TestMemory_LiveBirdCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.SaveFlock(ctx, generic.Flock{ID: "fl", FarmID: "f1", InitialCount: 100, PlacedOn: day(2)})
	require.NoError(t, err)
	_, err = m.AddMortality(ctx, generic.MortalityEvent{FlockID: "fl", Date: day(3), Count: 7})
	require.NoError(t, err)

	n, err := m.LiveBirdCount(ctx, "fl", day(1))
	require.NoError(t, err)
	assert.Zero(t, n, "before placement")

	n, err = m.LiveBirdCount(ctx, "fl", day(3))
	require.NoError(t, err)
	assert.Equal(t, int64(93), n)

	_, err = m.LiveBirdCount(ctx, "other", day(3))
	assert.ErrorIs(t, err, generic.ErrFlockNotFound)
}

func TestMemory_FailReads(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	m.FailReads(boom)
	_, err := m.ListFarms(ctx)
	assert.ErrorIs(t, err, boom)

	m.FailReads(nil)
	_, err = m.ListFarms(ctx)
	assert.NoError(t, err)
}

func TestMemory_WritesPublishAfterCommit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var seen []generic.EntityKind
	m.Subscribe(func(ctx context.Context, ev generic.MutationEvent) {
		// Listener reads must not deadlock and must see the write.
		farms, err := m.ListFarms(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, farms)
		seen = append(seen, ev.Entity)
	})

	_, err := m.SaveFarm(ctx, generic.Farm{ID: "f1", Name: "North"})
	require.NoError(t, err)
	_, err = m.SaveShed(ctx, generic.Shed{FarmID: "f1", Name: "A"})
	require.NoError(t, err)

	assert.Equal(t, []generic.EntityKind{generic.EntityFarm, generic.EntityShed}, seen)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.SaveFarm(ctx, generic.Farm{Name: "North"})
	require.NoError(t, err)
	_, err = m.SaveParty(ctx, generic.Party{ID: "p", Name: "Market"})
	require.NoError(t, err)
	_, err = m.AddLedgerEntry(ctx, generic.LedgerEntry{PartyID: "p", Date: day(1), Debit: generic.NewMoney(1, 1)})
	require.NoError(t, err)

	require.NoError(t, m.Reset(ctx))

	farms, err := m.ListFarms(ctx)
	require.NoError(t, err)
	assert.Empty(t, farms)
	entries, err := m.LedgerEntries(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
