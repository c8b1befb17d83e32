package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster/backend/internal/application/upload"
)

func sampleReport() *upload.Report {
	r := &upload.Report{}
	r.Total = 3
	r.Created = 2
	r.Updated = 1
	r.Rows = []upload.RowOutcome{
		{Line: 1, Username: "ada", Outcome: upload.OutcomeCreated},
		{Line: 2, Username: "grace", Outcome: upload.OutcomeCreated},
		{Line: 3, Username: "joan", Outcome: upload.OutcomeUpdated},
	}
	return r
}

func TestInMemoryReportStore_SaveAndGet(t *testing.T) {
	store := NewInMemoryReportStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "batch-1", sampleReport(), time.Hour))

	got, err := store.Get(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Created)
	assert.Len(t, got.Rows, 3)
	assert.Equal(t, "grace", got.Rows[1].Username)
}

func TestInMemoryReportStore_UnknownBatch(t *testing.T) {
	store := NewInMemoryReportStore()

	_, err := store.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestInMemoryReportStore_ExpiredReport(t *testing.T) {
	store := NewInMemoryReportStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "batch-1", sampleReport(), -time.Second))

	_, err := store.Get(ctx, "batch-1")

	assert.ErrorIs(t, err, ErrReportNotFound)
}
