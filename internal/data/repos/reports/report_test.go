package reports

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/research-reports/internal/data/repos/testutil"
	domain "github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/pkg/dbctx"
)

func newReport(parent uuid.UUID, name string) *domain.Report {
	return &domain.Report{
		ParentID:     parent,
		CollectionID: "support",
		Name:         name,
		Status:       domain.StatusConfiguring,
		CustomPrompt: "coverage of support tickets",
	}
}

func TestReportRepoCreateGetList(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewReportRepo(gdb, testutil.Logger(t))
	dbc := dbctx.New(context.Background())
	parent := uuid.New()

	first, err := repo.Create(dbc, newReport(parent, "first"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, 1, first.Version)

	time.Sleep(5 * time.Millisecond)
	_, err = repo.Create(dbc, newReport(parent, "second"))
	require.NoError(t, err)
	_, err = repo.Create(dbc, newReport(uuid.New(), "other parent"))
	require.NoError(t, err)

	got, err := repo.GetByID(dbc, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Name)
	assert.Nil(t, got.Content)

	missing, err := repo.GetByID(dbc, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := repo.ListByParent(dbc, parent)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
	assert.Equal(t, "first", list[1].Name)
}

func TestReportRepoUpdateFieldsUnlessStatus(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewReportRepo(gdb, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	r, err := repo.Create(dbc, newReport(uuid.New(), "r"))
	require.NoError(t, err)

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, r.ID, []string{domain.StatusGenerating}, map[string]interface{}{"name": "renamed"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.UpdateFields(dbc, r.ID, map[string]interface{}{"status": domain.StatusGenerating}))
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, r.ID, []string{domain.StatusGenerating}, map[string]interface{}{"name": "blocked"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(dbc, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestReportRepoRunOwnership(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewReportRepo(gdb, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	r, err := repo.Create(dbc, newReport(uuid.New(), "r"))
	require.NoError(t, err)

	now := time.Now().UTC()
	runA := uuid.New()
	ok, err := repo.BeginRun(dbc, r.ID, runA, now.Add(-time.Hour), map[string]interface{}{"generation_started_at": now})
	require.NoError(t, err)
	require.True(t, ok)

	// A fresh run blocks a second claim.
	runB := uuid.New()
	ok, err = repo.BeginRun(dbc, r.ID, runB, now.Add(-time.Hour), map[string]interface{}{"generation_started_at": now})
	require.NoError(t, err)
	assert.False(t, ok)

	// Once the first run is considered stale it can be reclaimed.
	ok, err = repo.BeginRun(dbc, r.ID, runB, now.Add(time.Second), map[string]interface{}{"generation_started_at": now.Add(time.Second)})
	require.NoError(t, err)
	require.True(t, ok)

	// The superseded run cannot write its terminal state.
	ok, err = repo.FinishRun(dbc, r.ID, runA, map[string]interface{}{"status": domain.StatusCompleted})
	require.NoError(t, err)
	assert.False(t, ok)

	content := "# Report"
	ok, err = repo.FinishRun(dbc, r.ID, runB, map[string]interface{}{"status": domain.StatusCompleted, "content": content})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(dbc, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.Content)
	assert.Equal(t, content, *got.Content)
	assert.Nil(t, got.RunID)

	// Claiming a completed report for a new run clears the previous content.
	ok, err = repo.BeginRun(dbc, r.ID, uuid.New(), now.Add(time.Second), map[string]interface{}{"generation_started_at": now.Add(2 * time.Second)})
	require.NoError(t, err)
	require.True(t, ok)
	got, err = repo.GetByID(dbc, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGenerating, got.Status)
	assert.Nil(t, got.Content)
	assert.Nil(t, got.CompletedAt)
}

func TestReportRepoSoftDelete(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewReportRepo(gdb, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	r, err := repo.Create(dbc, newReport(uuid.New(), "r"))
	require.NoError(t, err)
	require.NoError(t, repo.SoftDelete(dbc, r.ID))

	got, err := repo.GetByID(dbc, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
