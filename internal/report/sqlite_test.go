package report

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficai/violation-reporter/internal/fingerprint"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), DefaultDatabaseName), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLRepository(t *testing.T) {
	testRepository(t, func(t *testing.T) Repository { return openTestDB(t) })
}

func TestSQLRepository_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultDatabaseName)
	ctx := context.Background()

	repo, err := OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	r := sampleReport(1, "alice", baseTime)
	require.NoError(t, repo.Save(ctx, r))
	require.NoError(t, repo.Close())

	// Reopening runs migrations again; they must be a no-op.
	repo, err = OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	defer repo.Close()

	ok, err := repo.ExistsByHash(ctx, r.MediaHash.String())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenSQLite_InMemory(t *testing.T) {
	repo, err := OpenSQLite(":memory:", discardLogger())
	require.NoError(t, err)
	defer repo.Close()

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLRepository_BindAlgorithm(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultDatabaseName)
	ctx := context.Background()

	repo, err := OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, repo.BindAlgorithm(ctx, fingerprint.AlgorithmBLAKE3))
	require.NoError(t, repo.BindAlgorithm(ctx, fingerprint.AlgorithmBLAKE3))
	require.NoError(t, repo.Close())

	reopened, err := OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	defer reopened.Close()

	err = reopened.BindAlgorithm(ctx, fingerprint.AlgorithmSHA256)
	assert.ErrorIs(t, err, fingerprint.ErrAlgorithmMismatch)
	assert.NoError(t, reopened.BindAlgorithm(ctx, fingerprint.AlgorithmBLAKE3))
}

func TestSQLRepository_BindAlgorithmExistingReportsAreSHA256(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleReport(1, "alice", baseTime)))

	err := repo.BindAlgorithm(ctx, fingerprint.AlgorithmBLAKE3)
	assert.ErrorIs(t, err, fingerprint.ErrAlgorithmMismatch)
	assert.NoError(t, repo.BindAlgorithm(ctx, fingerprint.AlgorithmSHA256))
}

func TestOpenSQLite_BadPath(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "dir", "reports.db"), discardLogger())
	assert.Error(t, err)
}
