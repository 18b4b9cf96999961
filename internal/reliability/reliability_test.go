package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/greenfin/internal/database"
	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/aristath/greenfin/internal/modules/runs"
	testingpkg "github.com/aristath/greenfin/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUploader struct {
	objects map[string][]byte
	err     error
}

func (u *memoryUploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	if u.err != nil {
		return u.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[key] = data
	return nil
}

func seedRuns(t *testing.T, repo *runs.Repository, n int) {
	t.Helper()
	full := &optimization.Result{AssetIDs: []string{"L001", "L002"}, Weights: []float64{0.5, 0.5}, AnnualReturn: 0.08, AnnualVolatility: 0.12, Sharpe: 0.4}
	dec := &optimization.Result{AssetIDs: []string{"L001"}, Weights: []float64{1}, AnnualReturn: 0.09, AnnualVolatility: 0.12, Sharpe: 0.5}
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		_, err := repo.Create(context.Background(), runs.NewRun(decoupling.Evaluate(full, dec), domain.DataSourceSynthetic, start, start), nil)
		require.NoError(t, err)
	}
}

func untar(t *testing.T, archive []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := map[string][]byte{}
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = data
	}
	return files
}

func TestArchiveKey(t *testing.T) {
	ts := time.Date(2025, 3, 1, 14, 30, 22, 0, time.UTC)
	assert.Equal(t, "greenfin/backups/greenfin-backup-2025-03-01-143022.tar.gz", ArchiveKey("greenfin", ts))
	assert.Equal(t, "backups/greenfin-backup-2025-03-01-143022.tar.gz", ArchiveKey("", ts))
}

func TestBackupService_CreateAndUploadBackup(t *testing.T) {
	staging, cleanupStaging := testingpkg.NewTestDB(t, database.NameStaging)
	defer cleanupStaging()
	analytics, cleanupAnalytics := testingpkg.NewTestDB(t, database.NameAnalytics)
	defer cleanupAnalytics()

	seedRuns(t, runs.NewRepository(analytics, zerolog.Nop()), 2)

	uploader := &memoryUploader{}
	stagingDir := filepath.Join(t.TempDir(), "backup-staging")
	svc := NewBackupService(uploader, "greenfin", stagingDir, zerolog.Nop(), staging, nil, analytics)

	key, err := svc.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "greenfin/backups/greenfin-backup-"))
	require.Contains(t, uploader.objects, key)

	files := untar(t, uploader.objects[key])
	assert.Len(t, files, 3)
	require.Contains(t, files, metadataFile)

	var metadata BackupMetadata
	require.NoError(t, json.Unmarshal(files[metadataFile], &metadata))
	require.Len(t, metadata.Databases, 2)
	for _, db := range metadata.Databases {
		data, ok := files[db.Filename]
		require.True(t, ok, db.Filename)
		assert.Equal(t, int64(len(data)), db.SizeBytes)
		assert.Equal(t, fmt.Sprintf("sha256:%x", sha256.Sum256(data)), db.Checksum)
	}

	// The snapshot is a usable database
	restoredPath := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(restoredPath, files["analytics.db"], 0644))
	restored, err := database.New(database.Config{Path: restoredPath, Profile: database.ProfileStandard, Name: "restored"})
	require.NoError(t, err)
	defer restored.Close()

	var count int
	require.NoError(t, restored.Conn().QueryRow("SELECT COUNT(*) FROM optimization_runs").Scan(&count))
	assert.Equal(t, 2, count)

	entries, err := os.ReadDir(stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging files are removed after upload")
}

func TestBackupService_UploadError(t *testing.T) {
	analytics, cleanup := testingpkg.NewTestDB(t, database.NameAnalytics)
	defer cleanup()

	uploader := &memoryUploader{err: errors.New("bucket unavailable")}
	svc := NewBackupService(uploader, "greenfin", t.TempDir(), zerolog.Nop(), analytics)

	_, err := svc.CreateAndUploadBackup(context.Background())
	assert.ErrorContains(t, err, "bucket unavailable")

	err = NewBackupJob(svc, zerolog.Nop()).Run()
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestMaintenanceJob_Run(t *testing.T) {
	analytics, cleanup := testingpkg.NewTestDB(t, database.NameAnalytics)
	defer cleanup()

	repo := runs.NewRepository(analytics, zerolog.Nop())
	seedRuns(t, repo, 5)

	job := NewMaintenanceJob(repo, 3, zerolog.Nop(), analytics, nil)
	assert.Equal(t, "database_maintenance", job.Name())
	require.NoError(t, job.Run())

	list, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

type failingPruner struct{}

func (failingPruner) Prune(ctx context.Context, keep int) (int64, error) {
	return 0, errors.New("locked")
}

func TestMaintenanceJob_PruneError(t *testing.T) {
	err := NewMaintenanceJob(failingPruner{}, 3, zerolog.Nop()).Run()
	assert.ErrorContains(t, err, "locked")
}
