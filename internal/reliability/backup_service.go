// Package reliability keeps the GreenFin databases small and recoverable.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aristath/greenfin/internal/database"
	"github.com/aristath/greenfin/internal/modules/publishing"
	"github.com/rs/zerolog"
)

const (
	metadataFile    = "backup-metadata.json"
	archiveStamp    = "2006-01-02-150405"
	metadataVersion = "1"
)

// BackupMetadata describes the contents of one backup archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database snapshot inside an archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupService snapshots databases into a tar.gz archive and uploads it
type BackupService struct {
	databases  []*database.DB
	uploader   publishing.Uploader
	prefix     string
	stagingDir string
	log        zerolog.Logger
}

// NewBackupService creates a backup service. Archives are staged under
// stagingDir and uploaded to <prefix>/backups/. Nil databases are skipped.
func NewBackupService(uploader publishing.Uploader, prefix, stagingDir string, log zerolog.Logger, databases ...*database.DB) *BackupService {
	return &BackupService{
		databases:  databases,
		uploader:   uploader,
		prefix:     prefix,
		stagingDir: stagingDir,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// ArchiveKey returns the object key of an archive created at ts
func ArchiveKey(prefix string, ts time.Time) string {
	return path.Join(prefix, "backups", fmt.Sprintf("greenfin-backup-%s.tar.gz", ts.UTC().Format(archiveStamp)))
}

// CreateAndUploadBackup snapshots every database, archives the snapshots with
// their checksums and uploads the archive. It returns the object key.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (string, error) {
	startTime := time.Now()

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	workDir, err := os.MkdirTemp(s.stagingDir, "backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	metadata := BackupMetadata{
		Timestamp: startTime.UTC(),
		Version:   metadataVersion,
	}
	files := make([]string, 0, len(s.databases)+1)

	for _, db := range s.databases {
		if db == nil {
			continue
		}
		filename := db.Name() + ".db"
		snapshotPath := filepath.Join(workDir, filename)

		// VACUUM INTO writes a consistent copy without blocking readers
		if _, err := db.Conn().ExecContext(ctx, "VACUUM INTO ?", snapshotPath); err != nil {
			return "", fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}

		info, err := os.Stat(snapshotPath)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s snapshot: %w", db.Name(), err)
		}
		checksum, err := fileChecksum(snapshotPath)
		if err != nil {
			return "", fmt.Errorf("failed to calculate checksum for %s: %w", db.Name(), err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      db.Name(),
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	if err := writeMetadata(filepath.Join(workDir, metadataFile), metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataFile)

	archivePath := filepath.Join(workDir, "archive.tar.gz")
	if err := createArchive(archivePath, workDir, files); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := ArchiveKey(s.prefix, startTime)
	if err := s.uploader.Upload(ctx, key, archive, "application/gzip"); err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Str("key", key).
		Int("databases", len(metadata.Databases)).
		Dur("duration", time.Since(startTime)).
		Msg("Backup uploaded")

	return key, nil
}

func fileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(filePath string, metadata BackupMetadata) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive writes the named files of sourceDir into a tar.gz at archivePath
func createArchive(archivePath, sourceDir string, names []string) (err error) {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := archiveFile.Close(); err == nil {
			err = cerr
		}
	}()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
	}

	// Both writers must flush before the file is closed
	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
