package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackleonard0102/ibtrading/internal/database"
)

type memoryStore struct {
	uploads map[string][]byte
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{uploads: make(map[string][]byte)}
}

func (m *memoryStore) Upload(ctx context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.uploads[key] = data
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]BackupObject, error) {
	var objects []BackupObject
	for key, data := range m.uploads {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, BackupObject{Key: key, SizeBytes: int64(len(data))})
		}
	}
	return objects, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	delete(m.uploads, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func TestBackupRunUploadsArchive(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, "hedge.db"),
		Profile: database.ProfileStandard,
		Name:    "hedge",
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	store := newMemoryStore()
	svc := NewBackupService([]*database.DB{db}, store, dir, 30, zerolog.Nop())

	require.NoError(t, svc.Run(context.Background()))
	require.Len(t, store.uploads, 1)

	for key, data := range store.uploads {
		_, ok := parseBackupTimestamp(key)
		assert.True(t, ok, "archive name should carry a parseable timestamp: %s", key)

		names := readArchiveNames(t, data)
		assert.Contains(t, names, "hedge.db")
		assert.Contains(t, names, metadataFilename)
	}

	// Staging directory is cleaned up after the run
	_, err = os.Stat(filepath.Join(dir, "backup-staging"))
	assert.True(t, os.IsNotExist(err))
}

func readArchiveNames(t *testing.T, data []byte) []string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	checksum, err := fileChecksum(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", checksum)
}

func TestParseBackupTimestamp(t *testing.T) {
	timestamp, ok := parseBackupTimestamp("hedger-backup-2026-08-29-010000.tar.gz")
	require.True(t, ok)
	assert.Equal(t, 2026, timestamp.Year())
	assert.Equal(t, 1, timestamp.Hour())

	_, ok = parseBackupTimestamp("hedger-backup-garbage.tar.gz")
	assert.False(t, ok)
	_, ok = parseBackupTimestamp("unrelated-object.txt")
	assert.False(t, ok)
}

func TestSelectExpired(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	mkBackup := func(ageDays int) BackupInfo {
		return BackupInfo{
			Filename:  "hedger-backup-" + now.AddDate(0, 0, -ageDays).Format(backupTimeLayout) + ".tar.gz",
			Timestamp: now.AddDate(0, 0, -ageDays),
		}
	}

	// Newest first: 1, 2, 10, 40, 90 days old
	backups := []BackupInfo{mkBackup(1), mkBackup(2), mkBackup(10), mkBackup(40), mkBackup(90)}

	expired := selectExpired(backups, 30, now)
	require.Len(t, expired, 2)
	assert.Equal(t, backups[3].Filename, expired[0].Filename)
	assert.Equal(t, backups[4].Filename, expired[1].Filename)

	// The newest three are kept even when older than retention
	old := []BackupInfo{mkBackup(100), mkBackup(200), mkBackup(300)}
	assert.Empty(t, selectExpired(old, 30, now))

	// Retention 0 keeps everything
	assert.Empty(t, selectExpired(backups, 0, now))
}

func TestListBackupsSortsNewestFirst(t *testing.T) {
	store := newMemoryStore()
	store.uploads["hedger-backup-2026-08-01-010000.tar.gz"] = []byte("a")
	store.uploads["hedger-backup-2026-08-28-010000.tar.gz"] = []byte("bb")
	store.uploads["not-a-backup.txt"] = []byte("x")

	svc := NewBackupService(nil, store, t.TempDir(), 30, zerolog.Nop())
	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)

	require.Len(t, backups, 2)
	assert.Equal(t, "hedger-backup-2026-08-28-010000.tar.gz", backups[0].Filename)
	assert.Equal(t, int64(2), backups[0].SizeBytes)
}
