package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qchat/internal/domain"
)

func testTriple() domain.CredentialTriple {
	return domain.CredentialTriple{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "session",
		Expiration:      time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore(" ")
	require.Error(t, err)
}

func TestFileStore_LoadAbsent(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	_, found, err := s.Load(context.Background())
	require.NoError(t, err)
	require.False(t, found)
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	want := testTriple()
	require.NoError(t, s.Save(context.Background(), want))

	got, found, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_ClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), testTriple()))
	require.NoError(t, s.Clear(context.Background()))

	_, found, err := s.Load(context.Background())
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Clear(context.Background()))
}

func TestFileStore_CorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, _, err = s.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}
