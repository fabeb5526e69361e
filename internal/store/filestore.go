// Package store provides single-slot persistence for one credential triple.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qchat/internal/domain"
)

// credentialRecord is the persisted layout: the triple plus its expiration as
// an RFC 3339 string under a fixed key.
type credentialRecord struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

// FileStore keeps the credential triple in a single JSON file, the local
// analog of a per-session key-value slot.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore rooted at path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: path must not be empty")
	}
	return &FileStore{path: path}, nil
}

// Load reads the stored triple. The second return value reports whether a
// record was present at all.
func (s *FileStore) Load(_ context.Context) (domain.CredentialTriple, bool, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.CredentialTriple{}, false, nil
	}
	if err != nil {
		return domain.CredentialTriple{}, false, fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var rec credentialRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.CredentialTriple{}, false, fmt.Errorf("store: decode %s: %w", s.path, err)
	}
	triple, err := recordToTriple(rec)
	if err != nil {
		return domain.CredentialTriple{}, false, err
	}
	return triple, true, nil
}

// Save replaces the stored record wholesale. The file is owner-readable only
// since it carries live secret material.
func (s *FileStore) Save(_ context.Context, triple domain.CredentialTriple) error {
	raw, err := json.Marshal(tripleToRecord(triple))
	if err != nil {
		return fmt.Errorf("store: encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	return nil
}

// Clear evicts the stored record. Clearing an absent record is a no-op.
func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: remove %s: %w", s.path, err)
	}
	return nil
}

func tripleToRecord(triple domain.CredentialTriple) credentialRecord {
	return credentialRecord{
		AccessKeyID:     triple.AccessKeyID,
		SecretAccessKey: triple.SecretAccessKey,
		SessionToken:    triple.SessionToken,
		Expiration:      triple.Expiration.UTC().Format(time.RFC3339),
	}
}

func recordToTriple(rec credentialRecord) (domain.CredentialTriple, error) {
	expiration, err := time.Parse(time.RFC3339, rec.Expiration)
	if err != nil {
		return domain.CredentialTriple{}, fmt.Errorf("store: parse expiration %q: %w", rec.Expiration, err)
	}
	return domain.CredentialTriple{
		AccessKeyID:     rec.AccessKeyID,
		SecretAccessKey: rec.SecretAccessKey,
		SessionToken:    rec.SessionToken,
		Expiration:      expiration,
	}, nil
}
