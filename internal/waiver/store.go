package waiver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// validID matches alphanumeric, dash characters only (wv-<hex>).
var validID = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// validateID rejects IDs that could cause path traversal.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("id must not contain '..'")
	}
	if !validID.MatchString(id) {
		return fmt.Errorf("id contains invalid characters")
	}
	return nil
}

// Store manages waiver record files on disk. This is the administrative
// write path; the gate reads waivers through a Register, never through the
// store directly.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create waiver directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default waiver store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "conclave-waivers")
	}
	return filepath.Join(home, ".conclave", "waivers")
}

// Grant validates and persists a new waiver. A waiver lacking a reason,
// promised mitigation, review date, or linked evaluators is rejected.
func (s *Store) Grant(w Waiver) (*Waiver, error) {
	if strings.TrimSpace(w.Reason) == "" {
		return nil, fmt.Errorf("waiver reason is required")
	}
	if strings.TrimSpace(w.PromisedMitigation) == "" {
		return nil, fmt.Errorf("waiver promised_mitigation is required")
	}
	if w.ReviewDate.IsZero() {
		return nil, fmt.Errorf("waiver review_date is required")
	}
	if len(w.LinkedEvaluatorIDs) == 0 {
		return nil, fmt.Errorf("waiver must link at least one evaluator")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		id, err := generateID()
		if err != nil {
			return nil, err
		}
		w.ID = id
	} else if err := validateID(w.ID); err != nil {
		return nil, fmt.Errorf("invalid waiver id: %w", err)
	}
	if w.GrantedAt.IsZero() {
		w.GrantedAt = time.Now().UTC()
	}
	if w.Status == "" {
		w.Status = StatusActive
	}

	if err := s.writeAtomic(s.path(w.ID), &w); err != nil {
		return nil, fmt.Errorf("failed to write waiver: %w", err)
	}

	return &w, nil
}

// Revoke marks a waiver as revoked. Revocation is permanent.
func (s *Store) Revoke(id string) error {
	return s.setStatus(id, StatusRevoked)
}

// Supersede marks a waiver as superseded by a newer grant.
func (s *Store) Supersede(id string) error {
	return s.setStatus(id, StatusSuperseded)
}

func (s *Store) setStatus(id string, status Status) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("invalid waiver id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.read(id)
	if err != nil {
		return fmt.Errorf("waiver %q not found: %w", id, err)
	}

	w.Status = status
	return s.writeAtomic(s.path(id), w)
}

// List returns all waiver records in the store, including inactive ones.
func (s *Store) List() ([]Waiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var waivers []Waiver
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		w, err := s.read(id)
		if err != nil {
			continue
		}
		waivers = append(waivers, *w)
	}

	return waivers, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) read(id string) (*Waiver, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var w Waiver
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) writeAtomic(path string, w *Waiver) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return "wv-" + hex.EncodeToString(b), nil
}
