// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/exp/slices"
)

// stepSignature records what a step read and what it wrote, as content
// digests. A step is up to date when both still match.
type stepSignature struct {
	Inputs  digest.Digest `json:"inputs"`
	Outputs digest.Digest `json:"outputs"`
}

// signatureStore persists step signatures across runs. Safe for use from
// concurrent workers; fingerprinting happens outside the lock.
type signatureStore struct {
	path string

	mu      sync.Mutex
	loaded  bool
	records map[string]stepSignature
}

func newSignatureStore(path string) *signatureStore {
	return &signatureStore{path: path, records: make(map[string]stepSignature)}
}

func (s *signatureStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read signature store: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		// A corrupt store only costs a full rebuild.
		s.records = make(map[string]stepSignature)
	}
	s.loaded = true
	return nil
}

func (s *signatureStore) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize signature store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write signature store: %w", err)
	}
	return nil
}

// check reports whether the step is up to date and returns the current
// input fingerprint for a later commit. A missing source is an error; a
// missing target just means stale.
func (s *signatureStore) check(step *Step) (bool, digest.Digest, error) {
	inputs, err := fingerprintPaths(step.Sources)
	if err != nil {
		return false, "", err
	}

	s.mu.Lock()
	record, ok := s.records[step.key()]
	s.mu.Unlock()
	if !ok || record.Inputs != inputs {
		return false, inputs, nil
	}

	for _, target := range step.Targets {
		if _, err := os.Stat(target); err != nil {
			return false, inputs, nil
		}
	}
	outputs, err := fingerprintPaths(step.Targets)
	if err != nil {
		return false, inputs, nil
	}
	return outputs == record.Outputs, inputs, nil
}

// commit records the step's signatures after a successful run. Every
// declared target must now exist; an action that did not produce one is
// reported here.
func (s *signatureStore) commit(step *Step, inputs digest.Digest) error {
	outputs, err := fingerprintPaths(step.Targets)
	if err != nil {
		return fmt.Errorf("step %q did not produce its declared targets: %w", step.Name, err)
	}
	s.mu.Lock()
	s.records[step.key()] = stepSignature{Inputs: inputs, Outputs: outputs}
	s.mu.Unlock()
	return nil
}

// fingerprintPaths digests a path set into one stable digest. Order does
// not matter; directories contribute every contained file.
func fingerprintPaths(paths []string) (digest.Digest, error) {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	digester := digest.Canonical.Digester()
	h := digester.Hash()
	for _, path := range sorted {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.IsDir() {
			err = filepath.WalkDir(path, func(sub string, entry fs.DirEntry, err error) error {
				if err != nil || entry.IsDir() {
					return err
				}
				return writeFileFingerprint(h, sub)
			})
		} else {
			err = writeFileFingerprint(h, path)
		}
		if err != nil {
			return "", err
		}
	}
	return digester.Digest(), nil
}

func writeFileFingerprint(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }() // read-only handle

	sum, err := digest.Canonical.FromReader(f)
	if err != nil {
		return fmt.Errorf("failed to digest %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(w, "%s\x00%s\n", path, sum); err != nil {
		return fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}
	return nil
}
