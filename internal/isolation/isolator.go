// Package isolation provides private per-reviewer evidence scopes. Each scope
// is an independent copy of the evidence on disk; no two scopes share a
// mutable location, so releasing one can never corrupt another. Filesystem
// separation is kept here deliberately: evidence may carry secrets, and the
// physical copy is what guarantees a reviewer cannot observe another's input.
// Everything else (verdicts, scores) travels as typed values in memory.
package isolation

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

const (
	evidenceFile     = "evidence.md"
	requirementsFile = "requirements.md"
)

// Scope is one reviewer's private evidence copy. It is exclusively owned by
// a single reviewer invocation and must be released on every exit path.
type Scope struct {
	id  string
	dir string

	mu       sync.Mutex
	released bool
}

// ID returns the unique scope identifier.
func (s *Scope) ID() string {
	return s.id
}

// Dir returns the scope's private directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Evidence reads the scope's evidence copy.
func (s *Scope) Evidence() (string, error) {
	return s.read(evidenceFile)
}

// Requirements reads the scope's requirements slice. Returns empty string if
// no requirements were provided for the round.
func (s *Scope) Requirements() (string, error) {
	text, err := s.read(requirementsFile)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return text, err
}

func (s *Scope) read(name string) (string, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return "", errors.Wrapf(errors.ErrScopeReleased, "scope %s", s.id)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", errors.Wrapf(err, "read %s from scope %s", name, s.id)
	}
	return string(data), nil
}

// Release destroys the scope's private copy. Idempotent: releasing twice is
// safe, and releasing one scope never affects another.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	return os.RemoveAll(s.dir)
}

// Released reports whether the scope has been released.
func (s *Scope) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Isolator builds independent evidence scopes from one source.
type Isolator struct {
	baseDir string
	log     *logger.Logger
}

// NewIsolator creates an isolator rooted at baseDir. An empty baseDir uses
// the OS temp directory.
func NewIsolator(baseDir string) *Isolator {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Isolator{
		baseDir: baseDir,
		log:     logger.Get().With("component", "isolator"),
	}
}

// Isolate creates one private scope holding a copy of the evidence and, if
// present, the leading requirementsLimit bytes of the requirements document.
// The remainder of an oversized requirements document is never written
// anywhere a reviewer can see.
func (i *Isolator) Isolate(evidence, requirements string, requirementsLimit int) (*Scope, error) {
	id := uuid.New().String()
	dir := filepath.Join(i.baseDir, "scope-"+id)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create scope dir %s", dir)
	}

	scope := &Scope{id: id, dir: dir}

	if err := os.WriteFile(filepath.Join(dir, evidenceFile), []byte(evidence), 0o600); err != nil {
		_ = scope.Release()
		return nil, errors.Wrapf(err, "write evidence for scope %s", id)
	}

	if requirements != "" {
		if requirementsLimit > 0 && len(requirements) > requirementsLimit {
			requirements = requirements[:requirementsLimit]
		}
		if err := os.WriteFile(filepath.Join(dir, requirementsFile), []byte(requirements), 0o600); err != nil {
			_ = scope.Release()
			return nil, errors.Wrapf(err, "write requirements for scope %s", id)
		}
	}

	i.log.Debugf("Created scope %s", id)
	return scope, nil
}

// IsolateN creates n fully independent scopes from the same source. On any
// failure, scopes already created are released before the error is returned.
func (i *Isolator) IsolateN(evidence, requirements string, requirementsLimit, n int) ([]*Scope, error) {
	if n < 1 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "scope count must be >= 1, got %d", n)
	}

	scopes := make([]*Scope, 0, n)
	for idx := 0; idx < n; idx++ {
		scope, err := i.Isolate(evidence, requirements, requirementsLimit)
		if err != nil {
			for _, created := range scopes {
				_ = created.Release()
			}
			return nil, errors.Wrapf(err, "isolate copy %d of %d", idx+1, n)
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}
