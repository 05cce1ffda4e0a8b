// Package specstore is an append-only collection of immutable grammar
// snapshots with parent links, cached lint results, and a single
// working draft.
//
// Store is the one type in this module with explicit mutating entry
// points (CreateInitial, ApplyPatch, SetWorkingText); it serializes
// them through an internal mutex. Everything it hands out is immutable
// and safely shareable without locks.
package specstore

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/builtwithtofu/binfmt/grammar"
	"github.com/builtwithtofu/binfmt/patch"
)

// Version is an immutable grammar snapshot.
type Version struct {
	ID           string
	ParentID     string // "" for a root version
	CreatedAt    time.Time
	Text         string
	AST          *grammar.Grammar // nil when LintValid is false
	PatchApplied *patch.Patch     // nil for a root version
	LintValid    bool
	LintErrors   []grammar.LintError
	LintWarnings []grammar.LintWarning
	// Tag is a monotonically increasing semver-shaped lineage label
	// (v0.0.<n>) for display purposes only; IDs remain the
	// authoritative lookup key.
	Tag string
}

// LintResult mirrors grammar.Lint's three return values as a single
// struct for CreateInitial/CommitWorkingDraft's callers.
type LintResult struct {
	Valid    bool
	Errors   []grammar.LintError
	Warnings []grammar.LintWarning
}

// Store is the append-only version store.
type Store struct {
	mu           sync.Mutex
	versions     map[string]*Version
	order        []string
	seq          int
	workingDraft string
	hasDraft     bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{versions: make(map[string]*Version)}
}

// CreateInitial lints text and, on success, allocates a new root
// version (ParentID == ""). On lint failure the version is stored only
// when storeOnLintFailure is true.
func (s *Store) CreateInitial(text string, storeOnLintFailure bool) (string, LintResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, errs, warnings := grammar.Lint(text)
	result := LintResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}

	if !result.Valid && !storeOnLintFailure {
		return "", result
	}

	v := &Version{
		CreatedAt:    time.Now(),
		Text:         text,
		AST:          g,
		LintValid:    result.Valid,
		LintErrors:   errs,
		LintWarnings: warnings,
	}
	s.appendLocked(v)
	return v.ID, result
}

// ApplyPatch retrieves parentID's grammar, applies p, and on success
// appends a new version with ParentID set. On any failure -- unknown
// parent, an invalid parent AST, a structural patch failure, or a
// post-apply lint failure -- the store is left unchanged and the errors
// are returned.
func (s *Store) ApplyPatch(parentID string, p patch.Patch) (string, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.versions[parentID]
	if !ok {
		return "", []error{fmt.Errorf("specstore: unknown parent version %q", parentID)}
	}
	if !parent.LintValid {
		return "", []error{fmt.Errorf("specstore: parent version %q has no valid AST to patch", parentID)}
	}

	baseDoc, err := grammar.ParseText(parent.Text)
	if err != nil {
		return "", []error{fmt.Errorf("specstore: parent version %q text failed to re-parse: %w", parentID, err)}
	}

	result, errs := patch.Apply(baseDoc, p)
	if len(errs) > 0 {
		return "", errs
	}

	// An empty patch keeps the parent's text verbatim; the child differs
	// only in identity, never in content.
	text := parent.Text
	if len(p.Ops) > 0 {
		text, err = grammar.Serialize(result.Grammar)
		if err != nil {
			return "", []error{fmt.Errorf("specstore: failed to serialize patched grammar: %w", err)}
		}
	}

	patchCopy := p
	v := &Version{
		ParentID:     parentID,
		CreatedAt:    time.Now(),
		Text:         text,
		AST:          result.Grammar,
		PatchApplied: &patchCopy,
		LintValid:    true,
		LintWarnings: result.Warnings,
	}
	s.appendLocked(v)
	return v.ID, nil
}

func (s *Store) appendLocked(v *Version) {
	s.seq++
	v.ID = fmt.Sprintf("spec-%04d", s.seq)
	v.Tag = fmt.Sprintf("v0.0.%d", s.seq)
	if !semver.IsValid(v.Tag) {
		panic(fmt.Sprintf("specstore: generated an invalid semver tag %q", v.Tag))
	}
	s.versions[v.ID] = v
	s.order = append(s.order, v.ID)
}

// Get retrieves a version by id. Read-only.
func (s *Store) Get(id string) (*Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	return v, ok
}

// Lineage walks ParentID from id back to its root, returning versions
// root-first. Read-only.
func (s *Store) Lineage(id string) ([]*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chain []*Version
	cur := id
	seen := map[string]bool{}
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("specstore: cycle detected in lineage of %q", id)
		}
		seen[cur] = true
		v, ok := s.versions[cur]
		if !ok {
			return nil, fmt.Errorf("specstore: unknown version %q in lineage of %q", cur, id)
		}
		chain = append(chain, v)
		cur = v.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// SetWorkingText replaces the store's single working draft, invalidating
// any cached validation of the previous draft (there is none -- the
// draft carries no cached lint result by design; CommitWorkingDraft
// always re-lints).
func (s *Store) SetWorkingText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingDraft = text
	s.hasDraft = true
}

// WorkingText returns the current draft, if any.
func (s *Store) WorkingText() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDraft, s.hasDraft
}

// CommitWorkingDraft runs CreateInitial on the working draft text.
func (s *Store) CommitWorkingDraft(storeOnLintFailure bool) (string, LintResult, error) {
	s.mu.Lock()
	text, has := s.workingDraft, s.hasDraft
	s.mu.Unlock()
	if !has {
		return "", LintResult{}, fmt.Errorf("specstore: no working draft set")
	}
	id, result := s.CreateInitial(text, storeOnLintFailure)
	return id, result, nil
}

// Diff returns a deterministic, line-level textual diff between two
// versions' grammar text. Read-only.
func (s *Store) Diff(aID, bID string) ([]DiffLine, error) {
	a, ok := s.Get(aID)
	if !ok {
		return nil, fmt.Errorf("specstore: unknown version %q", aID)
	}
	b, ok := s.Get(bID)
	if !ok {
		return nil, fmt.Errorf("specstore: unknown version %q", bID)
	}
	return lineDiff(a.Text, b.Text), nil
}
