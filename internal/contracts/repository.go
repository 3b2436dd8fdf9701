// Package contracts is the content-addressed contract repository: it
// collapses every (sourceName, contractName) hydration down to one logical
// Contract per unique creation-code hash, and resolves human-written
// references against that set (spec.md §4.1).
package contracts

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/r3e-network/deployengine/internal/apperrors"
	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/model"
)

// Repository is the load-then-finalize-then-lookup contract index. Add,
// Finalize and Lookup are serialized by an internal lock; Lookup returns an
// error until Finalize has run, and contracts added after Finalize are not
// indexed until Finalize runs again.
type Repository struct {
	mu    sync.RWMutex
	byHash map[string]*model.Contract

	// refIndex maps a reference key (contract name or "source:name"; a
	// uniqueHash is looked up in byHash instead) to the set of distinct
	// hashes it resolves to. Built by
	// Finalize from byHash; nil before Finalize runs.
	refIndex  map[string]map[string]struct{}
	ambiguous map[string]struct{}

	bus *eventbus.Bus
}

// New creates an empty repository. bus may be nil; lookups then do not
// emit duplicate_artifact_warning events.
func New(bus *eventbus.Bus) *Repository {
	return &Repository{
		byHash: make(map[string]*model.Contract),
		bus:    bus,
	}
}

// Add hydrates an incoming contract hydration into the repository,
// merging into an existing entry sharing the same UniqueHash per spec.md
// §4.1's hydration rule (non-empty wins, build-info wins over artifact).
func (r *Repository) Add(incoming model.Contract, isBuildInfo bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byHash[incoming.UniqueHash]
	if !ok {
		c := incoming
		r.byHash[incoming.UniqueHash] = &c
		return
	}
	existing.Merge(incoming, isBuildInfo)
}

// Count returns the number of distinct contracts currently held.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHash)
}

// Finalize rebuilds the reference index from scratch and marks any
// reference key that maps to more than one distinct hash as ambiguous
// (spec.md §4.1 Disambiguation). Call once after all Add calls complete.
func (r *Repository) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	refIndex := make(map[string]map[string]struct{})
	addRef := func(key, hash string) {
		set, ok := refIndex[key]
		if !ok {
			set = make(map[string]struct{})
			refIndex[key] = set
		}
		set[hash] = struct{}{}
	}

	for hash, c := range r.byHash {
		for _, key := range c.ReferenceKeys() {
			addRef(key, hash)
		}
	}

	ambiguous := make(map[string]struct{})
	for key, hashes := range refIndex {
		if len(hashes) > 1 {
			ambiguous[key] = struct{}{}
		}
	}

	r.refIndex = refIndex
	r.ambiguous = ambiguous
}

// Lookup resolves a human-written reference to exactly one Contract, or
// returns an error, per the algorithm in spec.md §4.1. contextFilePath may
// be empty when the reference is not relative.
func (r *Repository) Lookup(reference string, contextFilePath string) (*model.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.refIndex == nil {
		return nil, fmt.Errorf("contract repository: Lookup called before Finalize")
	}

	// 1. Relative path reference, resolved against the calling document.
	if (strings.HasPrefix(reference, "./") || strings.HasPrefix(reference, "../")) && contextFilePath != "" {
		abs := filepath.Clean(filepath.Join(filepath.Dir(contextFilePath), reference))
		if c := r.lookupBySourcePath(abs); c != nil {
			return c, nil
		}
	}

	// 2. Direct uniqueHash hit.
	if c, ok := r.byHash[reference]; ok {
		return c, nil
	}

	// 3. Ambiguous reference: never guess.
	if _, ambiguous := r.ambiguous[reference]; ambiguous {
		if r.bus != nil {
			r.bus.Emit(eventbus.KindDuplicateArtifactWarning, eventbus.LevelWarn, map[string]any{
				"reference": reference,
			})
		}
		return nil, apperrors.AmbiguousReference(reference, len(r.refIndex[reference]))
	}

	// 4. Exactly one mapping.
	if hashes, ok := r.refIndex[reference]; ok && len(hashes) == 1 {
		for hash := range hashes {
			return r.byHash[hash], nil
		}
	}

	// 5. Path-suffix match over contributing source files; longest suffix
	// wins, ties are ambiguous.
	if c, err := r.lookupBySuffix(reference); c != nil || err != nil {
		return c, err
	}

	return nil, apperrors.ContractNotFound(reference)
}

func (r *Repository) lookupBySourcePath(absPath string) *model.Contract {
	for _, c := range r.byHash {
		if _, ok := c.Sources[absPath]; ok {
			return c
		}
	}
	return nil
}

func (r *Repository) lookupBySuffix(reference string) (*model.Contract, error) {
	var bestLen int
	var bestHash string
	tie := false

	for hash, c := range r.byHash {
		for src := range c.Sources {
			if !strings.HasSuffix(src, reference) {
				continue
			}
			if !isPathBoundarySuffix(src, reference) {
				continue
			}
			if len(src) > bestLen {
				bestLen = len(src)
				bestHash = hash
				tie = false
			} else if len(src) == bestLen && hash != bestHash {
				tie = true
			}
		}
	}

	if bestHash == "" {
		return nil, nil
	}
	if tie {
		return nil, fmt.Errorf("contract reference %q matches multiple source paths by suffix", reference)
	}
	return r.byHash[bestHash], nil
}

// isPathBoundarySuffix reports whether suffix matches src on a path
// separator boundary (a suffix match on "oken.sol" must not match
// "Token.sol").
func isPathBoundarySuffix(src, suffix string) bool {
	if len(suffix) == len(src) {
		return true
	}
	if len(suffix) > len(src) {
		return false
	}
	boundary := src[len(src)-len(suffix)-1]
	return boundary == '/' || boundary == filepath.Separator
}
