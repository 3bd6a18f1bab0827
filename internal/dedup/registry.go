// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup implements the discovery registry and the candidate filter
// that keeps already-surfaced paper pairs from being presented again.
// Implements: load (registry → normalized pair set) with corruption checks,
// filter (candidates → new, duplicates, stats), legacy candidate decoding,
// and append-only registry updates.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"github.com/pdiddy/analog-engine/pkg/types"
)

var (
	// ErrCorruptRegistry is returned when the registry holds duplicate or
	// self-referencing entries, or its metadata disagrees with its contents.
	ErrCorruptRegistry = errors.New("corrupt discovery registry")

	// ErrUnknownPapers is returned when registry entries name papers the
	// corpus does not hold.
	ErrUnknownPapers = errors.New("registry references papers missing from the corpus")
)

var validate = validator.New()

// Metadata is the optional summary block of the registry document.
type Metadata struct {
	TotalPairs  int       `json:"total_pairs"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

type registryFile struct {
	DiscoveredPairs []types.DiscoveredPair `json:"discovered_pairs"`
	Metadata        *Metadata              `json:"metadata,omitempty"`
}

// Registry is the set of paper pairs surfaced in prior batches. It is
// loaded once per batch and only grows by Append.
type Registry struct {
	fs    afero.Fs
	path  string
	pairs []types.DiscoveredPair
	keys  map[types.PairKey]struct{}
}

// Load reads the registry at path. A missing file yields an empty registry.
// Duplicate pairs (in either order), self pairs, entries without both paper
// IDs, and a total_pairs count that disagrees with the entries all return
// ErrCorruptRegistry.
func Load(fs afero.Fs, path string) (*Registry, error) {
	r := &Registry{fs: fs, path: path, keys: make(map[types.PairKey]struct{})}

	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}

	var doc registryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrCorruptRegistry, path, err)
	}

	var problems []string
	for i, p := range doc.DiscoveredPairs {
		if err := validate.Struct(p); err != nil {
			problems = append(problems, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		if p.Paper1ID == p.Paper2ID {
			problems = append(problems, fmt.Sprintf("entry %d: self pair %d", i, p.Paper1ID))
			continue
		}
		k := p.Key()
		if _, dup := r.keys[k]; dup {
			problems = append(problems, fmt.Sprintf("entry %d: duplicate pair (%d, %d)", i, k.Low, k.High))
			continue
		}
		r.keys[k] = struct{}{}
		r.pairs = append(r.pairs, p)
	}
	if doc.Metadata != nil && doc.Metadata.TotalPairs != len(doc.DiscoveredPairs) {
		problems = append(problems, fmt.Sprintf("metadata total_pairs %d, found %d entries",
			doc.Metadata.TotalPairs, len(doc.DiscoveredPairs)))
	}
	if len(problems) > 0 {
		return nil, &CorruptionError{Path: path, Problems: problems}
	}
	return r, nil
}

// CorruptionError lists every inconsistency found in a registry.
type CorruptionError struct {
	Path     string
	Problems []string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s: %s (%d problems, first: %s)", ErrCorruptRegistry, e.Path, len(e.Problems), e.Problems[0])
}

// Unwrap makes errors.Is(err, ErrCorruptRegistry) hold.
func (e *CorruptionError) Unwrap() error { return ErrCorruptRegistry }

// Len returns the number of registered pairs.
func (r *Registry) Len() int { return len(r.keys) }

// Contains reports whether the pair (in either order) is registered.
func (r *Registry) Contains(a, b int64) bool {
	_, ok := r.keys[types.NewPairKey(a, b)]
	return ok
}

// Keys returns the normalized pair keys, sorted.
func (r *Registry) Keys() []types.PairKey {
	out := make([]types.PairKey, 0, len(r.keys))
	for k := range r.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Low != out[j].Low {
			return out[i].Low < out[j].Low
		}
		return out[i].High < out[j].High
	})
	return out
}

// PaperIDs returns every paper ID named by a registered pair, sorted.
func (r *Registry) PaperIDs() []int64 {
	seen := make(map[int64]struct{}, 2*len(r.keys))
	for k := range r.keys {
		seen[k.Low] = struct{}{}
		seen[k.High] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PaperIndex reports which of the given paper IDs a corpus lacks.
type PaperIndex interface {
	MissingPapers(ctx context.Context, ids []int64) ([]int64, error)
}

// ReferenceError lists registered paper IDs unknown to the corpus.
type ReferenceError struct {
	Path    string
	Missing []int64
}

func (e *ReferenceError) Error() string {
	shown := e.Missing
	if len(shown) > 10 {
		shown = shown[:10]
	}
	return fmt.Sprintf("%s: %s (%d papers, first: %v)", ErrUnknownPapers, e.Path, len(e.Missing), shown)
}

// Unwrap makes errors.Is(err, ErrUnknownPapers) hold.
func (e *ReferenceError) Unwrap() error { return ErrUnknownPapers }

// Verify checks every registered paper ID against idx. Unknown IDs yield a
// *ReferenceError.
func (r *Registry) Verify(ctx context.Context, idx PaperIndex) error {
	ids := r.PaperIDs()
	if len(ids) == 0 {
		return nil
	}
	missing, err := idx.MissingPapers(ctx, ids)
	if err != nil {
		return fmt.Errorf("checking registry papers: %w", err)
	}
	if len(missing) > 0 {
		return &ReferenceError{Path: r.path, Missing: missing}
	}
	return nil
}

// Pairs returns the registered entries in file order.
func (r *Registry) Pairs() []types.DiscoveredPair {
	return append([]types.DiscoveredPair(nil), r.pairs...)
}

// AppendSummary reports an Append call.
type AppendSummary struct {
	Added    int
	Existing int
	Invalid  int
}

// Append adds pairs not yet registered. Existing entries are never
// rewritten. Call Save to persist.
func (r *Registry) Append(pairs []types.DiscoveredPair) AppendSummary {
	var sum AppendSummary
	for _, p := range pairs {
		if validate.Struct(p) != nil || p.Paper1ID == p.Paper2ID {
			sum.Invalid++
			continue
		}
		k := p.Key()
		if _, ok := r.keys[k]; ok {
			sum.Existing++
			continue
		}
		r.keys[k] = struct{}{}
		r.pairs = append(r.pairs, p)
		sum.Added++
	}
	return sum
}

// Save writes the registry atomically: the document goes to a temporary
// file next to the target and is renamed over it.
func (r *Registry) Save(now time.Time) error {
	doc := registryFile{
		DiscoveredPairs: r.pairs,
		Metadata:        &Metadata{TotalPairs: len(r.pairs), LastUpdated: now.UTC()},
	}
	if doc.DiscoveredPairs == nil {
		doc.DiscoveredPairs = []types.DiscoveredPair{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	return WriteFileAtomic(r.fs, r.path, append(data, '\n'))
}

// WriteFileAtomic writes data to a temporary sibling of path and renames it
// into place, creating parent directories as needed.
func WriteFileAtomic(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// DiscoveredFromCandidates converts confirmed candidates into registry
// entries tagged with session.
func DiscoveredFromCandidates(cands []types.CandidatePair, session string) []types.DiscoveredPair {
	out := make([]types.DiscoveredPair, 0, len(cands))
	for _, c := range cands {
		k := c.PairKey()
		out = append(out, types.DiscoveredPair{
			Paper1ID:            k.Low,
			Paper2ID:            k.High,
			DiscoveredInSession: session,
			Similarity:          c.Similarity,
		})
	}
	return out
}
