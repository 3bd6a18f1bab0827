// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/analog-engine/pkg/types"
)

//go:embed domains.yaml
var defaultDomainsYAML []byte

// ErrInvalidDomainTable is returned when a domain table fails validation.
var ErrInvalidDomainTable = errors.New("invalid domain table")

// Domain-distance buckets recorded in score breakdowns and audit records.
const (
	BucketSameDomain = "same_domain"
	BucketSameFamily = "same_family"
	BucketCrossField = "cross_field"
	BucketDefault    = "default"
)

type fieldDistance struct {
	A        string  `yaml:"a"`
	B        string  `yaml:"b"`
	Distance float64 `yaml:"distance"`
}

type domainDocument struct {
	Version    string              `yaml:"version"`
	SameDomain float64             `yaml:"same_domain"`
	SameFamily float64             `yaml:"same_family"`
	Default    float64             `yaml:"default"`
	Families   map[string][]string `yaml:"families"`
	Fields     []fieldDistance     `yaml:"fields"`
}

type fieldPair struct{ a, b string }

func newFieldPair(a, b string) fieldPair {
	if a > b {
		a, b = b, a
	}
	return fieldPair{a, b}
}

// DomainTable answers domain-distance lookups. It is immutable after
// construction.
type DomainTable struct {
	version    string
	sameDomain float64
	sameFamily float64
	fallback   float64
	family     map[string]string
	fields     map[fieldPair]float64
}

// DefaultDomainTable parses the embedded table.
func DefaultDomainTable() (*DomainTable, error) {
	return ParseDomainTable(defaultDomainsYAML)
}

// LoadDomainTable reads a table from path, or the embedded default when
// path is empty.
func LoadDomainTable(path string) (*DomainTable, error) {
	if path == "" {
		return DefaultDomainTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading domain table %s: %w", path, err)
	}
	return ParseDomainTable(data)
}

// ParseDomainTable builds a DomainTable from YAML.
func ParseDomainTable(data []byte) (*DomainTable, error) {
	var doc domainDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing domain table: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidDomainTable)
	}
	for _, v := range []float64{doc.SameDomain, doc.SameFamily, doc.Default} {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: distance %v outside [0,1]", ErrInvalidDomainTable, v)
		}
	}

	t := &DomainTable{
		version:    doc.Version,
		sameDomain: doc.SameDomain,
		sameFamily: doc.SameFamily,
		fallback:   doc.Default,
		family:     make(map[string]string),
		fields:     make(map[fieldPair]float64, len(doc.Fields)),
	}
	for name, members := range doc.Families {
		for _, d := range members {
			if prev, ok := t.family[d]; ok && prev != name {
				return nil, fmt.Errorf("%w: domain %s in families %s and %s", ErrInvalidDomainTable, d, prev, name)
			}
			t.family[d] = name
		}
	}
	for _, f := range doc.Fields {
		if f.Distance < 0 || f.Distance > 1 {
			return nil, fmt.Errorf("%w: %s-%s distance %v outside [0,1]", ErrInvalidDomainTable, f.A, f.B, f.Distance)
		}
		key := newFieldPair(f.A, f.B)
		if _, dup := t.fields[key]; dup {
			return nil, fmt.Errorf("%w: duplicate field pair %s-%s", ErrInvalidDomainTable, f.A, f.B)
		}
		t.fields[key] = f.Distance
	}
	return t, nil
}

// Version returns the table version.
func (t *DomainTable) Version() string { return t.version }

// Distance returns the distance between two domain labels and the bucket
// that produced it. It is symmetric in its arguments.
func (t *DomainTable) Distance(a, b string) (float64, string) {
	if a == b {
		return t.sameDomain, BucketSameDomain
	}
	if fa, ok := t.family[a]; ok && fa == t.family[b] {
		return t.sameFamily, BucketSameFamily
	}
	pa, pb := types.TopLevelField(a), types.TopLevelField(b)
	if pa == pb {
		return t.sameFamily, BucketSameFamily
	}
	if d, ok := t.fields[newFieldPair(pa, pb)]; ok {
		return d, BucketCrossField
	}
	return t.fallback, BucketDefault
}
