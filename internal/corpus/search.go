// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pdiddy/analog-engine/pkg/types"
)

const defaultMaxResults = 20

// SearchOptions holds parameters for corpus queries.
type SearchOptions struct {
	// Query is the FTS5 full-text search string over mechanism text.
	Query string

	// Domain filters by exact paper domain.
	Domain string

	// Canonical filters by canonical mechanism label.
	Canonical string

	// IncludeFalsePositives keeps mechanisms flagged by the filter.
	IncludeFalsePositives bool

	// MaxResults limits result count. Zero uses the default (20).
	MaxResults int
}

// SearchResult is a mechanism with its paper title.
type SearchResult struct {
	types.Mechanism `yaml:",inline"`
	PaperTitle      string  `json:"paper_title" yaml:"paper_title"`
	Rank            float64 `json:"rank" yaml:"rank"`
}

// Search queries mechanisms with optional full-text search and filters.
// Full-text results are ranked by relevance; filter-only results are
// sorted by mechanism ID.
func (s *Store) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	const columns = `m.id, m.paper_id, m.domain, m.description, m.structural_description,
		m.mechanism_type, m.canonical_mechanism, m.has_equation, m.false_positive,
		m.embedding, m.created_at, p.title`

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(`SELECT ` + columns + `, mechanisms_fts.rank
			FROM mechanisms_fts
			JOIN mechanisms m ON m.id = mechanisms_fts.rowid
			LEFT JOIN papers p ON m.paper_id = p.id
			WHERE mechanisms_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(`SELECT ` + columns + `, 0 AS rank
			FROM mechanisms m
			LEFT JOIN papers p ON m.paper_id = p.id
			WHERE 1=1`)
	}

	if opts.Domain != "" {
		qb.WriteString(` AND m.domain = ?`)
		args = append(args, opts.Domain)
	}
	if opts.Canonical != "" {
		qb.WriteString(` AND m.canonical_mechanism = ?`)
		args = append(args, opts.Canonical)
	}
	if !opts.IncludeFalsePositives {
		qb.WriteString(` AND (m.false_positive IS NULL OR m.false_positive = 0)`)
	}

	if useFTS {
		qb.WriteString(` ORDER BY mechanisms_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY m.id`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r     SearchResult
			title sql.NullString
		)
		m, err := scanMechanism(rowFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &title, &r.Rank)...)
		}))
		if err != nil {
			return nil, err
		}
		r.Mechanism = *m
		r.PaperTitle = title.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// rowFunc adapts a scan closure to the scanner interface so extra columns
// can be appended after the mechanism columns.
type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }
