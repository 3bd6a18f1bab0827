// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit implements the match audit trail: an append-only record of
// how each emitted candidate's confidence was computed.
// Implements: record (pair, breakdown → audit record), lookup and listing,
// manual ratings kept in a separate append-only table, and confidence
// reconstruction under new weights from stored components.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/lexicon"
	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/internal/match"
	"github.com/pdiddy/analog-engine/pkg/types"
)

var (
	// ErrDuplicateRecord is returned when a record for the same batch and
	// mechanism pair already exists.
	ErrDuplicateRecord = errors.New("audit record already exists")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("audit record not found")

	// ErrInvalidRating is returned for ratings outside types.ValidRatings.
	ErrInvalidRating = errors.New("invalid rating")
)

// Trail stores audit records in SQLite.
type Trail struct {
	db     *sql.DB
	lex    *lexicon.Lexicon
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewTrail creates the audit tables in db if needed. The trail does not own
// db; closing it is the caller's job.
func NewTrail(ctx context.Context, db *sql.DB, lex *lexicon.Lexicon, logger *zap.Logger) (*Trail, error) {
	t := &Trail{
		db:     db,
		lex:    lex,
		logger: logging.OrNop(logger).Named("audit"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if err := t.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return t, nil
}

func (t *Trail) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_records (
			id TEXT NOT NULL UNIQUE,
			batch_id TEXT NOT NULL,
			mechanism_1_id INTEGER NOT NULL,
			mechanism_2_id INTEGER NOT NULL,
			paper_1_id INTEGER NOT NULL,
			paper_2_id INTEGER NOT NULL,
			domain_1 TEXT NOT NULL,
			domain_2 TEXT NOT NULL,
			confidence REAL NOT NULL,
			breakdown TEXT NOT NULL,
			canonical_mechanism TEXT,
			shared_high_value_terms TEXT NOT NULL,
			shared_keywords TEXT NOT NULL,
			filters TEXT NOT NULL,
			lexicon_version TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (batch_id, mechanism_1_id, mechanism_2_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_confidence ON audit_records(batch_id, confidence DESC)`,
		`CREATE TRIGGER IF NOT EXISTS audit_records_no_update BEFORE UPDATE ON audit_records BEGIN
			SELECT RAISE(ABORT, 'audit records are append-only');
		END`,
		`CREATE TRIGGER IF NOT EXISTS audit_records_no_delete BEFORE DELETE ON audit_records BEGIN
			SELECT RAISE(ABORT, 'audit records are append-only');
		END`,
		`CREATE TABLE IF NOT EXISTS audit_ratings (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL REFERENCES audit_records(id),
			rating TEXT NOT NULL,
			note TEXT,
			rated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ratings_record ON audit_ratings(record_id)`,
	}
	for _, stmt := range statements {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Build assembles the record for a candidate from the two mechanisms that
// produced it. The record is not stored.
func (t *Trail) Build(batchID string, c types.CandidatePair, a, b *types.Mechanism, minConfidence float64) types.AuditRecord {
	canonical := ""
	if a.CanonicalMechanism != "" && a.CanonicalMechanism == b.CanonicalMechanism {
		canonical = a.CanonicalMechanism
	}
	fp := types.FilterPassed
	if a.IsFalsePositive() || b.IsFalsePositive() {
		fp = types.FilterFailed
	}
	generic := types.FilterPassed
	if t.lex.IsGenericOnlyOverlap(a.MatchText(), b.MatchText()) {
		generic = types.FilterFailed
	}
	shared := t.lex.SharedHighValueTerms(a.MatchText(), b.MatchText())
	if shared == nil {
		shared = []string{}
	}

	return types.AuditRecord{
		ID:                   t.newID(),
		BatchID:              batchID,
		Mechanism1ID:         c.Mechanism1ID,
		Mechanism2ID:         c.Mechanism2ID,
		Paper1ID:             c.Paper1ID,
		Paper2ID:             c.Paper2ID,
		Domains:              [2]string{c.Domain1, c.Domain2},
		Breakdown:            c.Breakdown,
		CanonicalMechanism:   canonical,
		SharedHighValueTerms: shared,
		SharedKeywords:       SharedKeywords(a.MatchText(), b.MatchText()),
		Filters: types.AuditFilters{
			FalsePositiveCheck:  fp,
			GenericOverlapCheck: generic,
			DomainBucket:        c.Breakdown.DomainBucket,
			EquationBonus:       c.Breakdown.MathContent > 0,
			MinConfidence:       minConfidence,
		},
		LexiconVersion: t.lex.Version(),
		CreatedAt:      t.now().UTC(),
	}
}

// Record stores records in one transaction. If any record collides with an
// existing one, nothing is stored and ErrDuplicateRecord is returned.
func (t *Trail) Record(ctx context.Context, recs ...types.AuditRecord) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_records (id, batch_id, mechanism_1_id, mechanism_2_id, paper_1_id, paper_2_id,
			domain_1, domain_2, confidence, breakdown, canonical_mechanism, shared_high_value_terms,
			shared_keywords, filters, lexicon_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		breakdown, _ := json.Marshal(r.Breakdown)
		terms, _ := json.Marshal(r.SharedHighValueTerms)
		keywords, _ := json.Marshal(r.SharedKeywords)
		filters, _ := json.Marshal(r.Filters)
		_, err := stmt.ExecContext(ctx,
			r.ID, r.BatchID, r.Mechanism1ID, r.Mechanism2ID, r.Paper1ID, r.Paper2ID,
			r.Domains[0], r.Domains[1], r.Breakdown.Confidence, string(breakdown),
			r.CanonicalMechanism, string(terms), string(keywords), string(filters),
			r.LexiconVersion, r.CreatedAt.Format(time.RFC3339Nano),
		)
		if isConstraint(err) {
			return fmt.Errorf("%w: batch %s pair (%d, %d)", ErrDuplicateRecord, r.BatchID, r.Mechanism1ID, r.Mechanism2ID)
		}
		if err != nil {
			return fmt.Errorf("inserting audit record (%d, %d): %w", r.Mechanism1ID, r.Mechanism2ID, err)
		}
	}
	return tx.Commit()
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// RecordSummary reports a RecordBatch call.
type RecordSummary struct {
	Recorded int
	Skipped  int
}

// Total returns the number of candidates considered.
func (s RecordSummary) Total() int {
	return s.Recorded + s.Skipped
}

// RecordBatch builds and stores a record for every candidate. Candidates
// whose mechanisms are missing from mechs are skipped and logged. All
// records are stored in one transaction.
func (t *Trail) RecordBatch(ctx context.Context, batchID string, cands []types.CandidatePair, mechs map[int64]*types.Mechanism, minConfidence float64, w io.Writer) (RecordSummary, error) {
	var sum RecordSummary
	recs := make([]types.AuditRecord, 0, len(cands))
	for _, c := range cands {
		a, b := mechs[c.Mechanism1ID], mechs[c.Mechanism2ID]
		if a == nil || b == nil {
			t.logger.Warn("skipping audit for unknown mechanism",
				zap.Int64("mechanism_1_id", c.Mechanism1ID), zap.Int64("mechanism_2_id", c.Mechanism2ID))
			fmt.Fprintf(w, "skipped %d-%d: mechanism not found\n", c.Mechanism1ID, c.Mechanism2ID)
			sum.Skipped++
			continue
		}
		recs = append(recs, t.Build(batchID, c, a, b, minConfidence))
	}
	if err := t.Record(ctx, recs...); err != nil {
		return RecordSummary{Skipped: sum.Skipped}, err
	}
	sum.Recorded = len(recs)
	fmt.Fprintf(w, "\naudited %d candidates, skipped %d\n", sum.Recorded, sum.Skipped)
	return sum, nil
}

const selectColumns = `id, batch_id, mechanism_1_id, mechanism_2_id, paper_1_id, paper_2_id,
	domain_1, domain_2, breakdown, canonical_mechanism, shared_high_value_terms,
	shared_keywords, filters, lexicon_version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (types.AuditRecord, error) {
	var (
		r                                          types.AuditRecord
		canonical                                  sql.NullString
		breakdown, terms, keywords, filters, ctime string
	)
	err := row.Scan(&r.ID, &r.BatchID, &r.Mechanism1ID, &r.Mechanism2ID, &r.Paper1ID, &r.Paper2ID,
		&r.Domains[0], &r.Domains[1], &breakdown, &canonical, &terms, &keywords, &filters,
		&r.LexiconVersion, &ctime)
	if err != nil {
		return r, err
	}
	r.CanonicalMechanism = canonical.String
	if err := json.Unmarshal([]byte(breakdown), &r.Breakdown); err != nil {
		return r, fmt.Errorf("decoding breakdown of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(terms), &r.SharedHighValueTerms); err != nil {
		return r, fmt.Errorf("decoding terms of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(keywords), &r.SharedKeywords); err != nil {
		return r, fmt.Errorf("decoding keywords of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(filters), &r.Filters); err != nil {
		return r, fmt.Errorf("decoding filters of %s: %w", r.ID, err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, ctime)
	return r, nil
}

// Get returns the record for a batch and mechanism pair, in either order.
func (t *Trail) Get(ctx context.Context, batchID string, m1, m2 int64) (*types.AuditRecord, error) {
	if m1 > m2 {
		m1, m2 = m2, m1
	}
	row := t.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM audit_records
		 WHERE batch_id = ? AND mechanism_1_id = ? AND mechanism_2_id = ?`, batchID, m1, m2)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: batch %s pair (%d, %d)", ErrNotFound, batchID, m1, m2)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit record: %w", err)
	}
	return &r, nil
}

// ListOptions filters List.
type ListOptions struct {
	BatchID       string
	MinConfidence float64
	Limit         int
}

// List returns records by confidence descending, then by mechanism IDs.
func (t *Trail) List(ctx context.Context, opts ListOptions) ([]types.AuditRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_records WHERE confidence >= ?`
	args := []any{opts.MinConfidence}
	if opts.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, opts.BatchID)
	}
	query += ` ORDER BY confidence DESC, mechanism_1_id, mechanism_2_id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var out []types.AuditRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RatingEntry is one manual rating of a record.
type RatingEntry struct {
	RecordID string       `json:"record_id"`
	Rating   types.Rating `json:"rating"`
	Note     string       `json:"note,omitempty"`
	RatedAt  time.Time    `json:"rated_at"`
}

// Rate appends a manual rating to a record. Earlier ratings are kept.
func (t *Trail) Rate(ctx context.Context, recordID string, rating types.Rating, note string) error {
	if !types.ValidRatings[rating] {
		return fmt.Errorf("%w: %q", ErrInvalidRating, rating)
	}
	var exists int
	if err := t.db.QueryRowContext(ctx,
		`SELECT count(*) FROM audit_records WHERE id = ?`, recordID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking record %s: %w", recordID, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO audit_ratings (record_id, rating, note, rated_at) VALUES (?, ?, ?, ?)`,
		recordID, string(rating), note, t.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting rating: %w", err)
	}
	return nil
}

// Ratings returns the ratings of a record, oldest first.
func (t *Trail) Ratings(ctx context.Context, recordID string) ([]RatingEntry, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT record_id, rating, note, rated_at FROM audit_ratings WHERE record_id = ? ORDER BY rowid`, recordID)
	if err != nil {
		return nil, fmt.Errorf("querying ratings: %w", err)
	}
	defer rows.Close()

	var out []RatingEntry
	for rows.Next() {
		var (
			e      RatingEntry
			rating string
			note   sql.NullString
			ts     string
		)
		if err := rows.Scan(&e.RecordID, &rating, &note, &ts); err != nil {
			return nil, fmt.Errorf("scanning rating: %w", err)
		}
		e.Rating = types.Rating(rating)
		e.Note = note.String
		e.RatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reconstruct recomputes a record's breakdown under new weights from its
// stored components. Nothing is re-embedded.
func Reconstruct(rec types.AuditRecord, w types.ScoreWeights) types.ScoreBreakdown {
	bd := rec.Breakdown
	bd.Weights = w
	bd.Confidence = match.Confidence(bd, w)
	return bd
}

// Reconstruction pairs a stored record with its recomputed confidence.
type Reconstruction struct {
	Record        types.AuditRecord
	OldConfidence float64
	NewConfidence float64
}

// ReconstructBatch recomputes every record of a batch under w, sorted by
// the new confidence descending.
func (t *Trail) ReconstructBatch(ctx context.Context, batchID string, w types.ScoreWeights) ([]Reconstruction, error) {
	recs, err := t.List(ctx, ListOptions{BatchID: batchID})
	if err != nil {
		return nil, err
	}
	out := make([]Reconstruction, len(recs))
	for i, r := range recs {
		out[i] = Reconstruction{
			Record:        r,
			OldConfidence: r.Breakdown.Confidence,
			NewConfidence: Reconstruct(r, w).Confidence,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NewConfidence > out[j].NewConfidence
	})
	return out, nil
}
