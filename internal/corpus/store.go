// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus persists papers and mechanisms in SQLite.
// Implements: incremental ingestion of extraction files, score and
// false-positive write-back, embedding storage, full-text search over
// mechanism text, export, and batch checkpoints for the matcher.
package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/analog-engine/internal/embed"
	"github.com/pdiddy/analog-engine/internal/lexicon"
	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "corpus.db"
)

var validate = validator.New()

// Store manages the corpus SQLite database.
type Store struct {
	db           *sql.DB
	dataDir      string
	extractedDir string
	lex          *lexicon.Lexicon
	logger       *zap.Logger
}

// NewStore opens or creates the corpus database at dataDir/index/corpus.db
// and creates the schema if it does not exist.
func NewStore(cfg types.CorpusConfig, lex *lexicon.Lexicon, logger *zap.Logger) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	extracted := cfg.ExtractedDir
	if extracted == "" {
		extracted = filepath.Join(cfg.DataDir, "extracted")
	}
	if lex == nil {
		lex = lexicon.Default()
	}

	s := &Store{
		db:           db,
		dataDir:      cfg.DataDir,
		extractedDir: extracted,
		lex:          lex,
		logger:       logging.OrNop(logger).Named("corpus"),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection so the audit trail and embedding cache can
// share the corpus database.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id INTEGER PRIMARY KEY,
			domain TEXT NOT NULL,
			title TEXT,
			abstract TEXT,
			mechanism_score INTEGER,
			score_categories TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS mechanisms (
			id INTEGER PRIMARY KEY,
			paper_id INTEGER NOT NULL REFERENCES papers(id),
			domain TEXT NOT NULL,
			description TEXT NOT NULL,
			structural_description TEXT NOT NULL DEFAULT '',
			mechanism_type TEXT NOT NULL DEFAULT '',
			canonical_mechanism TEXT NOT NULL DEFAULT '',
			has_equation INTEGER NOT NULL DEFAULT 0,
			false_positive INTEGER,
			embedding BLOB,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mechanisms_paper_id ON mechanisms(paper_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mechanisms_canonical ON mechanisms(canonical_mechanism)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			file TEXT PRIMARY KEY,
			paper_id INTEGER,
			file_mod_time TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			batch_id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoint_units (
			batch_id TEXT NOT NULL REFERENCES checkpoints(batch_id) ON DELETE CASCADE,
			unit_index INTEGER NOT NULL,
			result TEXT NOT NULL,
			PRIMARY KEY (batch_id, unit_index)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='mechanisms_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE mechanisms_fts USING fts5(description, structural_description, content=mechanisms, content_rowid=id)`,
			`CREATE TRIGGER mechanisms_ai AFTER INSERT ON mechanisms BEGIN
				INSERT INTO mechanisms_fts(rowid, description, structural_description)
				VALUES (new.id, new.description, new.structural_description);
			END`,
			`CREATE TRIGGER mechanisms_ad AFTER DELETE ON mechanisms BEGIN
				INSERT INTO mechanisms_fts(mechanisms_fts, rowid, description, structural_description)
				VALUES ('delete', old.id, old.description, old.structural_description);
			END`,
			`CREATE TRIGGER mechanisms_au AFTER UPDATE OF description, structural_description ON mechanisms BEGIN
				INSERT INTO mechanisms_fts(mechanisms_fts, rowid, description, structural_description)
				VALUES ('delete', old.id, old.description, old.structural_description);
				INSERT INTO mechanisms_fts(rowid, description, structural_description)
				VALUES (new.id, new.description, new.structural_description);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from an ingestion run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int

	// Mechanisms counts mechanisms written; InvalidMechanisms counts
	// mechanism records dropped by validation.
	Mechanisms        int
	InvalidMechanisms int
}

// Total returns the number of extraction files processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest reads extraction YAML files from the extracted directory and
// populates the database. Files unchanged since the last run are skipped.
// A file that cannot be read, parsed or validated is counted as failed and
// the run continues.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	entries, err := os.ReadDir(s.extractedDir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading extraction directory %s: %w", s.extractedDir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE file = ?`, name,
		).Scan(&storedModTime)
		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", name)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		data, err := os.ReadFile(filepath.Join(s.extractedDir, name))
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}

		var file types.ExtractionFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			fmt.Fprintf(w, "failed  %s: parse error: %v\n", name, err)
			summary.Failed++
			continue
		}
		if err := validate.Struct(file.Paper); err != nil {
			s.logger.Warn("invalid paper record", zap.String("file", name), zap.Error(err))
			fmt.Fprintf(w, "failed  %s: invalid paper: %v\n", name, err)
			summary.Failed++
			continue
		}

		mechs, invalid := s.buildMechanisms(name, &file)
		summary.InvalidMechanisms += invalid

		owned, err := s.ingestPaper(ctx, name, &file.Paper, mechs, modTime)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}
		for _, c := range owned {
			s.logger.Warn("mechanism id belongs to another paper",
				zap.String("file", name), zap.Int64("mechanism_id", c.MechanismID),
				zap.Int64("paper_id", file.Paper.ID), zap.Int64("owner_paper_id", c.OwnerPaperID))
			fmt.Fprintf(w, "skipped mechanism %d in %s: owned by paper %d\n", c.MechanismID, name, c.OwnerPaperID)
		}
		summary.InvalidMechanisms += len(owned)
		stored := len(mechs) - len(owned)
		summary.Mechanisms += stored

		if isUpdate {
			fmt.Fprintf(w, "updated %s (paper %d, %d mechanisms)\n", name, file.Paper.ID, stored)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (paper %d, %d mechanisms)\n", name, file.Paper.ID, stored)
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d, mechanisms: %d (%d invalid)\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed,
		summary.Mechanisms, summary.InvalidMechanisms)
	return summary, nil
}

// buildMechanisms normalizes the extracted mechanisms of one file. Invalid
// records are logged and dropped. A file marked no_mechanism yields none.
func (s *Store) buildMechanisms(name string, file *types.ExtractionFile) ([]*types.Mechanism, int) {
	if file.NoMechanism {
		return nil, 0
	}
	var (
		out     []*types.Mechanism
		invalid int
	)
	for i, em := range file.Mechanisms {
		if err := validate.Struct(em); err != nil {
			s.logger.Warn("skipping invalid mechanism",
				zap.String("file", name), zap.Int("index", i), zap.Error(err))
			invalid++
			continue
		}
		m := &types.Mechanism{
			ID:                    em.ID,
			PaperID:               file.Paper.ID,
			Domain:                file.Paper.Domain,
			Description:           em.Description,
			StructuralDescription: em.StructuralDescription,
			MechanismType:         em.CanonicalHint,
		}
		m.CanonicalMechanism = s.canonical(em.CanonicalHint, m.MatchText())
		m.HasEquation = em.HasEquation ||
			s.lex.MentionsEquation(em.Description) || s.lex.MentionsEquation(em.StructuralDescription)
		out = append(out, m)
	}
	return out, invalid
}

// canonical resolves the category of a mechanism: the canonicalized hint
// when it is known, else the first category named in the text.
func (s *Store) canonical(hint, text string) string {
	if c, ok := s.lex.Lookup(hint); ok {
		return c
	}
	if cats := s.lex.ExtractCategories(text); len(cats) > 0 {
		return cats[0]
	}
	return ""
}

// ownershipConflict is a mechanism ID already stored under another paper.
type ownershipConflict struct {
	MechanismID  int64
	OwnerPaperID int64
}

// ingestPaper writes one paper and its mechanisms in a transaction. A
// mechanism ID already owned by a different paper is left untouched and
// returned as a conflict.
func (s *Store) ingestPaper(ctx context.Context, file string, paper *types.Paper, mechs []*types.Mechanism, modTime string) ([]ownershipConflict, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// The score survives re-ingestion unless the abstract changed.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO papers (id, domain, title, abstract) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			domain=excluded.domain, title=excluded.title, abstract=excluded.abstract,
			mechanism_score = CASE WHEN papers.abstract IS excluded.abstract THEN papers.mechanism_score ELSE NULL END,
			score_categories = CASE WHEN papers.abstract IS excluded.abstract THEN papers.score_categories ELSE NULL END`,
		paper.ID, paper.Domain, paper.Title, paper.Abstract,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting paper: %w", err)
	}

	ids := make([]int64, len(mechs))
	for i, m := range mechs {
		ids[i] = m.ID
	}
	idsJSON, _ := json.Marshal(ids)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mechanisms WHERE paper_id = ? AND id NOT IN (SELECT value FROM json_each(?))`,
		paper.ID, string(idsJSON),
	); err != nil {
		return nil, fmt.Errorf("deleting stale mechanisms: %w", err)
	}

	// An unchanged mechanism keeps its embedding and false-positive flag.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO mechanisms (id, paper_id, domain, description, structural_description,
			mechanism_type, canonical_mechanism, has_equation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			domain=excluded.domain,
			mechanism_type=excluded.mechanism_type, canonical_mechanism=excluded.canonical_mechanism,
			has_equation=excluded.has_equation,
			embedding = CASE WHEN mechanisms.description = excluded.description
				AND mechanisms.structural_description = excluded.structural_description
				THEN mechanisms.embedding ELSE NULL END,
			false_positive = CASE WHEN mechanisms.description = excluded.description
				AND mechanisms.structural_description = excluded.structural_description
				AND mechanisms.mechanism_type = excluded.mechanism_type
				THEN mechanisms.false_positive ELSE NULL END,
			description=excluded.description, structural_description=excluded.structural_description
		 WHERE mechanisms.paper_id = excluded.paper_id`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var conflicts []ownershipConflict
	for _, m := range mechs {
		res, err := stmt.ExecContext(ctx,
			m.ID, m.PaperID, m.Domain, m.Description, m.StructuralDescription,
			m.MechanismType, m.CanonicalMechanism, m.HasEquation, now,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting mechanism %d: %w", m.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("inserting mechanism %d: %w", m.ID, err)
		} else if n > 0 {
			continue
		}
		c := ownershipConflict{MechanismID: m.ID}
		if err := tx.QueryRowContext(ctx,
			`SELECT paper_id FROM mechanisms WHERE id = ?`, m.ID).Scan(&c.OwnerPaperID); err != nil {
			return nil, fmt.Errorf("reading owner of mechanism %d: %w", m.ID, err)
		}
		conflicts = append(conflicts, c)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (file, paper_id, file_mod_time) VALUES (?, ?, ?)
		 ON CONFLICT(file) DO UPDATE SET paper_id=excluded.paper_id, file_mod_time=excluded.file_mod_time`,
		file, paper.ID, modTime,
	)
	if err != nil {
		return nil, fmt.Errorf("updating indexing status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conflicts, nil
}

// Papers returns every paper ordered by ID.
func (s *Store) Papers(ctx context.Context) ([]*types.Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, title, abstract, mechanism_score, score_categories FROM papers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var out []*types.Paper
	for rows.Next() {
		var (
			p               types.Paper
			title, abstract sql.NullString
			score           sql.NullInt64
			cats            sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Domain, &title, &abstract, &score, &cats); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		p.Title, p.Abstract = title.String, abstract.String
		if score.Valid {
			v := int(score.Int64)
			p.MechanismScore = &v
		}
		if cats.Valid {
			json.Unmarshal([]byte(cats.String), &p.ScoreCategories)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// MissingPapers returns the IDs in ids that no stored paper has, sorted.
func (s *Store) MissingPapers(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idsJSON, _ := json.Marshal(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT j.value FROM json_each(?) j
		 WHERE NOT EXISTS (SELECT 1 FROM papers p WHERE p.id = j.value)
		 ORDER BY j.value`, string(idsJSON))
	if err != nil {
		return nil, fmt.Errorf("querying missing papers: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning paper id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SaveScores writes the mechanism score of every scored paper whose stored
// score is still null. Returns the number of papers updated.
func (s *Store) SaveScores(ctx context.Context, papers []*types.Paper) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	n := 0
	for _, p := range papers {
		if p.MechanismScore == nil {
			continue
		}
		cats, _ := json.Marshal(p.ScoreCategories)
		res, err := tx.ExecContext(ctx,
			`UPDATE papers SET mechanism_score = ?, score_categories = ? WHERE id = ? AND mechanism_score IS NULL`,
			*p.MechanismScore, string(cats), p.ID)
		if err != nil {
			return 0, fmt.Errorf("updating score of paper %d: %w", p.ID, err)
		}
		affected, _ := res.RowsAffected()
		n += int(affected)
	}
	return n, tx.Commit()
}

// MechanismFilter restricts Mechanisms.
type MechanismFilter struct {
	// MinPaperScore keeps mechanisms whose paper scored at least this much.
	// Zero keeps all.
	MinPaperScore int
}

// Mechanisms returns mechanisms ordered by ID, embeddings decoded.
func (s *Store) Mechanisms(ctx context.Context, f MechanismFilter) ([]*types.Mechanism, error) {
	query := `SELECT m.id, m.paper_id, m.domain, m.description, m.structural_description,
			m.mechanism_type, m.canonical_mechanism, m.has_equation, m.false_positive,
			m.embedding, m.created_at
		FROM mechanisms m JOIN papers p ON p.id = m.paper_id`
	var args []any
	if f.MinPaperScore > 0 {
		query += ` WHERE p.mechanism_score >= ?`
		args = append(args, f.MinPaperScore)
	}
	query += ` ORDER BY m.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mechanisms: %w", err)
	}
	defer rows.Close()

	var out []*types.Mechanism
	for rows.Next() {
		m, err := scanMechanism(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMechanism(row scanner) (*types.Mechanism, error) {
	var (
		m       types.Mechanism
		fp      sql.NullBool
		blob    []byte
		created string
	)
	if err := row.Scan(&m.ID, &m.PaperID, &m.Domain, &m.Description, &m.StructuralDescription,
		&m.MechanismType, &m.CanonicalMechanism, &m.HasEquation, &fp, &blob, &created); err != nil {
		return nil, fmt.Errorf("scanning mechanism: %w", err)
	}
	if fp.Valid {
		v := fp.Bool
		m.FalsePositive = &v
	}
	vec, err := embed.DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("mechanism %d: %w", m.ID, err)
	}
	m.Embedding = vec
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &m, nil
}

// SaveTags persists false-positive flags that are set in memory and still
// null in the database. A stored flag is never changed.
func (s *Store) SaveTags(ctx context.Context, mechs []*types.Mechanism) (int, error) {
	return s.updateEach(ctx, mechs,
		`UPDATE mechanisms SET false_positive = ? WHERE id = ? AND false_positive IS NULL`,
		func(m *types.Mechanism) (any, bool) {
			if m.FalsePositive == nil {
				return nil, false
			}
			return *m.FalsePositive, true
		})
}

// SaveEmbeddings persists embeddings that are set in memory and still null
// in the database. A stored embedding is never replaced.
func (s *Store) SaveEmbeddings(ctx context.Context, mechs []*types.Mechanism) (int, error) {
	return s.updateEach(ctx, mechs,
		`UPDATE mechanisms SET embedding = ? WHERE id = ? AND embedding IS NULL`,
		func(m *types.Mechanism) (any, bool) {
			if !m.HasEmbedding() {
				return nil, false
			}
			return embed.EncodeVector(m.Embedding), true
		})
}

func (s *Store) updateEach(ctx context.Context, mechs []*types.Mechanism, query string, value func(*types.Mechanism) (any, bool)) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing update: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, m := range mechs {
		v, ok := value(m)
		if !ok {
			continue
		}
		res, err := stmt.ExecContext(ctx, v, m.ID)
		if err != nil {
			return 0, fmt.Errorf("updating mechanism %d: %w", m.ID, err)
		}
		affected, _ := res.RowsAffected()
		n += int(affected)
	}
	return n, tx.Commit()
}

// ErrMechanismNotFound is returned by Mechanism for unknown IDs.
var ErrMechanismNotFound = errors.New("mechanism not found")

// Mechanism returns one mechanism by ID.
func (s *Store) Mechanism(ctx context.Context, id int64) (*types.Mechanism, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, paper_id, domain, description, structural_description,
			mechanism_type, canonical_mechanism, has_equation, false_positive,
			embedding, created_at
		 FROM mechanisms WHERE id = ?`, id)
	m, err := scanMechanism(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrMechanismNotFound, id)
	}
	return m, err
}

// Stats counts corpus contents.
type Stats struct {
	Papers         int `json:"papers" yaml:"papers"`
	Scored         int `json:"scored" yaml:"scored"`
	Mechanisms     int `json:"mechanisms" yaml:"mechanisms"`
	Canonical      int `json:"canonical" yaml:"canonical"`
	Embedded       int `json:"embedded" yaml:"embedded"`
	FalsePositives int `json:"false_positives" yaml:"false_positives"`
	Untagged       int `json:"untagged" yaml:"untagged"`
}

// Stats returns corpus counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT count(*) FROM papers),
			(SELECT count(*) FROM papers WHERE mechanism_score IS NOT NULL),
			(SELECT count(*) FROM mechanisms),
			(SELECT count(*) FROM mechanisms WHERE canonical_mechanism != ''),
			(SELECT count(*) FROM mechanisms WHERE embedding IS NOT NULL),
			(SELECT count(*) FROM mechanisms WHERE false_positive = 1),
			(SELECT count(*) FROM mechanisms WHERE false_positive IS NULL)`,
	).Scan(&st.Papers, &st.Scored, &st.Mechanisms, &st.Canonical, &st.Embedded, &st.FalsePositives, &st.Untagged)
	if err != nil {
		return st, fmt.Errorf("counting corpus: %w", err)
	}
	return st, nil
}
