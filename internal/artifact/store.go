package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrArtifactNotFound is returned when an artifact id has no matching row.
var ErrArtifactNotFound = errors.New("artifact: not found")

// Store is the Postgres-backed run/artifact ledger: content-addressed
// dedup, tiered summaries, and the stale-run sweep.
type Store struct {
	pool *pgxpool.Pool

	// runLocks serializes writes per run, per spec's "the artifact store's
	// writes are serialized per run via a run-scoped lock" — content-
	// addressed payload writes themselves are idempotent and may race
	// safely, but the dedup-lookup-then-insert sequence is not.
	runLocksMu sync.Mutex
	runLocks   map[string]*sync.Mutex
}

// NewStore constructs a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, runLocks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(runID string) *sync.Mutex {
	s.runLocksMu.Lock()
	defer s.runLocksMu.Unlock()
	l, ok := s.runLocks[runID]
	if !ok {
		l = &sync.Mutex{}
		s.runLocks[runID] = l
	}
	return l
}

func contentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func estimateTokens(b []byte) int {
	return len(b) / 4
}

// CreateRun inserts a new run record and returns it.
func (s *Store) CreateRun(ctx context.Context, subagent, task, waveID string, budgetTokens int) (Run, error) {
	run := Run{
		ID:                 uuid.NewString(),
		WaveID:             waveID,
		Subagent:           subagent,
		TaskHash:           contentHash([]byte(task)),
		Status:             "running",
		BudgetOutputTokens: budgetTokens,
		CreatedAt:          time.Now(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (run_id, wave_id, subagent, task_hash, status, budget_output_tokens, actual_output_tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, nullable(run.WaveID), run.Subagent, run.TaskHash, run.Status,
		run.BudgetOutputTokens, run.ActualOutputTokens, run.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("artifact: create run: %w", err)
	}
	return run, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// StoreArtifact persists payload for (runID, phase, producer), returning
// the existing artifact if one with the same (run, phase, producer) key
// already shares this content hash, per the spec's dedup invariant: "No
// two artifacts share both (run id, phase, producer) unless the content
// hash also matches."
func (s *Store) StoreArtifact(ctx context.Context, runID string, phase Phase, producer string, payload []byte) (Artifact, error) {
	lock := s.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	hash := contentHash(payload)

	existing, err := s.findArtifact(ctx, runID, phase, producer)
	switch {
	case err == nil && existing.ContentHash == hash:
		return existing, nil
	case err == nil:
		return Artifact{}, fmt.Errorf("artifact: %s/%s/%s already recorded with different content (run id, phase, producer) must share content hash", runID, phase, producer)
	case !errors.Is(err, ErrArtifactNotFound):
		return Artifact{}, err
	}

	artifact := Artifact{
		ID:            uuid.NewString(),
		RunID:         runID,
		Phase:         phase,
		Producer:      producer,
		ContentHash:   hash,
		Payload:       payload,
		ByteSize:      len(payload),
		TokenEstimate: estimateTokens(payload),
		CreatedAt:     time.Now(),
		SummaryTier:   "",
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO artifacts (artifact_id, run_id, phase, producer, content_hash, payload,
			byte_size, token_estimate, created_at, summary, summary_tier, summary_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', '', 0)`,
		artifact.ID, artifact.RunID, string(artifact.Phase), artifact.Producer, artifact.ContentHash,
		artifact.Payload, artifact.ByteSize, artifact.TokenEstimate, artifact.CreatedAt)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: insert: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE runs SET actual_output_tokens = actual_output_tokens + $1 WHERE run_id = $2`,
		artifact.TokenEstimate, runID); err != nil {
		return Artifact{}, fmt.Errorf("artifact: update run token count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Artifact{}, fmt.Errorf("artifact: commit: %w", err)
	}

	return artifact, nil
}

func (s *Store) findArtifact(ctx context.Context, runID string, phase Phase, producer string) (Artifact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT artifact_id, run_id, phase, producer, content_hash, payload, byte_size,
			token_estimate, created_at, summary, summary_tier, summary_tokens
		 FROM artifacts WHERE run_id = $1 AND phase = $2 AND producer = $3`,
		runID, string(phase), producer)

	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Artifact{}, ErrArtifactNotFound
		}
		return Artifact{}, fmt.Errorf("artifact: lookup: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (Artifact, error) {
	var a Artifact
	var phase, tier string
	if err := row.Scan(&a.ID, &a.RunID, &phase, &a.Producer, &a.ContentHash, &a.Payload,
		&a.ByteSize, &a.TokenEstimate, &a.CreatedAt, &a.Summary, &tier, &a.SummaryTokens); err != nil {
		return Artifact{}, err
	}
	a.Phase = Phase(phase)
	a.SummaryTier = SummaryTier(tier)
	return a, nil
}

// GetArtifactContent returns the raw payload bytes for artifactID.
func (s *Store) GetArtifactContent(ctx context.Context, artifactID string) ([]byte, error) {
	row := s.pool.QueryRow(ctx, `SELECT payload FROM artifacts WHERE artifact_id = $1`, artifactID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("artifact: get content: %w", err)
	}
	return payload, nil
}

// UpdateArtifactSummary records a generated summary and its tier for an
// artifact; the underlying payload is never modified.
func (s *Store) UpdateArtifactSummary(ctx context.Context, artifactID, summary string, tier SummaryTier) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE artifacts SET summary = $1, summary_tier = $2, summary_tokens = $3 WHERE artifact_id = $4`,
		summary, string(tier), estimateTokens([]byte(summary)), artifactID)
	if err != nil {
		return fmt.Errorf("artifact: update summary: %w", err)
	}
	return nil
}

// GetRunArtifacts returns every artifact recorded for runID.
func (s *Store) GetRunArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT artifact_id, run_id, phase, producer, content_hash, payload, byte_size,
			token_estimate, created_at, summary, summary_tier, summary_tokens
		 FROM artifacts WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("artifact: list run artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("artifact: scan: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// CompleteRun marks a run with a terminal status.
func (s *Store) CompleteRun(ctx context.Context, runID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = $2 WHERE run_id = $3`,
		status, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("artifact: complete run: %w", err)
	}
	return nil
}

// CreateCapsule builds and persists a bounded result capsule for runID.
func (s *Store) CreateCapsule(ctx context.Context, runID, status, summary string, keyFindings, blockers, nextActions []string) (Capsule, error) {
	artifacts, err := s.GetRunArtifacts(ctx, runID)
	if err != nil {
		return Capsule{}, err
	}
	refs := make([]string, len(artifacts))
	for i, a := range artifacts {
		refs[i] = a.ID
	}

	capsule := Capsule{
		ID:           uuid.NewString(),
		RunID:        runID,
		Status:       status,
		Summary:      truncateString(summary, 2000),
		KeyFindings:  boundedStrings(keyFindings, 5, 200),
		Blockers:     boundedStrings(blockers, 3, 0),
		NextActions:  boundedStrings(nextActions, 3, 0),
		ArtifactRefs: refs,
		IngestedAt:   time.Now(),
	}
	capsule.TokenEstimate = estimateTokens([]byte(capsule.ToContextString()))

	_, err = s.pool.Exec(ctx,
		`INSERT INTO capsules (capsule_id, run_id, content, token_estimate, ingested_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		capsule.ID, capsule.RunID, capsule.ToContextString(), capsule.TokenEstimate, capsule.IngestedAt)
	if err != nil {
		return Capsule{}, fmt.Errorf("artifact: create capsule: %w", err)
	}

	return capsule, nil
}

func boundedStrings(items []string, maxItems, maxChars int) []string {
	bounded := firstN(items, maxItems)
	if maxChars <= 0 {
		return bounded
	}
	out := make([]string, len(bounded))
	for i, s := range bounded {
		out[i] = truncateString(s, maxChars)
	}
	return out
}

// SweepStaleRuns transitions any run still "running" after staleAfter to
// "timed_out", returning the number of runs swept.
func (s *Store) SweepStaleRuns(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleAfter)
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = 'timed_out', completed_at = $1
		 WHERE status = 'running' AND created_at < $2`,
		time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("artifact: sweep stale runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
