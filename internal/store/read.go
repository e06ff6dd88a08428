package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/moments/internal/ir"
)

// LoadSnapshot reads a subject's persisted state. A subject with no rows
// yields an empty snapshot at turn 0.
func (s *Store) LoadSnapshot(ctx context.Context, subjectID string) (*ir.SubjectSnapshot, error) {
	snap := &ir.SubjectSnapshot{
		SubjectID:   subjectID,
		Artifacts:   []ir.Artifact{},
		Attempts:    map[string]int{},
		Cards:       []ir.ActiveCard{},
		Transitions: map[string]bool{},
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT turn FROM subjects WHERE subject_id = ?`, subjectID).Scan(&snap.Turn)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load snapshot %s: turn: %w", subjectID, err)
	}

	if snap.Artifacts, err = s.ReadArtifacts(ctx, subjectID); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", subjectID, err)
	}
	if snap.Attempts, err = s.readAttempts(ctx, subjectID); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", subjectID, err)
	}
	if snap.Cards, err = s.ReadCards(ctx, subjectID); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", subjectID, err)
	}
	if snap.Transitions, err = s.readTransitions(ctx, subjectID); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", subjectID, err)
	}
	return snap, nil
}

// ReadArtifacts returns a subject's artifacts ordered by artifact id.
func (s *Store) ReadArtifacts(ctx context.Context, subjectID string) ([]ir.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_id, status, content, error, moment_id, attempt, catalog_hash, updated_at
		FROM artifacts
		WHERE subject_id = ?
		ORDER BY artifact_id ASC
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("read artifacts: %w", err)
	}
	defer rows.Close()

	out := []ir.Artifact{}
	for rows.Next() {
		var (
			a         ir.Artifact
			status    string
			content   sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&a.ArtifactID, &status, &content, &a.Error, &a.MomentID, &a.Attempt, &a.CatalogHash, &updatedAt); err != nil {
			return nil, fmt.Errorf("read artifacts: scan: %w", err)
		}
		a.SubjectID = subjectID
		a.Status = ir.ArtifactStatus(status)

		var raw *string
		if content.Valid {
			raw = &content.String
		}
		if a.Content, err = unmarshalContent(raw); err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", a.ArtifactID, err)
		}
		if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", a.ArtifactID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read artifacts: %w", err)
	}
	return out, nil
}

// ReadCards returns a subject's cards in the order they were saved.
func (s *Store) ReadCards(ctx context.Context, subjectID string) ([]ir.ActiveCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM cards
		WHERE subject_id = ?
		ORDER BY seq ASC, instance_id COLLATE BINARY ASC
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("read cards: %w", err)
	}
	defer rows.Close()

	out := []ir.ActiveCard{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("read cards: scan: %w", err)
		}
		c, err := unmarshalCard(data)
		if err != nil {
			return nil, fmt.Errorf("read cards: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cards: %w", err)
	}
	return out, nil
}

func (s *Store) readAttempts(ctx context.Context, subjectID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id, count FROM attempts WHERE subject_id = ? ORDER BY artifact_id ASC`,
		subjectID)
	if err != nil {
		return nil, fmt.Errorf("read attempts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("read attempts: scan: %w", err)
		}
		out[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read attempts: %w", err)
	}
	return out, nil
}

func (s *Store) readTransitions(ctx context.Context, subjectID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT moment_id, met FROM transitions WHERE subject_id = ? ORDER BY moment_id ASC`,
		subjectID)
	if err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var (
			id  string
			met int
		)
		if err := rows.Scan(&id, &met); err != nil {
			return nil, fmt.Errorf("read transitions: scan: %w", err)
		}
		out[id] = met != 0
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	return out, nil
}

// Subjects lists every subject with persisted turn state, sorted by id.
func (s *Store) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id FROM subjects ORDER BY subject_id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list subjects: scan: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return out, nil
}

// CountGenerating returns how many artifacts were left generating, across
// all subjects. A non-zero count after a restart means interrupted work.
func (s *Store) CountGenerating(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM artifacts WHERE status = 'generating'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count generating: %w", err)
	}
	return n, nil
}
