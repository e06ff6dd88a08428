package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/moments/internal/ir"
)

// SaveArtifact upserts one artifact row. Later writes for the same
// (subject, artifact) replace earlier ones.
func (s *Store) SaveArtifact(ctx context.Context, a ir.Artifact) error {
	if !a.Status.Valid() {
		return fmt.Errorf("save artifact %s: invalid status %q", a.ArtifactID, a.Status)
	}
	content, err := marshalContent(a.Content)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.ArtifactID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts
		(subject_id, artifact_id, status, content, error, moment_id, attempt, catalog_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, artifact_id) DO UPDATE SET
			status = excluded.status,
			content = excluded.content,
			error = excluded.error,
			moment_id = excluded.moment_id,
			attempt = excluded.attempt,
			catalog_hash = excluded.catalog_hash,
			updated_at = excluded.updated_at
	`,
		a.SubjectID,
		a.ArtifactID,
		string(a.Status),
		content,
		a.Error,
		a.MomentID,
		a.Attempt,
		a.CatalogHash,
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.ArtifactID, err)
	}
	return nil
}

// DeleteArtifact removes one artifact row. Missing rows are not an error.
func (s *Store) DeleteArtifact(ctx context.Context, subjectID, artifactID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE subject_id = ? AND artifact_id = ?`,
		subjectID, artifactID)
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w", artifactID, err)
	}
	return nil
}

// SaveAttempts replaces a subject's attempt counters.
func (s *Store) SaveAttempts(ctx context.Context, subjectID string, attempts map[string]int) error {
	return s.inTx(ctx, "save attempts", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE subject_id = ?`, subjectID); err != nil {
			return err
		}
		for _, id := range sortedKeys(attempts) {
			if attempts[id] <= 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attempts (subject_id, artifact_id, count) VALUES (?, ?, ?)`,
				subjectID, id, attempts[id]); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveCards replaces a subject's card list, preserving its order.
func (s *Store) SaveCards(ctx context.Context, subjectID string, cards []ir.ActiveCard) error {
	return s.inTx(ctx, "save cards", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE subject_id = ?`, subjectID); err != nil {
			return err
		}
		for i, c := range cards {
			data, err := marshalCard(c)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cards (subject_id, instance_id, seq, card_id, dismissed, data)
				VALUES (?, ?, ?, ?, ?, ?)
			`, subjectID, c.InstanceID, i, c.CardID, boolToInt(c.Dismissed), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveTransitions replaces a subject's transition state and records the turn
// that produced it.
func (s *Store) SaveTransitions(ctx context.Context, subjectID string, turn int64, state map[string]bool) error {
	return s.inTx(ctx, "save transitions", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transitions WHERE subject_id = ?`, subjectID); err != nil {
			return err
		}
		for _, id := range sortedKeys(state) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transitions (subject_id, moment_id, met, turn) VALUES (?, ?, ?, ?)`,
				subjectID, id, boolToInt(state[id]), turn); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (subject_id, turn, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(subject_id) DO UPDATE SET
				turn = excluded.turn,
				updated_at = excluded.updated_at
		`, subjectID, turn, formatTime(time.Now()))
		return err
	})
}

// DeleteSubject removes every row belonging to a subject.
func (s *Store) DeleteSubject(ctx context.Context, subjectID string) error {
	return s.inTx(ctx, "delete subject", func(tx *sql.Tx) error {
		for _, table := range []string{"artifacts", "attempts", "cards", "transitions", "subjects"} {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE subject_id = ?`, table), subjectID); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
