package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pixelbatch/core"
)

// ImageRepository stores generated images. Each call commits before it
// returns.
type ImageRepository struct {
	db *Database
}

// NewImageRepository creates an ImageRepository.
func NewImageRepository(database *Database) *ImageRepository {
	return &ImageRepository{db: database}
}

var _ core.ImageStore = (*ImageRepository)(nil)

const upsertImageSQL = `
INSERT INTO images (id, src, prompt, prompt_index, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    src = excluded.src,
    prompt = excluded.prompt,
    prompt_index = excluded.prompt_index,
    created_at = excluded.created_at`

// Put inserts rec, replacing any record with the same id.
func (r *ImageRepository) Put(ctx context.Context, rec core.ImageRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	var promptIndex sql.NullInt64
	if rec.PromptIndex != nil {
		promptIndex = sql.NullInt64{Int64: int64(*rec.PromptIndex), Valid: true}
	}

	_, err := r.db.DB().ExecContext(ctx, upsertImageSQL,
		rec.ID, rec.Src, rec.Prompt, promptIndex, created.UnixMilli())
	if err != nil {
		return fmt.Errorf("db: put image %d: %w", rec.ID, err)
	}
	return nil
}

// GetAll returns every image, newest id first.
func (r *ImageRepository) GetAll(ctx context.Context) ([]core.ImageRecord, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT id, src, prompt, prompt_index, created_at FROM images ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("db: query images: %w", err)
	}
	defer rows.Close()

	var records []core.ImageRecord
	for rows.Next() {
		var (
			rec         core.ImageRecord
			promptIndex sql.NullInt64
			createdMs   int64
		)
		if err := rows.Scan(&rec.ID, &rec.Src, &rec.Prompt, &promptIndex, &createdMs); err != nil {
			return nil, fmt.Errorf("db: scan image: %w", err)
		}
		if promptIndex.Valid {
			idx := int(promptIndex.Int64)
			rec.PromptIndex = &idx
		}
		rec.CreatedAt = time.UnixMilli(createdMs)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate images: %w", err)
	}
	return records, nil
}

// Delete removes the image with the given id.
func (r *ImageRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.DB().ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id); err != nil {
		return fmt.Errorf("db: delete image %d: %w", id, err)
	}
	return nil
}

// DeleteMany removes all listed images in one transaction; either every
// delete commits or none does.
func (r *ImageRepository) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM images WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("db: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("db: delete image %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit delete: %w", err)
	}
	return nil
}
