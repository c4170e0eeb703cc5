package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sakif/snapcaption/internal/apperror"
	"github.com/sakif/snapcaption/internal/model"
	"github.com/sakif/snapcaption/internal/repository"
)

var _ repository.MediaRepository = (*MediaDB)(nil)

// MediaDB is the media metadata index.
type MediaDB struct {
	conn *sql.DB
}

// Media returns the media repository backed by this database.
func (db *DB) Media() *MediaDB {
	return &MediaDB{conn: db.conn}
}

const mediaColumns = `image_id, image_url, caption, owner_id, created_at`

// Create inserts a record under the caller-supplied ImageID and stamps
// CreatedAt. A reused ImageID fails on the primary key.
func (m *MediaDB) Create(ctx context.Context, record *model.MediaRecord) error {
	record.CreatedAt = time.Now().UTC()

	_, err := m.conn.ExecContext(ctx,
		`INSERT INTO media (`+mediaColumns+`) VALUES (?, ?, ?, ?, ?)`,
		record.ImageID,
		record.ImageURL,
		record.Caption,
		record.OwnerID,
		record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "media.image_id") {
			return apperror.Conflict("image", record.ImageID)
		}
		return fmt.Errorf("sqlite: inserting media %s: %w", record.ImageID, err)
	}
	return nil
}

// GetByID returns one record, or apperror.ErrNotFound.
func (m *MediaDB) GetByID(ctx context.Context, imageID string) (*model.MediaRecord, error) {
	var rec model.MediaRecord
	err := m.conn.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE image_id = ?`, imageID,
	).Scan(&rec.ImageID, &rec.ImageURL, &rec.Caption, &rec.OwnerID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("image", imageID)
		}
		return nil, fmt.Errorf("sqlite: getting media %s: %w", imageID, err)
	}
	return &rec, nil
}

// ListByOwner returns every record of ownerID, newest first.
//
// The query has no ORDER BY: rows are sorted here on the parsed timestamps,
// because the stored text form of a time does not sort lexically once
// fractional seconds vary in length. There is no LIMIT either; listing is a
// full per-owner scan.
func (m *MediaDB) ListByOwner(ctx context.Context, ownerID string) ([]model.MediaRecord, error) {
	rows, err := m.conn.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE owner_id = ?`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing media for %s: %w", ownerID, err)
	}
	defer rows.Close()

	records := make([]model.MediaRecord, 0)
	for rows.Next() {
		var rec model.MediaRecord
		if err := rows.Scan(&rec.ImageID, &rec.ImageURL, &rec.Caption, &rec.OwnerID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning media row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating media: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			// xids embed their creation time, so this keeps ties stable too.
			return records[i].ImageID > records[j].ImageID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// UpdateCaption replaces the caption of imageID and returns the updated
// record. Nothing else about the record changes.
func (m *MediaDB) UpdateCaption(ctx context.Context, imageID, caption string) (*model.MediaRecord, error) {
	result, err := m.conn.ExecContext(ctx,
		`UPDATE media SET caption = ? WHERE image_id = ?`, caption, imageID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating caption of %s: %w", imageID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return nil, apperror.NotFound("image", imageID)
	}

	return m.GetByID(ctx, imageID)
}

// Search filters ListByOwner with model.MediaRecord.Matches, keeping order.
func (m *MediaDB) Search(ctx context.Context, term, ownerID string) ([]model.MediaRecord, error) {
	records, err := m.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if term == "" {
		return records, nil
	}

	matched := records[:0]
	for _, rec := range records {
		if rec.Matches(term) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}
