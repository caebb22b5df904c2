package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/kzhara/lathemind/backend/internal/domain/entities"
	"github.com/kzhara/lathemind/backend/internal/domain/repositories"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/kzhara/lathemind/backend/pkg/errors"
	"github.com/lib/pq"
)

const samplesTable = "samples"

// SampleAdapter implements SampleRepository on PostgreSQL
type SampleAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSampleAdapter creates a new sample adapter
func NewSampleAdapter(client *postgres.Client) *SampleAdapter {
	return &SampleAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var _ repositories.SampleRepository = (*SampleAdapter)(nil)

// EnsureSchema creates the samples table when it does not exist yet.
func (a *SampleAdapter) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS samples (
	id              TEXT PRIMARY KEY,
	program_code    TEXT NOT NULL,
	drawing_blob_id TEXT,
	name            TEXT NOT NULL DEFAULT '',
	material        TEXT NOT NULL,
	machining_type  TEXT NOT NULL,
	tags            TEXT[] NOT NULL DEFAULT '{}',
	spindle_speed   DOUBLE PRECISION NOT NULL DEFAULT 0,
	feed_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_samples_created_at ON samples (created_at);`
	if _, err := a.client.DB().ExecContext(ctx, ddl); err != nil {
		return apperrors.NewInternalError("failed to ensure samples schema", err)
	}
	return nil
}

// Create persists a new sample
func (a *SampleAdapter) Create(ctx context.Context, sample *entities.Sample) error {
	record := goqu.Record{
		"id":              sample.ID,
		"program_code":    sample.ProgramCode,
		"drawing_blob_id": sql.NullString{String: sample.DrawingBlobID, Valid: sample.DrawingBlobID != ""},
		"name":            sample.Metadata.Name,
		"material":        sample.Metadata.Material,
		"machining_type":  string(sample.Metadata.MachiningType),
		"tags":            pq.Array(sample.Metadata.Tags),
		"spindle_speed":   sample.Metadata.SpindleSpeed,
		"feed_rate":       sample.Metadata.FeedRate,
		"created_at":      sample.CreatedAt,
	}

	query, args, err := a.db.Insert(samplesTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create sample", err)
	}

	return nil
}

// GetByID retrieves a sample by ID
func (a *SampleAdapter) GetByID(ctx context.Context, id string) (*entities.Sample, error) {
	query, args, err := a.selectSamples().Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	row := a.client.DB().QueryRowContext(ctx, query, args...)
	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sample %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get sample", err)
	}

	return sample, nil
}

// GetByIDs retrieves multiple samples by their IDs
func (a *SampleAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Sample, error) {
	if len(ids) == 0 {
		return []*entities.Sample{}, nil
	}

	query, args, err := a.selectSamples().Where(goqu.Ex{"id": ids}).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.querySamples(ctx, query, args)
}

// Delete removes a sample, reporting whether a row was actually removed.
func (a *SampleAdapter) Delete(ctx context.Context, id string) (bool, error) {
	query, args, err := a.db.Delete(samplesTable).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewInternalError("failed to delete sample", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to read delete result", err)
	}

	return affected > 0, nil
}

// ListAll returns every sample ordered by creation time ascending.
func (a *SampleAdapter) ListAll(ctx context.Context) ([]*entities.Sample, error) {
	query, args, err := a.selectSamples().Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.querySamples(ctx, query, args)
}

func (a *SampleAdapter) selectSamples() *goqu.SelectDataset {
	return a.db.Select(
		"id", "program_code", "drawing_blob_id", "name", "material",
		"machining_type", "tags", "spindle_speed", "feed_rate", "created_at",
	).From(samplesTable)
}

func (a *SampleAdapter) querySamples(ctx context.Context, query string, args []interface{}) ([]*entities.Sample, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query samples", err)
	}
	defer rows.Close()

	var samples []*entities.Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan sample", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate samples", err)
	}

	return samples, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSample(row rowScanner) (*entities.Sample, error) {
	sample := &entities.Sample{}
	var drawingBlobID sql.NullString
	var machiningType string

	err := row.Scan(
		&sample.ID,
		&sample.ProgramCode,
		&drawingBlobID,
		&sample.Metadata.Name,
		&sample.Metadata.Material,
		&machiningType,
		pq.Array(&sample.Metadata.Tags),
		&sample.Metadata.SpindleSpeed,
		&sample.Metadata.FeedRate,
		&sample.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sample.DrawingBlobID = drawingBlobID.String
	sample.Metadata.MachiningType = entities.MachiningType(machiningType)

	return sample, nil
}
