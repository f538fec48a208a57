package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/internal/results"
	"github.com/opin-voting/backend/pkg/queue"
	"github.com/opin-voting/backend/pkg/storage"
)

// OpinLoader loads the opin named by a job.
type OpinLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Opin, error)
}

// DetailsSource builds the result set of a loaded opin.
type DetailsSource interface {
	Details(ctx context.Context, o *models.Opin) (*models.VoteDetails, error)
}

// ArtifactStore persists rendered exports.
type ArtifactStore interface {
	Upload(ctx context.Context, obj storage.Object) error
}

// JobSource is the queue the processor drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ExportProcessor processes export jobs: render the results of an opin and upload them to S3.
type ExportProcessor struct {
	opins   OpinLoader
	details DetailsSource
	store   ArtifactStore
	queue   JobSource
	scale   int
	logger  *zap.Logger
}

// NewExportProcessor creates an export processor. scale is the chart pixel density.
func NewExportProcessor(opins OpinLoader, details DetailsSource, store ArtifactStore, q JobSource, scale int, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{opins: opins, details: details, store: store, queue: q, scale: scale, logger: logger}
}

// Process executes one export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	format, err := results.ParseFormat(payload.Format)
	if err != nil {
		return err
	}

	o, err := p.opins.GetByID(ctx, payload.OpinID)
	if err != nil {
		return fmt.Errorf("load opin %s: %w", payload.OpinID, err)
	}
	d, err := p.details.Details(ctx, o)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}

	var buf bytes.Buffer
	if err := results.Render(&buf, d, format, p.scale); err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	key := storage.ExportKey(o.ID.String(), string(format))
	err = p.store.Upload(ctx, storage.Object{
		Key:                key,
		ContentType:        format.ContentType(),
		ContentDisposition: results.ContentDisposition(results.Filename(o, format)),
		Body:               bytes.NewReader(buf.Bytes()),
		ContentLength:      int64(buf.Len()),
	})
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("export completed", zap.String("opin_id", o.ID.String()), zap.String("format", string(format)), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, queue.RetryBackoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
