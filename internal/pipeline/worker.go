package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/xmlgest/internal/convert"
	"github.com/dgallion1/xmlgest/internal/parser"
	"github.com/dgallion1/xmlgest/internal/stats"
)

// Worker processes a single document job.
type Worker struct {
	conv  *convert.Converter
	store DocumentStore
	stats *stats.Window
	log   *slog.Logger
	wait  func(int) time.Duration

	// storeSem, when set, bounds concurrent store writes across workers.
	storeSem chan struct{}
}

func NewWorker(conv *convert.Converter, store DocumentStore, st *stats.Window, log *slog.Logger) *Worker {
	return &Worker{
		conv:  conv,
		store: store,
		stats: st,
		log:   log,
		wait:  Backoff,
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "user_id", job.UserID)

	// Phase 1: Parse, sanitize and build the document.
	job.SetStatus(StatusParsing, "parsing")
	start := time.Now()
	doc, report, err := w.conv.Ingest(ctx, bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		w.stats.Record(stats.Sample{Duration: time.Since(start), Failed: true})
		log.Error("ingest failed", "error", err)
		job.AddError(fmt.Sprintf("ingest: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	w.stats.Record(stats.Sample{Duration: time.Since(start), Units: doc.Len()})
	job.SetReport(report)
	log.Info("ingested document",
		"elements", report.Elements,
		"units", report.Units,
		"segments", report.Segments,
		"replaced", report.Replaced,
	)

	// Phase 2: Dedup on the produced text.
	hash := ContentHashHex([]byte(doc.Text()))
	existing, found, err := w.store.FindByHash(ctx, job.UserID, hash)
	if err != nil {
		log.Warn("dedup check failed, proceeding", "error", err)
	} else if found && existing != job.DocID {
		log.Info("duplicate document, skipping", "existing_doc_id", existing)
		job.SetResult(hash, "", existing)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 3: Store.
	job.SetStatus(StatusStoring, "storing")
	title := job.Title
	if title == "" {
		title = parser.Title(job.Filename)
	}
	rec := &DocumentRecord{
		DocID:       job.DocID,
		UserID:      job.UserID,
		Version:     NewVersionID(),
		Filename:    job.Filename,
		Title:       title,
		ContentHash: hash,
		CreatedAt:   job.CreatedAt,
		Report:      report,
		Document:    doc,
	}
	if w.storeSem != nil {
		select {
		case w.storeSem <- struct{}{}:
		case <-ctx.Done():
			job.AddError(fmt.Sprintf("store: %s", ctx.Err()))
			job.SetStatus(StatusFailed, "storing")
			return
		}
	}
	err = withRetry(ctx, log, "put document", w.wait, func() error {
		return w.store.Put(ctx, rec)
	})
	if w.storeSem != nil {
		<-w.storeSem
	}
	if err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	job.SetResult(hash, rec.Version, "")
	job.SetStatus(StatusCompleted, "done")
	log.Info("stored document", "version", rec.Version)
}
