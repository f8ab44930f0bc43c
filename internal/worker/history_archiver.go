package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/adscale/internal/domain"
)

const (
	// DefaultArchiveInterval is how often the archiver wakes up.
	DefaultArchiveInterval = 24 * time.Hour

	// DefaultRetention keeps this much history hot in Postgres.
	DefaultRetention = 90 * 24 * time.Hour

	// archiveBatchSize pages rows out of the history table.
	archiveBatchSize = 5000
)

// ArchiveHistoryStore is the history access the archiver needs.
type ArchiveHistoryStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.HistoryRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// HistoryArchiver exports history rows past the retention window to S3 as
// NDJSON, then trims them from Postgres. Rows are only deleted after every
// batch of the export uploaded successfully; a failed run leaves the table
// untouched and retries on the next tick.
type HistoryArchiver struct {
	history  ArchiveHistoryStore
	s3Client *s3.Client
	bucket   string

	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	// Stats
	rowsArchived int64
	errors       int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewHistoryArchiver creates a history archiver.
func NewHistoryArchiver(history ArchiveHistoryStore, s3Client *s3.Client, bucket string, retention time.Duration) *HistoryArchiver {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &HistoryArchiver{
		history:   history,
		s3Client:  s3Client,
		bucket:    bucket,
		interval:  DefaultArchiveInterval,
		retention: retention,
		now:       time.Now,
	}
}

// Start begins the archive loop.
func (a *HistoryArchiver) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("history archiver already running")
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.mu.Unlock()

	log.Printf("[HistoryArchiver] Starting with retention: %v", a.retention)

	a.wg.Add(1)
	go a.loop()
	return nil
}

// Stop gracefully stops the archiver.
func (a *HistoryArchiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("[HistoryArchiver] Stopping...")
	a.cancel()
	a.wg.Wait()
	log.Printf("[HistoryArchiver] Stopped. Rows archived: %d, Errors: %d",
		atomic.LoadInt64(&a.rowsArchived), atomic.LoadInt64(&a.errors))
}

func (a *HistoryArchiver) loop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if err := a.RunOnce(a.ctx); err != nil {
				log.Printf("[HistoryArchiver] Archive run failed: %v", err)
				atomic.AddInt64(&a.errors, 1)
			}
		}
	}
}

// RunOnce performs one export-then-trim cycle.
func (a *HistoryArchiver) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, time.Hour)
	defer cancel()

	cutoff := a.now().Add(-a.retention)
	total := 0

	for {
		rows, err := a.history.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		if err := a.uploadBatch(ctx, rows); err != nil {
			return fmt.Errorf("upload batch: %w", err)
		}

		// Trim exactly the rows that went into this upload. A timestamp
		// cutoff would also delete a row past the batch limit that shares
		// executed_at with the batch's newest row, losing it unarchived.
		ids := make([]string, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		deleted, err := a.history.DeleteByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}

		total += len(rows)
		atomic.AddInt64(&a.rowsArchived, deleted)

		if len(rows) < archiveBatchSize {
			break
		}
	}

	if total > 0 {
		log.Printf("[HistoryArchiver] Archived %d history rows older than %s",
			total, cutoff.Format(time.RFC3339))
	}
	return nil
}

// uploadBatch writes one NDJSON object to the archive bucket.
func (a *HistoryArchiver) uploadBatch(ctx context.Context, rows []domain.HistoryRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			return fmt.Errorf("encode row %s: %w", rows[i].ID, err)
		}
	}

	first := rows[0].ExecutedAt.UTC()
	key := fmt.Sprintf("history/%04d/%02d/%s-%d.ndjson",
		first.Year(), first.Month(), first.Format("2006-01-02T150405Z"), len(rows))

	contentType := "application/x-ndjson"
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
