package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/adscale/internal/domain"
)

type fakeArchiveStore struct {
	rows []domain.HistoryRecord

	listCutoffs    []time.Time
	deletedBatches [][]string
}

func (f *fakeArchiveStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.HistoryRecord, error) {
	f.listCutoffs = append(f.listCutoffs, cutoff)
	var out []domain.HistoryRecord
	for _, r := range f.rows {
		if r.ExecutedAt.Before(cutoff) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeArchiveStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	f.deletedBatches = append(f.deletedBatches, ids)
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []domain.HistoryRecord
	var deleted int64
	for _, r := range f.rows {
		if drop[r.ID] {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return deleted, nil
}

// okS3Client builds a real S3 client whose transport answers every request
// with 200 OK, counting uploads.
type okTransport struct{ calls int }

func (t *okTransport) Do(req *http.Request) (*http.Response, error) {
	t.calls++
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func okS3Client(transport *okTransport) *s3.Client {
	return s3.New(s3.Options{
		Region:      "us-east-1",
		Credentials: aws.AnonymousCredentials{},
		HTTPClient:  transport,
	})
}

func TestArchiverRunOnceNothingToArchive(t *testing.T) {
	store := &fakeArchiveStore{}
	a := NewHistoryArchiver(store, nil, "archive-bucket", 30*24*time.Hour)

	// An empty table must return before any S3 or delete work; the nil
	// client would panic otherwise.
	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if len(store.deletedBatches) != 0 {
		t.Error("nothing listed, nothing should be deleted")
	}
}

func TestArchiverCutoffUsesRetention(t *testing.T) {
	store := &fakeArchiveStore{}
	a := NewHistoryArchiver(store, nil, "archive-bucket", 30*24*time.Hour)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if len(store.listCutoffs) != 1 {
		t.Fatalf("list calls = %d, want 1", len(store.listCutoffs))
	}
	want := now.Add(-30 * 24 * time.Hour)
	if !store.listCutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.listCutoffs[0], want)
	}
}

func TestArchiverTrimsOnlyUploadedRows(t *testing.T) {
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{}
	for i := 0; i <= archiveBatchSize; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		if i == archiveBatchSize {
			// One row past the batch limit sharing executed_at with the
			// first batch's newest row (PG timestamps tie under bulk writes).
			at = base.Add(time.Duration(archiveBatchSize-1) * time.Second)
		}
		store.rows = append(store.rows, domain.HistoryRecord{
			ID:         fmt.Sprintf("h%05d", i),
			AdAssetID:  "a1",
			ActionType: domain.ActionPause,
			ExecutedAt: at,
		})
	}

	transport := &okTransport{}
	a := NewHistoryArchiver(store, okS3Client(transport), "archive-bucket", 30*24*time.Hour)
	a.now = func() time.Time { return base.AddDate(0, 2, 0) }

	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}

	// The tied row must ride in a second upload, not vanish with the first
	// batch's trim.
	if transport.calls != 2 {
		t.Errorf("uploads = %d, want 2", transport.calls)
	}
	if len(store.deletedBatches) != 2 ||
		len(store.deletedBatches[0]) != archiveBatchSize ||
		len(store.deletedBatches[1]) != 1 {
		t.Fatalf("delete batches = %d, want sizes [%d 1]", len(store.deletedBatches), archiveBatchSize)
	}
	if store.deletedBatches[1][0] != fmt.Sprintf("h%05d", archiveBatchSize) {
		t.Errorf("second trim = %v, want the tied row", store.deletedBatches[1])
	}
	if len(store.rows) != 0 {
		t.Errorf("rows left = %d, want 0", len(store.rows))
	}
	if got := atomic.LoadInt64(&a.rowsArchived); got != int64(archiveBatchSize)+1 {
		t.Errorf("rowsArchived = %d, want %d", got, archiveBatchSize+1)
	}
}

func TestArchiverDefaultRetention(t *testing.T) {
	a := NewHistoryArchiver(&fakeArchiveStore{}, nil, "archive-bucket", 0)
	if a.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", a.retention, DefaultRetention)
	}
}

func TestArchiverStartStop(t *testing.T) {
	a := NewHistoryArchiver(&fakeArchiveStore{}, nil, "archive-bucket", time.Hour)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := a.Start(); err == nil {
		t.Error("double Start() should return error")
	}
	a.Stop()

	a.mu.RLock()
	running := a.running
	a.mu.RUnlock()
	if running {
		t.Error("archiver should not be running after Stop()")
	}
}
