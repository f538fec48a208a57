package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opin-voting/backend/internal/memstore"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/queue"
	"github.com/opin-voting/backend/pkg/storage"
)

type fakeDetails struct{}

func (fakeDetails) Details(_ context.Context, o *models.Opin) (*models.VoteDetails, error) {
	d := &models.VoteDetails{Opin: o, Options: []models.OptionDetail{}}
	for i, text := range o.Options {
		d.Options = append(d.Options, models.OptionDetail{Index: i, Text: text, Count: o.Votes[i], Voters: []string{}})
	}
	d.TotalVotes = o.Votes.Sum()
	return d, nil
}

type uploaded struct {
	obj  storage.Object
	body []byte
}

type fakeStore struct {
	mu      sync.Mutex
	objects []uploaded
	err     error
}

func (f *fakeStore) Upload(_ context.Context, obj storage.Object) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, uploaded{obj: obj, body: body})
	return nil
}

type fakeQueue struct {
	mu      sync.Mutex
	jobs    chan *queue.Job
	retried []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case j := <-q.jobs:
		return j, queue.QueueExports, nil
	}
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, job)
	return nil
}

func seed(t *testing.T) (*memstore.Store, *models.Opin) {
	t.Helper()
	st := memstore.New()
	o := &models.Opin{
		LinkID:   "AbC123xyZ9",
		Name:     "Letters",
		Question: "Favourite?",
		Options:  []string{"A", "B", "C"},
		Status:   models.StatusEnded,
		Votes:    models.Tally{1, 2, 0},
	}
	st.Put(o)
	return st, o
}

func exportJob(t *testing.T, opinID uuid.UUID, format string) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeExport, queue.ExportPayload{OpinID: opinID, Format: format})
	require.NoError(t, err)
	return job
}

func TestProcessUploadsCSV(t *testing.T) {
	st, o := seed(t)
	store := &fakeStore{}
	p := NewExportProcessor(st, fakeDetails{}, store, nil, 1, nil)

	require.NoError(t, p.Process(context.Background(), exportJob(t, o.ID, "csv")))

	require.Len(t, store.objects, 1)
	got := store.objects[0]
	require.Equal(t, "exports/"+o.ID.String()+"/results.csv", got.obj.Key)
	require.Equal(t, "text/csv; charset=utf-8", got.obj.ContentType)
	require.Contains(t, got.obj.ContentDisposition, "Letters-results.csv")
	require.Equal(t, int64(len(got.body)), got.obj.ContentLength)
	require.Contains(t, string(got.body), `"B"`)
}

func TestProcessUploadsPNG(t *testing.T) {
	st, o := seed(t)
	store := &fakeStore{}
	p := NewExportProcessor(st, fakeDetails{}, store, nil, 1, nil)

	require.NoError(t, p.Process(context.Background(), exportJob(t, o.ID, "png")))

	require.Len(t, store.objects, 1)
	require.Equal(t, "image/png", store.objects[0].obj.ContentType)
	require.True(t, bytes.HasPrefix(store.objects[0].body, []byte("\x89PNG")))
}

func TestProcessErrors(t *testing.T) {
	st, o := seed(t)
	p := NewExportProcessor(st, fakeDetails{}, &fakeStore{}, nil, 1, nil)
	ctx := context.Background()

	require.Error(t, p.Process(ctx, exportJob(t, o.ID, "gif")))

	err := p.Process(ctx, exportJob(t, uuid.New(), "csv"))
	require.ErrorIs(t, err, models.ErrNotFound)

	require.Error(t, p.Process(ctx, &queue.Job{Type: "recording", Payload: []byte("{}")}))
	require.Error(t, p.Process(ctx, &queue.Job{Type: queue.JobTypeExport, Payload: []byte("not json")}))

	failing := NewExportProcessor(st, fakeDetails{}, &fakeStore{err: errors.New("boom")}, nil, 1, nil)
	require.Error(t, failing.Process(ctx, exportJob(t, o.ID, "csv")))
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	st, o := seed(t)
	store := &fakeStore{}
	q := &fakeQueue{jobs: make(chan *queue.Job, 2)}
	q.jobs <- exportJob(t, o.ID, "xlsx")
	p := NewExportProcessor(st, fakeDetails{}, store, q, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.objects) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.Empty(t, q.retried)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSweeper) SweepAll(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1, nil
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSweeperRunsOnInterval(t *testing.T) {
	target := &countingSweeper{}
	sw := NewSweeper(target, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return target.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSweeperEndsExpiredOpins(t *testing.T) {
	st := memstore.New()
	o := &models.Opin{Name: "Old", Options: []string{"A", "B"}, Status: models.StatusActive, ExpiresAt: time.Now().Add(-time.Hour)}
	st.Put(o)

	sw := NewSweeper(sweepFunc(func(ctx context.Context) (int, error) {
		ids, err := st.EndExpired(ctx, time.Now(), nil)
		return len(ids), err
	}), time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sw.Run(ctx)

	got, err := st.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusEnded, got.Status)
}

type sweepFunc func(ctx context.Context) (int, error)

func (f sweepFunc) SweepAll(ctx context.Context) (int, error) { return f(ctx) }
