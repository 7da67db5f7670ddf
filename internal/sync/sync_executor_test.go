package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/openmined/vaultsync/internal/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects side effects in call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *recorder) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.fail[call]
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeRemote struct {
	*recorder
	service blob.ServiceType
}

func (f *fakeRemote) ServiceType() blob.ServiceType { return f.service }

func (f *fakeRemote) List(context.Context) ([]*Entity, error) { return nil, nil }

func (f *fakeRemote) Upload(_ context.Context, key string, isFolder bool, _, knownKeyEnc string) (*Entity, error) {
	if err := f.record("upload " + key); err != nil {
		return nil, err
	}
	keyEnc := knownKeyEnc
	if keyEnc == "" {
		keyEnc = key
	}
	if isFolder {
		return &Entity{Key: key, KeyEnc: keyEnc, MtimeSvr: 999}, nil
	}
	return &Entity{Key: key, KeyEnc: keyEnc, Size: 4, SizeEnc: 4, MtimeCli: 10, MtimeSvr: 999}, nil
}

func (f *fakeRemote) Download(_ context.Context, key string, mtimeCli int64, _, _ string) error {
	return f.record(fmt.Sprintf("download %s@%d", key, mtimeCli))
}

func (f *fakeRemote) Delete(_ context.Context, key, _, keyEnc string) error {
	return f.record("delete-remote " + key + " as " + keyEnc)
}

type fakeLocal struct {
	*recorder
}

func (f *fakeLocal) List(context.Context) ([]*Entity, error) { return nil, nil }

func (f *fakeLocal) EnsureDir(_ context.Context, key string) error {
	return f.record("mkdir " + key)
}

func (f *fakeLocal) Delete(_ context.Context, key string) error {
	return f.record("delete-local " + key)
}

func (f *fakeLocal) Open(context.Context, string) (io.ReadCloser, *Entity, error) {
	return nil, nil, errors.New("not used")
}

func (f *fakeLocal) Write(context.Context, string, io.Reader, int64) error { return nil }

type fakeHistory struct {
	mu      sync.Mutex
	records map[string]*Entity
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{records: map[string]*Entity{}}
}

func (h *fakeHistory) List(context.Context) ([]*Entity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Entity, 0, len(h.records))
	for _, e := range h.records {
		out = append(out, e)
	}
	return out, nil
}

func (h *fakeHistory) Upsert(_ context.Context, e *Entity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[e.Key] = e
	return nil
}

func (h *fakeHistory) Clear(_ context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.records, key)
	return nil
}

func (h *fakeHistory) get(key string) *Entity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records[key]
}

func newTestExecutor(rec *recorder) (*Executor, *fakeHistory) {
	history := newFakeHistory()
	return &Executor{
		Remote:      &fakeRemote{recorder: rec, service: blob.ServiceFS},
		Local:       &fakeLocal{recorder: rec},
		History:     history,
		Concurrency: 1,
	}, history
}

func TestExecutor_PhaseOrder(t *testing.T) {
	rec := &recorder{}
	x, history := newTestExecutor(rec)

	plan := &ExecutionPlan{
		FolderCreation: [][]*MixedEntity{
			{{Key: "a/", Local: folder("a/"), Decision: DecisionFolderExistedLocal}},
			{{Key: "a/b/", Decision: DecisionFolderToBeCreated}},
		},
		Deletion: [][]*MixedEntity{
			{{Key: "x/y.md", Local: file("x/y.md", 1, 5, 0), Decision: DecisionDeletedRemote}},
			{{Key: "old.md", Remote: file("old.md", 1, 5, 5), Decision: DecisionDeletedLocal}},
		},
		Transfer: [][]*MixedEntity{
			{{Key: "a/b/c.md", Remote: file("a/b/c.md", 4, 10, 20), Decision: DecisionCreatedRemote}},
		},
		TotalCount: 5,
	}
	require.NoError(t, history.Upsert(context.Background(), &Entity{Key: "old.md"}))

	require.NoError(t, x.Execute(context.Background(), plan))

	assert.Equal(t, []string{
		"upload a/",
		"mkdir a/b/",
		"upload a/b/",
		"delete-local x/y.md",
		"delete-remote old.md as old.md",
		"mkdir a/b/c.md",
		"download a/b/c.md@10",
	}, rec.Calls())

	assert.Nil(t, history.get("old.md"))
	assert.NotNil(t, history.get("a/"))
	assert.NotNil(t, history.get("a/b/"))
	assert.Equal(t, int64(10), history.get("a/b/c.md").MtimeSvr, "history keeps the content time")
}

func TestExecutor_HistoryRecordNormalized(t *testing.T) {
	rec := &recorder{}
	x, history := newTestExecutor(rec)

	plan := &ExecutionPlan{
		Transfer: [][]*MixedEntity{
			{{Key: "a.md", Local: file("a.md", 4, 10, 0), Decision: DecisionCreatedLocal}},
		},
		TotalCount: 1,
	}
	require.NoError(t, x.Execute(context.Background(), plan))

	got := history.get("a.md")
	require.NotNil(t, got)
	assert.Equal(t, int64(10), got.MtimeCli)
	assert.Equal(t, int64(10), got.MtimeSvr)
}

func TestExecutor_TooManyErrors(t *testing.T) {
	rec := &recorder{fail: map[string]error{}}
	var level []*MixedEntity
	for i := range 6 {
		key := fmt.Sprintf("f%d.md", i)
		rec.fail["upload "+key] = errors.New("boom")
		level = append(level, &MixedEntity{Key: key, Local: file(key, int64(i+1), 10, 0), Decision: DecisionCreatedLocal})
	}
	x, _ := newTestExecutor(rec)

	err := x.Execute(context.Background(), &ExecutionPlan{Transfer: [][]*MixedEntity{level}, TotalCount: 6})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyErrors)

	var levelErr *LevelError
	require.ErrorAs(t, err, &levelErr)
	assert.Equal(t, CategoryTransfer, levelErr.Phase)
	assert.Len(t, levelErr.Errors, maxLevelErrors)
	assert.Len(t, rec.Calls(), maxLevelErrors, "no new entries start after the third failure")
	assert.Contains(t, err.Error(), "boom")
}

func TestExecutor_StopsAtFailedLevel(t *testing.T) {
	rec := &recorder{fail: map[string]error{"delete-local a.md": errors.New("locked")}}
	x, _ := newTestExecutor(rec)

	plan := &ExecutionPlan{
		Deletion: [][]*MixedEntity{
			{
				{Key: "a.md", Local: file("a.md", 1, 1, 0), Decision: DecisionDeletedRemote},
				{Key: "b.md", Local: file("b.md", 1, 1, 0), Decision: DecisionDeletedRemote},
			},
		},
		Transfer: [][]*MixedEntity{
			{{Key: "c.md", Local: file("c.md", 1, 1, 0), Decision: DecisionCreatedLocal}},
		},
		TotalCount: 3,
	}

	err := x.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooManyErrors)

	var levelErr *LevelError
	require.ErrorAs(t, err, &levelErr)
	assert.Equal(t, CategoryDeletion, levelErr.Phase)
	assert.Len(t, levelErr.Errors, 1)

	calls := rec.Calls()
	assert.Contains(t, calls, "delete-local b.md", "the rest of the failed level still runs")
	assert.NotContains(t, calls, "upload c.md")
}

func TestExecutor_KeepBothNotImplemented(t *testing.T) {
	x, _ := newTestExecutor(&recorder{})

	err := x.Execute(context.Background(), &ExecutionPlan{
		Transfer: [][]*MixedEntity{
			{{Key: "a.md", Local: file("a.md", 1, 2, 0), Remote: file("a.md", 2, 1, 1), Decision: DecisionConflictCreatedKeepBoth}},
		},
		TotalCount: 1,
	})
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestExecutor_UnknownDecision(t *testing.T) {
	x, _ := newTestExecutor(&recorder{})

	err := x.Execute(context.Background(), &ExecutionPlan{
		Transfer:   [][]*MixedEntity{{{Key: "a.md", Decision: "teleport"}}},
		TotalCount: 1,
	})
	require.ErrorIs(t, err, ErrUnknownDecision)
}

func TestExecutor_SkipsEmptyUploadOnOneDrive(t *testing.T) {
	rec := &recorder{}
	x, history := newTestExecutor(rec)
	x.Remote = &fakeRemote{recorder: rec, service: blob.ServiceOneDrive}

	plan := &ExecutionPlan{
		Transfer: [][]*MixedEntity{
			{
				{Key: "empty.md", Local: file("empty.md", 0, 10, 0), Decision: DecisionCreatedLocal},
				{Key: "full.md", Local: file("full.md", 3, 10, 0), Decision: DecisionCreatedLocal},
			},
		},
		TotalCount: 2,
	}
	require.NoError(t, x.Execute(context.Background(), plan))

	assert.Equal(t, []string{"upload full.md"}, rec.Calls())
	assert.Nil(t, history.get("empty.md"))

	// encrypted payloads are never empty
	rec2 := &recorder{}
	x2, _ := newTestExecutor(rec2)
	x2.Remote = &fakeRemote{recorder: rec2, service: blob.ServiceOneDrive}
	x2.Password = "secret"
	require.NoError(t, x2.Execute(context.Background(), plan))
	assert.Contains(t, rec2.Calls(), "upload empty.md")
}

func TestExecutor_TransferSmallestFirst(t *testing.T) {
	rec := &recorder{}
	x, _ := newTestExecutor(rec)

	plan := &ExecutionPlan{
		Transfer: [][]*MixedEntity{
			{
				{Key: "big.md", Local: file("big.md", 900, 10, 0), Decision: DecisionCreatedLocal},
				{Key: "mid.md", Local: file("mid.md", 50, 10, 0), Decision: DecisionCreatedLocal},
				{Key: "small.md", Local: file("small.md", 1, 10, 0), Decision: DecisionCreatedLocal},
			},
		},
		TotalCount: 3,
	}
	require.NoError(t, x.Execute(context.Background(), plan))
	assert.Equal(t, []string{"upload small.md", "upload mid.md", "upload big.md"}, rec.Calls())
}

func TestExecutor_Progress(t *testing.T) {
	rec := &recorder{}
	x, _ := newTestExecutor(rec)
	x.Concurrency = 4

	var (
		mu    sync.Mutex
		done  []int
		total []int
	)
	x.Progress = func(d, tot int, key string, decision Decision) {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, d)
		total = append(total, tot)
	}

	var level []*MixedEntity
	for i := range 8 {
		key := fmt.Sprintf("f%d.md", i)
		level = append(level, &MixedEntity{Key: key, Local: file(key, 1, 10, 0), Decision: DecisionCreatedLocal})
	}
	plan := &ExecutionPlan{
		FolderCreation: [][]*MixedEntity{{{Key: "d/", Local: folder("d/"), Decision: DecisionFolderExistedLocal}}},
		Transfer:       [][]*MixedEntity{level},
		TotalCount:     9,
	}
	require.NoError(t, x.Execute(context.Background(), plan))

	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, done)
	for _, tot := range total {
		assert.Equal(t, 9, tot)
	}
}

func TestExecutor_CanceledContext(t *testing.T) {
	rec := &recorder{}
	x, _ := newTestExecutor(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := x.Execute(ctx, &ExecutionPlan{
		Transfer:   [][]*MixedEntity{{{Key: "a.md", Local: file("a.md", 1, 1, 0), Decision: DecisionCreatedLocal}}},
		TotalCount: 1,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Calls())
}

func TestLevelError_Message(t *testing.T) {
	err := &LevelError{
		Phase:   CategoryTransfer,
		Level:   0,
		Errors:  []error{errors.New("a.md: boom"), errors.New("b.md: boom")},
		TooMany: false,
	}
	assert.True(t, strings.HasPrefix(err.Error(), "transfer level 0: 2 error(s)"))
	assert.NotErrorIs(t, err, ErrTooManyErrors)
}
