package mongostore

import (
	"context"
	"errors"
	"sync"
	"testing"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"github.com/stretchr/testify/require"

	"github.com/agentruntime/core/runtime/agent/store"
)

// fakeCollection is an in-memory stand-in for *mongo.Collection, keyed by
// the "id" field of whatever document it stores. There is no live MongoDB
// in this test tree; this fake is what exercises Store's read-modify-write
// and not-found logic.
type fakeCollection struct {
	mu   sync.Mutex
	docs map[string]any
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]any)}
}

func idOf(filter any) string {
	m, ok := filter.(bson.M)
	if !ok {
		return ""
	}
	id, _ := m["id"].(string)
	return id
}

func (c *fakeCollection) FindOne(ctx context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) singleResultWrapper {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[idOf(filter)]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	return fakeSingleResult{doc: doc}
}

func (c *fakeCollection) ReplaceOne(ctx context.Context, filter any, replacement any, _ ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[idOf(filter)] = replacement
	return &mongodriver.UpdateResult{MatchedCount: 1}, nil
}

func (c *fakeCollection) Indexes() indexView { return fakeIndexView{} }

type fakeIndexView struct{}

func (fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, _ ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return "id_idx", nil
}

type fakeSingleResult struct {
	doc any
	err error
}

func (r fakeSingleResult) Decode(v any) error {
	if r.err != nil {
		return r.err
	}
	switch dst := v.(type) {
	case *store.Thread:
		th, ok := r.doc.(store.Thread)
		if !ok {
			return errors.New("unexpected document type")
		}
		*dst = th
	case *store.Run:
		run, ok := r.doc.(store.Run)
		if !ok {
			return errors.New("unexpected document type")
		}
		*dst = run
	default:
		return errors.New("unsupported decode target")
	}
	return nil
}

func newTestStore() *Store {
	s, err := newStoreWithCollections(nil, newFakeCollection(), newFakeCollection(), 0)
	if err != nil {
		panic(err)
	}
	return s
}

func TestStoreCreateAndGetThread(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	th, err := s.CreateThread(ctx, map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, th.ID)

	got, err := s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	require.Equal(t, th.ID, got.ID)
	require.Equal(t, "v", got.Metadata["k"])
}

func TestStoreGetThreadNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.GetThread(context.Background(), "thread_missing")
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStoreAppendMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	th, err := s.CreateThread(ctx, nil)
	require.NoError(t, err)

	msg := store.Message{ID: "msg_1", Role: store.RoleUser, Content: []store.ContentBlock{store.NewTextBlock("hi")}}
	require.NoError(t, s.AppendMessages(ctx, th.ID, []store.Message{msg}))

	got, err := s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "msg_1", got.Messages[0].ID)
}

func TestStoreCreateAndUpdateRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	run, err := s.CreateRun(ctx, []store.InputMessage{{Role: store.RoleUser, Content: store.NewInputText("hi")}}, "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.RunQueued, run.Status)

	inProgress := store.RunInProgress
	updated, err := s.UpdateRun(ctx, run.ID, store.RunPatch{Status: &inProgress})
	require.NoError(t, err)
	require.Equal(t, store.RunInProgress, updated.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunInProgress, got.Status)
}

func TestStoreUpdateRunNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.UpdateRun(context.Background(), "run_missing", store.RunPatch{})
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestNewRequiresClientAndDatabase(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Client: &mongodriver.Client{}})
	require.Error(t, err)
}
