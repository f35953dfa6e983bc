// Package mongostore is a MongoDB-backed alternative to store.FileStore.
// Each write replaces a whole document in one operation; AppendMessages and
// UpdateRun are read-modify-write cycles, so concurrent writers to the same
// thread or run may overwrite each other's changes.
package mongostore

import (
	"context"
	"errors"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/google/uuid"

	"github.com/agentruntime/core/runtime/agent/store"
)

const (
	defaultThreadsCollection = "agent_threads"
	defaultRunsCollection    = "agent_runs"
	defaultOpTimeout         = 5 * time.Second
)

// collection is the subset of *mongo.Collection that Store needs.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResultWrapper
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

// singleResultWrapper lets the real *mongo.SingleResult (via mongoCollection)
// and the in-memory fake used in tests share a Decode-based contract.
type singleResultWrapper interface {
	Decode(v any) error
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

// Options configures Store.
type Options struct {
	Client          *mongodriver.Client
	Database        string
	ThreadsCollName string
	RunsCollName    string
	Timeout         time.Duration
}

// Store implements store.Store against two MongoDB collections: one holding
// thread documents, one holding run documents.
type Store struct {
	client   *mongodriver.Client
	threads  collection
	runs     collection
	timeout  time.Duration
}

// New builds a Store from a live *mongo.Client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	threadsName := opts.ThreadsCollName
	if threadsName == "" {
		threadsName = defaultThreadsCollection
	}
	runsName := opts.RunsCollName
	if runsName == "" {
		runsName = defaultRunsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	return newStoreWithCollections(opts.Client,
		mongoCollection{coll: db.Collection(threadsName)},
		mongoCollection{coll: db.Collection(runsName)},
		timeout)
}

func newStoreWithCollections(client *mongodriver.Client, threads, runs collection, timeout time.Duration) (*Store, error) {
	return &Store{client: client, threads: threads, runs: runs, timeout: timeout}, nil
}

// Init ensures the "id" unique index exists on both collections.
func (s *Store) Init(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	idxModel := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.threads.Indexes().CreateOne(ctx, idxModel); err != nil {
		return err
	}
	if _, err := s.runs.Indexes().CreateOne(ctx, idxModel); err != nil {
		return err
	}
	return nil
}

// Destroy disconnects the underlying Mongo client, if one was supplied.
func (s *Store) Destroy(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// CreateThread creates and persists a new, empty thread.
func (s *Store) CreateThread(ctx context.Context, metadata map[string]any) (store.Thread, error) {
	th := store.Thread{
		ID:        "thread_" + uuid.NewString(),
		Object:    "thread",
		Messages:  []store.Message{},
		Metadata:  metadata,
		CreatedAt: time.Now().Unix(),
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.threads.ReplaceOne(ctx, bson.M{"id": th.ID}, th, options.Replace().SetUpsert(true))
	if err != nil {
		return store.Thread{}, err
	}
	return th, nil
}

// GetThread loads a thread document by id.
func (s *Store) GetThread(ctx context.Context, id string) (store.Thread, error) {
	if id == "" {
		return store.Thread{}, errors.Join(store.ErrIllegalArgument, errors.New("empty id"))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var th store.Thread
	res := s.threads.FindOne(ctx, bson.M{"id": id})
	if err := res.Decode(&th); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return store.Thread{}, errors.Join(store.ErrNotFound, errors.New("thread "+id))
		}
		return store.Thread{}, err
	}
	return th, nil
}

// AppendMessages reads, appends, and replaces the thread document. Like
// FileStore, this is a read-modify-write cycle: concurrent writers racing
// on the same thread id may lose an update unless the deployment adds its
// own coordination.
func (s *Store) AppendMessages(ctx context.Context, threadID string, messages []store.Message) error {
	if len(messages) == 0 {
		return nil
	}
	th, err := s.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	th.Messages = append(th.Messages, messages...)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.threads.ReplaceOne(ctx, bson.M{"id": threadID}, th)
	return err
}

// CreateRun creates and persists a new run document in status "queued".
func (s *Store) CreateRun(ctx context.Context, input []store.InputMessage, threadID string, cfg *store.RunConfig, metadata map[string]any) (store.Run, error) {
	run := store.Run{
		ID:        "run_" + uuid.NewString(),
		Object:    "thread.run",
		ThreadID:  threadID,
		Status:    store.RunQueued,
		Input:     input,
		Config:    cfg,
		Metadata:  metadata,
		CreatedAt: time.Now().Unix(),
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.runs.ReplaceOne(ctx, bson.M{"id": run.ID}, run, options.Replace().SetUpsert(true))
	if err != nil {
		return store.Run{}, err
	}
	return run, nil
}

// GetRun loads a run document by id.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, error) {
	if id == "" {
		return store.Run{}, errors.Join(store.ErrIllegalArgument, errors.New("empty id"))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var run store.Run
	res := s.runs.FindOne(ctx, bson.M{"id": id})
	if err := res.Decode(&run); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return store.Run{}, errors.Join(store.ErrNotFound, errors.New("run "+id))
		}
		return store.Run{}, err
	}
	return run, nil
}

// UpdateRun reads, patches, and replaces the run document.
func (s *Store) UpdateRun(ctx context.Context, id string, patch store.RunPatch) (store.Run, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return store.Run{}, err
	}
	applyPatch(&run, patch)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.runs.ReplaceOne(ctx, bson.M{"id": id}, run)
	if err != nil {
		return store.Run{}, err
	}
	return run, nil
}

func applyPatch(run *store.Run, patch store.RunPatch) {
	if patch.Status != nil {
		run.Status = *patch.Status
	}
	if patch.SetOutput {
		run.Output = patch.Output
	}
	if patch.LastError != nil {
		run.LastError = patch.LastError
	}
	if patch.Usage != nil {
		run.Usage = patch.Usage
	}
	if patch.StartedAt != nil {
		run.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		run.CompletedAt = patch.CompletedAt
	}
	if patch.CancelledAt != nil {
		run.CancelledAt = patch.CancelledAt
	}
	if patch.FailedAt != nil {
		run.FailedAt = patch.FailedAt
	}
	if patch.SetMetadata {
		run.Metadata = patch.Metadata
	}
}

// mongoCollection adapts *mongo.Collection to the collection interface.
type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResultWrapper {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) ReplaceOne(ctx context.Context, filter any, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}

// Ping checks connectivity to the underlying Mongo deployment.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("no mongo client configured")
	}
	return s.client.Ping(ctx, readpref.Primary())
}

var _ store.Store = (*Store)(nil)
