// Package repository is the handle every gitlet command runs against. It
// loads the branch table, staging area and content store, performs one
// operation and persists the result.
package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitlet/internal/commit"
	"gitlet/internal/config"
	"gitlet/internal/diff"
	gerrors "gitlet/internal/errors"
	"gitlet/internal/graph"
	"gitlet/internal/logging"
	"gitlet/internal/safe"
	"gitlet/internal/stage"
	"gitlet/internal/storage"
	"gitlet/internal/validation"
	"gitlet/internal/workspace"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	dbDir      = "db"
	objectsDir = "objects"

	statePrefix = "repo"
	stateID     = "state"
)

// persistedState is everything besides objects that survives between
// commands. It is written as a single badger entry.
type persistedState struct {
	ID    string      `json:"id"`
	Graph graph.State `json:"graph"`
	Stage *stage.Area `json:"stage"`
}

func (s *persistedState) GetID() string { return s.ID }

// Repository represents an opened gitlet repository
type Repository struct {
	Root      string
	DB        *badger.DB
	Safe      *safe.Safe
	Graph     *graph.Graph
	Stage     *stage.Area
	Workspace *workspace.Workspace
	Config    *config.Config
	Logger    *logging.Logger

	states *storage.BadgerStore
	index  *storage.BadgerStore
	diff   *diff.Engine
	clock  func() time.Time
}

type options struct {
	logger *logging.Logger
	clock  func() time.Time
}

// Option customizes Init and Open.
type Option func(*options)

// WithLogger overrides the logger built from the repository config.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the time source used for commit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

func metaDir(root string) string {
	return filepath.Join(root, validation.RepoDirName)
}

// Init creates a new repository at root with a single root commit.
func Init(root string, opts ...Option) (*Repository, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}

	dir := metaDir(absRoot)
	if _, err := os.Stat(dir); err == nil {
		return nil, gerrors.AlreadyInitialized()
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", dir, err)
	}

	for _, d := range []string{dir, filepath.Join(dir, dbDir), filepath.Join(dir, objectsDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.Save(filepath.Join(dir, config.FileName)); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	r, err := open(absRoot, cfg, opts)
	if err != nil {
		return nil, err
	}

	g, rootID, err := graph.Init(r.Safe, r.index, cfg.DefaultBranch, r.Logger.Logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Graph = g
	r.Stage = stage.New()

	if err := r.save(); err != nil {
		r.Close()
		return nil, err
	}

	r.Logger.Info("initialized repository",
		zap.String("root", absRoot),
		zap.String("branch", cfg.DefaultBranch),
		zap.String("root_commit", rootID))
	return r, nil
}

// Open loads an existing repository rooted at root.
func Open(root string, opts ...Option) (*Repository, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}

	dir := metaDir(absRoot)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, gerrors.NotInitialized()
	}

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	r, err := open(absRoot, cfg, opts)
	if err != nil {
		return nil, err
	}

	st := persistedState{Stage: stage.New()}
	if err := r.states.Get(stateID, &st); err != nil {
		r.Close()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, gerrors.Internal("repository state is missing", err)
		}
		return nil, fmt.Errorf("loading repository state: %w", err)
	}

	g, err := graph.Load(r.Safe, r.index, st.Graph, r.Logger.Logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Graph = g
	r.Stage = st.Stage
	if r.Stage == nil {
		r.Stage = stage.New()
	}
	if err := r.Stage.Validate(); err != nil {
		r.Logger.Error("persisted staging area is inconsistent", zap.Error(err))
		r.Close()
		return nil, err
	}

	r.Logger.Debug("opened repository",
		zap.String("root", absRoot),
		zap.String("branch", g.CurrentBranch()),
		zap.String("head", g.HeadID()))
	return r, nil
}

// open wires the storage-backed components shared by Init and Open.
func open(root string, cfg *config.Config, opts []Option) (*Repository, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.NewLogger(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
	}

	dir := metaDir(root)
	db, err := openDB(filepath.Join(dir, dbDir))
	if err != nil {
		return nil, err
	}

	contentSafe, err := safe.New(db, safe.Options{
		Root:      filepath.Join(dir, objectsDir),
		CacheSize: cfg.CacheSize,
		Compression: safe.CompressionOptions{
			MinSize: cfg.Compression.MinSize,
			Level:   cfg.Compression.Level,
		},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing content safe: %w", err)
	}

	ws, err := workspace.New(root, logger.Logger)
	if err != nil {
		contentSafe.Close()
		db.Close()
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	return &Repository{
		Root:      root,
		DB:        db,
		Safe:      contentSafe,
		Workspace: ws,
		Config:    cfg,
		Logger:    logger,
		states:    storage.NewBadgerStore(db, statePrefix),
		index:     storage.NewBadgerStore(db, graph.IndexPrefix),
		diff:      diff.NewEngine(3),
		clock:     o.clock,
	}, nil
}

// openDB opens the badger database at path.
func openDB(path string) (*badger.DB, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// save persists the branch table, the staging area and any new commit index
// records in one transaction.
func (r *Repository) save() error {
	st := &persistedState{
		ID:    stateID,
		Graph: r.Graph.State(),
		Stage: r.Stage,
	}
	pending := r.Graph.Pending()

	err := r.DB.Update(func(txn *badger.Txn) error {
		for _, m := range pending {
			if err := r.index.CreateTxn(txn, m); err != nil {
				return fmt.Errorf("indexing commit %s: %w", m.ID, err)
			}
		}
		return r.states.PutTxn(txn, st)
	})
	if err != nil {
		return fmt.Errorf("saving repository state: %w", err)
	}

	r.Graph.ClearPending()
	return nil
}

// Close releases the database and content store.
func (r *Repository) Close() error {
	if r.Safe != nil {
		r.Safe.Close()
	}
	var err error
	if r.DB != nil {
		err = r.DB.Close()
	}
	if r.Logger != nil {
		_ = r.Logger.Sync()
	}
	return err
}

// op returns a logger tagged for one operation.
func (r *Repository) op(name string) *zap.Logger {
	return r.Logger.ForOperation(name)
}

func (r *Repository) head() (*commit.Commit, error) {
	return r.Graph.Head()
}

// CurrentBranch returns the active branch name.
func (r *Repository) CurrentBranch() string {
	return r.Graph.CurrentBranch()
}

// Path converts a path given on the command line (absolute, or relative to
// cwd) into a repository-relative path.
func (r *Repository) Path(cwd, p string) (string, error) {
	if canonical, err := filepath.EvalSymlinks(cwd); err == nil {
		cwd = canonical
	}
	return validation.RelativePath(r.Workspace.Root(), cwd, p)
}
