package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/archetype/internal/ir"
	"github.com/roach88/archetype/internal/validate"
)

// DefaultCacheSize bounds the number of decoded schemes kept in memory.
const DefaultCacheSize = 128

// DefaultMigrationAttempts is how often a scheme mutation is attempted when
// the repository reports a version conflict or a busy database.
const DefaultMigrationAttempts = 3

// Engine wires the scheme and entry services to one repository.
//
// Thread-safety model:
//   - All services are safe for concurrent use
//   - Mutations of the same scheme id are serialized by a per-id mutex;
//     the repository's compare-and-swap catches writers in other processes
//   - Entry writes on different ids need no coordination
type Engine struct {
	repo      Repository
	clock     Clock
	tokens    TokenGenerator
	logger    *slog.Logger
	validator *validate.Validator
	cache     *lru.Cache[int64, ir.Scheme]
	locks     schemeLocks

	// gens counts invalidations per scheme id. A cache fill only lands if
	// no invalidation happened since its read started.
	genMu sync.Mutex
	gens  map[int64]uint64

	cacheSize        int
	patternCacheSize int
	attempts         int

	Schemes *Schemes
	Entries *Entries
	Uploads *Uploads
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the clock used for timestamps. Default: SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTokenGenerator sets the migration token generator.
// Default: UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) EngineOption {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithCacheSize sets the scheme cache size. Default: 128 (DefaultCacheSize).
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithPatternCacheSize sets the compiled pattern cache size of the validator.
func WithPatternCacheSize(n int) EngineOption {
	return func(e *Engine) {
		e.patternCacheSize = n
	}
}

// WithMigrationAttempts sets how often a scheme mutation is attempted.
// Default: 3 (DefaultMigrationAttempts). Values below 1 mean 1.
func WithMigrationAttempts(n int) EngineOption {
	return func(e *Engine) {
		e.attempts = n
	}
}

// New creates an Engine over repo.
func New(repo Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:      repo,
		clock:     SystemClock{},
		tokens:    UUIDv7Generator{},
		logger:    slog.Default(),
		cacheSize: DefaultCacheSize,
		attempts:  DefaultMigrationAttempts,
		gens:      make(map[int64]uint64),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.cacheSize <= 0 {
		e.cacheSize = DefaultCacheSize
	}
	if e.attempts < 1 {
		e.attempts = 1
	}
	// lru.New only fails for a non-positive size.
	e.cache, _ = lru.New[int64, ir.Scheme](e.cacheSize)
	e.validator = validate.New(repoRefs{repo: repo}, e.patternCacheSize)

	e.Schemes = &Schemes{e: e}
	e.Entries = &Entries{e: e}
	e.Uploads = &Uploads{e: e}
	return e
}

// scheme returns a private copy of the scheme, read through the cache.
func (e *Engine) scheme(ctx context.Context, id int64) (ir.Scheme, error) {
	if s, ok := e.cache.Get(id); ok {
		return s.Clone(), nil
	}
	gen := e.generation(id)
	s, err := e.repo.GetScheme(ctx, id)
	if err != nil {
		return ir.Scheme{}, e.storeError("get scheme", err, "scheme", id)
	}
	e.fill(id, gen, s)
	return s, nil
}

func (e *Engine) generation(id int64) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.gens[id]
}

// fill caches s unless the scheme was invalidated after gen was taken;
// the read may then predate the mutation.
func (e *Engine) fill(id int64, gen uint64, s ir.Scheme) {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	if e.gens[id] == gen {
		e.cache.Add(id, s.Clone())
	}
}

// freshScheme bypasses the cache; mutations always start from storage.
func (e *Engine) freshScheme(ctx context.Context, id int64) (ir.Scheme, error) {
	s, err := e.repo.GetScheme(ctx, id)
	if err != nil {
		return ir.Scheme{}, e.storeError("get scheme", err, "scheme", id)
	}
	return s, nil
}

func (e *Engine) invalidate(id int64) {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	e.gens[id]++
	e.cache.Remove(id)
}

// storeError maps repository errors: a missing row becomes a NotFound for
// what/id, anything else is logged and surfaced as KindInternal.
func (e *Engine) storeError(op string, err error, what string, id any) error {
	if errors.Is(err, ir.ErrNotFound) {
		return NewNotFoundError(what, id)
	}
	return e.internal(op, err)
}

// internal logs err and returns a KindInternal error without its details.
func (e *Engine) internal(op string, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	e.logger.Error("storage failure", "op", op, "error", err)
	return &Error{Kind: KindInternal, Message: op + " failed", Err: err}
}

// schemeLocks hands out one mutex per scheme id.
type schemeLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *schemeLocks) lock(id int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// repoRefs resolves ENTRIES and UPLOADS references for the validator.
type repoRefs struct {
	repo Repository
}

func (r repoRefs) EntryScheme(ctx context.Context, entryID int64) (int64, bool, error) {
	entry, err := r.repo.GetEntry(ctx, entryID)
	if errors.Is(err, ir.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return entry.SchemeID, true, nil
}

func (r repoRefs) Upload(ctx context.Context, uploadID int64) (ir.UploadInfo, bool, error) {
	info, err := r.repo.GetUpload(ctx, uploadID)
	if errors.Is(err, ir.ErrNotFound) {
		return ir.UploadInfo{}, false, nil
	}
	if err != nil {
		return ir.UploadInfo{}, false, err
	}
	return info, true, nil
}
