// Package vault assembles note and schema trees from a directory of files
// and keeps them current as notes are created and deleted.
package vault

import (
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/starford/arbor/internal/index"
	"github.com/starford/arbor/internal/schema"
	"github.com/starford/arbor/internal/sse"
	"github.com/starford/arbor/internal/storage"
	"github.com/starford/arbor/internal/tree"
)

// Publisher receives change notifications. *sse.Broker satisfies it.
type Publisher interface {
	PublishNoteEvent(kind, id, fname string)
	PublishRebuilt(stats sse.TreeStats)
}

// Option configures a Service.
type Option func(*Service)

// WithCache mirrors every good build into c.
func WithCache(c index.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPublisher sends change events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithStubSource overrides identifier and timestamp generation.
func WithStubSource(src tree.StubSource) Option {
	return func(s *Service) { s.ids = src }
}

// WithMatchOptions configures every schema matcher the service builds.
func WithMatchOptions(opts ...schema.Option) Option {
	return func(s *Service) { s.matchOpts = append(s.matchOpts, opts...) }
}

// WithTemplates toggles applying schema templates to new empty notes.
func WithTemplates(on bool) Option {
	return func(s *Service) { s.applyTemplates = on }
}

// WithWorkers bounds concurrent file parsing during a load.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// Service owns the current note and schema trees of one vault.
type Service struct {
	store          storage.Provider
	cache          index.Cache
	events         Publisher
	logger         *slog.Logger
	ids            tree.StubSource
	unknown        *tree.Node
	matchOpts      []schema.Option
	applyTemplates bool
	workers        int

	// writeMu serializes loads and mutations; mu guards the fields below.
	writeMu sync.Mutex
	mu      sync.RWMutex
	notes   *tree.Tree
	schemas *tree.Tree
	matcher *schema.Matcher
	sums    map[string]string
}

// New returns a Service over store. Call Load or Restore before use.
func New(store storage.Provider, opts ...Option) *Service {
	s := &Service{
		store:          store,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:            NewIDSource(),
		unknown:        schema.NewUnknown(),
		applyTemplates: true,
		workers:        runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stats counts the nodes of the current trees.
func (s *Service) Stats() sse.TreeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Service) statsLocked() sse.TreeStats {
	var st sse.TreeStats
	if s.notes != nil {
		for i := 0; i < s.notes.Len(); i++ {
			if s.notes.Node(tree.Index(i)).Stub {
				st.Stubs++
			} else {
				st.Notes++
			}
		}
	}
	if s.schemas != nil {
		st.Schemas = s.schemas.Len() - 1
	}
	return st
}

func (s *Service) publishNote(kind, id, fname string) {
	if s.events != nil {
		s.events.PublishNoteEvent(kind, id, fname)
	}
}

func (s *Service) publishRebuilt(st sse.TreeStats) {
	if s.events != nil {
		s.events.PublishRebuilt(st)
	}
}
