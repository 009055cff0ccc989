// Package workspace scopes the catalog, repositories and open edit sessions
// to one signed-in user. A workspace is built when the user's session starts
// and torn down when it ends; nothing here is process-wide.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"larder/internal/docstore"
	"larder/internal/metrics"
	"larder/internal/models"
	"larder/internal/records"
	"larder/internal/session"
	"larder/internal/taxonomy"
)

var (
	ErrSessionNotFound = errors.New("edit session not found")
	ErrClosed          = errors.New("workspace closed")
)

// Config holds what every workspace is built from
type Config struct {
	Store     docstore.Store
	Logger    *log.Logger
	Metrics   *metrics.Collector
	Defaults  map[models.OptionKind][]string
	MaxLength int

	// OnCatalogEvent, if set, receives the catalog events of every workspace
	OnCatalogEvent func(user string, ev taxonomy.Event)
}

// Workspace is the per-user scope
type Workspace struct {
	User        string
	Catalog     *taxonomy.Catalog
	Ingredients *records.Repository[*models.Ingredient]
	Recipes     *records.Repository[*models.Recipe]

	logger  *log.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	sessions map[string]*session.Session
	closed   bool
}

// New builds the workspace of user
func New(user string, cfg Config) *Workspace {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	opts := []taxonomy.Option{
		taxonomy.WithLogger(logger),
		taxonomy.WithMetrics(cfg.Metrics),
	}
	for kind, values := range cfg.Defaults {
		opts = append(opts, taxonomy.WithDefaults(kind, values))
	}
	if cfg.MaxLength > 0 {
		opts = append(opts, taxonomy.WithMaxLength(cfg.MaxLength))
	}

	catalog := taxonomy.NewCatalog(taxonomy.NewDocumentSource(cfg.Store, user), opts...)
	if cfg.OnCatalogEvent != nil {
		catalog.Subscribe(func(ev taxonomy.Event) {
			cfg.OnCatalogEvent(user, ev)
		})
	}

	return &Workspace{
		User:        user,
		Catalog:     catalog,
		Ingredients: records.NewIngredientRepository(cfg.Store, user, records.WithLogger(logger)),
		Recipes:     records.NewRecipeRepository(cfg.Store, user, records.WithLogger(logger)),
		logger:      logger,
		metrics:     cfg.Metrics,
		sessions:    make(map[string]*session.Session),
	}
}

// StartSession opens an edit session and returns its id
func (w *Workspace) StartSession(ctx context.Context, mode session.Mode, rec *models.Ingredient) (string, *session.Session, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return "", nil, ErrClosed
	}

	s, err := session.Start(ctx, mode, rec, w.Catalog, w.Ingredients,
		session.WithLogger(w.logger),
		session.WithMetrics(w.metrics),
	)
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", nil, ErrClosed
	}
	w.pruneLocked()
	w.sessions[id] = s
	return id, s, nil
}

// Prune forgets sessions that were committed, cancelled or deleted and
// returns how many were dropped
func (w *Workspace) Prune() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pruneLocked()
}

func (w *Workspace) pruneLocked() int {
	n := 0
	for id, s := range w.sessions {
		if s.State().Terminal() {
			delete(w.sessions, id)
			n++
		}
	}
	return n
}

// Session returns an open edit session
func (w *Workspace) Session(id string) (*session.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// EndSession forgets an edit session. A session that is still editing is
// cancelled first; a purchase session ends without further confirmation.
func (w *Workspace) EndSession(id string) {
	w.mu.Lock()
	s, ok := w.sessions[id]
	delete(w.sessions, id)
	w.mu.Unlock()

	if ok && !s.State().Terminal() {
		if err := s.Cancel(); errors.Is(err, session.ErrCancelNeedsConfirmation) {
			_ = s.ConfirmCancel()
		}
	}
}

// OpenSessions returns the number of tracked edit sessions
func (w *Workspace) OpenSessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

// Close ends every edit session and waits for background catalog writes
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	ids := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		w.EndSession(id)
	}
	w.Catalog.Close()
}
