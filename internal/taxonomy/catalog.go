// Package taxonomy maintains the merged option lists (location, unit,
// category) offered when editing an ingredient.
//
// Each list is the bundled defaults, then the user's custom entries, then a
// trailing sentinel ("Add Location", ...) that asks for a new custom entry.
// Entries are unique per kind, compared case-insensitively; the first
// accepted spelling is canonical.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"larder/internal/metrics"
	"larder/internal/models"
)

var (
	ErrEmptyOption   = errors.New("option text is empty")
	ErrSentinelValue = errors.New("sentinel entry is not a selectable value")
	ErrUnknownKind   = errors.New("unknown option kind")
	ErrOptionTooLong = errors.New("option text too long")
	ErrClosed        = errors.New("catalog closed")
)

// EventType tells observers what changed
type EventType string

const (
	EventRefreshed     EventType = "refreshed"
	EventAdded         EventType = "added"
	EventPersistFailed EventType = "persist_failed"
	EventPersisted     EventType = "persisted"
)

// Event is delivered to observers after the cached list for a kind changes,
// a custom entry fails to persist, or a previously failed entry is saved
type Event struct {
	Kind    models.OptionKind    `json:"kind"`
	Type    EventType            `json:"type"`
	Value   string               `json:"value,omitempty"`
	Options []models.OptionEntry `json:"options"`
	Error   string               `json:"error,omitempty"`
}

// Observer receives catalog events. It is called outside the catalog lock.
type Observer func(Event)

type optionList struct {
	defaults []models.OptionEntry
	customs  []models.OptionEntry
	unsaved  []models.OptionEntry
	loaded   bool
}

// lookup finds an existing entry case-insensitively
func (l *optionList) lookup(text string) (models.OptionEntry, bool) {
	for _, e := range l.defaults {
		if e.Matches(text) {
			return e, true
		}
	}
	for _, e := range l.customs {
		if e.Matches(text) {
			return e, true
		}
	}
	return models.OptionEntry{}, false
}

func (l *optionList) entries(kind models.OptionKind) []models.OptionEntry {
	out := make([]models.OptionEntry, 0, len(l.defaults)+len(l.customs)+1)
	out = append(out, l.defaults...)
	out = append(out, l.customs...)
	return append(out, models.SentinelEntry(kind))
}

// merge appends remote values not already present and reports how many were new
func (l *optionList) merge(kind models.OptionKind, values []string) int {
	added := 0
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, kind.Sentinel()) {
			continue
		}
		if _, ok := l.lookup(v); ok {
			continue
		}
		l.customs = append(l.customs, models.OptionEntry{Kind: kind, Value: v, Origin: models.OriginCustom})
		added++
	}
	return added
}

// markUnsaved records a custom entry missing from the remote source
func (l *optionList) markUnsaved(entry models.OptionEntry) {
	for _, e := range l.unsaved {
		if e.Matches(entry.Value) {
			return
		}
	}
	l.unsaved = append(l.unsaved, entry)
}

// markSaved drops value from the unsaved entries and reports whether it was there
func (l *optionList) markSaved(value string) bool {
	for i, e := range l.unsaved {
		if e.Matches(value) {
			l.unsaved = append(l.unsaved[:i], l.unsaved[i+1:]...)
			return true
		}
	}
	return false
}

// Catalog owns one merged option list per kind for a single user session
type Catalog struct {
	source    Source
	logger    *log.Logger
	metrics   *metrics.Collector
	maxLength int

	refreshes singleflight.Group

	mu           sync.Mutex
	lists        map[models.OptionKind]*optionList
	observers    map[int]Observer
	nextObserver int
	closed       bool
	pending      sync.WaitGroup
}

// Option configures a Catalog
type Option func(*Catalog)

// WithLogger sets the logger for background failures
func WithLogger(l *log.Logger) Option {
	return func(c *Catalog) {
		c.logger = l
	}
}

// WithMetrics records refreshes and custom option persistence
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Catalog) {
		c.metrics = m
	}
}

// WithDefaults replaces the bundled defaults for kind
func WithDefaults(kind models.OptionKind, values []string) Option {
	return func(c *Catalog) {
		if list, ok := c.lists[kind]; ok {
			list.defaults = defaultEntries(kind, values)
		}
	}
}

// WithMaxLength caps the rune length of new custom entries
func WithMaxLength(n int) Option {
	return func(c *Catalog) {
		c.maxLength = n
	}
}

// NewCatalog builds a catalog holding the defaults of every kind
func NewCatalog(source Source, opts ...Option) *Catalog {
	c := &Catalog{
		source:    source,
		logger:    log.Default(),
		lists:     make(map[models.OptionKind]*optionList),
		observers: make(map[int]Observer),
	}
	for _, kind := range models.OptionKinds {
		c.lists[kind] = &optionList{defaults: defaultEntries(kind, models.DefaultOptions(kind))}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultEntries(kind models.OptionKind, values []string) []models.OptionEntry {
	list := &optionList{}
	list.merge(kind, values)
	for i := range list.customs {
		list.customs[i].Origin = models.OriginDefault
	}
	return list.customs
}

// CurrentOptions returns the cached merged list for kind, ending with the sentinel
func (c *Catalog) CurrentOptions(kind models.OptionKind) []models.OptionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.lists[kind]
	if !ok {
		return nil
	}
	return list.entries(kind)
}

// Loaded reports whether a refresh of kind has completed successfully
func (c *Catalog) Loaded(kind models.OptionKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.lists[kind]
	return ok && list.loaded
}

// Lookup returns the canonical entry matching text, if any
func (c *Catalog) Lookup(kind models.OptionKind, text string) (models.OptionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.lists[kind]
	if !ok {
		return models.OptionEntry{}, false
	}
	return list.lookup(strings.TrimSpace(text))
}

// Options returns the merged list for kind, fetching custom entries on first use.
// When the fetch fails the cached list is returned along with the error.
func (c *Catalog) Options(ctx context.Context, kind models.OptionKind) ([]models.OptionEntry, error) {
	err := c.EnsureLoaded(ctx, kind)
	return c.CurrentOptions(kind), err
}

// EnsureLoaded refreshes kind unless a refresh already succeeded
func (c *Catalog) EnsureLoaded(ctx context.Context, kind models.OptionKind) error {
	if c.Loaded(kind) {
		return nil
	}
	return c.Refresh(ctx, kind)
}

// RefreshAll refreshes every kind
func (c *Catalog) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, kind := range models.OptionKinds {
		if err := c.Refresh(ctx, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh fetches the custom entries for kind and merges them into the cache,
// then retries custom entries that failed to persist earlier. At most one
// fetch per kind is outstanding; concurrent callers share its result.
func (c *Catalog) Refresh(ctx context.Context, kind models.OptionKind) error {
	c.mu.Lock()
	closed := c.closed
	_, known := c.lists[kind]
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	// the fetch outlives a caller that gives up; other callers share it
	detached := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan(string(kind), func() (any, error) {
		return nil, c.runRefresh(detached, kind)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) runRefresh(ctx context.Context, kind models.OptionKind) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending.Add(1)
	c.mu.Unlock()
	defer c.pending.Done()

	values, err := c.source.FetchCustom(ctx, kind)
	c.metrics.RecordRefresh(string(kind), err)
	if err != nil {
		c.logger.Printf("Failed to refresh %s options: %v", kind, err)
		return err
	}

	var saved []string
	c.mu.Lock()
	list := c.lists[kind]
	list.merge(kind, values)
	list.loaded = true
	for _, v := range values {
		if list.markSaved(strings.TrimSpace(v)) {
			saved = append(saved, v)
		}
	}
	retry := append([]models.OptionEntry(nil), list.unsaved...)
	snapshot := list.entries(kind)
	c.mu.Unlock()

	c.notify(Event{Kind: kind, Type: EventRefreshed, Options: snapshot})
	for _, v := range saved {
		c.notify(Event{Kind: kind, Type: EventPersisted, Value: v, Options: snapshot})
	}
	for _, entry := range retry {
		c.save(ctx, entry)
	}
	return nil
}

// Unsaved returns the custom entries of kind that the remote source has not
// accepted yet
func (c *Catalog) Unsaved(kind models.OptionKind) []models.OptionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.lists[kind]
	if !ok {
		return nil
	}
	return append([]models.OptionEntry(nil), list.unsaved...)
}

// ResolveOrAdd returns the existing entry matching candidate, or appends a new
// custom entry before the sentinel. The cache is updated before returning;
// the remote write happens in the background.
func (c *Catalog) ResolveOrAdd(ctx context.Context, kind models.OptionKind, candidate string) (models.OptionEntry, error) {
	text := strings.TrimSpace(candidate)
	if text == "" {
		return models.OptionEntry{}, ErrEmptyOption
	}
	if strings.EqualFold(text, kind.Sentinel()) {
		return models.OptionEntry{}, ErrSentinelValue
	}

	c.mu.Lock()
	list, ok := c.lists[kind]
	if !ok {
		c.mu.Unlock()
		return models.OptionEntry{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if existing, found := list.lookup(text); found {
		c.mu.Unlock()
		return existing, nil
	}
	if n := utf8.RuneCountInString(text); c.maxLength > 0 && n > c.maxLength {
		c.mu.Unlock()
		return models.OptionEntry{}, fmt.Errorf("%w: %d > %d", ErrOptionTooLong, n, c.maxLength)
	}
	if c.closed {
		c.mu.Unlock()
		return models.OptionEntry{}, ErrClosed
	}
	entry := models.OptionEntry{Kind: kind, Value: text, Origin: models.OriginCustom}
	list.customs = append(list.customs, entry)
	snapshot := list.entries(kind)
	c.pending.Add(1)
	c.mu.Unlock()

	c.notify(Event{Kind: kind, Type: EventAdded, Value: entry.Value, Options: snapshot})
	go c.persist(context.WithoutCancel(ctx), entry)
	return entry, nil
}

func (c *Catalog) persist(ctx context.Context, entry models.OptionEntry) {
	defer c.pending.Done()
	c.save(ctx, entry)
}

// save writes entry to the remote source and tracks whether it is still unsaved
func (c *Catalog) save(ctx context.Context, entry models.OptionEntry) {
	err := c.source.AddCustom(ctx, entry.Kind, entry.Value)
	c.metrics.RecordCustomOption(string(entry.Kind), err)

	c.mu.Lock()
	list := c.lists[entry.Kind]
	wasUnsaved := false
	if err != nil {
		list.markUnsaved(entry)
	} else {
		wasUnsaved = list.markSaved(entry.Value)
	}
	snapshot := list.entries(entry.Kind)
	c.mu.Unlock()

	switch {
	case err != nil:
		c.logger.Printf("Failed to persist custom %s %q: %v", entry.Kind, entry.Value, err)
		c.notify(Event{
			Kind:    entry.Kind,
			Type:    EventPersistFailed,
			Value:   entry.Value,
			Options: snapshot,
			Error:   err.Error(),
		})
	case wasUnsaved:
		c.notify(Event{Kind: entry.Kind, Type: EventPersisted, Value: entry.Value, Options: snapshot})
	}
}

// Subscribe registers an observer and returns a func that removes it
func (c *Catalog) Subscribe(o Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = o
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Catalog) notify(ev Event) {
	c.mu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o)
	}
	c.mu.Unlock()

	for _, o := range observers {
		o(ev)
	}
}

// Wait blocks until background refreshes and custom option writes finish
func (c *Catalog) Wait() {
	c.pending.Wait()
}

// Close stops accepting refreshes and new custom entries, then waits for
// outstanding remote calls
func (c *Catalog) Close() {
	c.mu.Lock()
	c.closed = true
	c.observers = make(map[int]Observer)
	c.mu.Unlock()
	c.pending.Wait()
}
