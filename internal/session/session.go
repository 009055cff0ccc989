// Package session implements the add, edit and purchase interaction for a
// single ingredient.
//
// A session keeps its own copy of the form values. The record it was opened
// with is only written once the repository accepts the commit, so a
// cancelled or rejected session leaves the caller's record untouched.
package session

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"larder/internal/metrics"
	"larder/internal/models"
	"larder/internal/timecodec"
)

// Catalog is the part of the taxonomy catalog a session needs
type Catalog interface {
	EnsureLoaded(ctx context.Context, kind models.OptionKind) error
	CurrentOptions(kind models.OptionKind) []models.OptionEntry
	Lookup(kind models.OptionKind, text string) (models.OptionEntry, bool)
	ResolveOrAdd(ctx context.Context, kind models.OptionKind, candidate string) (models.OptionEntry, error)
}

// Repository commits and removes ingredients
type Repository interface {
	Upsert(ctx context.Context, rec *models.Ingredient) (string, error)
	Remove(ctx context.Context, rec *models.Ingredient) error
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithMetrics records terminal session outcomes
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session is one add/edit/purchase interaction
type Session struct {
	mode    Mode
	catalog Catalog
	repo    Repository
	logger  *log.Logger
	metrics *metrics.Collector

	mu            sync.Mutex
	state         State
	record        *models.Ingredient
	values        map[Field]string
	locked        map[Field]bool
	prompt        *Prompt
	cancelPending bool
	lastErr       error
}

// Start opens a session. ModeNew ignores rec and starts blank; ModeEdit and
// ModePurchase require an existing record. Option lists are loaded for every
// kind; a failed load is logged and the defaults stay usable.
func Start(ctx context.Context, mode Mode, rec *models.Ingredient, catalog Catalog, repo Repository, opts ...Option) (*Session, error) {
	switch mode {
	case ModeNew:
		rec = &models.Ingredient{}
	case ModeEdit, ModePurchase:
		if rec == nil {
			return nil, fmt.Errorf("%w: %s session needs a record", ErrInvalidState, mode)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidState, mode)
	}

	s := &Session{
		mode:    mode,
		catalog: catalog,
		repo:    repo,
		logger:  log.Default(),
		state:   StateEditing,
		record:  rec,
		values:  make(map[Field]string, len(Fields)),
		locked:  make(map[Field]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	if mode != ModeNew {
		s.values[FieldName] = rec.Name
		s.values[FieldBestBefore] = rec.BestBefore
		s.values[FieldLocation] = rec.Location
		s.values[FieldUnit] = rec.Unit
		s.values[FieldCategory] = rec.Category
		if mode == ModeEdit || rec.Amount != 0 {
			s.values[FieldAmount] = rec.DisplayAmount()
		}
	}
	if mode == ModePurchase {
		for _, f := range []Field{FieldName, FieldUnit, FieldCategory} {
			if s.values[f] != "" {
				s.locked[f] = true
			}
		}
	}

	for _, kind := range models.OptionKinds {
		if err := catalog.EnsureLoaded(ctx, kind); err != nil {
			s.logger.Printf("Failed to load %s options: %v", kind, err)
		}
	}
	return s, nil
}

// Mode returns the session mode
func (s *Session) Mode() Mode {
	return s.mode
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error behind the last rejection or failed operation
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Value returns the current form value of f
func (s *Session) Value(f Field) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[f]
}

// Locked reports whether f may not be changed in this session
func (s *Session) Locked(f Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked[f]
}

// Options returns the selectable entries for an enumerated field
func (s *Session) Options(f Field) []models.OptionEntry {
	kind, ok := f.OptionKind()
	if !ok {
		return nil
	}
	return s.catalog.CurrentOptions(kind)
}

// Record returns a copy of the session's record. After a commit it carries
// the store id.
func (s *Session) Record() *models.Ingredient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Prompts lists the outstanding requests for user input
func (s *Session) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptsLocked()
}

func (s *Session) promptsLocked() []Prompt {
	var out []Prompt
	if s.prompt != nil {
		out = append(out, *s.prompt)
	}
	if s.mode == ModePurchase && !s.state.Terminal() {
		for _, f := range []Field{FieldAmount, FieldLocation, FieldBestBefore} {
			if strings.TrimSpace(s.values[f]) == "" {
				p := Prompt{Type: PromptFill, Field: f}
				p.Kind, _ = f.OptionKind()
				out = append(out, p)
			}
		}
	}
	return out
}

// Snapshot copies the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Mode:          s.mode,
		State:         s.state,
		Values:        make(map[Field]string, len(s.values)),
		Locked:        []Field{},
		Prompts:       s.promptsLocked(),
		CancelPending: s.cancelPending,
		Record:        s.record.Clone(),
	}
	for k, v := range s.values {
		snap.Values[k] = v
	}
	for _, f := range Fields {
		if s.locked[f] {
			snap.Locked = append(snap.Locked, f)
		}
	}
	if snap.Prompts == nil {
		snap.Prompts = []Prompt{}
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

// editable moves a rejected session back to editing. Callers hold mu.
func (s *Session) editable() error {
	switch {
	case s.state.Terminal():
		return fmt.Errorf("%w: session %s", ErrInvalidState, s.state)
	case s.state == StateConfirming:
		return fmt.Errorf("%w: commit in progress", ErrInvalidState)
	case s.cancelPending:
		return fmt.Errorf("%w: cancel awaiting confirmation", ErrInvalidState)
	}
	if s.state == StateRejected {
		s.state = StateEditing
	}
	return nil
}

// SetField sets a form value. Enumerated fields only accept a current option
// (matched case-insensitively and stored in its canonical spelling) or the
// sentinel, which opens a custom option prompt and returns ErrPromptRequired.
// Setting a field with an open prompt dismisses that prompt.
func (s *Session) SetField(f Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isField(f) {
		return fmt.Errorf("unknown field %q", f)
	}
	if err := s.editable(); err != nil {
		return err
	}
	if s.locked[f] {
		return fmt.Errorf("%w: %s", ErrFieldLocked, f)
	}
	if s.prompt != nil && s.prompt.Field == f {
		s.prompt = nil
	}

	value = strings.TrimSpace(value)
	kind, enumerated := f.OptionKind()
	if !enumerated {
		s.values[f] = value
		return nil
	}

	if value == "" {
		s.values[f] = ""
		return nil
	}
	if strings.EqualFold(value, kind.Sentinel()) {
		s.prompt = &Prompt{Type: PromptCustomOption, Field: f, Kind: kind}
		return ErrPromptRequired
	}
	entry, ok := s.catalog.Lookup(kind, value)
	if !ok {
		return fmt.Errorf("%w: %s %q", ErrUnknownOption, kind, value)
	}
	s.values[f] = entry.Value
	return nil
}

func isField(f Field) bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// SubmitPrompt resolves text through the catalog, adding it as a custom
// option if new, and sets the prompted field to the canonical entry. On
// error the prompt stays open.
func (s *Session) SubmitPrompt(ctx context.Context, text string) (models.OptionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editable(); err != nil {
		return models.OptionEntry{}, err
	}
	if s.prompt == nil || s.prompt.Type != PromptCustomOption {
		return models.OptionEntry{}, errNoPrompt
	}
	entry, err := s.catalog.ResolveOrAdd(ctx, s.prompt.Kind, text)
	if err != nil {
		return models.OptionEntry{}, err
	}
	s.values[s.prompt.Field] = entry.Value
	s.prompt = nil
	return entry, nil
}

// DismissPrompt closes the custom option prompt; the field keeps the value
// it had before the sentinel was chosen
func (s *Session) DismissPrompt() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prompt == nil {
		return errNoPrompt
	}
	s.prompt = nil
	return nil
}

// Confirm validates the form and commits it. Empty required fields, an
// unparsable amount or date reject the session without calling the
// repository; a repository failure also rejects it. The session can be
// edited and confirmed again after a rejection.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.prompt != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPromptRequired, s.prompt.Field)
	}
	s.state = StateConfirming

	working, err := s.buildLocked()
	if err != nil {
		s.rejectLocked(err)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	_, err = s.repo.Upsert(ctx, working)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Printf("Error committing ingredient %q: %v", working.Name, err)
		s.rejectLocked(err)
		return err
	}
	*s.record = *working
	s.values[FieldAmount] = working.DisplayAmount()
	s.state = StateCommitted
	s.lastErr = nil
	s.metrics.RecordSession(string(s.mode), string(s.state))
	return nil
}

func (s *Session) rejectLocked(err error) {
	s.state = StateRejected
	s.lastErr = err
	s.metrics.RecordSession(string(s.mode), string(s.state))
}

// buildLocked applies the form to a copy of the record
func (s *Session) buildLocked() (*models.Ingredient, error) {
	var empty []Field
	for _, f := range requiredFields {
		if strings.TrimSpace(s.values[f]) == "" {
			empty = append(empty, f)
		}
	}
	if len(empty) > 0 {
		return nil, &ValidationError{Fields: empty}
	}

	amount, err := parseAmount(s.values[FieldAmount])
	if err != nil {
		return nil, err
	}
	if _, err := timecodec.ToStoreTimestamp(s.values[FieldBestBefore]); err != nil {
		return nil, err
	}

	working := s.record.Clone()
	working.Name = s.values[FieldName]
	working.Amount = amount
	working.BestBefore = s.values[FieldBestBefore]
	working.Location = s.values[FieldLocation]
	working.Unit = s.values[FieldUnit]
	working.Category = s.values[FieldCategory]
	return working, nil
}

// parseAmount reads a decimal amount rounded to one decimal place
func parseAmount(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, text)
	}
	return math.Round(v*10) / 10, nil
}

// Cancel abandons the session. A purchase session first returns
// ErrCancelNeedsConfirmation; ConfirmCancel then honors it and ResumeEditing
// withdraws it.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelPending {
		return ErrCancelNeedsConfirmation
	}
	if err := s.editable(); err != nil {
		return err
	}
	if s.mode == ModePurchase {
		s.cancelPending = true
		return ErrCancelNeedsConfirmation
	}
	s.cancelLocked()
	return nil
}

// CancelPending reports whether a purchase cancel awaits confirmation
func (s *Session) CancelPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelPending
}

// ConfirmCancel honors a pending purchase cancel
func (s *Session) ConfirmCancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cancelPending {
		return fmt.Errorf("%w: no cancel pending", ErrInvalidState)
	}
	s.cancelLocked()
	return nil
}

// ResumeEditing withdraws a pending purchase cancel
func (s *Session) ResumeEditing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cancelPending {
		return fmt.Errorf("%w: no cancel pending", ErrInvalidState)
	}
	s.cancelPending = false
	return nil
}

func (s *Session) cancelLocked() {
	s.cancelPending = false
	s.prompt = nil
	s.state = StateCancelled
	s.metrics.RecordSession(string(s.mode), string(s.state))
}

// Delete removes the record. Only an edit session on a stored record may
// delete; on success the session ends.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeEdit {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s session", ErrDeleteNotAllowed, s.mode)
	}
	if s.record.Identifier() == "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: record was never stored", ErrDeleteNotAllowed)
	}
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	prev := s.state
	s.state = StateConfirming
	target := s.record.Clone()
	s.mu.Unlock()

	err := s.repo.Remove(ctx, target)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Printf("Error deleting ingredient %s: %v", target.ID, err)
		s.state = prev
		s.lastErr = err
		return err
	}
	s.state = StateDeleted
	s.prompt = nil
	s.metrics.RecordSession(string(s.mode), string(s.state))
	return nil
}
