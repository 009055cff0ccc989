package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/docstore"
	"larder/internal/metrics"
	"larder/internal/models"
	"larder/internal/records"
	"larder/internal/taxonomy"
)

const user = "cook@example.com"

// fakeRepo records calls and assigns "abc123" on create
type fakeRepo struct {
	mu        sync.Mutex
	upserts   []models.Ingredient
	removes   []string
	upsertErr error
	removeErr error
	hold      chan struct{}
	entered   chan struct{}
}

func (r *fakeRepo) Upsert(ctx context.Context, rec *models.Ingredient) (string, error) {
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.hold != nil {
		<-r.hold
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, *rec)
	if r.upsertErr != nil {
		return "", r.upsertErr
	}
	if rec.ID == "" {
		rec.AssignIdentifier("abc123")
	}
	return rec.ID, nil
}

func (r *fakeRepo) Remove(ctx context.Context, rec *models.Ingredient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes = append(r.removes, rec.ID)
	return r.removeErr
}

func (r *fakeRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upserts)
}

func quiet() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func newCatalog(t *testing.T) *taxonomy.Catalog {
	t.Helper()
	src := taxonomy.NewDocumentSource(docstore.NewMemoryStore(), user)
	c := taxonomy.NewCatalog(src, taxonomy.WithLogger(quiet()))
	t.Cleanup(c.Close)
	return c
}

func start(t *testing.T, mode Mode, rec *models.Ingredient, repo Repository, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(quiet())}, opts...)
	s, err := Start(context.Background(), mode, rec, newCatalog(t), repo, opts...)
	require.NoError(t, err)
	return s
}

func fill(t *testing.T, s *Session, name, amount, date string) {
	t.Helper()
	require.NoError(t, s.SetField(FieldName, name))
	require.NoError(t, s.SetField(FieldAmount, amount))
	require.NoError(t, s.SetField(FieldBestBefore, date))
}

func TestConfirm_RoundsAmount(t *testing.T) {
	repo := &fakeRepo{}
	s := start(t, ModeNew, nil, repo)
	fill(t, s, "Rice", "2", "2024-09-01")
	require.NoError(t, s.SetField(FieldUnit, "kg"))

	require.NoError(t, s.Confirm(context.Background()))
	assert.Equal(t, StateCommitted, s.State())
	assert.Equal(t, "2.0", s.Value(FieldAmount))

	rec := s.Record()
	assert.Equal(t, "abc123", rec.ID)
	assert.Equal(t, 2.0, rec.Amount)
	assert.Equal(t, "2.0", rec.DisplayAmount())
	assert.Equal(t, "kg", rec.Unit)

	s2 := start(t, ModeNew, nil, repo)
	fill(t, s2, "Flour", "1.26", "2024-09-01")
	require.NoError(t, s2.Confirm(context.Background()))
	assert.Equal(t, 1.3, s2.Record().Amount)
}

func TestConfirm_EmptyDateRejected(t *testing.T) {
	repo := &fakeRepo{}
	s := start(t, ModeNew, nil, repo)
	require.NoError(t, s.SetField(FieldName, "Rice"))
	require.NoError(t, s.SetField(FieldAmount, "2"))

	err := s.Confirm(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{FieldBestBefore}, verr.Fields)
	assert.ErrorIs(t, err, ErrRequiredFieldEmpty)
	assert.Equal(t, StateRejected, s.State())
	assert.Equal(t, err, s.Err())
	assert.Equal(t, 0, repo.upsertCount())
}

func TestConfirm_ReportsEveryEmptyField(t *testing.T) {
	s := start(t, ModeNew, nil, &fakeRepo{})
	require.NoError(t, s.SetField(FieldName, "   "))

	var verr *ValidationError
	require.ErrorAs(t, s.Confirm(context.Background()), &verr)
	assert.Equal(t, []Field{FieldName, FieldAmount, FieldBestBefore}, verr.Fields)
	assert.Contains(t, verr.Error(), "name, amount, bestBefore")
}

func TestConfirm_ParseFailuresThenRetry(t *testing.T) {
	repo := &fakeRepo{}
	s := start(t, ModeNew, nil, repo)
	fill(t, s, "Rice", "two", "2024-09-01")
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrInvalidAmountFormat)
	assert.Equal(t, StateRejected, s.State())

	require.NoError(t, s.SetField(FieldAmount, "-1"))
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrInvalidAmountFormat)

	require.NoError(t, s.SetField(FieldAmount, "3.5"))
	assert.Equal(t, StateEditing, s.State())
	require.NoError(t, s.SetField(FieldBestBefore, "2024-13-01"))
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrInvalidDateFormat)
	assert.Equal(t, 0, repo.upsertCount())

	require.NoError(t, s.SetField(FieldBestBefore, "2024-12-01"))
	require.NoError(t, s.Confirm(context.Background()))
	assert.Equal(t, StateCommitted, s.State())
	assert.Nil(t, s.Err())
}

func TestConfirm_PersistenceFailureLeavesRecord(t *testing.T) {
	repo := &fakeRepo{upsertErr: fmt.Errorf("%w: offline", records.ErrPersistence)}
	orig := &models.Ingredient{ID: "i1", Name: "Milk", Amount: 1, BestBefore: "2024-06-01"}
	s := start(t, ModeEdit, orig, repo)
	require.NoError(t, s.SetField(FieldAmount, "0.5"))

	err := s.Confirm(context.Background())
	assert.ErrorIs(t, err, records.ErrPersistence)
	assert.Equal(t, StateRejected, s.State())
	assert.Equal(t, 1.0, orig.Amount)
	assert.Equal(t, 1, repo.upsertCount())

	repo.mu.Lock()
	repo.upsertErr = nil
	repo.mu.Unlock()
	require.NoError(t, s.Confirm(context.Background()))
	assert.Equal(t, 0.5, orig.Amount)
	assert.Equal(t, "i1", orig.ID)
}

func TestSetField_Options(t *testing.T) {
	s := start(t, ModeNew, nil, &fakeRepo{})

	require.NoError(t, s.SetField(FieldLocation, "refrigerator"))
	assert.Equal(t, models.LocationRefrigerator, s.Value(FieldLocation))

	assert.ErrorIs(t, s.SetField(FieldLocation, "Garage"), ErrUnknownOption)
	assert.Equal(t, models.LocationRefrigerator, s.Value(FieldLocation))

	require.NoError(t, s.SetField(FieldLocation, ""))
	assert.Equal(t, "", s.Value(FieldLocation))

	assert.Error(t, s.SetField(Field("colour"), "red"))

	opts := s.Options(FieldUnit)
	require.NotEmpty(t, opts)
	assert.True(t, opts[len(opts)-1].IsSentinel())
	assert.Nil(t, s.Options(FieldName))
}

func TestSetField_SentinelPromptFlow(t *testing.T) {
	s := start(t, ModeNew, nil, &fakeRepo{})
	ctx := context.Background()

	err := s.SetField(FieldLocation, "Add Location")
	assert.ErrorIs(t, err, ErrPromptRequired)
	assert.Equal(t, []Prompt{{Type: PromptCustomOption, Field: FieldLocation, Kind: models.KindLocation}}, s.Prompts())
	assert.Equal(t, "", s.Value(FieldLocation))

	_, err = s.SubmitPrompt(ctx, "   ")
	assert.ErrorIs(t, err, taxonomy.ErrEmptyOption)
	assert.Len(t, s.Prompts(), 1)

	fill(t, s, "Rice", "1", "2024-09-01")
	assert.ErrorIs(t, s.Confirm(ctx), ErrPromptRequired)

	entry, err := s.SubmitPrompt(ctx, " Pantry ")
	require.NoError(t, err)
	assert.Equal(t, "Pantry", entry.Value)
	assert.Equal(t, models.OriginCustom, entry.Origin)
	assert.Equal(t, "Pantry", s.Value(FieldLocation))
	assert.Empty(t, s.Prompts())

	opts := s.Options(FieldLocation)
	assert.Equal(t, "Pantry", opts[len(opts)-2].Value)
	assert.True(t, opts[len(opts)-1].IsSentinel())

	// an existing entry resolves rather than duplicating
	require.ErrorIs(t, s.SetField(FieldLocation, "add location"), ErrPromptRequired)
	entry, err = s.SubmitPrompt(ctx, "PANTRY")
	require.NoError(t, err)
	assert.Equal(t, "Pantry", entry.Value)
	assert.Len(t, s.Options(FieldLocation), len(opts))

	require.NoError(t, s.Confirm(ctx))
	assert.Equal(t, "Pantry", s.Record().Location)
}

func TestDismissPrompt_RestoresPrevious(t *testing.T) {
	s := start(t, ModeNew, nil, &fakeRepo{})
	require.NoError(t, s.SetField(FieldCategory, "Dairy"))
	require.ErrorIs(t, s.SetField(FieldCategory, "Add Category"), ErrPromptRequired)

	require.NoError(t, s.DismissPrompt())
	assert.Equal(t, "Dairy", s.Value(FieldCategory))
	assert.Empty(t, s.Prompts())
	assert.ErrorIs(t, s.DismissPrompt(), ErrInvalidState)

	_, err := s.SubmitPrompt(context.Background(), "Snacks")
	assert.ErrorIs(t, err, ErrInvalidState)

	// choosing a listed value closes an open prompt for the same field
	require.ErrorIs(t, s.SetField(FieldCategory, "Add Category"), ErrPromptRequired)
	require.NoError(t, s.SetField(FieldCategory, "Produce"))
	assert.Empty(t, s.Prompts())
}

func TestEdit_CancelLeavesRecordUntouched(t *testing.T) {
	orig := &models.Ingredient{ID: "i1", Name: "Milk", Amount: 1, BestBefore: "2024-06-01", Location: "Freezer"}
	repo := &fakeRepo{}
	s := start(t, ModeEdit, orig, repo)
	assert.Equal(t, "1.0", s.Value(FieldAmount))

	require.NoError(t, s.SetField(FieldLocation, "Refrigerator"))
	require.NoError(t, s.SetField(FieldName, "Oat milk"))
	require.NoError(t, s.Cancel())

	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, "Freezer", orig.Location)
	assert.Equal(t, "Milk", orig.Name)
	assert.Equal(t, 0, repo.upsertCount())

	assert.ErrorIs(t, s.SetField(FieldName, "x"), ErrInvalidState)
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrInvalidState)
	assert.ErrorIs(t, s.Cancel(), ErrInvalidState)
}

func TestStart_Validation(t *testing.T) {
	cat := newCatalog(t)
	_, err := Start(context.Background(), ModeEdit, nil, cat, &fakeRepo{})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = Start(context.Background(), Mode("browse"), nil, cat, &fakeRepo{})
	assert.ErrorIs(t, err, ErrInvalidState)

	// New ignores a passed record
	rec := &models.Ingredient{ID: "x", Name: "Milk"}
	s, err := Start(context.Background(), ModeNew, rec, cat, &fakeRepo{}, WithLogger(quiet()))
	require.NoError(t, err)
	assert.Equal(t, "", s.Value(FieldName))
	assert.Equal(t, ModeNew, s.Mode())
	assert.True(t, cat.Loaded(models.KindUnit))
}

func TestPurchase_LocksAndPrompts(t *testing.T) {
	item := &models.Ingredient{ID: "s1", Name: "Eggs", Unit: "pc"}
	repo := &fakeRepo{}
	s := start(t, ModePurchase, item, repo)

	assert.True(t, s.Locked(FieldName))
	assert.True(t, s.Locked(FieldUnit))
	assert.False(t, s.Locked(FieldCategory))
	assert.False(t, s.Locked(FieldAmount))
	assert.ErrorIs(t, s.SetField(FieldName, "Duck eggs"), ErrFieldLocked)
	assert.ErrorIs(t, s.SetField(FieldUnit, "box"), ErrFieldLocked)

	assert.Equal(t, []Prompt{
		{Type: PromptFill, Field: FieldAmount},
		{Type: PromptFill, Field: FieldLocation, Kind: models.KindLocation},
		{Type: PromptFill, Field: FieldBestBefore},
	}, s.Prompts())

	require.NoError(t, s.SetField(FieldAmount, "12"))
	require.NoError(t, s.SetField(FieldLocation, "Refrigerator"))
	require.NoError(t, s.SetField(FieldBestBefore, "2024-07-01"))
	assert.Empty(t, s.Prompts())

	snap := s.Snapshot()
	assert.Equal(t, []Field{FieldName, FieldUnit}, snap.Locked)
	assert.Equal(t, ModePurchase, snap.Mode)

	require.NoError(t, s.Confirm(context.Background()))
	assert.Equal(t, "s1", item.ID)
	assert.Equal(t, 12.0, item.Amount)
	assert.Equal(t, "Eggs", item.Name)
}

func TestPurchase_CancelNeedsConfirmation(t *testing.T) {
	item := &models.Ingredient{ID: "s1", Name: "Eggs"}
	s := start(t, ModePurchase, item, &fakeRepo{})

	assert.ErrorIs(t, s.Cancel(), ErrCancelNeedsConfirmation)
	assert.True(t, s.CancelPending())
	assert.Equal(t, StateEditing, s.State())
	assert.ErrorIs(t, s.SetField(FieldAmount, "1"), ErrInvalidState)
	assert.ErrorIs(t, s.Cancel(), ErrCancelNeedsConfirmation)

	require.NoError(t, s.ResumeEditing())
	assert.False(t, s.CancelPending())
	require.NoError(t, s.SetField(FieldAmount, "1"))

	assert.ErrorIs(t, s.Cancel(), ErrCancelNeedsConfirmation)
	require.NoError(t, s.ConfirmCancel())
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, 0.0, item.Amount)

	assert.ErrorIs(t, s.ConfirmCancel(), ErrInvalidState)
	assert.ErrorIs(t, s.ResumeEditing(), ErrInvalidState)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	s := start(t, ModeNew, nil, &fakeRepo{})
	assert.ErrorIs(t, s.Delete(ctx), ErrDeleteNotAllowed)

	s = start(t, ModeEdit, &models.Ingredient{Name: "Milk"}, &fakeRepo{})
	assert.ErrorIs(t, s.Delete(ctx), ErrDeleteNotAllowed)

	s = start(t, ModePurchase, &models.Ingredient{ID: "s1"}, &fakeRepo{})
	assert.ErrorIs(t, s.Delete(ctx), ErrDeleteNotAllowed)

	repo := &fakeRepo{removeErr: fmt.Errorf("%w: offline", records.ErrPersistence)}
	s = start(t, ModeEdit, &models.Ingredient{ID: "i1", Name: "Milk"}, repo)
	assert.ErrorIs(t, s.Delete(ctx), records.ErrPersistence)
	assert.Equal(t, StateEditing, s.State())
	assert.ErrorIs(t, s.Err(), records.ErrPersistence)

	repo.removeErr = nil
	require.NoError(t, s.Delete(ctx))
	assert.Equal(t, StateDeleted, s.State())
	assert.Equal(t, []string{"i1", "i1"}, repo.removes)
	assert.ErrorIs(t, s.SetField(FieldName, "x"), ErrInvalidState)
}

func TestConfirm_BlocksMutationWhilePending(t *testing.T) {
	repo := &fakeRepo{hold: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := start(t, ModeNew, nil, repo)
	fill(t, s, "Rice", "1", "2024-09-01")

	done := make(chan error, 1)
	go func() { done <- s.Confirm(context.Background()) }()
	<-repo.entered

	assert.Equal(t, StateConfirming, s.State())
	assert.ErrorIs(t, s.SetField(FieldName, "Beans"), ErrInvalidState)
	assert.ErrorIs(t, s.Cancel(), ErrInvalidState)
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrInvalidState)

	close(repo.hold)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("confirm did not finish")
	}
	assert.Equal(t, "Rice", s.Record().Name)
}

func TestSession_WithRepository(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(docstore.WithIDGenerator(func() string { return "abc123" }))
	repo := records.NewIngredientRepository(store, user, records.WithLogger(quiet()))

	s := start(t, ModeNew, nil, repo)
	fill(t, s, "Milk", "1", "2024-06-01")
	require.NoError(t, s.SetField(FieldCategory, "dairy"))
	require.NoError(t, s.Confirm(ctx))
	rec := s.Record()
	assert.Equal(t, "abc123", rec.ID)

	edit := start(t, ModeEdit, rec, repo)
	require.NoError(t, edit.SetField(FieldAmount, "0.25"))
	require.NoError(t, edit.Confirm(ctx))

	all, err := repo.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "abc123", all[0].ID)
	assert.Equal(t, 0.3, all[0].Amount)
	assert.Equal(t, "Dairy", all[0].Category)
	assert.Equal(t, "2024-06-01", all[0].BestBefore)

	del := start(t, ModeEdit, all[0], repo)
	require.NoError(t, del.Delete(ctx))
	all, err = repo.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSession_Metrics(t *testing.T) {
	m := metrics.NewCollector()
	repo := &fakeRepo{}

	s := start(t, ModeNew, nil, repo, WithMetrics(m))
	require.Error(t, s.Confirm(context.Background()))
	fill(t, s, "Rice", "1", "2024-09-01")
	require.NoError(t, s.Confirm(context.Background()))

	c := start(t, ModeEdit, &models.Ingredient{ID: "i1"}, repo, WithMetrics(m))
	require.NoError(t, c.Cancel())

	expected := `
# HELP larder_edit_sessions_total Finished edit sessions by mode and final state
# TYPE larder_edit_sessions_total counter
larder_edit_sessions_total{mode="edit",state="cancelled"} 1
larder_edit_sessions_total{mode="new",state="committed"} 1
larder_edit_sessions_total{mode="new",state="rejected"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "larder_edit_sessions_total"))
}

func TestValidationError(t *testing.T) {
	err := error(&ValidationError{Fields: []Field{FieldAmount}})
	assert.True(t, errors.Is(err, ErrRequiredFieldEmpty))
	assert.Equal(t, "required field empty: amount", err.Error())

	f, err := ParseField("BestBefore")
	require.NoError(t, err)
	assert.Equal(t, FieldBestBefore, f)
	_, err = ParseField("price")
	assert.Error(t, err)
}
