package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/snapshot"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newEngine(t *testing.T, store snapshot.Store) *Engine {
	t.Helper()
	return Open(context.Background(), "owner-1", store, WithClock(fixedClock()))
}

func validTalent(e *Engine) {
	e.UpdateTalentInfo(domain.TalentInfoPatch{
		Name:  strPtr("김민수"),
		Email: strPtr("minsu@example.com"),
		Phone: strPtr("010-1234-5678"),
	})
}

func addCompany(t *testing.T, e *Engine, name, domainName string) domain.TargetCompany {
	t.Helper()
	c, errs := e.AddTargetCompany(domain.TargetCompanyInput{
		Name:          name,
		Domain:        domainName,
		ContactPerson: "이지은",
		ContactEmail:  "jieun@" + domainName,
	})
	require.Nil(t, errs)
	return c
}

func TestStepOneValidity(t *testing.T) {
	e := newEngine(t, nil)

	e.UpdateTalentInfo(domain.TalentInfoPatch{Name: strPtr(""), Email: strPtr(""), Phone: strPtr("")})
	assert.False(t, e.IsStepValid(1))

	validTalent(e)
	assert.True(t, e.IsStepValid(1))

	e.UpdateTalentInfo(domain.TalentInfoPatch{Email: strPtr("not-an-email")})
	assert.False(t, e.IsStepValid(1))
}

func TestStepValidIsPure(t *testing.T) {
	data := domain.NewWizardFormData()
	data.TalentInfo = domain.TalentInfo{Name: "a", Email: "a@b.co", Phone: "0101234567"}
	for step := 0; step <= 6; step++ {
		first := StepValid(data, step)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, StepValid(data, step), "step %d", step)
		}
	}
	assert.False(t, StepValid(data, 0))
	assert.False(t, StepValid(data, 6))
}

func TestStepsTwoToFive(t *testing.T) {
	e := newEngine(t, nil)
	assert.False(t, e.IsStepValid(2))
	assert.False(t, e.IsStepValid(3))
	assert.True(t, e.IsStepValid(4), "default questions are enabled")
	assert.False(t, e.IsStepValid(5))

	_, errs := e.AddWorkHistory(domain.WorkHistoryInput{Position: "Engineer", Company: "Acme", StartDate: "2020-01"})
	require.Nil(t, errs)
	assert.True(t, e.IsStepValid(2))

	addCompany(t, e, "Acme", "acme.com")
	assert.True(t, e.IsStepValid(3))

	for _, q := range e.FormData().Questions {
		e.UpdateQuestion(q.ID, domain.QuestionPatch{IsEnabled: boolPtr(false)})
	}
	assert.False(t, e.IsStepValid(4))

	e.SetTermsAccepted(true)
	assert.True(t, e.IsStepValid(5))
}

func TestNavigation(t *testing.T) {
	e := newEngine(t, nil)
	assert.Equal(t, 1, e.CurrentStep())

	assert.False(t, e.PreviousStep(), "no-op at step 1")
	assert.False(t, e.NextStep(), "step 1 is invalid")
	assert.Equal(t, 1, e.CurrentStep())

	validTalent(e)
	assert.True(t, e.NextStep())
	assert.Equal(t, 2, e.CurrentStep())

	assert.False(t, e.NextStep(), "no work history yet")

	assert.True(t, e.PreviousStep())
	assert.Equal(t, 1, e.CurrentStep())
}

func TestNextStepStopsAtLastStep(t *testing.T) {
	e := newEngine(t, nil)
	e.SetTermsAccepted(true)
	require.True(t, e.GoToStep(5))
	assert.False(t, e.NextStep())
	assert.Equal(t, 5, e.CurrentStep())
}

func TestGoToStepBoundsOnly(t *testing.T) {
	e := newEngine(t, nil)

	assert.False(t, e.GoToStep(0))
	assert.False(t, e.GoToStep(6))
	assert.Equal(t, 1, e.CurrentStep())

	// jumping does not check the steps in between
	assert.True(t, e.GoToStep(4))
	assert.Equal(t, 4, e.CurrentStep())
}

func TestWorkHistoryIDsAndRemoval(t *testing.T) {
	e := newEngine(t, nil)
	a, errs := e.AddWorkHistory(domain.WorkHistoryInput{Position: "PM", Company: "A", StartDate: "2019-03", EndDate: "2021-02"})
	require.Nil(t, errs)
	b, errs := e.AddWorkHistory(domain.WorkHistoryInput{Position: "Lead", Company: "B", StartDate: "2021-03"})
	require.Nil(t, errs)
	assert.NotEqual(t, a.ID, b.ID, "same clock tick still yields distinct ids")

	assert.True(t, e.RemoveWorkHistory(a.ID))
	before := e.FormData().WorkHistory
	assert.False(t, e.RemoveWorkHistory(a.ID))
	assert.Equal(t, before, e.FormData().WorkHistory)

	c, errs := e.AddWorkHistory(domain.WorkHistoryInput{Position: "CTO", Company: "C", StartDate: "2023-01"})
	require.Nil(t, errs)
	assert.NotEqual(t, a.ID, c.ID, "ids are never reused")
}

func TestWorkHistoryFieldErrors(t *testing.T) {
	e := newEngine(t, nil)
	_, errs := e.AddWorkHistory(domain.WorkHistoryInput{StartDate: "2022-05", EndDate: "2021-01"})
	require.NotNil(t, errs)
	assert.Contains(t, errs, "position")
	assert.Contains(t, errs, "company")
	assert.Contains(t, errs, "endDate")
	assert.Empty(t, e.FormData().WorkHistory)
}

func TestAddTargetCompanyRejectsDuplicates(t *testing.T) {
	e := newEngine(t, nil)
	addCompany(t, e, "Acme", "acme.com")

	_, errs := e.AddTargetCompany(domain.TargetCompanyInput{
		Name: "Other", Domain: "ACME.com", ContactPerson: "x", ContactEmail: "x@acme.com",
	})
	require.NotNil(t, errs)
	assert.Contains(t, errs, "domain")
	assert.Len(t, e.FormData().TargetCompanies, 1)

	_, errs = e.AddTargetCompany(domain.TargetCompanyInput{
		Name: "acme", Domain: "acme.io", ContactPerson: "x", ContactEmail: "x@acme.io",
	})
	require.NotNil(t, errs)
	assert.Contains(t, errs, "name")
	assert.Len(t, e.FormData().TargetCompanies, 1)

	c := addCompany(t, e, "Globex", "globex.com")
	assert.True(t, e.RemoveTargetCompany(c.ID))
	assert.False(t, e.RemoveTargetCompany(c.ID))
}

func TestQuestions(t *testing.T) {
	e := newEngine(t, nil)
	require.Len(t, e.FormData().Questions, 5)

	q, errs := e.AddCustomQuestion("질문?")
	require.Nil(t, errs)
	assert.False(t, q.IsDefault)
	assert.True(t, q.IsEnabled)
	assert.Equal(t, 6, q.Order)
	assert.Len(t, e.FormData().Questions, 6)

	_, errs = e.AddCustomQuestion("   ")
	assert.Contains(t, errs, "text")

	updated, ok := e.UpdateQuestion("q2", domain.QuestionPatch{Text: strPtr("new text")})
	require.True(t, ok)
	assert.Equal(t, "new text", updated.Text)
	assert.True(t, updated.IsEnabled)

	_, ok = e.UpdateQuestion("missing", domain.QuestionPatch{IsEnabled: boolPtr(false)})
	assert.False(t, ok)

	qs := e.FormData().Questions
	reversed := make([]domain.Question, 0, len(qs))
	for i := len(qs) - 1; i >= 0; i-- {
		reversed = append(reversed, qs[i])
	}
	e.ReorderQuestions(reversed)
	assert.Equal(t, q.ID, e.FormData().Questions[0].ID)
}

func TestPersistAndRestore(t *testing.T) {
	store := snapshot.NewMemoryStore()
	e := newEngine(t, store)
	validTalent(e)
	require.True(t, e.NextStep())
	addCompany(t, e, "Acme", "acme.com")

	restored := newEngine(t, store)
	assert.Equal(t, 2, restored.CurrentStep())
	assert.Equal(t, e.FormData(), restored.FormData())

	restored.Reset()
	assert.Equal(t, 1, restored.CurrentStep())
	_, err := store.Get(context.Background(), snapshot.WizardFormKey("owner-1"))
	assert.ErrorIs(t, err, snapshot.ErrMissing)

	fresh := newEngine(t, store)
	assert.Equal(t, domain.NewWizardFormData(), fresh.FormData())
}

func TestRestoreFallsBackOnGarbage(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Set(ctx, snapshot.WizardFormKey("owner-1"), []byte("{broken"), 0))

	e := newEngine(t, store)
	assert.Equal(t, 1, e.CurrentStep())
	assert.Equal(t, domain.NewWizardFormData(), e.FormData())
}

func TestRestoreMigratesLegacySlots(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	legacy := `{"talentInfo":{"name":"Lee","email":"lee@example.com","phone":"01012345678"},
		"workHistory":[{"id":"1700000000000","position":"Dev","company":"X","startDate":"2020-01"}],
		"targetCompanies":[],"questions":[{"id":"q1","text":"t","isDefault":true,"isEnabled":true,"order":1}],
		"termsAccepted":false}`
	require.NoError(t, store.Set(ctx, snapshot.WizardFormKey("owner-1"), []byte(legacy), 0))
	require.NoError(t, store.Set(ctx, snapshot.WizardStepKey("owner-1"), []byte("2"), 0))

	e := newEngine(t, store)
	assert.Equal(t, 2, e.CurrentStep())
	assert.Equal(t, "Lee", e.FormData().TalentInfo.Name)
	assert.Len(t, e.FormData().Questions, 1)

	raw, err := store.Get(ctx, snapshot.WizardFormKey("owner-1"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version":1`)
}

func TestRestoreRejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Set(ctx, snapshot.WizardFormKey("owner-1"),
		[]byte(`{"version":2,"payload":{"termsAccepted":true}}`), 0))

	e := newEngine(t, store)
	assert.False(t, e.FormData().TermsAccepted)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("storage unavailable")
}
func (failingStore) Delete(context.Context, ...string) error {
	return errors.New("storage unavailable")
}

func TestStoreFailuresStayInternal(t *testing.T) {
	e := newEngine(t, failingStore{})
	validTalent(e)
	assert.True(t, e.NextStep())
	q, errs := e.AddCustomQuestion("still works?")
	assert.Nil(t, errs)
	assert.Equal(t, 6, q.Order)
	e.Reset()
	assert.Equal(t, 1, e.CurrentStep())
}

func TestExport(t *testing.T) {
	e := newEngine(t, nil)
	validTalent(e)
	out := e.Export()
	assert.Equal(t, 1, out.CurrentStep)
	assert.Equal(t, "김민수", out.FormData.TalentInfo.Name)
	assert.Equal(t, fixedClock()(), out.Timestamp)

	out.FormData.Questions[0].Text = "mutated"
	assert.NotEqual(t, "mutated", e.FormData().Questions[0].Text)
}

func TestRegistryReusesEngines(t *testing.T) {
	store := snapshot.NewMemoryStore()
	r := NewRegistry(store, WithClock(fixedClock()))
	ctx := context.Background()

	a := r.Get(ctx, "u1")
	assert.Same(t, a, r.Get(ctx, "u1"))
	assert.NotSame(t, a, r.Get(ctx, "u2"))

	validTalent(a)
	r.Discard("u1")
	assert.Equal(t, domain.NewWizardFormData(), r.Get(ctx, "u1").FormData())
}

// flakyStore fails reads while down and honours cancellation.
type flakyStore struct {
	*snapshot.MemoryStore
	down bool
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.down {
		return nil, errors.New("dial tcp: connection refused")
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestRegistryRetriesUnreadableStore(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: snapshot.NewMemoryStore()}
	saved := Open(ctx, "u1", store, WithClock(fixedClock()))
	validTalent(saved)
	require.True(t, saved.NextStep())

	store.down = true
	r := NewRegistry(store, WithClock(fixedClock()))
	blind := r.Get(ctx, "u1")
	assert.Equal(t, 1, blind.CurrentStep())
	blind.UpdateTalentInfo(domain.TalentInfoPatch{Name: strPtr("overwritten")})

	store.down = false
	e := r.Get(ctx, "u1")
	assert.NotSame(t, blind, e)
	assert.Equal(t, 2, e.CurrentStep())
	assert.Equal(t, saved.FormData(), e.FormData())
	assert.Same(t, e, r.Get(ctx, "u1"))
}

func TestOpenOutlivesCancelledRequest(t *testing.T) {
	store := &flakyStore{MemoryStore: snapshot.NewMemoryStore()}
	saved := newEngine(t, store)
	validTalent(saved)
	require.True(t, saved.NextStep())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := Open(ctx, "owner-1", store, WithClock(fixedClock()))
	assert.Equal(t, 2, e.CurrentStep())
	assert.Equal(t, "김민수", e.FormData().TalentInfo.Name)
}
