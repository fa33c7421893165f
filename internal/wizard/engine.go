// Package wizard holds the state of the 5-step reference request wizard for
// one corporate user, guards navigation with step validity and keeps the
// state in two snapshot slots so an interrupted session can pick up again.
package wizard

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/refcheck/internal/domain"
	"github.com/diagnosis/refcheck/internal/snapshot"
	"github.com/diagnosis/refcheck/internal/validation"
	"github.com/diagnosis/refcheck/pkg/logger"
)

const (
	maxQuestionLength = 500
	restoreTimeout    = 3 * time.Second
)

type Option func(*Engine)

// WithClock replaces time.Now; ids and export timestamps come from it.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	mu    sync.Mutex
	owner string
	store snapshot.Store
	now   func() time.Time

	data domain.WizardFormData
	step int
	// restored is false while the store could not be read; persist then
	// stays off so the defaults never overwrite saved slots.
	restored bool
	lastID   int64
}

// Open builds the engine for owner and restores its slots once. Restore
// problems are logged and leave the defaults in place. The read outlives a
// cancelled request the same way persist does.
func Open(ctx context.Context, owner string, store snapshot.Store, opts ...Option) *Engine {
	e := &Engine{
		owner: owner,
		store: store,
		now:   time.Now,
		data:  domain.NewWizardFormData(),
		step:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	e.restore(rctx)
	return e
}

func (e *Engine) restore(ctx context.Context) {
	if e.store == nil {
		e.restored = true
		return
	}

	var data domain.WizardFormData
	formVersion, err := snapshot.Load(ctx, e.store, snapshot.WizardFormKey(e.owner), &data)
	switch {
	case errors.Is(err, snapshot.ErrMissing):
		e.restored = true
		return
	case snapshot.IsReadFailure(err):
		logger.WarnContext(ctx, "Wizard snapshot unreadable", "owner", e.owner, "error", err)
		return
	case err != nil:
		logger.WarnContext(ctx, "Wizard form snapshot discarded", "owner", e.owner, "error", err)
		e.restored = true
		return
	}

	step := 1
	stepVersion, err := snapshot.Load(ctx, e.store, snapshot.WizardStepKey(e.owner), &step)
	if snapshot.IsReadFailure(err) {
		logger.WarnContext(ctx, "Wizard snapshot unreadable", "owner", e.owner, "error", err)
		return
	}
	if err != nil && !errors.Is(err, snapshot.ErrMissing) {
		logger.WarnContext(ctx, "Wizard step snapshot discarded", "owner", e.owner, "error", err)
		step = 1
	}
	if step < 1 || step > domain.TotalSteps {
		step = 1
	}

	e.data = normalize(data)
	e.step = step
	e.lastID = highestID(e.data)
	e.restored = true

	if formVersion < snapshot.CurrentVersion || stepVersion < snapshot.CurrentVersion {
		logger.InfoContext(ctx, "Migrating wizard snapshot", "owner", e.owner, "form_version", formVersion, "step_version", stepVersion)
		e.persist()
	}
}

func normalize(d domain.WizardFormData) domain.WizardFormData {
	if d.WorkHistory == nil {
		d.WorkHistory = []domain.WorkHistory{}
	}
	if d.TargetCompanies == nil {
		d.TargetCompanies = []domain.TargetCompany{}
	}
	if d.Questions == nil {
		d.Questions = domain.DefaultQuestions()
	}
	return d
}

func highestID(d domain.WizardFormData) int64 {
	var highest int64
	consider := func(id string) {
		if i := strings.LastIndexByte(id, '-'); i >= 0 {
			id = id[i+1:]
		}
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	for _, w := range d.WorkHistory {
		consider(w.ID)
	}
	for _, c := range d.TargetCompanies {
		consider(c.ID)
	}
	for _, q := range d.Questions {
		if !q.IsDefault {
			consider(q.ID)
		}
	}
	return highest
}

// nextID is time based and strictly increasing, so an id is never handed out
// twice even when two entries are added within the same millisecond.
func (e *Engine) nextID(prefix string) string {
	ms := e.now().UnixMilli()
	if ms <= e.lastID {
		ms = e.lastID + 1
	}
	e.lastID = ms
	return prefix + "-" + strconv.FormatInt(ms, 10)
}

// persist writes both slots. Callers hold e.mu.
func (e *Engine) persist() {
	if e.store == nil || !e.restored {
		return
	}
	ctx := context.Background()
	now := e.now()
	if err := snapshot.Save(ctx, e.store, snapshot.WizardFormKey(e.owner), e.data, 0, now); err != nil {
		logger.Warn("Wizard form snapshot write failed", "owner", e.owner, "error", err)
	}
	if err := snapshot.Save(ctx, e.store, snapshot.WizardStepKey(e.owner), e.step, 0, now); err != nil {
		logger.Warn("Wizard step snapshot write failed", "owner", e.owner, "error", err)
	}
}

func (e *Engine) Owner() string { return e.owner }

func (e *Engine) CurrentStep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

func (e *Engine) TotalSteps() int { return domain.TotalSteps }

// FormData returns a copy of the current form.
func (e *Engine) FormData() domain.WizardFormData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.Clone()
}

func (e *Engine) IsStepValid(step int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StepValid(e.data, step)
}

// NextStep advances one step when the current step validates. It reports
// whether the step changed.
func (e *Engine) NextStep() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.step >= domain.TotalSteps || !StepValid(e.data, e.step) {
		return false
	}
	e.step++
	e.persist()
	return true
}

func (e *Engine) PreviousStep() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.step <= 1 {
		return false
	}
	e.step--
	e.persist()
	return true
}

// GoToStep jumps straight to step when it is within range. Steps in between
// are not validated; review screens rely on jumping back and forth.
func (e *Engine) GoToStep(step int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if step < 1 || step > domain.TotalSteps {
		return false
	}
	if step != e.step {
		e.step = step
		e.persist()
	}
	return true
}

func (e *Engine) UpdateTalentInfo(patch domain.TalentInfoPatch) domain.TalentInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.Name != nil {
		e.data.TalentInfo.Name = *patch.Name
	}
	if patch.Email != nil {
		e.data.TalentInfo.Email = *patch.Email
	}
	if patch.Phone != nil {
		e.data.TalentInfo.Phone = *patch.Phone
	}
	e.persist()
	return e.data.TalentInfo
}

func (e *Engine) AddWorkHistory(in domain.WorkHistoryInput) (domain.WorkHistory, domain.FieldErrors) {
	if errs := workHistoryErrors(in); !errs.Empty() {
		return domain.WorkHistory{}, errs
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry := domain.WorkHistory{
		ID:               e.nextID("wh"),
		Position:         strings.TrimSpace(in.Position),
		Company:          strings.TrimSpace(in.Company),
		StartDate:        strings.TrimSpace(in.StartDate),
		EndDate:          strings.TrimSpace(in.EndDate),
		Responsibilities: strings.TrimSpace(in.Responsibilities),
	}
	e.data.WorkHistory = append(e.data.WorkHistory, entry)
	e.persist()
	return entry, nil
}

// RemoveWorkHistory deletes the entry with id. Unknown ids are a no-op.
func (e *Engine) RemoveWorkHistory(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, w := range e.data.WorkHistory {
		if w.ID == id {
			e.data.WorkHistory = append(e.data.WorkHistory[:i:i], e.data.WorkHistory[i+1:]...)
			e.persist()
			return true
		}
	}
	return false
}

// AddTargetCompany appends a company unless its name or domain is already in
// the list (case-insensitive). Rejections come back as field errors and leave
// the list untouched.
func (e *Engine) AddTargetCompany(in domain.TargetCompanyInput) (domain.TargetCompany, domain.FieldErrors) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if errs := targetCompanyErrors(in, e.data.TargetCompanies); !errs.Empty() {
		return domain.TargetCompany{}, errs
	}

	c := domain.TargetCompany{
		ID:            e.nextID("co"),
		Name:          strings.TrimSpace(in.Name),
		Domain:        validation.NormalizeDomain(in.Domain),
		ContactPerson: strings.TrimSpace(in.ContactPerson),
		ContactEmail:  validation.NormalizeEmail(in.ContactEmail),
	}
	e.data.TargetCompanies = append(e.data.TargetCompanies, c)
	e.persist()
	return c, nil
}

func (e *Engine) RemoveTargetCompany(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, c := range e.data.TargetCompanies {
		if c.ID == id {
			e.data.TargetCompanies = append(e.data.TargetCompanies[:i:i], e.data.TargetCompanies[i+1:]...)
			e.persist()
			return true
		}
	}
	return false
}

func (e *Engine) UpdateQuestion(id string, patch domain.QuestionPatch) (domain.Question, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.data.Questions {
		q := &e.data.Questions[i]
		if q.ID != id {
			continue
		}
		if patch.Text != nil {
			q.Text = *patch.Text
		}
		if patch.IsEnabled != nil {
			q.IsEnabled = *patch.IsEnabled
		}
		if patch.Order != nil {
			q.Order = *patch.Order
		}
		e.persist()
		return *q, true
	}
	return domain.Question{}, false
}

// AddCustomQuestion appends an enabled, non-default question after the
// current highest order.
func (e *Engine) AddCustomQuestion(text string) (domain.Question, domain.FieldErrors) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return domain.Question{}, domain.FieldErrors{"text": "question text is required"}
	case len([]rune(text)) > maxQuestionLength:
		return domain.Question{}, domain.FieldErrors{"text": "question text is too long"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order := 0
	for _, q := range e.data.Questions {
		if q.Order > order {
			order = q.Order
		}
	}
	q := domain.Question{
		ID:        e.nextID("cq"),
		Text:      text,
		IsDefault: false,
		IsEnabled: true,
		Order:     order + 1,
	}
	e.data.Questions = append(e.data.Questions, q)
	e.persist()
	return q, nil
}

// ReorderQuestions replaces the list wholesale. Order values are taken as
// given.
func (e *Engine) ReorderQuestions(qs []domain.Question) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.data.Questions = append([]domain.Question{}, qs...)
	e.persist()
}

func (e *Engine) SetTermsAccepted(accepted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.data.TermsAccepted = accepted
	e.persist()
}

// Reset drops all input, returns to step 1 and clears both slots.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.data = domain.NewWizardFormData()
	e.step = 1
	e.restored = true
	if e.store == nil {
		return
	}
	keys := []string{snapshot.WizardFormKey(e.owner), snapshot.WizardStepKey(e.owner)}
	if err := e.store.Delete(context.Background(), keys...); err != nil {
		logger.Warn("Wizard snapshot clear failed", "owner", e.owner, "error", err)
	}
}

func (e *Engine) Export() domain.WizardExport {
	e.mu.Lock()
	defer e.mu.Unlock()

	return domain.WizardExport{
		FormData:    e.data.Clone(),
		CurrentStep: e.step,
		Timestamp:   e.now(),
	}
}
