package workflow

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"csatnotes/internal/domain"

	"github.com/google/uuid"
)

type State int

const (
	StateEmpty State = iota
	StatePartial
	StateSubmitting
	StateSubmitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePartial:
		return "partial"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

var (
	// ErrNoCase is returned when an annotation action happens before a
	// successful lookup.
	ErrNoCase = errors.New("no case in view: look up a case number first")
	// ErrNoActiveDraft is returned after a successful submission until the
	// user looks up a case again or asks to add another note.
	ErrNoActiveDraft = errors.New("this note was already saved: look up the case again or add another note")
	// ErrStaleForm is returned when a form submission belongs to an earlier
	// lookup than the one currently in view.
	ErrStaleForm = errors.New("this form belongs to an earlier case lookup: search for the case again")
)

type CaseFinder interface {
	LookupCase(ctx context.Context, caseNumber string) (domain.LookupResult, error)
}

type CommenterDirectory interface {
	ListEligibleCommenters(ctx context.Context) ([]string, error)
}

type NoteWriter interface {
	InsertNote(ctx context.Context, n domain.Note) error
}

type Store interface {
	CaseFinder
	CommenterDirectory
	NoteWriter
}

// FormInput is one submission of the annotation form as raw widget state.
type FormInput struct {
	Commenter     string
	SentimentGood bool
	SentimentBad  bool
	FollowUpYes   bool
	FollowUpNo    bool
	Notes         string
}

// Session holds one user's case-lookup-then-annotate state. All methods are
// safe to call from concurrent handlers; calls are serialized.
type Session struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	state   State
	current *domain.CaseRecord
	token   string
	draft   domain.AnnotationDraft
}

func NewSession(store Store, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{store: store, now: now}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Case returns the case in view, if any.
func (s *Session) Case() (domain.CaseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.CaseRecord{}, false
	}
	return *s.current, true
}

func (s *Session) Draft() domain.AnnotationDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Token identifies the lookup that produced the current draft.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Lookup discards any case and draft in view and queries the store. A found
// case opens a fresh draft; anything else leaves the session empty.
func (s *Session) Lookup(ctx context.Context, caseNumber string) (domain.LookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	caseNumber = strings.TrimSpace(caseNumber)
	if caseNumber == "" {
		return domain.NotFound(), nil
	}

	res, err := s.store.LookupCase(ctx, caseNumber)
	if err != nil {
		return domain.NotFound(), err
	}
	if !res.Found() {
		return res, nil
	}
	rec := res.Case
	s.current = &rec
	s.openDraft()
	return res, nil
}

// Commenters fetches the allow-list for a render of the annotation form.
// Nothing is cached: every render and every submission reads the directory.
func (s *Session) Commenters(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoCase
	}
	return s.store.ListEligibleCommenters(ctx)
}

// AddAnother opens a fresh draft for the case still in view after a
// successful submission.
func (s *Session) AddAnother(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoCase
	}
	if token != "" && token != s.token {
		return ErrStaleForm
	}
	if s.state != StateSubmitted {
		return nil
	}
	s.openDraft()
	return nil
}

func (s *Session) SetCommenter(name string) error {
	return s.edit(func(d *domain.AnnotationDraft) { d.Commenter = strings.TrimSpace(name) })
}

func (s *Session) SetSentiment(good, bad bool) error {
	return s.edit(func(d *domain.AnnotationDraft) { d.Sentiment = domain.ResolveSentiment(good, bad) })
}

func (s *Session) SetFollowUp(yes, no bool) error {
	return s.edit(func(d *domain.AnnotationDraft) { d.FollowUp = domain.ResolveFollowUp(yes, no) })
}

func (s *Session) SetNotes(notes string) error {
	return s.edit(func(d *domain.AnnotationDraft) { d.Notes = notes })
}

// Apply sets every field from one form submission.
func (s *Session) Apply(in FormInput) error {
	return s.edit(func(d *domain.AnnotationDraft) { applyForm(d, in) })
}

// SubmitForm checks that token matches the current lookup, applies the form
// and submits it as one step.
func (s *Session) SubmitForm(ctx context.Context, token string, in FormInput) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editable(); err != nil {
		return domain.Note{}, err
	}
	if token != s.token {
		return domain.Note{}, ErrStaleForm
	}
	applyForm(&s.draft, in)
	s.state = StatePartial
	return s.submit(ctx)
}

// Submit validates the draft and appends it to the notes table. Validation
// and write failures keep the draft for correction; success clears it.
func (s *Session) Submit(ctx context.Context) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editable(); err != nil {
		return domain.Note{}, err
	}
	return s.submit(ctx)
}

func (s *Session) submit(ctx context.Context) (domain.Note, error) {
	allowed, err := s.store.ListEligibleCommenters(ctx)
	if err != nil {
		s.state = StateRejected
		log.Printf("commenter directory unavailable case=%s: %v", s.draft.CaseNumber, err)
		return domain.Note{}, err
	}
	if allowed == nil {
		allowed = []string{}
	}
	if err := s.draft.Validate(allowed); err != nil {
		s.state = StateRejected
		return domain.Note{}, err
	}

	s.state = StateSubmitting
	note := domain.NewNote(s.draft, s.now())
	if err := s.store.InsertNote(ctx, note); err != nil {
		s.state = StateRejected
		log.Printf("note insert failed case=%s commenter=%q: %v", note.CaseNumber, note.Commenter, err)
		return domain.Note{}, err
	}

	s.state = StateSubmitted
	s.draft = domain.AnnotationDraft{}
	log.Printf("note saved case=%s commenter=%q sentiment=%s follow_up=%s", note.CaseNumber, note.Commenter, note.Sentiment, note.FollowUp)
	return note, nil
}

func applyForm(d *domain.AnnotationDraft, in FormInput) {
	d.Commenter = strings.TrimSpace(in.Commenter)
	d.Sentiment = domain.ResolveSentiment(in.SentimentGood, in.SentimentBad)
	d.FollowUp = domain.ResolveFollowUp(in.FollowUpYes, in.FollowUpNo)
	d.Notes = in.Notes
}

func (s *Session) edit(fn func(d *domain.AnnotationDraft)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	fn(&s.draft)
	s.state = StatePartial
	return nil
}

func (s *Session) editable() error {
	switch {
	case s.current == nil:
		return ErrNoCase
	case s.state == StateSubmitted:
		return ErrNoActiveDraft
	}
	return nil
}

func (s *Session) openDraft() {
	s.draft = domain.NewDraft(s.current.CaseNumber)
	s.token = uuid.NewString()
	s.state = StatePartial
}

func (s *Session) reset() {
	s.state = StateEmpty
	s.current = nil
	s.token = ""
	s.draft = domain.AnnotationDraft{}
}
