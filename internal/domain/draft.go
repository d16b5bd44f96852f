package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxNotesChars = 499

// DateCreatedLayout is the DATE_CREATED column format (YYYY-MM-DD HH:MM:SS).
const DateCreatedLayout = "2006-01-02 15:04:05"

const (
	FieldCommenter = "commenter"
	FieldSentiment = "sentiment"
	FieldFollowUp  = "follow_up"
	FieldNotes     = "notes"
)

type Sentiment string

const (
	SentimentUnset Sentiment = ""
	SentimentGood  Sentiment = "Good"
	SentimentBad   Sentiment = "Bad"
)

// ResolveSentiment maps the Good/Bad checkbox pair to a value. Checking
// both boxes, or neither, leaves the sentiment unset.
func ResolveSentiment(good, bad bool) Sentiment {
	switch {
	case good && !bad:
		return SentimentGood
	case bad && !good:
		return SentimentBad
	}
	return SentimentUnset
}

type FollowUp string

const (
	FollowUpUnset FollowUp = ""
	FollowUpYes   FollowUp = "Y"
	FollowUpNo    FollowUp = "N"
)

// ResolveFollowUp applies the same tie-break as ResolveSentiment.
func ResolveFollowUp(yes, no bool) FollowUp {
	switch {
	case yes && !no:
		return FollowUpYes
	case no && !yes:
		return FollowUpNo
	}
	return FollowUpUnset
}

func (f FollowUp) Label() string {
	switch f {
	case FollowUpYes:
		return "Yes"
	case FollowUpNo:
		return "No"
	}
	return ""
}

// AnnotationDraft is the note a user is composing for the case in view.
type AnnotationDraft struct {
	CaseNumber string
	Commenter  string
	Sentiment  Sentiment
	FollowUp   FollowUp
	Notes      string
}

func NewDraft(caseNumber string) AnnotationDraft {
	return AnnotationDraft{CaseNumber: caseNumber}
}

// Validate reports every unresolved required field. A non-nil allowed list
// restricts the commenter to its members; an empty allowed list rejects
// every commenter.
func (d AnnotationDraft) Validate(allowed []string) error {
	var verr ValidationError

	commenter := strings.TrimSpace(d.Commenter)
	switch {
	case commenter == "":
		verr.add(FieldCommenter, "Please select a commenter.")
	case allowed != nil && !containsExact(allowed, commenter):
		verr.add(FieldCommenter, "Commenter is not an active care or payments team member.")
	}
	if d.Sentiment == SentimentUnset {
		verr.add(FieldSentiment, "Select exactly one of Good or Bad.")
	}
	if d.FollowUp == FollowUpUnset {
		verr.add(FieldFollowUp, "Select exactly one of Yes or No.")
	}
	notes := strings.TrimSpace(d.Notes)
	switch {
	case notes == "":
		verr.add(FieldNotes, "Notes cannot be empty.")
	case utf8.RuneCountInString(notes) > MaxNotesChars:
		verr.add(FieldNotes, "Notes must be at most 499 characters.")
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return &verr
}

func containsExact(vals []string, v string) bool {
	for _, s := range vals {
		if s == v {
			return true
		}
	}
	return false
}

// Note is one row of the notes table.
type Note struct {
	Commenter   string
	DateCreated string
	CaseNumber  string
	Sentiment   Sentiment
	Notes       string
	FollowUp    FollowUp
}

// NewNote builds the row for a validated draft, stamping it with at.
func NewNote(d AnnotationDraft, at time.Time) Note {
	return Note{
		Commenter:   strings.TrimSpace(d.Commenter),
		DateCreated: at.Format(DateCreatedLayout),
		CaseNumber:  d.CaseNumber,
		Sentiment:   d.Sentiment,
		Notes:       strings.TrimSpace(d.Notes),
		FollowUp:    d.FollowUp,
	}
}
