package slackbot

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"csatnotes/internal/domain"

	"github.com/slack-go/slack"
)

const (
	actionAddNote       = "csat_add_note"
	actionAddAnother    = "csat_add_another"
	blockCaseActions    = "csat_case_actions"
	blockSavedActions   = "csat_saved_actions"
	modalNoteCallbackID = "csat_note_modal"
	noteMetaPrefix      = "note:"

	blockCommenter  = "csat_commenter"
	actionCommenter = "commenter_select"
	blockSentiment  = "csat_sentiment"
	actionSentiment = "sentiment_input"
	blockFollowUp   = "csat_follow_up"
	actionFollowUp  = "follow_up_input"
	blockNotes      = "csat_notes"
	actionNotes     = "notes_input"

	// Slack rejects static selects with more than 100 options and option
	// labels longer than 75 characters.
	maxSelectOptions = 100
	maxOptionLabel   = 75

	msgCaseNotFound = "Case Not Found - Please Try Another Number."
	msgNotesSaved   = "Your notes have been saved!"
)

// fieldBlocks maps a draft field to the input block that reports its error.
var fieldBlocks = map[string]string{
	domain.FieldCommenter: blockCommenter,
	domain.FieldSentiment: blockSentiment,
	domain.FieldFollowUp:  blockFollowUp,
	domain.FieldNotes:     blockNotes,
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func displayValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "_not recorded_"
	}
	return mrkdwnEscaper.Replace(v)
}

// caseBlocks renders a found case with the button that opens the note form.
func caseBlocks(rec domain.CaseRecord, token string) []slack.Block {
	fields := []*slack.TextBlockObject{
		mrkdwn("*Participant*\n" + displayValue(rec.ParticipantName)),
		mrkdwn("*Account*\n" + displayValue(rec.AccountName)),
		mrkdwn("*Care Agent*\n" + displayValue(rec.CareAgent)),
	}
	addBtn := slack.NewButtonBlockElement(actionAddNote, token, plain("Add note")).WithStyle(slack.StylePrimary)
	return []slack.Block{
		slack.NewSectionBlock(mrkdwn("*Case "+displayValue(rec.CaseNumber)+"*"), fields, nil),
		slack.NewActionBlock(blockCaseActions, addBtn),
	}
}

func caseFallbackText(rec domain.CaseRecord) string {
	return fmt.Sprintf("Case %s: %s / %s / %s", rec.CaseNumber, rec.ParticipantName, rec.AccountName, rec.CareAgent)
}

func savedBlocks(token string) []slack.Block {
	againBtn := slack.NewButtonBlockElement(actionAddAnother, token, plain("Add another note"))
	return []slack.Block{
		slack.NewSectionBlock(mrkdwn(msgNotesSaved), nil, nil),
		slack.NewActionBlock(blockSavedActions, againBtn),
	}
}

func noteMetadata(token, channelID string) string {
	return noteMetaPrefix + token + "|" + channelID
}

func parseNoteMetadata(meta string) (token, channelID string, ok bool) {
	meta = strings.TrimSpace(meta)
	if !strings.HasPrefix(meta, noteMetaPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(meta, noteMetaPrefix), "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSpace(parts[1]), true
}

func truncateLabel(s string) string {
	if utf8.RuneCountInString(s) <= maxOptionLabel {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxOptionLabel-3]) + "..."
}

// commenterBlock is a static select over the eligible commenters, or a notice
// when the directory returned nobody. preselect picks the initial option when
// it names a commenter in the list.
func commenterBlock(commenters []string, preselect string) slack.Block {
	if len(commenters) == 0 {
		return slack.NewSectionBlock(
			mrkdwn("*Commenter*\nNo active care or payments team members were found, so this note cannot be saved."),
			nil, nil,
		)
	}
	if len(commenters) > maxSelectOptions {
		log.Printf("WARNING: commenter list has %d names; showing first %d", len(commenters), maxSelectOptions)
		commenters = commenters[:maxSelectOptions]
	}

	options := make([]*slack.OptionBlockObject, 0, len(commenters))
	var initial *slack.OptionBlockObject
	for _, name := range commenters {
		opt := slack.NewOptionBlockObject(name, plain(truncateLabel(name)), nil)
		options = append(options, opt)
		if preselect != "" && name == preselect {
			initial = opt
		}
	}
	sel := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plain("Select a commenter"), actionCommenter, options...)
	if initial != nil {
		sel.InitialOption = initial
	}
	input := slack.NewInputBlock(blockCommenter, plain("Commenter"), nil, sel)
	input.Optional = true
	return input
}

func checkboxPair(blockID, actionID, label string, values, labels [2]string) *slack.InputBlock {
	group := slack.NewCheckboxGroupsBlockElement(actionID,
		slack.NewOptionBlockObject(values[0], plain(labels[0]), nil),
		slack.NewOptionBlockObject(values[1], plain(labels[1]), nil),
	)
	input := slack.NewInputBlock(blockID, plain(label), plain("Choose one."), group)
	input.Optional = true
	return input
}

// noteModal builds the annotation form. Every input is optional at the Slack
// level; required fields are checked on submission and reported per block.
func noteModal(rec domain.CaseRecord, commenters []string, preselect, token, channelID string) slack.ModalViewRequest {
	notes := slack.NewPlainTextInputBlockElement(plain("What did the customer say?"), actionNotes)
	notes.Multiline = true
	notes.MaxLength = domain.MaxNotesChars
	notesInput := slack.NewInputBlock(blockNotes, plain("Notes"), nil, notes)
	notesInput.Optional = true

	blocks := []slack.Block{
		slack.NewSectionBlock(mrkdwn(fmt.Sprintf("*Case %s*  %s", displayValue(rec.CaseNumber), displayValue(rec.ParticipantName))), nil, nil),
		commenterBlock(commenters, preselect),
		checkboxPair(blockSentiment, actionSentiment, "Sentiment",
			[2]string{string(domain.SentimentGood), string(domain.SentimentBad)},
			[2]string{"Good", "Bad"}),
		checkboxPair(blockFollowUp, actionFollowUp, "Follow up",
			[2]string{string(domain.FollowUpYes), string(domain.FollowUpNo)},
			[2]string{domain.FollowUpYes.Label(), domain.FollowUpNo.Label()}),
		notesInput,
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		Title:           plain("CSAT notes"),
		Close:           plain("Cancel"),
		Submit:          plain("Save"),
		CallbackID:      modalNoteCallbackID,
		PrivateMetadata: noteMetadata(token, channelID),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// submissionErrors maps a failed submission to per-block modal errors. A
// field whose block is missing from the view is reported on the notes block.
func submissionErrors(err error, view slack.View) map[string]string {
	present := make(map[string]bool)
	if view.State != nil {
		for blockID := range view.State.Values {
			present[blockID] = true
		}
	}
	for _, b := range view.Blocks.BlockSet {
		if in, ok := b.(*slack.InputBlock); ok {
			present[in.BlockID] = true
		}
	}

	out := make(map[string]string)
	add := func(blockID, msg string) {
		if !present[blockID] {
			blockID = blockNotes
		}
		if prev, ok := out[blockID]; ok {
			msg = prev + " " + msg
		}
		out[blockID] = msg
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			add(fieldBlocks[f.Field], f.Message)
		}
		return out
	}
	add(blockNotes, err.Error())
	return out
}
