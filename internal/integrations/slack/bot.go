package slackbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"csatnotes/internal/config"
	"csatnotes/internal/domain"
	"csatnotes/internal/workflow"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

const (
	lookupTimeout = 15 * time.Second
	// View submissions must be answered within Slack's three second window,
	// so the insert gets less than that.
	submitTimeout = 2500 * time.Millisecond
)

func StartSlackBot(cfg config.Config, sessions *workflow.Sessions, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeConnectionError:
				log.Printf("Slack socket mode connection error: %v", evt.Data)
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(api, sessions, cfg, cmd)
			case socketmode.EventTypeInteractive:
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					client.Ack(*evt.Request)
					continue
				}
				// Modal errors travel in the ack itself, so submissions are
				// acked only after they are handled.
				if callback.Type == slack.InteractionTypeViewSubmission {
					go ackViewSubmission(client, *evt.Request, api, sessions, callback)
					continue
				}
				client.Ack(*evt.Request)
				go handleInteraction(api, sessions, callback)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, sessions *workflow.Sessions, cfg config.Config, cmd slack.SlashCommand) {
	if cmd.Command != cfg.SlashCommand {
		log.Printf("ignoring unknown command %s", cmd.Command)
		return
	}
	text := strings.TrimSpace(cmd.Text)
	if strings.EqualFold(text, "help") {
		handleHelp(api, cfg, cmd)
		return
	}
	handleLookup(api, sessions, cfg, cmd, text)
}

func handleLookup(api *slack.Client, sessions *workflow.Sessions, cfg config.Config, cmd slack.SlashCommand, caseNumber string) {
	session := sessions.Get(workflow.SessionKey(cmd.UserID, cmd.ChannelID))

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	res, err := session.Lookup(ctx, caseNumber)
	if err != nil {
		log.Printf("case lookup error case=%q user=%s: %v", caseNumber, cmd.UserID, err)
		postEphemeral(api, cmd, storeErrorMessage(err))
		return
	}
	if !res.Found() {
		log.Printf("case lookup not found case=%q user=%s", caseNumber, cmd.UserID)
		postEphemeral(api, cmd, fmt.Sprintf("%s\nType `%s help` for usage.", msgCaseNotFound, cfg.SlashCommand))
		return
	}

	log.Printf("case lookup found case=%s user=%s", res.Case.CaseNumber, cmd.UserID)
	_, err = api.PostEphemeral(cmd.ChannelID, cmd.UserID,
		slack.MsgOptionText(caseFallbackText(res.Case), false),
		slack.MsgOptionBlocks(caseBlocks(res.Case, session.Token())...),
	)
	if err != nil {
		log.Printf("Error posting case view: %v", err)
	}
}

func storeErrorMessage(err error) string {
	var connErr *domain.ConnectionError
	if errors.As(err, &connErr) {
		return "Unable to reach the case store right now. Please try again later."
	}
	return fmt.Sprintf("Error looking up case: %v", err)
}

func handleHelp(api *slack.Client, cfg config.Config, cmd slack.SlashCommand) {
	lines := []string{
		"*CSAT Notes*",
		"",
		fmt.Sprintf("`%s <case number>` - Look up a case and add a satisfaction note to it.", cfg.SlashCommand),
		fmt.Sprintf(">*Example:* `%s 01234567`", cfg.SlashCommand),
		"",
		"Each note needs a commenter, a sentiment (Good or Bad), a follow-up flag (Yes or No)",
		fmt.Sprintf("and notes of at most %d characters.", domain.MaxNotesChars),
		"",
		fmt.Sprintf("`%s help` - Show this help.", cfg.SlashCommand),
	}
	postEphemeral(api, cmd, strings.Join(lines, "\n"))
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	postEphemeralTo(api, cmd.ChannelID, cmd.UserID, text)
}

func postEphemeralTo(api *slack.Client, channelID, userID, text string) {
	_, err := api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}

func handleInteraction(api *slack.Client, sessions *workflow.Sessions, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}

	switch act.ActionID {
	case actionAddNote, actionAddAnother:
		openNoteModal(api, sessions, cb.TriggerID, channelID, cb.User.ID, strings.TrimSpace(act.Value))
	}
}

func openNoteModal(api *slack.Client, sessions *workflow.Sessions, triggerID, channelID, userID, token string) {
	session := sessions.Get(workflow.SessionKey(userID, channelID))
	if err := session.AddAnother(token); err != nil {
		postEphemeralTo(api, channelID, userID, interactionErrorMessage(err))
		return
	}
	rec, ok := session.Case()
	if !ok {
		postEphemeralTo(api, channelID, userID, interactionErrorMessage(workflow.ErrNoCase))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	commenters, err := session.Commenters(ctx)
	if err != nil {
		log.Printf("commenter list error case=%s user=%s: %v", rec.CaseNumber, userID, err)
		postEphemeralTo(api, channelID, userID, storeErrorMessage(err))
		return
	}
	if len(commenters) == 0 {
		log.Printf("WARNING: no eligible commenters for case=%s", rec.CaseNumber)
	}

	preselect := commenterForUser(api, userID, commenters)
	view := noteModal(rec, commenters, preselect, session.Token(), channelID)
	if _, err := api.OpenView(triggerID, view); err != nil {
		log.Printf("note modal open error case=%s user=%s: %v", rec.CaseNumber, userID, err)
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("Unable to open note form: %v", err))
	}
}

func interactionErrorMessage(err error) string {
	switch {
	case errors.Is(err, workflow.ErrStaleForm), errors.Is(err, workflow.ErrNoCase):
		return "That case view is out of date. Please search for the case again."
	}
	return err.Error()
}

func ackViewSubmission(client *socketmode.Client, req socketmode.Request, api *slack.Client, sessions *workflow.Sessions, cb slack.InteractionCallback) {
	resp, after := handleViewSubmission(api, sessions, cb)
	if resp != nil {
		client.Ack(req, resp)
	} else {
		client.Ack(req)
	}
	if after != nil {
		after()
	}
}

// handleViewSubmission submits the note form. A non-nil response keeps the
// modal open with per-block errors; otherwise the modal closes and the
// returned func posts the confirmation.
func handleViewSubmission(api *slack.Client, sessions *workflow.Sessions, cb slack.InteractionCallback) (*slack.ViewSubmissionResponse, func()) {
	if cb.View.CallbackID != modalNoteCallbackID {
		return nil, nil
	}
	token, channelID, ok := parseNoteMetadata(cb.View.PrivateMetadata)
	if !ok {
		log.Printf("note modal: bad private metadata %q", cb.View.PrivateMetadata)
		return nil, nil
	}
	if channelID == "" {
		channelID = cb.Channel.ID
	}
	userID := cb.User.ID
	session := sessions.Get(workflow.SessionKey(userID, channelID))

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	note, err := session.SubmitForm(ctx, token, formInput(cb.View.State))
	if err != nil {
		log.Printf("note submission rejected user=%s channel=%s: %v", userID, channelID, err)
		return slack.NewErrorsViewSubmissionResponse(submissionErrors(err, cb.View)), nil
	}

	log.Printf("note submission saved case=%s user=%s", note.CaseNumber, userID)
	return nil, func() {
		_, err := api.PostEphemeral(channelID, userID,
			slack.MsgOptionText(msgNotesSaved, false),
			slack.MsgOptionBlocks(savedBlocks(token)...),
		)
		if err != nil {
			log.Printf("Error posting save confirmation: %v", err)
		}
	}
}

func formInput(state *slack.ViewState) workflow.FormInput {
	var in workflow.FormInput
	if state == nil {
		return in
	}
	values := state.Values
	in.Commenter = strings.TrimSpace(values[blockCommenter][actionCommenter].SelectedOption.Value)
	for _, opt := range values[blockSentiment][actionSentiment].SelectedOptions {
		switch domain.Sentiment(opt.Value) {
		case domain.SentimentGood:
			in.SentimentGood = true
		case domain.SentimentBad:
			in.SentimentBad = true
		}
	}
	for _, opt := range values[blockFollowUp][actionFollowUp].SelectedOptions {
		switch domain.FollowUp(opt.Value) {
		case domain.FollowUpYes:
			in.FollowUpYes = true
		case domain.FollowUpNo:
			in.FollowUpNo = true
		}
	}
	in.Notes = values[blockNotes][actionNotes].Value
	return in
}
