// Package nudge posts a periodic digest of CSAT notes flagged for follow-up
// so the care team does not lose track of them.
package nudge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"csatnotes/internal/config"
	"csatnotes/internal/domain"
	"csatnotes/internal/integrations/llm"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

const (
	// The first digest after startup looks back this far.
	initialLookback = 24 * time.Hour
	maxDigestLines  = 50
	digestTimeout   = 2 * time.Minute
)

type FollowUpSource interface {
	ListFollowUpsBetween(ctx context.Context, from, to string) ([]domain.Note, error)
}

type Summarizer interface {
	SummarizeFollowUps(ctx context.Context, notes []domain.Note) (string, llm.LLMUsage, error)
}

type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// DigestResult describes one digest run.
type DigestResult struct {
	Notes      []domain.Note
	Summary    string
	SummaryErr error
	Posted     bool
}

// RunFollowUpDigest collects follow-up notes created in [since, until) and
// posts them to the digest channel. Nothing is posted when there are none.
// A nil summarizer, or a failed summary, yields the plain list.
func RunFollowUpDigest(ctx context.Context, cfg config.Config, src FollowUpSource, sum Summarizer, api Poster, since, until time.Time) (DigestResult, error) {
	var result DigestResult

	notes, err := src.ListFollowUpsBetween(ctx,
		since.In(cfg.Location).Format(domain.DateCreatedLayout),
		until.In(cfg.Location).Format(domain.DateCreatedLayout))
	if err != nil {
		return result, fmt.Errorf("error loading follow-up notes: %w", err)
	}
	result.Notes = notes
	if len(notes) == 0 {
		return result, nil
	}

	if sum != nil {
		summary, usage, sumErr := sum.SummarizeFollowUps(ctx, notes)
		if sumErr != nil {
			log.Printf("follow-up digest summary failed, posting plain list: %v", sumErr)
			result.SummaryErr = sumErr
		} else {
			log.Printf("follow-up digest summary tokens=%d", usage.TotalTokens())
			result.Summary = summary
		}
	}

	text := FormatFollowUpDigest(notes, result.Summary, since.In(cfg.Location))
	if _, _, err := api.PostMessage(cfg.DigestChannelID, slack.MsgOptionText(text, false)); err != nil {
		return result, fmt.Errorf("error posting follow-up digest: %w", err)
	}
	result.Posted = true
	return result, nil
}

// FormatFollowUpDigest renders the digest message. Long lists are cut at
// maxDigestLines with a count of the remainder.
func FormatFollowUpDigest(notes []domain.Note, summary string, since time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*CSAT follow-ups since %s* (%d)\n", since.Format("Mon Jan 2 15:04"), len(notes))
	if s := strings.TrimSpace(summary); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	for i, n := range notes {
		if i == maxDigestLines {
			fmt.Fprintf(&sb, "...and %d more\n", len(notes)-maxDigestLines)
			break
		}
		sentiment := string(n.Sentiment)
		if sentiment == "" {
			sentiment = "?"
		}
		fmt.Fprintf(&sb, "• *%s* (%s) by %s at %s: %s\n",
			n.CaseNumber, sentiment, n.Commenter, n.DateCreated, strings.Join(strings.Fields(n.Notes), " "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// digestWindow tracks where the next scheduled digest starts. Each run
// covers [since, until) with until taken when the run begins, and since only
// moves forward after a successful run.
type digestWindow struct {
	since time.Time
}

func newDigestWindow(now time.Time) *digestWindow {
	return &digestWindow{since: now.Add(-initialLookback).Truncate(time.Second)}
}

func (w *digestWindow) run(ctx context.Context, cfg config.Config, src FollowUpSource, sum Summarizer, api Poster, now time.Time) (DigestResult, error) {
	// DATE_CREATED has one second resolution.
	until := now.Truncate(time.Second)
	result, err := RunFollowUpDigest(ctx, cfg, src, sum, api, w.since, until)
	if err != nil {
		// Keep the window so the next run retries these notes.
		return result, err
	}
	w.since = until
	return result, nil
}

// StartFollowUpDigestScheduler starts a cron-based scheduler that posts the
// follow-up digest. The schedule is a standard 5-field cron expression
// evaluated in cfg.Location.
func StartFollowUpDigestScheduler(cfg config.Config, src FollowUpSource, sum Summarizer, api Poster) {
	schedule := strings.TrimSpace(cfg.FollowUpDigestSchedule)
	if schedule == "" {
		log.Println("Follow-up digest disabled (followup_digest_schedule not set)")
		return
	}
	if !cfg.DigestConfigured() {
		log.Println("Follow-up digest disabled: digest_channel_id not set")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid followup_digest_schedule '%s': %v, follow-up digest disabled", schedule, err)
		return
	}
	log.Printf("Follow-up digest scheduled (cron: %s) to channel=%s summary=%t", schedule, cfg.DigestChannelID, sum != nil)

	go func() {
		window := newDigestWindow(time.Now().In(cfg.Location))
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next follow-up digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
			result, runErr := window.run(ctx, cfg, src, sum, api, time.Now().In(cfg.Location))
			cancel()
			if runErr != nil {
				log.Printf("Follow-up digest error: %v", runErr)
				continue
			}
			log.Printf("Follow-up digest complete: notes=%d posted=%t", len(result.Notes), result.Posted)
		}
	}()
}
