package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"csatnotes/internal/domain"
	"csatnotes/internal/httpx"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

const summaryMaxTokens = 1024

const followUpSystemPrompt = `You summarize customer satisfaction notes for a care team lead.
Each note was flagged by a care or payments team member as needing follow-up.
Write at most five short bullet points in Slack mrkdwn. Group notes that share a theme,
name the case numbers each bullet covers, and call out anything urgent first.
Do not invent details that are not in the notes.`

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Summarizer condenses follow-up notes with Anthropic.
type Summarizer struct {
	apiKey string
	model  string
	opts   []option.RequestOption
}

// NewSummarizer returns nil when apiKey is empty. Extra options are passed to
// every request after the defaults.
func NewSummarizer(apiKey, model string, opts ...option.RequestOption) *Summarizer {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = defaultAnthropicModel
	}
	return &Summarizer{apiKey: apiKey, model: model, opts: opts}
}

func (s *Summarizer) Model() string {
	return s.model
}

func (s *Summarizer) SummarizeFollowUps(ctx context.Context, notes []domain.Note) (string, LLMUsage, error) {
	if len(notes) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no notes to summarize")
	}
	log.Printf("llm follow-up summary notes=%d model=%s", len(notes), s.model)
	return s.callAnthropic(ctx, followUpSystemPrompt, BuildFollowUpPrompt(notes))
}

// BuildFollowUpPrompt lists the notes one per line in a stable format.
func BuildFollowUpPrompt(notes []domain.Note) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Follow-up notes (%d):\n", len(notes))
	for _, n := range notes {
		sentiment := string(n.Sentiment)
		if sentiment == "" {
			sentiment = "unknown"
		}
		fmt.Fprintf(&sb, "- case=%s sentiment=%s by=%s at=%s: %s\n",
			n.CaseNumber, sentiment, n.Commenter, n.DateCreated, oneLine(n.Notes))
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (s *Summarizer) callAnthropic(ctx context.Context, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	opts := append([]option.RequestOption{
		option.WithAPIKey(s.apiKey),
		option.WithHTTPClient(httpx.Client()),
	}, s.opts...)
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: summaryMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return strings.TrimSpace(block.Text), usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}
