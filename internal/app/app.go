package app

import (
	"context"
	"log"
	"time"

	"csatnotes/internal/config"
	"csatnotes/internal/httpx"
	"csatnotes/internal/integrations/llm"
	slackbot "csatnotes/internal/integrations/slack"
	"csatnotes/internal/nudge"
	"csatnotes/internal/storage"
	"csatnotes/internal/workflow"

	"github.com/slack-go/slack"
)

const storeOpenTimeout = 30 * time.Second

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Command=%s StoreDriver=%s Tables=%s/%s/%s Timezone=%s Digest=%t LLM=%t ExternalHTTPTimeout=%s",
		cfg.SlashCommand,
		cfg.StoreDriver,
		cfg.CaseTable,
		cfg.StaffTable,
		cfg.NotesTable,
		cfg.Timezone,
		cfg.DigestConfigured(),
		cfg.LLMConfigured(),
		appliedHTTPTimeout,
	)

	store := openStore(cfg)
	defer store.Close()

	loc := cfg.Location
	sessions := workflow.NewSessions(store, func() time.Time { return time.Now().In(loc) })

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
		slack.OptionHTTPClient(httpx.Client()),
	)

	var summarizer nudge.Summarizer
	if s := llm.NewSummarizer(cfg.AnthropicAPIKey, cfg.LLMModel); s != nil {
		summarizer = s
	}
	nudge.StartFollowUpDigestScheduler(cfg, store, summarizer, api)

	log.Println("Starting CSAT notes bot...")
	if err := slackbot.StartSlackBot(cfg, sessions, api); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}

// openStore never fails: an unreachable store is replaced by one that reports
// the connection error on every operation, so users see it per action.
func openStore(cfg config.Config) *storage.Store {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Printf("WARNING: case store unavailable (driver=%s): %v", cfg.StoreDriver, err)
		return storage.Unavailable(err)
	}
	log.Printf("Case store connected driver=%s", cfg.StoreDriver)

	if cfg.FixturesPath != "" {
		seedFixtures(ctx, store, cfg)
	}
	return store
}

func seedFixtures(ctx context.Context, store *storage.Store, cfg config.Config) {
	if cfg.StoreDriver != config.StoreDriverSQLite {
		log.Printf("WARNING: fixtures_path ignored for store driver %s", cfg.StoreDriver)
		return
	}
	fixtures, err := storage.LoadFixtures(cfg.FixturesPath)
	if err != nil {
		log.Printf("WARNING: fixtures not loaded from %s: %v", cfg.FixturesPath, err)
		return
	}
	inserted, err := store.ImportFixtures(ctx, fixtures)
	if err != nil {
		log.Printf("WARNING: fixtures import failed: %v", err)
		return
	}
	log.Printf("Fixtures imported from %s rows=%d", cfg.FixturesPath, inserted)
}
