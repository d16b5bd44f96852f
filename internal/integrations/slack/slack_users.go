package slackbot

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const userCacheTTL = 5 * time.Minute

type cachedUser struct {
	user      slack.User
	fetchedAt time.Time
}

var userCache struct {
	sync.Mutex
	users map[string]cachedUser
}

func getCachedUser(api *slack.Client, userID string) (slack.User, error) {
	userCache.Lock()
	defer userCache.Unlock()

	if c, ok := userCache.users[userID]; ok && time.Since(c.fetchedAt) < userCacheTTL {
		return c.user, nil
	}

	user, err := api.GetUserInfo(userID)
	if err != nil {
		return slack.User{}, err
	}
	if userCache.users == nil {
		userCache.users = make(map[string]cachedUser)
	}
	userCache.users[userID] = cachedUser{user: *user, fetchedAt: time.Now()}
	return *user, nil
}

// commenterForUser returns the eligible commenter whose name matches the
// Slack user's real or display name, or "" when none does. Lookup failures
// only cost the preselection.
func commenterForUser(api *slack.Client, userID string, commenters []string) string {
	if userID == "" || len(commenters) == 0 {
		return ""
	}
	user, err := getCachedUser(api, userID)
	if err != nil {
		log.Printf("commenter preselect: users.info user=%s: %v", userID, err)
		return ""
	}
	return matchCommenter(commenters, user.RealName, user.Profile.RealName, user.Profile.DisplayName)
}

func matchCommenter(commenters []string, candidates ...string) string {
	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if cand == "" {
			continue
		}
		for _, name := range commenters {
			if strings.EqualFold(strings.TrimSpace(name), cand) {
				return name
			}
		}
	}
	return ""
}
