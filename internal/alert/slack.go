package alert

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// slackAPI is the slice of the Slack client the notifier uses.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
}

// SlackGateway posts alerts to a channel and DMs each stakeholder. Posts are
// rate limited so a burst of promotions or rollbacks cannot trip Slack's
// limits.
type SlackGateway struct {
	api          slackAPI
	channelID    string
	stakeholders []string // Slack user IDs
	limiter      *rate.Limiter
}

func NewSlackGateway(api *slack.Client, channelID string, stakeholders []string) *SlackGateway {
	return &SlackGateway{
		api:          api,
		channelID:    channelID,
		stakeholders: stakeholders,
		limiter:      rate.NewLimiter(rate.Limit(1), 3),
	}
}

func (g *SlackGateway) CandidatesAvailable(ctx context.Context, a CandidatesAlert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d new correction pattern candidate(s)* ready for review.\n", a.Count)
	for _, p := range a.Patterns {
		fmt.Fprintf(&b, "• %s/%s: `%s` → `%s` (seen %d times)\n",
			p.ForwarderID, p.FieldName, p.OriginalValue, p.CorrectedValue, p.OccurrenceCount)
	}
	if a.Digest != "" {
		fmt.Fprintf(&b, "\n%s", a.Digest)
	}
	return g.fanOut(ctx, b.String())
}

func (g *SlackGateway) RuleRolledBack(ctx context.Context, a RollbackAlert) error {
	msg := fmt.Sprintf(
		"*Rule rolled back* (%s): %s [%s] v%d → v%d\n"+
			"Accuracy %.1f%% → %.1f%% (drop %.1f pp)\n%s",
		a.Trigger, a.RuleName, a.FieldName, a.FromVersion, a.ToVersion,
		a.AccuracyBefore*100, a.AccuracyAfter*100, a.DropPercentage, a.Reason,
	)
	return g.fanOut(ctx, msg)
}

// fanOut posts to the channel, then once per stakeholder DM. Individual
// failures are logged and do not stop the remaining deliveries.
func (g *SlackGateway) fanOut(ctx context.Context, msg string) error {
	var failed int

	if g.channelID != "" {
		if err := g.post(ctx, g.channelID, msg); err != nil {
			log.Printf("alert channel post error: %v", err)
			failed++
		}
	}
	for _, userID := range g.stakeholders {
		channel, _, _, err := g.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{userID},
		})
		if err != nil {
			log.Printf("alert open DM %s error: %v", userID, err)
			failed++
			continue
		}
		if err := g.post(ctx, channel.ID, msg); err != nil {
			log.Printf("alert DM %s error: %v", userID, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d alert delivery failure(s)", failed)
	}
	return nil
}

func (g *SlackGateway) post(ctx context.Context, channelID, msg string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := g.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(msg, false))
	return err
}
