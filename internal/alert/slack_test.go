package alert

import (
	"context"
	"fmt"
	"testing"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"ruleloop/internal/domain"
)

type fakeSlack struct {
	posts    []string
	channels []string
	failPost bool
}

func (f *fakeSlack) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if f.failPost {
		return "", "", fmt.Errorf("slack unavailable")
	}
	f.channels = append(f.channels, channelID)
	f.posts = append(f.posts, "posted")
	return channelID, "ts", nil
}

func (f *fakeSlack) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	ch := &slack.Channel{}
	ch.ID = "D-" + params.Users[0]
	return ch, false, false, nil
}

func newTestGateway(api slackAPI, channelID string, stakeholders []string) *SlackGateway {
	return &SlackGateway{
		api:          api,
		channelID:    channelID,
		stakeholders: stakeholders,
		limiter:      rate.NewLimiter(rate.Inf, 1),
	}
}

func TestRollbackAlertFanOut(t *testing.T) {
	api := &fakeSlack{}
	g := newTestGateway(api, "C1", []string{"U1", "U2"})

	err := g.RuleRolledBack(context.Background(), RollbackAlert{
		RuleID:         7,
		RuleName:       "DHL invoice number",
		FieldName:      "invoice_number",
		FromVersion:    2,
		ToVersion:      1,
		AccuracyBefore: 0.70,
		AccuracyAfter:  0.90,
		DropPercentage: 20,
		Trigger:        domain.TriggerAuto,
		Reason:         "drop over threshold",
	})
	if err != nil {
		t.Fatalf("RuleRolledBack failed: %v", err)
	}
	if len(api.channels) != 3 {
		t.Fatalf("expected channel + 2 DMs, got %v", api.channels)
	}
	if api.channels[0] != "C1" || api.channels[1] != "D-U1" || api.channels[2] != "D-U2" {
		t.Fatalf("unexpected delivery order: %v", api.channels)
	}
}

func TestAlertFailureIsReportedNotFatal(t *testing.T) {
	api := &fakeSlack{failPost: true}
	g := newTestGateway(api, "C1", nil)

	err := g.CandidatesAvailable(context.Background(), CandidatesAlert{Count: 1})
	if err == nil {
		t.Fatal("expected delivery failure to be reported")
	}
}

func TestCandidatesAlertListsPatterns(t *testing.T) {
	api := &fakeSlack{}
	g := newTestGateway(api, "C1", nil)

	err := g.CandidatesAvailable(context.Background(), CandidatesAlert{
		Count: 1,
		Patterns: []domain.Pattern{
			{ForwarderID: "DHL", FieldName: "invoice_number", OriginalValue: "INV-001", CorrectedValue: "INV001", OccurrenceCount: 3},
		},
		Digest: "Hyphens are being kept in invoice numbers.",
	})
	if err != nil {
		t.Fatalf("CandidatesAvailable failed: %v", err)
	}
	if len(api.channels) != 1 {
		t.Fatalf("expected a single channel post, got %v", api.channels)
	}
}
