package alert

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ruleloop/internal/domain"
)

const defaultDigestModel = "claude-sonnet-4-5-20250929"

const digestSystemPrompt = `You summarize recurring human corrections of automated freight-document field extraction.
Given before/after value pairs per forwarder and field, describe in at most three short sentences what the extractor
appears to be getting wrong and what rule change a reviewer should consider. Plain text only, no markdown.`

// Digester writes a short natural-language summary of newly promoted
// candidate patterns for the review alert.
type Digester interface {
	Digest(ctx context.Context, patterns []domain.Pattern) (string, error)
}

// AnthropicDigester annotates candidate alerts with a model-written summary.
// It is optional wiring: when no API key is configured the alert goes out
// with structural content only.
type AnthropicDigester struct {
	client anthropic.Client
	model  string
}

func NewAnthropicDigester(apiKey, model string) *AnthropicDigester {
	if model == "" {
		model = defaultDigestModel
	}
	return &AnthropicDigester{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (d *AnthropicDigester) Digest(ctx context.Context, patterns []domain.Pattern) (string, error) {
	if len(patterns) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, p := range patterns {
		fmt.Fprintf(&b, "- forwarder=%s field=%s occurrences=%d: %q -> %q\n",
			p.ForwarderID, p.FieldName, p.OccurrenceCount, p.OriginalValue, p.CorrectedValue)
	}

	message, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: digestSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic digest: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("digest generated size=%d tokens_in=%d tokens_out=%d",
				len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in digest response")
}
