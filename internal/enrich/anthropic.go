// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// analysisSystemPrompt fixes the response schema the workers rely on.
const analysisSystemPrompt = `You extract business object references from screen activity.
Respond with a JSON array only, no prose. Each element:
{"object_type": string, "identifier": string, "identifier_key": string, "confidence": number between 0 and 1}.
Return [] when nothing is identifiable.`

// MessagesClient is the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService so tests can substitute a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider implements Provider on the Claude Messages API.
type AnthropicProvider struct {
	msg       MessagesClient
	model     string
	maxTokens int64
}

// NewAnthropicProvider builds a provider from an existing Messages client.
func NewAnthropicProvider(msg MessagesClient, model string) (*AnthropicProvider, error) {
	if msg == nil {
		return nil, errors.New("messages client is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &AnthropicProvider{msg: msg, model: model, maxTokens: 1024}, nil
}

// NewAnthropicFromAPIKey constructs a provider with the default HTTP client.
// baseURL overrides the API endpoint when non-empty.
func NewAnthropicFromAPIKey(apiKey, baseURL, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	ac := sdk.NewClient(opts...)
	return NewAnthropicProvider(&ac.Messages, model)
}

// Analyze issues one Messages call and parses the structured item list.
func (p *AnthropicProvider) Analyze(ctx context.Context, prompt string, image []byte) ([]Item, error) {
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(prompt)}
	if len(image) > 0 {
		encoded := base64.StdEncoding.EncodeToString(image)
		blocks = append(blocks, sdk.NewImageBlockBase64("image/png", encoded))
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []sdk.TextBlockParam{{Text: analysisSystemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return nil, classifySDKError(err)
	}
	return parseItems(msg)
}

func classifySDKError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429 || apierr.StatusCode >= 500:
			return transientErr(err)
		case apierr.StatusCode >= 400:
			return permanentErr(err)
		}
	}
	// Network failures and deadline expiry retry as transient.
	return transientErr(err)
}

func parseItems(msg *sdk.Message) ([]Item, error) {
	if msg == nil {
		return nil, malformedErr(errors.New("nil response message"))
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	raw := strings.TrimSpace(text.String())
	// Tolerate a fenced code block around the array.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, malformedErr(errors.New("empty response text"))
	}
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, malformedErr(fmt.Errorf("unparsable item list: %w", err))
	}
	out := items[:0]
	for _, it := range items {
		if it.ObjectType == "" || it.Identifier == "" {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}
