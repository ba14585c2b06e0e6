package shorten

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAI(apiKey string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey))
}

// NewOpenAIWithConfig allows pointing the client at another base URL.
func NewOpenAIWithConfig(cfg openai.ClientConfig) *OpenAI {
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   openai.GPT4oMini,
		timeout: 20 * time.Second,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Shorten(ctx context.Context, title string, maxRunes int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt(title, maxRunes),
			},
		},
		MaxCompletionTokens: 200,
		Temperature:         0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	return check(clean(resp.Choices[0].Message.Content), maxRunes)
}
