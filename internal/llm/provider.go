package llm

import (
    "context"
    "errors"
    "strings"

    openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface core logic needs to call a chat model.
// It mirrors the CreateChatCompletion method so that any OpenAI-compatible
// backend (including local servers) can be adapted.
type Client interface {
    CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ErrEmptyResponse indicates the model returned no usable text.
var ErrEmptyResponse = errors.New("empty response")

// OpenAIProvider adapts *openai.Client to the Client interface.
type OpenAIProvider struct {
    Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
    return p.Inner.CreateChatCompletion(ctx, request)
}

// GenerateFreeform sends a single user prompt with the given sampling
// parameters and returns the model's trimmed text. A blank reply fails with
// ErrEmptyResponse so callers can distinguish "model answered nothing" from
// transport problems.
func GenerateFreeform(ctx context.Context, c Client, model, prompt string, temperature float32, maxTokens int) (string, error) {
    if c == nil || strings.TrimSpace(model) == "" {
        return "", errors.New("llm client not configured")
    }
    req := openai.ChatCompletionRequest{
        Model: model,
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleUser, Content: prompt},
        },
        Temperature: temperature,
        MaxTokens:   maxTokens,
        N:           1,
    }
    resp, err := c.CreateChatCompletion(ctx, req)
    if err != nil {
        return "", err
    }
    if len(resp.Choices) == 0 {
        return "", ErrEmptyResponse
    }
    out := strings.TrimSpace(resp.Choices[0].Message.Content)
    if out == "" {
        return "", ErrEmptyResponse
    }
    return out, nil
}
