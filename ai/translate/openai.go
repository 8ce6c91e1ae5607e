package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures a translator backed by any OpenAI compatible chat model.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI translates with one chat completion per text.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

const translatePrompt = "Translate the user's message from %s to %s. " +
	"It is a short description of a picture. Reply with the translation only, without quotes or comments."

func (o *OpenAI) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	out := make([]string, 0, len(texts))
	for _, text := range texts {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       o.model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(translatePrompt, source, target)},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
		})
		if err != nil {
			perr := &ProviderError{Provider: "openai", Err: err}
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				perr.StatusCode = apiErr.HTTPStatusCode
				perr.Message = apiErr.Message
			}
			return nil, perr
		}
		if len(resp.Choices) == 0 {
			return nil, &ProviderError{Provider: "openai", Err: errors.New("empty completion")}
		}
		out = append(out, strings.TrimSpace(resp.Choices[0].Message.Content))
	}
	return out, nil
}
