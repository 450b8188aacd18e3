package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

type OpenAIText struct {
	client *openai.Client
	model  shared.ChatModel
}

func NewOpenAIText(url, apiKey, model string) (*OpenAIText, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("an API key is required for the openai text provider")
	}

	var chatModel shared.ChatModel
	if model == "" {
		chatModel = openai.ChatModelGPT4o
	} else {
		chatModel = shared.ChatModel(model)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if url != "" {
		opts = append(opts, option.WithBaseURL(url))
	}
	client := openai.NewClient(opts...)

	return &OpenAIText{client: &client, model: chatModel}, nil
}

func (o *OpenAIText) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return completion.Choices[0].Message.Content, nil
}
