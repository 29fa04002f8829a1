package llm

import (
    "context"
    "net/http"
    "strings"

    openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface the completer needs from a chat backend.
// It mirrors go-openai's CreateChatCompletion so any OpenAI-compatible or
// local backend can be adapted.
type Client interface {
    CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelLister is an optional capability that allows listing available models.
// Callers detect it with a type assertion.
type ModelLister interface {
    ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider adapts *openai.Client to the Client/ModelLister interfaces.
type OpenAIProvider struct {
    Inner *openai.Client
}

// NewOpenAI builds a provider for an OpenAI-compatible base URL such as
// "http://localhost:1234/v1". A full chat completions endpoint is accepted
// too and trimmed to its base. An empty baseURL keeps go-openai's default.
func NewOpenAI(baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
    cfg := openai.DefaultConfig(apiKey)
    if b := BaseURL(baseURL); b != "" {
        cfg.BaseURL = b
    }
    if httpClient != nil {
        cfg.HTTPClient = httpClient
    }
    return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}

// BaseURL trims whitespace, trailing slashes and a trailing
// "/chat/completions" from an endpoint.
func BaseURL(endpoint string) string {
    b := strings.TrimRight(strings.TrimSpace(endpoint), "/")
    b = strings.TrimSuffix(b, "/chat/completions")
    return strings.TrimRight(b, "/")
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
    return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
    return p.Inner.ListModels(ctx)
}
