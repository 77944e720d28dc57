package assistant

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// API is the subset of the hosted Assistants API the driver uses.
// *openai.Client satisfies it.
type API interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// Credentials identify the assistant the gateway talks to.
type Credentials struct {
	APIKey      string
	AssistantID string
}

func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if strings.TrimSpace(c.AssistantID) == "" {
		missing = append(missing, "OPENAI_ASSISTANT_ID")
	}
	if len(missing) > 0 {
		return errors.New(strings.Join(missing, " and ") + " not configured")
	}
	return nil
}

type ClientConfig struct {
	APIKey         string
	BaseURL        string
	Organization   string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// NewClient builds the go-openai client. The library attaches the bearer
// credential and the assistants beta header to every call.
func NewClient(cfg ClientConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if org := strings.TrimSpace(cfg.Organization); org != "" {
		clientConfig.OrgID = org
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clientConfig.HTTPClient = httpClient
	return openai.NewClientWithConfig(clientConfig)
}
