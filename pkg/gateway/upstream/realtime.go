// Package upstream mints ephemeral credentials for the realtime speech channel.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/tools"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// ServerVAD is the detection profile used for every session.
func ServerVAD() TurnDetection {
	return TurnDetection{Type: "server_vad", Threshold: 0.5, PrefixPaddingMS: 300, SilenceDurationMS: 500}
}

// SessionRequest is the body of POST /realtime/sessions.
type SessionRequest struct {
	Model         string             `json:"model"`
	Voice         string             `json:"voice,omitempty"`
	Instructions  string             `json:"instructions"`
	Modalities    []string           `json:"modalities"`
	Tools         []tools.Definition `json:"tools"`
	ToolChoice    string             `json:"tool_choice"`
	Temperature   float64            `json:"temperature"`
	TurnDetection TurnDetection      `json:"turn_detection"`
}

type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Session is a minted realtime session. Fields holds every upstream field
// verbatim so callers can pass them through.
type Session struct {
	ClientSecret ClientSecret
	Fields       map[string]any
}

// Minter issues realtime sessions through the OpenAI REST API.
type Minter struct {
	client     openai.Client
	configured bool
}

func NewMinter(apiKey, baseURL string, httpClient *http.Client) *Minter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Minter{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
		configured: strings.TrimSpace(apiKey) != "",
	}
}

func (m *Minter) Configured() bool {
	return m != nil && m.configured
}

// Mint creates a realtime session. Every failure is a credential error.
func (m *Minter) Mint(ctx context.Context, req SessionRequest) (*Session, error) {
	if !m.Configured() {
		return nil, core.NewCredentialError(errors.New("OPENAI_API_KEY is not set"))
	}
	if len(req.Modalities) == 0 {
		req.Modalities = []string{"text", "audio"}
	}
	if req.ToolChoice == "" {
		req.ToolChoice = "auto"
	}
	if req.TurnDetection.Type == "" {
		req.TurnDetection = ServerVAD()
	}

	var fields map[string]any
	if err := m.client.Post(ctx, "realtime/sessions", req, &fields); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, core.NewCredentialError(fmt.Errorf("realtime session mint failed (%d): %s", apiErr.StatusCode, apiErr.Message))
		}
		return nil, core.NewCredentialError(err)
	}

	secret, err := clientSecretFrom(fields)
	if err != nil {
		return nil, core.NewCredentialError(err)
	}
	return &Session{ClientSecret: secret, Fields: fields}, nil
}

func clientSecretFrom(fields map[string]any) (ClientSecret, error) {
	raw, ok := fields["client_secret"]
	if !ok || raw == nil {
		return ClientSecret{}, errors.New("realtime session response has no client_secret")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return ClientSecret{}, err
	}
	var cs ClientSecret
	if err := json.Unmarshal(b, &cs); err != nil {
		return ClientSecret{}, fmt.Errorf("decode client_secret: %w", err)
	}
	if strings.TrimSpace(cs.Value) == "" {
		return ClientSecret{}, errors.New("realtime session response has an empty client_secret")
	}
	return cs, nil
}
