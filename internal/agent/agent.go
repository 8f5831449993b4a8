// Package agent is the chat-completion boundary: it talks to a local Ollama
// server and synthesizes the leading system message from the fact store.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clawbot/internal/facts"
	"clawbot/internal/store"
	"clawbot/pkg/logx"
)

type Config struct {
	Host          string
	Model         string
	ContextLength int
	Temperature   float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

type Agent struct {
	cfg   Config
	facts *facts.Store
	http  *http.Client
	log   logx.Logger
}

func New(cfg Config, fs *facts.Store, log logx.Logger) *Agent {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "http://localhost:11434"
	}
	return &Agent{
		cfg:   cfg,
		facts: fs,
		http:  &http.Client{Timeout: 120 * time.Second},
		log:   log,
	}
}

// Chat sends the conversation to the model and returns its reply. Backend
// failures are absorbed into a user-visible apology string; callers never
// see a hard error from a flaky model server.
func (a *Agent) Chat(ctx context.Context, history []store.Message) string {
	reply, err := a.request(ctx, history)
	if err != nil {
		a.log.Warn("chat backend error", logx.Err(err))
		return fmt.Sprintf("Sorry, I had trouble thinking about that. Error: %v", err)
	}
	return reply
}

// WarmUp preloads the model with a throwaway prompt. Failures are logged and
// swallowed; a cold model must never block startup.
func (a *Agent) WarmUp(ctx context.Context) {
	a.log.Info("warming up model", logx.String("model", a.cfg.Model))
	if _, err := a.request(ctx, []store.Message{{Role: "user", Content: "hi"}}); err != nil {
		a.log.Warn("warm-up failed, continuing anyway", logx.Err(err))
		return
	}
	a.log.Info("model loaded and ready")
}

func (a *Agent) request(ctx context.Context, history []store.Message) (string, error) {
	msgs := make([]chatMessage, 0, len(history)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: a.facts.Prompt()})
	for _, m := range history {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	req := chatRequest{
		Model:    a.cfg.Model,
		Messages: msgs,
		Stream:   false,
	}
	opts := map[string]any{}
	if a.cfg.ContextLength > 0 {
		opts["num_ctx"] = a.cfg.ContextLength
	}
	if a.cfg.Temperature > 0 {
		opts["temperature"] = a.cfg.Temperature
	}
	if len(opts) > 0 {
		req.Options = opts
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	url := strings.TrimRight(a.cfg.Host, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return out.Message.Content, nil
}

// Model reports the configured model name, for status surfaces.
func (a *Agent) Model() string { return a.cfg.Model }

// Host reports the configured backend host, for status surfaces.
func (a *Agent) Host() string { return a.cfg.Host }

// ContextLength reports the configured context window, for status surfaces.
func (a *Agent) ContextLength() int { return a.cfg.ContextLength }
