// Package dispatch turns an inbound chat message into a reply, either by
// calling the owner's configured LLM provider or by answering with a
// placeholder. Provider failures are recovered into user-visible replies;
// Reply never returns an error to the caller.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joytrunk/joytrunk/internal/config"
	"github.com/joytrunk/joytrunk/internal/employee"
	"github.com/joytrunk/joytrunk/internal/llm"
	"github.com/joytrunk/joytrunk/internal/llm/openai"
	"github.com/joytrunk/joytrunk/internal/prompt"
)

// Reply sources, reported so callers can tell a real completion from a
// recovered failure or a placeholder.
const (
	SourceProvider      = "provider"
	SourceProviderError = "provider_error"
	SourcePlaceholder   = "placeholder"
)

// Result is the outcome of one chat dispatch. Usage is nil unless the
// provider reported token counts.
type Result struct {
	Reply  string     `json:"reply"`
	Usage  *llm.Usage `json:"usage"`
	Source string     `json:"source"`
}

// Observer receives one event per dispatched reply.
type Observer interface {
	ObserveChat(source string, duration time.Duration)
}

// Dispatcher resolves the merged configuration and prompt material for an
// employee and produces replies.
type Dispatcher struct {
	loader     *prompt.Loader
	overrides  *employee.ConfigStore
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = hc }
}

// WithObserver registers a per-reply observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New creates a Dispatcher.
func New(loader *prompt.Loader, overrides *employee.ConfigStore, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Dispatcher{
		loader:     loader,
		overrides:  overrides,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reply produces the employee's answer to content. The custom provider is
// used only when the merged configuration belongs to ownerID and carries at
// least one credential; otherwise a placeholder reply is returned. A failed
// provider call is reported inside the reply text, never as an error.
func (d *Dispatcher) Reply(ctx context.Context, emp *employee.Employee, ownerID, content string, getConfig func() *config.Config) *Result {
	start := time.Now()
	templates := d.loader.LoadTemplates(emp.ID)
	systemPrompt := prompt.BuildSystemPrompt(templates)
	safe := strings.TrimSpace(content)

	merged := d.overrides.Merged(emp.ID, getConfig)
	result := d.reply(ctx, emp, ownerID, safe, systemPrompt, templates, merged)

	d.logger.Info("chat dispatched",
		slog.String("employee_id", emp.ID),
		slog.String("source", result.Source),
		slog.Duration("duration", time.Since(start)),
	)
	if d.observer != nil {
		d.observer.ObserveChat(result.Source, time.Since(start))
	}
	return result
}

func (d *Dispatcher) reply(ctx context.Context, emp *employee.Employee, ownerID, safe, systemPrompt string, templates prompt.Templates, merged *config.Config) *Result {
	custom := config.CustomProvider{}
	usable := false
	if merged != nil {
		custom = merged.Providers.Custom
		usable = merged.OwnedBy(ownerID) && custom.HasCredentials()
	}

	if !usable {
		return placeholderResult(emp.Name, safe, templates.Soul)
	}

	baseURL := ""
	if custom.APIBase != nil {
		baseURL = *custom.APIBase
	}
	model := custom.Model
	if model == "" {
		model = merged.DefaultAgentModel()
	}
	client := openai.NewClient(custom.APIKey, model, d.logger,
		openai.WithBaseURL(baseURL),
		openai.WithHTTPClient(d.httpClient),
		openai.WithName("custom"),
	)

	userContent := safe
	if userContent == "" {
		userContent = "请说你好。"
	}
	resp, err := client.SendMessage(ctx, &llm.Request{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userContent}},
		MaxTokens:    merged.MaxTokens(),
	})
	if err != nil {
		d.logger.Warn("provider call failed",
			slog.String("employee_id", emp.ID),
			slog.String("error", err.Error()),
		)
		return &Result{
			Reply:  fmt.Sprintf("%s：调用大模型时出错（%s），请检查自有 LLM 配置。", emp.Name, err.Error()) + prompt.DisclosurePolicy,
			Source: SourceProviderError,
		}
	}

	replyText := resp.Content
	if replyText == "" {
		replyText = "（无回复内容）"
	}
	return &Result{Reply: replyText, Usage: resp.Usage, Source: SourceProvider}
}

func placeholderResult(name, safe, soul string) *Result {
	if safe == "" {
		soulPart := ""
		if preview := prompt.SoulPreview(soul); preview != "" {
			soulPart = fmt.Sprintf("（人格：%s）", preview)
		}
		return &Result{
			Reply:  fmt.Sprintf("%s：请说明你的需求。%s %s", name, soulPart, prompt.DisclosurePolicy),
			Source: SourcePlaceholder,
		}
	}
	received := safe
	if runes := []rune(received); len(runes) > 100 {
		received = string(runes[:100])
	}
	return &Result{
		Reply: fmt.Sprintf("%s（占位）：已收到「%s」。请在设置中配置「自有 LLM」（API Key、Base URL、模型）以启用真实对话。%s",
			name, received, prompt.DisclosurePolicy),
		Source: SourcePlaceholder,
	}
}
