package assistant

import (
	"context"
	"fmt"
	"log"

	"github.com/sashabaranov/go-openai"

	"todo-assistant/internal/tools"
)

const listLimit = 100

// OpenAIProvider implements Provider on the OpenAI Assistants API.
type OpenAIProvider struct {
	client      *openai.Client
	assistantID string
}

func NewOpenAI(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// AssistantID is empty until EnsureAssistant succeeds.
func (p *OpenAIProvider) AssistantID() string {
	return p.assistantID
}

// EnsureAssistant finds the assistant named in profile and updates its
// instructions and tools, or creates it when none exists.
func (p *OpenAIProvider) EnsureAssistant(ctx context.Context, profile Profile, defs []tools.Definition) (string, error) {
	req := openai.AssistantRequest{
		Model:        profile.Model,
		Name:         &profile.Name,
		Instructions: &profile.Instructions,
		Tools:        assistantTools(defs),
	}
	if profile.Description != "" {
		req.Description = &profile.Description
	}

	limit := listLimit
	list, err := p.client.ListAssistants(ctx, &limit, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list assistants: %w", err)
	}
	for _, a := range list.Assistants {
		if a.Name == nil || *a.Name != profile.Name {
			continue
		}
		log.Printf("🤖 Found existing assistant %s (%s)", profile.Name, a.ID)
		updated, err := p.client.ModifyAssistant(ctx, a.ID, req)
		if err != nil {
			return "", fmt.Errorf("failed to update assistant %s: %w", a.ID, err)
		}
		log.Printf("🔧 Updated assistant with %d tools", len(defs))
		p.assistantID = updated.ID
		return updated.ID, nil
	}

	log.Printf("🤖 Creating new assistant %s", profile.Name)
	created, err := p.client.CreateAssistant(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create assistant: %w", err)
	}
	p.assistantID = created.ID
	return created.ID, nil
}

func (p *OpenAIProvider) CreateThread(ctx context.Context) (string, error) {
	thread, err := p.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (p *OpenAIProvider) AddMessage(ctx context.Context, threadID, content string) error {
	_, err := p.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("add message to %s: %w", threadID, err)
	}
	return nil
}

func (p *OpenAIProvider) CreateRun(ctx context.Context, threadID string) (Run, error) {
	if p.assistantID == "" {
		return Run{}, fmt.Errorf("assistant is not initialized")
	}
	run, err := p.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: p.assistantID})
	if err != nil {
		return Run{}, fmt.Errorf("create run on %s: %w", threadID, err)
	}
	return fromOpenAIRun(run), nil
}

func (p *OpenAIProvider) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := p.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run %s: %w", runID, err)
	}
	return fromOpenAIRun(run), nil
}

func (p *OpenAIProvider) ListRuns(ctx context.Context, threadID string) ([]Run, error) {
	limit := listLimit
	list, err := p.client.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit})
	if err != nil {
		return nil, fmt.Errorf("list runs on %s: %w", threadID, err)
	}
	runs := make([]Run, 0, len(list.Runs))
	for _, r := range list.Runs {
		runs = append(runs, fromOpenAIRun(r))
	}
	return runs, nil
}

func (p *OpenAIProvider) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := p.client.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return nil
}

func (p *OpenAIProvider) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []tools.Output) (Run, error) {
	req := openai.SubmitToolOutputsRequest{ToolOutputs: make([]openai.ToolOutput, 0, len(outputs))}
	for _, o := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{ToolCallID: o.ToolCallID, Output: o.Output})
	}
	run, err := p.client.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return Run{}, fmt.Errorf("submit tool outputs for %s: %w", runID, err)
	}
	return fromOpenAIRun(run), nil
}

// ListMessages returns up to listLimit messages, newest first.
func (p *OpenAIProvider) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	limit := listLimit
	order := "desc"
	list, err := p.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages on %s: %w", threadID, err)
	}
	msgs := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg := Message{ID: m.ID, Role: m.Role, CreatedAt: int64(m.CreatedAt)}
		for _, c := range m.Content {
			if c.Type == "text" && c.Text != nil {
				msg.Texts = append(msg.Texts, c.Text.Value)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func fromOpenAIRun(r openai.Run) Run {
	run := Run{ID: r.ID, ThreadID: r.ThreadID, Status: RunStatus(r.Status)}
	if r.LastError != nil {
		run.LastError = r.LastError.Message
	}
	if r.RequiredAction != nil && r.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			run.ToolCalls = append(run.ToolCalls, tools.Invocation{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: tools.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return run
}

func assistantTools(defs []tools.Definition) []openai.AssistantTool {
	out := make([]openai.AssistantTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
