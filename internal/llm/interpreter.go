package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// systemPrompt — инструкция модели: вернуть только JSON с title и description.
const systemPrompt = `You are a task extraction helper. Analyze the user's short message and determine the main objective.
Output ONLY a JSON object of the form {"title": "...", "description": "..."}:
- "title" is a concise, specific task title without extra context;
- "description" briefly explains the task in one or two clear sentences.
Never include due dates, priorities, explanations or any other keys.
If the intent is ambiguous, make a best-guess concise title and description.`

// maxCompletionTokens — ограничение длины ответа модели.
const maxCompletionTokens = 80

// Interpreter извлекает задачу из сообщения через chat completions.
type Interpreter struct {
	client *Client
	model  string
	logger *slog.Logger
}

// NewInterpreter создаёт LLM-интерпретатор.
func NewInterpreter(client *Client, model string, logger *slog.Logger) *Interpreter {
	return &Interpreter{
		client: client,
		model:  model,
		logger: logger.With(slog.String("component", "llm_interpreter")),
	}
}

// Name возвращает имя интерпретатора для метрик.
func (i *Interpreter) Name() string { return "llm" }

// Interpret запрашивает у модели JSON {title, description}. Если модель
// не поддерживает response_format, запрос повторяется без него.
func (i *Interpreter) Interpret(ctx context.Context, message string) (*model.Interpretation, error) {
	resp, err := i.complete(ctx, message, true)
	if errors.Is(err, ErrBadRequest) {
		i.logger.Debug("Повтор запроса без response_format", slog.String("error", err.Error()))
		resp, err = i.complete(ctx, message, false)
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return parseInterpretation(resp.Choices[0].Message.Content), nil
}

func (i *Interpreter) complete(ctx context.Context, message string, jsonFormat bool) (*chatResponse, error) {
	req := chatRequest{
		Model: i.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: message},
		},
		MaxCompletionTokens: maxCompletionTokens,
	}
	if jsonFormat {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := i.client.post(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// parseInterpretation разбирает ответ модели. Ответ не в JSON
// целиком считается заголовком.
func parseInterpretation(content string) *model.Interpretation {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return &model.Interpretation{Title: content}
	}

	title := firstString(parsed, "title", "task_title")
	if title == "" {
		return nil
	}
	res := &model.Interpretation{Title: title}
	if d := firstString(parsed, "description", "task_description"); d != "" {
		res.Description = &d
	}
	return res
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
