package llm

import (
	"context"
	"log/slog"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// ModerationChecker проверяет сообщения через moderations API.
// Недоступность API не блокирует сообщение.
type ModerationChecker struct {
	client *Client
	model  string
	logger *slog.Logger
}

// NewModerationChecker создаёт проверку модерации.
func NewModerationChecker(client *Client, model string, logger *slog.Logger) *ModerationChecker {
	return &ModerationChecker{
		client: client,
		model:  model,
		logger: logger.With(slog.String("component", "llm_moderation")),
	}
}

// Check возвращает Flagged, если модерация отклонила сообщение.
func (m *ModerationChecker) Check(ctx context.Context, message string) (model.SafetyResult, error) {
	var resp moderationResponse
	err := m.client.post(ctx, "/moderations", moderationRequest{Model: m.model, Input: message}, &resp)
	if err != nil {
		m.logger.Warn("Проверка модерации не выполнена, сообщение пропущено",
			slog.String("error", err.Error()),
		)
		return model.SafetyResult{}, nil
	}

	if len(resp.Results) > 0 && resp.Results[0].Flagged {
		return model.SafetyResult{
			Flagged: true,
			Reason:  "сообщение нарушает правила модерации",
		}, nil
	}
	return model.SafetyResult{}, nil
}
