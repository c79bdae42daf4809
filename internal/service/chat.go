// chat.go — создание задач из сообщений чата.
// Сообщение проверяется модерацией, затем интерпретируется основным
// интерпретатором (LLM), при неудаче — регулярными выражениями.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// Interpreter извлекает задачу из текста сообщения.
// nil без ошибки — задачу извлечь не удалось.
type Interpreter interface {
	Name() string
	Interpret(ctx context.Context, message string) (*model.Interpretation, error)
}

// SafetyChecker проверяет сообщение перед обработкой.
type SafetyChecker interface {
	Check(ctx context.Context, message string) (model.SafetyResult, error)
}

// ChatResult — ответ на сообщение чата.
type ChatResult struct {
	Reply string
	Task  *model.Task
}

// ChatService — обработка сообщений чата.
type ChatService struct {
	tasks    *TaskService
	primary  Interpreter
	fallback Interpreter
	safety   SafetyChecker
	metrics  Metrics
	logger   *slog.Logger
}

// NewChatService создаёт сервис чата. primary и safety могут быть nil.
func NewChatService(
	tasks *TaskService,
	primary Interpreter,
	safety SafetyChecker,
	metrics Metrics,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		tasks:    tasks,
		primary:  primary,
		fallback: NewRegexInterpreter(),
		safety:   safety,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "chat_service")),
	}
}

// CreateTaskFromMessage создаёт задачу с настройками по умолчанию по тексту сообщения.
func (s *ChatService) CreateTaskFromMessage(ctx context.Context, userID uuid.UUID, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		s.metrics.ChatMessage("none", resultError)
		return nil, validationError("сообщение не может быть пустым")
	}

	if s.safety != nil {
		res, err := s.safety.Check(ctx, message)
		if err != nil {
			s.logger.Warn("Проверка модерации не выполнена, сообщение пропущено",
				slog.String("error", err.Error()),
			)
		} else if res.Flagged {
			s.metrics.ChatMessage("none", resultError)
			reason := res.Reason
			if reason == "" {
				reason = "сообщение не прошло проверку безопасности"
			}
			return nil, validationError("%s", reason)
		}
	}

	interpretation, interpreter := s.interpret(ctx, normalizeSpaces(message))
	if interpretation == nil {
		s.metrics.ChatMessage("none", resultError)
		return nil, validationError("не удалось определить заголовок задачи по сообщению")
	}

	task, err := s.tasks.Create(ctx, userID, CreateTaskParams{
		Title:       interpretation.Title,
		Description: interpretation.Description,
	})
	s.metrics.ChatMessage(interpreter, resultOf(err))
	if err != nil {
		return nil, err
	}

	return &ChatResult{
		Reply: fmt.Sprintf("Создана задача «%s» с настройками по умолчанию.", task.Title),
		Task:  task,
	}, nil
}

// interpret пробует основной интерпретатор, затем резервный.
// Возвращает результат и имя сработавшего интерпретатора.
func (s *ChatService) interpret(ctx context.Context, message string) (*model.Interpretation, string) {
	if s.primary != nil {
		res, err := s.primary.Interpret(ctx, message)
		switch {
		case err != nil:
			s.logger.Warn("Основной интерпретатор недоступен, используется резервный",
				slog.String("interpreter", s.primary.Name()),
				slog.String("error", err.Error()),
			)
		case res != nil && strings.TrimSpace(res.Title) != "":
			return res, s.primary.Name()
		}
	}

	res, err := s.fallback.Interpret(ctx, message)
	if err != nil || res == nil || res.Title == "" {
		return nil, s.fallback.Name()
	}
	return res, s.fallback.Name()
}

// taskPatterns — шаблоны команд создания задачи (без учёта регистра).
var taskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)add\s+(?:a\s+)?task\s+(?:to\s+)?(?P<title>.+)`),
	regexp.MustCompile(`(?i)create\s+(?:a\s+)?task\s+(?:to\s+)?(?P<title>.+)`),
	regexp.MustCompile(`(?i)new\s+task[:\-]?\s+(?P<title>.+)`),
	regexp.MustCompile(`(?i)task[:\-]\s*(?P<title>.+)`),
}

// RegexInterpreter извлекает заголовок по шаблонам команд; если ни один
// не подошёл, заголовком становится всё сообщение.
type RegexInterpreter struct{}

// NewRegexInterpreter создаёт интерпретатор на регулярных выражениях.
func NewRegexInterpreter() *RegexInterpreter {
	return &RegexInterpreter{}
}

// Name возвращает имя интерпретатора для метрик.
func (r *RegexInterpreter) Name() string { return "regex" }

// Interpret извлекает задачу из сообщения.
func (r *RegexInterpreter) Interpret(_ context.Context, message string) (*model.Interpretation, error) {
	normalized := normalizeSpaces(message)

	title := normalized
	for _, re := range taskPatterns {
		if m := re.FindStringSubmatch(normalized); m != nil {
			title = m[re.SubexpIndex("title")]
			break
		}
	}

	cleaned := cleanTitle(title)
	if cleaned == "" {
		return nil, nil
	}

	res := &model.Interpretation{Title: cleaned}
	if normalized != cleaned {
		res.Description = &normalized
	}
	return res, nil
}

// cleanTitle убирает кавычки и точки по краям, завершающие «.! »
// и ведущее «to ».
func cleanTitle(title string) string {
	cleaned := strings.Trim(strings.TrimSpace(title), `"'.`)
	cleaned = strings.TrimRight(cleaned, ".! ")
	if strings.HasPrefix(strings.ToLower(cleaned), "to ") {
		cleaned = strings.TrimLeft(cleaned[3:], " \t")
	}
	return cleaned
}

// normalizeSpaces схлопывает последовательности пробельных символов.
func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
