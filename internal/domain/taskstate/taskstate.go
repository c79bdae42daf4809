// Пакет taskstate — конечный автомат статусов задачи.
//
// TODO, IN_PROGRESS и BLOCKED взаимно достижимы.
// DONE достижим из любого статуса и является конечным:
// выход из DONE запрещён, переход DONE → DONE — no-op.
package taskstate

import (
	"fmt"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// Коды ошибок перехода.
const (
	CodeInvalidStatus = "INVALID_STATUS"
	CodeReopenDone    = "REOPEN_DONE"
)

// validTransitions — матрица допустимых переходов между различными статусами.
var validTransitions = map[model.TaskStatus]map[model.TaskStatus]bool{
	model.StatusTodo:       {model.StatusInProgress: true, model.StatusBlocked: true, model.StatusDone: true},
	model.StatusInProgress: {model.StatusTodo: true, model.StatusBlocked: true, model.StatusDone: true},
	model.StatusBlocked:    {model.StatusTodo: true, model.StatusInProgress: true, model.StatusDone: true},
	model.StatusDone:       {}, // Конечный статус
}

// CanTransition проверяет, допустим ли переход from → to.
// Переход в тот же статус всегда допустим.
func CanTransition(from, to model.TaskStatus) bool {
	if from == to {
		_, ok := validTransitions[from]
		return ok
	}
	transitions, ok := validTransitions[from]
	if !ok {
		return false
	}
	return transitions[to]
}

// Validate возвращает *TransitionError, если переход from → to недопустим.
func Validate(from, to model.TaskStatus) error {
	if _, ok := validTransitions[to]; !ok {
		return &TransitionError{
			Code:    CodeInvalidStatus,
			Message: fmt.Sprintf("недопустимый целевой статус: %q", to),
		}
	}
	if CanTransition(from, to) {
		return nil
	}
	if from == model.StatusDone {
		return &TransitionError{
			Code:    CodeReopenDone,
			Message: "нельзя переоткрыть завершённую задачу (reopen DONE): создайте новую задачу",
		}
	}
	return &TransitionError{
		Code:    CodeInvalidStatus,
		Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
	}
}

// IsTerminal сообщает, является ли статус конечным.
func IsTerminal(s model.TaskStatus) bool {
	transitions, ok := validTransitions[s]
	return ok && len(transitions) == 0
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_STATUS, REOPEN_DONE)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
