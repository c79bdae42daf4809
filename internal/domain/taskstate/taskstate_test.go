package taskstate

import (
	"errors"
	"strings"
	"testing"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.TaskStatus
		want     bool
	}{
		{model.StatusTodo, model.StatusInProgress, true},
		{model.StatusTodo, model.StatusBlocked, true},
		{model.StatusTodo, model.StatusDone, true},
		{model.StatusInProgress, model.StatusTodo, true},
		{model.StatusInProgress, model.StatusBlocked, true},
		{model.StatusInProgress, model.StatusDone, true},
		{model.StatusBlocked, model.StatusTodo, true},
		{model.StatusBlocked, model.StatusInProgress, true},
		{model.StatusBlocked, model.StatusDone, true},
		{model.StatusDone, model.StatusDone, true},
		{model.StatusTodo, model.StatusTodo, true},
		{model.StatusDone, model.StatusTodo, false},
		{model.StatusDone, model.StatusInProgress, false},
		{model.StatusDone, model.StatusBlocked, false},
		{model.TaskStatus("ARCHIVED"), model.StatusTodo, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "→" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, ожидалось %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestValidate_ReopenDone(t *testing.T) {
	for _, target := range []model.TaskStatus{model.StatusTodo, model.StatusInProgress, model.StatusBlocked} {
		err := Validate(model.StatusDone, target)
		if err == nil {
			t.Fatalf("DONE → %s: ожидалась ошибка", target)
		}

		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("ожидался *TransitionError, получен %T", err)
		}
		if te.Code != CodeReopenDone {
			t.Errorf("Code = %q, ожидался %q", te.Code, CodeReopenDone)
		}
		if !strings.Contains(te.Message, "reopen") {
			t.Errorf("сообщение %q должно упоминать reopen", te.Message)
		}
	}
}

func TestValidate_DoneToDoneNoop(t *testing.T) {
	if err := Validate(model.StatusDone, model.StatusDone); err != nil {
		t.Errorf("DONE → DONE: неожиданная ошибка %v", err)
	}
}

func TestValidate_UnknownTarget(t *testing.T) {
	err := Validate(model.StatusTodo, model.TaskStatus("ARCHIVED"))
	var te *TransitionError
	if !errors.As(err, &te) || te.Code != CodeInvalidStatus {
		t.Errorf("ожидалась ошибка %s, получено %v", CodeInvalidStatus, err)
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(model.StatusDone) {
		t.Error("DONE должен быть конечным статусом")
	}
	for _, s := range []model.TaskStatus{model.StatusTodo, model.StatusInProgress, model.StatusBlocked} {
		if IsTerminal(s) {
			t.Errorf("%s не должен быть конечным статусом", s)
		}
	}
}
