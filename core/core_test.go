package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStepLimiter(t *testing.T) {
	sl := NewStepLimiter(2)

	if err := sl.Increment(); err != nil {
		t.Fatalf("step 1: unexpected error %v", err)
	}
	if err := sl.Increment(); err != nil {
		t.Fatalf("step 2: unexpected error %v", err)
	}
	if err := sl.Increment(); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("step 3: want ErrBudgetExceeded got %v", err)
	}
	if got := sl.Count(); got != 3 {
		t.Fatalf("want count 3 got %d", got)
	}
}

func TestStepLimiterUnlimited(t *testing.T) {
	sl := NewStepLimiter(0)
	for i := 0; i < 100; i++ {
		if err := sl.Increment(); err != nil {
			t.Fatalf("unlimited limiter returned %v at step %d", err, i)
		}
	}
	if got := sl.Remaining(); got != -1 {
		t.Fatalf("want -1 remaining got %d", got)
	}
}

func TestArgumentMap(t *testing.T) {
	req := ToolCallRequest{Name: "x", Arguments: json.RawMessage(`{"a": 1}`)}
	args, err := req.ArgumentMap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["a"] != float64(1) {
		t.Fatalf("want a=1 got %v", args["a"])
	}

	empty := ToolCallRequest{Name: "x"}
	args, err = empty.ArgumentMap()
	if err != nil || len(args) != 0 {
		t.Fatalf("empty arguments: want empty map, got %v / %v", args, err)
	}

	bad := ToolCallRequest{Name: "x", Arguments: json.RawMessage(`{"broken`)}
	if _, err := bad.ArgumentMap(); err == nil {
		t.Fatal("want error for malformed arguments")
	}
}

func TestNewToolResultMessage(t *testing.T) {
	ok := NewToolResultMessage(ToolResult{ID: "c1", Name: "add", Success: true, Content: 4.0})
	if ok.Role != RoleTool || ok.ToolCallID != "c1" || ok.Content != "4" {
		t.Fatalf("unexpected success message: %+v", ok)
	}

	str := NewToolResultMessage(ToolResult{ID: "c2", Name: "read", Success: true, Content: "raw text"})
	if str.Content != "raw text" {
		t.Fatalf("string content should pass through, got %q", str.Content)
	}

	failed := NewToolResultMessage(ToolResult{ID: "c3", Name: "read", Success: false, Error: "[INVOCATION_ERROR] boom"})
	if failed.Content != "[INVOCATION_ERROR] boom" {
		t.Fatalf("failed result should carry the error, got %q", failed.Content)
	}
}

func TestToolError(t *testing.T) {
	err := NewToolError("search", "bad query", CodeValidationError)

	var te *ToolError
	if !errors.As(error(err), &te) {
		t.Fatal("want *ToolError")
	}
	if te.Code != CodeValidationError || te.Tool != "search" {
		t.Fatalf("unexpected fields: %+v", te)
	}
}
