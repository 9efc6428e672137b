package etlerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewNil(t *testing.T) {
	if err := New(Transient, "load", nil); err != nil {
		t.Errorf("Expected nil for nil cause, got %v", err)
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(Semantic, "load_orders", errors.New("shop 9999 unmapped"))
	want := "load_orders: semantic: shop 9999 unmapped"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	err = New(Config, "", errors.New("missing WAREHOUSE_HOST"))
	if err.Error() != "config: missing WAREHOUSE_HOST" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := New(FatalSchema, "check_source", errors.New("table Shop missing"))
	wrapped := fmt.Errorf("stage stores: %w", base)

	if got := KindOf(wrapped); got != FatalSchema {
		t.Errorf("Expected FatalSchema, got %s", got)
	}
	if KindOf(errors.New("plain")) != Unknown {
		t.Error("Expected Unknown for unclassified error")
	}
}

func TestIsFindsInnerKind(t *testing.T) {
	inner := New(Connection, "open", errors.New("refused"))
	outer := New(Partial, "run", inner)

	if !Is(outer, Connection) {
		t.Error("Expected Is to find inner Connection kind")
	}
	if !Is(outer, Partial) {
		t.Error("Expected Is to find outer Partial kind")
	}
	if Is(outer, Semantic) {
		t.Error("Did not expect Semantic kind")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"config", New(Config, "", errors.New("x")), ExitConfig},
		{"connection", New(Connection, "", errors.New("x")), ExitConfig},
		{"unclassified", errors.New("unknown flag"), ExitConfig},
		{"partial", New(Partial, "", errors.New("x")), ExitPartial},
		{"transient", New(Transient, "", errors.New("x")), ExitPartial},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), ExitPartial},
		{"fatal schema", New(FatalSchema, "", errors.New("x")), ExitDataFailure},
		{"data integrity", New(DataIntegrity, "", errors.New("x")), ExitDataFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}
