package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"accrual-ledger-go/internal/api"
	"accrual-ledger-go/internal/ledger"
	"accrual-ledger-go/internal/store/memory"
)

func TestReadCommands(t *testing.T) {
	ctx := context.Background()
	l := ledger.Open(ctx, memory.NewStore())
	commands := api.NewCommandService(l, 100, 2)

	in := strings.NewReader("enroll alice\n\nbalance alice\nfly alice\nunenroll alice\n")
	var out bytes.Buffer
	readCommands(ctx, in, &out, commands)

	want := []string{
		"alice is now enrolled",
		"alice has 0.00",
		"error: unknown command: \"fly\"",
		"alice is no longer enrolled",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("Expected %d replies, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Reply %d = %q, want %q", i, got[i], want[i])
		}
	}
}
