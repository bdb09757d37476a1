package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestTodoMarshalKeepsAbsentFieldsAsNull(t *testing.T) {
	todo := Todo{ID: "t1", Title: StringPtr("buy milk")}

	payload, err := sonic.Marshal(todo)
	if err != nil {
		t.Fatalf("marshal todo: %v", err)
	}

	if !strings.Contains(string(payload), "\"description\":null") {
		t.Fatalf("expected description to be null, got %s", payload)
	}
	if !strings.Contains(string(payload), "\"isDone\":false") {
		t.Fatalf("expected isDone field to be present, got %s", payload)
	}
}

func TestParseDone(t *testing.T) {
	tests := map[string]bool{
		"true":  true,
		"TRUE":  true,
		"True":  true,
		"false": false,
		"":      false,
		"yes":   false,
		"1":     false,
		" true": false,
		"tru":   false,
	}
	for in, want := range tests {
		if got := ParseDone(in); got != want {
			t.Fatalf("ParseDone(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewTodoGeneratesUniqueIDs(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		todo := NewTodo(nil, nil, false)
		if todo.ID == "" {
			t.Fatal("expected non-empty id")
		}
		if _, dup := seen[todo.ID]; dup {
			t.Fatalf("duplicate id generated: %s", todo.ID)
		}
		seen[todo.ID] = struct{}{}
	}
}

func TestEqualComparesIDsOnly(t *testing.T) {
	a := Todo{ID: "a", Title: StringPtr("one"), Done: true}
	b := Todo{ID: "a", Title: StringPtr("two")}
	c := Todo{ID: "c", Title: StringPtr("one"), Done: true}

	if !a.Equal(b) {
		t.Fatal("expected todos with the same id to be equal")
	}
	if a.Equal(c) {
		t.Fatal("expected todos with different ids to differ")
	}
}

func TestCloneDoesNotShareFields(t *testing.T) {
	orig := Todo{ID: "a", Title: StringPtr("title"), Description: StringPtr("desc")}
	cp := orig.Clone()
	*cp.Title = "changed"
	*cp.Description = "changed"

	if orig.TitleOrEmpty() != "title" || orig.DescriptionOrEmpty() != "desc" {
		t.Fatalf("clone mutated original: %#v", orig)
	}
}

func TestWithChangesCarriesOverNilFields(t *testing.T) {
	orig := Todo{ID: "a", Title: StringPtr("title"), Description: StringPtr("desc"), Done: true}

	next := orig.WithChanges(StringPtr("new title"), nil, nil)
	if next.TitleOrEmpty() != "new title" {
		t.Fatalf("unexpected title: %q", next.TitleOrEmpty())
	}
	if next.DescriptionOrEmpty() != "desc" || !next.Done {
		t.Fatalf("expected description and done to carry over, got %#v", next)
	}

	next = orig.WithChanges(nil, nil, StringPtr("garbage"))
	if next.Done {
		t.Fatal("expected malformed done value to parse as false")
	}
	if next.TitleOrEmpty() != "title" {
		t.Fatalf("expected title to carry over, got %q", next.TitleOrEmpty())
	}
	if orig.ID != next.ID {
		t.Fatalf("expected id to be preserved, got %q", next.ID)
	}
}
