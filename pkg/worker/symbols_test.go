package worker

import (
	"testing"

	"mercator-hq/saturn/pkg/protocol"
)

const sampleJava = `package com.example;

// A comment mentioning class Hidden should not index.
/* block comment
   class AlsoHidden
*/
public class OrderService {
    private final Repo repo;

    public OrderService(Repo repo) {
        this.repo = repo;
    }

    public Order findOrder(long id) {
        if (id < 0) {
            throw new IllegalArgumentException();
        }
        return repo.load(id);
    }

    static <T> T identity(T value) {
        return value;
    }
}

interface Repo {
    Order load(long id);
}

enum Status { OPEN, CLOSED }

record Point(int x, int y) {}
`

func TestExtractSymbols(t *testing.T) {
	syms := ExtractSymbols("a/OrderService.java", sampleJava)

	want := map[string]bool{
		"OrderService": false,
		"findOrder":    false,
		"identity":     false,
		"Repo":         false,
		"Status":       false,
		"Point":        false,
	}
	for _, s := range syms {
		if s.Path != "a/OrderService.java" {
			t.Errorf("symbol %q has path %q", s.Name, s.Path)
		}
		if _, ok := want[s.Name]; ok {
			want[s.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected symbol %q, got %v", name, syms)
		}
	}
	for _, s := range syms {
		switch s.Name {
		case "Hidden", "AlsoHidden":
			t.Errorf("commented-out declaration %q was indexed", s.Name)
		case "if", "throw", "return", "new":
			t.Errorf("keyword %q was indexed as a method", s.Name)
		}
	}
}

func TestExtractSymbolsEmptyAndGarbage(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no declarations", "x = y + z;\n12345\n"},
		{"only comments", "// class Nope\n/* interface Nah */\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if syms := ExtractSymbols("f.java", tc.text); len(syms) != 0 {
				t.Errorf("got %v, want none", syms)
			}
		})
	}
}

func TestSortSymbolsOrdersAndDedupes(t *testing.T) {
	in := []protocol.Symbol{
		{Name: "b", Path: "y.java"},
		{Name: "a", Path: "z.java"},
		{Name: "b", Path: "x.java"},
		{Name: "a", Path: "z.java"},
	}
	got := sortSymbols(in)
	want := []protocol.Symbol{
		{Name: "a", Path: "z.java"},
		{Name: "b", Path: "x.java"},
		{Name: "b", Path: "y.java"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
