package engine

import "testing"

func Test_ResponseCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newResponseCache()

	if _, ok := c.Get("q", "s"); ok {
		t.Fatalf("Get on empty cache reported a hit")
	}

	want := Answer{Text: "hello", ResponseTimeMs: 42, SourceCount: 3}
	c.Put("q", "s", want)

	got, ok := c.Get("q", "s")
	if !ok {
		t.Fatalf("Get missed after Put")
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func Test_ResponseCache_KeyedByQuestionAndSession(t *testing.T) {
	t.Parallel()

	c := newResponseCache()
	c.Put("q", "s-1", Answer{Text: "one"})

	if _, ok := c.Get("q", "s-2"); ok {
		t.Errorf("different session hit the same entry")
	}
	if _, ok := c.Get("Q", "s-1"); ok {
		t.Errorf("case-variant question hit the same entry; keys are literal")
	}
	if _, ok := c.Get("q", ""); ok {
		t.Errorf("empty session hit a sessioned entry")
	}
}

func Test_ResponseCache_Clear(t *testing.T) {
	t.Parallel()

	c := newResponseCache()
	c.Put("a", "", Answer{Text: "one"})
	c.Put("b", "", Answer{Text: "two"})
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", c.Len())
	}
	if _, ok := c.Get("a", ""); ok {
		t.Errorf("entry survived Clear")
	}
}
