package kernel

import "testing"

func TestQueueFIFO(t *testing.T) {
	var q queue[int]
	if _, ok := q.pop(); ok {
		t.Fatal("expected empty queue")
	}
	for i := 1; i <= 4; i++ {
		q.push(i)
	}
	if q.len() != 4 {
		t.Fatalf("expected len 4, got %d", q.len())
	}
	for want := 1; want <= 4; want++ {
		got, ok := q.pop()
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
}

func TestQueueRemoveKeepsOrder(t *testing.T) {
	var q queue[string]
	for _, s := range []string{"a", "b", "c", "d"} {
		q.push(s)
	}

	i := q.index(func(s string) bool { return s == "c" })
	if i != 2 {
		t.Fatalf("expected index 2, got %d", i)
	}
	if got := q.remove(i); got != "c" {
		t.Fatalf("expected removed %q, got %q", "c", got)
	}
	if q.index(func(s string) bool { return s == "z" }) != -1 {
		t.Fatal("expected -1 for missing element")
	}

	var order []string
	q.each(func(s string) { order = append(order, s) })
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "d" {
		t.Fatalf("expected [a b d], got %v", order)
	}

	q.clear()
	if q.len() != 0 {
		t.Fatalf("expected empty after clear, got %d", q.len())
	}
}
