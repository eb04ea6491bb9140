package domain

import "testing"

func TestSpanOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{name: "partial overlap", a: Span{2, 9}, b: Span{5, 14}, want: true},
		{name: "touching edges", a: Span{0, 5}, b: Span{5, 10}, want: false},
		{name: "contained", a: Span{0, 20}, b: Span{3, 7}, want: true},
		{name: "disjoint", a: Span{0, 3}, b: Span{10, 12}, want: false},
		{name: "identical", a: Span{4, 8}, b: Span{4, 8}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("%v.Overlaps(%v) = %v, ожидали %v", tt.a, tt.b, got, tt.want)
			}
			// Предикат симметричен.
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Fatalf("%v.Overlaps(%v) = %v, ожидали %v", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestSpanValidFor(t *testing.T) {
	tests := []struct {
		name    string
		span    Span
		textLen int
		want    bool
	}{
		{name: "ok", span: Span{0, 5}, textLen: 10, want: true},
		{name: "full text", span: Span{0, 10}, textLen: 10, want: true},
		{name: "empty", span: Span{3, 3}, textLen: 10, want: false},
		{name: "inverted", span: Span{5, 2}, textLen: 10, want: false},
		{name: "negative start", span: Span{-1, 2}, textLen: 10, want: false},
		{name: "past end", span: Span{0, 11}, textLen: 10, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.span.ValidFor(tt.textLen); got != tt.want {
				t.Fatalf("ValidFor(%d) = %v, ожидали %v", tt.textLen, got, tt.want)
			}
		})
	}
}

func TestOverlapping(t *testing.T) {
	anns := []Annotation{
		{ID: 1, Start: 0, End: 4},
		{ID: 2, Start: 3, End: 8},
		{ID: 3, Start: 10, End: 12},
	}
	got := Overlapping(anns, Span{Start: 2, End: 5})
	if len(got) != 2 {
		t.Fatalf("ожидали 2 пересечения, получили %d", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("ожидали аннотации 1 и 2, получили %d и %d", got[0].ID, got[1].ID)
	}
	if res := Overlapping(nil, Span{0, 1}); len(res) != 0 {
		t.Fatalf("ожидали пустой результат на пустом входе")
	}
}

func TestTruncateForSnapshot(t *testing.T) {
	short := "короткий текст"
	if TruncateForSnapshot(short) != short {
		t.Fatalf("короткий текст не должен обрезаться")
	}
	long := make([]byte, SnapshotLimit*2)
	for i := range long {
		long[i] = 'a'
	}
	if got := TruncateForSnapshot(string(long)); len(got) != SnapshotLimit {
		t.Fatalf("ожидали %d байт, получили %d", SnapshotLimit, len(got))
	}
}
