package featured

import (
	"math/rand"
	"testing"

	"lyric-notes/internal/adapters/ranker"
	"lyric-notes/internal/domain"
)

func TestSelectEmpty(t *testing.T) {
	got := Select(nil, ranker.New())
	if len(got) != 0 {
		t.Fatalf("ожидали пустой набор, получили %d", len(got))
	}
}

// Сценарий из «I walked alone in the rain»: A=[2,9) и B=[5,14) пересекаются,
// в наборе остаётся A (раньше по start), B складывается в её группу.
func TestSelectOverlappingPair(t *testing.T) {
	a := domain.Annotation{ID: 1, Start: 2, End: 9, SelectedText: "walked "}
	b := domain.Annotation{ID: 2, Start: 5, End: 14, SelectedText: "ed alone "}
	got := Select([]domain.Annotation{b, a}, ranker.New())
	if len(got) != 1 {
		t.Fatalf("ожидали 1 выделенную аннотацию, получили %d", len(got))
	}
	if got[0].Annotation.ID != a.ID {
		t.Fatalf("ожидали A выделенной, получили %d", got[0].Annotation.ID)
	}
	if len(got[0].Group) != 2 {
		t.Fatalf("ожидали группу из 2, получили %d", len(got[0].Group))
	}
}

func TestSelectContainedInterval(t *testing.T) {
	outer := domain.Annotation{ID: 1, Start: 0, End: 20}
	inner := domain.Annotation{ID: 2, Start: 5, End: 8}
	after := domain.Annotation{ID: 3, Start: 20, End: 25}
	got := Select([]domain.Annotation{inner, after, outer}, nil)
	if len(got) != 2 {
		t.Fatalf("ожидали 2 выделенные аннотации, получили %d", len(got))
	}
	if got[0].Annotation.ID != 1 || got[1].Annotation.ID != 3 {
		t.Fatalf("ожидали аннотации 1 и 3, получили %d и %d", got[0].Annotation.ID, got[1].Annotation.ID)
	}
	// Вложенная аннотация не теряется: она в группе внешней.
	if len(got[0].Group) != 2 {
		t.Fatalf("ожидали вложенную в группе внешней, размер группы %d", len(got[0].Group))
	}
}

func TestSelectPairwiseNonOverlapping(t *testing.T) {
	anns := randomAnnotations(40, 200)
	got := Select(anns, nil)
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if got[i].Annotation.Span().Overlaps(got[j].Annotation.Span()) {
				t.Fatalf("выделенные %d и %d пересекаются", got[i].Annotation.ID, got[j].Annotation.ID)
			}
		}
	}
}

func TestSelectOrderIndependent(t *testing.T) {
	anns := randomAnnotations(30, 120)
	base := featuredIDs(Select(anns, nil))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]domain.Annotation(nil), anns...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := featuredIDs(Select(shuffled, nil))
		if len(got) != len(base) {
			t.Fatalf("перестановка %d: размер %d вместо %d", i, len(got), len(base))
		}
		for id := range base {
			if _, ok := got[id]; !ok {
				t.Fatalf("перестановка %d: потеряна аннотация %d", i, id)
			}
		}
	}
}

// Каждая активная аннотация достижима хотя бы через одну группу, а каждая
// группа рефлексивна и пересекается со своим якорем.
func TestSelectGroupsCoverAllActive(t *testing.T) {
	anns := randomAnnotations(25, 100)
	got := Select(anns, ranker.New())
	reachable := make(map[int64]struct{})
	for _, p := range got {
		anchorSeen := false
		for _, member := range p.Group {
			if !member.Span().Overlaps(p.Annotation.Span()) {
				t.Fatalf("член группы %d не пересекает якорь %d", member.ID, p.Annotation.ID)
			}
			if member.ID == p.Annotation.ID {
				anchorSeen = true
			}
			reachable[member.ID] = struct{}{}
		}
		if !anchorSeen {
			t.Fatalf("якорь %d отсутствует в собственной группе", p.Annotation.ID)
		}
	}
	for _, a := range anns {
		if _, ok := reachable[a.ID]; !ok {
			t.Fatalf("аннотация %d не достижима ни через одну группу", a.ID)
		}
	}
}

func TestSelectGroupRankedCanonicalFirst(t *testing.T) {
	a := domain.Annotation{ID: 1, Start: 0, End: 10}
	b := domain.Annotation{ID: 2, Start: 4, End: 12, IsVerified: true}
	got := Select([]domain.Annotation{a, b}, ranker.New())
	if len(got) != 1 {
		t.Fatalf("ожидали 1 выделенную аннотацию")
	}
	if got[0].Group[0].ID != 2 {
		t.Fatalf("каноничной в группе должна быть проверенная аннотация")
	}
}

func featuredIDs(ps []Placement) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ps))
	for _, p := range ps {
		out[p.Annotation.ID] = struct{}{}
	}
	return out
}

func randomAnnotations(n, textLen int) []domain.Annotation {
	rng := rand.New(rand.NewSource(42))
	anns := make([]domain.Annotation, 0, n)
	for i := 0; i < n; i++ {
		start := rng.Intn(textLen - 1)
		end := start + 1 + rng.Intn(textLen-start-1)
		anns = append(anns, domain.Annotation{ID: int64(i + 1), Start: start, End: end, Status: domain.StatusActive})
	}
	return anns
}
