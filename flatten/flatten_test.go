package flatten

import "testing"

func TestObjectDedupAndSort(t *testing.T) {
	obj := map[string]interface{}{
		"type": "subject",
		"names": []interface{}{
			map[string]interface{}{"full_name": "James Bond"},
			map[string]interface{}{"full_name": "James Bond"},
		},
		"age": float64(7),
	}
	pairs := Object(obj)

	seen := map[Pair]int{}
	for _, p := range pairs {
		seen[p]++
	}
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("pair %+v appeared %d times, want exactly once", p, n)
		}
	}

	for i := 1; i < len(pairs); i++ {
		if less(pairs[i], pairs[i-1]) {
			t.Fatalf("pairs not sorted at index %d: %+v before %+v", i, pairs[i-1], pairs[i])
		}
	}
}

func TestObjectStableOnEqualStructures(t *testing.T) {
	a := map[string]interface{}{"full_name": "Bond", "age": float64(1)}
	b := map[string]interface{}{"age": float64(1), "full_name": "Bond"}

	pa, pb := Object(a), Object(b)
	if len(pa) != len(pb) {
		t.Fatalf("length mismatch: %d vs %d", len(pa), len(pb))
	}
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("pair %d differs: %+v vs %+v", i, pa[i], pb[i])
		}
	}
}
