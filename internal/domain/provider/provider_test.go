package provider

import "testing"

func TestValid(t *testing.T) {
	for _, id := range All() {
		if !Valid(id) {
			t.Errorf("expected %s to be valid", id)
		}
	}
	if Valid("gpu-cluster") {
		t.Error("expected unknown provider to be invalid")
	}
	if Valid("") {
		t.Error("expected empty provider to be invalid")
	}
}

func TestOrderingsCoverAllProviders(t *testing.T) {
	for name, order := range map[string][]ID{
		"ByQuality": ByQuality(),
		"ByCost":    ByCost(),
		"ForCode":   ForCode(),
	} {
		if len(order) != len(All()) {
			t.Errorf("%s: expected %d providers, got %d", name, len(All()), len(order))
		}
		seen := map[ID]bool{}
		for _, id := range order {
			if seen[id] {
				t.Errorf("%s: duplicate provider %s", name, id)
			}
			seen[id] = true
		}
	}
}

func TestByCostIsReverseOfQualityExtremes(t *testing.T) {
	if ByCost()[0] != FreeLocal {
		t.Errorf("expected free-local cheapest, got %s", ByCost()[0])
	}
	if ByQuality()[0] != HighQualityCloud {
		t.Errorf("expected high-quality-cloud best, got %s", ByQuality()[0])
	}
}

func TestSetContains(t *testing.T) {
	s := NewSet(CheapCloud, FreeLocal)
	if !s.Contains(CheapCloud) {
		t.Error("expected set to contain cheap-cloud")
	}
	if s.Contains(HighQualityCloud) {
		t.Error("expected set to not contain high-quality-cloud")
	}
}

func TestNewSetIgnoresUnknown(t *testing.T) {
	s := NewSet(CheapCloud, "mystery-box")
	if len(s) != 1 {
		t.Fatalf("expected 1 member, got %d", len(s))
	}
}

func TestIntersect(t *testing.T) {
	a := NewSet(HighQualityCloud, CheapCloud, FreeLocal)
	b := NewSet(CheapCloud, FreeLocal, CodeSpecialized)

	got := Intersect(ByCost(), a, b)
	want := []ID{FreeLocal, CheapCloud}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestIntersectEmpty(t *testing.T) {
	a := NewSet(HighQualityCloud)
	b := NewSet(FreeLocal)
	if got := Intersect(ByCost(), a, b); len(got) != 0 {
		t.Fatalf("expected empty intersection, got %v", got)
	}
}
