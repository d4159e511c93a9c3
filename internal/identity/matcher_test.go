package identity

import "testing"

func TestCompareHardIdentifierShortCircuit(t *testing.T) {
	a := map[string]string{"isbn": "urn:isbn:978-0-441-01359-3", "title": "Dune"}
	b := map[string]string{"isbn": "9780441013593", "title": "Dune Deluxe Edition"}
	result := Compare(a, b, DefaultConfig())
	if !result.Hard || result.Similarity != 1.0 {
		t.Fatalf("expected hard match despite differing titles, got %+v", result)
	}
	if len(result.MatchedIDs) != 1 || result.MatchedIDs[0] != "isbn" {
		t.Fatalf("expected isbn reported as matched id, got %+v", result.MatchedIDs)
	}
}

func TestCompareNoSharedKeysIsZero(t *testing.T) {
	a := map[string]string{"title": "Dune"}
	b := map[string]string{"isbn": "123"}
	result := Compare(a, b, DefaultConfig())
	if result.Similarity != 0 || result.Hard {
		t.Fatalf("expected zero similarity with no shared keys, got %+v", result)
	}
}

func TestCompareTitleWeightedHalf(t *testing.T) {
	a := map[string]string{"title": "Dune", "author": "Frank Herbert"}
	b := map[string]string{"title": "Dune", "author": "F Herbert"}
	result := Compare(a, b, DefaultConfig())
	if result.Hard {
		t.Fatalf("expected fuzzy path, no hard identifiers present")
	}
	// title exact (1.0) carries weight 0.5; author fuzzy close to but not
	// exactly 1.0 carries the remaining 0.5 — overall should sit strictly
	// between 0.5 and 1.0, closer to 1.0 than the title-absent case.
	if result.Similarity <= 0.5 || result.Similarity >= 1.0 {
		t.Fatalf("expected similarity strictly between 0.5 and 1.0, got %v", result.Similarity)
	}
}

func TestCompareExactMatchIsOne(t *testing.T) {
	a := map[string]string{"title": "Dune"}
	b := map[string]string{"title": "Dune"}
	result := Compare(a, b, DefaultConfig())
	if result.Similarity != 1.0 {
		t.Fatalf("expected exact match similarity 1.0, got %v", result.Similarity)
	}
}

func TestFieldSimilarityBothEmptyIsOne(t *testing.T) {
	if s := fieldSimilarity("", ""); s != 1.0 {
		t.Fatalf("expected 1.0 for both-empty, got %v", s)
	}
}

func TestFieldSimilarityOneEmptyIsZero(t *testing.T) {
	if s := fieldSimilarity("Dune", ""); s != 0.0 {
		t.Fatalf("expected 0.0 for one-empty, got %v", s)
	}
}

func TestLevenshteinDistanceKnownValues(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"dune", "dune", 0},
		{"dune", "dunne", 1},
		{"kitten", "sitting", 3},
	}
	for _, c := range cases {
		if got := levenshteinDistance(c.a, c.b); got != c.want {
			t.Fatalf("levenshteinDistance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestDistributeWeightsWithoutTitle(t *testing.T) {
	weights := distributeWeights([]string{"author", "isbn13"})
	for _, w := range weights {
		if w != 0.5 {
			t.Fatalf("expected even 0.5/0.5 split without title, got %+v", weights)
		}
	}
}
