// fusion_test.go - Tests fuer den Fusions-Router
package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/riceqc/riceconv/schema"
)

func TestNewFusedBuildsAllSpecialists(t *testing.T) {
	f, err := NewFused(Config{Backbone: "pool_stem"})
	if err != nil {
		t.Fatalf("NewFused: %v", err)
	}

	if got := f.Specialists(); len(got) != 4 {
		t.Fatalf("Spezialisten = %v, erwartet 4", got)
	}
	if f.NumTargets() != len(schema.TargetOrder) {
		t.Errorf("NumTargets = %d, erwartet %d", f.NumTargets(), len(schema.TargetOrder))
	}

	// Jeder Spezialist ist auf seine Zuordnungs-Breite dimensioniert
	for _, specialist := range f.Specialists() {
		p, err := f.Predictor(specialist)
		if err != nil {
			t.Fatalf("Predictor(%d): %v", specialist, err)
		}
		if want := len(schema.SpecialistTargets[specialist]); p.NumTargets() != want {
			t.Errorf("Spezialist %d: NumTargets = %d, erwartet %d", specialist, p.NumTargets(), want)
		}
	}
}

func TestNewFusedRejectsSchemaDrift(t *testing.T) {
	// Ein Ziel-Name, der nicht im Schema vorkommt, muss die Konstruktion
	// sofort scheitern lassen - vor jeder Vorhersage
	order := []string{"A", "B"}
	assignment := schema.Assignment{1: {"A"}, 2: {"Renamed"}}

	if _, err := NewFusedWithSchema(Config{Backbone: "pool_stem"}, order, assignment); err == nil {
		t.Fatal("erwarteter Konstruktionsfehler blieb aus")
	}
}

func TestFusedForwardScatter(t *testing.T) {
	// Kleines Schema: Spezialist 1 liefert [5], Spezialist 2 liefert [1, 3],
	// gestreut ergibt das [1, 5, 3]
	order := []string{"A", "B", "C"}
	assignment := schema.Assignment{1: {"B"}, 2: {"A", "C"}}

	f, err := NewFusedWithSchema(Config{Backbone: "pool_stem"}, order, assignment)
	if err != nil {
		t.Fatalf("NewFusedWithSchema: %v", err)
	}

	p1, _ := f.Predictor(1)
	zeroHead(p1)
	p1.headBias.Data = []float32{5}

	p2, _ := f.Predictor(2)
	zeroHead(p2)
	p2.headBias.Data = []float32{1, 3}

	out, err := f.Forward(testBatch(2, 16, 16, 0.5), []int{0, 1})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	want := [][]float32{{1, 5, 3}, {1, 5, 3}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("fusionierte Ausgabe abweichend (-want +got):\n%s", diff)
	}
}

func TestFusedForwardMatchesIndependentRuns(t *testing.T) {
	// Die fusionierte Ausgabe muss spaltenweise der Permutation der
	// unabhaengigen Spezialisten-Ausgaben entsprechen - unabhaengig von
	// der Auswertungs-Reihenfolge
	f, err := NewFused(Config{Backbone: "pool_stem"})
	if err != nil {
		t.Fatalf("NewFused: %v", err)
	}

	batch := testBatch(3, 48, 48, 0.3)
	comments := []int{0, 1, 2}

	fused, err := f.Forward(batch, comments)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	want := make([][]float32, batch.N)
	for i := range want {
		want[i] = make([]float32, f.NumTargets())
	}
	for _, specialist := range f.Specialists() {
		p, _ := f.Predictor(specialist)
		local, err := p.Forward(batch, comments)
		if err != nil {
			t.Fatalf("Spezialist %d Forward: %v", specialist, err)
		}
		for localIdx := range p.NumTargets() {
			global, ok := f.IndexMap().GlobalIndex(specialist, localIdx)
			if !ok {
				t.Fatalf("kein globaler Index fuer Spezialist %d Spalte %d", specialist, localIdx)
			}
			for i := range want {
				want[i][global] = local[i][localIdx]
			}
		}
	}

	if diff := cmp.Diff(want, fused); diff != "" {
		t.Errorf("Fusion weicht von unabhaengigen Laeufen ab (-want +got):\n%s", diff)
	}
}

func TestFusedForwardDeterministic(t *testing.T) {
	// Parallele Auswertung darf das Ergebnis nicht veraendern
	f, err := NewFused(Config{Backbone: "pool_stem"})
	if err != nil {
		t.Fatalf("NewFused: %v", err)
	}

	batch := testBatch(2, 32, 32, 0.7)
	comments := []int{2, 0}

	first, err := f.Forward(batch, comments)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for range 10 {
		again, err := f.Forward(batch, comments)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("nicht-deterministische Fusion (-first +again):\n%s", diff)
		}
	}
}
