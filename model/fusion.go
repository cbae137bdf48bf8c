// fusion.go - Fusions-Router ueber die vier Spezialisten
//
// Der Router haelt einen Predictor pro Spezialist und streut deren lokale
// Ausgaben gemaess der Index-Abbildung in den globalen Ausgabe-Vektor.
// Die Abbildung wird einmalig bei Konstruktion gebaut und validiert;
// Schema-Drift ist damit ein Konstruktionsfehler, kein stiller Bug im
// Forward-Pass.
package model

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/riceqc/riceconv/schema"
)

// Fused buendelt die vier Spezialisten zu einem kombinierten Modell
type Fused struct {
	order       []string
	assignment  schema.Assignment
	indexMap    schema.IndexMap
	specialists []int
	predictors  map[int]*Predictor
}

// NewFused erstellt den Fusions-Router fuer die Trainings-Konfiguration.
// base liefert die gemeinsamen Konstruktions-Parameter; NumTargets wird
// pro Spezialist aus der Zuordnung abgeleitet.
func NewFused(base Config) (*Fused, error) {
	return NewFusedWithSchema(base, schema.TargetOrder, schema.SpecialistTargets)
}

// NewFusedWithSchema erstellt einen Fusions-Router fuer ein explizites
// Schema. Die Index-Abbildung wird sofort gebaut; jede Inkonsistenz
// zwischen Schema und Zuordnung schlaegt hier fehl, bevor eine Vorhersage
// moeglich ist.
func NewFusedWithSchema(base Config, order []string, assignment schema.Assignment) (*Fused, error) {
	indexMap, err := schema.BuildIndexMap(order, assignment)
	if err != nil {
		return nil, fmt.Errorf("output index map: %w", err)
	}

	f := &Fused{
		order:       order,
		assignment:  assignment,
		indexMap:    indexMap,
		specialists: assignment.Specialists(),
		predictors:  make(map[int]*Predictor, len(assignment)),
	}

	for _, specialist := range f.specialists {
		cfg := base
		cfg.NumTargets = len(assignment[specialist])
		p, err := NewPredictor(cfg)
		if err != nil {
			return nil, fmt.Errorf("specialist %d: %w", specialist, err)
		}
		f.predictors[specialist] = p
	}

	return f, nil
}

// Specialists gibt die Spezialisten-IDs sortiert zurueck
func (f *Fused) Specialists() []int {
	return f.specialists
}

// Predictor gibt den Predictor eines Spezialisten zurueck
func (f *Fused) Predictor(specialist int) (*Predictor, error) {
	p, ok := f.predictors[specialist]
	if !ok {
		return nil, fmt.Errorf("unknown specialist %d", specialist)
	}
	return p, nil
}

// NumTargets gibt die Breite des fusionierten Ausgabe-Vektors zurueck
func (f *Fused) NumTargets() int {
	return len(f.order)
}

// Assignment gibt die Ziel-Zuordnung pro Spezialist zurueck
func (f *Fused) Assignment() schema.Assignment {
	return f.assignment
}

// IndexMap gibt die Ausgabe-Index-Abbildung zurueck
func (f *Fused) IndexMap() schema.IndexMap {
	return f.indexMap
}

// Forward berechnet alle Spezialisten auf demselben Batch und streut die
// lokalen Ausgaben in den globalen Vektor. Die Spezialisten sind
// unabhaengig und laufen parallel; das Streuen ist kommutativ, da jeder
// Spezialist disjunkte Spalten besitzt.
func (f *Fused) Forward(batch ImageBatch, comments []int) ([][]float32, error) {
	var mu sync.Mutex
	locals := make(map[int][][]float32, len(f.specialists))

	var g errgroup.Group
	for _, specialist := range f.specialists {
		g.Go(func() error {
			out, err := f.predictors[specialist].Forward(batch, comments)
			if err != nil {
				return fmt.Errorf("specialist %d: %w", specialist, err)
			}
			mu.Lock()
			locals[specialist] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := make([][]float32, batch.N)
	for i := range combined {
		combined[i] = make([]float32, len(f.order))
	}

	// Jede globale Spalte wird genau einmal geschrieben: die Abbildung
	// ist eine validierte Bijektion
	for _, specialist := range f.specialists {
		for local := range f.assignment[specialist] {
			global, ok := f.indexMap.GlobalIndex(specialist, local)
			if !ok {
				return nil, fmt.Errorf("no output index for specialist %d column %d", specialist, local)
			}
			for i := range combined {
				combined[i][global] = locals[specialist][i][local]
			}
		}
	}

	return combined, nil
}
