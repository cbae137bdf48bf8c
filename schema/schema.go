// schema.go - Ziel-Schema und Spezialisten-Zuordnung
// Haupttypen: Assignment, IndexMap, Key
package schema

import (
	"fmt"
	"slices"
)

// TargetOrder ist die feste Reihenfolge der 15 Regressions-Ziele.
// Die Reihenfolge ist der Vertrag fuer alle Konsumenten der exportierten
// Artefakte und darf nicht veraendert werden.
var TargetOrder = []string{
	"Count", "Broken_Count", "Long_Count", "Medium_Count",
	"Black_Count", "Chalky_Count", "Red_Count", "Yellow_Count", "Green_Count",
	"WK_Length_Average", "WK_Width_Average", "WK_LW_Ratio_Average",
	"Average_L", "Average_a", "Average_b",
}

// Assignment ordnet jedem Spezialisten seine Ziele in lokaler Reihenfolge zu
type Assignment map[int][]string

// SpecialistTargets ist die Zuordnung aus der Trainings-Konfiguration:
// welcher Spezialist welche Ziele vorhersagt
var SpecialistTargets = Assignment{
	1: {"Red_Count", "Yellow_Count"},
	2: {"Chalky_Count", "Green_Count"},
	3: {"Broken_Count", "Long_Count", "Black_Count", "Count"},
	4: {"Medium_Count", "WK_Length_Average", "WK_Width_Average",
		"WK_LW_Ratio_Average", "Average_L", "Average_a", "Average_b"},
}

// Reissorten-Vokabular fuer den comment_idx Eingang
const (
	CommentPaddy = 0
	CommentBrown = 1
	CommentWhite = 2

	// NumComments ist die Groesse des Reissorten-Vokabulars
	NumComments = 3
)

// CommentNames sind die Anzeige-Namen der Reissorten, indiziert per comment_idx
var CommentNames = []string{"Paddy", "Brown", "White"}

// Key identifiziert eine lokale Ausgabe-Spalte eines Spezialisten
type Key struct {
	Specialist int
	Local      int
}

// IndexMap bildet (Spezialist, lokaler Index) auf den globalen
// Ausgabe-Index ab. Wird einmalig bei Konstruktion aufgebaut.
type IndexMap map[Key]int

// Specialists gibt die Spezialisten-IDs einer Zuordnung sortiert zurueck
func (a Assignment) Specialists() []int {
	ids := make([]int, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Targets gibt die Ziel-Namen eines Spezialisten zurueck
func (a Assignment) Targets(specialist int) ([]string, error) {
	targets, ok := a[specialist]
	if !ok {
		return nil, fmt.Errorf("unknown specialist %d", specialist)
	}
	return targets, nil
}

// BuildIndexMap baut die Index-Abbildung aus Ziel-Reihenfolge und Zuordnung.
//
// Die Abbildung muss eine Bijektion zwischen allen (Spezialist, lokal)
// Paaren und {0..len(order)-1} sein. Jede Abweichung (unbekannter Name,
// doppelte oder fehlende Zustaendigkeit) ist ein Konstruktionsfehler:
// Schema und Zuordnung sind dann auseinandergelaufen.
func BuildIndexMap(order []string, assign Assignment) (IndexMap, error) {
	m := make(IndexMap)
	owner := make(map[string]int, len(order))

	for _, specialist := range assign.Specialists() {
		for local, target := range assign[specialist] {
			global := slices.Index(order, target)
			if global < 0 {
				return nil, fmt.Errorf("specialist %d: target %q not in target order", specialist, target)
			}
			if prev, ok := owner[target]; ok {
				return nil, fmt.Errorf("target %q claimed by specialist %d and %d", target, prev, specialist)
			}
			owner[target] = specialist
			m[Key{Specialist: specialist, Local: local}] = global
		}
	}

	if len(owner) != len(order) {
		for _, target := range order {
			if _, ok := owner[target]; !ok {
				return nil, fmt.Errorf("target %q not claimed by any specialist", target)
			}
		}
	}

	return m, nil
}

// DefaultIndexMap baut die Index-Abbildung fuer die Trainings-Konfiguration
func DefaultIndexMap() (IndexMap, error) {
	return BuildIndexMap(TargetOrder, SpecialistTargets)
}

// GlobalIndex gibt den globalen Ausgabe-Index fuer eine lokale Spalte zurueck
func (m IndexMap) GlobalIndex(specialist, local int) (int, bool) {
	global, ok := m[Key{Specialist: specialist, Local: local}]
	return global, ok
}
