// checkpoint.go - Checkpoint-Datenmodell und Einstiegspunkt
//
// Ein Checkpoint ist ein persistierter Trainings-Schnappschuss. Die
// erwartete Struktur ist ein Top-Level Eintrag "heads", der pro Kopf ein
// "state_dict" mit benannten Parameter-Tensoren enthaelt. Unterstuetzte
// Formate: PyTorch-Pickle (.ckpt, .pt, .pth) und Safetensors.
package checkpoint

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Struktur-Fehler: der Checkpoint ist korrupt oder inkompatibel,
// kein behebbarer Einzel-Parameter-Konflikt
var (
	// ErrMissingHeads meldet einen fehlenden "heads" Eintrag
	ErrMissingHeads = errors.New("checkpoint missing 'heads' key")

	// ErrEmptyStateDict meldet ein leeres "state_dict"
	ErrEmptyStateDict = errors.New("checkpoint head has empty state_dict")

	// ErrNoCanonicalHead meldet dass kein Kopf nach Konvention auswaehlbar ist
	ErrNoCanonicalHead = errors.New("no canonical head in checkpoint")
)

// Tensor ist ein Parameter-Wert aus einem Checkpoint.
// Daten sind nach float32 normalisiert und row-major zusammenhaengend.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Elements gibt die Gesamtanzahl der Elemente zurueck
func (t Tensor) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// StateDict ist die flache Parameter-Abbildung eines Kopfes
type StateDict map[string]Tensor

// Names gibt die Parameter-Namen sortiert zurueck
func (sd StateDict) Names() []string {
	names := make([]string, 0, len(sd))
	for name := range sd {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// File ist ein gelesener Checkpoint
type File struct {
	Path  string
	Heads map[string]StateDict
}

// HeadNames gibt die Kopf-Namen sortiert zurueck
func (f *File) HeadNames() []string {
	names := make([]string, 0, len(f.Heads))
	for name := range f.Heads {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Read liest einen Checkpoint, Format-Erkennung per Dateiendung
func Read(path string) (*File, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		return ReadSafetensors(path)
	case ".ckpt", ".pt", ".pth", ".bin":
		return ReadTorch(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format %q", filepath.Ext(path))
	}
}

// CanonicalHead ist der Sentinel-Name fuer den bevorzugten Kopf.
// Die Kopf-Wahl ist eine explizite Konvention, keine Frage der
// Iterations-Reihenfolge des Containers.
const CanonicalHead = "primary"

// SelectHead waehlt das state_dict eines Kopfes aus.
//
// Auswahl-Reihenfolge: explizites override, der Sentinel-Kopf "primary",
// dann der Kopf des Spezialisten selbst ("model<N>"). Alles andere ist
// ein Fehler, der die vorhandenen Koepfe benennt.
func SelectHead(f *File, specialist int, override string) (StateDict, string, error) {
	candidates := []string{CanonicalHead, fmt.Sprintf("model%d", specialist)}
	if override != "" {
		candidates = []string{override}
	}

	for _, name := range candidates {
		sd, ok := f.Heads[name]
		if !ok {
			continue
		}
		if len(sd) == 0 {
			return nil, "", fmt.Errorf("%w: head %q in %s", ErrEmptyStateDict, name, f.Path)
		}
		return sd, name, nil
	}

	return nil, "", fmt.Errorf("%w: tried %v, available %v in %s",
		ErrNoCanonicalHead, candidates, f.HeadNames(), f.Path)
}
