// param.go - Benannte Parameter-Tensoren eines Predictors
// Haupttypen: Param, ParamSet, ImageBatch
package model

import (
	"fmt"
	"slices"
)

// Param ist ein benannter, geformter float32-Tensor.
// Daten liegen row-major (letzte Dimension zusammenhaengend).
type Param struct {
	Name  string
	Shape []int
	Data  []float32
}

// Elements gibt die Gesamtanzahl der Elemente zurueck
func (p *Param) Elements() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

// ShapeEquals prueft ob die Form exakt uebereinstimmt
func (p *Param) ShapeEquals(shape []int) bool {
	return slices.Equal(p.Shape, shape)
}

// ParamSet ist eine geordnete Sammlung benannter Parameter.
// Die Einfuege-Reihenfolge bestimmt die Export-Reihenfolge.
type ParamSet struct {
	names []string
	index map[string]*Param
}

// NewParamSet erstellt eine leere Parameter-Sammlung
func NewParamSet() *ParamSet {
	return &ParamSet{index: make(map[string]*Param)}
}

// Add fuegt einen Parameter hinzu. Doppelte Namen sind ein Fehler.
func (s *ParamSet) Add(p *Param) error {
	if len(p.Data) != p.Elements() {
		return fmt.Errorf("param %s: data length %d does not match shape %v", p.Name, len(p.Data), p.Shape)
	}
	if _, ok := s.index[p.Name]; ok {
		return fmt.Errorf("duplicate param %s", p.Name)
	}
	s.names = append(s.names, p.Name)
	s.index[p.Name] = p
	return nil
}

// Get gibt einen Parameter per Name zurueck
func (s *ParamSet) Get(name string) (*Param, bool) {
	p, ok := s.index[name]
	return p, ok
}

// Names gibt alle Parameter-Namen in Einfuege-Reihenfolge zurueck
func (s *ParamSet) Names() []string {
	return slices.Clone(s.names)
}

// Params gibt alle Parameter in Einfuege-Reihenfolge zurueck
func (s *ParamSet) Params() []*Param {
	params := make([]*Param, 0, len(s.names))
	for _, name := range s.names {
		params = append(params, s.index[name])
	}
	return params
}

// Len gibt die Anzahl der Parameter zurueck
func (s *ParamSet) Len() int {
	return len(s.names)
}

// ImageBatch ist ein Batch von Bildern im NCHW Layout (CHW pro Bild)
type ImageBatch struct {
	Data       []float32
	N, C, H, W int
}

// Image gibt die CHW-Daten des i-ten Bildes zurueck
func (b ImageBatch) Image(i int) []float32 {
	stride := b.C * b.H * b.W
	return b.Data[i*stride : (i+1)*stride]
}

// Valid prueft ob die Daten-Laenge zu den Dimensionen passt
func (b ImageBatch) Valid() bool {
	return len(b.Data) == b.N*b.C*b.H*b.W && b.N > 0 && b.C > 0 && b.H > 0 && b.W > 0
}
