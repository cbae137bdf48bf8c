// Package ggml - Tensor Datenstrukturen
//
// Dieses Modul enthaelt Tensor-bezogene Typen und Methoden:
// - Tensor: Einzelner Tensor mit Name, Shape, Kind
// - Tensors: Collection von Tensors mit Offset
// - Layer: Map von Tensor-Namen zu Tensors
// - TensorType Methoden: BlockSize, TypeSize
package ggml

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Tensors repraesentiert eine Sammlung von Tensors
type Tensors struct {
	items  []*Tensor
	Offset uint64
}

// Items gibt Tensors zurueck, optional gefiltert nach Prefix
func (s Tensors) Items(prefix ...string) []*Tensor {
	if len(prefix) == 0 {
		return s.items
	}

	var items []*Tensor
	for _, t := range s.items {
		if strings.HasPrefix(t.Name, prefix[0]) {
			items = append(items, t)
		}
	}

	return items
}

// GroupLayers gruppiert Tensors nach Komponenten-Namen
// Bei fusionierten Artefakten ist die erste Ebene "specialist.<n>"
func (ts Tensors) GroupLayers() map[string]Layer {
	layers := make(map[string]Layer)
	for _, t := range ts.items {
		parts := strings.Split(t.Name, ".")
		if parts[0] == "specialist" && len(parts) > 2 {
			// specialist hat eine Nummer, diese joinen
			parts = append(
				[]string{strings.Join(parts[:2], ".")},
				parts[2:]...)
		}

		if _, ok := layers[parts[0]]; !ok {
			layers[parts[0]] = make(Layer)
		}

		layers[parts[0]][strings.Join(parts[1:], ".")] = t
	}

	return layers
}

// Layer repraesentiert eine Gruppe von Tensors (z.B. ein Spezialist)
type Layer map[string]*Tensor

// Size berechnet die Gesamtgroesse aller Tensors im Layer
func (l Layer) Size() (size uint64) {
	for _, t := range l {
		size += t.Size()
	}
	return size
}

// Tensor repraesentiert einen einzelnen Tensor im Artefakt
type Tensor struct {
	Name   string `json:"name"`
	Kind   uint32 `json:"kind"`
	Offset uint64 `json:"-"`

	// Shape ist die Anzahl der Elemente in jeder Dimension
	Shape []uint64 `json:"shape"`

	io.WriterTo `json:"-"`
}

// block extrahiert die Spezialisten-Nummer aus dem Tensor-Namen
// Tensoren ohne Spezialisten-Prefix sortieren ans Ende
func (t Tensor) block() (n int) {
	if _, err := fmt.Sscanf(t.Name, "specialist.%d.", &n); err != nil {
		return math.MaxInt
	}
	return
}

// blockSize gibt die Block-Groesse basierend auf dem Tensor-Typ zurueck
func (t Tensor) blockSize() uint64 {
	return TensorType(t.Kind).BlockSize()
}

// BlockSize gibt die Block-Groesse fuer einen TensorType zurueck
// Nur Q8_0 ist block-quantisiert (32 Elemente pro Block)
func (t TensorType) BlockSize() uint64 {
	switch t {
	case TensorTypeQ8_0:
		return 32
	default:
		return 1
	}
}

// typeSize gibt die Byte-Groesse pro Element zurueck
func (t Tensor) typeSize() uint64 {
	return TensorType(t.Kind).TypeSize()
}

// TypeSize gibt die Byte-Groesse pro Block fuer einen TensorType zurueck
func (t TensorType) TypeSize() uint64 {
	blockSize := t.BlockSize()

	switch t {
	case TensorTypeF32:
		return 4
	case TensorTypeF16:
		return 2
	case TensorTypeQ8_0:
		return 2 + blockSize
	case TensorTypeI8:
		return 1
	case TensorTypeI16:
		return 2
	case TensorTypeI32:
		return 4
	case TensorTypeI64:
		return 8
	case TensorTypeF64:
		return 8
	case TensorTypeBF16:
		return 2
	default:
		return 0
	}
}

// Elements gibt die Gesamtanzahl der Elemente im Tensor zurueck
func (t Tensor) Elements() uint64 {
	var count uint64 = 1
	for _, n := range t.Shape {
		count *= n
	}
	return count
}

// Size gibt die Groesse des Tensors in Bytes zurueck
func (t Tensor) Size() uint64 {
	return t.Elements() * t.typeSize() / t.blockSize()
}

// Type gibt den Typ-Namen als String zurueck
func (t Tensor) Type() string {
	return TensorType(t.Kind).String()
}
