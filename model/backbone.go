// backbone.go - Backbone Interface und Registry
//
// Das Backbone ist der opake Feature-Extraktor eines Spezialisten. Zwei
// Auspraegungen sind registriert:
//   - Export-Only Backbones (Produktions-Architekturen wie ConvNeXt V2):
//     deren Gewichte werden beim Checkpoint-Laden uebernommen und nur
//     durchgereicht, ein Forward-Pass wird nicht unterstuetzt
//   - Konkrete Go-Backbones (pool_stem): kleiner Feature-Extraktor mit
//     echtem Forward-Pass fuer verify und Tests
package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInferenceUnsupported meldet dass ein Backbone nur Gewichts-Transport
// unterstuetzt und keinen Forward-Pass
var ErrInferenceUnsupported = errors.New("backbone supports weight transport only, not inference")

// Backbone extrahiert pro Bild einen Feature-Vektor
type Backbone interface {
	// Architecture gibt den Architektur-Identifier zurueck
	Architecture() string

	// NumFeatures gibt die Breite des Feature-Vektors zurueck
	NumFeatures() int

	// ExportOnly meldet ob das Backbone nur Gewichts-Transport unterstuetzt.
	// Parameter von Export-Only Backbones werden beim Checkpoint-Laden
	// unveraendert in den Predictor uebernommen.
	ExportOnly() bool

	// Params gibt die eigenen Parameter zurueck. Leer bei Export-Only
	// Backbones, deren Gewichte erst aus dem Checkpoint stammen.
	Params() []*Param

	// Features berechnet einen Feature-Vektor pro Bild.
	// Export-Only Backbones geben ErrInferenceUnsupported zurueck.
	Features(batch ImageBatch) ([][]float32, error)
}

// BackboneFactory erstellt ein Backbone
// pretrained fordert vortrainierte Gewichte an (nur fuer konkrete Backbones)
type BackboneFactory func(pretrained bool) (Backbone, error)

var (
	backboneMu       sync.RWMutex
	backboneRegistry = make(map[string]BackboneFactory)
)

// RegisterBackbone registriert eine Backbone-Factory unter einem
// Architektur-Identifier. Doppelte Registrierung ist ein Programmierfehler.
func RegisterBackbone(name string, factory BackboneFactory) {
	backboneMu.Lock()
	defer backboneMu.Unlock()
	if _, ok := backboneRegistry[name]; ok {
		panic("model: backbone " + name + " already registered")
	}
	backboneRegistry[name] = factory
}

// NewBackbone erstellt ein Backbone per Architektur-Identifier
func NewBackbone(name string, pretrained bool) (Backbone, error) {
	backboneMu.RLock()
	factory, ok := backboneRegistry[name]
	backboneMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported backbone architecture %q (registered: %v)", name, RegisteredBackbones())
	}
	return factory(pretrained)
}

// RegisteredBackbones gibt alle registrierten Architekturen sortiert zurueck
func RegisteredBackbones() []string {
	backboneMu.RLock()
	defer backboneMu.RUnlock()
	names := make([]string, 0, len(backboneRegistry))
	for name := range backboneRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// opaqueBackbone ist ein Export-Only Backbone mit bekannter Feature-Breite
type opaqueBackbone struct {
	arch     string
	features int
}

func (b *opaqueBackbone) Architecture() string { return b.arch }
func (b *opaqueBackbone) NumFeatures() int     { return b.features }
func (b *opaqueBackbone) ExportOnly() bool     { return true }
func (b *opaqueBackbone) Params() []*Param     { return nil }

func (b *opaqueBackbone) Features(ImageBatch) ([][]float32, error) {
	return nil, fmt.Errorf("%s: %w", b.arch, ErrInferenceUnsupported)
}

// Produktions-Backbones aus dem Training (timm-Identifier).
// Die Feature-Breiten entsprechen den jeweiligen Architekturen.
func init() {
	for arch, features := range map[string]int{
		"convnextv2_nano.fcmae_ft_in22k_in1k": 640,
		"convnextv2_tiny.fcmae_ft_in22k_in1k": 768,
	} {
		RegisterBackbone(arch, func(bool) (Backbone, error) {
			return &opaqueBackbone{arch: arch, features: features}, nil
		})
	}
}
