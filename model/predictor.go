// predictor.go - Spezialist-Predictor
//
// Ein Predictor komponiert das opake Backbone mit zwei Embedding-Tabellen
// und einem linearen Kopf. Der Aufbau entspricht dem Trainings-Modell:
//
//	feats   = backbone(image)                      [num_features]
//	c       = comment_emb[comment_idx]             [embed_dim]
//	raw     = head.1.weight @ concat(feats, c) + head.1.bias
//	pred    = raw + comment_bias[comment_idx]
//
// Dropout vor dem linearen Kopf ist im Inferenz-Modus ein No-Op; die
// Drop-Rate wird nur als Metadatum exportiert.
package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DefaultBackbone ist die Backbone-Architektur des Trainings
const DefaultBackbone = "convnextv2_nano.fcmae_ft_in22k_in1k"

// Config beschreibt die Konstruktions-Parameter eines Predictors
type Config struct {
	// Backbone ist der Architektur-Identifier (Default: DefaultBackbone)
	Backbone string

	// NumTargets ist die Breite des Ausgabe-Vektors (Default: 15)
	NumTargets int

	// Pretrained fordert vortrainierte Backbone-Gewichte an
	Pretrained bool

	// DropRate ist die Dropout-Wahrscheinlichkeit des Kopfes (Default: 0.1)
	DropRate float64

	// NumComments ist die Groesse des Reissorten-Vokabulars (Default: 3)
	NumComments int

	// EmbedDim ist die Breite des Kommentar-Embeddings (Default: 32)
	EmbedDim int
}

// withDefaults ergaenzt fehlende Felder mit den Trainings-Defaults
func (c Config) withDefaults() Config {
	if c.Backbone == "" {
		c.Backbone = DefaultBackbone
	}
	if c.NumTargets == 0 {
		c.NumTargets = 15
	}
	if c.DropRate == 0 {
		c.DropRate = 0.1
	}
	if c.NumComments == 0 {
		c.NumComments = 3
	}
	if c.EmbedDim == 0 {
		c.EmbedDim = 32
	}
	return c
}

// Predictor ist ein Spezialist fuer eine Teilmenge der Regressions-Ziele
type Predictor struct {
	cfg      Config
	backbone Backbone
	params   *ParamSet

	commentEmb  *Param // [num_comments, embed_dim]
	commentBias *Param // [num_comments, num_targets]
	headWeight  *Param // [num_targets, num_features+embed_dim]
	headBias    *Param // [num_targets]
}

// NewPredictor erstellt einen Predictor mit deterministisch
// initialisierten Parametern. Einzige Nebenwirkung ist die
// Parameter-Allokation.
func NewPredictor(cfg Config) (*Predictor, error) {
	cfg = cfg.withDefaults()

	backbone, err := NewBackbone(cfg.Backbone, cfg.Pretrained)
	if err != nil {
		return nil, err
	}

	inDim := backbone.NumFeatures() + cfg.EmbedDim
	rng := rand.New(rand.NewSource(1))

	p := &Predictor{
		cfg:      cfg,
		backbone: backbone,
		params:   NewParamSet(),
		commentEmb: &Param{
			Name:  "comment_emb.weight",
			Shape: []int{cfg.NumComments, cfg.EmbedDim},
			Data:  randomWeights(rng, cfg.NumComments*cfg.EmbedDim),
		},
		commentBias: &Param{
			Name:  "comment_bias.weight",
			Shape: []int{cfg.NumComments, cfg.NumTargets},
			Data:  make([]float32, cfg.NumComments*cfg.NumTargets),
		},
		headWeight: &Param{
			// Index 1: der Kopf ist im Training Sequential(Dropout, Linear)
			Name:  "head.1.weight",
			Shape: []int{cfg.NumTargets, inDim},
			Data:  randomWeights(rng, cfg.NumTargets*inDim),
		},
		headBias: &Param{
			Name:  "head.1.bias",
			Shape: []int{cfg.NumTargets},
			Data:  make([]float32, cfg.NumTargets),
		},
	}

	for _, param := range backbone.Params() {
		if err := p.params.Add(param); err != nil {
			return nil, err
		}
	}
	for _, param := range []*Param{p.commentEmb, p.commentBias, p.headWeight, p.headBias} {
		if err := p.params.Add(param); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Config gibt die effektive Konfiguration zurueck
func (p *Predictor) Config() Config {
	return p.cfg
}

// Backbone gibt das Backbone zurueck
func (p *Predictor) Backbone() Backbone {
	return p.backbone
}

// Params gibt alle Parameter des Predictors zurueck
func (p *Predictor) Params() *ParamSet {
	return p.params
}

// NumTargets gibt die Breite des Ausgabe-Vektors zurueck
func (p *Predictor) NumTargets() int {
	return p.cfg.NumTargets
}

// AdoptBackboneParam uebernimmt einen Backbone-Parameter aus einem
// Checkpoint. Nur fuer Export-Only Backbones erlaubt, deren Parameter-Satz
// nicht in Go materialisiert werden kann.
func (p *Predictor) AdoptBackboneParam(name string, shape []int, data []float32) error {
	if !p.backbone.ExportOnly() {
		return fmt.Errorf("backbone %s declares its own params, refusing to adopt %s",
			p.backbone.Architecture(), name)
	}
	return p.params.Add(&Param{Name: name, Shape: shape, Data: data})
}

// Forward berechnet die Vorhersage fuer einen Batch.
// comments muss pro Bild einen Index in [0, NumComments) enthalten;
// Indizes ausserhalb des Vokabulars lehnt der Embedding-Lookup ab.
func (p *Predictor) Forward(batch ImageBatch, comments []int) ([][]float32, error) {
	if len(comments) != batch.N {
		return nil, fmt.Errorf("got %d comment indices for %d images", len(comments), batch.N)
	}

	feats, err := p.backbone.Features(batch)
	if err != nil {
		return nil, err
	}

	inDim := p.backbone.NumFeatures() + p.cfg.EmbedDim
	weight := mat.NewDense(p.cfg.NumTargets, inDim, float32sTo64(p.headWeight.Data))

	out := make([][]float32, batch.N)
	for i := range batch.N {
		comment := comments[i]
		if comment < 0 || comment >= p.cfg.NumComments {
			return nil, fmt.Errorf("comment index %d out of range [0, %d)", comment, p.cfg.NumComments)
		}

		x := make([]float64, 0, inDim)
		for _, v := range feats[i] {
			x = append(x, float64(v))
		}
		emb := p.commentEmb.Data[comment*p.cfg.EmbedDim : (comment+1)*p.cfg.EmbedDim]
		for _, v := range emb {
			x = append(x, float64(v))
		}

		var y mat.VecDense
		y.MulVec(weight, mat.NewVecDense(inDim, x))

		bias := p.commentBias.Data[comment*p.cfg.NumTargets : (comment+1)*p.cfg.NumTargets]
		pred := make([]float32, p.cfg.NumTargets)
		for j := range pred {
			pred[j] = float32(y.AtVec(j)) + p.headBias.Data[j] + bias[j]
		}
		out[i] = pred
	}

	return out, nil
}
