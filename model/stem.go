// stem.go - Konkretes Go-Backbone fuer verify und Tests
//
// pool_stem ist ein minimaler Feature-Extraktor: adaptives Average-Pooling
// des Bildes auf ein festes Raster, danach eine lineare Projektion auf die
// Feature-Breite. Beliebige Eingabe-Groessen werden unterstuetzt, die
// raeumliche Groesse ist Laufzeit-Konfiguration.
package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	// stemGrid ist die Kantenlaenge des Pooling-Rasters
	stemGrid = 8

	// stemFeatures ist die Feature-Breite des pool_stem Backbones
	stemFeatures = 64

	// stemChannels ist die erwartete Kanal-Anzahl
	stemChannels = 3
)

// stemBackbone pool't das Bild auf ein festes Raster und projiziert linear
type stemBackbone struct {
	proj     *Param // [stemFeatures, stemChannels*stemGrid*stemGrid]
	projBias *Param // [stemFeatures]
}

// newStemBackbone erstellt ein pool_stem Backbone mit deterministischer
// Initialisierung. pretrained hat hier keine Wirkung: es gibt keine
// vortrainierten pool_stem Gewichte.
func newStemBackbone(pretrained bool) (Backbone, error) {
	_ = pretrained

	inDim := stemChannels * stemGrid * stemGrid
	rng := rand.New(rand.NewSource(42))

	b := &stemBackbone{
		proj: &Param{
			Name:  "backbone.proj.weight",
			Shape: []int{stemFeatures, inDim},
			Data:  randomWeights(rng, stemFeatures*inDim),
		},
		projBias: &Param{
			Name:  "backbone.proj.bias",
			Shape: []int{stemFeatures},
			Data:  make([]float32, stemFeatures),
		},
	}
	return b, nil
}

func (b *stemBackbone) Architecture() string { return "pool_stem" }
func (b *stemBackbone) NumFeatures() int     { return stemFeatures }
func (b *stemBackbone) ExportOnly() bool     { return false }

func (b *stemBackbone) Params() []*Param {
	return []*Param{b.proj, b.projBias}
}

// Features pool't jedes Bild auf stemChannels x stemGrid x stemGrid und
// projiziert das Ergebnis linear auf stemFeatures Werte
func (b *stemBackbone) Features(batch ImageBatch) ([][]float32, error) {
	if !batch.Valid() {
		return nil, fmt.Errorf("invalid image batch: %dx%dx%dx%d with %d values",
			batch.N, batch.C, batch.H, batch.W, len(batch.Data))
	}
	if batch.C != stemChannels {
		return nil, fmt.Errorf("pool_stem expects %d channels, got %d", stemChannels, batch.C)
	}

	inDim := stemChannels * stemGrid * stemGrid
	weight := mat.NewDense(stemFeatures, inDim, float32sTo64(b.proj.Data))

	out := make([][]float32, batch.N)
	for i := range batch.N {
		pooled := poolToGrid(batch.Image(i), batch.C, batch.H, batch.W, stemGrid)

		var y mat.VecDense
		y.MulVec(weight, mat.NewVecDense(inDim, float32sTo64(pooled)))

		feats := make([]float32, stemFeatures)
		for j := range feats {
			feats[j] = float32(y.AtVec(j)) + b.projBias.Data[j]
		}
		out[i] = feats
	}
	return out, nil
}

// poolToGrid mittelt ein CHW-Bild auf ein festes g x g Raster pro Kanal
func poolToGrid(chw []float32, c, h, w, g int) []float32 {
	out := make([]float32, c*g*g)
	for ch := range c {
		plane := chw[ch*h*w : (ch+1)*h*w]
		for gy := range g {
			y0, y1 := gy*h/g, (gy+1)*h/g
			if y1 == y0 {
				y1 = y0 + 1
			}
			for gx := range g {
				x0, x1 := gx*w/g, (gx+1)*w/g
				if x1 == x0 {
					x1 = x0 + 1
				}

				var sum float32
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						sum += plane[y*w+x]
					}
				}
				out[ch*g*g+gy*g+gx] = sum / float32((y1-y0)*(x1-x0))
			}
		}
	}
	return out
}

// randomWeights erzeugt kleine, reproduzierbare Initialgewichte
func randomWeights(rng *rand.Rand, n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.Float64()-0.5) * 0.1
	}
	return data
}

// float32sTo64 konvertiert fuer gonum nach float64
func float32sTo64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

func init() {
	RegisterBackbone("pool_stem", newStemBackbone)
}
