// MODUL: normalize
// ZWECK: Normalisierung und Batch-Aufbau fuer die Modell-Eingabe
// INPUT: ImageInput, Normalisierungs-Parameter (mean, std)
// OUTPUT: float32-Tensoren im CHW Layout, ImageBatch fuer den Predictor
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: model (ImageBatch)
// HINWEISE: ImageNet mean/std, identisch zur Trainings-Pipeline

package vision

import (
	"fmt"

	"github.com/riceqc/riceconv/model"
)

// ImageNet Normalisierungswerte des Backbone-Pretrainings
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// NormalizeCHW normalisiert ein Bild mit mean/std und gibt einen
// float32-Slice im CHW Layout zurueck (Channel-First)
func NormalizeCHW(img *ImageInput, mean, std [3]float32) []float32 {
	bounds := img.Image.Bounds()
	h := bounds.Dy()
	w := bounds.Dx()
	size := h * w

	result := make([]float32, size*3)
	rOffset := 0
	gOffset := size
	bOffset := size * 2

	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := extractRGB(img, x, y)

			result[rOffset+idx] = (r - mean[0]) / std[0]
			result[gOffset+idx] = (g - mean[1]) / std[1]
			result[bOffset+idx] = (b - mean[2]) / std[2]
			idx++
		}
	}

	return result
}

// extractRGB holt RGB-Werte als float32 im Bereich [0,1]
func extractRGB(img *ImageInput, x, y int) (float32, float32, float32) {
	c := img.Image.At(x, y)
	r, g, b, _ := c.RGBA()
	// RGBA gibt 16-bit Werte zurueck
	return float32(r>>8) / 255.0, float32(g>>8) / 255.0, float32(b>>8) / 255.0
}

// PrepareBatch laedt Bilder, skaliert auf size x size, normalisiert mit
// ImageNet-Werten und stapelt sie zu einem NCHW Batch
func PrepareBatch(paths []string, size int) (model.ImageBatch, error) {
	if len(paths) == 0 {
		return model.ImageBatch{}, fmt.Errorf("no images given")
	}

	batch := model.ImageBatch{N: len(paths), C: 3, H: size, W: size}
	batch.Data = make([]float32, 0, batch.N*3*size*size)

	for _, path := range paths {
		img, err := LoadImage(path)
		if err != nil {
			return model.ImageBatch{}, fmt.Errorf("%s: %w", path, err)
		}
		img, err = ResizeSquare(img, size)
		if err != nil {
			return model.ImageBatch{}, err
		}
		batch.Data = append(batch.Data, NormalizeCHW(img, ImageNetMean, ImageNetStd)...)
	}

	return batch, nil
}
