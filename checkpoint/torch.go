// torch.go - PyTorch-Pickle Checkpoint Reader
//
// Liest torch.save Dateien ueber gopickle. Python-Dicts kommen als
// *types.Dict an, collections.OrderedDict (state_dicts) als
// *types.OrderedDict; beide werden ueber dictGet/dictItems vereinheitlicht.
package checkpoint

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// ReadTorch liest einen PyTorch-Checkpoint (.ckpt, .pt, .pth)
func ReadTorch(path string) (*File, error) {
	slog.Info("reading checkpoint", "path", path)

	root, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return torchFile(path, root)
}

// torchFile baut die File-Struktur aus dem entpickelten Objekt
func torchFile(path string, root any) (*File, error) {
	headsObj, ok := dictGet(root, "heads")
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeads, path)
	}

	f := &File{Path: path, Heads: make(map[string]StateDict)}

	for headName, headObj := range dictItems(headsObj) {
		sd := make(StateDict)

		stateObj, ok := dictGet(headObj, "state_dict")
		if ok {
			for paramName, value := range dictItems(stateObj) {
				tensor, ok := value.(*pytorch.Tensor)
				if !ok {
					slog.Warn("skipping non-tensor entry", "head", headName, "param", paramName)
					continue
				}
				t, err := fromTorchTensor(tensor)
				if err != nil {
					return nil, fmt.Errorf("head %s param %s: %w", headName, paramName, err)
				}
				sd[paramName] = t
			}
		}

		f.Heads[headName] = sd
	}

	return f, nil
}

// dictGet liest einen String-Key aus *types.Dict oder *types.OrderedDict
func dictGet(container any, key string) (any, bool) {
	switch d := container.(type) {
	case *types.Dict:
		return d.Get(key)
	case *types.OrderedDict:
		return d.Get(key)
	default:
		return nil, false
	}
}

// dictItems liefert alle String-Keys mit Werten aus einem Dict-Container
func dictItems(container any) map[string]any {
	items := make(map[string]any)
	switch d := container.(type) {
	case *types.Dict:
		for _, entry := range *d {
			if k, ok := entry.Key.(string); ok {
				items[k] = entry.Value
			}
		}
	case *types.OrderedDict:
		for k, entry := range d.Map {
			if name, ok := k.(string); ok {
				items[name] = entry.Value
			}
		}
	}
	return items
}

// fromTorchTensor normalisiert einen pytorch.Tensor nach float32.
// Nicht-zusammenhaengende Tensoren werden ueber die Strides eingesammelt.
func fromTorchTensor(t *pytorch.Tensor) (Tensor, error) {
	storage, err := storageFloats(t.Source)
	if err != nil {
		return Tensor{}, err
	}

	shape := make([]int, len(t.Size))
	copy(shape, t.Size)

	out := Tensor{Shape: shape}
	n := out.Elements()
	out.Data = make([]float32, n)

	if isContiguous(t.Size, t.Stride) {
		if t.StorageOffset+n > len(storage) {
			return Tensor{}, fmt.Errorf("storage too small: need %d, have %d", t.StorageOffset+n, len(storage))
		}
		copy(out.Data, storage[t.StorageOffset:t.StorageOffset+n])
		return out, nil
	}

	// Gather ueber Strides
	idx := make([]int, len(t.Size))
	for i := range n {
		offset := t.StorageOffset
		for d, j := range idx {
			offset += j * t.Stride[d]
		}
		if offset >= len(storage) {
			return Tensor{}, fmt.Errorf("stride walk out of storage bounds at %d", offset)
		}
		out.Data[i] = storage[offset]

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < t.Size[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

// isContiguous prueft auf row-major Standard-Strides
func isContiguous(size, stride []int) bool {
	expected := 1
	for d := len(size) - 1; d >= 0; d-- {
		if size[d] != 1 && stride[d] != expected {
			return false
		}
		expected *= size[d]
	}
	return true
}

// storageFloats normalisiert den Storage-Inhalt nach float32
func storageFloats(source pytorch.StorageInterface) ([]float32, error) {
	switch s := source.(type) {
	case *pytorch.FloatStorage:
		return s.Data, nil
	case *pytorch.HalfStorage:
		return s.Data, nil
	case *pytorch.BFloat16Storage:
		return s.Data, nil
	case *pytorch.DoubleStorage:
		data := make([]float32, len(s.Data))
		for i, v := range s.Data {
			if math.IsInf(v, 0) || v > math.MaxFloat32 || v < -math.MaxFloat32 {
				return nil, fmt.Errorf("float64 value %g out of float32 range", v)
			}
			data[i] = float32(v)
		}
		return data, nil
	case *pytorch.LongStorage:
		data := make([]float32, len(s.Data))
		for i, v := range s.Data {
			data[i] = float32(v)
		}
		return data, nil
	case *pytorch.IntStorage:
		data := make([]float32, len(s.Data))
		for i, v := range s.Data {
			data[i] = float32(v)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %T", source)
	}
}
