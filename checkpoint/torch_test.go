// torch_test.go - Tests fuer den PyTorch-Reader
package checkpoint

import (
	"errors"
	"testing"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// floatTensor erstellt einen zusammenhaengenden pytorch.Tensor
func floatTensor(size []int, data []float32) *pytorch.Tensor {
	stride := make([]int, len(size))
	s := 1
	for d := len(size) - 1; d >= 0; d-- {
		stride[d] = s
		s *= size[d]
	}
	return &pytorch.Tensor{
		Source: &pytorch.FloatStorage{BaseStorage: pytorch.BaseStorage{Size: len(data)}, Data: data},
		Size:   size,
		Stride: stride,
	}
}

func TestTorchFileStructure(t *testing.T) {
	state := types.NewOrderedDict()
	state.Set("head.1.bias", floatTensor([]int{3}, []float32{1, 2, 3}))

	head := types.NewOrderedDict()
	head.Set("state_dict", state)

	heads := types.NewOrderedDict()
	heads.Set("primary", head)

	root := types.NewDict()
	root.Set("heads", heads)
	root.Set("epoch", 12)

	f, err := torchFile("fake.ckpt", root)
	if err != nil {
		t.Fatal(err)
	}

	sd, ok := f.Heads["primary"]
	if !ok {
		t.Fatalf("head primary fehlt, vorhanden: %v", f.HeadNames())
	}
	tensor, ok := sd["head.1.bias"]
	if !ok {
		t.Fatal("head.1.bias fehlt im state_dict")
	}
	if len(tensor.Data) != 3 || tensor.Data[1] != 2 {
		t.Errorf("unerwartete Daten %v", tensor.Data)
	}
}

func TestTorchFileMissingHeads(t *testing.T) {
	root := types.NewDict()
	root.Set("state_dict", types.NewOrderedDict())

	_, err := torchFile("fake.ckpt", root)
	if !errors.Is(err, ErrMissingHeads) {
		t.Fatalf("erwartet ErrMissingHeads, bekommen %v", err)
	}
}

func TestTorchFileSkipsNonTensorEntries(t *testing.T) {
	state := types.NewOrderedDict()
	state.Set("weight", floatTensor([]int{2}, []float32{1, 2}))
	state.Set("num_batches_tracked", 512)

	head := types.NewDict()
	head.Set("state_dict", state)

	heads := types.NewDict()
	heads.Set("model1", head)

	root := types.NewDict()
	root.Set("heads", heads)

	f, err := torchFile("fake.ckpt", root)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(f.Heads["model1"]); got != 1 {
		t.Errorf("erwartet 1 Tensor, bekommen %d", got)
	}
}

func TestFromTorchTensorContiguous(t *testing.T) {
	tensor := floatTensor([]int{2, 3}, []float32{0, 1, 2, 3, 4, 5})

	got, err := fromTorchTensor(tensor)
	if err != nil {
		t.Fatal(err)
	}
	if got.Shape[0] != 2 || got.Shape[1] != 3 {
		t.Errorf("unerwartete Form %v", got.Shape)
	}
	for i, want := range []float32{0, 1, 2, 3, 4, 5} {
		if got.Data[i] != want {
			t.Errorf("Data[%d] = %g, erwartet %g", i, got.Data[i], want)
		}
	}
}

func TestFromTorchTensorTransposed(t *testing.T) {
	// Transponierte Sicht einer [2,3] Matrix: Size [3,2], Stride [1,3]
	tensor := &pytorch.Tensor{
		Source: &pytorch.FloatStorage{BaseStorage: pytorch.BaseStorage{Size: 6}, Data: []float32{0, 1, 2, 3, 4, 5}},
		Size:   []int{3, 2},
		Stride: []int{1, 3},
	}

	got, err := fromTorchTensor(tensor)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 3, 1, 4, 2, 5}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Errorf("Data[%d] = %g, erwartet %g", i, got.Data[i], want[i])
		}
	}
}

func TestFromTorchTensorOffset(t *testing.T) {
	tensor := &pytorch.Tensor{
		Source:        &pytorch.FloatStorage{BaseStorage: pytorch.BaseStorage{Size: 5}, Data: []float32{9, 9, 1, 2, 3}},
		StorageOffset: 2,
		Size:          []int{3},
		Stride:        []int{1},
	}

	got, err := fromTorchTensor(tensor)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data[0] != 1 || got.Data[2] != 3 {
		t.Errorf("unerwartete Daten %v", got.Data)
	}
}

func TestFromTorchTensorDoubleStorage(t *testing.T) {
	tensor := &pytorch.Tensor{
		Source: &pytorch.DoubleStorage{BaseStorage: pytorch.BaseStorage{Size: 2}, Data: []float64{0.5, -1.5}},
		Size:   []int{2},
		Stride: []int{1},
	}

	got, err := fromTorchTensor(tensor)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data[0] != 0.5 || got.Data[1] != -1.5 {
		t.Errorf("unerwartete Daten %v", got.Data)
	}
}

func TestIsContiguous(t *testing.T) {
	cases := []struct {
		size, stride []int
		want         bool
	}{
		{[]int{2, 3}, []int{3, 1}, true},
		{[]int{3, 2}, []int{1, 3}, false},
		{[]int{5}, []int{1}, true},
		{[]int{1, 4}, []int{99, 1}, true},
	}
	for _, c := range cases {
		if got := isContiguous(c.size, c.stride); got != c.want {
			t.Errorf("isContiguous(%v, %v) = %v", c.size, c.stride, got)
		}
	}
}
