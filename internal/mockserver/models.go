package mockserver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"inferclient/internal/tensor"
	"inferclient/pkg/types"
)

// Model is a servable model. Infer receives inputs already checked against
// Metadata and returns every declared output in declaration order.
type Model interface {
	Metadata() types.ModelMetadata
	Infer(ctx context.Context, inputs map[string]*tensor.Tensor) ([]*tensor.Tensor, error)
}

// Names of the built-in models.
const (
	SklearnModelName  = "scikit_learn_model"
	DiabetesModelName = "diabetes_example"
)

// Logistic weights of the scikit-learn stand-in.
var (
	sklearnWeights = [4]float64{0.9, -1.1, 0.6, 0.3}
	sklearnBias    = 0.4
)

type sklearnModel struct{}

// NewSklearnModel returns a deterministic binary classifier taking X FP64
// [-1,4] and producing label INT64 [-1] and probabilities FP64 [-1,2].
func NewSklearnModel() Model { return sklearnModel{} }

func (sklearnModel) Metadata() types.ModelMetadata {
	return types.ModelMetadata{
		Name:     SklearnModelName,
		Platform: "sklearn",
		Inputs:   []types.TensorMetadata{{Name: "X", Datatype: "FP64", Shape: []int64{-1, 4}}},
		Outputs: []types.TensorMetadata{
			{Name: "label", Datatype: "INT64", Shape: []int64{-1}},
			{Name: "probabilities", Datatype: "FP64", Shape: []int64{-1, 2}},
		},
	}
}

func (sklearnModel) Infer(_ context.Context, in map[string]*tensor.Tensor) ([]*tensor.Tensor, error) {
	x, err := in["X"].Float64s()
	if err != nil {
		return nil, err
	}
	n := len(x) / 4
	labels := make([]int64, n)
	probs := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		z := sklearnBias
		for j, w := range sklearnWeights {
			z += w * x[i*4+j]
		}
		p := 1 / (1 + math.Exp(-z))
		if p >= 0.5 {
			labels[i] = 1
		}
		probs = append(probs, 1-p, p)
	}
	label, err := tensor.New("label", tensor.Int64, []int64{int64(n)}, labels)
	if err != nil {
		return nil, err
	}
	prob, err := tensor.New("probabilities", tensor.FP64, []int64{int64(n), 2}, probs)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{label, prob}, nil
}

// DiabetesInputs is the number of scalar features of the diabetes model.
const DiabetesInputs = 10

var (
	diabetesCoef = [DiabetesInputs]float64{-10.0, -239.8, 519.8, 324.4, -792.2, 476.7, 101.0, 177.1, 751.3, 67.6}
	diabetesBias = 152.1
)

type diabetesModel struct{}

// NewDiabetesModel returns a linear regressor with ten FP32 [-1,1] inputs
// input__0..input__9 and one FP32 [-1,1] output output__0.
func NewDiabetesModel() Model { return diabetesModel{} }

// DiabetesInputName is the name of the i-th diabetes input.
func DiabetesInputName(i int) string { return fmt.Sprintf("input__%d", i) }

func (diabetesModel) Metadata() types.ModelMetadata {
	md := types.ModelMetadata{
		Name:     DiabetesModelName,
		Platform: "xgboost",
		Outputs:  []types.TensorMetadata{{Name: "output__0", Datatype: "FP32", Shape: []int64{-1, 1}}},
	}
	for i := 0; i < DiabetesInputs; i++ {
		md.Inputs = append(md.Inputs, types.TensorMetadata{Name: DiabetesInputName(i), Datatype: "FP32", Shape: []int64{-1, 1}})
	}
	return md
}

func (diabetesModel) Infer(_ context.Context, in map[string]*tensor.Tensor) ([]*tensor.Tensor, error) {
	var out []float32
	for i := 0; i < DiabetesInputs; i++ {
		v, err := in[DiabetesInputName(i)].Float32s()
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make([]float32, len(v))
			for r := range out {
				out[r] = float32(diabetesBias)
			}
		}
		if len(v) != len(out) {
			return nil, invalidInput("all inputs of model '%s' must have the same batch size", DiabetesModelName)
		}
		for r := range v {
			out[r] += float32(diabetesCoef[i]) * v[r]
		}
	}
	t, err := tensor.New("output__0", tensor.FP32, []int64{int64(len(out)), 1}, out)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{t}, nil
}

type echoModel struct{ md types.ModelMetadata }

// NewEchoModel serves md by copying the i-th input to the i-th output.
// Inputs and outputs must pair up by datatype.
func NewEchoModel(md types.ModelMetadata) (Model, error) {
	if md.Name == "" {
		return nil, fmt.Errorf("echo model needs a name")
	}
	if len(md.Inputs) == 0 || len(md.Inputs) != len(md.Outputs) {
		return nil, fmt.Errorf("echo model %s: %d inputs and %d outputs, need the same non-zero count", md.Name, len(md.Inputs), len(md.Outputs))
	}
	for i, in := range md.Inputs {
		dt, err := tensor.ParseDatatype(in.Datatype)
		if err != nil {
			return nil, fmt.Errorf("echo model %s: input %s: %w", md.Name, in.Name, err)
		}
		if out := md.Outputs[i]; !strings.EqualFold(out.Datatype, dt.String()) {
			return nil, fmt.Errorf("echo model %s: output %s is %s, input %s is %s", md.Name, out.Name, out.Datatype, in.Name, in.Datatype)
		}
	}
	if md.Platform == "" {
		md.Platform = "echo"
	}
	return echoModel{md: md}, nil
}

func (m echoModel) Metadata() types.ModelMetadata { return m.md }

func (m echoModel) Infer(_ context.Context, in map[string]*tensor.Tensor) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(m.md.Outputs))
	for i, o := range m.md.Outputs {
		src := in[m.md.Inputs[i].Name]
		t, err := tensor.FromBinary(o.Name, src.Datatype, src.Shape, src.Binary())
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
