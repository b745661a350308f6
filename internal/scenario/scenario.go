// Package scenario holds the reference client flows: infer with selected
// outputs, check the model statistics, infer with the default outputs and
// make sure an unknown model is reported as such.
package scenario

import (
	"fmt"
	"sort"

	"inferclient/internal/tensor"
)

// WrongModelName is the model used to provoke the unknown model error.
const WrongModelName = "wrong_model_name"

// Scenario describes one model exercise.
type Scenario struct {
	Name  string
	Model string
	// Inputs builds fresh input tensors for each request.
	Inputs func() ([]*tensor.Tensor, error)
	// Outputs are requested explicitly in the first request and expected
	// in the default response of the second.
	Outputs []string
}

// SklearnInput is the feature row sent to the scikit-learn model.
var SklearnInput = []float64{-1.6685316675305422, -1.2990134593088984, 0.27464720361244455, -0.6036204360190907}

// DiabetesValue is sent on each of the ten diabetes inputs.
const DiabetesValue = 0.27464720361244455

var builtins = map[string]Scenario{
	"scikit-learn": {
		Name:  "scikit-learn",
		Model: "scikit_learn_model",
		Inputs: func() ([]*tensor.Tensor, error) {
			x, err := tensor.New("X", tensor.FP64, []int64{1, 4}, SklearnInput)
			if err != nil {
				return nil, err
			}
			return []*tensor.Tensor{x}, nil
		},
		Outputs: []string{"label", "probabilities"},
	},
	"diabetes": {
		Name:  "diabetes",
		Model: "diabetes_example",
		Inputs: func() ([]*tensor.Tensor, error) {
			inputs := make([]*tensor.Tensor, 0, 10)
			for i := 0; i < 10; i++ {
				t, err := tensor.New(fmt.Sprintf("input__%d", i), tensor.FP32, []int64{1, 1}, []float32{DiabetesValue})
				if err != nil {
					return nil, err
				}
				inputs = append(inputs, t)
			}
			return inputs, nil
		},
		Outputs: []string{"output__0"},
	},
}

// Lookup returns the built-in scenario called name.
func Lookup(name string) (Scenario, bool) {
	s, ok := builtins[name]
	return s, ok
}

// Names lists the built-in scenarios.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for n := range builtins {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
