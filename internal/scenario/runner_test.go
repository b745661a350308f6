package scenario

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"inferclient/internal/client"
	"inferclient/internal/mockserver"
	"inferclient/internal/tensor"
	"inferclient/pkg/types"
)

func newMockClient(t *testing.T) *client.Client {
	t.Helper()
	srv := httptest.NewServer(mockserver.NewMux(mockserver.NewDefaultRepository(), mockserver.Options{}))
	t.Cleanup(srv.Close)
	c, err := client.New(client.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestBuiltinsAgainstMockServer(t *testing.T) {
	c := newMockClient(t)
	for _, name := range Names() {
		s, _ := Lookup(name)
		var out bytes.Buffer
		r := &Runner{Client: c, Out: &out}
		if err := r.Run(context.Background(), s); err != nil {
			t.Fatalf("%s: %v\n%s", name, err, out.String())
		}
		if !strings.Contains(out.String(), "PASS: "+name) {
			t.Fatalf("%s: missing PASS line in\n%s", name, out.String())
		}
		if !strings.Contains(out.String(), "Request for unknown model") {
			t.Fatalf("%s: expected unknown model error to be printed", name)
		}
	}
}

func TestBuiltins_CompressedRequests(t *testing.T) {
	c := newMockClient(t)
	s, ok := Lookup("diabetes")
	if !ok {
		t.Fatalf("diabetes scenario missing")
	}
	var out bytes.Buffer
	r := &Runner{Client: c, Out: &out, Options: Options{RequestCompression: "gzip", ResponseCompression: "deflate"}}
	if err := r.Run(context.Background(), s); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
}

func TestLookup(t *testing.T) {
	if got := Names(); len(got) != 2 || got[0] != "diabetes" || got[1] != "scikit-learn" {
		t.Fatalf("names=%v", got)
	}
	if _, ok := Lookup("resnet"); ok {
		t.Fatalf("unexpected scenario")
	}
	s, _ := Lookup("diabetes")
	inputs, err := s.Inputs()
	if err != nil || len(inputs) != 10 || inputs[9].Name != "input__9" {
		t.Fatalf("inputs=%v err=%v", inputs, err)
	}
}

// fakeClient answers every inference with the requested outputs, or the
// configured error for WrongModelName.
type fakeClient struct {
	wrongModelErr error
	stats         error
}

func (f *fakeClient) Infer(_ context.Context, model string, _ []*tensor.Tensor, opts *client.InferOptions) (*client.Response, error) {
	if model == WrongModelName {
		return &client.Response{ModelName: model}, f.wrongModelErr
	}
	label, _ := tensor.New("label", tensor.Int64, []int64{1, 1}, []int64{1})
	probs, _ := tensor.New("probabilities", tensor.FP64, []int64{1, 2}, []float64{0.4, 0.6})
	return &client.Response{ModelName: model, ModelVersion: "1", Outputs: []*tensor.Tensor{label, probs}}, nil
}

func (f *fakeClient) ModelStatistics(_ context.Context, model string, _ *client.StatsOptions) (*types.ModelStatistics, error) {
	if f.stats != nil {
		return nil, f.stats
	}
	return &types.ModelStatistics{Name: model, Version: "1", InferenceCount: 1234, ExecutionCount: 2}, nil
}

func TestRun_Failures(t *testing.T) {
	s, _ := Lookup("scikit-learn")
	cases := []struct {
		name  string
		fc    *fakeClient
		check func(error) bool
	}{
		{
			name:  "unknown model accepted",
			fc:    &fakeClient{},
			check: func(err error) bool { return errors.Is(err, ErrUnknownModelAccepted) },
		},
		{
			name:  "wrong error text",
			fc:    &fakeClient{wrongModelErr: client.ServerError{Message: "boom", StatusCode: 500}},
			check: func(err error) bool { return errors.Is(err, ErrUnexpectedError) },
		},
		{
			name: "statistics count",
			fc: &fakeClient{
				wrongModelErr: client.ModelNotFoundError{Message: "Request for unknown model: 'wrong_model_name' is not found"},
				stats:         client.StatisticsCountError{Model: s.Model, Count: 2},
			},
			check: client.IsStatisticsCount,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := (&Runner{Client: tc.fc, Out: &out}).Run(context.Background(), s)
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRun_PassWithFake(t *testing.T) {
	s, _ := Lookup("scikit-learn")
	fc := &fakeClient{wrongModelErr: client.ModelNotFoundError{Message: "Request for unknown model: 'wrong_model_name' is not found"}}
	var out bytes.Buffer
	if err := (&Runner{Client: fc, Out: &out}).Run(context.Background(), s); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "1,234 inferences") || !strings.Contains(out.String(), "last never") {
		t.Fatalf("unexpected statistics output:\n%s", out.String())
	}
}
