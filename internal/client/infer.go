package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"inferclient/internal/tensor"
	"inferclient/internal/wire"
	"inferclient/pkg/types"
)

// RequestedOutput selects an output and how it should be returned.
type RequestedOutput struct {
	Name string
	// BinaryData asks the server to return the output in the binary section.
	BinaryData bool
	// ClassCount > 0 requests the top-N classification form of the output.
	ClassCount int
}

// Outputs is a shorthand for requesting outputs by name with defaults.
func Outputs(names ...string) []RequestedOutput {
	out := make([]RequestedOutput, 0, len(names))
	for _, n := range names {
		out = append(out, RequestedOutput{Name: n})
	}
	return out
}

// InferOptions are the optional parts of an inference call. The zero value
// asks for the server's default outputs without compression.
type InferOptions struct {
	ModelVersion string
	// RequestID is echoed by the server; a uuid is used when empty.
	RequestID string
	// Outputs nil means every output the model produces by default.
	Outputs []RequestedOutput
	// Headers are forwarded verbatim.
	Headers map[string]string
	// RequestCompression and ResponseCompression take "", "none", "gzip"
	// or "deflate".
	RequestCompression  string
	ResponseCompression string
	Parameters          types.Parameters
	// BinaryInputs sends input data with the binary data extension.
	BinaryInputs bool
	// Timeout overrides the client timeout for this call.
	Timeout time.Duration
}

// Response is a decoded inference result.
type Response struct {
	ModelName    string
	ModelVersion string
	ID           string
	Parameters   types.Parameters
	Outputs      []*tensor.Tensor
}

// Output returns the output tensor called name.
func (r *Response) Output(name string) (*tensor.Tensor, error) {
	for _, o := range r.Outputs {
		if o.Name == name {
			return o, nil
		}
	}
	return nil, fmt.Errorf("response has no output %q (have %s)", name, strings.Join(r.OutputNames(), ", "))
}

// OutputNames lists output names in response order.
func (r *Response) OutputNames() []string {
	names := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		names[i] = o.Name
	}
	return names
}

// String renders the response the way the server sent it, for printing.
func (r *Response) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model=%s version=%s id=%s", r.ModelName, r.ModelVersion, r.ID)
	for _, o := range r.Outputs {
		data, err := o.MarshalData()
		if err != nil {
			data = []byte("?")
		}
		fmt.Fprintf(&b, "\n  %s %s %v %s", o.Name, o.Datatype, o.Shape, data)
	}
	return b.String()
}

// Infer runs one inference against model.
func (c *Client) Infer(ctx context.Context, model string, inputs []*tensor.Tensor, opts *InferOptions) (*Response, error) {
	if opts == nil {
		opts = &InferOptions{}
	}
	if strings.TrimSpace(model) == "" {
		return nil, invalidArg("model name is required")
	}
	if len(inputs) == 0 {
		return nil, invalidArg("at least one input tensor is required")
	}
	if err := wire.ValidateAlgorithm(opts.RequestCompression); err != nil {
		return nil, fmt.Errorf("%w: request compression: %v", ErrInvalidArgument, err)
	}
	if err := wire.ValidateAlgorithm(opts.ResponseCompression); err != nil {
		return nil, fmt.Errorf("%w: response compression: %v", ErrInvalidArgument, err)
	}

	req := types.InferRequest{ID: opts.RequestID, Parameters: opts.Parameters}
	if req.ID == "" {
		req.ID = c.newID()
	}
	seen := make(map[string]bool, len(inputs))
	var chunks [][]byte
	for _, t := range inputs {
		if t == nil {
			return nil, invalidArg("nil input tensor")
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if seen[t.Name] {
			return nil, invalidArg("duplicate input %q", t.Name)
		}
		seen[t.Name] = true
		in, chunk, err := wire.EncodeInput(t, opts.BinaryInputs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		req.Inputs = append(req.Inputs, in)
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
	}
	binaryOut := false
	for _, o := range opts.Outputs {
		if strings.TrimSpace(o.Name) == "" {
			return nil, invalidArg("requested output without a name")
		}
		ro := types.RequestOutput{Name: o.Name}
		if o.BinaryData || o.ClassCount > 0 {
			ro.Parameters = types.Parameters{}
			if o.BinaryData {
				ro.Parameters[wire.ParamBinaryData] = true
				binaryOut = true
			}
			if o.ClassCount > 0 {
				ro.Parameters[wire.ParamClassification] = o.ClassCount
			}
		}
		req.Outputs = append(req.Outputs, ro)
	}

	hdr, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrInvalidArgument, err)
	}
	header := headerOf(opts.Headers)
	if header == nil {
		header = http.Header{}
	}
	body := hdr
	contentType := "application/json"
	if len(chunks) > 0 || binaryOut {
		body = wire.Join(hdr, chunks)
		header.Set(wire.HeaderContentLength, strconv.Itoa(len(hdr)))
		contentType = "application/octet-stream"
	}

	res, err := c.do(ctx, call{
		op:              "infer",
		method:          http.MethodPost,
		path:            modelPath(model, opts.ModelVersion) + "/infer",
		model:           model,
		body:            body,
		contentType:     contentType,
		header:          header,
		reqCompression:  opts.RequestCompression,
		respCompression: opts.ResponseCompression,
		timeout:         opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return decodeResponse(res)
}

func decodeResponse(res result) (*Response, error) {
	hdr, tail, err := wire.Split(res.body, res.header.Get(wire.HeaderContentLength))
	if err != nil {
		return nil, ServerError{Message: err.Error(), StatusCode: res.status}
	}
	var ir types.InferResponse
	if err := json.Unmarshal(hdr, &ir); err != nil {
		return nil, ServerError{Message: fmt.Sprintf("decode infer response: %v", err), StatusCode: res.status}
	}
	out := &Response{
		ModelName:    ir.ModelName,
		ModelVersion: ir.ModelVersion,
		ID:           ir.ID,
		Parameters:   ir.Parameters,
	}
	rd := wire.NewTensorReader(tail)
	for _, o := range ir.Outputs {
		t, err := rd.Read(o.Name, o.Datatype, o.Shape, o.Parameters, o.Data)
		if err != nil {
			return nil, ServerError{Message: fmt.Sprintf("decode output: %v", err), StatusCode: res.status}
		}
		out.Outputs = append(out.Outputs, t)
	}
	return out, nil
}

// modelPath is /v2/models/{model}[/versions/{version}].
func modelPath(model, version string) string {
	p := "/v2/models/" + url.PathEscape(model)
	if version != "" {
		p += "/versions/" + url.PathEscape(version)
	}
	return p
}
