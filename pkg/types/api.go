package types

import "encoding/json"

// Parameters carries protocol extension values ("binary_data_size",
// "binary_data", "classification", ...) attached to requests, responses or
// individual tensors.
type Parameters map[string]any

// RequestInput is one named input tensor of an inference request.
type RequestInput struct {
	// Input name as declared by the model.
	Name string `json:"name"`
	// Tensor shape; every dimension must be positive.
	Shape []int64 `json:"shape"`
	// Element datatype.
	Datatype string `json:"datatype"`
	// Optional per-input parameters, e.g. binary_data_size.
	Parameters Parameters `json:"parameters,omitempty"`
	// Flat row-major element values. Omitted when the data is sent in
	// the binary section of the body.
	Data json.RawMessage `json:"data,omitempty"`
}

// RequestOutput names an output the caller wants returned.
type RequestOutput struct {
	// Output name as declared by the model.
	Name string `json:"name"`
	// Optional per-output parameters, e.g. binary_data.
	Parameters Parameters `json:"parameters,omitempty"`
}

// InferRequest is the JSON body (or JSON header, with the binary data
// extension) of POST /v2/models/{model}/infer.
type InferRequest struct {
	// Optional request identifier echoed back by the server.
	ID string `json:"id,omitempty"`
	// Optional request parameters.
	Parameters Parameters `json:"parameters,omitempty"`
	// Input tensors in caller order.
	Inputs []RequestInput `json:"inputs"`
	// Requested outputs. When omitted the server returns its default set.
	Outputs []RequestOutput `json:"outputs,omitempty"`
}

// ResponseOutput is one named output tensor of an inference response.
type ResponseOutput struct {
	Name     string  `json:"name"`
	Shape    []int64 `json:"shape"`
	Datatype string  `json:"datatype"`
	// Optional per-output parameters, e.g. binary_data_size.
	Parameters Parameters `json:"parameters,omitempty"`
	// Flat row-major element values; absent for binary outputs.
	Data json.RawMessage `json:"data,omitempty"`
}

// InferResponse is the JSON body (or JSON header) returned by the infer endpoint.
type InferResponse struct {
	ModelName    string           `json:"model_name"`
	ModelVersion string           `json:"model_version,omitempty"`
	ID           string           `json:"id,omitempty"`
	Parameters   Parameters       `json:"parameters,omitempty"`
	Outputs      []ResponseOutput `json:"outputs"`
}

// ErrorResponse is the error payload of every v2 endpoint.
type ErrorResponse struct {
	// Error message.
	Error string `json:"error"`
}
