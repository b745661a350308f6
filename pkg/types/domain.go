package types

// StatisticDuration is a count of events and the cumulative time spent in them.
type StatisticDuration struct {
	Count uint64 `json:"count"`
	// Cumulative duration in nanoseconds.
	Ns uint64 `json:"ns"`
}

// InferStatistics breaks down where inference time was spent.
type InferStatistics struct {
	Success       StatisticDuration `json:"success"`
	Fail          StatisticDuration `json:"fail"`
	Queue         StatisticDuration `json:"queue"`
	ComputeInput  StatisticDuration `json:"compute_input"`
	ComputeInfer  StatisticDuration `json:"compute_infer"`
	ComputeOutput StatisticDuration `json:"compute_output"`
	CacheHit      StatisticDuration `json:"cache_hit"`
	CacheMiss     StatisticDuration `json:"cache_miss"`
}

// BatchStatistics aggregates executions of one batch size.
type BatchStatistics struct {
	BatchSize     uint64            `json:"batch_size"`
	ComputeInput  StatisticDuration `json:"compute_input"`
	ComputeInfer  StatisticDuration `json:"compute_infer"`
	ComputeOutput StatisticDuration `json:"compute_output"`
}

// ModelStatistics is the server-side aggregate for one model version.
type ModelStatistics struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// Time of the last inference in milliseconds since the epoch.
	LastInference uint64 `json:"last_inference"`
	// Number of inferences, counting each batch element.
	InferenceCount uint64 `json:"inference_count"`
	// Number of model executions.
	ExecutionCount uint64            `json:"execution_count"`
	InferenceStats InferStatistics   `json:"inference_stats"`
	BatchStats     []BatchStatistics `json:"batch_stats,omitempty"`
}

// InferenceStatisticsResponse is returned by the stats endpoints.
type InferenceStatisticsResponse struct {
	ModelStats []ModelStatistics `json:"model_stats"`
}

// TensorMetadata describes a declared model input or output. A dimension of
// -1 accepts any positive size.
type TensorMetadata struct {
	Name     string  `json:"name"`
	Datatype string  `json:"datatype"`
	Shape    []int64 `json:"shape"`
}

// ModelMetadata is returned by GET /v2/models/{model}.
type ModelMetadata struct {
	Name     string           `json:"name"`
	Versions []string         `json:"versions,omitempty"`
	Platform string           `json:"platform"`
	Inputs   []TensorMetadata `json:"inputs"`
	Outputs  []TensorMetadata `json:"outputs"`
}

// ServerMetadata is returned by GET /v2.
type ServerMetadata struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Extensions []string `json:"extensions"`
}
