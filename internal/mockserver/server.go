// Package mockserver is an in-process KServe v2 / Triton HTTP server that
// hosts deterministic models. It backs the client tests and the
// serve-mock command.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferclient/internal/logging"
	"inferclient/internal/tensor"
	"inferclient/internal/wire"
	"inferclient/pkg/types"
)

// ServerName and ServerVersion are reported by GET /v2.
const (
	ServerName    = "inferclient-mock"
	ServerVersion = "2.0.0"
)

// DefaultMaxBodyBytes limits request bodies when Options leaves it unset.
const DefaultMaxBodyBytes int64 = 64 << 20

// CORSOptions enables CORS for browser callers. Disabled by default.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Options configure NewMux.
type Options struct {
	// Logger defaults to a disabled logger. Its level caps LogLevel.
	Logger *zerolog.Logger
	// LogLevel is the default per-request level, overridable with ?log= or
	// X-Log-Level.
	LogLevel     logging.Level
	MaxBodyBytes int64
	// InferTimeout bounds model execution; zero means no extra timeout.
	InferTimeout time.Duration
	// BaseContext is canceled on shutdown to abort running inferences.
	BaseContext context.Context
	CORS        CORSOptions
}

type server struct {
	repo *Repository
	opts Options
	log  zerolog.Logger
}

// NewMux builds the router serving repo.
func NewMux(repo *Repository, opts Options) http.Handler {
	s := &server{repo: repo, opts: opts, log: zerolog.Nop()}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	if s.opts.MaxBodyBytes <= 0 {
		s.opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.opts.BaseContext == nil {
		s.opts.BaseContext = context.Background()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(opts.CORS.AllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(opts.CORS.AllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			AllowedHeaders: orDefault(opts.CORS.AllowedHeaders, []string{"Content-Type", "Content-Encoding", "Accept-Encoding", wire.HeaderContentLength, "X-Log-Level"}),
			ExposedHeaders: []string{wire.HeaderContentLength},
		}))
	}
	r.Use(middleware.Compress(5, "application/json", "application/octet-stream"))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/v2", s.handleServerMetadata)
	r.Get("/v2/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/v2/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.repo.Ready() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.Get("/v2/models/stats", s.handleStats)
	r.Route("/v2/models/{model}", func(r chi.Router) {
		r.Get("/", s.handleModelMetadata)
		r.Get("/ready", s.handleModelReady)
		r.Get("/stats", s.handleStats)
		r.Post("/infer", s.handleInfer)
		r.Route("/versions/{version}", func(r chi.Router) {
			r.Get("/", s.handleModelMetadata)
			r.Get("/ready", s.handleModelReady)
			r.Get("/stats", s.handleStats)
			r.Post("/infer", s.handleInfer)
		})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

func orDefault(v, d []string) []string {
	if len(v) == 0 {
		return d
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

func (s *server) handleServerMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.ServerMetadata{
		Name:       ServerName,
		Version:    ServerVersion,
		Extensions: []string{"binary_tensor_data", "classification", "statistics"},
	})
}

func (s *server) handleModelMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := s.repo.Metadata(chi.URLParam(r, "model"), chi.URLParam(r, "version"))
	if err != nil {
		writeJSONError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, md)
}

func (s *server) handleModelReady(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.repo.resolve(chi.URLParam(r, "model"), chi.URLParam(r, "version")); err != nil {
		writeJSONError(w, statusOf(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.repo.Statistics(chi.URLParam(r, "model"), chi.URLParam(r, "version"))
	if err != nil {
		writeJSONError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, st)
}

func (s *server) handleInfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lvl := requestLogLevel(r, s.opts.LogLevel)
	model := chi.URLParam(r, "model")
	s.event(r, lvl, false).Str("model", model).Msg("infer start")

	status, err := s.infer(w, r, model, start, lvl)
	countInference(model, err)
	if err != nil {
		// Canceled by the caller or by shutdown: nobody to answer.
		if r.Context().Err() != nil || s.opts.BaseContext.Err() != nil {
			return
		}
		writeJSONError(w, status, err.Error())
		if lvl >= logging.LevelError {
			s.log.Error().Str("model", model).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("infer end")
		}
		return
	}
	s.event(r, lvl, false).Str("model", model).Int("status", status).Dur("dur", time.Since(start)).Msg("infer end")
}

// infer writes a successful response itself and returns the status to use
// for errors otherwise.
func (s *server) infer(w http.ResponseWriter, r *http.Request, model string, start time.Time, lvl logging.Level) (int, error) {
	sm, version, err := s.repo.resolve(model, chi.URLParam(r, "version"))
	if err != nil {
		return statusOf(err), err
	}
	fail := func(status int, err error) (int, error) {
		s.repo.record(sm, version, execution{failed: true, total: time.Since(start)})
		return status, err
	}

	req, inputs, err := s.decodeRequest(w, r, sm)
	if err != nil {
		return fail(statusOf(err), err)
	}
	s.event(r, lvl, true).Str("model", model).Str("id", req.ID).Int("inputs", len(inputs)).Msg("request decoded")
	decoded := time.Now()

	selected, err := selectOutputs(sm.md, req)
	if err != nil {
		return fail(statusOf(err), err)
	}

	ctx, cancel := joinContexts(s.opts.BaseContext, r.Context())
	defer cancel()
	if s.opts.InferTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.opts.InferTimeout)
		defer cancel()
	}
	release, err := s.repo.begin(ctx, sm)
	if err != nil {
		return fail(statusOf(err), err)
	}
	admitted := time.Now()
	outs, err := sm.model.Infer(ctx, inputs)
	release()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(http.StatusServiceUnavailable, fmt.Errorf("inference of model '%s' timed out", model))
		}
		return fail(statusOf(err), err)
	}
	computed := time.Now()

	resp := types.InferResponse{ModelName: model, ModelVersion: version, ID: req.ID}
	var chunks [][]byte
	for _, sel := range selected {
		t := outs[sel.index]
		if sel.classes > 0 {
			if t, err = classify(t, sel.classes); err != nil {
				return fail(http.StatusBadRequest, err)
			}
		}
		out, chunk, err := wire.EncodeOutput(t, sel.binary)
		if err != nil {
			return fail(http.StatusInternalServerError, err)
		}
		resp.Outputs = append(resp.Outputs, out)
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
	}
	hdr, err := json.Marshal(resp)
	if err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	body := hdr
	if len(chunks) > 0 {
		body = wire.Join(hdr, chunks)
		w.Header().Set(wire.HeaderContentLength, strconv.Itoa(len(hdr)))
		w.Header().Set("Content-Type", "application/octet-stream")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	// Statistics are visible before the caller sees the response.
	s.repo.record(sm, version, execution{
		batch:   batchSize(sm.md, inputs),
		queue:   admitted.Sub(decoded),
		input:   decoded.Sub(start),
		compute: computed.Sub(admitted),
		output:  time.Since(computed),
		total:   time.Since(start),
	})
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return http.StatusOK, nil
}

func (s *server) decodeRequest(w http.ResponseWriter, r *http.Request, sm *servedModel) (types.InferRequest, map[string]*tensor.Tensor, error) {
	var req types.InferRequest
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return req, nil, httpError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("request body exceeds %d bytes", mbe.Limit)}
		}
		return req, nil, invalidInput("failed to read request body: %v", err)
	}
	body, err := wire.Decompress(r.Header.Get("Content-Encoding"), raw, s.opts.MaxBodyBytes)
	if errors.Is(err, wire.ErrBodyTooLarge) {
		return req, nil, httpError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("decompressed request body exceeds %d bytes", s.opts.MaxBodyBytes)}
	}
	if err != nil {
		return req, nil, invalidInput("failed to decompress request body: %v", err)
	}
	hdr, tail, err := wire.Split(body, r.Header.Get(wire.HeaderContentLength))
	if err != nil {
		return req, nil, invalidInput("%v", err)
	}
	if err := json.Unmarshal(hdr, &req); err != nil {
		return req, nil, invalidInput("failed to parse the request JSON buffer: %v", err)
	}

	md := sm.md
	if len(req.Inputs) != len(md.Inputs) {
		return req, nil, invalidInput("expected %d inputs but got %d inputs for model '%s'", len(md.Inputs), len(req.Inputs), md.Name)
	}
	declared := make(map[string]types.TensorMetadata, len(md.Inputs))
	for _, in := range md.Inputs {
		declared[in.Name] = in
	}
	rd := wire.NewTensorReader(tail)
	inputs := make(map[string]*tensor.Tensor, len(req.Inputs))
	for _, in := range req.Inputs {
		want, ok := declared[in.Name]
		if !ok {
			return req, nil, invalidInput("unexpected inference input '%s' for model '%s'", in.Name, md.Name)
		}
		if _, dup := inputs[in.Name]; dup {
			return req, nil, invalidInput("input '%s' specified multiple times for model '%s'", in.Name, md.Name)
		}
		if !strings.EqualFold(in.Datatype, want.Datatype) {
			return req, nil, invalidInput("inference input '%s' data-type is '%s', but model '%s' expects '%s'", in.Name, in.Datatype, md.Name, want.Datatype)
		}
		if !shapeMatches(want.Shape, in.Shape) {
			return req, nil, invalidInput("unexpected shape for input '%s' for model '%s'. Expected %s, got %s", in.Name, md.Name, formatShape(want.Shape), formatShape(in.Shape))
		}
		t, err := rd.Read(in.Name, in.Datatype, in.Shape, in.Parameters, in.Data)
		if err != nil {
			return req, nil, invalidInput("%v", err)
		}
		inputs[in.Name] = t
	}
	if n := rd.Remaining(); n != 0 {
		return req, nil, invalidInput("unexpected %d trailing bytes in binary section", n)
	}
	return req, inputs, nil
}

type selection struct {
	index   int
	binary  bool
	classes int
}

// selectOutputs resolves requested outputs, or every declared output when
// none were requested.
func selectOutputs(md types.ModelMetadata, req types.InferRequest) ([]selection, error) {
	binaryDefault := wire.BoolParam(req.Parameters, wire.ParamBinaryDataOutput)
	if len(req.Outputs) == 0 {
		out := make([]selection, len(md.Outputs))
		for i := range md.Outputs {
			out[i] = selection{index: i, binary: binaryDefault}
		}
		return out, nil
	}
	index := make(map[string]int, len(md.Outputs))
	for i, o := range md.Outputs {
		index[o.Name] = i
	}
	out := make([]selection, 0, len(req.Outputs))
	for _, o := range req.Outputs {
		i, ok := index[o.Name]
		if !ok {
			return nil, invalidInput("unexpected inference output '%s' for model '%s'", o.Name, md.Name)
		}
		sel := selection{index: i, binary: binaryDefault}
		if _, set := o.Parameters[wire.ParamBinaryData]; set {
			sel.binary = wire.BoolParam(o.Parameters, wire.ParamBinaryData)
		}
		if n, ok := wire.IntParam(o.Parameters, wire.ParamClassification); ok {
			if n <= 0 {
				return nil, invalidInput("classification count for output '%s' must be positive", o.Name)
			}
			sel.classes = n
		}
		out = append(out, sel)
	}
	return out, nil
}

// classify converts the last dimension of t into its top-n "value:index"
// entries, highest first.
func classify(t *tensor.Tensor, n int) (*tensor.Tensor, error) {
	vals, err := t.Float64s()
	if err != nil {
		return nil, invalidInput("output '%s' cannot be classified: %v", t.Name, err)
	}
	classes := int(t.Shape[len(t.Shape)-1])
	if n > classes {
		n = classes
	}
	rows := len(vals) / classes
	var out []string
	for r := 0; r < rows; r++ {
		row := vals[r*classes : (r+1)*classes]
		idx := make([]int, classes)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })
		for _, i := range idx[:n] {
			out = append(out, strconv.FormatFloat(row[i], 'f', 6, 64)+":"+strconv.Itoa(i))
		}
	}
	shape := append([]int64(nil), t.Shape...)
	shape[len(shape)-1] = int64(n)
	return tensor.NewStrings(t.Name, shape, out)
}

func shapeMatches(want, got []int64) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != -1 && want[i] != got[i] {
			return false
		}
	}
	return true
}

func formatShape(s []int64) string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// batchSize is the leading dimension when the model declares it variable.
func batchSize(md types.ModelMetadata, inputs map[string]*tensor.Tensor) int64 {
	if len(md.Inputs) == 0 || len(md.Inputs[0].Shape) == 0 || md.Inputs[0].Shape[0] != -1 {
		return 1
	}
	if t := inputs[md.Inputs[0].Name]; t != nil && len(t.Shape) > 0 {
		return t.Shape[0]
	}
	return 1
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called to release the goroutine when handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(b)
	stop := context.AfterFunc(a, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
