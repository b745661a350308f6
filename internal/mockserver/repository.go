package mockserver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"inferclient/internal/registry"
	"inferclient/pkg/types"
)

// DefaultMaxWait bounds how long a request waits for a queue or execution
// slot before it is rejected with 429.
const DefaultMaxWait = 5 * time.Second

// ModelOptions control how a model is served.
type ModelOptions struct {
	// Versions defaults to ["1"]. Unversioned requests go to the last one.
	Versions []string
	// Instances is the number of concurrent executions, default 1.
	Instances int
	// MaxQueue is the number of admitted requests, running or waiting,
	// default 16.
	MaxQueue int
}

type servedModel struct {
	model    Model
	md       types.ModelMetadata
	versions []string
	stats    map[string]*types.ModelStatistics

	queueCh chan struct{}
	execCh  chan struct{}
}

// Repository holds the served models and their statistics. It is safe for
// concurrent use.
type Repository struct {
	mu      sync.RWMutex
	models  map[string]*servedModel
	maxWait time.Duration
	ready   atomic.Bool
	now     func() time.Time
}

// NewRepository returns an empty repository that reports ready.
func NewRepository(maxWait time.Duration) *Repository {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	r := &Repository{models: map[string]*servedModel{}, maxWait: maxWait, now: time.Now}
	r.ready.Store(true)
	return r
}

// NewDefaultRepository serves the built-in scikit-learn and diabetes models.
func NewDefaultRepository() *Repository {
	r := NewRepository(0)
	_ = r.Add(NewSklearnModel(), ModelOptions{})
	_ = r.Add(NewDiabetesModel(), ModelOptions{})
	return r
}

// Add registers m under its metadata name.
func (r *Repository) Add(m Model, o ModelOptions) error {
	md := m.Metadata()
	if md.Name == "" {
		return fmt.Errorf("model without a name")
	}
	versions := append([]string(nil), o.Versions...)
	if len(versions) == 0 {
		versions = []string{"1"}
	}
	if o.Instances <= 0 {
		o.Instances = 1
	}
	if o.MaxQueue <= 0 {
		o.MaxQueue = 16
	}
	if o.MaxQueue < o.Instances {
		o.MaxQueue = o.Instances
	}
	md.Versions = versions
	sm := &servedModel{
		model:    m,
		md:       md,
		versions: versions,
		stats:    make(map[string]*types.ModelStatistics, len(versions)),
		queueCh:  make(chan struct{}, o.MaxQueue),
		execCh:   make(chan struct{}, o.Instances),
	}
	for _, v := range versions {
		sm.stats[v] = &types.ModelStatistics{Name: md.Name, Version: v}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.models[md.Name]; dup {
		return fmt.Errorf("model %s already registered", md.Name)
	}
	r.models[md.Name] = sm
	return nil
}

// AddFromDir serves every model of a repository directory that carries a
// metadata file, as an echo model. It returns the names added.
func (r *Repository) AddFromDir(dir string) ([]string, error) {
	entries, err := registry.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, e := range entries {
		if e.Metadata == nil {
			continue
		}
		m, err := NewEchoModel(*e.Metadata)
		if err != nil {
			return added, err
		}
		if err := r.Add(m, ModelOptions{Versions: e.Versions}); err != nil {
			return added, err
		}
		added = append(added, e.Metadata.Name)
	}
	return added, nil
}

// Names lists served model names, sorted.
func (r *Repository) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for n := range r.models {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SetReady toggles the server readiness reported by /v2/health/ready.
func (r *Repository) SetReady(v bool) { r.ready.Store(v) }

// Ready reports server readiness.
func (r *Repository) Ready() bool { return r.ready.Load() }

// resolve finds a model and concrete version; "" selects the latest.
func (r *Repository) resolve(model, version string) (*servedModel, string, error) {
	r.mu.RLock()
	sm := r.models[model]
	r.mu.RUnlock()
	if sm == nil {
		return nil, "", unknownModelError{model: model}
	}
	if version == "" {
		return sm, sm.versions[len(sm.versions)-1], nil
	}
	if _, ok := sm.stats[version]; !ok {
		return nil, "", unknownModelError{model: model, version: version}
	}
	return sm, version, nil
}

// Metadata returns the metadata of a model.
func (r *Repository) Metadata(model, version string) (types.ModelMetadata, error) {
	sm, _, err := r.resolve(model, version)
	if err != nil {
		return types.ModelMetadata{}, err
	}
	return sm.md, nil
}

// Statistics reports one entry per served version: of every model when
// model is empty, of model otherwise, or of one version.
func (r *Repository) Statistics(model, version string) (types.InferenceStatisticsResponse, error) {
	out := types.InferenceStatisticsResponse{ModelStats: []types.ModelStatistics{}}
	if model == "" {
		for _, n := range r.Names() {
			st, _ := r.Statistics(n, "")
			out.ModelStats = append(out.ModelStats, st.ModelStats...)
		}
		return out, nil
	}
	r.mu.RLock()
	sm := r.models[model]
	r.mu.RUnlock()
	if sm == nil {
		return out, unknownModelError{model: model, stats: true}
	}
	versions := sm.versions
	if version != "" {
		if _, ok := sm.stats[version]; !ok {
			return out, unknownModelError{model: model, version: version}
		}
		versions = []string{version}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range versions {
		st := *sm.stats[v]
		st.BatchStats = append([]types.BatchStatistics(nil), st.BatchStats...)
		out.ModelStats = append(out.ModelStats, st)
	}
	return out, nil
}

// begin reserves a queue slot and then an execution slot, like a server
// scheduler would. The returned release must be called when done.
func (r *Repository) begin(ctx context.Context, sm *servedModel) (func(), error) {
	noop := func() {}
	if err := ctx.Err(); err != nil {
		return noop, err
	}
	timer := time.NewTimer(r.maxWait)
	defer timer.Stop()
	select {
	case sm.queueCh <- struct{}{}:
	case <-ctx.Done():
		return noop, ctx.Err()
	case <-timer.C:
		return noop, tooBusyError{model: sm.md.Name}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-sm.queueCh
		}
	}()
	select {
	case sm.execCh <- struct{}{}:
		acquired = true
		return func() { <-sm.execCh; <-sm.queueCh }, nil
	case <-ctx.Done():
		return noop, ctx.Err()
	case <-timer.C:
		return noop, tooBusyError{model: sm.md.Name}
	}
}

// execution is the timing of one request.
type execution struct {
	batch   int64
	queue   time.Duration
	input   time.Duration
	compute time.Duration
	output  time.Duration
	total   time.Duration
	failed  bool
}

func (r *Repository) record(sm *servedModel, version string, e execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := sm.stats[version]
	if e.failed {
		add(&st.InferenceStats.Fail, e.total)
		return
	}
	add(&st.InferenceStats.Success, e.total)
	add(&st.InferenceStats.Queue, e.queue)
	add(&st.InferenceStats.ComputeInput, e.input)
	add(&st.InferenceStats.ComputeInfer, e.compute)
	add(&st.InferenceStats.ComputeOutput, e.output)
	st.InferenceCount += uint64(e.batch)
	st.ExecutionCount++
	st.LastInference = uint64(r.now().UnixMilli())
	found := false
	for i := range st.BatchStats {
		if st.BatchStats[i].BatchSize == uint64(e.batch) {
			bs := &st.BatchStats[i]
			add(&bs.ComputeInput, e.input)
			add(&bs.ComputeInfer, e.compute)
			add(&bs.ComputeOutput, e.output)
			found = true
		}
	}
	if !found {
		bs := types.BatchStatistics{BatchSize: uint64(e.batch)}
		add(&bs.ComputeInput, e.input)
		add(&bs.ComputeInfer, e.compute)
		add(&bs.ComputeOutput, e.output)
		st.BatchStats = append(st.BatchStats, bs)
	}
}

func add(d *types.StatisticDuration, v time.Duration) {
	d.Count++
	d.Ns += uint64(v.Nanoseconds())
}
