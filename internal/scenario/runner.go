package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"inferclient/internal/client"
	"inferclient/internal/tensor"
	"inferclient/pkg/types"
)

// Client is the part of client.Client a scenario drives.
type Client interface {
	Infer(ctx context.Context, model string, inputs []*tensor.Tensor, opts *client.InferOptions) (*client.Response, error)
	ModelStatistics(ctx context.Context, model string, opts *client.StatsOptions) (*types.ModelStatistics, error)
}

var (
	// ErrUnknownModelAccepted means the server answered a request for
	// WrongModelName without an error.
	ErrUnknownModelAccepted = errors.New("inference against an unknown model succeeded")
	// ErrUnexpectedError means the unknown model was rejected with an
	// error that does not name it as unknown.
	ErrUnexpectedError = errors.New("unexpected error for an unknown model")
)

// Options apply to every request of a run.
type Options struct {
	ModelVersion        string
	Headers             map[string]string
	RequestCompression  string
	ResponseCompression string
}

// Runner executes scenarios and prints their progress to Out.
type Runner struct {
	Client  Client
	Out     io.Writer
	Options Options
	// Log defaults to a no-op logger.
	Log *zerolog.Logger
}

// Run executes s. The first failing step ends the run.
func (r *Runner) Run(ctx context.Context, s Scenario) error {
	base := zerolog.Nop()
	if r.Log != nil {
		base = *r.Log
	}
	log := base.With().Str("scenario", s.Name).Str("model", s.Model).Logger()

	log.Debug().Msg("infer with requested outputs")
	res, err := r.infer(ctx, s.Model, s, client.Outputs(s.Outputs...))
	if err != nil {
		return fmt.Errorf("infer %s: %w", s.Model, err)
	}
	fmt.Fprintln(r.Out, res.String())
	if err := r.printOutputs(res, s.Outputs); err != nil {
		return err
	}

	log.Debug().Msg("model statistics")
	st, err := r.Client.ModelStatistics(ctx, s.Model, &client.StatsOptions{
		ModelVersion: r.Options.ModelVersion,
		Headers:      r.Options.Headers,
	})
	if err != nil {
		return fmt.Errorf("statistics %s: %w", s.Model, err)
	}
	PrintStatistics(r.Out, st)

	log.Debug().Msg("infer with default outputs")
	res, err = r.infer(ctx, s.Model, s, nil)
	if err != nil {
		return fmt.Errorf("infer %s with default outputs: %w", s.Model, err)
	}
	fmt.Fprintln(r.Out, res.String())
	if err := r.printOutputs(res, s.Outputs); err != nil {
		return err
	}

	log.Debug().Msg("infer against an unknown model")
	_, err = r.infer(ctx, WrongModelName, s, nil)
	switch {
	case err == nil:
		return ErrUnknownModelAccepted
	case !strings.HasPrefix(client.Message(err), client.UnknownModelPrefix):
		return fmt.Errorf("%w: %v", ErrUnexpectedError, err)
	}
	fmt.Fprintf(r.Out, "expected error: %s\n", client.Message(err))
	fmt.Fprintf(r.Out, "PASS: %s\n", s.Name)
	return nil
}

func (r *Runner) infer(ctx context.Context, model string, s Scenario, outputs []client.RequestedOutput) (*client.Response, error) {
	inputs, err := s.Inputs()
	if err != nil {
		return nil, err
	}
	return r.Client.Infer(ctx, model, inputs, &client.InferOptions{
		ModelVersion:        r.Options.ModelVersion,
		Outputs:             outputs,
		Headers:             r.Options.Headers,
		RequestCompression:  r.Options.RequestCompression,
		ResponseCompression: r.Options.ResponseCompression,
	})
}

func (r *Runner) printOutputs(res *client.Response, names []string) error {
	for _, n := range names {
		t, err := res.Output(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "%s: %v\n", n, t.JSONData())
	}
	return nil
}

// PrintStatistics writes a short summary of one statistics entry.
func PrintStatistics(w io.Writer, st *types.ModelStatistics) {
	last := "never"
	if st.LastInference > 0 {
		last = humanize.Time(time.UnixMilli(int64(st.LastInference)))
	}
	fmt.Fprintf(w, "statistics %s version %s: %s inferences, %s executions, last %s\n",
		st.Name, st.Version,
		humanize.Comma(int64(st.InferenceCount)),
		humanize.Comma(int64(st.ExecutionCount)),
		last)
	is := st.InferenceStats
	fmt.Fprintf(w, "  success %s (avg %s), fail %s, queue avg %s, compute avg %s\n",
		humanize.Comma(int64(is.Success.Count)), avg(is.Success),
		humanize.Comma(int64(is.Fail.Count)),
		avg(is.Queue), avg(is.ComputeInfer))
}

func avg(d types.StatisticDuration) time.Duration {
	if d.Count == 0 {
		return 0
	}
	return time.Duration(d.Ns / d.Count)
}
