package cli

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"inferclient/internal/common/fsutil"
	"inferclient/internal/logging"
	"inferclient/internal/mockserver"
)

func (a *app) serveMockCmd() *cobra.Command {
	var (
		addr         string
		modelRepo    string
		corsOrigins  []string
		maxWait      time.Duration
		inferTimeout time.Duration
		maxBody      int64
	)
	cmd := &cobra.Command{
		Use:     "serve-mock",
		Short:   "Serve the demo models over the v2 HTTP protocol",
		Example: "  inferctl serve-mock --addr :8000\n  inferctl serve-mock --model-repository ~/models --cors-origin http://localhost:5173",
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo := mockserver.NewRepository(maxWait)
			if err := repo.Add(mockserver.NewSklearnModel(), mockserver.ModelOptions{}); err != nil {
				return err
			}
			if err := repo.Add(mockserver.NewDiabetesModel(), mockserver.ModelOptions{}); err != nil {
				return err
			}
			if modelRepo != "" {
				dir, err := fsutil.AbsDir(modelRepo)
				if err != nil {
					return usagef("--model-repository: %v", err)
				}
				added, err := repo.AddFromDir(dir)
				if err != nil {
					return fmt.Errorf("model repository %s: %w", dir, err)
				}
				a.log.Info().Str("dir", dir).Strs("models", added).Msg("model repository loaded")
			}

			h := mockserver.NewMux(repo, mockserver.Options{
				Logger:       &a.log,
				LogLevel:     logging.ParseLevel(a.cfg.LogLevel),
				MaxBodyBytes: maxBody,
				InferTimeout: inferTimeout,
				BaseContext:  ctx,
				CORS: mockserver.CORSOptions{
					Enabled:        len(corsOrigins) > 0,
					AllowedOrigins: corsOrigins,
				},
			})
			out := cmd.OutOrStdout()
			return mockserver.Serve(ctx, addr, h, a.log, func(bound net.Addr) {
				fmt.Fprintf(out, "serving %v on %s\n", repo.Names(), bound)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&addr, "addr", ":8000", "Listen address")
	fs.StringVar(&modelRepo, "model-repository", "", "Also serve echo models described by metadata files in this directory")
	fs.StringSliceVar(&corsOrigins, "cors-origin", nil, "Enable CORS for these origins")
	fs.DurationVar(&maxWait, "max-wait", mockserver.DefaultMaxWait, "Queue wait before a request is rejected with 429")
	fs.DurationVar(&inferTimeout, "infer-timeout", 0, "Bound model execution time")
	fs.Int64Var(&maxBody, "max-body-bytes", mockserver.DefaultMaxBodyBytes, "Largest accepted request body")
	return cmd
}
