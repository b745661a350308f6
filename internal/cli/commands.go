package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"inferclient/internal/client"
	"inferclient/internal/scenario"
	"inferclient/internal/tensor"
)

func (a *app) runCmd() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:       "run <scenario>",
		Short:     "Run a reference scenario: " + strings.Join(scenario.Names(), "|"),
		Example:   "  inferctl run scikit-learn\n  inferctl -u localhost:8000 run diabetes",
		ValidArgs: scenario.Names(),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("run requires exactly one scenario: %s", strings.Join(scenario.Names(), "|"))
			}
			if _, ok := scenario.Lookup(args[0]); !ok {
				return usagef("unknown scenario %q, want one of %s", args[0], strings.Join(scenario.Names(), "|"))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _ := scenario.Lookup(args[0])
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			r := &scenario.Runner{
				Client: c,
				Out:    cmd.OutOrStdout(),
				Log:    &a.log,
				Options: scenario.Options{
					ModelVersion:        version,
					Headers:             a.cfg.Headers,
					RequestCompression:  a.cfg.RequestCompression,
					ResponseCompression: a.cfg.ResponseCompression,
				},
			}
			return r.Run(cmd.Context(), s)
		},
	}
	cmd.Flags().StringVar(&version, "model-version", "", "Pin the model version")
	return cmd
}

func (a *app) inferCmd() *cobra.Command {
	var (
		model, version  string
		inputs, outputs []string
		binaryIn        bool
		binaryOut       bool
		classCount      int
	)
	cmd := &cobra.Command{
		Use:     "infer",
		Short:   "Send one inference request",
		Example: "  inferctl infer --model scikit_learn_model --input X:FP64:1,4:-1.66,-1.29,0.27,-0.60 --output label",
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(inputs) == 0 {
				return usagef("at least one --input is required")
			}
			ts := make([]*tensor.Tensor, 0, len(inputs))
			for _, spec := range inputs {
				t, err := parseInput(spec)
				if err != nil {
					return err
				}
				ts = append(ts, t)
			}
			var req []client.RequestedOutput
			for _, n := range outputs {
				req = append(req, client.RequestedOutput{Name: n, BinaryData: binaryOut, ClassCount: classCount})
			}
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			res, err := c.Infer(cmd.Context(), model, ts, &client.InferOptions{
				ModelVersion:        version,
				Outputs:             req,
				Headers:             a.cfg.Headers,
				RequestCompression:  a.cfg.RequestCompression,
				ResponseCompression: a.cfg.ResponseCompression,
				BinaryInputs:        binaryIn,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.String())
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&model, "model", "m", "", "Model name")
	fs.StringVar(&version, "model-version", "", "Model version")
	fs.StringArrayVarP(&inputs, "input", "i", nil, "Input tensor NAME:DATATYPE:SHAPE:VALUES, shape and values comma separated (repeatable)")
	fs.StringArrayVarP(&outputs, "output", "o", nil, "Requested output (repeatable); all outputs when omitted")
	fs.BoolVar(&binaryIn, "binary-inputs", false, "Send inputs with the binary data extension")
	fs.BoolVar(&binaryOut, "binary-outputs", false, "Ask for requested outputs as binary data")
	fs.IntVar(&classCount, "classification", 0, "Return the top N classes of each requested output")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	var model, version string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show inference statistics for one model or all models",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			doc, err := c.InferenceStatistics(cmd.Context(), model, &client.StatsOptions{ModelVersion: version, Headers: a.cfg.Headers})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, doc)
			}
			for i := range doc.ModelStats {
				scenario.PrintStatistics(cmd.OutOrStdout(), &doc.ModelStats[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name; all models when omitted")
	cmd.Flags().StringVar(&version, "model-version", "", "Model version")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw statistics document")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	var model, version string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report server liveness and readiness, or model readiness",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := a.cfg.ClientConfig()
			if err != nil {
				return err
			}
			c, err := client.New(cc, client.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			live, err := c.IsServerLive(ctx)
			if err != nil {
				return err
			}
			ready, err := c.IsServerReady(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "server %s: live=%t ready=%t\n", c.URL(), live, ready)
			if !live || !ready {
				return errNotReady
			}
			if model == "" {
				return nil
			}
			mready, err := c.IsModelReady(ctx, model, version)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "model %s: ready=%t\n", model, mready)
			if !mready {
				return fmt.Errorf("model %s is not ready", model)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Also check this model")
	cmd.Flags().StringVar(&version, "model-version", "", "Model version")
	return cmd
}

func (a *app) metadataCmd() *cobra.Command {
	var model, version string
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Print server metadata, or model metadata with --model",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if model == "" {
				md, err := c.ServerMetadata(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, md)
			}
			md, err := c.ModelMetadata(cmd.Context(), model, version)
			if err != nil {
				return err
			}
			return printJSON(cmd, md)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name")
	cmd.Flags().StringVar(&version, "model-version", "", "Model version")
	return cmd
}

func (a *app) completionCmd(root *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Generate the autocompletion script for the specified shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return usagef("completion requires a shell: bash|zsh|fish|powershell")
		},
	}
	cmd.AddCommand(
		&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error {
			return root.GenBashCompletion(cmd.OutOrStdout())
		}},
		&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error {
			return root.GenZshCompletion(cmd.OutOrStdout())
		}},
		&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error {
			return root.GenFishCompletion(cmd.OutOrStdout(), true)
		}},
		&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error {
			return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}},
	)
	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
