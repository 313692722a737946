package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hotdeploy/internal/config"
	"github.com/tonimelisma/hotdeploy/internal/mirror"
)

// errInvalidConfig is returned by validate when any section failed.
var errInvalidConfig = errors.New("configuration has errors")

// validatedInstance is the JSON shape of one resolved instance.
type validatedInstance struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	WatchFrom  string `json:"watch_from"`
	Recursive  bool   `json:"recursive"`
	Filter     string `json:"filter,omitempty"`
	Mode       string `json:"target_mode"`
	Target     string `json:"target,omitempty"`
	TargetErr  string `json:"target_error,omitempty"`
	DestSub    string `json:"dest_sub,omitempty"`
	MaxRetries int    `json:"max_retries"`
	RetryDelay string `json:"retry_delay"`
	Reconcile  string `json:"reconcile,omitempty"`
}

type validateOutput struct {
	Instances []validatedInstance `json:"instances"`
	Errors    []string            `json:"errors,omitempty"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve the configuration and print every instance",
		Long: `Resolve every instance exactly as the deployer would, then print the
result together with the deployment root each one maps to right now.
Exits with status 1 when any section has configuration errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *rootOptions, asJSON bool) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, _, err := loadStore(opts)
	if err != nil {
		return err
	}

	cli, err := cliOverrides(cmd.Flags())
	if err != nil {
		return err
	}

	// nil LevelSetter: logLevel is checked but must not change anything here.
	instances, errs := config.NewResolver(store, cli, nil, logger).ResolveAll()
	resolver := mirror.NewTargetResolver(logger)

	out := validateOutput{Instances: make([]validatedInstance, 0, len(instances))}
	for _, inst := range instances {
		out.Instances = append(out.Instances, describeInstance(inst, resolver))
	}

	for _, e := range errs {
		out.Errors = append(out.Errors, e.Error())
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if encErr := enc.Encode(out); encErr != nil {
			return fmt.Errorf("encoding JSON: %w", encErr)
		}
	} else {
		printValidateText(cmd.OutOrStdout(), cmd.ErrOrStderr(), out)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %d of %d sections", errInvalidConfig, len(errs), len(errs)+len(instances))
	}

	if len(instances) == 0 {
		return errNoInstances
	}

	return nil
}

func describeInstance(inst *config.Instance, resolver *mirror.TargetResolver) validatedInstance {
	v := validatedInstance{
		Name:       inst.Name,
		Source:     inst.Source,
		WatchFrom:  inst.WatchFrom,
		Recursive:  inst.Recursive,
		Mode:       inst.Target.Mode.String(),
		DestSub:    inst.DestSub,
		MaxRetries: inst.MaxRetries,
		RetryDelay: inst.RetryDelay.String(),
		Reconcile:  inst.Reconcile,
	}

	if inst.Filter != nil {
		v.Filter = inst.Filter.String()
	}

	target, err := resolver.Resolve(inst.Target)
	if err != nil {
		v.TargetErr = err.Error()
	} else {
		v.Target = target
	}

	return v
}

func printValidateText(w, errW io.Writer, out validateOutput) {
	headers := []string{"NAME", "SOURCE", "RECURSIVE", "FILTER", "MODE", "TARGET", "RETRIES"}
	rows := make([][]string, 0, len(out.Instances))

	for _, v := range out.Instances {
		target := v.Target
		if v.TargetErr != "" {
			target = "(" + v.TargetErr + ")"
		}

		filter := v.Filter
		if filter == "" {
			filter = "-"
		}

		rows = append(rows, []string{
			v.Name,
			v.Source,
			strconv.FormatBool(v.Recursive),
			filter,
			v.Mode,
			target,
			fmt.Sprintf("%d x %s", v.MaxRetries, v.RetryDelay),
		})
	}

	if len(rows) > 0 {
		printTable(w, headers, rows)
	}

	for _, e := range out.Errors {
		fmt.Fprintf(errW, "error: %s\n", e)
	}
}
