package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/irflow/app"
	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/internal/config"
	"github.com/ludo-technologies/irflow/service"
)

// RunCommand represents the run command
type RunCommand struct {
	program    string
	format     string
	timeout    int
	configFile string
}

// NewRunCommand creates a new run command
func NewRunCommand() *RunCommand {
	return &RunCommand{
		format:  config.DefaultOutputFormat,
		timeout: config.DefaultTimeoutSeconds,
	}
}

// CreateCobraCommand creates the cobra command for running a program
func (r *RunCommand) CreateCobraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Interpret an IR program",
		Long: `Run the script of a program with the reference interpreter and print its
result. Output written by the program is streamed as it runs.

A program that ends with an uncaught LocalJumpError, ThreadError or raised
value is reported and the command exits with status 1.

Examples:
  # Run a YAML program
  irflow run examples/break_from_block.yaml

  # Run the Go package in a directory, as JSON
  irflow run --format json ./cmd/demo`,
		Args: cobra.ExactArgs(1),
		RunE: r.runProgram,
	}

	cmd.Flags().StringVarP(&r.program, "program", "p", "", "Program to run when the source holds several")
	cmd.Flags().StringVarP(&r.format, service.FlagFormat, "f", r.format, "Output format: text, json, yaml")
	cmd.Flags().IntVarP(&r.timeout, service.FlagTimeout, "t", r.timeout, "Cancel the run after this many seconds (0 = never)")
	cmd.Flags().StringVarP(&r.configFile, "config", "c", "", "Configuration file path")

	return cmd
}

// runProgram executes the run command
func (r *RunCommand) runProgram(cmd *cobra.Command, args []string) error {
	logger, debug := commandLogger(cmd, r.configFile, args[0])

	useCase, err := app.NewRunUseCaseBuilder().
		WithService(service.NewRunService(service.NewProgramReader(logger), logger)).
		WithFormatter(service.NewOutputFormatter()).
		WithConfigLoader(service.NewConfigurationLoader()).
		Build()
	if err != nil {
		return err
	}

	req := domain.RunRequest{
		Path:           args[0],
		Program:        r.program,
		Stdout:         cmd.OutOrStdout(),
		OutputFormat:   domain.OutputFormat(r.format),
		OutputWriter:   cmd.OutOrStdout(),
		TimeoutSeconds: r.timeout,
		ConfigPath:     r.configFile,
		Debug:          debug,
	}

	resp, err := useCase.Execute(cmd.Context(), req, explicitFlags(cmd))
	if err != nil {
		return err
	}
	if !resp.Succeeded() {
		return fmt.Errorf("program %s ended with %s", resp.Program, resp.Error.Kind)
	}
	return nil
}

// NewRunCmd creates and returns the run cobra command
func NewRunCmd() *cobra.Command {
	return NewRunCommand().CreateCobraCommand()
}
