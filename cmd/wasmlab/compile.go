package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wasmlab-server/services"
)

var (
	compileOut  string
	compileText bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <source.ts>",
	Short: "Compile a guest script with the fixed compiler options",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := compileFile(cmd.Context(), e.compiler, args[0])
		if err != nil {
			return err
		}
		out := compileOut
		if out == "" {
			out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".wasm"
		}
		if err := os.WriteFile(out, res.Binary, 0644); err != nil {
			return err
		}
		if compileText && res.Text != "" {
			if err := os.WriteFile(strings.TrimSuffix(out, ".wasm")+".wat", []byte(res.Text), 0644); err != nil {
				return err
			}
		}
		pterm.Success.Printf("wrote %s (%d bytes)\n", out, len(res.Binary))
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVarP(&compileOut, "out", "o", "", "output file (default <source>.wasm)")
	compileCmd.Flags().BoolVarP(&compileText, "text", "t", false, "also write the text format next to the binary")
}

// compileFile compiles path behind a spinner and prints diagnostics
func compileFile(ctx context.Context, compiler *services.CompilerService, path string) (*services.CompileResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	spinner, _ := pterm.DefaultSpinner.Start("compiling " + path)
	res := compiler.Compile(ctx, string(source))
	if res.Err != nil {
		if spinner != nil {
			spinner.Fail("compile failed")
		}
		pterm.Println(res.Err.Message)
		return nil, fmt.Errorf("%s: %w", path, res.Err)
	}
	if spinner != nil {
		spinner.Success(fmt.Sprintf("compiled %s", path))
	}
	if res.Diagnostics != "" && verbose {
		pterm.Warning.Println(res.Diagnostics)
	}
	return res, nil
}
