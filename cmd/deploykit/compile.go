package main

import (
	"context"
	"errors"

	"github.com/compose-network/deploykit/configs"
	"github.com/compose-network/deploykit/internal/contracts"
	fsjson "github.com/compose-network/deploykit/internal/infra/filesystem/json"
	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile the contracts with forge and write the artifacts file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return compileArtifacts(cmd.Context())
	},
}

// compileArtifacts writes paths.artifacts, which later loads prefer over the
// artifacts embedded in the binary.
func compileArtifacts(ctx context.Context) error {
	paths := configs.Values.Paths
	if paths.Artifacts == "" {
		return errors.New("paths.artifacts must be set to compile (--artifacts)")
	}
	if paths.ContractsRoot == "" {
		return errors.New("paths.contracts-root must be set to compile (--contracts-root)")
	}

	return contracts.NewCompiler(paths.ContractsRoot, fsjson.NewWriter(), appLogger).Compile(ctx, paths.Artifacts)
}
