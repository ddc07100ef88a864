package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/compose-network/deploykit/internal/infra/filesystem"
	"github.com/compose-network/deploykit/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

type (
	// runner executes a command in dir and returns its stdout.
	runner func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// Compiler produces the artifact file consumed by Load using forge.
	Compiler struct {
		contractsRootDir string
		writer           filesystem.Writer
		run              runner
		logger           *slog.Logger
	}
)

// NewCompiler creates a new contract compiler for the foundry project at contractsRootDir.
func NewCompiler(contractsRootDir string, writer filesystem.Writer, log *slog.Logger) *Compiler {
	return &Compiler{
		contractsRootDir: contractsRootDir,
		writer:           writer,
		run:              execRunner(os.Stderr),
		logger:           logger.Named(log, "contracts_compiler"),
	}
}

// Compile inspects every known contract and writes the artifact file to outputPath.
func (c *Compiler) Compile(ctx context.Context, outputPath string) error {
	c.logger.
		With("contracts_dir", c.contractsRootDir).
		Info("starting contract compilation")

	c.logger.Info("installing forge dependencies")
	if _, err := c.run(ctx, c.contractsRootDir, "forge", "install"); err != nil {
		return fmt.Errorf("failed to install dependencies: %w", err)
	}

	jsonContracts := make(map[string]map[string]any)
	for _, id := range IDs() {
		c.logger.With("name", id).Info("compiling contract")

		abiJSON, bytecodeHex, err := c.compileContractRaw(ctx, string(id))
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", id, err)
		}

		jsonContracts[string(id)] = map[string]any{
			"abi":      json.RawMessage(abiJSON),
			"bytecode": bytecodeHex,
		}
	}

	if err := c.writer.WriteJSON(outputPath, jsonContracts); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	c.logger.With("output", outputPath).Info("contracts compiled successfully")

	return nil
}

// compileContractRaw compiles a contract and returns raw JSON ABI and hex bytecode
func (c *Compiler) compileContractRaw(ctx context.Context, contractName string) ([]byte, string, error) {
	abiOutput, err := c.run(ctx, c.contractsRootDir, "forge", "inspect", contractName, "abi", "--json")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get ABI for %s: %w", contractName, err)
	}

	if _, err := abi.JSON(strings.NewReader(string(abiOutput))); err != nil {
		return nil, "", fmt.Errorf("failed to parse ABI for %s: %w", contractName, err)
	}

	bytecodeOutput, err := c.run(ctx, c.contractsRootDir, "forge", "inspect", contractName, "bytecode")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get bytecode for %s: %w", contractName, err)
	}

	bytecode := strings.TrimSpace(string(bytecodeOutput))
	if !strings.HasPrefix(bytecode, "0x") || len(bytecode) <= 2 {
		return nil, "", fmt.Errorf("unexpected bytecode output for %s", contractName)
	}

	return abiOutput, bytecode, nil
}

func execRunner(stderr io.Writer) runner {
	return func(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir
		cmd.Stderr = stderr

		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
		}

		return out, nil
	}
}
