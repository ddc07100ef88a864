package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/compose-network/deploykit/configs"
	"github.com/compose-network/deploykit/internal/contracts"
	"github.com/compose-network/deploykit/internal/deploy"
	"github.com/compose-network/deploykit/internal/journal"
	"github.com/compose-network/deploykit/internal/safe"
	"github.com/compose-network/deploykit/internal/signer"
	"github.com/spf13/cobra"
)

var (
	deployFrom     string
	deployOnly     string
	deployDryRun   bool
	deployCompile  bool
	deployGasPrice string
	deploySigner   string
	deploySaveAs   string
	deployArgs     []string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run deployment manifests and single contract deployments",
}

var deployRunCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Run a deployment manifest step by step, resuming after the last completed step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := deploy.LoadManifest(args[0])
		if err != nil {
			return err
		}

		if deploySigner != "" {
			manifest.Signer = deploySigner
		}

		return runManifest(cmd, manifest, deploy.Options{
			From:   deployFrom,
			Only:   deployOnly,
			DryRun: deployDryRun,
		})
	},
}

var deployContractCmd = &cobra.Command{
	Use:   "contract <contract>",
	Short: "Deploy one contract and store its address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := contracts.ParseID(args[0])
		if err != nil {
			return err
		}

		saveAs := deploySaveAs
		if saveAs == "" {
			saveAs = string(id)
		}

		manifest := deploy.Manifest{
			Signer: deploySigner,
			Steps: []deploy.Step{{
				Name:     "deploy-" + saveAs,
				Action:   deploy.ActionDeploy,
				Contract: id,
				Args:     deployArgs,
				SaveAs:   saveAs,
			}},
		}

		return runManifest(cmd, manifest, deploy.Options{DryRun: deployDryRun})
	},
}

var deployHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the completed steps recorded for the selected network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal.Open(configs.Values.Paths.Journal, appLogger)
		if err != nil {
			return err
		}
		defer j.Close()

		records, err := j.History(networkName())
		if err != nil {
			return err
		}

		rows := []string{"COMPLETED | STEP | ACTION | ADDRESS | TX | RUN"}
		for _, r := range records {
			rows = append(rows, fmt.Sprintf("%s | %s | %s | %s | %s | %s",
				r.CompletedAt.Format("2006-01-02 15:04:05"), r.Step, r.Action, hexOrEmpty(r.Address), hexOrEmpty(r.TxHash), r.RunID))
		}

		printList(cmd.OutOrStdout(), rows)
		return nil
	},
}

var deployResetCmd = &cobra.Command{
	Use:   "reset [step]",
	Short: "Forget a completed step, or every step of the network when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal.Open(configs.Values.Paths.Journal, appLogger)
		if err != nil {
			return err
		}
		defer j.Close()

		step := ""
		if len(args) == 1 {
			step = args[0]
		}

		return j.Reset(networkName(), step)
	},
}

func runManifest(cmd *cobra.Command, manifest deploy.Manifest, opts deploy.Options) error {
	ctx := cmd.Context()

	if manifest.Signer == "" {
		return errors.New("no signer role: set signer in the manifest or pass --signer")
	}

	if deployCompile {
		if err := compileArtifacts(ctx); err != nil {
			return err
		}
	}

	artifacts, err := loadArtifacts()
	if err != nil {
		return err
	}

	t, err := connect(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	tx, key, err := t.transactor(ctx, manifest.Signer, deployGasPrice)
	if err != nil {
		return err
	}

	j, err := journal.Open(configs.Values.Paths.Journal, appLogger)
	if err != nil {
		return err
	}
	defer j.Close()

	sequencer := deploy.NewSequencer(t.name, tx, artifacts, openStore(), j, appLogger)
	if t.config.SafeServiceURL != "" {
		sequencer.WithSafe(newSafeClients(t, key))
	}

	result, err := sequencer.Run(ctx, manifest, opts)
	printResult(cmd.OutOrStdout(), result)

	return err
}

func newSafeClients(t target, key signer.Key) (*safe.Proposer, *safe.Poller) {
	service := safe.NewClient(t.config.SafeServiceURL, configs.Values.Safe.RequestTimeout, appLogger)
	proposer := safe.NewProposer(t.client, service, key.Private, appLogger)
	return proposer, newPoller(service)
}

func printResult(w io.Writer, result deploy.Result) {
	if len(result.Steps) == 0 {
		return
	}

	rows := []string{"STEP | ACTION | STATUS | ADDRESS | TX"}
	for _, step := range result.Steps {
		rows = append(rows, fmt.Sprintf("%s | %s | %s | %s | %s",
			step.Name, step.Action, step.Status, hexOrEmpty(step.Address), hexOrEmpty(step.TxHash)))
	}

	printList(w, rows)
	fmt.Fprintf(w, "\n%s: %s\n", result.Network, result.Progress)
}

func init() {
	deployRunCmd.Flags().StringVar(&deployFrom, "from", "", "Start at this step, skipping earlier ones")
	deployRunCmd.Flags().StringVar(&deployOnly, "only", "", "Run only this step")
	deployRunCmd.MarkFlagsMutuallyExclusive("from", "only")

	deployContractCmd.Flags().StringVar(&deploySaveAs, "save-as", "", "Address-store key (default: the contract name)")
	deployContractCmd.Flags().StringArrayVar(&deployArgs, "arg", nil, "Constructor argument, repeated in order")

	for _, c := range []*cobra.Command{deployRunCmd, deployContractCmd} {
		c.Flags().BoolVar(&deployDryRun, "dry-run", false, "Show what would run without sending transactions")
		c.Flags().BoolVar(&deployCompile, "compile", false, "Compile the contracts before deploying")
		c.Flags().StringVar(&deployGasPrice, "gas-price", "", "Gas price in gwei")
		c.Flags().StringVar(&deploySigner, "signer", "", "Role whose key sends the transactions")
	}

	deployCmd.AddCommand(deployRunCmd)
	deployCmd.AddCommand(deployContractCmd)
	deployCmd.AddCommand(deployHistoryCmd)
	deployCmd.AddCommand(deployResetCmd)
}
