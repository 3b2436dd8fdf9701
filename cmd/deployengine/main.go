// Command deployengine runs declarative, YAML-defined deployment jobs
// against one or more EVM networks (spec.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/r3e-network/deployengine/internal/appconfig"
	"github.com/r3e-network/deployengine/internal/depgraph"
	"github.com/r3e-network/deployengine/internal/engine"
	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/orchestrator"
	"github.com/r3e-network/deployengine/internal/project"
	"github.com/r3e-network/deployengine/internal/verify"
	"github.com/r3e-network/deployengine/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("WARNING: failed to load .env: %v\n", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCommand(os.Args[2:]))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`deployengine - declarative EVM deployment job runner

Usage:
  deployengine run [jobs...] [options]

Options:
  --project <dir>               project root (default ".")
  --network <selector,...>      comma-separated chain IDs or network names
  --private-key <hex>           signer private key (falls back to PRIVATE_KEY)
  --etherscan-api-key <key>     falls back to ETHERSCAN_API_KEY
  --fail-early                  cancel remaining networks on first job failure
  --flat-output                 write "<job>.json" instead of mirroring jobs/
  --no-post-check-conditions    skip the action-loop skip_condition post-check
  --run-deprecated              include deprecated jobs not explicitly targeted
  --dry-run                     resolve and print the plan without executing

Examples:
  deployengine run
  deployengine run deploy-token --network sepolia,mainnet
  deployengine run "deploy-*" --dry-run`)
}

func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	projectDir := fs.String("project", ".", "project root directory")
	networkFlag := fs.String("network", "", "comma-separated chain IDs or network names")
	privateKeyFlag := fs.String("private-key", "", "signer private key (hex)")
	etherscanKeyFlag := fs.String("etherscan-api-key", "", "Etherscan v2 API key")
	failEarly := fs.Bool("fail-early", false, "cancel remaining networks on first job failure")
	flatOutput := fs.Bool("flat-output", false, "write \"<job>.json\" instead of mirroring jobs/")
	noPostCheck := fs.Bool("no-post-check-conditions", false, "skip the action-loop skip_condition post-check")
	runDeprecated := fs.Bool("run-deprecated", false, "include deprecated jobs not explicitly targeted")
	dryRun := fs.Bool("dry-run", false, "resolve and print the plan without executing")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	jobSelectors := fs.Args()

	log := logger.NewFromEnv("deployengine")

	overrides, err := appconfig.LoadRunOverrides()
	if err != nil {
		log.WithError(err).Error("failed to decode environment overrides")
		return 1
	}

	privateKey := strings.TrimSpace(*privateKeyFlag)
	if privateKey == "" {
		privateKey = overrides.PrivateKey
	}
	etherscanAPIKey := strings.TrimSpace(*etherscanKeyFlag)
	if etherscanAPIKey == "" {
		etherscanAPIKey = overrides.EtherscanAPIKey
	}
	if privateKey == "" && !*dryRun {
		log.Error("PRIVATE_KEY is required unless --dry-run is set")
		return 1
	}

	var networkSelectors []string
	if strings.TrimSpace(*networkFlag) != "" {
		networkSelectors = appconfig.SplitAndTrimCSV(*networkFlag)
	}

	bus := eventbus.New(nil)
	attachLogSink(bus, log)

	proj, err := project.New(*projectDir, bus).Load()
	if err != nil {
		log.WithError(err).Error("failed to load project")
		return 1
	}

	graph, err := depgraph.Build(proj.Jobs, proj.Templates)
	if err != nil {
		log.WithError(err).Error("failed to build dependency graph")
		return 1
	}

	var signer evmchain.Signer
	if privateKey != "" {
		signer, err = evmchain.NewLocalSignerFromHex(privateKey)
		if err != nil {
			log.WithError(err).Error("failed to parse private key")
			return 1
		}
	}

	verifyRegistry, err := buildVerifyRegistry(etherscanAPIKey)
	if err != nil {
		log.WithError(err).Error("failed to build verification registry")
		return 1
	}

	eng := engine.New(engine.Config{
		Templates:               proj.Templates,
		SkipPostCheckConditions: *noPostCheck,
	})

	orch := &orchestrator.Orchestrator{
		ProjectRoot: proj.Root,
		Jobs:        proj.Jobs,
		Templates:   proj.Templates,
		Contracts:   proj.Contracts,
		Constants:   proj.Constants,
		Networks:    proj.Networks,
		Graph:       graph,
		Bus:         bus,
		Engine:      eng,
		Signer:      signer,
		Verify:      verifyRegistry,
		Options: orchestrator.Options{
			JobSelectors:     jobSelectors,
			NetworkSelectors: networkSelectors,
			EtherscanAPIKey:  etherscanAPIKey,
			RPCTimeout:       overrides.RPCTimeout,
			FailEarly:        *failEarly,
			FlatOutput:       *flatOutput,
			NoPostCheck:      *noPostCheck,
			RunDeprecated:    *runDeprecated,
			DryRun:           *dryRun,
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := orch.Run(ctx)
	if err != nil {
		log.WithError(err).Error("run failed")
		return 1
	}

	log.Infof("run finished: %d succeeded, %d failed, %d skipped", summary.Success, summary.Failed, summary.Skipped)
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func buildVerifyRegistry(etherscanAPIKey string) (*verify.Registry, error) {
	etherscan, err := verify.NewEtherscanV2(etherscanAPIKey)
	if err != nil {
		return nil, err
	}
	sourcify, err := verify.NewSourcify()
	if err != nil {
		return nil, err
	}
	return verify.NewRegistry(etherscan, sourcify), nil
}

// attachLogSink forwards every bus event to the structured logger, the
// CLI's only always-on event subscriber.
func attachLogSink(bus *eventbus.Bus, log *logger.Logger) {
	bus.SubscribeAll(func(evt eventbus.Event) {
		entry := log.WithField("kind", string(evt.Kind))
		switch evt.Level {
		case eventbus.LevelError:
			entry.Error(string(evt.Kind))
		case eventbus.LevelWarn:
			entry.Warn(string(evt.Kind))
		default:
			entry.Debug(string(evt.Kind))
		}
	})
}
