package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"tronforge/cmd/internal/passphrase"
	"tronforge/config"
	"tronforge/core/types"
	"tronforge/crypto"
	"tronforge/deploy"
	"tronforge/observability/logging"
	"tronforge/rpc"
	"tronforge/signer"
)

var configPath = defaultConfigPath() // Defaults to ./tronforge.toml, can be overridden via TRONFORGE_CONFIG or --config flag
var nodeOverride = ""

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		generateKey()
	case "account":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		showAccount(args[1])
	case "resolve":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an operation (deploy or invoke).")
			printUsage()
			return
		}
		resolvePermission(args[1])
	case "estimate":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a template file.")
			printUsage()
			return
		}
		estimateDeploy(args[1])
	case "deploy":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a template file and a token address.")
			printUsage()
			return
		}
		params := ""
		if len(args) > 3 {
			params = args[3]
		}
		deployContract(args[1], args[2], params)
	case "invoke":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a contract address and call data.")
			printUsage()
			return
		}
		var callValue int64
		if len(args) > 3 {
			callValue, err = strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				fmt.Println("Error: Invalid call value.")
				return
			}
		}
		invokeContract(args[1], args[2], callValue)
	default:
		fmt.Printf("Error: Unknown command '%s'\n", command)
		printUsage()
	}
}

func defaultConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("TRONFORGE_CONFIG")); v != "" {
		return v
	}
	return "tronforge.toml"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
			continue
		}
		if arg == "--node" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --node")
			}
			nodeOverride = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--node=") {
			nodeOverride = strings.TrimPrefix(arg, "--node=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	if _, err := os.Stat(cfg.KeystorePath); err == nil {
		fmt.Printf("Error: keystore %s already exists; move it aside before generating a new key.\n", cfg.KeystorePath)
		return
	}

	pass, err := passphrase.NewSource(cfg.PassphraseEnv, passphrase.WithConfirmation()).Get()
	if err != nil {
		fmt.Printf("Error resolving passphrase: %v\n", err)
		return
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	if err := crypto.SaveToKeystore(cfg.KeystorePath, key, pass); err != nil {
		fmt.Printf("Error saving keystore: %v\n", err)
		return
	}

	fmt.Printf("Generated new key and saved to %s\n", cfg.KeystorePath)
	fmt.Printf("Your address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely. Deployment commands will refuse to run without it.")
}

func showAccount(addr string) {
	cfg, client, err := dial()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	address, err := crypto.DecodeAddress(addr)
	if err != nil {
		fmt.Printf("Error: invalid address: %v\n", err)
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	account, err := client.GetAccount(ctx, address)
	if err != nil {
		fmt.Printf("Error fetching account: %v\n", err)
		return
	}

	fmt.Printf("Account on %s: %s\n", cfg.NetworkName, account.Address.String())
	for _, p := range account.Permissions() {
		fmt.Printf("  Permission %d (%s, %q) threshold=%d\n", p.ID, p.Kind, p.Name, p.Threshold)
		for _, key := range p.Keys {
			fmt.Printf("    key %s weight=%d\n", key.Address.String(), key.Weight)
		}
		fmt.Printf("    deploy=%v invoke=%v\n",
			p.Operations.Has(types.OpCreateSmartContract),
			p.Operations.Has(types.OpTriggerSmartContract))
	}

	resources, err := client.GetAccountResources(ctx, address)
	if err != nil {
		fmt.Printf("Error fetching resources: %v\n", err)
		return
	}
	fmt.Printf("  Energy:    %d / %d\n", resources.EnergyUsed, resources.EnergyLimit)
	fmt.Printf("  Bandwidth: %d / %d (free %d / %d)\n",
		resources.NetUsed, resources.NetLimit, resources.FreeNetUsed, resources.FreeNetLimit)
}

func resolvePermission(op string) {
	opBit, err := operationBit(op)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	engine, provider, err := buildEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	resolution, err := engine.ResolveSigner(ctx, opBit)
	if err != nil {
		fmt.Printf("Error resolving permission: %v\n", err)
		return
	}

	fmt.Printf("Signer %s would use permission %d (risk: %s)\n",
		provider.Address().String(), resolution.PermissionID, resolution.Risk)
	for _, c := range resolution.Trace {
		marker := " "
		if c.PermissionID == resolution.PermissionID {
			marker = "*"
		}
		fmt.Printf(" %s permission %d (%s, %q) threshold=%d key=%v capability=%v\n",
			marker, c.PermissionID, c.Kind, c.Name, c.Threshold, c.KeyPresent, c.HasCapability)
	}
	switch resolution.Risk {
	case deploy.RiskMultisigRequired:
		fmt.Println("Warning: the selected permission needs co-signatures this tool does not collect.")
	case deploy.RiskLikelyToFail:
		fmt.Println("Warning: no permission both holds the key and grants the capability; submission will likely be rejected.")
	}
}

func estimateDeploy(templatePath string) {
	template, err := deploy.LoadTemplate(templatePath)
	if err != nil {
		fmt.Printf("Error loading template: %v\n", err)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	estimator := deploy.NewEstimator(deploy.EstimatorParams{
		EnergyPriceSun:    cfg.EnergyPriceSun,
		EnergyPerCodeByte: cfg.EnergyPerCodeByte,
		HardFeeCeilingSun: cfg.FeeCeilingSun,
	}, logging.Setup("tronforge-cli", cfg.NetworkName))

	est := estimator.Estimate(template.Bytecode, template.ABI, deploy.ModeDeploy)
	fmt.Printf("Estimate for template %q:\n", template.Name)
	fmt.Printf("  Storage units:     %d\n", est.StorageUnits)
	fmt.Printf("  Execution units:   %d\n", est.ExecutionUnits)
	fmt.Printf("  Total units:       %d\n", est.TotalUnits)
	fmt.Printf("  Cost:              %d sun\n", est.CostSun)
	fmt.Printf("  Recommended limit: %d sun\n", est.RecommendedFeeLimitSun)
	if est.Fallback {
		fmt.Println("  (conservative fallback; bytecode could not be analysed)")
	}
}

func deployContract(templatePath, tokenAddress, constructorParams string) {
	template, err := deploy.LoadTemplate(templatePath)
	if err != nil {
		fmt.Printf("Error loading template: %v\n", err)
		return
	}

	engine, _, err := buildEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	outcome, err := engine.DeployContract(ctx, deploy.DeployRequest{
		Template:          template,
		TokenAddress:      tokenAddress,
		ConstructorParams: constructorParams,
		ContractName:      template.Name,
	})
	if err != nil {
		fmt.Printf("Error preparing deployment: %v\n", err)
		return
	}
	reportOutcome(outcome)
}

func invokeContract(contractAddress, data string, callValue int64) {
	engine, _, err := buildEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	outcome, err := engine.InvokeContract(ctx, deploy.InvokeRequest{
		ContractAddress: contractAddress,
		Data:            data,
		CallValue:       callValue,
	})
	if err != nil {
		fmt.Printf("Error preparing invocation: %v\n", err)
		return
	}
	reportOutcome(outcome)
}

func reportOutcome(outcome *deploy.Outcome) {
	switch {
	case outcome.Success:
		fmt.Printf("Confirmed via %s strategy.\n", outcome.Strategy)
		fmt.Printf("  Transaction: %s\n", outcome.TxID)
		if outcome.ContractAddress != "" {
			fmt.Printf("  Contract:    %s\n", outcome.ContractAddress)
		}
	case outcome.Ambiguous:
		fmt.Println("Result is ambiguous: the transaction was broadcast but not confirmed in time.")
		fmt.Printf("  Transaction: %s\n", outcome.TxID)
		if outcome.ExplorerHint != "" {
			fmt.Printf("  Check:       %s\n", outcome.ExplorerHint)
		}
		fmt.Println("Do not resubmit before verifying; a second attempt may double-deploy.")
	default:
		fmt.Printf("Failed (%s): %s\n", outcome.Category, outcome.Message)
		if outcome.Diagnostics != nil {
			printDiagnostics(outcome.Diagnostics)
		}
	}
}

func printDiagnostics(report *deploy.Report) {
	fmt.Printf("  Signer:     %s\n", report.SignerAddress)
	fmt.Printf("  Permission: %d (%s) found=%v key=%v capability=%v threshold=%d\n",
		report.UsedPermissionID, report.PermissionKind, report.PermissionFound,
		report.KeyPresent, report.CapabilitySet, report.Threshold)
	for _, note := range report.Notes {
		fmt.Printf("  Note: %s\n", note)
	}
	for _, step := range report.Remediation {
		fmt.Printf("  Try:  %s\n", step)
	}
}

func dial() (*config.Config, *rpc.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	endpoint := cfg.NodeEndpoint
	if nodeOverride != "" {
		endpoint = nodeOverride
	}
	client, err := rpc.New(endpoint,
		rpc.WithAPIKey(cfg.APIKey()),
		rpc.WithRateLimit(cfg.RequestsPerSec, cfg.RequestBurst),
		rpc.WithMaxInFlight(cfg.MaxInFlight),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting node client: %w", err)
	}
	return cfg, client, nil
}

func buildEngine() (*deploy.Engine, signer.Provider, error) {
	cfg, client, err := dial()
	if err != nil {
		return nil, nil, err
	}

	pass, err := passphrase.NewSource(cfg.PassphraseEnv).Get()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving passphrase: %w", err)
	}
	provider, err := signer.LocalFromKeystore(cfg.KeystorePath, pass)
	if err != nil {
		return nil, nil, fmt.Errorf("opening keystore: %w", err)
	}

	log := logging.Setup("tronforge-cli", cfg.NetworkName)
	engine, err := deploy.NewEngine(client, provider,
		deploy.WithLogger(log),
		deploy.WithEstimatorParams(deploy.EstimatorParams{
			EnergyPriceSun:    cfg.EnergyPriceSun,
			EnergyPerCodeByte: cfg.EnergyPerCodeByte,
			HardFeeCeilingSun: cfg.FeeCeilingSun,
		}),
		deploy.WithPolling(cfg.PollInterval(), cfg.PollAttempts),
		deploy.WithFeeCeiling(cfg.FeeCeilingSun),
		deploy.WithExplorerURL(cfg.ExplorerURL),
	)
	if err != nil {
		return nil, nil, err
	}
	return engine, provider, nil
}

func operationBit(op string) (uint, error) {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "deploy":
		return types.OpCreateSmartContract, nil
	case "invoke":
		return types.OpTriggerSmartContract, nil
	default:
		return 0, fmt.Errorf("unknown operation %q (want deploy or invoke)", op)
	}
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printUsage() {
	fmt.Println("Usage: tronforge-cli [--config <file>] [--node <url>] <command> [arguments]")
	fmt.Println()
	fmt.Println("Signing commands need a local keystore. Run ./tronforge-cli generate-key first;")
	fmt.Println("the passphrase is read from the configured environment variable or prompted.")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                                  - Generates a key and saves an encrypted keystore")
	fmt.Println("  account <address>                             - Shows permissions and resources of an address")
	fmt.Println("  resolve <deploy|invoke>                       - Shows which permission the local key would sign with")
	fmt.Println("  estimate <template.yaml>                      - Prices a deployment without submitting it")
	fmt.Println("  deploy <template.yaml> <token-addr> [params]  - Patches, prices and deploys a contract template")
	fmt.Println("  invoke <contract-addr> <data-hex> [value]     - Calls a state-changing contract function")
}
