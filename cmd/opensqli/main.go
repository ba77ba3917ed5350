package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
	"github.com/PentesterFlow/OpenSQLi/internal/history"
	"github.com/PentesterFlow/OpenSQLi/internal/output"
	"github.com/PentesterFlow/OpenSQLi/pkg/scanner"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Scan flags
	target            string
	workers           int
	timeout           int
	retries           int
	retryBackoff      int
	rateLimit         float64
	probeDelay        int
	flattenDepth      int
	includeDeprecated bool
	techniques        []string
	payloadFile       string
	headers           []string
	userAgent         string
	insecure          bool
	proxyURL          string
	outputFile        string
	outputFormat      string
	pretty            bool
	stream            bool
	historyDB         string

	// Performance flags
	turboMode    bool
	thoroughMode bool

	// Display flags
	showProgress bool
	noProgress   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opensqli",
		Short: "OpenSQLi - API SQL Injection Scanner",
		Long: `OpenSQLi - A SQL injection scanner driven by OpenAPI and Swagger descriptions.

Reads an API description, derives every injectable parameter (path, query,
header and request body fields), and probes each one with error-based,
boolean-based, time-based and UNION-based techniques.`,
		Version: version,
	}

	// Scan command
	scanCmd := &cobra.Command{
		Use:   "scan [spec]",
		Short: "Scan an API described by an OpenAPI or Swagger document",
		Long:  "Scan the API described by the given OpenAPI 3.x or Swagger 2.0 document (URL or file path).",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	// History command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect archived scan reports",
	}
	historyListCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived reports",
		RunE:  runHistoryList,
	}
	historyShowCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one archived report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	historyDeleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one archived report",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "History database file (bbolt)")

	// Scan flags
	scanCmd.Flags().StringVar(&target, "target", "", "Base URL override (default: derived from the description)")
	scanCmd.Flags().IntVarP(&workers, "workers", "w", 10, "Number of concurrent workers")
	scanCmd.Flags().IntVarP(&timeout, "timeout", "t", 10, "Request timeout in seconds")
	scanCmd.Flags().IntVar(&retries, "retries", 2, "Retries on transport failure")
	scanCmd.Flags().IntVar(&retryBackoff, "retry-backoff", 500, "Retry backoff base in milliseconds")
	scanCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 20, "Requests per second (0 for unlimited)")
	scanCmd.Flags().IntVar(&probeDelay, "probe-delay", 0, "Fixed gap before every probe in milliseconds (0 disables)")
	scanCmd.Flags().IntVar(&flattenDepth, "flatten-depth", 5, "Request body flattening depth")
	scanCmd.Flags().BoolVar(&includeDeprecated, "include-deprecated", false, "Probe operations marked deprecated too")
	scanCmd.Flags().StringSliceVar(&techniques, "techniques", nil, "Techniques to run (error, boolean, time, union; default all)")
	scanCmd.Flags().StringVar(&payloadFile, "payloads", "", "Extra payload file (YAML), merged into the built-in catalog")
	scanCmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Header attached to every probe (Name: Value, repeatable)")
	scanCmd.Flags().StringVar(&userAgent, "user-agent", "", "User agent for all requests")
	scanCmd.Flags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	scanCmd.Flags().StringVar(&proxyURL, "proxy", "", "Upstream proxy (http://, https:// or socks5://)")
	scanCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	scanCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, text)")
	scanCmd.Flags().BoolVar(&pretty, "pretty", true, "Indent JSON output")
	scanCmd.Flags().BoolVar(&stream, "stream", false, "Emit findings as they are confirmed")

	// Performance flags
	scanCmd.Flags().BoolVar(&turboMode, "turbo", false, "TURBO MODE: Maximum speed (50 workers, no time-based probes)")
	scanCmd.Flags().BoolVar(&thoroughMode, "thorough", false, "Thorough mode: slower, deeper body flattening, deprecated operations included")

	// Display flags
	scanCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress bar during the scan")
	scanCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar (use verbose logging instead)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	spec := args[0]

	// Build configuration based on mode
	var config *scanner.Config
	if turboMode {
		config = scanner.TurboConfig()
		fmt.Println("⚡ TURBO MODE ENABLED - Maximum Speed!")
	} else if thoroughMode {
		config = scanner.ThoroughConfig()
		fmt.Println("🔍 Thorough Mode - Coverage over speed")
	} else {
		config = scanner.DefaultConfig()
	}

	// Load config file if provided; command line overrides it below
	if configFile != "" {
		fileConfig, err := scanner.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	config.Spec = spec

	// Override with command-line flags if provided
	if cmd.Flags().Changed("target") {
		config.Target = target
	}
	if cmd.Flags().Changed("workers") {
		config.Workers = workers
	}
	if cmd.Flags().Changed("timeout") {
		config.Timeout = time.Duration(timeout) * time.Second
	}
	if cmd.Flags().Changed("retries") {
		config.MaxRetries = retries
	}
	if cmd.Flags().Changed("retry-backoff") {
		config.RetryBackoff = time.Duration(retryBackoff) * time.Millisecond
	}
	if cmd.Flags().Changed("rate-limit") {
		config.RateLimit.RequestsPerSecond = rateLimit
	}
	if cmd.Flags().Changed("probe-delay") {
		config.ProbeDelay = time.Duration(probeDelay) * time.Millisecond
	}
	if cmd.Flags().Changed("flatten-depth") {
		config.FlattenDepth = flattenDepth
	}
	if cmd.Flags().Changed("include-deprecated") {
		config.IncludeDeprecated = includeDeprecated
	}
	if cmd.Flags().Changed("techniques") {
		config.Techniques = techniques
	}
	if cmd.Flags().Changed("payloads") {
		config.PayloadFile = payloadFile
	}
	if cmd.Flags().Changed("user-agent") {
		config.UserAgent = userAgent
	}
	if cmd.Flags().Changed("insecure") {
		config.SkipTLSVerify = insecure
	}
	if cmd.Flags().Changed("proxy") {
		config.Proxy = proxyURL
	}
	if cmd.Flags().Changed("output") {
		config.Output.FilePath = outputFile
	}
	if cmd.Flags().Changed("format") {
		config.Output.Format = outputFormat
	}
	if cmd.Flags().Changed("pretty") {
		config.Output.Pretty = pretty
	}
	if cmd.Flags().Changed("stream") {
		config.Output.Stream = stream
	}
	if historyDB != "" {
		config.HistoryPath = historyDB
	}
	config.Verbose = verbose
	config.Debug = debug

	for _, h := range headers {
		name, value, err := splitHeader(h)
		if err != nil {
			return err
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		config.Headers[name] = value
	}

	// Progress bar and verbose logging fight over the terminal
	enableProgress := showProgress && !noProgress && !verbose && !debug

	s, err := scanner.New(
		scanner.WithConfig(config),
		scanner.WithProgress(enableProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, finishing in-flight probes...\n")
		cancel()
	}()

	if !enableProgress {
		printBanner(spec, config)
	} else {
		fmt.Println()
		fmt.Printf("OpenSQLi v%s - Starting scan...\n", version)
		fmt.Printf("Spec: %s\n", spec)
		fmt.Println()
	}

	result, err := s.Start(ctx)
	if err != nil {
		if code := scanerrors.GetStatusCode(err); code != 0 {
			return fmt.Errorf("scan failed (HTTP %d): %w", code, err)
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	if !enableProgress {
		printSummary(result)
	}

	// Non-zero exit when the target was not fully scanned or injections
	// were found, so pipelines can gate on it.
	switch {
	case result.Status != scanner.StatusCompleted:
		os.Exit(2)
	case len(result.Findings) > 0:
		os.Exit(1)
	}
	return nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No archived reports.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%-45s  %-9s  %8s  %3d findings  %s\n",
			e.ID, e.Status, e.Duration, e.Findings, e.Target)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Get(args[0])
	if err != nil {
		return err
	}

	return output.NewJSONWriter(os.Stdout, true, false).WriteReport(report)
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func openHistory() (*history.Store, error) {
	if historyDB == "" {
		return nil, fmt.Errorf("no history database specified (use --history-db)")
	}
	return history.Open(historyDB)
}

// splitHeader parses "Name: Value" (the colon-space form curl uses).
func splitHeader(h string) (string, string, error) {
	idx := strings.Index(h, ":")
	if idx <= 0 {
		return "", "", fmt.Errorf("invalid header %q (expected \"Name: Value\")", h)
	}
	return strings.TrimSpace(h[:idx]), strings.TrimSpace(h[idx+1:]), nil
}

func printBanner(spec string, config *scanner.Config) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        OpenSQLi v1.0                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Spec:       %s\n", spec)
	if config.Target != "" {
		fmt.Printf("Target:     %s\n", config.Target)
	}
	fmt.Printf("Workers:    %d\n", config.Workers)
	fmt.Printf("Rate Limit: %.0f req/s\n", config.RateLimit.RequestsPerSecond)
	if len(config.Techniques) > 0 {
		fmt.Printf("Techniques: %s\n", strings.Join(config.Techniques, ", "))
	}
	fmt.Println()
	fmt.Println("Starting scan...")
	fmt.Println()
}

func printSummary(result *scanner.Result) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        Scan Summary                          ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Status:           %s\n", result.Status)
	fmt.Printf("Duration:         %v\n", result.CompletedAt.Sub(result.StartedAt).Round(time.Second))
	fmt.Printf("Endpoints:        %d\n", result.Stats.Endpoints)
	fmt.Printf("Parameters Tried: %d\n", result.Stats.ParametersTried)
	fmt.Printf("Probes Sent:      %d\n", result.Stats.ProbesSent)
	fmt.Printf("Transport Errors: %d\n", result.Stats.TransportErrors)
	fmt.Printf("Findings:         %d\n", result.Stats.FindingCount)
	fmt.Println()

	if len(result.Findings) > 0 {
		fmt.Println("Findings:")
		count := 10
		if len(result.Findings) < count {
			count = len(result.Findings)
		}
		for i := 0; i < count; i++ {
			f := result.Findings[i]
			fmt.Printf("  [%s/%s] %s %s param=%s (%s)\n",
				f.Technique, f.Confidence, f.Method, f.Path, f.Parameter, f.Location)
		}
		if len(result.Findings) > 10 {
			fmt.Printf("  ... and %d more\n", len(result.Findings)-10)
		}
		fmt.Println()
	}
}
