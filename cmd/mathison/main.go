package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/default-user/mathison/pkg/capabilities"
	"github.com/default-user/mathison/pkg/config"
	"github.com/default-user/mathison/pkg/crypto"
	"github.com/default-user/mathison/pkg/executor"
	"github.com/default-user/mathison/pkg/governance/reference"
	"github.com/default-user/mathison/pkg/receipts"
	"github.com/default-user/mathison/pkg/registry"
	"github.com/default-user/mathison/pkg/seal"

	_ "modernc.org/sqlite" // SQLite driver, registered for MATHISON_STORE_BACKEND=SQLITE
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing — it returns an exit code rather than
// calling os.Exit, except that serve's startup failures go through
// log.Fatalf, which exits the process.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		runServe(stdout)
		return 0
	}

	switch args[1] {
	case "serve":
		runServe(stdout)
		return 0
	case "stop":
		return runStop(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "mathison — governed execution substrate")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  mathison <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  serve    Run the pipeline server (default)")
	fmt.Fprintln(w, "  stop     Issue a STOP command for a namespace (--namespace, --trace)")
	fmt.Fprintln(w, "  verify   Verify the durable receipt chain (--store-path)")
	fmt.Fprintln(w, "  health   Check server health (HTTP)")
	fmt.Fprintln(w, "  help     Show this help")
	fmt.Fprintln(w, "")
}

// buildReceiptStore constructs the receipts.Store named by cfg, presenting
// the process-wide governance capability minted at Seal time.
func buildReceiptStore(ctx context.Context, cfg config.StoreConfig, capabilityToken []byte, signer crypto.ChainSigner) (receipts.Store, error) {
	switch cfg.Backend {
	case config.StoreBackendFile:
		return receipts.NewFileStore(cfg.Path, signer, capabilityToken)
	case config.StoreBackendSQLite:
		return receipts.OpenSQLStore(ctx, receipts.DialectSQLite, cfg.Path, signer, capabilityToken)
	default:
		return nil, fmt.Errorf("mathison: unsupported store backend %q", cfg.Backend)
	}
}

func runServe(stdout io.Writer) {
	fmt.Fprintln(stdout, "mathison: starting pipeline server")
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := config.LoadStoreConfig()
	if err != nil {
		log.Fatalf("mathison: %v", err)
	}

	capabilityToken, _, err := seal.Default.Seal()
	if err != nil {
		log.Fatalf("mathison: failed to seal storage layer: %v", err)
	}

	signer := crypto.NewHMACChainSigner()
	receiptStore, err := buildReceiptStore(ctx, cfg, capabilityToken, signer)
	if err != nil {
		log.Fatalf("mathison: failed to open receipt store: %v", err)
	}

	tokens := capabilities.NewMemoryTokenStore()

	proof := registry.NewDispatchProof()
	handlers := registry.NewHandlerRegistry(proof)
	// Production deployments register their own intent handlers before
	// sealing; none are builtin here.
	handlers.Seal()

	schemas := reference.NewSchemaSet()
	action, err := reference.NewActionPolicy(reference.DefaultActionExpression)
	if err != nil {
		log.Fatalf("mathison: failed to compile action policy: %v", err)
	}
	gov := reference.New(schemas, action)

	pipeline := executor.NewPipeline(receiptStore, tokens, handlers, proof, gov, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/v1/execute", func(w http.ResponseWriter, r *http.Request) {
		handleExecute(w, r, pipeline)
	})

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		logger.Info("mathison: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("mathison: server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Fprintln(stdout, "mathison: shutting down")
	_ = srv.Shutdown(ctx)
}

func handleExecute(w http.ResponseWriter, r *http.Request, pipeline *executor.Pipeline) {
	var reqCtx executor.RequestContext
	if err := json.NewDecoder(r.Body).Decode(&reqCtx); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := pipeline.Execute(r.Context(), &reqCtx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Success {
		w.WriteHeader(http.StatusForbidden)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runStop(args []string, stdout, stderr io.Writer) int {
	fs := flagSet("stop")
	var namespaceID, traceID string
	fs.StringVar(&namespaceID, "namespace", "", "Namespace ID to revoke (REQUIRED)")
	fs.StringVar(&traceID, "trace", "", "Trace ID of the in-flight request, if any")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if namespaceID == "" {
		fmt.Fprintln(stderr, "Error: --namespace is required")
		return 2
	}

	tokens := capabilities.NewMemoryTokenStore()
	proof := registry.NewDispatchProof()
	handlers := registry.NewHandlerRegistry(proof)
	handlers.Seal()
	schemas := reference.NewSchemaSet()
	action, err := reference.NewActionPolicy(reference.DefaultActionExpression)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	gov := reference.New(schemas, action)
	pipeline := executor.NewPipeline(nil, tokens, handlers, proof, gov, nil)

	result, err := pipeline.Stop(context.Background(), traceID, namespaceID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return 0
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flagSet("verify")
	var storePath string
	var sqlite bool
	fs.StringVar(&storePath, "store-path", "", "Path to the receipt store (REQUIRED)")
	fs.BoolVar(&sqlite, "sqlite", false, "Treat store-path as a SQLite DSN instead of a file-store directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if storePath == "" {
		fmt.Fprintln(stderr, "Error: --store-path is required")
		return 2
	}

	ctx := context.Background()
	signer := crypto.NewHMACChainSigner()

	var store receipts.Store
	var err error
	if sqlite {
		store, err = receipts.OpenSQLStore(ctx, receipts.DialectSQLite, storePath, signer, nil)
	} else {
		store, err = receipts.NewFileStore(storePath, signer, nil)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error opening store: %v\n", err)
		return 1
	}

	result, err := store.VerifyChain(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error verifying chain: %v\n", err)
		return 1
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(stdout, string(data))
	if !result.Valid {
		return 1
	}
	return 0
}

func runHealthCmd(out, errOut io.Writer) int {
	resp, err := http.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}
