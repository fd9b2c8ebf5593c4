// Command cpptext runs the C preprocessor over files and captures the text.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/deixis/cpptext"
	"github.com/deixis/cpptext/internal/config"
	"github.com/deixis/cpptext/internal/logger"
	cppmcp "github.com/deixis/cpptext/internal/mcp"
	"github.com/deixis/cpptext/internal/report"
	"github.com/deixis/cpptext/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("cpptext: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runMain(args)
	case "mcp":
		err = mcpMain(args)
	case "doctor":
		err = doctorMain(args)
	case "version":
		fmt.Println(cpptext.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "cpptext: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: cpptext <command> [flags] [files]

Commands:
  run         Preprocess files with cpp -P and print the text
  mcp         Start the MCP server
  doctor      Show configuration and check the preprocessor is installed
  version     Print the version
  help        Show this help

Use "cpptext <command> -h" for command-specific flags.`)
}

// --- run ---

func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output run records as JSON")
	verboseFlag := fs.Bool("v", false, "verbose output")
	timeoutFlag := fs.Duration("timeout", 0, "override configured timeout (e.g. 30s)")
	_ = fs.Parse(args)

	files := fs.Args()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lg := logger.New()
	lg.SetVerbose(*verboseFlag)

	eng, err := newEngine(lg, *timeoutFlag)
	if err != nil {
		return err
	}

	results, err := eng.Preprocess(ctx, files)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if *jsonFlag {
		records := make([]*report.Record, len(results))
		for i, r := range results {
			records[i] = r.Record
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			lg.Debug("%s", r.Record.Summary())
			fmt.Print(r.Outcome.Text)
		}
	}

	if workflow.Failed(results) {
		os.Exit(1)
	}
	return nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	verboseFlag := fs.Bool("v", false, "verbose output")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(cppmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lg := logger.New()
	lg.SetVerbose(*verboseFlag)

	return serve(ctx, lg, *httpAddr)
}

func serve(ctx context.Context, lg *logger.Logger, httpAddr string) error {
	eng, err := newEngine(lg, 0)
	if err != nil {
		return err
	}

	server := cppmcp.NewServer(eng, eng.Store)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- doctor ---

func doctorMain(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	_ = fs.Parse(args)

	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	timeout := "none"
	if d := cfg.Timeout(); d > 0 {
		timeout = d.String()
	}
	fmt.Printf("config root:  %s\n", loaded.Root)
	fmt.Printf("command:      %s\n", cfg.PreprocessorCommand())
	fmt.Printf("timeout:      %s\n", timeout)
	fmt.Printf("workers:      %d\n", cfg.Workers())
	fmt.Printf("cache:        %d\n", cfg.CacheSize())
	for _, w := range loaded.Warnings {
		fmt.Printf("warning:      %s\n", w)
	}

	path, err := workflow.ResolveTool(cfg.PreprocessorCommand())
	if err != nil {
		fmt.Println()
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Printf("preprocessor: %s\n", path)
	return nil
}

// --- shared ---

func newEngine(lg *logger.Logger, timeoutOverride time.Duration) (*workflow.Engine, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	for _, w := range loaded.Warnings {
		lg.Warn("%s", w)
	}
	cfg := loaded.Config

	if timeoutOverride > 0 {
		cfg.RawTimeout = timeoutOverride.String()
	}

	store := report.NewLRUStore(cfg.CacheSize(), report.NewDiskStore(""))
	return workflow.New(cfg, workspace, store, lg), nil
}
