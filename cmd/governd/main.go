// Command governd is the governance core CLI: policy evaluation, audit
// log inspection, and compliance report generation over the packages
// under pkg/.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/agentgov/governance-core/internal/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint: args is os.Args-shaped (args[0] is
// the binary name).
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServeCmd(args[2:], stdout, stderr)
	case "policy":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: governd policy <eval>")
			return 2
		}
		return runPolicyCmd(args[2], args[3:], stdout, stderr)
	case "audit":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: governd audit <append|verify>")
			return 2
		}
		return runAuditCmd(args[2], args[3:], stdout, stderr)
	case "report":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: governd report <generate>")
			return 2
		}
		return runReportCmd(args[2], args[3:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "governd (governance core) dev")
		return 0
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
	fmt.Fprintln(w, "governd - governance core CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  governd serve                  start the HTTP health/metadata server")
	fmt.Fprintln(w, "  governd policy eval             evaluate a policy document against a request")
	fmt.Fprintln(w, "  governd audit append            append an entry to a tenant's audit log")
	fmt.Fprintln(w, "  governd audit verify            verify a tenant's audit log hash chain")
	fmt.Fprintln(w, "  governd report generate         generate a compliance report")
	fmt.Fprintln(w, "  governd version                 print the version")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 1
	}
	logger := newLogger(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Info("governd listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		fmt.Fprintf(stderr, "server exited: %v\n", err)
		return 1
	}
	return 0
}
