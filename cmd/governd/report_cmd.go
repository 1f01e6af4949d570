package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/agentgov/governance-core/pkg/auditstore"
	"github.com/agentgov/governance-core/pkg/evidence"
	"github.com/agentgov/governance-core/pkg/hashing"
	"github.com/agentgov/governance-core/pkg/report"
	"github.com/agentgov/governance-core/pkg/reportstore"
	"github.com/agentgov/governance-core/pkg/violation"
)

func runReportCmd(sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "generate":
		return runReportGenerateCmd(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown report subcommand: %s\n", sub)
		return 2
	}
}

func runReportGenerateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("report generate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		tenantID     string
		organization string
		framework    string
		periodType   string
		outputFormat string
	)
	cmd.StringVar(&tenantID, "tenant", "", "Tenant ID (REQUIRED)")
	cmd.StringVar(&organization, "org", "", "Organization name")
	cmd.StringVar(&framework, "framework", string(report.FrameworkSOC2Type1), "Compliance framework")
	cmd.StringVar(&periodType, "period", string(report.PeriodMonthly), "Reporting period: daily|weekly|monthly|quarterly|yearly")
	cmd.StringVar(&outputFormat, "format", string(report.OutputBoth), "Output format: json|markdown|both")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if tenantID == "" {
		fmt.Fprintln(stderr, "report generate: -tenant is required")
		return 2
	}

	period, err := report.ComputePeriod(report.PeriodType(periodType), time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "report generate: %v\n", err)
		return 1
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(stderr, "report generate: generate signing key: %v\n", err)
		return 1
	}
	signer := hashing.NewEd25519KeySigner("ephemeral", priv)

	auditLogs := map[string]auditstore.LogIdentity{
		tenantID: {TenantID: tenantID, Scope: "org", ScopeID: organization},
	}
	collector := evidence.NewReferenceCollector(
		auditstore.NewMemoryStore(),
		auditLogs,
		violation.NewMemoryStore(),
		evidence.ControlMapping{},
	)

	store := reportstore.NewMemoryStore()
	generator := report.NewGenerator(report.GeneratorConfig{
		Evidence:  collector,
		Store:     store,
		Signer:    signer,
		SignKeyID: "ephemeral",
		SignAlgo:  "ed25519",
	})

	req := report.Request{
		TenantID:              tenantID,
		Organization:          organization,
		Framework:             report.Framework(framework),
		Period:                period,
		CollectEvidence:       true,
		MaxEvidencePerControl: 20,
		OutputFormat:          report.OutputFormat(outputFormat),
	}

	generated, err := generator.Generate(context.Background(), req)
	if err != nil {
		fmt.Fprintf(stderr, "report generate: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(generated, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "report generate: encode report: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
