package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/agentgov/governance-core/pkg/policy"
)

// evalInput is the on-disk shape for `governd policy eval -in <file>`:
// a policy document (and, optionally, its parent chain) plus the
// request to evaluate against it.
type evalInput struct {
	Document *policy.Document   `json:"document"`
	Parent   *policy.Document   `json:"parent,omitempty"`
	Request  policy.Request     `json:"request"`
}

func runPolicyCmd(sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "eval":
		return runPolicyEvalCmd(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown policy subcommand: %s\n", sub)
		return 2
	}
}

func runPolicyEvalCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("policy eval", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var inputPath string
	cmd.StringVar(&inputPath, "in", "", "Path to JSON file with {document, parent?, request} (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		fmt.Fprintln(stderr, "policy eval: -in is required")
		return 2
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "policy eval: read input: %v\n", err)
		return 1
	}

	var in evalInput
	if err := json.Unmarshal(data, &in); err != nil {
		fmt.Fprintf(stderr, "policy eval: parse input: %v\n", err)
		return 1
	}
	if in.Document == nil {
		fmt.Fprintln(stderr, "policy eval: input.document is required")
		return 2
	}

	resolved := &policy.ResolvedPolicy{Document: in.Document}
	if in.Parent != nil {
		resolved.Parent = &policy.ResolvedPolicy{Document: in.Parent}
	}

	engine := policy.NewEngine(nil)
	result, err := engine.Evaluate(resolved, in.Request)
	if eef, ok := err.(*policy.ErrEvaluationFailed); ok {
		result = policy.Result{Allowed: false, Effect: policy.EffectDeny, Reason: "evaluation_error", MatchedRule: eef.RuleID}
		err = nil
	}
	if err != nil {
		fmt.Fprintf(stderr, "policy eval: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "policy eval: encode result: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
