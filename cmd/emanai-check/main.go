// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/emancancode/emanai/services/llm"
	"github.com/emancancode/emanai/services/relay/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	checkTimeout    time.Duration // Per-check timeout
	checkSkipChat   bool          // Skip the round-trip chat check
	checkJSONOutput bool          // Output as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// rootCmd verifies upstream connectivity before the relay goes live.
//
// # Description
//
// Runs two checks against the configured Ollama endpoint: a model
// listing (proves the endpoint is reachable) and a one-shot chat
// completion (proves the default model loads and answers). Exits
// non-zero when either check fails.
//
// # Examples
//
//	emanai-check                  # Both checks with defaults
//	emanai-check --skip-chat      # Reachability only
//	emanai-check --timeout 2m     # Slow model warm-up
var rootCmd = &cobra.Command{
	Use:   "emanai-check",
	Short: "Verify connectivity to the configured Ollama endpoint",
	Long: `Verifies that the relay's upstream Ollama endpoint is usable.

Two checks run in order:
  1. Model listing via /api/tags (reachability)
  2. One-shot chat completion (model availability)

Configuration comes from the environment or a local .env file, using the
same keys as the relay server (OLLAMA_BASE_URL, OLLAMA_MODEL, ...).`,
	RunE: runChecks,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	rootCmd.Flags().DurationVar(&checkTimeout, "timeout", 60*time.Second,
		"Timeout applied to each check")
	rootCmd.Flags().BoolVar(&checkSkipChat, "skip-chat", false,
		"Skip the chat round-trip check")
	rootCmd.Flags().BoolVar(&checkJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

type checkReport struct {
	BaseReachable bool   `json:"baseReachable"`
	ModelCount    int    `json:"modelCount"`
	ChatOK        bool   `json:"chatOk"`
	ChatAnswer    string `json:"chatAnswer,omitempty"`
	Error         string `json:"error,omitempty"`
}

func runChecks(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	client, err := llm.NewOllamaClient()
	if err != nil {
		return fmt.Errorf("client setup failed: %w", err)
	}

	report := checkReport{}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	raw, err := client.ListModels(ctx)
	cancel()
	if err != nil {
		report.Error = err.Error()
		return emit(report, fmt.Errorf("model listing failed: %w", err))
	}
	report.BaseReachable = true

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(raw, &tags); err == nil {
		report.ModelCount = len(tags.Models)
	}

	if !checkSkipChat {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		answer, err := client.Chat(ctx, []datatypes.Message{
			datatypes.NewMessage("user", "Say 'Hello!' and nothing else."),
		}, llm.GenerationParams{})
		cancel()
		if err != nil {
			report.Error = err.Error()
			return emit(report, fmt.Errorf("chat check failed: %w", err))
		}
		report.ChatOK = true
		report.ChatAnswer = llm.FilterReasoning(answer)
	}

	return emit(report, nil)
}

func emit(report checkReport, failure error) error {
	if checkJSONOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return failure
	}

	status := func(ok bool) string {
		if ok {
			return "OK"
		}
		return "FAIL"
	}
	fmt.Printf("upstream reachable: %s (%d models)\n",
		status(report.BaseReachable), report.ModelCount)
	if !checkSkipChat {
		fmt.Printf("chat round-trip:    %s\n", status(report.ChatOK))
		if report.ChatAnswer != "" {
			fmt.Printf("model answered:     %q\n", report.ChatAnswer)
		}
	}
	if report.Error != "" {
		fmt.Printf("error:              %s\n", report.Error)
	}
	return failure
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
