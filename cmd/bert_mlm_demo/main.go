// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// bert_mlm_demo builds a BERT encoder with its masked language model and next sentence
// prediction heads, runs it on a random toy batch and prints the shapes of the outputs
// and the per-position losses.
//
// Usage:
//
//	go run ./cmd/bert_mlm_demo
//	go run ./cmd/bert_mlm_demo -set="bert_num_layers=1;bert_num_hiddens=128" -vars -seed=42
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/bert/ui/summary"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagSeed      = flag.Int64("seed", 0, "Seed for the random tokens and variables initialization. If 0, a random seed is used.")
	flagTrainMode = flag.Bool("train_mode", false, "Build the graph in training mode, with dropout active.")
	flagVars      = flag.Bool("vars", false, "List the model variables.")
	flagParams    = flag.Bool("params", false, "List the hyperparameters.")
)

func main() {
	ctx := CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	klog.V(1).Infof("Hyperparameters set: %v", paramsSet)

	backend := must.M1(backends.New())
	defer backend.Finalize()
	klog.V(1).Infof("Backend: %s", backend.Description())

	if *flagParams {
		fmt.Println(summary.Title("Hyperparameters"))
		fmt.Println(summary.Params(ctx))
	}
	results, err := Run(backend, ctx, Options{Seed: *flagSeed, TrainMode: *flagTrainMode})
	if err != nil {
		exitWithError(backend, err)
	}
	results.Print(os.Stdout, ctx, *flagVars)
}

// fatalf logs and exits, it is replaced in tests.
var fatalf = klog.Fatalf

// exitWithError finalizes the backend before exiting: fatalf doesn't run the deferred calls.
func exitWithError(backend interface{ Finalize() }, err error) {
	backend.Finalize()
	fatalf("Failed with error: %+v", err)
}
