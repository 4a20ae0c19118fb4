// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	nyx "github.com/nyxlang/nyx"
)

var verbose bool

func main() {
	var rootCmd = &cobra.Command{
		Use:   "nyxctl",
		Short: "Operate and inspect a nyx engine instance",
		Long:  "nyxctl loads precompiled chunks, forces collection cycles, and serves live introspection for a nyx embedder.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Long:  "Print the engine version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nyx %s\n", nyx.EngineVersion)
		},
	}

	var gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "Force a full collection cycle and print before/after stats",
		Long:  "Force a full collection cycle and print before/after stats",
		Run:   runGC,
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only introspection HTTP server",
		Long:  "Start the read-only introspection HTTP server",
		Run:   runServe,
	}
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "127.0.0.1:8787", "address to listen on")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dumpCmd())
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
