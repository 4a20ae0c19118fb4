// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	nyx "github.com/nyxlang/nyx"
)

var serveAddr string

func prettyPrint(buf []byte) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf, "", "\t"); err != nil {
		return string(buf)
	}
	return pretty.String()
}

// protoSummary is the JSON-friendly slice of a *nyx.FuncProto's fields
// nyxctl dump prints, standing in for pedumper.go's pe.DosHeader/NtHeader
// struct marshaling (there is no scripted header to load here; instead
// this summarizes whatever prototype a precompiled chunk's top level
// decodes to).
type protoSummary struct {
	NumParams      int  `json:"num_params"`
	IsVararg       bool `json:"is_vararg"`
	MaxStack       int  `json:"max_stack"`
	NumConstants   int  `json:"num_constants"`
	NumInstrs      int  `json:"num_instructions"`
	NumNestedProto int  `json:"num_nested_protos"`
	NumUpvalues    int  `json:"num_upvalues"`
	LineDefined    int  `json:"line_defined"`
	Source         string `json:"source"`
}

func summarize(p *nyx.FuncProto) protoSummary {
	return protoSummary{
		NumParams:      p.NumParams,
		IsVararg:       p.IsVararg,
		MaxStack:       p.MaxStack,
		NumConstants:   len(p.Constants),
		NumInstrs:      len(p.Code),
		NumNestedProto: len(p.Protos),
		NumUpvalues:    len(p.Upvalues),
		LineDefined:    p.LineDefined,
		Source:         p.Source,
	}
}

func dumpCmd() *cobra.Command {
	var sigPath string
	var requireSigned bool

	cmd := &cobra.Command{
		Use:   "dump <chunk-path>",
		Short: "Load a precompiled chunk and print its top-level prototype",
		Long:  "Load a precompiled chunk and print its top-level prototype's header and structural stats",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := args[0]
			if verbose {
				log.Printf("loading chunk %s", path)
			}

			g := nyx.NewGlobalState(nil)
			proto, err := nyx.LoadFile(g, path, sigPath, &nyx.LoadOptions{RequireSignedChunks: requireSigned})
			if err != nil {
				log.Fatalf("failed to load %s: %v", path, err)
			}

			out, err := json.Marshal(summarize(proto))
			if err != nil {
				log.Fatalf("failed to marshal prototype summary: %v", err)
			}
			fmt.Println(prettyPrint(out))
		},
	}
	cmd.Flags().StringVar(&sigPath, "sig", "", "path to a detached PKCS#7 signature for the chunk")
	cmd.Flags().BoolVar(&requireSigned, "require-signed", false, "refuse to load an unsigned or invalidly signed chunk")
	return cmd
}

func runGC(cmd *cobra.Command, args []string) {
	g := nyx.NewGlobalState(nil)
	th := g.MainThread

	before := th.GC(nyx.GCCount, 0)
	th.GC(nyx.GCCollect, 0)
	after := th.GC(nyx.GCCount, 0)

	fmt.Printf("bytes tracked before: %d\nbytes tracked after:  %d\n", before, after)
}

func runServe(cmd *cobra.Command, args []string) {
	g := nyx.NewGlobalState(nil)
	srv := nyx.NewIntrospectionServer(g, serveAddr)

	fmt.Printf("serving introspection on http://%s\n", serveAddr)
	if err := srv.Serve(); err != nil {
		log.Fatalf("introspection server: %v", err)
	}
	_ = os.Stdout
}
