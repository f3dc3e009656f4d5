package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/bundle"
)

func runExtract(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bundlePath := fs.String("bundle", "", "bundle archive path")
	dest := fs.String("dest", ".", "destination directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bundlePath == "" {
		fmt.Fprintln(stderr, "gjc extract: -bundle is required")
		return 2
	}

	res, err := bundle.Extract(*bundlePath, *dest, nil)
	if err != nil {
		fmt.Fprintf(stderr, "gjc extract: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "extracted build %s (channel %s) into %s\n",
		res.Artifacts.Manifest.BuildID, res.Artifacts.Manifest.ChannelID, *dest)
	return 0
}

func runInspect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bundlePath := fs.String("bundle", "", "bundle archive path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bundlePath == "" {
		fmt.Fprintln(stderr, "gjc inspect: -bundle is required")
		return 2
	}

	res, err := bundle.Extract(*bundlePath, "", nil)
	if err != nil {
		fmt.Fprintf(stderr, "gjc inspect: %v\n", err)
		return 1
	}

	view := struct {
		Manifest  any `json:"manifest"`
		Metadata  any `json:"metadata,omitempty"`
		NodeCount int `json:"nodeCount"`
		Secrets   int `json:"credentialEntries"`
	}{
		Manifest:  res.Artifacts.Manifest,
		Metadata:  res.Metadata,
		NodeCount: len(res.Artifacts.FlowDocument),
		Secrets:   len(res.Artifacts.CredentialsMap.Credentials),
	}
	out, _ := json.MarshalIndent(view, "", "  ")
	fmt.Fprintln(stdout, string(out))
	return 0
}
