package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/bundle"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bundlePath := fs.String("bundle", "", "bundle archive path")
	hashesPath := fs.String("hashes", "", "recorded bundle hashes (JSON)")
	checkSig := fs.Bool("signature", false, "also verify the embedded signature")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bundlePath == "" || *hashesPath == "" {
		fmt.Fprintln(stderr, "gjc verify: -bundle and -hashes are required")
		return 2
	}

	var expected ir.BundleHashes
	raw, err := os.ReadFile(*hashesPath)
	if err != nil {
		fmt.Fprintf(stderr, "gjc verify: reading hashes: %v\n", err)
		return 1
	}
	if err := json.Unmarshal(raw, &expected); err != nil {
		fmt.Fprintf(stderr, "gjc verify: parsing hashes: %v\n", err)
		return 1
	}

	res, err := bundle.Extract(*bundlePath, "", &expected)
	if err != nil {
		fmt.Fprintf(stderr, "gjc verify: %v\n", err)
		return 1
	}

	out, _ := json.MarshalIndent(res.Verified, "", "  ")
	fmt.Fprintln(stdout, string(out))

	if *checkSig {
		if err := bundle.VerifySignature(res.Metadata, expected.MerkleRoot); err != nil {
			fmt.Fprintf(stderr, "gjc verify: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "signature: ok")
	}

	if !res.Verified.Valid {
		return 1
	}
	return 0
}
