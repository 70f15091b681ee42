// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Command ptagate-keytool manages gateway key bundles: generating
// random key material, sealing bundles to age recipients, inspecting
// fingerprints, and rotating generations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ptagate/ptagate/lib/keyring"
	"github.com/ptagate/ptagate/lib/sealed"
	"github.com/ptagate/ptagate/lib/secret"
	"github.com/ptagate/ptagate/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch os.Args[1] {
	case "identity":
		return runIdentity(os.Args[2:])
	case "generate":
		return runGenerate(os.Args[2:])
	case "seal":
		return runSeal(os.Args[2:])
	case "inspect":
		return runInspect(os.Args[2:])
	case "rotate":
		return runRotate(os.Args[2:])
	case "version":
		fmt.Printf("ptagate-keytool %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ptagate-keytool <subcommand> [flags]

Subcommands:
  identity    Generate an age identity for sealing key bundles
  generate    Generate a fresh random key bundle
  seal        Seal a plaintext key bundle to age recipients
  inspect     Show per-generation key fingerprints
  rotate      Replace the primary generation, demoting it to secondary
  version     Print version information

Run 'ptagate-keytool <subcommand> --help' for subcommand flags.
`)
}

// runIdentity generates an age identity. The secret key goes to the
// output file (or stdout); the recipient goes to stderr so it can be
// read off without capturing the secret.
func runIdentity(args []string) error {
	flags := pflag.NewFlagSet("identity", pflag.ExitOnError)
	var outputPath string
	flags.StringVarP(&outputPath, "output", "o", "", "write the identity to this file (mode 0600) instead of stdout")
	flags.Parse(args)

	identity, err := sealed.GenerateIdentity()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}
	defer identity.Close()

	fmt.Fprintf(os.Stderr, "# recipient: %s\n", identity.Recipient)

	if outputPath == "" {
		fmt.Fprintf(os.Stdout, "%s\n", identity.Key.String())
		return nil
	}

	// O_EXCL: overwriting an identity file would orphan every bundle
	// sealed to it.
	file, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	if _, err := fmt.Fprintf(file, "%s\n", identity.Key.String()); err != nil {
		file.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "identity written to %s\n", outputPath)
	return nil
}

// runGenerate emits a fresh random bundle, optionally with a
// secondary generation, optionally sealed.
func runGenerate(args []string) error {
	flags := pflag.NewFlagSet("generate", pflag.ExitOnError)
	var (
		withSecondary bool
		recipients    []string
		armored       bool
		outputPath    string
	)
	flags.BoolVar(&withSecondary, "secondary", false, "also generate a secondary generation")
	flags.StringArrayVar(&recipients, "seal-to", nil, "age recipient to seal the bundle to (repeatable)")
	flags.BoolVar(&armored, "armor", false, "ASCII-armor the sealed bundle")
	flags.StringVarP(&outputPath, "output", "o", "", "write the bundle to this file (mode 0600) instead of stdout")
	flags.Parse(args)

	bundle := &keyring.Bundle{}
	primary, err := keyring.NewRandomGeneration()
	if err != nil {
		return err
	}
	bundle.Primary = primary
	if withSecondary {
		secondary, err := keyring.NewRandomGeneration()
		if err != nil {
			return err
		}
		bundle.Secondary = secondary
	}

	return emitBundle(bundle, outputPath, recipients, armored)
}

// runSeal seals an existing plaintext bundle to age recipients.
func runSeal(args []string) error {
	flags := pflag.NewFlagSet("seal", pflag.ExitOnError)
	var (
		inputPath  string
		recipients []string
		armored    bool
		outputPath string
	)
	flags.StringVarP(&inputPath, "input", "i", "", "plaintext bundle to seal (required)")
	flags.StringArrayVar(&recipients, "seal-to", nil, "age recipient to seal the bundle to (repeatable, required)")
	flags.BoolVar(&armored, "armor", false, "ASCII-armor the sealed bundle")
	flags.StringVarP(&outputPath, "output", "o", "", "write the sealed bundle to this file instead of stdout")
	flags.Parse(args)

	if inputPath == "" {
		flags.Usage()
		return fmt.Errorf("--input is required")
	}
	if len(recipients) == 0 {
		flags.Usage()
		return fmt.Errorf("at least one --seal-to recipient is required")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}
	defer secret.Zero(data)

	if sealed.IsSealed(data) {
		return fmt.Errorf("%s is already sealed", inputPath)
	}
	if _, err := keyring.Parse(data); err != nil {
		return fmt.Errorf("refusing to seal an invalid bundle: %w", err)
	}

	output, err := sealed.Seal(data, recipients, armored)
	if err != nil {
		return fmt.Errorf("sealing bundle: %w", err)
	}
	return writeBundle(outputPath, output)
}

// runInspect prints per-generation fingerprints. Key material is
// never printed.
func runInspect(args []string) error {
	flags := pflag.NewFlagSet("inspect", pflag.ExitOnError)
	var inputPath, identityPath string
	flags.StringVarP(&inputPath, "input", "i", "", "bundle to inspect (required)")
	flags.StringVar(&identityPath, "identity", "", "age identity file for sealed bundles (\"-\" reads stdin)")
	flags.Parse(args)

	if inputPath == "" {
		flags.Usage()
		return fmt.Errorf("--input is required")
	}

	ring, err := keyring.Load(inputPath, identityPath)
	if err != nil {
		return err
	}
	for _, generation := range ring.Generations() {
		fmt.Printf("%-9s  %s\n", generation.Name, generation.Fingerprint)
	}
	return nil
}

// runRotate installs a fresh random primary, demoting the old primary
// to secondary and retiring the old secondary.
func runRotate(args []string) error {
	flags := pflag.NewFlagSet("rotate", pflag.ExitOnError)
	var (
		inputPath    string
		outputPath   string
		identityPath string
		recipients   []string
		armored      bool
	)
	flags.StringVarP(&inputPath, "input", "i", "", "bundle to rotate (required)")
	flags.StringVarP(&outputPath, "output", "o", "", "where to write the rotated bundle (required)")
	flags.StringVar(&identityPath, "identity", "", "age identity file for sealed bundles (\"-\" reads stdin)")
	flags.StringArrayVar(&recipients, "seal-to", nil, "age recipient to seal the rotated bundle to (repeatable)")
	flags.BoolVar(&armored, "armor", false, "ASCII-armor the sealed bundle")
	flags.Parse(args)

	if inputPath == "" || outputPath == "" {
		flags.Usage()
		return fmt.Errorf("--input and --output are required")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}

	var bundle *keyring.Bundle
	if sealed.IsSealed(data) {
		// A sealed input stays sealed: rotation must not quietly
		// leave key material on disk in plaintext.
		if len(recipients) == 0 {
			return fmt.Errorf("%s is sealed; provide --seal-to recipients for the rotated bundle", inputPath)
		}
		if identityPath == "" {
			return fmt.Errorf("%s is sealed; provide --identity to unseal it", inputPath)
		}
		identity, err := secret.ReadFromPath(identityPath)
		if err != nil {
			return fmt.Errorf("reading identity: %w", err)
		}
		defer identity.Close()

		plaintext, err := sealed.Unseal(data, identity)
		if err != nil {
			return fmt.Errorf("unsealing bundle: %w", err)
		}
		defer plaintext.Close()

		bundle, err = keyring.ParseBundle(plaintext.Bytes())
		if err != nil {
			return err
		}
	} else {
		defer secret.Zero(data)
		bundle, err = keyring.ParseBundle(data)
		if err != nil {
			return err
		}
	}

	// Validate before mutating so a corrupt bundle fails with a field
	// error instead of being rewritten.
	if _, err := bundle.Keyring(); err != nil {
		return err
	}

	if err := bundle.Rotate(); err != nil {
		return err
	}

	if err := emitBundle(bundle, outputPath, recipients, armored); err != nil {
		return err
	}

	ring, err := bundle.Keyring()
	if err != nil {
		return err
	}
	for _, generation := range ring.Generations() {
		fmt.Fprintf(os.Stderr, "%-9s  %s\n", generation.Name, generation.Fingerprint)
	}
	return nil
}

// emitBundle marshals a bundle, seals it when recipients are given,
// and writes it to the output path or stdout.
func emitBundle(bundle *keyring.Bundle, outputPath string, recipients []string, armored bool) error {
	plaintext, err := bundle.Marshal()
	if err != nil {
		return err
	}
	defer secret.Zero(plaintext)

	output := plaintext
	if len(recipients) > 0 {
		output, err = sealed.Seal(plaintext, recipients, armored)
		if err != nil {
			return fmt.Errorf("sealing bundle: %w", err)
		}
	} else if armored {
		return fmt.Errorf("--armor requires --seal-to")
	}
	return writeBundle(outputPath, output)
}

// writeBundle writes bundle bytes to a file (mode 0600) or stdout.
func writeBundle(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	return nil
}
