package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"lovefi/agent-client/internal/codec"
	"lovefi/agent-client/internal/identity"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitIOFailed     = 20
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "generate":
		runGenerate(os.Args[2:])
	case "address":
		runAddress(os.Args[2:])
	case "seal":
		runSeal(os.Args[2:])
	case "verify-address":
		runVerifyAddress(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

// runGenerate prints a fresh mnemonic with its address and public key.
func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	sealTo := fs.String("seal-to", "", "write the mnemonic sealed to this path instead of printing it")
	passphraseEnv := fs.String("passphrase-env", "LOVEFI_SEED_PASSPHRASE", "environment variable holding the seal passphrase")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	mnemonic, err := identity.GenerateSeedPhrase()
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	id, err := identity.DeriveIdentity(mnemonic)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	out := map[string]any{
		"address":    id.Address,
		"public_key": codec.Base64Encode(id.PublicKey),
	}
	if path := strings.TrimSpace(*sealTo); path != "" {
		if err := identity.SealSeedPhrase(path, mnemonic, passphrase(*passphraseEnv)); err != nil {
			writeStderrln(err.Error(), exitIOFailed)
		}
		out["sealed_file"] = path
	} else {
		out["mnemonic"] = mnemonic
	}
	if err := printJSON(out); err != nil {
		writeStderrln(err.Error(), exitIOFailed)
	}
	os.Exit(exitOK)
}

// runAddress derives the address and public key of an existing identity.
func runAddress(args []string) {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	phraseEnv := fs.String("seed-env", "LOVEFI_SEED_PHRASE", "environment variable holding the mnemonic")
	sealed := fs.String("sealed-file", "", "sealed mnemonic file")
	passphraseEnv := fs.String("passphrase-env", "LOVEFI_SEED_PASSPHRASE", "environment variable holding the seal passphrase")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	id, err := identity.SeedSource{
		PhraseEnv:     *phraseEnv,
		SealedFile:    *sealed,
		PassphraseEnv: *passphraseEnv,
	}.Load()
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := printJSON(map[string]any{
		"address":    id.Address,
		"public_key": codec.Base64Encode(id.PublicKey),
	}); err != nil {
		writeStderrln(err.Error(), exitIOFailed)
	}
	os.Exit(exitOK)
}

// runSeal encrypts the mnemonic from the environment into a sealed file.
func runSeal(args []string) {
	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	phraseEnv := fs.String("seed-env", "LOVEFI_SEED_PHRASE", "environment variable holding the mnemonic")
	out := fs.String("out", "", "sealed file path")
	passphraseEnv := fs.String("passphrase-env", "LOVEFI_SEED_PASSPHRASE", "environment variable holding the seal passphrase")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if strings.TrimSpace(*out) == "" {
		writeStderrln("out is required", exitInvalidInput)
	}

	mnemonic, err := identity.SeedSource{PhraseEnv: *phraseEnv}.Resolve()
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := identity.SealSeedPhrase(*out, mnemonic, passphrase(*passphraseEnv)); err != nil {
		code := exitIOFailed
		if errors.Is(err, identity.ErrInvalidSeed) {
			code = exitInvalidInput
		}
		writeStderrln(err.Error(), code)
	}
	writeStdoutf(exitIOFailed, "sealed mnemonic written to %s\n", *out)
	os.Exit(exitOK)
}

// runVerifyAddress checks that a base64 public key hashes to an address.
func runVerifyAddress(args []string) {
	fs := flag.NewFlagSet("verify-address", flag.ExitOnError)
	address := fs.String("address", "", "agent1 address")
	publicKey := fs.String("public-key", "", "base64 ed25519 public key")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	pub, err := codec.Base64Decode(strings.TrimSpace(*publicKey))
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	ok, err := identity.VerifyAddress(strings.TrimSpace(*address), pub)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := printJSON(map[string]any{"match": ok}); err != nil {
		writeStderrln(err.Error(), exitIOFailed)
	}
	if !ok {
		os.Exit(exitInvalidInput)
	}
	os.Exit(exitOK)
}

func passphrase(envName string) string {
	value := os.Getenv(strings.TrimSpace(envName))
	if value == "" {
		writeStderrln(fmt.Sprintf("passphrase environment variable %s is empty", envName), exitInvalidInput)
	}
	return value
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStdoutln(exitInvalidInput, "agent-keytool <command> [flags]")
	writeStdoutln(exitInvalidInput, "commands:")
	writeStdoutln(exitInvalidInput, "  generate        [--seal-to path] [--passphrase-env NAME]")
	writeStdoutln(exitInvalidInput, "  address         [--seed-env NAME] [--sealed-file path --passphrase-env NAME]")
	writeStdoutln(exitInvalidInput, "  seal            --out path [--seed-env NAME] [--passphrase-env NAME]")
	writeStdoutln(exitInvalidInput, "  verify-address  --address agent1... --public-key base64")
}

func writeStdoutln(exitCode int, line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(exitCode)
	}
}

func writeStdoutf(exitCode int, format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stdout, format, args...); err != nil {
		os.Exit(exitCode)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
