// Command jstzcli is the external operator surface: it builds and signs
// SignedOperations and prints each one's encoding as a hex line on
// stdout. A cmd/jstzd level file line is a full external inbox frame
// (tag byte 0x01, the rollup address, then that encoding); jstzcli does
// not add the framing. It does not submit anything to L1 or run a
// sandbox node itself — both are non-goals (see SPEC_FULL.md §6) — so
// "sandbox" here only prints the operator's next steps.
//
// Usage:
//
//	jstzcli operator keygen
//	jstzcli operator address -pubkey <hex>
//	jstzcli deploy -key <hex> -nonce <n> -code <file> [-credit <n>]
//	jstzcli run -key <hex> -nonce <n> -uri <uri> [-method GET] [-body <file>] [-gas <n>]
//	jstzcli sandbox
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/jstz-dev/jstz/internal/address"
	"github.com/jstz-dev/jstz/internal/crypto"
	"github.com/jstz-dev/jstz/internal/operation"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "operator":
		err = cmdOperator(args)
	case "deploy":
		err = cmdDeploy(args)
	case "run":
		err = cmdRun(args)
	case "sandbox":
		cmdSandbox()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`jstzcli - jstz operator CLI

Usage:
  jstzcli operator keygen
  jstzcli operator address -pubkey <hex>
  jstzcli deploy -key <hex> -nonce <n> -code <file> [-credit <n>]
  jstzcli run -key <hex> -nonce <n> -uri <uri> [-method GET] [-body <file>] [-gas <n>]
  jstzcli sandbox

Every signing command prints one hex-encoded SignedOperation line to
stdout (deploy prints its predicted address to stderr). A jstzd level
file line is that hex prefixed with 01 and the hex rollup address.`)
}

func cmdOperator(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: jstzcli operator <keygen|address>")
	}
	switch args[0] {
	case "keygen":
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		addr, err := address.FromPublicKeyHash(crypto.PublicKeyHash(kp.PublicKey))
		if err != nil {
			return err
		}
		fmt.Printf("private_key: %s\n", hex.EncodeToString(kp.PrivateKey.D.Bytes()))
		fmt.Printf("public_key:  %s\n", hex.EncodeToString(crypto.PublicKeyToBytes(kp.PublicKey)))
		fmt.Printf("address:     %s\n", addr.String())
		return nil

	case "address":
		fs := flag.NewFlagSet("operator address", flag.ExitOnError)
		pubHex := fs.String("pubkey", "", "hex-encoded SEC1 public key")
		fs.Parse(args[1:])
		pub, err := parsePublicKey(*pubHex)
		if err != nil {
			return err
		}
		addr, err := address.FromPublicKeyHash(crypto.PublicKeyHash(pub))
		if err != nil {
			return err
		}
		fmt.Println(addr.String())
		return nil

	default:
		return fmt.Errorf("unknown operator subcommand: %s", args[0])
	}
}

func cmdDeploy(args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	keyHex := fs.String("key", "", "hex-encoded private key scalar")
	nonce := fs.Uint64("nonce", 0, "operation nonce (account nonce + 1)")
	codePath := fs.String("code", "", "path to the smart function's JS module source")
	credit := fs.Uint64("credit", 0, "initial balance credited to the deployed address")
	fs.Parse(args)

	priv, err := parsePrivateKey(*keyHex)
	if err != nil {
		return err
	}
	if *codePath == "" {
		return fmt.Errorf("-code is required")
	}
	code, err := os.ReadFile(*codePath)
	if err != nil {
		return err
	}

	op, err := operation.Sign(priv, *nonce, operation.Content{
		Kind:           operation.KindDeployFunction,
		DeployFunction: &operation.DeployFunction{Code: string(code), InitialCredit: *credit},
	})
	if err != nil {
		return err
	}

	source, err := address.FromPublicKeyHash(crypto.PublicKeyHash(priv.PublicKey))
	if err != nil {
		return err
	}
	predicted, err := address.FromDeployHash(crypto.DeployHash(source.String(), string(code), *nonce))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "predicted_address: %s\n", predicted.String())
	return printSigned(op)
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	keyHex := fs.String("key", "", "hex-encoded private key scalar")
	nonce := fs.Uint64("nonce", 0, "operation nonce (account nonce + 1)")
	uri := fs.String("uri", "", "jstz:// target URI")
	method := fs.String("method", "GET", "HTTP method")
	bodyPath := fs.String("body", "", "path to request body (optional)")
	gas := fs.Uint64("gas", 100000, "gas limit")
	fs.Parse(args)

	priv, err := parsePrivateKey(*keyHex)
	if err != nil {
		return err
	}
	if *uri == "" {
		return fmt.Errorf("-uri is required")
	}

	var body []byte
	if *bodyPath != "" {
		body, err = os.ReadFile(*bodyPath)
		if err != nil {
			return err
		}
	}

	op, err := operation.Sign(priv, *nonce, operation.Content{
		Kind: operation.KindRunFunction,
		RunFunction: &operation.RunFunction{
			URI:      *uri,
			Method:   *method,
			Body:     body,
			GasLimit: *gas,
		},
	})
	if err != nil {
		return err
	}
	return printSigned(op)
}

func cmdSandbox() {
	fmt.Println(`jstzcli does not itself run a sandbox node or Docker orchestration
(out of scope for this kernel build). To exercise the kernel locally:

  1. jstzcli operator keygen                          > operator.key
  2. jstzcli deploy -key <hex> -nonce 1 -code fn.js   > deploy.hex
  3. jstzcli run -key <hex> -nonce 2 -uri jstz://...  > run.hex
  4. write each operation hex into level.hex, one per line, prefixed
     with 01 and the hex rollup address
  5. jstzd -level level.hex -rollup-address <hex>`)
}

func printSigned(op operation.SignedOperation) error {
	b, err := op.Encode()
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(b))
	return nil
}

func parsePrivateKey(keyHex string) (*crypto.KeyPair, error) {
	if keyHex == "" {
		return nil, fmt.Errorf("-key is required")
	}
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid -key: %w", err)
	}
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	x, y := curve.ScalarBaseMult(raw)
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}
	return &crypto.KeyPair{PrivateKey: priv, PublicKey: &priv.PublicKey}, nil
}

func parsePublicKey(pubHex string) (*ecdsa.PublicKey, error) {
	if pubHex == "" {
		return nil, fmt.Errorf("-pubkey is required")
	}
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("invalid -pubkey: %w", err)
	}
	return crypto.PublicKeyFromBytes(raw)
}
