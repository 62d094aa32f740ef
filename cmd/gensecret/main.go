package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const defaultSecretBytesLen = 32

// Print random hex secrets for SECRET_KEY and WEBHOOK_SECRET
func main() {
	fs := pflag.NewFlagSet("gensecret", pflag.ExitOnError)
	length := fs.IntP("bytes", "b", defaultSecretBytesLen, "Secret length in bytes")
	count := fs.IntP("count", "n", 1, "How many secrets to print")
	_ = fs.Parse(os.Args[1:])

	if *length < 16 || *count < 1 {
		fmt.Fprintln(os.Stderr, "secret must be at least 16 bytes and count positive")
		os.Exit(2)
	}

	for range *count {
		secret, err := generate(*length)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(secret)
	}
}

func generate(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
