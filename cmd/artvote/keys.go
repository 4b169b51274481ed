package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"artvote/internal/signature"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
)

func keygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 wallet keypair for testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wallet: %s\n", signature.EncodeWallet(pub))
			fmt.Fprintf(out, "secret: %s\n", base58.Encode(priv))
			return nil
		},
	}
}

func signCommand() *cobra.Command {
	var secret, message string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a vote message with a base-58 secret key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := base58.Decode(secret)
			if err != nil {
				return fmt.Errorf("decode secret: %w", err)
			}
			if len(raw) != ed25519.PrivateKeySize {
				return errors.New("secret must be a 64-byte ed25519 private key")
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(ed25519.PrivateKey(raw), message))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "base-58 encoded private key from keygen")
	cmd.Flags().StringVar(&message, "message", "", "message to sign, e.g. vote:art42")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
