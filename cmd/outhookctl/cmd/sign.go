package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menucast/outhook/internal/signature"
)

var (
	signSecret string
	signVerify string
)

// signCmd computes or checks a signature outside the normal dispatch flow,
// for test deliveries and receiver debugging.
var signCmd = &cobra.Command{
	Use:   "sign [body]",
	Short: "Compute or verify a webhook signature",
	Long: `Compute the signature token for a request body, or verify one with
--verify. The body is given inline or as @file.

Examples:
  outhookctl sign '{"menu_id":"m1"}' --secret whsec-test
  outhookctl sign @body.json --secret whsec-test --verify sha256=ab12...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := args[0]
		if strings.HasPrefix(body, "@") {
			b, err := os.ReadFile(strings.TrimPrefix(body, "@"))
			if err != nil {
				return fmt.Errorf("read body file: %w", err)
			}
			body = string(b)
		}
		if signSecret == "" {
			return fmt.Errorf("--secret is required")
		}

		if signVerify != "" {
			ok := signature.Verify([]byte(body), signVerify, signSecret)
			if outputJSON {
				printOutput(map[string]any{"valid": ok})
			} else if ok {
				fmt.Println("signature valid")
			} else {
				fmt.Println("signature INVALID")
			}
			if !ok {
				os.Exit(1)
			}
			return nil
		}

		tok, err := signature.Sign([]byte(body), signSecret)
		if err != nil {
			return err
		}
		if outputJSON {
			printOutput(map[string]any{"signature": tok})
		} else {
			fmt.Println(tok)
		}
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "endpoint secret")
	signCmd.Flags().StringVar(&signVerify, "verify", "", "verify this signature token instead of signing")
	rootCmd.AddCommand(signCmd)
}
