package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menucast/outhook/internal/config"
	"github.com/menucast/outhook/internal/postgres"
	"github.com/menucast/outhook/internal/queue"
	"github.com/menucast/outhook/internal/webhook"
)

var dispatchData string

// dispatchCmd fires a test event through the real engine: endpoints are
// resolved, ledger rows created, and tasks published for the workers.
var dispatchCmd = &cobra.Command{
	Use:   "dispatch [organization-id] [event-type]",
	Short: "Dispatch an event to all subscribed endpoints",
	Long: `Dispatch an event for an organization. The payload is given with
--data as inline JSON or @file.

Examples:
  outhookctl dispatch org-123 menu.published --data '{"menu_id":"m1"}'
  outhookctl dispatch org-123 qr.scanned --data @payload.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		orgID, eventType := args[0], args[1]

		data, err := parseDataFlag(dispatchData)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connectPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		transport, err := queue.NewTransport(nsqdAddr, topic)
		if err != nil {
			return err
		}
		defer transport.Stop()

		cfg := config.FromEnv()
		engine := webhook.NewEngine(
			postgres.NewRegistry(pool),
			postgres.NewLedger(pool),
			webhook.Options{
				MaxAttempts: cfg.Delivery.MaxAttempts,
				Backoff:     cfg.Delivery.BackoffSchedule,
				Transport:   transport,
				Client:      &http.Client{Timeout: cfg.Delivery.TestTimeout},
			},
		)

		event := engine.Dispatch(ctx, orgID, webhook.EventType(eventType), data)
		if event == nil {
			fmt.Println("no enabled endpoints subscribed to this event type")
			return nil
		}
		if outputJSON {
			printOutput(map[string]any{"event_id": event.ID, "event_type": event.Type, "timestamp": event.Timestamp})
		} else {
			fmt.Printf("Event dispatched\n  ID:   %s\n  Type: %s\n", event.ID, event.Type)
		}
		return nil
	},
}

// parseDataFlag accepts inline JSON or @file syntax.
func parseDataFlag(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	if strings.HasPrefix(raw, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		raw = string(b)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return data, nil
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchData, "data", "", "event payload as inline JSON or @file")
	rootCmd.AddCommand(dispatchCmd)
}
