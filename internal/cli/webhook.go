package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mcoot/tebex-license-server/internal/dependencies/random"
	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/webhook"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Send purchase provider webhooks",
	}

	cmd.AddCommand(newWebhookSendCmd())

	return cmd
}

type webhookSendOptions struct {
	eventID     string
	eventType   string
	product     int64
	player      string
	email       string
	secret      string
	testPayment bool
	path        string
}

func newWebhookSendCmd() *cobra.Command {
	opts := webhookSendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a signed purchase event to the server",
		Long: `Build a purchase event, sign it with the webhook secret and post it.

Use --type validation.webhook to send the endpoint handshake instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := buildEvent(opts)
			if err != nil {
				return err
			}

			header := http.Header{}
			if opts.secret != "" {
				header.Set(webhook.SignatureHeader, webhook.Sign([]byte(opts.secret), raw))
			}

			if cfg.Verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "POST %s %s\n", opts.path, raw)
			}

			var result WebhookResult
			if err := client.DoRaw(http.MethodPost, opts.path, raw, header, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.eventID, "id", "", "Event id (default: random UUID)")
	cmd.Flags().StringVar(&opts.eventType, "type", model.EventTypePaymentCompleted, "Event type")
	cmd.Flags().Int64Var(&opts.product, "product", 7156613, "Purchased package id")
	cmd.Flags().StringVar(&opts.player, "player", "", "Buyer username")
	cmd.Flags().StringVar(&opts.email, "email", "", "Buyer email")
	cmd.Flags().StringVar(&opts.secret, "secret", cfg.WebhookSecret, "Webhook signing secret; unsigned if empty (env: TEBEX_SECRET)")
	cmd.Flags().BoolVar(&opts.testPayment, "test-payment", false, "Mark the payment as a sandbox payment")
	cmd.Flags().StringVar(&opts.path, "path", "/tebex", "Webhook route")

	return cmd
}

// buildEvent renders the envelope the provider would send
func buildEvent(opts webhookSendOptions) ([]byte, error) {
	id := opts.eventID
	if id == "" {
		generated, err := random.New().UUID()
		if err != nil {
			return nil, err
		}
		id = generated
	}

	event := model.PurchaseEvent{ID: id, Type: opts.eventType}
	if opts.eventType != model.EventTypeValidation {
		event.Subject = model.EventSubject{
			Customer: model.Customer{Email: opts.email},
			Products: []model.Product{{ID: opts.product}},
		}
		if opts.player != "" {
			event.Subject.Customer.Username = &model.Username{Username: opts.player}
		}
		if opts.testPayment {
			event.Subject.PaymentMethod = &model.PaymentMethod{Name: model.TestPaymentMethod}
		}
	}

	return json.Marshal(event)
}
