package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/config"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook"
	"github.com/drjliddy-max/sales-tax-platform-sub001/webhook/memory"
	"github.com/rs/zerolog"
)

/* cli - sends one ad-hoc delivery and reports its first attempt
 * Usage: go run ./cmd/cli <url> [json payload]
 * Signs with WEBHOOK_SECRET when it is set
 */

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: cli <url> [json payload]")
		os.Exit(1)
	}
	url := os.Args[1]
	body := []byte(`{"ping":true}`)
	if len(os.Args) > 2 {
		body = []byte(os.Args[2])
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetWebhookTimeout()+5*time.Second)
	defer cancel()

	repo := memory.NewRepository()
	defer repo.Close(ctx)

	cfgWebhook := webhook.DefaultConfig()
	cfgWebhook.ProductName = cfg.ProductName
	cfgWebhook.ProductVersion = cfg.ProductVersion
	cfgWebhook.DefaultSecret = cfg.WebhookSecret
	manager := webhook.NewManager(repo, webhook.NewHTTPSender(cfg.GetWebhookTimeout()), cfgWebhook, zerolog.Nop())
	defer manager.Close()

	id, err := manager.Deliver(ctx, url, body, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	for {
		d, err := manager.Delivery(ctx, id)
		if err != nil {
			fmt.Println(err)
			return
		}
		if attempt, ok := d.LastAttempt(); ok {
			fmt.Printf("Delivery %s: %s\n", d.ID, d.Status)
			fmt.Printf("  Status code: %d\n", attempt.StatusCode)
			fmt.Printf("  Latency:     %s\n", attempt.Latency)
			if attempt.Error != "" {
				fmt.Printf("  Error:       %s\n", attempt.Error)
			}
			if !attempt.Succeeded() {
				os.Exit(1)
			}
			return
		}

		select {
		case <-ctx.Done():
			fmt.Println("timed out waiting for the first attempt")
			os.Exit(1)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
