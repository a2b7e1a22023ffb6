package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/drjliddy-max/sales-tax-platform-sub001/endpoints"
)

/* validate-endpoints - Standalone CLI tool to validate endpoints.yaml
 * Usage: go run ./cmd/validate-endpoints [endpoints.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	endpointsFile := "endpoints.yaml"
	if len(os.Args) > 1 {
		endpointsFile = os.Args[1]
	}

	fmt.Printf("Validating endpoints file: %s\n", endpointsFile)
	fmt.Println(strings.Repeat("-", 50))

	loader := endpoints.NewLoader()
	if err := loader.Load(endpointsFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	loaded := loader.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d endpoint(s):\n", len(loaded))

	for i, ep := range loaded {
		fmt.Printf("\n%d. Endpoint: %s\n", i+1, ep.ID)
		fmt.Printf("   URL:          %s\n", ep.URL)
		fmt.Printf("   Integration:  %s\n", ep.IntegrationID)
		fmt.Printf("   Event Types:  %s\n", strings.Join(ep.EventTypes, ", "))
		fmt.Printf("   Signed:       %t\n", ep.Secret != "")

		limits := ep.RateLimits
		if limits.PerMinute > 0 || limits.PerHour > 0 || limits.PerDay > 0 {
			fmt.Printf("   Rate Limits:  %d/min %d/hour %d/day\n", limits.PerMinute, limits.PerHour, limits.PerDay)
		}
	}

	fmt.Printf("\n✓ All endpoints are valid!\n")
	os.Exit(0)
}
