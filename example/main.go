package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ezmary/usage-credits/core"
)

func main() {
	// No store credentials: the manager falls back to an in-memory
	// document, which is fine for a walkthrough.
	manager, err := core.NewManager()
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	ctx := context.Background()
	manager.LoadInitial(ctx)

	clientID := "visitor-42"

	status, _ := manager.CheckCredit(clientID)
	fmt.Printf("Before use: %d credits remaining\n", status.CreditsRemaining)

	for i := 0; i < 6; i++ {
		result, err := manager.UseCredit(clientID)
		if err != nil {
			log.Fatalf("Failed to use credit: %v", err)
		}
		if result.Status == core.StatusLimitReached {
			fmt.Printf("Call %d: limit reached, resets at %d\n", i+1, result.ResetTimestamp)
			continue
		}
		fmt.Printf("Call %d: success, %d credits remaining\n", i+1, result.CreditsRemaining)
	}

	status, _ = manager.CheckCredit(clientID)
	fmt.Printf("After use: %d credits remaining, limit_reached=%v\n",
		status.CreditsRemaining, status.LimitReached)

	if err := manager.Flush(ctx); err != nil {
		log.Fatalf("Failed to flush: %v", err)
	}
	fmt.Println("Snapshot published to the store.")
}
