package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"DroidRelay/sdk/go/droidrelay"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "DroidRelay API base URL")
	flag.Parse()

	client, err := droidrelay.NewClient(*baseURL, nil)
	if err != nil {
		log.Fatalf("create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := client.Health(ctx)
	if err != nil {
		log.Fatalf("health check: %v", err)
	}
	fmt.Printf("service status: %s\n", status)

	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		log.Fatalf("list accounts: %v", err)
	}
	for _, account := range accounts {
		fmt.Printf("%s\t%s\t%s\tactive=%t\tkeys=%v\n",
			account.ID, account.Name, account.EndpointType, account.IsActive, account.APIKeys)
	}
}
