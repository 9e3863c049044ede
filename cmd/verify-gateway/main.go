// verify-gateway checks a QuickBooks connection end to end: it reads the
// company profile and lists invoices with the credentials in the environment.
// With an argument it also runs that message through the model.
//
// Usage: go run ./cmd/verify-gateway ["show unpaid invoices"]
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"invoice-agent/internal/app"
	"invoice-agent/internal/bootstrap"
	"invoice-agent/internal/config"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := bootstrap.NewLogger(cfg, os.Stderr, false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	creds, err := credentials.FromEnv().Credentials(ctx)
	if err != nil || creds == nil {
		log.Fatalf("%s and %s must be set", credentials.EnvAccessToken, credentials.EnvRealmID)
	}

	gw, err := bootstrap.Gateways(cfg, logger)(creds)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	info, err := gw.CompanyInfo(ctx)
	if err != nil {
		log.Fatalf("company info: %v", err)
	}
	fmt.Printf("COMPANY: %s (realm %s)\n", info.CompanyName, info.RealmID)

	invoices, err := gw.QueryInvoices(ctx, core.InvoiceQuery{MaxResults: core.MaxScan, StartPosition: 1})
	if err != nil {
		log.Fatalf("query invoices: %v", err)
	}
	fmt.Printf("INVOICES: %d\n", len(invoices))
	fmt.Printf("SUMMARY: %s\n", core.SummarizeInvoices(invoices, ""))

	if len(os.Args) < 2 {
		return
	}
	if err := cfg.RequireOpenAI(); err != nil {
		log.Fatal(err)
	}
	svc := bootstrap.Service(cfg, logger)
	res, err := svc.ProcessTurn(ctx, app.TurnRequest{Message: os.Args[1], Credentials: creds})
	if err != nil {
		log.Fatalf("turn: %v", err)
	}
	fmt.Printf("\nCLASSIFICATION: %s / %s / budget %d\n", res.Classification.Mode, res.Classification.ToolPolicy, res.Classification.StepBudget)
	for _, s := range res.Result.Steps {
		fmt.Printf("- %s ok=%t %s\n", s.Tool, s.OK, s.Message)
	}
	fmt.Printf("\n%s\n", res.Result.Text)
}
