package cmd

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aqlanhadi/rekon/api"
	"github.com/aqlanhadi/rekon/engine"
	"github.com/aqlanhadi/rekon/engine/common"
	"github.com/aqlanhadi/rekon/engine/reconmodel"
	"github.com/aqlanhadi/rekon/engine/session"
	"github.com/aqlanhadi/rekon/engine/taxes"
	"github.com/aqlanhadi/rekon/integrations/memory"
	"github.com/aqlanhadi/rekon/integrations/postgres"
)

var (
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long:  `Starts the HTTP API server exposing reconciliation sessions over JSON.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Configure logging for server mode
		log.SetOutput(os.Stdout)
		log.SetFlags(log.Ltime | log.Lmsgprefix)

		bus, err := buildBus(cmd.Context())
		if err != nil {
			log.Fatalf("Failed to build engine: %v", err)
		}

		// Create API server with configuration
		cfg := api.DefaultConfig()
		if servePort != "" {
			cfg.Port = ":" + servePort
		} else if port := viper.GetString("server.port"); port != "" {
			cfg.Port = ":" + port
		}
		cfg.LogPrefix = "SERVER: "

		server := api.New(cfg, bus)
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to run the API server on")
}

// buildBus assembles the command bus: postgres-backed when database.url is
// configured, otherwise the in-memory demo ledger.
func buildBus(ctx context.Context) (*engine.Bus, error) {
	taxEngine := taxes.NewEngine()

	if connString := viper.GetString("database.url"); connString != "" {
		db, err := postgres.Connect(ctx, connString)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Printf("Using postgres ledger")
		deps := session.Deps{Ledger: db, Rates: configRates{}, Taxes: taxEngine}
		return &engine.Bus{
			Statements: db,
			Accounts:   db,
			Models:     &reconmodel.Engine{Source: db},
			Deps:       deps,
		}, nil
	}

	led, st, _ := seedDemo()
	log.Printf("Using in-memory demo ledger, statement line %d seeded", st.ID)
	deps := memory.Deps(led, taxEngine)
	return &engine.Bus{
		Statements: led,
		Accounts:   led,
		Models:     &reconmodel.Engine{Source: led},
		Deps:       deps,
	}, nil
}

// configRates serves market rates from the rates section of the config,
// keyed like usd_eur. Unknown pairs fall back to the inverse, then 1.
type configRates struct{}

func (configRates) Rate(from, to *common.Currency, _ time.Time) decimal.Decimal {
	if from.Equal(to) {
		return decimal.NewFromInt(1)
	}
	key := strings.ToLower(from.Code + "_" + to.Code)
	if v := viper.GetFloat64("rates." + key); v != 0 {
		return decimal.NewFromFloat(v)
	}
	inverse := strings.ToLower(to.Code + "_" + from.Code)
	if v := viper.GetFloat64("rates." + inverse); v != 0 {
		return decimal.NewFromInt(1).Div(decimal.NewFromFloat(v))
	}
	return decimal.NewFromInt(1)
}
