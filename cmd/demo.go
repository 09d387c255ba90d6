package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aqlanhadi/rekon/engine"
	"github.com/aqlanhadi/rekon/engine/common"
	"github.com/aqlanhadi/rekon/engine/reconmodel"
	"github.com/aqlanhadi/rekon/engine/taxes"
	"github.com/aqlanhadi/rekon/integrations/memory"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a reconciliation end to end on the in-memory ledger",
	Long: `Seeds a company with a foreign-currency invoice and a bank statement
line, mounts a session, matches the invoice, validates, and prints the
resulting entries as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		led, st, invoice := seedDemo()
		bus := &engine.Bus{
			Statements: led,
			Accounts:   led,
			Models:     &reconmodel.Engine{Source: led},
			Deps:       memory.Deps(led, taxes.NewEngine()),
		}

		ctx := cmd.Context()
		sess, ret, err := bus.Mount(ctx, st.ID)
		if err != nil {
			return err
		}
		printJSON("mounted", ret)

		ret, err = bus.Dispatch(ctx, sess, command("add_new_amls", map[string]any{"aml_ids": []int64{invoice.ID}}))
		if err != nil {
			return err
		}
		printJSON("matched", ret)

		ret, err = bus.Dispatch(ctx, sess, command("validate", map[string]any{}))
		if err != nil {
			return err
		}
		printJSON("validated", ret)

		printJSON("partials", led.Partials())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func command(method string, args map[string]any) engine.Command {
	raw, _ := json.Marshal(args)
	return engine.Command{Method: method, Args: raw}
}

func printJSON(label string, v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintf(os.Stdout, "== %s ==\n%s\n", label, out)
}

// seedDemo builds the demo dataset: a EUR company holding a 1200 USD invoice
// booked at 600 EUR, paid by a 550 EUR bank transfer. The rate moved between
// invoicing and payment, so validating books a 50 EUR exchange loss.
func seedDemo() (*memory.Ledger, *common.StatementLine, *common.Aml) {
	led := memory.NewLedger()

	eur := &common.Currency{Code: viper.GetString("company.currency"), DecimalPlaces: int32(viper.GetInt("company.currency_decimal_places"))}
	if eur.Code == "" {
		eur = &common.Currency{Code: "EUR", DecimalPlaces: 2}
	}
	usd := &common.Currency{Code: "USD", DecimalPlaces: 2}
	led.Rates["USD->"+eur.Code] = decimal.RequireFromString("0.4583")

	bank := led.AddAccount(&common.Account{Code: viper.GetString("accounts.bank"), Name: "Bank", Type: common.AccountLiquidity})
	suspense := led.AddAccount(&common.Account{Code: viper.GetString("accounts.suspense"), Name: "Bank Suspense", Type: common.AccountSuspense})
	receivable := led.AddAccount(&common.Account{Code: viper.GetString("accounts.receivable"), Name: "Account Receivable", Type: common.AccountReceivable, Reconcile: true})
	incomeExch := led.AddAccount(&common.Account{Code: viper.GetString("accounts.income_exchange"), Name: "Exchange Gain", Type: common.AccountIncome})
	expenseExch := led.AddAccount(&common.Account{Code: viper.GetString("accounts.expense_exchange"), Name: "Exchange Loss", Type: common.AccountExpense})

	partner := led.AddPartner(&common.Partner{Name: "Deco Addict", CustomerRank: 1, ReceivableAccount: receivable})

	company := &common.Company{
		ID:                     1,
		Name:                   viper.GetString("company.name"),
		Currency:               eur,
		IncomeExchangeAccount:  incomeExch,
		ExpenseExchangeAccount: expenseExch,
	}
	journal := &common.Journal{
		ID:               1,
		Name:             viper.GetString("journal.name"),
		CompanyID:        1,
		SuspenseAccount:  suspense,
		LiquidityAccount: bank,
	}

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	invoice := led.AddOpenAml(&common.Aml{
		Name:           "INV/2024/00012",
		Date:           date.AddDate(0, -1, 0),
		Account:        receivable,
		Partner:        partner,
		Currency:       usd,
		Balance:        decimal.NewFromInt(600),
		AmountCurrency: decimal.NewFromInt(1200),
	})

	st := led.AddStatementLine(&common.StatementLine{
		Date:            date,
		PaymentRef:      "INV/2024/00012",
		Journal:         journal,
		Company:         company,
		Partner:         partner,
		Amount:          decimal.NewFromInt(550),
		ForeignCurrency: usd,
		AmountCurrency:  decimal.NewFromInt(1200),
	})
	return led, st, invoice
}
