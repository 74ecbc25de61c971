package common

import (
	"fmt"
	"sort"
	"strings"

	"chainportal-mint-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a title framed by separators
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// PrintFeeQuote prints one required amount per chain, sorted by symbol.
func PrintFeeQuote(assetType models.AssetType, payloadBytes int, quote map[string]decimal.Decimal) {
	PrintHeader(fmt.Sprintf("MINT FEES: %s (%d bytes of metadata)", assetType, payloadBytes), DefaultWidth)

	symbols := make([]string, 0, len(quote))
	for s := range quote {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for i, s := range symbols {
		fmt.Printf("%s%-6s %s\n", BoxPrefix(i == len(symbols)-1), s, quote[s].String())
	}
	PrintFooter(fmt.Sprintf("%d chain(s) quoted", len(symbols)), DefaultWidth)
}

// PrintTransactions prints main transactions with their reward transactions.
func PrintTransactions(title string, txs []models.TransactionDetails) {
	PrintHeader(title, WideWidth)
	if len(txs) == 0 {
		fmt.Println("No transactions found")
		return
	}

	for i, tx := range txs {
		isLast := i == len(txs)-1
		fmt.Printf("%s%s  %s %s on %s  paid %s  expense %s (%s)\n",
			BoxPrefix(isLast),
			tx.CreatedAt.Format("2006-01-02 15:04:05"),
			tx.OperationType, tx.AssetType, tx.Chain,
			tx.PaymentAmount.String(), tx.ExpenseAmount.String(), tx.ExpenseSource)

		detail := BoxDetailPrefix(isLast)
		fmt.Printf("%s  id %s  payment %s\n", detail, tx.Id, tx.PaymentSignature)
		if tx.ReconciledExpense != nil {
			fmt.Printf("%s  reconciled expense %s\n", detail, tx.ReconciledExpense.String())
		}
		for _, r := range tx.RewardTxs {
			status := "ok"
			if r.Failed {
				status = "failed"
			}
			fmt.Printf("%s  - %-18s %-6s %s\n", detail, r.Type, status, r.TxRef)
		}
	}
	PrintFooter(fmt.Sprintf("%d transaction(s)", len(txs)), WideWidth)
}
