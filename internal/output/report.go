package output

import (
	"fmt"
	"io"

	"ethrank/pkg/models"
)

// PrintReport 将两张排行榜打印到标准输出
func PrintReport(w io.Writer, report *models.Report) error {
	if report == nil {
		return nil
	}

	if _, err := fmt.Fprintf(w, "Smart Contracts sorted by interactions between blocks %d and %d:\n",
		report.StartBlock, report.EndBlock); err != nil {
		return err
	}
	for _, row := range report.Contracts {
		if _, err := fmt.Fprintf(w, "Contract: %s, Interactions: %d\n",
			models.FormatAddress(row.Address), row.Count); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "Wallets sorted by balance between blocks %d and %d:\n",
		report.StartBlock, report.EndBlock); err != nil {
		return err
	}
	for _, row := range report.Wallets {
		if _, err := fmt.Fprintf(w, "Wallet: %s, Balance: %s ETH\n",
			models.FormatAddress(row.Address), row.Balance.String()); err != nil {
			return err
		}
	}
	return nil
}
