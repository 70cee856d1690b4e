package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	danger    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F6D"}
	subtle    = lipgloss.AdaptiveColor{Light: "#9C9C9C", Dark: "#6C6C6C"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	balanceStyle = lipgloss.NewStyle().Bold(true).Foreground(special)
	warnStyle    = lipgloss.NewStyle().Foreground(danger)
	mutedStyle   = lipgloss.NewStyle().Foreground(subtle)
	headerCell   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell         = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(subtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cell
		}).
		Headers(headers...)
}

func renderPortfolio(key, balanceText string, p domain.Portfolio, prices map[string]decimal.Decimal, currency string, stale bool) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Portfolio") + " " + mutedStyle.Render(key) + "\n")
	b.WriteString("Cash:     " + balanceStyle.Render(balanceText) + "\n")
	if len(prices) > 0 {
		holdings := p.Valuation(prices)
		b.WriteString("Holdings: " + domain.FormatBalance(holdings, currency) + "\n")
		b.WriteString("Total:    " + domain.FormatBalance(holdings.Add(p.Balance), currency) + "\n")
	}
	if stale {
		b.WriteString(warnStyle.Render("Last change has not been saved yet") + "\n")
	}

	if len(p.Holdings) == 0 {
		b.WriteString(mutedStyle.Render("No holdings") + "\n")
		return b.String()
	}

	t := newTable("Coin", "Amount", "Price", "Value")
	for _, h := range p.Holdings {
		price, value := "-", "-"
		if pr, ok := prices[h.CoinID]; ok {
			price = domain.FormatBalance(pr, currency)
			value = domain.FormatBalance(pr.Mul(h.Amount), currency)
		}
		t.Row(h.CoinName, domain.FormatQuantity(h.Amount), price, value)
	}
	b.WriteString(t.Render() + "\n")

	return b.String()
}

func renderHistory(trades []domain.TradeRecord, currency string, limit int) string {
	if len(trades) == 0 {
		return mutedStyle.Render("No trades yet") + "\n"
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}

	t := newTable("Date", "Type", "Coin", "Amount", "Price", "Total")
	for _, tr := range trades {
		t.Row(
			tr.Date.Local().Format("2006-01-02 15:04"),
			string(tr.Type),
			strings.ToUpper(tr.CoinSymbol),
			domain.FormatQuantity(tr.Amount),
			domain.FormatBalance(tr.CurrentPrice, currency),
			domain.FormatBalance(tr.Total(), currency),
		)
	}
	return t.Render() + "\n"
}

func renderCoins(coins []domain.Coin, currency string) string {
	if len(coins) == 0 {
		return mutedStyle.Render("No coins match") + "\n"
	}

	t := newTable("#", "Coin", "Symbol", "Price", "24h", "Market cap")
	for _, c := range coins {
		t.Row(
			fmt.Sprintf("%d", c.MarketCapRank),
			c.Name,
			strings.ToUpper(c.Symbol),
			domain.FormatBalance(c.CurrentPrice, currency),
			c.PriceChangePercentage24h.StringFixed(2)+"%",
			domain.FormatBalance(c.MarketCap, currency),
		)
	}
	return t.Render() + "\n"
}

func renderProfiles(profiles []domain.Profile, active string) string {
	if len(profiles) == 0 {
		return mutedStyle.Render("No profiles") + "\n"
	}

	t := newTable("", "Email", "Name", "Cards", "Created")
	for _, p := range profiles {
		marker := ""
		if p.Email == active {
			marker = "*"
		}
		cards := make([]string, 0, len(p.Cards))
		for _, c := range p.Cards {
			cards = append(cards, c.Last4)
		}
		t.Row(marker, p.Email, p.Name, strings.Join(cards, ","), p.CreatedAt.Local().Format("2006-01-02"))
	}
	return t.Render() + "\n"
}
