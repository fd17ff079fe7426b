package plinko

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultRisk names the payout table the game ships with.
const DefaultRisk = "classic"

//go:embed tables.json
var payoutTablesJSON []byte

var payoutTables = loadPayoutTables()

func loadPayoutTables() map[string]map[int][]float64 {
	raw := map[string]map[string][]float64{}
	if err := json.Unmarshal(payoutTablesJSON, &raw); err != nil {
		panic(fmt.Sprintf("failed to parse plinko payout tables: %v", err))
	}

	result := make(map[string]map[int][]float64, len(raw))
	for risk, rows := range raw {
		if risk == "" {
			panic("encountered empty risk key in plinko tables")
		}

		result[risk] = make(map[int][]float64, len(rows))
		for rowsKey, multipliers := range rows {
			rowCount, err := strconv.Atoi(rowsKey)
			if err != nil {
				panic(fmt.Sprintf("invalid row key %q for risk %q: %v", rowsKey, risk, err))
			}

			expectedLength := rowCount + 1
			if len(multipliers) != expectedLength {
				panic(fmt.Sprintf("plinko table mismatch for risk %q rows %d: expected %d entries, got %d", risk, rowCount, expectedLength, len(multipliers)))
			}

			copied := make([]float64, expectedLength)
			copy(copied, multipliers)
			result[risk][rowCount] = copied
		}
	}

	return result
}

// PayoutTable returns a copy of the lane multipliers for a risk level and row count.
func PayoutTable(risk string, rows int) ([]float64, error) {
	risk = strings.ToLower(strings.TrimSpace(risk))
	if risk == "" {
		risk = DefaultRisk
	}

	riskTables, ok := payoutTables[risk]
	if !ok {
		return nil, fmt.Errorf("unknown plinko risk: %s", risk)
	}

	table, ok := riskTables[rows]
	if !ok {
		return nil, fmt.Errorf("no payout table for risk %s rows %d", risk, rows)
	}

	out := make([]float64, len(table))
	copy(out, table)
	return out, nil
}

// Risks lists the available payout table names in sorted order.
func Risks() []string {
	out := make([]string, 0, len(payoutTables))
	for risk := range payoutTables {
		out = append(out, risk)
	}
	sort.Strings(out)
	return out
}
