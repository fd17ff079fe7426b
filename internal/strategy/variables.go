package strategy

import (
	"github.com/dop251/goja"

	"github.com/MJE43/plinko-drop/internal/plinko"
)

// Variables is the state a strategy script sees. Only nextbet and basebet
// are writable from the script.
type Variables struct {
	Balance        float64
	NextBet        float64
	BaseBet        float64
	PreviousBet    float64
	Win            bool
	LastMultiplier float64
	LastLane       int
	Bets           int
	Wins           int
	Losses         int
	WinStreak      int
	LoseStreak     int
	Profit         float64
	Wagered        float64
	StartBalance   float64
	Risk           string
}

// injectConstants sets read-only board constants on the JS runtime.
func injectConstants(vm *goja.Runtime) {
	vm.Set("ROWS", plinko.DefaultRows)
	vm.Set("LANES", plinko.DefaultRows+1)
}

func injectVariables(vm *goja.Runtime, vars *Variables) {
	vm.Set("balance", vars.Balance)
	vm.Set("nextbet", vars.NextBet)
	vm.Set("basebet", vars.BaseBet)
	vm.Set("previousbet", vars.PreviousBet)
	vm.Set("win", vars.Win)
	vm.Set("lastmultiplier", vars.LastMultiplier)
	vm.Set("lastlane", vars.LastLane)

	vm.Set("bets", vars.Bets)
	vm.Set("wins", vars.Wins)
	vm.Set("losses", vars.Losses)
	vm.Set("winstreak", vars.WinStreak)
	vm.Set("losestreak", vars.LoseStreak)
	vm.Set("profit", vars.Profit)
	vm.Set("wagered", vars.Wagered)
	vm.Set("started_bal", vars.StartBalance)
	vm.Set("risk", vars.Risk)
}

func syncFromVM(vm *goja.Runtime, vars *Variables) {
	vars.NextBet = toFloat64(vm.Get("nextbet"))
	vars.BaseBet = toFloat64(vm.Get("basebet"))
}

func toFloat64(v goja.Value) float64 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return v.ToFloat()
}
