package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateAmount float64
	simulateWallet string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一笔新钱包大额交易并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAmount <= 0 {
			return errors.New("--amount 必须大于 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateAmount, simulateWallet)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateAmount, "amount", 0, "模拟成交金额 (USD)")
	simulateCmd.Flags().StringVar(&simulateWallet, "wallet", "0x000000000000000000000000000000000000dEaD", "模拟钱包地址")
}
