/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "escrow-gin",
	Short: "Escrow reconciliation coordinator for the micro-task marketplace",
	Long: `Escrow Gin is the coordinator service that keeps off-chain task
workflow records consistent with the on-chain escrow ledger.
It exposes REST API interfaces for task workflow transitions,
escrow funding, release, cancellation and oracle-triggered
conditional release.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}
