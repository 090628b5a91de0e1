package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	var cfgPath string
	var root = &cobra.Command{
		Use:           "simplexity",
		Short:         "Answer questions from live web search with cited sources",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(
		serveCMD(&cfgPath),
		migrateCMD(&cfgPath),
		askCMD(&cfgPath),
		historyCMD(&cfgPath),
		newCMD(&cfgPath),
		deleteCMD(&cfgPath),
		clearCMD(&cfgPath),
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
