package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tmc/pubmed"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .pm/ cache and audit directory here",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		store, err := pubmed.Init(dir)
		if err != nil {
			if errors.Is(err, pubmed.ErrAlreadyInitialized) {
				return fmt.Errorf(".pm/ already exists; delete it first to reinitialize")
			}
			return err
		}
		cmd.Printf("Initialized %s\n", store.Root())
		return nil
	},
}
