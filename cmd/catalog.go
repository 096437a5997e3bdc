/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hintquest/apiserver/config"
	"github.com/hintquest/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var catalogFile string

// catalogCmd groups the challenge catalog commands.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Import or export challenge definitions",
	Long: `Import or export the YAML challenge catalog. Without --file the
document is read from or written to the configured object storage.`,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create or update challenges from a catalog document",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := server.NewApp(cmd.Context(), config.LoadConfig(), slog.Default())
		if err != nil {
			return err
		}
		defer app.Close()

		var count int
		if catalogFile == "" {
			count, err = app.Catalog.Load(cmd.Context())
		} else {
			f, openErr := os.Open(catalogFile)
			if openErr != nil {
				return openErr
			}
			defer f.Close()
			count, err = app.Catalog.Import(cmd.Context(), f)
		}
		if err != nil {
			return fmt.Errorf("catalog import failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d challenges\n", count)
		return nil
	},
}

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every challenge to a catalog document",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		app, err := server.NewApp(cmd.Context(), config.LoadConfig(), slog.Default())
		if err != nil {
			return err
		}
		defer app.Close()

		var count int
		if catalogFile == "" {
			count, err = app.Catalog.Save(cmd.Context())
		} else {
			f, createErr := os.Create(catalogFile)
			if createErr != nil {
				return createErr
			}
			defer func() {
				err = errors.Join(err, f.Close())
			}()
			count, err = app.Catalog.Export(cmd.Context(), f)
		}
		if err != nil {
			return fmt.Errorf("catalog export failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d challenges\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogExportCmd)
	catalogCmd.PersistentFlags().StringVarP(&catalogFile, "file", "f", "", "local YAML file instead of object storage")
}
