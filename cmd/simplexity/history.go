package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func historyCMD(cfgPath *string) *cobra.Command {
	var output string
	var history = &cobra.Command{
		Use:   "history",
		Short: "List saved conversations, newest last",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			convs, err := a.repo.List(cmd.Context())
			if err != nil {
				return err
			}
			current, err := a.storage.Persistence.CurrentID(cmd.Context())
			if err != nil {
				return err
			}
			return renderHistory(cmd.OutOrStdout(), output, convs, current)
		},
	}
	history.Flags().StringVarP(&output, "output", "o", "table", "table, json or yaml")

	return history
}

// renderHistory writes convs in the requested format. Structured formats
// carry the full messages; the table is a one-line summary per conversation.
func renderHistory(w io.Writer, format string, convs []models.Conversation, current string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(convs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(convs); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		for _, c := range convs {
			marker := " "
			if c.ID == current {
				marker = "*"
			}
			title := c.Title
			if title == "" {
				title = "(empty)"
			}
			if _, err := fmt.Fprintf(w, "%s %s  %s  %d messages  %s\n",
				marker, c.ID, time.UnixMilli(c.CreatedAt).UTC().Format(time.DateTime), len(c.Messages), title); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func newCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation and make it current",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.repo.Create(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
			return nil
		},
	}
}

func deleteCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.repo.Delete(cmd.Context(), args[0])
		},
	}
}

func clearCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.repo.Clear(cmd.Context())
		},
	}
}
