package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/handyhub/internal/models"
)

func sweepCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire Waiting requests past their expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if dryRun {
				reqs, err := a.market.PendingExpiry(cmd.Context())
				if err != nil {
					return err
				}
				renderRequests(reqs, time.Now().UTC())
				return nil
			}
			n, err := a.market.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("expired %d request(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would expire without changing anything")
	return cmd
}

func requestsCmd() *cobra.Command {
	var requester string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List open requests, or one requester's requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now().UTC()
			var reqs []models.ServiceRequest
			if requester != "" {
				reqs, err = a.store.ListRequestsByRequester(cmd.Context(), requester)
			} else {
				reqs, err = a.store.ListOpenRequests(cmd.Context(), now)
			}
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reqs)
			}
			renderRequests(reqs, now)
			return nil
		},
	}
	cmd.Flags().StringVar(&requester, "requester", "", "requester id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func renderRequests(reqs []models.ServiceRequest, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Requester", "Work", "Budget", "Status", "Target", "Expires"})
	for _, r := range reqs {
		budget := ""
		if r.Budget != nil {
			budget = fmt.Sprintf("%.2f", *r.Budget)
		}
		target := ""
		if r.TargetProviderID != nil {
			target = *r.TargetProviderID
		}
		tw.AppendRow(table.Row{r.ID, r.RequesterID, r.TypeOfWork, budget, r.EffectiveStatus(now), target, r.ExpiresAt.Format(time.RFC3339)})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", "total", len(reqs)})
	tw.Render()
}
