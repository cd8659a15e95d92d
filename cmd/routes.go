package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

var (
	routesOrg     string
	routesActive  bool
	routeCampaign string
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Manage phone routes",
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewPostgres(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		routes, err := st.ListRoutes(cmd.Context(), store.RouteFilter{
			OrganizationID: routesOrg,
			ActiveOnly:     routesActive,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTRACKING\tDESTINATION\tCAMPAIGN\tACTIVE\tORG")
		for _, rt := range routes {
			campaign := "-"
			if rt.Campaign != nil {
				campaign = *rt.Campaign
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
				rt.ID, rt.TrackingNumber, rt.DestinationNumber, campaign, rt.IsActive, rt.OrganizationID)
		}
		return w.Flush()
	},
}

var routesAddCmd = &cobra.Command{
	Use:   "add <tracking-number> <destination-number>",
	Short: "Create a route",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tracking, err := model.NormalizePhone(args[0])
		if err != nil {
			return err
		}
		destination, err := model.NormalizePhone(args[1])
		if err != nil {
			return err
		}
		if routesOrg == "" {
			return fmt.Errorf("--org is required")
		}

		st, err := store.NewPostgres(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		route := model.Route{
			TrackingNumber:    tracking,
			DestinationNumber: destination,
			IsActive:          true,
			OrganizationID:    routesOrg,
		}
		if routeCampaign != "" {
			route.Campaign = &routeCampaign
		}

		created, err := st.CreateRoute(cmd.Context(), route)
		if err != nil {
			return err
		}
		fmt.Printf("created route %s\n", created.ID)
		return nil
	},
}

var routesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <route-id>",
	Short: "Deactivate a route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewPostgres(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeactivateRoute(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deactivated route %s\n", args[0])
		return nil
	},
}

func init() {
	routesCmd.PersistentFlags().StringVar(&routesOrg, "org", "", "organization id")
	routesListCmd.Flags().BoolVar(&routesActive, "active", false, "only active routes")
	routesAddCmd.Flags().StringVar(&routeCampaign, "campaign", "", "campaign name (omit for the generic route)")

	routesCmd.AddCommand(routesListCmd, routesAddCmd, routesDeactivateCmd)
	rootCmd.AddCommand(routesCmd)
}
