package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	servercommon "github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/spf13/cobra"
)

// resourceCommand groups resource registration and workload listing.
func (c *cli) resourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resource",
		Aliases: []string{"resources"},
		Short:   "Manage resources and their workload",
	}
	cmd.AddCommand(
		c.resourceAddCommand(),
		c.resourceListCommand(),
		c.resourceDeactivateCommand(),
	)
	return cmd
}

func (c *cli) resourceAddCommand() *cobra.Command {
	var in servercommon.CreateResourceRequest
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			return c.withService(cmd, "resource add", func(ctx context.Context) error {
				resource, err := c.adapter.CreateResource(ctx, in)
				if err != nil {
					return err
				}
				return c.printResources([]servercommon.Resource{resource})
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&in.Role, "role", "", "role or discipline")
	cmd.Flags().Float64Var(&in.WeeklyCapacityHrs, "capacity", 0, "weekly capacity in hours (default from config)")
	return cmd
}

func (c *cli) resourceListCommand() *cobra.Command {
	var inactive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources with utilization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, "resource list", func(ctx context.Context) error {
				resources, err := c.adapter.ListResources(ctx, inactive)
				if err != nil {
					return err
				}
				return c.printResources(resources)
			})
		},
	}
	cmd.Flags().BoolVar(&inactive, "inactive", false, "include inactive resources")
	return cmd
}

func (c *cli) resourceDeactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <resource-id>",
		Short: "Mark a resource inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, "resource deactivate", func(ctx context.Context) error {
				active := false
				resource, err := c.adapter.UpdateResource(ctx, servercommon.UpdateResourceRequest{
					ResourceID: args[0],
					Active:     &active,
				})
				if err != nil {
					return err
				}
				return c.printResources([]servercommon.Resource{resource})
			})
		},
	}
}

func (c *cli) printResources(resources []servercommon.Resource) error {
	return emit(c.stdout, c.jsonOut, resources, func() *table.Table {
		t := newTable("Name", "Role", "Capacity", "Open", "Remaining", "Load", "Active", "ID")
		for _, r := range resources {
			open, remaining, load := "-", "-", "-"
			if u := r.Utilization; u != nil {
				open = fmt.Sprint(u.OpenTasks)
				remaining = hours(u.RemainingHours)
				load = fmt.Sprintf("%.1f%%", u.Percent)
				if u.Overallocated {
					load += " !"
				}
			}
			t.Row(r.Name, textCell(r.Role), hours(r.WeeklyCapacityHrs), open, remaining, load, fmt.Sprint(r.Active), r.ID)
		}
		return t
	})
}
