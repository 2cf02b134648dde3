package board

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"qrmenu-be/internal/order"
	"qrmenu-be/internal/utils"

	"github.com/olekukonko/tablewriter"
)

// Render writes the board as a table. Row numbers are what the interactive
// commands refer to.
func Render(w io.Writer, b *Board, now time.Time) error {
	caps := b.Capabilities()
	scope := caps.RestaurantID
	if caps.Global() {
		scope = "all restaurants"
	}
	fmt.Fprintf(w, "%s board (%s)\n", caps.Role, scope)

	orders := b.Orders()
	if len(orders) == 0 {
		fmt.Fprintln(w, "no orders")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("#", "Order", "Where", "Status", "Items", "Total", "Age", "Next")

		rows := make([][]string, 0, len(orders))
		for i, o := range orders {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				o.OrderNumber,
				where(o),
				string(o.Status),
				itemsSummary(o),
				fmt.Sprintf("%.2f", o.TotalAmount),
				age(now, o.CreatedAt),
				nextActions(caps, o),
			})
		}
		if err := table.Bulk(rows); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if err := b.LastError(); err != nil {
		fmt.Fprintf(w, "last refresh failed, showing stale data: %v\n", err)
	}
	fmt.Fprintln(w, commandHelp(caps))
	return nil
}

func where(o *order.Order) string {
	switch o.DeliveryType {
	case order.DeliveryDineIn:
		if t := utils.PtrString(o.TableNumber); t != "" {
			return "table " + t
		}
		return "dine in"
	case order.DeliveryDelivery:
		return "delivery"
	}
	return "takeaway"
}

func itemsSummary(o *order.Order) string {
	parts := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		name := it.MenuItem.Name
		if name == "" {
			name = it.MenuItemID
		}
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, name))
	}
	return strings.Join(parts, ", ")
}

func age(now, created time.Time) string {
	if created.IsZero() {
		return "-"
	}
	d := now.Sub(created).Round(time.Minute)
	if d < time.Minute {
		return "<1m"
	}
	return strings.TrimSuffix(d.String(), "0s")
}

func nextActions(caps Capabilities, o *order.Order) string {
	var actions []string
	if caps.CanAdvance {
		if next, ok := order.Advance(o.Status, o.DeliveryType); ok {
			actions = append(actions, "-> "+string(next))
		}
	}
	if caps.CanSetStatus {
		targets := order.AllowedTargets(o.Status, o.DeliveryType)
		if len(targets) > 0 {
			names := make([]string, len(targets))
			for i, t := range targets {
				names[i] = string(t)
			}
			actions = append(actions, "set: "+strings.Join(names, "|"))
		}
	}
	return strings.Join(actions, " ")
}

func commandHelp(caps Capabilities) string {
	cmds := []string{}
	if caps.CanAdvance {
		cmds = append(cmds, "a <n> advance")
	}
	if caps.CanCancel {
		cmds = append(cmds, "c <n> cancel")
	}
	if caps.CanSetStatus {
		cmds = append(cmds, "s <n> <status> set")
	}
	cmds = append(cmds, "r refresh", "q quit")
	return "commands: " + strings.Join(cmds, ", ")
}
