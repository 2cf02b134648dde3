package board

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"qrmenu-be/internal/order"
)

var ErrQuit = errors.New("quit")

type Command struct {
	Action string // a, c, s, r, q
	Row    int    // 1-based row as rendered
	Status order.Status
}

// ParseCommand reads "a <n>", "c <n>", "s <n> <status>", "r" or "q".
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}

	cmd := Command{Action: strings.ToLower(fields[0])}
	switch cmd.Action {
	case "r", "q":
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%s takes no arguments", cmd.Action)
		}
		return cmd, nil
	case "a", "c":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: %s <n>", cmd.Action)
		}
	case "s":
		if len(fields) != 3 {
			return Command{}, errors.New("usage: s <n> <status>")
		}
		cmd.Status = order.Status(strings.ToLower(fields[2]))
		if !cmd.Status.Valid() {
			return Command{}, fmt.Errorf("unknown status %q", fields[2])
		}
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}

	row, err := strconv.Atoi(fields[1])
	if err != nil || row <= 0 {
		return Command{}, fmt.Errorf("invalid row %q", fields[1])
	}
	cmd.Row = row
	return cmd, nil
}

// Execute runs cmd against the rows as currently rendered.
func (b *Board) Execute(ctx context.Context, cmd Command) (string, error) {
	if cmd.Action == "q" {
		return "", ErrQuit
	}
	if cmd.Action == "r" {
		if err := b.Refresh(ctx); err != nil {
			return "", err
		}
		return "refreshed", nil
	}

	orders := b.Orders()
	if cmd.Row < 1 || cmd.Row > len(orders) {
		return "", fmt.Errorf("no row %d", cmd.Row)
	}
	target := orders[cmd.Row-1]

	switch cmd.Action {
	case "a":
		changed, err := b.Advance(ctx, target.ID)
		if err != nil {
			return "", err
		}
		if !changed {
			return fmt.Sprintf("%s is already %s", target.OrderNumber, target.Status), nil
		}
	case "c":
		if err := b.Cancel(ctx, target.ID); err != nil {
			return "", err
		}
	case "s":
		if err := b.SetStatus(ctx, target.ID, cmd.Status); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown command %q", cmd.Action)
	}

	if o, ok := b.Get(target.ID); ok {
		return fmt.Sprintf("%s is now %s", o.OrderNumber, o.Status), nil
	}
	return fmt.Sprintf("%s updated", target.OrderNumber), nil
}
