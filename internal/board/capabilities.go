package board

import (
	"fmt"

	"qrmenu-be/internal/order"
	"qrmenu-be/internal/utils"
)

// Capabilities parametrizes a board: whose orders it shows and what it may do.
type Capabilities struct {
	Role            string
	RestaurantID    string // empty means every restaurant
	VisibleStatuses []order.Status
	CanAdvance      bool
	CanCancel       bool
	CanSetStatus    bool
}

func Kitchen(restaurantID string) Capabilities {
	return Capabilities{
		Role:            utils.RoleKitchen,
		RestaurantID:    restaurantID,
		VisibleStatuses: []order.Status{order.StatusConfirmed, order.StatusPreparing},
		CanAdvance:      true,
	}
}

func Vendor(restaurantID string) Capabilities {
	return Capabilities{
		Role:            utils.RoleVendor,
		RestaurantID:    restaurantID,
		VisibleStatuses: append([]order.Status(nil), order.AllStatuses...),
		CanAdvance:      true,
		CanCancel:       true,
	}
}

func Admin() Capabilities {
	return Capabilities{
		Role:            utils.RoleAdmin,
		VisibleStatuses: append([]order.Status(nil), order.AllStatuses...),
		CanAdvance:      true,
		CanCancel:       true,
		CanSetStatus:    true,
	}
}

// ForRole returns the preset for role.
func ForRole(role, restaurantID string) (Capabilities, error) {
	switch role {
	case utils.RoleKitchen:
		if restaurantID == "" {
			return Capabilities{}, fmt.Errorf("%s board needs a restaurant", role)
		}
		return Kitchen(restaurantID), nil
	case utils.RoleVendor:
		if restaurantID == "" {
			return Capabilities{}, fmt.Errorf("%s board needs a restaurant", role)
		}
		return Vendor(restaurantID), nil
	case utils.RoleAdmin:
		return Admin(), nil
	}
	return Capabilities{}, fmt.Errorf("no board for role %q", role)
}

func (c Capabilities) Global() bool {
	return c.RestaurantID == ""
}

// Visible reports whether o belongs on this board.
func (c Capabilities) Visible(o *order.Order) bool {
	if o == nil {
		return false
	}
	if !c.Global() && o.RestaurantID != c.RestaurantID {
		return false
	}
	for _, s := range c.VisibleStatuses {
		if s == o.Status {
			return true
		}
	}
	return false
}

// showsAll reports whether the board lists every status, so no status filter is sent.
func (c Capabilities) showsAll() bool {
	return len(c.VisibleStatuses) >= len(order.AllStatuses)
}
