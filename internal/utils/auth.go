package utils

const (
	RoleAdmin    = "admin"
	RoleVendor   = "vendor"
	RoleKitchen  = "kitchen"
	RoleCustomer = "customer"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleVendor, RoleKitchen, RoleCustomer:
		return true
	}
	return false
}

// IsStaff reports whether the identity works for a restaurant or the platform.
func (id Identity) IsStaff() bool {
	return id.Role == RoleAdmin || id.Role == RoleVendor || id.Role == RoleKitchen
}

// CanAccessRestaurant: admins see every restaurant, other staff only their own.
func (id Identity) CanAccessRestaurant(restaurantID string) bool {
	if id.Role == RoleAdmin {
		return true
	}
	return id.IsStaff() && id.RestaurantID != "" && id.RestaurantID == restaurantID
}
