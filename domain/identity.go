package domain

import "fmt"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Identity is who a connection speaks for.
// A customer and a staff member of one shop may share a user id: they are
// still two identities.
type Identity struct {
	ShopID string
	UserID string
	Role   Role
}

func (i Identity) Key() string {
	return fmt.Sprintf("%s:%s:%s", i.ShopID, i.Role, i.UserID)
}

func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff
}
