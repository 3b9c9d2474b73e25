package models

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	UUID     string `json:"uuid"`
	Email    string `json:"email"`
	Password string `json:"-"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Admin  bool
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// CanView reports whether p may read an order owned by ownerID.
func (p Principal) CanView(ownerID string) bool {
	return p.Admin || (p.Authenticated() && p.UserID == ownerID)
}
