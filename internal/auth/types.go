package auth

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated identity as the vault core sees it: an
// opaque id plus whether the address behind it was verified.
type Principal struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Roles         []Role `json:"roles"`
}

type User struct {
	Username      string
	Email         string
	EmailVerified bool
	PassHash      string // argon2id encoded string
	Roles         []Role
	TOTPSecret    string
}

// UserStore is the persistence boundary for identities. Usernames are the
// stable identity id.
type UserStore interface {
	FindByUsername(username string) (*User, error)
	FindByEmail(email string) (*User, error)
	Add(u *User) error
	UpdatePassword(username, newHash string) error
	MarkEmailVerified(username string) error
}

type Claims struct {
	Sub       string `json:"sub"`
	Roles     []Role `json:"roles"`
	TokenID   string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
