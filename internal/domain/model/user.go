package model

// User is a login identity. The numeric ID doubles as the connection token.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at"` // unix ms
}
