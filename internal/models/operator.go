package models

import "golang.org/x/crypto/bcrypt"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleService Role = "service"
)

// Operator is a pre-authorized caller: an admin running recovery actions or a
// trusted service (checkout) confirming payments.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

func (u *Operator) HashPassword(password string) error {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(bytes)
	return nil
}

func (u *Operator) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

func (u *Operator) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
