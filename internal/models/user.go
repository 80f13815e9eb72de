package models

import "time"

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleStaff UserRole = "staff"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
}

func UserFromData(id string, data map[string]any, createdAt time.Time) User {
	return User{
		ID:           id,
		Name:         str(data, "name"),
		Email:        str(data, "email"),
		PasswordHash: str(data, "passwordHash"),
		Role:         UserRole(str(data, "role")),
		CreatedAt:    createdAt,
	}
}

func (u User) Data() map[string]any {
	return map[string]any{
		"name":         u.Name,
		"email":        u.Email,
		"passwordHash": u.PasswordHash,
		"role":         string(u.Role),
	}
}
