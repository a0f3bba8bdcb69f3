package services

import "github.com/chachabrian/rentcar-backend/internal/models"

// Actor is the authenticated user an operation runs on behalf of.
type Actor struct {
	ID   uint
	Role models.Role
}

func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func (a Actor) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
