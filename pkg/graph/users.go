package graph

import (
	"context"
	"net/http"
	"net/url"
)

// User is a directory user.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// UserByEmail looks a user up by email or principal name. A missing user
// surfaces as a 404 StatusError.
func (c *Client) UserByEmail(ctx context.Context, token, email string) (User, error) {
	raw, err := c.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(email), token, nil, "")
	if err != nil {
		return User{}, err
	}
	return decode[User](raw, "get user")
}
