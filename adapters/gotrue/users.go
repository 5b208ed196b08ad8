package gotrue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lborres/opgate"
)

type user struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u *user) identity() *opgate.Identity {
	return &opgate.Identity{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

type listResponse struct {
	Users []user `json:"users"`
}

type session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
	User         *user  `json:"user"`
}

// CreateIdentity creates a user with the email already confirmed.
func (c *Client) CreateIdentity(ctx context.Context, email, password string) (*opgate.Identity, error) {
	body := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}

	var u user
	if err := c.do(ctx, http.MethodPost, "/admin/users", body, &u); err != nil {
		return nil, classify(err)
	}
	return u.identity(), nil
}

func (c *Client) GetIdentity(ctx context.Context, id string) (*opgate.Identity, error) {
	var u user
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, classify(err)
	}
	if u.ID == "" {
		return nil, opgate.ErrIdentityNotFound
	}
	return u.identity(), nil
}

// ListIdentities walks every page of the admin listing.
func (c *Client) ListIdentities(ctx context.Context) ([]*opgate.Identity, error) {
	var identities []*opgate.Identity
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", fmt.Sprint(page))
		q.Set("per_page", fmt.Sprint(c.perPage))

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, "/admin/users?"+q.Encode(), nil, &resp); err != nil {
			return nil, classify(err)
		}
		for i := range resp.Users {
			identities = append(identities, resp.Users[i].identity())
		}
		if len(resp.Users) < c.perPage {
			return identities, nil
		}
	}
}

func (c *Client) UpdateIdentityPassword(ctx context.Context, id, password string) error {
	body := map[string]any{"password": password}
	if err := c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), body, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*opgate.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}

	var s session
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", body, &s); err != nil {
		return nil, classify(err)
	}

	out := &opgate.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		TokenType:    s.TokenType,
	}
	if s.User != nil {
		out.User = s.User.identity()
	}
	return out, nil
}
