package login

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	githubAPIURL     = "https://api.github.com"
	githubAPITimeout = 10 * time.Second
)

// Identity is the account returned by the sign-in provider.
type Identity struct {
	ProviderID string
	Login      string
	Name       string
	Email      string
	AvatarURL  string
}

// Provider is an OAuth sign-in provider.
type Provider interface {
	AuthCodeURL(state string) string
	// Identify exchanges the authorization code and fetches the account.
	Identify(ctx context.Context, code string) (*Identity, error)
}

// GitHub signs users in with GitHub OAuth.
type GitHub struct {
	config *oauth2.Config
	apiURL string
}

func NewGitHub(clientID, clientSecret, callbackURL string) (*GitHub, error) {
	if clientID == "" || clientSecret == "" || callbackURL == "" {
		return nil, fmt.Errorf("client ID, client secret, and callback URL are required")
	}

	return &GitHub{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiURL: githubAPIURL,
	}, nil
}

func (g *GitHub) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *GitHub) Identify(ctx context.Context, code string) (*Identity, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, githubAPITimeout)
	defer cancel()

	client := g.config.Client(ctx, token)

	var user githubUser
	if err := g.getJSON(client, "/user", &user); err != nil {
		return nil, err
	}

	identity := &Identity{
		ProviderID: strconv.FormatInt(user.ID, 10),
		Login:      user.Login,
		Name:       user.Name,
		Email:      user.Email,
		AvatarURL:  user.AvatarURL,
	}
	if identity.Name == "" {
		identity.Name = user.Login
	}

	// the profile email is empty when the user keeps it private
	if identity.Email == "" {
		var emails []githubEmail
		if err := g.getJSON(client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				identity.Email = e.Email
				break
			}
		}
	}

	if identity.Email == "" {
		return nil, fmt.Errorf("github account %s has no verified primary email", user.Login)
	}

	return identity, nil
}

func (g *GitHub) getJSON(client *http.Client, path string, v any) error {
	resp, err := client.Get(g.apiURL + path)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned HTTP %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}
