package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-pkgz/auth/token"
	"github.com/golang-jwt/jwt"

	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
)

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// loadCookies seeds the jar from the cookie file. A missing file is not an
// error.
func (c *Client) loadCookies() error {
	data, err := os.ReadFile(c.cookieFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse cookie file %s: %w", c.cookieFile, err)
	}

	now := time.Now()
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		if !sc.Expires.IsZero() && !sc.Expires.After(now) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value, Path: "/", Expires: sc.Expires})
		c.rememberExpiry(cookies[len(cookies)-1])
	}
	c.jar.SetCookies(c.baseURL, cookies)
	return nil
}

// saveCookies writes the jar's cookies for the server to the cookie file
func (c *Client) saveCookies() error {
	cookies := c.jar.Cookies(c.baseURL)
	stored := make([]storedCookie, 0, len(cookies))
	c.mu.Lock()
	for _, cookie := range cookies {
		stored = append(stored, storedCookie{Name: cookie.Name, Value: cookie.Value, Expires: c.expiries[cookie.Name]})
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.cookieFile), 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}
	if err := os.WriteFile(c.cookieFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}

// rememberExpiry records when cookie stops being valid. A session cookie
// without Expires or Max-Age has no recorded expiry.
func (c *Client) rememberExpiry(cookie *http.Cookie) {
	var expires time.Time
	switch {
	case cookie.MaxAge > 0:
		expires = time.Now().Add(time.Duration(cookie.MaxAge) * time.Second)
	case cookie.MaxAge == 0 && !cookie.Expires.IsZero():
		expires = cookie.Expires
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if expires.IsZero() {
		delete(c.expiries, cookie.Name)
		return
	}
	c.expiries[cookie.Name] = expires
}

// decodeCookie reads the session out of a session cookie value without
// verifying its signature; only the server holds the key. The result is for
// display and local state, never for authorization.
func decodeCookie(value string) (*domain.Session, error) {
	claims := &token.Claims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(value, claims); err != nil {
		return nil, err
	}
	if claims.User == nil {
		return nil, errors.New("no user in session cookie")
	}

	s := &domain.Session{
		AccessToken:  claims.User.StrAttr(constants.AttrAccessToken),
		RefreshToken: claims.User.StrAttr(constants.AttrRefreshToken),
		UserID:       claims.User.ID,
		Email:        claims.User.Email,
	}
	if raw := claims.User.StrAttr(constants.AttrExpiresAt); raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.ExpiresAt = time.Unix(unix, 0)
		}
	}
	return s, nil
}
