package browser

import (
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// Cookie is the on-disk cookie shape. It matches what browser export tools and
// playwright's storage state write.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ParseCookies accepts a cookie list or a storage state document with a cookies key.
func ParseCookies(data []byte) ([]Cookie, error) {
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		var state struct {
			Cookies []Cookie `json:"cookies"`
		}
		if stateErr := json.Unmarshal(data, &state); stateErr != nil {
			return nil, fmt.Errorf("decode cookies: %w", err)
		}
		cookies = state.Cookies
	}

	for i, cookie := range cookies {
		if cookie.Name == "" || cookie.Domain == "" {
			return nil, fmt.Errorf("cookie %d: name and domain are required", i)
		}
	}

	return cookies, nil
}

// EncodeCookies writes cookies in the list form ParseCookies reads back.
func EncodeCookies(cookies []Cookie) (string, error) {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session cookies: %w", err)
	}
	return string(data), nil
}

// HasSession reports whether the login cookie is present.
func HasSession(cookies []Cookie) bool {
	for _, cookie := range cookies {
		if cookie.Name == "web_session" && cookie.Value != "" {
			return true
		}
	}
	return false
}

func toOptionalCookies(cookies []Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, cookie := range cookies {
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		optional := playwright.OptionalCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   playwright.String(cookie.Domain),
			Path:     playwright.String(path),
			HttpOnly: playwright.Bool(cookie.HTTPOnly),
			Secure:   playwright.Bool(cookie.Secure),
		}
		if cookie.Expires > 0 {
			optional.Expires = playwright.Float(cookie.Expires)
		}
		if sameSite := sameSiteAttribute(cookie.SameSite); sameSite != nil {
			optional.SameSite = sameSite
		}
		out = append(out, optional)
	}
	return out
}

func fromPlaywrightCookies(cookies []playwright.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		record := Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  cookie.Expires,
			HTTPOnly: cookie.HttpOnly,
			Secure:   cookie.Secure,
		}
		if cookie.SameSite != nil {
			record.SameSite = string(*cookie.SameSite)
		}
		out = append(out, record)
	}
	return out
}

func sameSiteAttribute(raw string) *playwright.SameSiteAttribute {
	switch raw {
	case "Strict", "Lax", "None":
		attr := playwright.SameSiteAttribute(raw)
		return &attr
	case "strict":
		return sameSiteAttribute("Strict")
	case "lax":
		return sameSiteAttribute("Lax")
	case "no_restriction", "none":
		return sameSiteAttribute("None")
	default:
		return nil
	}
}
