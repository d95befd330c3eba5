package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/securecookie"

	"github.com/al-bashkir/sfa-attack-simulation/internal/config"
	"github.com/al-bashkir/sfa-attack-simulation/internal/logsanitize"
)

// cookieCodec carries the session id in a signed cookie. The signature stops
// clients from minting ids, but any validly signed cookie is accepted, which
// is all a fixation attack needs.
type cookieCodec struct {
	name     string
	sc       *securecookie.SecureCookie
	httpOnly bool
	secure   bool
	sameSite http.SameSite
}

func newCookieCodec(cfg *config.SessionConfig, tlsEnabled bool) *cookieCodec {
	sc := securecookie.New([]byte(cfg.Cookie.HashKey), nil)
	sc.MaxAge(int(cfg.TTL().Seconds()))

	c := &cookieCodec{
		name:     cfg.Cookie.Name,
		sc:       sc,
		httpOnly: cfg.Cookie.HTTPOnly,
		secure:   cfg.Cookie.Secure,
		sameSite: parseSameSite(cfg.Cookie.SameSite),
	}

	if cfg.Hardened() {
		c.httpOnly = true
		c.secure = c.secure || tlsEnabled
		if c.sameSite != http.SameSiteStrictMode {
			c.sameSite = http.SameSiteLaxMode
		}
	}

	return c
}

// parseSameSite maps the config value to http.SameSite. An empty value
// leaves the attribute off the cookie.
func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return 0
	}
}

// read returns the session id from the request cookie, or "" when the
// cookie is missing or fails verification.
func (c *cookieCodec) read(r *http.Request) string {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return ""
	}

	var id string
	if err := c.sc.Decode(c.name, cookie.Value, &id); err != nil {
		slog.Debug("rejected session cookie", // #nosec G706 -- value sanitized via logsanitize
			"value", logsanitize.ShortID(cookie.Value),
			"error", err,
		)
		return ""
	}

	return id
}

func (c *cookieCodec) write(w http.ResponseWriter, id string) error {
	encoded, err := c.sc.Encode(c.name, id)
	if err != nil {
		return err
	}

	http.SetCookie(w, c.cookie(encoded, 0))
	return nil
}

func (c *cookieCodec) clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c *cookieCodec) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: c.httpOnly,
		Secure:   c.secure,
		SameSite: c.sameSite,
	}
}
