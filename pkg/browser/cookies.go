package browser

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-rod/rod/lib/proto"

	"pageharvest/pkg/session"
)

// cookieParams converts saved cookies to CDP parameters. Session cookies
// (expires <= 0) are sent without an expiry.
func cookieParams(cookies []session.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

// savedCookies converts live browser cookies to the stored form
func savedCookies(cookies []*proto.NetworkCookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := float64(c.Expires)
		if c.Session {
			expires = -1
		}
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// localStorageScript returns a script that seeds localStorage for each saved
// origin before any page script runs. Entries are only applied when the
// document's origin matches.
func localStorageScript(origins []session.OriginState) (string, error) {
	seed := make(map[string]map[string]string)
	for _, o := range origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		entries := make(map[string]string, len(o.LocalStorage))
		for _, kv := range o.LocalStorage {
			entries[kv.Name] = kv.Value
		}
		seed[o.Origin] = entries
	}
	if len(seed) == 0 {
		return "", nil
	}

	data, err := json.Marshal(seed)
	if err != nil {
		return "", fmt.Errorf("failed to encode localStorage: %w", err)
	}
	return fmt.Sprintf(`(() => {
	const seed = %s;
	const entries = seed[window.location.origin];
	if (!entries) return;
	try {
		for (const [k, v] of Object.entries(entries)) {
			if (window.localStorage.getItem(k) === null) window.localStorage.setItem(k, v);
		}
	} catch (e) {}
})();`, data), nil
}

// originOf returns scheme://host for a page URL
func originOf(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("no origin in %q", pageURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
