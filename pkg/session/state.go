package session

import (
	"encoding/json"
	"fmt"

	herrors "pageharvest/pkg/errors"
)

// StorageState is the decoded form of an AuthContext: cookies plus
// per-origin localStorage, in the layout browser automation tools export.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Cookie is one browser cookie. Expires is seconds since the epoch, -1 for
// session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginState holds localStorage entries for one origin
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// NameValue is a localStorage entry
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Decode parses the state carried by auth
func Decode(auth *AuthContext) (*StorageState, error) {
	if auth == nil {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "no session loaded", nil)
	}
	var state StorageState
	if err := json.Unmarshal(auth.raw, &state); err != nil {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession,
			fmt.Sprintf("cannot decode session from %s", auth.source), err)
	}
	return &state, nil
}

// Encode serializes state into an AuthContext
func Encode(state *StorageState) (*AuthContext, error) {
	if state.Cookies == nil {
		state.Cookies = []Cookie{}
	}
	if state.Origins == nil {
		state.Origins = []OriginState{}
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return NewAuthContext(raw, "login"), nil
}

// LocalStorageFor returns the localStorage entries recorded for origin
func (s *StorageState) LocalStorageFor(origin string) []NameValue {
	for _, o := range s.Origins {
		if o.Origin == origin {
			return o.LocalStorage
		}
	}
	return nil
}
