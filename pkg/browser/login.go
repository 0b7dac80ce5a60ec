package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"pageharvest/pkg/logger"
	"pageharvest/pkg/session"
)

const localStorageDump = `() => JSON.stringify({
	origin: window.location.origin,
	items: Object.keys(window.localStorage).map(k => [k, window.localStorage.getItem(k)])
})`

// ConfirmFunc blocks until the operator has finished logging in
type ConfirmFunc func(ctx context.Context) error

// CaptureLogin opens loginURL in a visible browser, waits for confirm, then
// snapshots the cookies and the current origin's localStorage
func CaptureLogin(ctx context.Context, opts Options, loginURL string, confirm ConfirmFunc, log logger.Logger) (*session.StorageState, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	opts.Headless = false

	b, err := Launch(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	incognito, err := b.root.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	defer incognito.Close()

	var page *rod.Page
	if opts.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := page.Context(ctx).Navigate(loginURL); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	log.WithField("url", loginURL).Info("Login page opened")

	if err := confirm(ctx); err != nil {
		return nil, err
	}

	cookies, err := incognito.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	state := &session.StorageState{Cookies: savedCookies(cookies)}

	origin, err := readLocalStorage(page.Context(ctx))
	if err != nil {
		log.WithError(err).Warn("Could not read localStorage, saving cookies only")
	} else if origin != nil {
		state.Origins = append(state.Origins, *origin)
	}

	log.WithFields(map[string]interface{}{
		"cookies": len(state.Cookies),
		"origins": len(state.Origins),
	}).Info("Session captured")

	return state, nil
}

func readLocalStorage(page *rod.Page) (*session.OriginState, error) {
	res, err := page.Eval(localStorageDump)
	if err != nil {
		return nil, err
	}
	return parseLocalStorageDump(res.Value.Str())
}

func parseLocalStorageDump(raw string) (*session.OriginState, error) {
	var dump struct {
		Origin string      `json:"origin"`
		Items  [][2]string `json:"items"`
	}
	if err := json.Unmarshal([]byte(raw), &dump); err != nil {
		return nil, fmt.Errorf("decode localStorage dump: %w", err)
	}
	if _, err := originOf(dump.Origin); err != nil {
		return nil, nil
	}

	origin := &session.OriginState{Origin: dump.Origin, LocalStorage: []session.NameValue{}}
	for _, kv := range dump.Items {
		origin.LocalStorage = append(origin.LocalStorage, session.NameValue{Name: kv[0], Value: kv[1]})
	}
	return origin, nil
}
