package session

import (
	"net/url"
	"strings"

	"github.com/knrv/webpilot/api/schemas"
)

// siteOverrides maps a host suffix to per-role selector lists that are
// known to work on that site when generic resolution comes up empty.
// Entries are tried in order; keep the most reliable selector first.
var siteOverrides = map[string]map[schemas.TargetRole][]string{
	"youtube.com": {
		schemas.RoleType: {
			"input#search",
			"input[name='search_query']",
		},
		schemas.RoleClick: {
			"ytd-video-renderer a#thumbnail",
			"ytd-video-renderer a#video-title",
			"button#search-icon-legacy",
		},
		schemas.RoleHeadline: {
			"ytd-video-renderer #video-title",
		},
	},
	"google.com": {
		schemas.RoleType: {
			"textarea[name='q']",
			"input[name='q']",
		},
		schemas.RoleClick: {
			"input[name='btnK']",
			"#search a h3",
		},
		schemas.RoleHeadline: {
			"#search a h3",
		},
	},
	"duckduckgo.com": {
		schemas.RoleType: {
			"input#searchbox_input",
			"input[name='q']",
		},
		schemas.RoleClick: {
			"button[type='submit']",
			"[data-testid='result-title-a']",
		},
		schemas.RoleHeadline: {
			"[data-testid='result-title-a']",
		},
	},
}

// overridesFor returns the override selectors for the current page's
// host and the given role, empty when the site has no table entry.
func overridesFor(pageURL string, role schemas.TargetRole) []string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for suffix, roles := range siteOverrides {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return roles[role]
		}
	}
	return nil
}
