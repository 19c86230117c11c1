package affiliate

import (
	"net/url"
	"strings"
)

// trackingParams are dropped from every URL regardless of merchant
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"fbclid": {}, "gclid": {}, "gbraid": {}, "wbraid": {}, "gad_source": {}, "msclkid": {}, "dclid": {},
	"smid": {}, "pf_rd_p": {}, "pf_rd_r": {}, "pd_rd_w": {}, "pd_rd_wg": {}, "pd_rd_r": {},
	"dchild": {}, "keywords": {}, "qid": {}, "sr": {}, "th": {}, "psc": {}, "sp_atk": {},
	"is_from_signup": {}, "matt_tool": {}, "matt_word": {}, "product_trigger_id": {},
	"spm": {}, "scm": {}, "_randl_shipto": {},
}

// CleanTrackingParams removes known tracking parameters from rawURL.
// Remaining parameters keep their original encoding and order, so cleaning is
// idempotent. Unparseable input is returned unchanged.
func CleanTrackingParams(rawURL string) string {
	return removeParams(rawURL, func(key string) bool {
		_, ok := trackingParams[strings.ToLower(key)]
		return ok
	})
}

// removeParams drops every query pair whose decoded key satisfies drop
func removeParams(rawURL string, drop func(key string) bool) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}

	pairs := strings.Split(u.RawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if drop(key) {
			continue
		}
		kept = append(kept, pair)
	}

	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}

// setParam replaces every occurrence of key with a single key=value pair
func setParam(rawURL, key, value string) string {
	cleaned := removeParams(rawURL, func(k string) bool { return k == key })
	u, err := url.Parse(cleaned)
	if err != nil {
		return rawURL
	}
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	if u.RawQuery == "" {
		u.RawQuery = pair
	} else {
		u.RawQuery += "&" + pair
	}
	return u.String()
}
