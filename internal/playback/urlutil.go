package playback

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// withCacheBust appends key=<unix-ms> to rawURL so intermediate caches
// cannot mask backend state changes. Probes use key "probe"; the real
// attach uses key "ts". A URL that fails to parse gets the parameter
// appended verbatim rather than being rejected.
func withCacheBust(rawURL, key string) string {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	u, err := url.Parse(rawURL)
	if err != nil {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + key + "=" + stamp
	}

	q := u.Query()
	q.Set(key, stamp)
	u.RawQuery = q.Encode()
	return u.String()
}
