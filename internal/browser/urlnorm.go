package browser

import (
	"fmt"
	"regexp"
	"strconv"
)

// Remote dev workspaces expose forwarded ports on hosts like
// https://name-3000.app.github.dev/; inside the workspace the same server
// answers on localhost, so those URLs are rewritten before navigation.
var codespaceHost = regexp.MustCompile(`^https?://[\w-]+-(\d+)\.(?:app\.github\.dev|githubpreview\.dev)(/.*)?$`)

func normalizeURL(raw string, defaultPort int) string {
	if m := codespaceHost.FindStringSubmatch(raw); m != nil {
		port, err := strconv.Atoi(m[1])
		if err != nil || port <= 0 {
			port = defaultPort
		}
		path := m[2]
		if path == "" {
			path = "/"
		}
		return fmt.Sprintf("http://localhost:%d%s", port, path)
	}
	return raw
}
