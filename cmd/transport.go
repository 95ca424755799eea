package cmd

import (
	"net/http"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// userAgentTransport stamps every smart-HTTP request with our user agent.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

var installOnce sync.Once

// installTransports replaces go-git's default HTTP(S) clients with ones
// that identify as agent.
func installTransports(agent string) {
	installOnce.Do(func() {
		c := githttp.NewClient(&http.Client{
			Transport: userAgentTransport{agent: agent, base: http.DefaultTransport},
		})
		client.InstallProtocol("http", c)
		client.InstallProtocol("https", c)
	})
}
