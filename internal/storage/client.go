// Package storage implements the two ports a runner is given over a
// single domain-scoped HTTP client: InputSource materializes content IDs
// to local files, ArtifactSink uploads local files under a task-scoped
// prefix. Both share one TokenRef so a token rotation is visible to every
// subsequent request, regardless of which port issues it.
package storage

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	nodeerrors "github.com/aukilabs/compute-node/internal/errors"
)

// DomainClient is scoped to one domain_server_url/domain_id pair for the
// lifetime of a Session.
type DomainClient struct {
	Base       *url.URL
	DomainID   uuid.UUID
	HTTPClient *http.Client
	Token      *TokenRef
}

func NewDomainClient(base *url.URL, domainID uuid.UUID, httpClient *http.Client, token *TokenRef) *DomainClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DomainClient{Base: base, DomainID: domainID, HTTPClient: httpClient, Token: token}
}

func (c *DomainClient) dataURL() *url.URL {
	u := *c.Base
	u.Path = joinPath(u.Path, fmt.Sprintf("/api/v1/domains/%s/data", c.DomainID.String()))
	return &u
}

func joinPath(a, b string) string {
	if len(a) > 0 && a[len(a)-1] == '/' {
		a = a[:len(a)-1]
	}
	if len(b) > 0 && b[0] != '/' {
		b = "/" + b
	}
	return a + b
}

// authorize reads TokenRef.Get() immediately before sending, so rotating
// the token between two calls changes the Authorization header of the
// second call.
func (c *DomainClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token.Get())
}

func mapResponseError(resp *http.Response, body []byte) error {
	return nodeerrors.FromStatusCode(resp.StatusCode, string(body))
}
