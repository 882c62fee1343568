package dms

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// Paths builds the DMS endpoint URLs off a single base URL, grounded
// bit-exact on the original dms::Paths path builders.
type Paths struct {
	Base *url.URL
}

func NewPaths(base *url.URL) Paths {
	return Paths{Base: base}
}

func (p Paths) join(suffix string) *url.URL {
	u := *p.Base
	u.Path = joinPath(u.Path, suffix)
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

// Tasks returns the unfiltered lease endpoint.
func (p Paths) Tasks() *url.URL {
	return p.join("/tasks")
}

// TasksWithCapability returns the lease endpoint filtered to one
// capability, URL-query-encoded (so "/" survives round-trip).
func (p Paths) TasksWithCapability(capability string) *url.URL {
	u := p.Tasks()
	q := u.Query()
	q.Set("capability", capability)
	u.RawQuery = q.Encode()
	return u
}

// Heartbeat returns {base}/tasks/{uuid}/heartbeat.
func (p Paths) Heartbeat(taskID uuid.UUID) *url.URL {
	return p.join(fmt.Sprintf("/tasks/%s/heartbeat", taskID.String()))
}

func (p Paths) Complete(taskID uuid.UUID) *url.URL {
	return p.join(fmt.Sprintf("/tasks/%s/complete", taskID.String()))
}

func (p Paths) Fail(taskID uuid.UUID) *url.URL {
	return p.join(fmt.Sprintf("/tasks/%s/fail", taskID.String()))
}
