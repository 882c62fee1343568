// Package runnerapi defines the wire types and the small interfaces a
// runner implementation is built against: TaskSpec/LeaseEnvelope describe
// a leased unit of work, and InputSource/ArtifactSink/ControlPlane/Runner
// are the capability sets a runner consumes.
package runnerapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskSpec is the immutable description of one unit of work.
type TaskSpec struct {
	ID                 uuid.UUID       `json:"id"`
	JobID              *string         `json:"job_id,omitempty"`
	Capability         string          `json:"capability"`
	CapabilityFilters  json.RawMessage `json:"capability_filters,omitempty"`
	InputsCIDs         []string        `json:"inputs_cids,omitempty"`
	OutputsPrefix      *string         `json:"outputs_prefix,omitempty"`
	Label              *string         `json:"label,omitempty"`
	Stage              *string         `json:"stage,omitempty"`
	Meta               json.RawMessage `json:"meta,omitempty"`
	Priority           int64           `json:"priority"`
	Attempts           *int64          `json:"attempts,omitempty"`
	MaxAttempts        *int64          `json:"max_attempts,omitempty"`
	DepsRemaining      *int64          `json:"deps_remaining,omitempty"`
	Status             *string         `json:"status,omitempty"`
	Mode               *string         `json:"mode,omitempty"`
	OrganizationFilter *string         `json:"organization_filter,omitempty"`
	BillingUnits       *int64          `json:"billing_units,omitempty"`
	EstimatedCreditCost *float64       `json:"estimated_credit_cost,omitempty"`
	DebitedAmount      *float64        `json:"debited_amount,omitempty"`
	DebitedAt          *time.Time      `json:"debited_at,omitempty"`
	LeaseExpiresAt     *time.Time      `json:"lease_expires_at,omitempty"`
}

// LeaseEnvelope is the transport wrapper DMS returns whenever it speaks to
// the node: every lease response and every heartbeat response is one of
// these. domain_server_url and domain_id never change for the lease's
// lifetime; only credentials and lifetimes do.
type LeaseEnvelope struct {
	AccessToken          *string    `json:"access_token,omitempty"`
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at,omitempty"`
	LeaseExpiresAt       *time.Time `json:"lease_expires_at,omitempty"`
	Cancel               bool       `json:"cancel"`
	Status               *string    `json:"status,omitempty"`
	DomainID             *uuid.UUID `json:"domain_id,omitempty"`
	DomainServerURL      *string    `json:"domain_server_url,omitempty"`
	Task                 TaskSpec   `json:"task"`
}

// MaterializedInput is the result of fetching one CID from domain storage.
type MaterializedInput struct {
	CID            string
	Path           string
	DataID         string
	Name           string
	DataType       string
	DomainID       string
	RootDir        string
	RelatedFiles   []string
	ExtractedPaths []string
}

// NewMaterializedInput builds the minimal form used by callers that only
// have a cid and a downloaded path (root_dir is the path's parent).
func NewMaterializedInput(cid, path string) MaterializedInput {
	return MaterializedInput{
		CID:     cid,
		Path:    path,
		RootDir: parentDir(path),
	}
}

// UploadedArtifact is recorded per successful put_file/put_bytes call,
// keyed by its logical rel_path. Duplicate rel_path is last-writer-wins.
type UploadedArtifact struct {
	ID          string `json:"id"`
	LogicalPath string `json:"logical_path"`
}
