package runnerapi

import (
	"context"
	"errors"
	"path/filepath"
)

// ErrMultipartUnsupported is returned by the default ArtifactSink.OpenMultipart
// implementation; streaming multipart upload is optional per port.
var ErrMultipartUnsupported = errors.New("multipart not supported")

// InputSource materializes content-addressed inputs to local files.
type InputSource interface {
	// GetBytesByCID materializes cid, then reads the primary extracted file
	// if any, else the downloaded file.
	GetBytesByCID(ctx context.Context, cid string) ([]byte, error)
	// MaterializeCIDToTemp materializes cid and returns the primary local path.
	MaterializeCIDToTemp(ctx context.Context, cid string) (string, error)
	// MaterializeCIDWithMeta materializes cid and returns full metadata,
	// including sibling parts and archive members.
	MaterializeCIDWithMeta(ctx context.Context, cid string) (MaterializedInput, error)
}

// ArtifactSink uploads local artifacts under a task-scoped prefix.
type ArtifactSink interface {
	PutBytes(ctx context.Context, relPath string, data []byte) error
	PutFile(ctx context.Context, relPath, localPath string) error
	// OpenMultipart is optional; the default behavior is to return
	// ErrMultipartUnsupported.
	OpenMultipart(ctx context.Context, relPath string) (MultipartUpload, error)
}

// MultipartUpload is a streaming upload session opened by ArtifactSink.OpenMultipart.
type MultipartUpload interface {
	WriteChunk(data []byte) error
	Finish() error
}

// ControlPlane is the runner's view into session state: progress reporting,
// structured event logging, and cooperative cancellation.
type ControlPlane interface {
	IsCancelled() bool
	Progress(value any)
	LogEvent(value any)
}

// TaskCtx bundles everything a runner needs and nothing more.
type TaskCtx struct {
	Context context.Context
	Lease   LeaseEnvelope
	Input   InputSource
	Output  ArtifactSink
	Control ControlPlane
	// Token returns the current domain access token, for runners that need
	// to call the domain API directly rather than through Input/Output.
	Token func() string
}

// Runner executes one capability's task body.
type Runner interface {
	Capability() string
	Run(ctx TaskCtx) error
}

func parentDir(path string) string {
	return filepath.Dir(path)
}
