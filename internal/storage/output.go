package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"sync"

	nodeerrors "github.com/aukilabs/compute-node/internal/errors"
	"github.com/aukilabs/compute-node/internal/runnerapi"
	"github.com/aukilabs/compute-node/internal/telemetry"
)

// DomainOutput implements runnerapi.ArtifactSink over a DomainClient,
// recording every successful upload in a Session-scoped table keyed by
// its logical rel_path (last-writer-wins).
type DomainOutput struct {
	Client        *DomainClient
	OutputsPrefix string
	Metrics       *telemetry.Metrics

	mu      sync.Mutex
	uploads map[string]runnerapi.UploadedArtifact
}

func NewDomainOutput(client *DomainClient, outputsPrefix string, metrics *telemetry.Metrics) *DomainOutput {
	return &DomainOutput{
		Client:        client,
		OutputsPrefix: outputsPrefix,
		Metrics:       metrics,
		uploads:       make(map[string]runnerapi.UploadedArtifact),
	}
}

func (d *DomainOutput) PutBytes(ctx context.Context, relPath string, data []byte) error {
	return d.upload(ctx, relPath, bytes.NewReader(data))
}

func (d *DomainOutput) PutFile(ctx context.Context, relPath, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return d.upload(ctx, relPath, f)
}

// OpenMultipart is optional; the default port does not support streaming
// upload.
func (d *DomainOutput) OpenMultipart(ctx context.Context, relPath string) (runnerapi.MultipartUpload, error) {
	return nil, runnerapi.ErrMultipartUnsupported
}

func (d *DomainOutput) logicalPath(relPath string) string {
	if d.OutputsPrefix == "" {
		return relPath
	}
	return path.Join(d.OutputsPrefix, relPath)
}

func (d *DomainOutput) upload(ctx context.Context, relPath string, body io.Reader) error {
	logicalPath := d.logicalPath(relPath)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", path.Base(relPath))
	_ = mw.WriteField("data_type", "artifact")
	_ = mw.WriteField("logical_path", logicalPath)

	part, err := mw.CreateFormFile("data", path.Base(relPath))
	if err != nil {
		return err
	}
	n, err := io.Copy(part, body)
	if err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Client.dataURL().String(), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	d.Client.authorize(req)

	resp, err := d.Client.HTTPClient.Do(req)
	if err != nil {
		return nodeNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapResponseError(resp, respBody)
	}

	var decoded struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nodeerrors.NewStorageNetworkError(fmt.Sprintf("decode upload response: %s", err))
	}
	var id string
	if len(decoded.Data) > 0 {
		id = decoded.Data[0].ID
	}

	d.mu.Lock()
	d.uploads[relPath] = runnerapi.UploadedArtifact{ID: id, LogicalPath: logicalPath}
	d.mu.Unlock()

	if d.Metrics != nil {
		d.Metrics.AddBytesUploaded(n)
	}
	return nil
}

// UploadedArtifacts returns a snapshot of the rel_path -> artifact table,
// read once during Session finalise.
func (d *DomainOutput) UploadedArtifacts() map[string]runnerapi.UploadedArtifact {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]runnerapi.UploadedArtifact, len(d.uploads))
	for k, v := range d.uploads {
		out[k] = v
	}
	return out
}
