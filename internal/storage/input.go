package storage

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	nodeerrors "github.com/aukilabs/compute-node/internal/errors"
	"github.com/aukilabs/compute-node/internal/objects"
	"github.com/aukilabs/compute-node/internal/runnerapi"
	"github.com/aukilabs/compute-node/internal/telemetry"
)

// DomainInput implements runnerapi.InputSource over a DomainClient. Parts
// downloaded from domain storage are persisted through an
// internal/objects.LocalStore rather than hand-rolled os.Create/io.Copy,
// keyed by the same sanitized part name used for the returned path.
type DomainInput struct {
	Client  *DomainClient
	TempDir string
	Metrics *telemetry.Metrics
	store   *objects.LocalStore
}

func NewDomainInput(client *DomainClient, tempDir string, metrics *telemetry.Metrics) *DomainInput {
	store, _ := objects.NewLocalStore(tempDir)
	return &DomainInput{Client: client, TempDir: tempDir, Metrics: metrics, store: store}
}

func (d *DomainInput) GetBytesByCID(ctx context.Context, cid string) ([]byte, error) {
	mat, err := d.MaterializeCIDWithMeta(ctx, cid)
	if err != nil {
		return nil, err
	}
	path := mat.Path
	if len(mat.ExtractedPaths) > 0 {
		path = mat.ExtractedPaths[0]
	}
	return os.ReadFile(path)
}

func (d *DomainInput) MaterializeCIDToTemp(ctx context.Context, cid string) (string, error) {
	mat, err := d.MaterializeCIDWithMeta(ctx, cid)
	if err != nil {
		return "", err
	}
	return mat.Path, nil
}

// MaterializeCIDWithMeta performs GET {base}/api/v1/domains/{id}/data?ids={cid}
// with Accept: multipart/form-data, selects the primary part per the
// "refined_scan_zip" rule, and writes every part to TempDir.
func (d *DomainInput) MaterializeCIDWithMeta(ctx context.Context, cid string) (runnerapi.MaterializedInput, error) {
	u := d.Client.dataURL()
	q := u.Query()
	q.Set("ids", cid)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return runnerapi.MaterializedInput{}, err
	}
	req.Header.Set("Accept", "multipart/form-data")
	d.Client.authorize(req)

	resp, err := d.Client.HTTPClient.Do(req)
	if err != nil {
		return runnerapi.MaterializedInput{}, nodeNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return runnerapi.MaterializedInput{}, mapResponseError(resp, body)
	}

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return runnerapi.MaterializedInput{}, fmt.Errorf("parse content-type: %w", err)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return runnerapi.MaterializedInput{}, fmt.Errorf("multipart response missing boundary")
	}

	type part struct {
		path     string
		dataType string
		dataID   string
		domainID string
	}
	var parts []part

	mr := multipart.NewReader(resp.Body, boundary)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return runnerapi.MaterializedInput{}, fmt.Errorf("read multipart part: %w", err)
		}

		disp := p.Header.Get("Content-Disposition")
		_, dispParams, _ := mime.ParseMediaType(disp)

		name := dispParams["name"]
		if name == "" {
			name = fmt.Sprintf("part-%d", len(parts))
		}
		key := sanitizeFileName(name)
		localPath := filepath.Join(d.TempDir, key)
		if err := d.writePart(key, p); err != nil {
			return runnerapi.MaterializedInput{}, err
		}

		parts = append(parts, part{
			path:     localPath,
			dataType: dispParams["data-type"],
			dataID:   dispParams["id"],
			domainID: dispParams["domain-id"],
		})
	}

	if len(parts) == 0 {
		return runnerapi.MaterializedInput{}, fmt.Errorf("empty multipart response for cid %s", cid)
	}

	primaryIdx := 0
	for i, p := range parts {
		if p.dataType == "refined_scan_zip" {
			primaryIdx = i
			break
		}
	}
	primary := parts[primaryIdx]

	mat := runnerapi.MaterializedInput{
		CID:      cid,
		Path:     primary.path,
		DataID:   primary.dataID,
		DataType: primary.dataType,
		DomainID: primary.domainID,
		RootDir:  d.TempDir,
	}
	for i, p := range parts {
		if i == primaryIdx {
			continue
		}
		mat.RelatedFiles = append(mat.RelatedFiles, p.path)
	}

	if strings.HasSuffix(strings.ToLower(primary.path), ".zip") {
		extracted, err := extractZip(primary.path, filepath.Join(d.TempDir, "extracted-"+sanitizeFileName(primary.dataID)))
		if err == nil {
			mat.ExtractedPaths = extracted
		}
	}

	return mat, nil
}

// writePart persists a downloaded part under key via the LocalStore, falling
// back to a direct file write if the store failed to open at construction
// time (only possible if TempDir itself could not be created).
func (d *DomainInput) writePart(key string, p *multipart.Part) error {
	counter := &countingReader{r: p}
	if d.store != nil {
		if err := d.store.Store(key, counter); err != nil {
			return err
		}
	} else {
		path := filepath.Join(d.TempDir, key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, counter)
		f.Close()
		if err != nil {
			return err
		}
	}
	if d.Metrics != nil {
		d.Metrics.AddBytesDownloaded(counter.n)
	}
	return nil
}

// countingReader tallies bytes read so the caller can report transfer
// volume without the underlying store reporting it itself.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func extractZip(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	var extracted []string
	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			continue // guard against zip-slip
		}
		if f.FileInfo().IsDir() {
			_ = os.MkdirAll(target, 0o755)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return extracted, err
		}
		src, err := f.Open()
		if err != nil {
			return extracted, err
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return extracted, err
		}
		_, copyErr := io.Copy(dst, src)
		src.Close()
		dst.Close()
		if copyErr != nil {
			return extracted, copyErr
		}
		extracted = append(extracted, target)
	}
	return extracted, nil
}

func sanitizeFileName(name string) string {
	if name == "" {
		return "part"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(name)
}

func nodeNetworkError(err error) error {
	return nodeerrors.NewStorageNetworkError(err.Error())
}
