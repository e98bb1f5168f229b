package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.pinata.cloud"
	pinFilePath    = "/pinning/pinFileToIPFS"

	// MaxBlobSize is the largest cap across all blob categories.
	MaxBlobSize int64 = 100 << 20
)

var (
	ErrNotConfigured   = errors.New("pinning: credentials not configured")
	ErrUnsupportedType = errors.New("pinning: unsupported content type")
	ErrTooLarge        = errors.New("pinning: blob exceeds size limit for its category")
)

// blobCategory groups accepted MIME types under one size cap.
type blobCategory struct {
	name    string
	maxSize int64
	types   []string
}

var blobCategories = []blobCategory{
	{name: "images", maxSize: 10 << 20, types: []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml"}},
	{name: "videos", maxSize: 100 << 20, types: []string{"video/mp4", "video/webm", "video/quicktime", "video/x-msvideo"}},
	{name: "audio", maxSize: 50 << 20, types: []string{"audio/mpeg", "audio/wav", "audio/ogg", "audio/mp4", "audio/webm"}},
	{name: "documents", maxSize: 25 << 20, types: []string{"application/pdf", "application/msword", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "text/plain"}},
	{name: "archives", maxSize: 50 << 20, types: []string{"application/zip", "application/x-rar-compressed", "application/x-7z-compressed"}},
}

// CheckBlob validates a blob's MIME type and size against the category caps.
func CheckBlob(contentType string, size int64) error {
	for _, cat := range blobCategories {
		for _, t := range cat.types {
			if t != contentType {
				continue
			}
			if size > cat.maxSize {
				return fmt.Errorf("%w: %s max %d bytes", ErrTooLarge, cat.name, cat.maxSize)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
}

// Config carries pinning service credentials. A JWT takes precedence over the
// key/secret pair.
type Config struct {
	BaseURL   string
	JWT       string
	APIKey    string
	APISecret string
}

// Metadata describes the blob being stored.
type Metadata struct {
	Name        string
	ContentType string
	Size        int64
	Keyvalues   map[string]string
}

// PinResult is the stored blob's content identifier and public URL.
type PinResult struct {
	CID  string `json:"cid"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Client pins blobs to an IPFS pinning service. The gateway only records the
// returned identifier; blob contents are never inspected.
type Client struct {
	baseURL   string
	jwt       string
	apiKey    string
	apiSecret string
	http      *http.Client
}

// New constructs a pinning client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:   base,
		jwt:       cfg.JWT,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      &http.Client{Timeout: 2 * time.Minute},
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.jwt != "" || (c.apiKey != "" && c.apiSecret != "")
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

type pinErrorResponse struct {
	Error string `json:"error"`
}

// Store uploads the blob and returns its content identifier. The blob is
// validated against the per-category size caps before any bytes travel.
func (c *Client) Store(ctx context.Context, blob io.Reader, meta Metadata) (*PinResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if err := CheckBlob(meta.ContentType, meta.Size); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", meta.Name)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	written, err := io.Copy(part, io.LimitReader(blob, meta.Size+1))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if written > meta.Size {
		return nil, fmt.Errorf("%w: blob larger than declared size", ErrTooLarge)
	}
	pinataMeta := map[string]interface{}{
		"name": meta.Name,
	}
	if len(meta.Keyvalues) > 0 {
		pinataMeta["keyvalues"] = meta.Keyvalues
	}
	metaJSON, err := json.Marshal(pinataMeta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := form.WriteField("pinataMetadata", string(metaJSON)); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := form.WriteField("pinataOptions", `{"cidVersion":1}`); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pinFilePath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	} else {
		req.Header.Set("pinata_api_key", c.apiKey)
		req.Header.Set("pinata_secret_api_key", c.apiSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pin file: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read pin response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errBody pinErrorResponse
		if json.Unmarshal(payload, &errBody) == nil && errBody.Error != "" {
			return nil, fmt.Errorf("pin file: %s", errBody.Error)
		}
		return nil, fmt.Errorf("pin file: status %d", resp.StatusCode)
	}
	var pinned pinResponse
	if err := json.Unmarshal(payload, &pinned); err != nil {
		return nil, fmt.Errorf("decode pin response: %w", err)
	}
	if pinned.IpfsHash == "" {
		return nil, errors.New("pin response missing content identifier")
	}
	return &PinResult{
		CID:  pinned.IpfsHash,
		URL:  GatewayURL(pinned.IpfsHash),
		Size: written,
	}, nil
}
