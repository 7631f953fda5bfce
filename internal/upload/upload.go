// Package upload sends captured images to the collection server.
//
// The server speaks a tiny protocol: one multipart/form-data POST per image
// with the JPEG in a single part, answered by a JSON object of four strings.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/cjeanneret/KatanaPush/internal/debug"
	"github.com/cjeanneret/KatanaPush/internal/httpc"
)

const (
	// DefaultEndpoint is the upload script path, relative to the base URL.
	DefaultEndpoint = "index.php"
	// DefaultFieldName is the multipart field carrying the image.
	DefaultFieldName = "ruta"
	// ContentType is the content type of the image part.
	ContentType = "image/jpeg"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Response is the server's answer to an upload. The fields are opaque
// application strings and are passed through verbatim.
type Response struct {
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
	Distance string `json:"distance"`
}

// Transport sends one image and returns the server's response.
type Transport interface {
	Upload(ctx context.Context, data []byte, fileName string) (*Response, error)
}

// Config describes the upload endpoint.
type Config struct {
	BaseURL   string        // e.g. "http://10.0.2.2/ups/"
	Endpoint  string        // resolved against BaseURL (default "index.php")
	FieldName string        // multipart field (default "ruta")
	Timeout   time.Duration // whole-request timeout (default httpc.DefaultTimeout)
}

// Client is the multipart HTTP Transport.
type Client struct {
	url       string
	fieldName string
	http      *http.Client
}

// NewClient resolves the endpoint URL and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.FieldName == "" {
		cfg.FieldName = DefaultFieldName
	}
	endpoint, err := ResolveEndpoint(cfg.BaseURL, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{
		url:       endpoint,
		fieldName: cfg.FieldName,
		http:      httpc.NewClient(cfg.Timeout),
	}, nil
}

// ResolveEndpoint joins the endpoint path onto the base URL the way a
// browser resolves a relative link: "http://h/ups/" + "index.php" gives
// "http://h/ups/index.php".
func ResolveEndpoint(baseURL, endpoint string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url must be absolute, got %q", baseURL)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// URL returns the resolved upload URL.
func (c *Client) URL() string {
	return c.url
}

// Upload posts the image as a single multipart part and decodes the JSON answer.
func (c *Client) Upload(ctx context.Context, data []byte, fileName string) (*Response, error) {
	body, contentType, err := encodeMultipart(c.fieldName, fileName, data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	debug.Verbose("Upload: POST %s (%s, %d bytes)", c.url, fileName, len(data))
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, Status: http.StatusText(res.StatusCode)}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	debug.Verbose("Upload: server answered %+v", out)
	return &out, nil
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, e.Status)
}

// encodeMultipart builds the form body with one file part.
func encodeMultipart(field, fileName string, data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(fileName)))
	h.Set("Content-Type", ContentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

func escapeQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
