package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/hugo-lorenzo-mato/crashlog/internal/fsutil"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// UploadOptions configures the HTTP transport.
type UploadOptions struct {
	URL          string
	Token        string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Payload is the JSON body posted by Uploader and accepted by the
// collection server.
type Payload struct {
	ID        string            `json:"id"`
	Tag       string            `json:"tag"`
	App       *platform.Context `json:"app,omitempty"`
	Report    string            `json:"report"`
	Log       string            `json:"log,omitempty"`
	LogName   string            `json:"log_name,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// PayloadFor builds the upload body for env, reading its crash log.
func PayloadFor(env Envelope) (Payload, error) {
	p := Payload{
		ID:        env.ID,
		Tag:       env.Tag,
		App:       env.App,
		Report:    env.Report,
		CreatedAt: env.CreatedAt,
	}
	if env.LogPath != "" {
		data, err := fsutil.ReadFileScoped(env.LogPath)
		if err != nil {
			return Payload{}, fmt.Errorf("reading crash log: %w", err)
		}
		p.Log = string(data)
		p.LogName = filepath.Base(env.LogPath)
	}
	return p, nil
}

// Uploader posts the report as JSON with retries.
type Uploader struct {
	url    string
	token  string
	client *retryablehttp.Client
}

var _ Transport = (*Uploader)(nil)

// NewUploader creates the transport.
func NewUploader(opts UploadOptions, logger *slog.Logger) (*Uploader, error) {
	if opts.URL == "" {
		return nil, errors.New("upload: url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: opts.Timeout}
	client.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	client.Logger = nil
	if logger != nil {
		client.Logger = retryablehttp.LeveledLogger(logger)
	}

	return &Uploader{url: opts.URL, token: opts.Token, client: client}, nil
}

// Name implements Transport.
func (u *Uploader) Name() string {
	return "upload"
}

// Send implements Transport.
func (u *Uploader) Send(ctx context.Context, env Envelope) error {
	payload, err := PayloadFor(env)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal json body: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, u.url, body)
	if err != nil {
		return fmt.Errorf("creating request failed: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: code %d", resp.StatusCode)
	}
	return nil
}
