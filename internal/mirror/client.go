// Package mirror copies the file store to a GitHub repository through the
// contents API so several stations can share the same data files.
package mirror

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const DefaultAPIBase = "https://api.github.com"

// ErrConflict is returned by Put when the revision token is stale
var ErrConflict = errors.New("remote file changed since it was read")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig locates the repository holding the data files
type ClientConfig struct {
	APIBase string
	Repo    string // owner/name
	Branch  string
	Token   string
	Dir     string // folder inside the repository, empty for the root
}

// File is a remote file with the revision token needed to replace it
type File struct {
	Path    string
	Content []byte
	SHA     string
}

type Client struct {
	http HTTPClient
	cfg  ClientConfig
}

func NewClient(httpClient HTTPClient, cfg ClientConfig) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	cfg.Dir = strings.Trim(cfg.Dir, "/")
	return &Client{http: httpClient, cfg: cfg}
}

// Repo returns the owner/name of the mirrored repository
func (c *Client) Repo() string {
	return c.cfg.Repo
}

type contentResponse struct {
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// Get downloads a file. A file that does not exist yet returns nil and no
// error.
func (c *Client) Get(ctx context.Context, name string) (*File, error) {
	u := c.contentsURL(name)
	if c.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(c.cfg.Branch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Get NewRequest")
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", name)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "fetching "+name)
	}

	var body contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", name)
	}
	if body.Encoding != "" && body.Encoding != "base64" {
		return nil, errors.Errorf("unsupported encoding %q for %s", body.Encoding, name)
	}
	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding content of %s", name)
	}
	return &File{Path: name, Content: content, SHA: body.SHA}, nil
}

// Put creates or replaces a file. sha must be the current revision token of
// an existing file and empty for a new one. It returns the new token.
func (c *Client) Put(ctx context.Context, name string, content []byte, sha, message string) (string, error) {
	payload, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     sha,
		Branch:  c.cfg.Branch,
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(name), bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "Put NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return "", errors.Wrapf(err, "uploading %s", name)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return "", errors.Wrapf(ErrConflict, "uploading %s", name)
	default:
		return "", statusError(resp, "uploading "+name)
	}

	var body putResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrapf(err, "decoding response for %s", name)
	}
	return body.Content.SHA, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if auth := authorization(c.cfg.Token); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return c.http.Do(req)
}

func (c *Client) contentsURL(name string) string {
	p := path.Join(c.cfg.Dir, name)
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.cfg.APIBase, c.cfg.Repo, p)
}

// authorization picks the header scheme for the token kind. Fine-grained
// tokens only work with Bearer.
func authorization(token string) string {
	switch {
	case token == "":
		return ""
	case strings.HasPrefix(token, "github_pat_"):
		return "Bearer " + token
	default:
		return "token " + token
	}
}

func statusError(resp *http.Response, action string) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errors.Errorf("%s failed. status: %s, response: %s", action, resp.Status, bytes.TrimSpace(b))
}

// BlobSHA returns the git blob hash of content, which is the revision token
// the contents API reports for a file with that content
func BlobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
