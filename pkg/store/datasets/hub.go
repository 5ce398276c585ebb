package datasets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/cfahlgren1/observers/pkg/restclient"
)

// DefaultEndpoint is the public dataset hub.
const DefaultEndpoint = "https://huggingface.co"

// Operation is one file change in a hub commit.
type Operation struct {
	PathInRepo string
	Content    []byte
	Delete     bool
}

// hub is a minimal client for the dataset hub HTTP API.
type hub struct {
	client *restclient.Client
}

func newHub(endpoint, token string, httpClient *http.Client) *hub {
	c := restclient.New(endpoint)
	if httpClient != nil {
		c.HTTP = httpClient
	}
	if token != "" {
		c.Header.Set("Authorization", "Bearer "+token)
	}
	return &hub{client: c}
}

type whoAmIResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// whoAmI validates the token and returns the account name.
func (h *hub) whoAmI(ctx context.Context) (string, error) {
	var resp whoAmIResponse
	if err := h.client.Do(ctx, restclient.Request{Method: http.MethodGet, Path: "/api/whoami-v2"}, &resp); err != nil {
		return "", fmt.Errorf("whoami: %w", err)
	}
	if resp.Name == "" {
		return "", fmt.Errorf("whoami: empty account name")
	}
	return resp.Name, nil
}

// createRepo creates a dataset repository. An existing repository is not an error.
func (h *hub) createRepo(ctx context.Context, repoID string, private bool) error {
	org, name, ok := strings.Cut(repoID, "/")
	if !ok {
		return fmt.Errorf("repo id %q must be <namespace>/<name>", repoID)
	}

	err := h.client.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   "/api/repos/create",
		JSON: map[string]any{
			"type":         "dataset",
			"name":         name,
			"organization": org,
			"private":      private,
		},
	}, nil)
	if restclient.IsStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

type preuploadFile struct {
	Path   string `json:"path"`
	Size   int    `json:"size"`
	Sample string `json:"sample"`
}

type preuploadResponse struct {
	Files []struct {
		Path       string `json:"path"`
		UploadMode string `json:"uploadMode"`
	} `json:"files"`
}

type lfsObject struct {
	OID  string `json:"oid"`
	Size int    `json:"size"`
}

type lfsBatchResponse struct {
	Objects []struct {
		OID     string `json:"oid"`
		Actions map[string]struct {
			Href   string            `json:"href"`
			Header map[string]string `json:"header"`
		} `json:"actions"`
	} `json:"objects"`
}

// commit applies ops on revision as one commit. Files the hub routes to LFS
// are uploaded through the LFS batch API first.
func (h *hub) commit(ctx context.Context, repoID, revision, summary string, ops []Operation) error {
	uploads := lo.Filter(ops, func(op Operation, _ int) bool { return !op.Delete })
	lfsPaths, err := h.preupload(ctx, repoID, revision, uploads)
	if err != nil {
		return err
	}

	var lines bytes.Buffer
	enc := json.NewEncoder(&lines)
	if err := enc.Encode(map[string]any{
		"key":   "header",
		"value": map[string]string{"summary": summary, "description": ""},
	}); err != nil {
		return err
	}

	for _, op := range ops {
		var line map[string]any
		switch {
		case op.Delete:
			line = map[string]any{"key": "deletedFile", "value": map[string]string{"path": op.PathInRepo}}
		case lfsPaths[op.PathInRepo]:
			obj, err := h.uploadLFS(ctx, repoID, op.Content)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", op.PathInRepo, err)
			}
			line = map[string]any{"key": "lfsFile", "value": map[string]any{
				"path": op.PathInRepo, "algo": "sha256", "oid": obj.OID, "size": obj.Size,
			}}
		default:
			line = map[string]any{"key": "file", "value": map[string]string{
				"path":     op.PathInRepo,
				"content":  base64.StdEncoding.EncodeToString(op.Content),
				"encoding": "base64",
			}}
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}

	err = h.client.Do(ctx, restclient.Request{
		Method:      http.MethodPost,
		Path:        fmt.Sprintf("/api/datasets/%s/commit/%s", repoID, url.PathEscape(revision)),
		Body:        lines.Bytes(),
		ContentType: "application/x-ndjson",
	}, nil)
	if err != nil {
		return fmt.Errorf("commit to %s: %w", repoID, err)
	}
	return nil
}

func (h *hub) preupload(ctx context.Context, repoID, revision string, ops []Operation) (map[string]bool, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	files := lo.Map(ops, func(op Operation, _ int) preuploadFile {
		sample := op.Content
		if len(sample) > 512 {
			sample = sample[:512]
		}
		return preuploadFile{Path: op.PathInRepo, Size: len(op.Content), Sample: base64.StdEncoding.EncodeToString(sample)}
	})

	var resp preuploadResponse
	err := h.client.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/datasets/%s/preupload/%s", repoID, url.PathEscape(revision)),
		JSON:   map[string]any{"files": files},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("preupload to %s: %w", repoID, err)
	}

	lfs := make(map[string]bool, len(resp.Files))
	for _, f := range resp.Files {
		lfs[f.Path] = f.UploadMode == "lfs"
	}
	return lfs, nil
}

func (h *hub) uploadLFS(ctx context.Context, repoID string, content []byte) (lfsObject, error) {
	sum := sha256.Sum256(content)
	obj := lfsObject{OID: hex.EncodeToString(sum[:]), Size: len(content)}

	var batch lfsBatchResponse
	err := h.client.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/datasets/%s.git/info/lfs/objects/batch", repoID),
		JSON: map[string]any{
			"operation": "upload",
			"transfers": []string{"basic"},
			"objects":   []lfsObject{obj},
			"hash_algo": "sha256",
		},
		Header: http.Header{"Accept": {"application/vnd.git-lfs+json"}},
	}, &batch)
	if err != nil {
		return obj, err
	}

	for _, o := range batch.Objects {
		upload, ok := o.Actions["upload"]
		if !ok {
			// Already stored.
			continue
		}
		header := http.Header{}
		for k, v := range upload.Header {
			header.Set(k, v)
		}
		if err := h.client.Do(ctx, restclient.Request{
			Method:      http.MethodPut,
			Path:        upload.Href,
			Body:        content,
			ContentType: "application/octet-stream",
			Header:      header,
		}, nil); err != nil {
			return obj, err
		}
		if verify, ok := o.Actions["verify"]; ok {
			if err := h.client.Do(ctx, restclient.Request{
				Method: http.MethodPost,
				Path:   verify.Href,
				JSON:   obj,
			}, nil); err != nil {
				return obj, err
			}
		}
	}
	return obj, nil
}

// superSquash collapses the history of revision into a single commit.
func (h *hub) superSquash(ctx context.Context, repoID, revision, message string) error {
	return h.client.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/datasets/%s/super-squash/%s", repoID, url.PathEscape(revision)),
		JSON:   map[string]string{"message": message},
	}, nil)
}
