// Package argilla stores observation records in an Argilla annotation
// dataset through the platform's v1 REST API.
package argilla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/samber/lo"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/restclient"
	"github.com/cfahlgren1/observers/pkg/store"
)

// Config configures the annotation platform store.
type Config struct {
	// APIURL falls back to ARGILLA_API_URL.
	APIURL string

	// APIKey falls back to ARGILLA_API_KEY.
	APIKey string

	// DatasetName defaults to the record table name.
	DatasetName string

	// WorkspaceName defaults to the first workspace of the API key's user.
	WorkspaceName string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Store implements store.Store on an Argilla server.
type Store struct {
	config    Config
	client    *restclient.Client
	workspace string
	logger    *slog.Logger

	// mu guards datasets and closed
	mu       sync.Mutex
	datasets map[string]string
	closed   bool
}

type workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type dataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	WorkspaceID string `json:"workspace_id"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

// Connect authenticates against the server and resolves the workspace.
func Connect(ctx context.Context, c Config) (*Store, error) {
	if c.APIURL == "" {
		c.APIURL = os.Getenv("ARGILLA_API_URL")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("ARGILLA_API_KEY")
	}
	if c.APIURL == "" {
		return nil, errors.New("argilla API URL is required (set ARGILLA_API_URL)")
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	client := restclient.New(c.APIURL)
	if c.HTTPClient != nil {
		client.HTTP = c.HTTPClient
	}
	client.Header.Set("X-Argilla-Api-Key", c.APIKey)

	s := &Store{
		config:   c,
		client:   client,
		logger:   c.Logger.With("store", "argilla"),
		datasets: make(map[string]string),
	}

	if err := client.Do(ctx, restclient.Request{Method: http.MethodGet, Path: "/api/v1/me"}, nil); err != nil {
		return nil, fmt.Errorf("authenticating with argilla: %w", err)
	}

	var workspaces itemsResponse[workspace]
	if err := client.Do(ctx, restclient.Request{Method: http.MethodGet, Path: "/api/v1/me/workspaces"}, &workspaces); err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	if len(workspaces.Items) == 0 {
		return nil, errors.New("argilla user has no workspaces")
	}

	ws := workspaces.Items[0]
	if c.WorkspaceName != "" {
		found, ok := lo.Find(workspaces.Items, func(w workspace) bool { return w.Name == c.WorkspaceName })
		if !ok {
			return nil, fmt.Errorf("workspace %q not found", c.WorkspaceName)
		}
		ws = found
	}
	s.workspace = ws.ID

	s.logger.Debug("connected to argilla", "url", c.APIURL, "workspace", ws.Name)
	return s, nil
}

// Add posts rec to its dataset, creating and publishing the dataset on the
// first record of a table.
func (s *Store) Add(ctx context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	datasetID, err := s.initDataset(ctx, rec)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	item, err := RecordItem(rec)
	if err != nil {
		return err
	}

	err = s.client.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/v1/datasets/%s/records/bulk", datasetID),
		JSON:   map[string]any{"items": []map[string]any{item}},
	}, nil)
	if err != nil {
		return fmt.Errorf("adding record %s: %w", rec.RecordID(), err)
	}
	return nil
}

func (s *Store) initDataset(ctx context.Context, rec record.Record) (string, error) {
	name := s.config.DatasetName
	if name == "" {
		name = rec.TableName()
	}
	if id, ok := s.datasets[name]; ok {
		return id, nil
	}

	var existing itemsResponse[dataset]
	if err := s.client.Do(ctx, restclient.Request{Method: http.MethodGet, Path: "/api/v1/me/datasets"}, &existing); err != nil {
		return "", fmt.Errorf("listing datasets: %w", err)
	}
	if ds, ok := lo.Find(existing.Items, func(d dataset) bool {
		return d.Name == name && d.WorkspaceID == s.workspace
	}); ok {
		if ds.Status == "ready" {
			s.datasets[name] = ds.ID
			return ds.ID, nil
		}
		// A draft left by an earlier failed setup blocks the name.
		s.logger.Warn("deleting unpublished dataset", "dataset", name, "id", ds.ID)
		if err := s.deleteDataset(ctx, ds.ID); err != nil {
			return "", fmt.Errorf("deleting draft dataset %s: %w", name, err)
		}
	}

	var created dataset
	if err := s.client.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/datasets",
		JSON: map[string]any{
			"name":                 name,
			"workspace_id":         s.workspace,
			"allow_extra_metadata": true,
		},
	}, &created); err != nil {
		return "", fmt.Errorf("creating dataset %s: %w", name, err)
	}

	if err := s.setup(ctx, created.ID, name, rec.Annotation()); err != nil {
		if delErr := s.deleteDataset(ctx, created.ID); delErr != nil {
			return "", errors.Join(err, fmt.Errorf("deleting draft dataset %s: %w", name, delErr))
		}
		return "", err
	}

	s.datasets[name] = created.ID
	s.logger.Info("dataset created", "dataset", name, "id", created.ID)
	return created.ID, nil
}

// setup configures and publishes a freshly created draft dataset.
func (s *Store) setup(ctx context.Context, datasetID, name string, ann record.Annotation) error {
	if err := s.configure(ctx, datasetID, ann); err != nil {
		return err
	}
	if err := s.client.Do(ctx, restclient.Request{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/api/v1/datasets/%s/publish", url.PathEscape(datasetID)),
	}, nil); err != nil {
		return fmt.Errorf("publishing dataset %s: %w", name, err)
	}
	return nil
}

func (s *Store) deleteDataset(ctx context.Context, datasetID string) error {
	return s.client.Do(ctx, restclient.Request{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/api/v1/datasets/%s", url.PathEscape(datasetID)),
	}, nil)
}

func (s *Store) configure(ctx context.Context, datasetID string, ann record.Annotation) error {
	base := fmt.Sprintf("/api/v1/datasets/%s", url.PathEscape(datasetID))

	for _, f := range ann.Fields {
		if err := s.client.Do(ctx, restclient.Request{Method: http.MethodPost, Path: base + "/fields", JSON: fieldPayload(f)}, nil); err != nil {
			return fmt.Errorf("creating field %s: %w", f.Name, err)
		}
	}
	for _, q := range ann.Questions {
		if err := s.client.Do(ctx, restclient.Request{Method: http.MethodPost, Path: base + "/questions", JSON: questionPayload(q)}, nil); err != nil {
			return fmt.Errorf("creating question %s: %w", q.Name, err)
		}
	}
	for _, m := range ann.Metadata {
		if err := s.client.Do(ctx, restclient.Request{Method: http.MethodPost, Path: base + "/metadata-properties", JSON: map[string]any{
			"name":     m.Name,
			"title":    titleOr(m.Title, m.Name),
			"settings": map[string]any{"type": m.Type},
		}}, nil); err != nil {
			return fmt.Errorf("creating metadata property %s: %w", m.Name, err)
		}
	}
	return nil
}

func fieldPayload(f record.AnnotationField) map[string]any {
	settings := map[string]any{"type": f.Type}
	switch f.Type {
	case record.FieldText:
		settings["use_markdown"] = false
	case record.FieldChat:
		settings["use_markdown"] = true
	case record.FieldCustom:
		settings["template"] = f.Template
		settings["advanced_mode"] = false
	}
	return map[string]any{
		"name":        f.Name,
		"title":       titleOr(f.Title, f.Name),
		"description": f.Description,
		"required":    f.Required,
		"settings":    settings,
	}
}

func questionPayload(q record.Question) map[string]any {
	settings := map[string]any{"type": q.Type}
	switch q.Type {
	case record.QuestionRating:
		settings["options"] = lo.Map(q.Values, func(v int, _ int) map[string]int { return map[string]int{"value": v} })
	case record.QuestionText:
		settings["use_markdown"] = false
	}
	return map[string]any{
		"name":        q.Name,
		"title":       titleOr(q.Title, q.Name),
		"description": q.Description,
		"required":    q.Required,
		"settings":    settings,
	}
}

func titleOr(title, name string) string {
	if title != "" {
		return title
	}
	return name
}

// RecordItem renders rec in the bulk records format: annotation fields go
// to "fields", metadata properties to "metadata" and the record id becomes
// the external id. Empty values are omitted.
func RecordItem(rec record.Record) (map[string]any, error) {
	values := rec.Values()
	ann := rec.Annotation()

	fields := map[string]any{}
	for _, f := range ann.Fields {
		v := values[f.Name]
		if record.IsEmpty(v) {
			continue
		}
		if f.Type == record.FieldCustom {
			// Custom fields take JSON objects; lists and scalars are wrapped.
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding field %s: %w", f.Name, err)
			}
			var obj map[string]any
			if err := json.Unmarshal(b, &obj); err != nil {
				obj = map[string]any{f.Name: json.RawMessage(b)}
			}
			fields[f.Name] = obj
			continue
		}
		fields[f.Name] = v
	}

	metadata := map[string]any{}
	for _, m := range ann.Metadata {
		v := values[m.Name]
		if record.IsEmpty(v) {
			continue
		}
		if m.Type == record.MetadataTerms {
			switch val := v.(type) {
			case string, []string:
				metadata[m.Name] = val
			default:
				metadata[m.Name] = fmt.Sprint(val)
			}
			continue
		}
		metadata[m.Name] = v
	}

	return map[string]any{
		"external_id": rec.RecordID(),
		"fields":      fields,
		"metadata":    metadata,
	}, nil
}

// Close marks the store closed; records are sent synchronously so nothing
// is pending.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
