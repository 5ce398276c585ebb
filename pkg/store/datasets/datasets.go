// Package datasets stores observation records in dataset hub repositories.
// Records are appended to local JSON Lines files and committed to the hub on a
// schedule, one repository per record table.
package datasets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
)

const (
	// DefaultEvery is the commit interval in minutes.
	DefaultEvery = 5

	defaultPathInRepo = "data"
	defaultRevision   = "main"
)

// Config configures the dataset hub store.
type Config struct {
	// Org is the namespace for generated repository ids. Defaults to the
	// token's account.
	Org string

	// Repo is the repository name or full "<namespace>/<name>" id. When
	// empty every table gets a generated "<table>_<8 hex>" repository.
	Repo string

	// FolderPath holds pending JSON files. A temporary folder is created and
	// removed on Close when empty.
	FolderPath string

	// Every is the commit interval in minutes.
	Every int

	PathInRepo string
	Revision   string
	Private    bool

	// Token falls back to the HF_TOKEN environment variable.
	Token string

	// SquashHistory super-squashes each repository on Close.
	SquashHistory bool

	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type table struct {
	repoID string

	// file is the JSON Lines file currently receiving rows.
	file   string
	images []string
}

type batch struct {
	table  string
	repoID string
	file   string
	images []string
}

// Store implements store.Store on the dataset hub.
type Store struct {
	config  Config
	hub     *hub
	account string
	logger  *slog.Logger

	cron    *cron.Cron
	tempDir bool

	// mu guards tables, repos, pending and closed
	mu      sync.Mutex
	tables  map[string]*table
	pending []batch
	closed  bool

	// repos lists the tables written to each repository so far.
	repos map[string][]string

	// pushMu serializes pushes from the schedule and Close
	pushMu sync.Mutex
}

// Connect validates the token, prepares the local folder and starts the
// commit schedule.
func Connect(ctx context.Context, c Config) (*Store, error) {
	if c.Token == "" {
		c.Token = os.Getenv("HF_TOKEN")
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Every <= 0 {
		c.Every = DefaultEvery
	}
	if c.PathInRepo == "" {
		c.PathInRepo = defaultPathInRepo
	}
	if c.Revision == "" {
		c.Revision = defaultRevision
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	h := newHub(c.Endpoint, c.Token, c.HTTPClient)
	account, err := h.whoAmI(ctx)
	if err != nil {
		return nil, fmt.Errorf("validating hub token: %w", err)
	}

	s := &Store{
		config:  c,
		hub:     h,
		account: account,
		logger:  c.Logger.With("store", "datasets"),
		tables:  make(map[string]*table),
		repos:   make(map[string][]string),
	}

	if c.FolderPath == "" {
		dir, err := os.MkdirTemp("", "observers-datasets-")
		if err != nil {
			return nil, fmt.Errorf("creating temp folder: %w", err)
		}
		s.config.FolderPath = dir
		s.tempDir = true
	} else if err := os.MkdirAll(c.FolderPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating folder %s: %w", c.FolderPath, err)
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", c.Every), func() {
		if err := s.Push(context.Background()); err != nil {
			s.logger.Warn("scheduled push failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduling pushes: %w", err)
	}
	s.cron.Start()

	s.logger.Debug("connected to dataset hub",
		"account", account,
		"folder", s.config.FolderPath,
		"every_minutes", c.Every,
	)
	return s, nil
}

// Folder returns the local folder holding pending rows.
func (s *Store) Folder() string { return s.config.FolderPath }

// Add appends rec to its table's pending JSON Lines file, creating the
// repository on the first record of a table.
func (s *Store) Add(ctx context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	t, err := s.initTable(ctx, rec)
	if err != nil {
		return err
	}

	line, images, err := encodeRow(rec, s.config.FolderPath)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.RecordID(), err)
	}

	f, err := os.OpenFile(t.file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", t.file, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing %s: %w", t.file, err)
	}
	t.images = append(t.images, images...)
	return nil
}

func (s *Store) initTable(ctx context.Context, rec record.Record) (*table, error) {
	name := rec.TableName()
	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	repoID := s.repoID(name)
	shared, created := s.repos[repoID]
	if !created {
		if err := s.hub.createRepo(ctx, repoID, s.config.Private); err != nil {
			return nil, fmt.Errorf("creating dataset %s: %w", repoID, err)
		}
	}

	// Tables sharing a repository get one card tagged with all of them.
	tables := append(slices.Clone(shared), name)
	card := DatasetCard(tables...)
	if err := s.hub.commit(ctx, repoID, s.config.Revision, "Add dataset card", []Operation{
		{PathInRepo: "README.md", Content: []byte(card)},
	}); err != nil {
		return nil, fmt.Errorf("writing dataset card: %w", err)
	}

	t := &table{repoID: repoID, file: s.newFile(name)}
	s.tables[name] = t
	s.repos[repoID] = tables
	s.logger.Info("dataset ready", "table", name, "repo", repoID)
	return t, nil
}

func (s *Store) repoID(tableName string) string {
	namespace := s.config.Org
	if namespace == "" {
		namespace = s.account
	}

	repo := s.config.Repo
	if repo == "" {
		repo = fmt.Sprintf("%s_%s", tableName, uuid.NewString()[:8])
	}
	if strings.Contains(repo, "/") {
		return repo
	}
	return namespace + "/" + repo
}

func (s *Store) newFile(tableName string) string {
	return filepath.Join(s.config.FolderPath, fmt.Sprintf("%s_%s.json", tableName, uuid.NewString()))
}

// DatasetCard renders the README committed to new repositories, tagged with
// the client prefix of every table stored in the repository.
func DatasetCard(tableNames ...string) string {
	prefixes := lo.Uniq(lo.Map(tableNames, func(name string, _ int) string {
		prefix, _, _ := strings.Cut(name, "_")
		return prefix
	}))

	var tags strings.Builder
	for _, prefix := range prefixes {
		tags.WriteString("- " + prefix + "\n")
	}
	return fmt.Sprintf(`---
tags:
- observers
%s---

# %s

Records collected with observers.
`, tags.String(), strings.Join(tableNames, ", "))
}

// Push commits every pending JSON Lines file and its images to the hub. Files
// are deleted locally once committed; failed batches are retried on the next
// push.
func (s *Store) Push(ctx context.Context) error {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	s.mu.Lock()
	for name, t := range s.tables {
		if _, err := os.Stat(t.file); err != nil {
			continue
		}
		s.pending = append(s.pending, batch{table: name, repoID: t.repoID, file: t.file, images: t.images})
		t.file = s.newFile(name)
		t.images = nil
	}
	batches := s.pending
	s.pending = nil
	s.mu.Unlock()

	var errs []error
	var failed []batch
	for _, b := range batches {
		if err := s.pushBatch(ctx, b); err != nil {
			errs = append(errs, err)
			failed = append(failed, b)
			continue
		}
		s.logger.Info("pushed records", "table", b.table, "repo", b.repoID)
	}

	if len(failed) > 0 {
		s.mu.Lock()
		s.pending = append(failed, s.pending...)
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *Store) pushBatch(ctx context.Context, b batch) error {
	data, err := os.ReadFile(b.file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", b.file, err)
	}

	ops := []Operation{{
		PathInRepo: fmt.Sprintf("%s/train-%s.jsonl", s.config.PathInRepo, uuid.NewString()),
		Content:    data,
	}}
	for _, img := range b.images {
		content, err := os.ReadFile(filepath.Join(s.config.FolderPath, img))
		if err != nil {
			return fmt.Errorf("reading image %s: %w", img, err)
		}
		ops = append(ops, Operation{PathInRepo: s.config.PathInRepo + "/" + img, Content: content})
	}

	if err := s.hub.commit(ctx, b.repoID, s.config.Revision, "Upload records", ops); err != nil {
		return err
	}

	if err := os.Remove(b.file); err != nil {
		s.logger.Warn("failed to remove pushed file", "file", b.file, "error", err)
	}
	for _, img := range b.images {
		_ = os.Remove(filepath.Join(s.config.FolderPath, img))
	}
	return nil
}

// Close stops the schedule, pushes pending rows and optionally squashes
// repository history.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var errs []error
	if err := s.Push(ctx); err != nil {
		errs = append(errs, err)
	}

	if s.config.SquashHistory {
		for name, t := range s.tables {
			if err := s.hub.superSquash(ctx, t.repoID, s.config.Revision, "Squash observers history"); err != nil {
				errs = append(errs, fmt.Errorf("squashing %s: %w", name, err))
			}
		}
	}

	if s.tempDir && len(errs) == 0 {
		if err := os.RemoveAll(s.config.FolderPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
