// Package docling converts documents through a docling-serve instance and
// records every text, picture and table item of the converted document.
package docling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cfahlgren1/observers/pkg/observer"
	"github.com/cfahlgren1/observers/pkg/record"
)

// ClientName names the records' client in logs.
const ClientName = "docling"

// ErrInvalidMediaType is returned by Wrap for media types other than
// texts, pictures and tables.
var ErrInvalidMediaType = errors.New("invalid media type")

// MediaTypes lists every media type, the default selection.
var MediaTypes = []string{MediaTexts, MediaPictures, MediaTables}

// Observer converts documents and records their items.
type Observer struct {
	client     *Client
	recorder   *observer.Recorder
	mediaTypes []string
}

// Wrap returns an observer around client recording the given media types,
// or all of them when none are given.
func Wrap(client *Client, mediaTypes []string, opts ...observer.Option) (*Observer, error) {
	if len(mediaTypes) == 0 {
		mediaTypes = MediaTypes
	}
	if invalid := lo.Without(mediaTypes, MediaTypes...); len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMediaType, invalid)
	}

	rec, err := observer.NewRecorder(ClientName, opts...)
	if err != nil {
		return nil, err
	}
	return &Observer{client: client, recorder: rec, mediaTypes: lo.Uniq(mediaTypes)}, nil
}

// Client returns the wrapped client.
func (o *Observer) Client() *Client { return o.client }

// Close closes the observer's store.
func (o *Observer) Close() error { return o.recorder.Close() }

// Convert converts sources, records the items of the resulting document and
// returns the document. A failed conversion is recorded as one error record.
func (o *Observer) Convert(ctx context.Context, sources []Source, opts Options) (*Document, error) {
	res, err := o.client.ConvertSource(ctx, sources, withJSONExport(opts))
	return o.observe(ctx, sourceName(sources), res, err)
}

// ConvertFile uploads r as filename, converts it, records its items and
// returns the document.
func (o *Observer) ConvertFile(ctx context.Context, filename string, r io.Reader, opts Options) (*Document, error) {
	res, err := o.client.ConvertFile(ctx, filename, r, withJSONExport(opts))
	return o.observe(ctx, filename, res, err)
}

func (o *Observer) observe(ctx context.Context, name string, res *Result, err error) (*Document, error) {
	if err == nil && (res == nil || res.Document.JSONContent == nil) {
		err = errors.New("conversion returned no json document")
	}
	if err != nil {
		rec := &record.Docling{Base: record.Base{ID: uuid.NewString(), Error: err.Error()}, Filename: name}
		if storeErr := o.recorder.Record(ctx, rec); storeErr != nil && o.recorder.Strict() {
			return nil, errors.Join(err, storeErr)
		}
		return nil, err
	}

	doc := res.Document.JSONContent
	var storeErrs []error
	for _, pageNo := range doc.PageNumbers() {
		for _, entry := range doc.Items(pageNo) {
			if !lo.Contains(o.mediaTypes, entry.Kind) {
				continue
			}
			rec := NewRecord(doc, entry, pageNo)
			if err := o.recorder.Record(ctx, rec); err != nil {
				storeErrs = append(storeErrs, err)
			}
		}
	}

	if o.recorder.Strict() && len(storeErrs) > 0 {
		return doc, errors.Join(storeErrs...)
	}
	return doc, nil
}

// NewRecord builds the record for one document item on page pageNo.
func NewRecord(doc *Document, entry Entry, pageNo int) *record.Docling {
	rec := &record.Docling{
		Base: record.Base{
			ID:          uuid.NewString(),
			RawResponse: entry.Item.Raw,
		},
		Version: doc.Version,
		Label:   entry.Item.Label,
		PageNo:  pageNo,
	}
	if doc.Origin != nil {
		rec.MimeType = doc.Origin.Mimetype
		rec.Filename = doc.Origin.Filename
	}

	pic, err := doc.ItemPicture(entry.Item, pageNo)
	switch {
	case err != nil:
		rec.Error = err.Error()
	case pic != nil:
		rec.Image = pic.PNG
		rec.Mimetype = "image/png"
		rec.DPI = pic.DPI
		rec.Width = pic.Width
		rec.Height = pic.Height
		rec.URI = pic.DataURI()
	}

	rec.Text = doc.ItemText(entry.Kind, entry.Item)
	rec.TextLength = utf8.RuneCountInString(rec.Text)
	return rec
}

// withJSONExport makes sure the json export (and embedded images, unless
// the caller chose otherwise) is requested, since records are built from it.
func withJSONExport(opts Options) Options {
	if !lo.Contains(opts.ToFormats, "json") {
		opts.ToFormats = append(append([]string{}, opts.ToFormats...), "json")
	}
	if opts.ImageExportMode == "" {
		opts.ImageExportMode = "embedded"
	}
	if opts.IncludeImages == nil {
		opts.IncludeImages = lo.ToPtr(true)
	}
	return opts
}

func sourceName(sources []Source) string {
	names := lo.FilterMap(sources, func(s Source, _ int) (string, bool) {
		if s.Filename != "" {
			return s.Filename, true
		}
		return s.URL, s.URL != ""
	})
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
