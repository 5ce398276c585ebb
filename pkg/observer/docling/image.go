package docling

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"
)

// DefaultDPI is assumed for images that do not carry a resolution.
const DefaultDPI = 72

// Picture is a PNG-encoded image with its resolution.
type Picture struct {
	PNG    []byte
	DPI    int
	Width  int
	Height int
}

// DataURI returns the picture as a PNG data URI.
func (p *Picture) DataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(p.PNG)
}

var errNoImage = errors.New("no image")

// decodeDataURI decodes a base64 data URI into an image.
func decodeDataURI(uri string) (image.Image, error) {
	if uri == "" {
		return nil, errNoImage
	}
	header, data, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unsupported image uri %.32q", uri)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image data: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func encodePicture(img image.Image, dpi int) (*Picture, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	b := img.Bounds()
	return &Picture{PNG: buf.Bytes(), DPI: dpi, Width: b.Dx(), Height: b.Dy()}, nil
}

// ItemPicture returns the image for an item: its own embedded image when it
// has one, otherwise the crop of the page image under the item's bounding
// box. It returns nil when neither is available.
func (d *Document) ItemPicture(item *Item, pageNo int) (*Picture, error) {
	if item.Image != nil && item.Image.URI != "" {
		img, err := decodeDataURI(item.Image.URI)
		if err != nil {
			return nil, err
		}
		return encodePicture(img, item.Image.DPI)
	}

	page, ok := d.Page(pageNo)
	if !ok || page.Image == nil || page.Image.URI == "" {
		return nil, nil
	}
	var prov *Prov
	for i := range item.Prov {
		if item.Prov[i].PageNo == pageNo {
			prov = &item.Prov[i]
			break
		}
	}
	if prov == nil {
		return nil, nil
	}

	pageImg, err := decodeDataURI(page.Image.URI)
	if err != nil {
		return nil, err
	}
	crop := cropRect(prov.BBox, page.Size, pageImg.Bounds())
	if crop.Empty() {
		return nil, nil
	}

	sub, ok := pageImg.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("page image of type %T cannot be cropped", pageImg)
	}
	return encodePicture(sub.SubImage(crop), page.Image.DPI)
}

// cropRect maps a bounding box in page points onto the page image's pixel
// grid. Boxes with a bottom-left origin are flipped to top-left.
func cropRect(box BBox, pageSize Size, bounds image.Rectangle) image.Rectangle {
	if pageSize.Width <= 0 || pageSize.Height <= 0 {
		return image.Rectangle{}
	}

	top, bottom := box.T, box.B
	if box.CoordOrigin != OriginTopLeft {
		top, bottom = pageSize.Height-box.T, pageSize.Height-box.B
	}
	if top > bottom {
		top, bottom = bottom, top
	}

	sx := float64(bounds.Dx()) / pageSize.Width
	sy := float64(bounds.Dy()) / pageSize.Height
	r := image.Rect(
		bounds.Min.X+int(math.Floor(box.L*sx)),
		bounds.Min.Y+int(math.Floor(top*sy)),
		bounds.Min.X+int(math.Ceil(box.R*sx)),
		bounds.Min.Y+int(math.Ceil(bottom*sy)),
	)
	return r.Intersect(bounds)
}
