package docling

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Document is the subset of a docling document (the "json" export format)
// needed to turn its items into records.
type Document struct {
	SchemaName string          `json:"schema_name"`
	Version    string          `json:"version"`
	Name       string          `json:"name"`
	Origin     *Origin         `json:"origin,omitempty"`
	Body       Node            `json:"body"`
	Furniture  Node            `json:"furniture"`
	Groups     []Node          `json:"groups"`
	Texts      []Item          `json:"texts"`
	Pictures   []Item          `json:"pictures"`
	Tables     []Item          `json:"tables"`
	Pages      map[string]Page `json:"pages"`
}

// Origin describes the converted source file.
type Origin struct {
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename"`
}

// Ref is a JSON pointer into the document, e.g. "#/texts/3".
type Ref struct {
	Ref string `json:"$ref"`
}

// Node is a tree node: the body, furniture or a group.
type Node struct {
	SelfRef  string `json:"self_ref"`
	Label    string `json:"label"`
	Children []Ref  `json:"children"`
}

// Item is a text, picture or table item. Raw keeps the item's JSON verbatim.
type Item struct {
	SelfRef  string     `json:"self_ref"`
	Label    string     `json:"label"`
	Text     string     `json:"text,omitempty"`
	Children []Ref      `json:"children"`
	Prov     []Prov     `json:"prov"`
	Captions []Ref      `json:"captions,omitempty"`
	Image    *ImageRef  `json:"image,omitempty"`
	Data     *TableData `json:"data,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (i *Item) UnmarshalJSON(b []byte) error {
	type plain Item
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = Item(p)
	i.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Prov locates an item on a page.
type Prov struct {
	PageNo int  `json:"page_no"`
	BBox   BBox `json:"bbox"`
}

// Coordinate origins of a BBox.
const (
	OriginTopLeft    = "TOPLEFT"
	OriginBottomLeft = "BOTTOMLEFT"
)

// BBox is a bounding box in page points.
type BBox struct {
	L           float64 `json:"l"`
	T           float64 `json:"t"`
	R           float64 `json:"r"`
	B           float64 `json:"b"`
	CoordOrigin string  `json:"coord_origin"`
}

// Size is a width and height in points or pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ImageRef is an image attached to a page or item, usually a data URI.
type ImageRef struct {
	Mimetype string `json:"mimetype"`
	DPI      int    `json:"dpi"`
	Size     Size   `json:"size"`
	URI      string `json:"uri"`
}

// Page is one page of the document.
type Page struct {
	PageNo int       `json:"page_no"`
	Size   Size      `json:"size"`
	Image  *ImageRef `json:"image,omitempty"`
}

// TableData is the cell grid of a table.
type TableData struct {
	NumRows int           `json:"num_rows"`
	NumCols int           `json:"num_cols"`
	Grid    [][]TableCell `json:"grid"`
}

// TableCell is one grid cell.
type TableCell struct {
	Text string `json:"text"`
}

// Item kinds, named after the document arrays they live in. They double as
// the media types an observer can be restricted to.
const (
	MediaTexts    = "texts"
	MediaPictures = "pictures"
	MediaTables   = "tables"
)

// Entry is an item reached while walking the document, with its kind.
type Entry struct {
	Kind string
	Item *Item
}

// resolve returns the kind and item a ref points at, or the group node.
func (d *Document) resolve(ref string) (string, *Item, *Node) {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	if len(parts) != 2 {
		return "", nil, nil
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return "", nil, nil
	}

	switch parts[0] {
	case MediaTexts:
		if idx < len(d.Texts) {
			return MediaTexts, &d.Texts[idx], nil
		}
	case MediaPictures:
		if idx < len(d.Pictures) {
			return MediaPictures, &d.Pictures[idx], nil
		}
	case MediaTables:
		if idx < len(d.Tables) {
			return MediaTables, &d.Tables[idx], nil
		}
	case "groups":
		if idx < len(d.Groups) {
			return "", nil, &d.Groups[idx]
		}
	}
	return "", nil, nil
}

// Items walks the body in reading order and returns the items that appear
// on page pageNo, children (such as captions) after their parent.
// Furniture (page headers and footers) is not visited.
func (d *Document) Items(pageNo int) []Entry {
	var out []Entry
	seen := make(map[string]bool)

	var walk func(children []Ref)
	walk = func(children []Ref) {
		for _, child := range children {
			if seen[child.Ref] {
				continue
			}
			seen[child.Ref] = true

			kind, item, group := d.resolve(child.Ref)
			switch {
			case group != nil:
				walk(group.Children)
			case item != nil:
				if item.onPage(pageNo) {
					out = append(out, Entry{Kind: kind, Item: item})
				}
				walk(item.Children)
			}
		}
	}
	walk(d.Body.Children)
	return out
}

func (i *Item) onPage(pageNo int) bool {
	for _, p := range i.Prov {
		if p.PageNo == pageNo {
			return true
		}
	}
	return false
}

// PageNumbers returns the document's page numbers in ascending order.
func (d *Document) PageNumbers() []int {
	nums := make([]int, 0, len(d.Pages))
	for key, p := range d.Pages {
		n := p.PageNo
		if n == 0 {
			n, _ = strconv.Atoi(key)
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Page returns page pageNo.
func (d *Document) Page(pageNo int) (Page, bool) {
	if p, ok := d.Pages[strconv.Itoa(pageNo)]; ok {
		return p, true
	}
	for _, p := range d.Pages {
		if p.PageNo == pageNo {
			return p, true
		}
	}
	return Page{}, false
}

// CaptionText joins the text of the item's captions.
func (d *Document) CaptionText(item *Item) string {
	texts := make([]string, 0, len(item.Captions))
	for _, c := range item.Captions {
		if _, capItem, _ := d.resolve(c.Ref); capItem != nil && capItem.Text != "" {
			texts = append(texts, capItem.Text)
		}
	}
	return strings.Join(texts, " ")
}

// ItemText is the text stored for an item: the text of text items, the
// caption of pictures, and the caption followed by a pipe-delimited grid
// for tables.
func (d *Document) ItemText(kind string, item *Item) string {
	switch kind {
	case MediaPictures:
		return d.CaptionText(item)
	case MediaTables:
		var b strings.Builder
		if caption := d.CaptionText(item); caption != "" {
			b.WriteString(caption)
			b.WriteString("\n")
		}
		if item.Data != nil {
			for _, row := range item.Data.Grid {
				cells := make([]string, len(row))
				for i, c := range row {
					cells[i] = strings.TrimSpace(c.Text)
				}
				b.WriteString("| ")
				b.WriteString(strings.Join(cells, " | "))
				b.WriteString(" |\n")
			}
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return item.Text
	}
}
