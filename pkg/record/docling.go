package record

// DoclingTable is the table all document-conversion records share.
const DoclingTable = "docling_records"

// Docling records one item (text, picture or table) of a converted document.
type Docling struct {
	Base

	Version    string `json:"version"`
	MimeType   string `json:"mime_type"`
	Label      string `json:"label"`
	Filename   string `json:"filename"`
	PageNo     int    `json:"page_no"`
	Image      []byte `json:"-"`
	Mimetype   string `json:"mimetype,omitempty"`
	DPI        int    `json:"dpi,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	URI        string `json:"uri,omitempty"`
	Text       string `json:"text,omitempty"`
	TextLength int    `json:"text_length"`
}

var doclingColumns = []Column{
	{Name: "id", Kind: KindString},
	{Name: "version", Kind: KindString},
	{Name: "mime_type", Kind: KindString},
	{Name: "page_no", Kind: KindInt},
	{Name: "image", Kind: KindBlob},
	{Name: "filename", Kind: KindString},
	{Name: "label", Kind: KindString},
	{Name: "mimetype", Kind: KindString},
	{Name: "dpi", Kind: KindInt},
	{Name: "width", Kind: KindInt},
	{Name: "height", Kind: KindInt},
	{Name: "uri", Kind: KindText},
	{Name: "text", Kind: KindText},
	{Name: "text_length", Kind: KindInt},
	{Name: "tags", Kind: KindStringList},
	{Name: "properties", Kind: KindJSON},
	{Name: "error", Kind: KindString},
	{Name: "raw_response", Kind: KindJSON},
	{Name: "synced_at", Kind: KindTimestamp},
}

var doclingAnnotation = Annotation{
	Fields: []AnnotationField{
		{Name: "uri", Type: FieldImage, Description: "The image."},
		{Name: "text", Type: FieldText, Description: "The caption text."},
	},
	Questions: []Question{
		{Name: "question_or_query", Title: "Question or Query", Type: QuestionText, Required: true,
			Description: "The question or query associated with the picture."},
		{Name: "answer", Title: "Answer", Type: QuestionText,
			Description: "The answer to the question or query associated with the picture."},
		{Name: "rating_image", Title: "Rating image", Type: QuestionRating, Values: []int{1, 2, 3, 4, 5},
			Description: "How would you rate the picture? 1 being the least relevant and 5 being the most relevant."},
		{Name: "rating_text", Title: "Rating text", Type: QuestionRating, Values: []int{1, 2, 3, 4, 5},
			Description: "How would you rate the text? 1 being the worst and 5 being the best."},
		{Name: "text_improve", Title: "Improve text", Type: QuestionText,
			Description: "If you would like to improve the text, please provide a better text here."},
	},
	Metadata: []MetadataProperty{
		{Name: "version", Type: MetadataTerms},
		{Name: "mime_type", Type: MetadataTerms},
		{Name: "page_no", Type: MetadataTerms},
		{Name: "filename", Type: MetadataTerms},
		{Name: "label", Type: MetadataTerms},
		{Name: "mimetype", Type: MetadataTerms},
		{Name: "dpi", Type: MetadataInteger},
		{Name: "width", Type: MetadataInteger},
		{Name: "height", Type: MetadataInteger},
		{Name: "text_length", Type: MetadataTerms},
	},
}

func (d *Docling) TableName() string { return DoclingTable }

func (d *Docling) Columns() []Column { return doclingColumns }

func (d *Docling) JSONFields() []string { return []string{"raw_response", "properties"} }

func (d *Docling) ImageFields() []string { return []string{"image"} }

func (d *Docling) Annotation() Annotation { return doclingAnnotation }

func (d *Docling) EventFields() []string {
	return []string{
		"version", "mime_type", "label", "filename", "page_no", "mimetype",
		"dpi", "width", "height", "text", "text_length", "tags", "properties",
		"error", "id",
	}
}

func (d *Docling) Values() map[string]any {
	values := map[string]any{
		"version":     d.Version,
		"mime_type":   d.MimeType,
		"page_no":     d.PageNo,
		"image":       d.Image,
		"filename":    d.Filename,
		"label":       d.Label,
		"mimetype":    d.Mimetype,
		"dpi":         d.DPI,
		"width":       d.Width,
		"height":      d.Height,
		"uri":         d.URI,
		"text":        d.Text,
		"text_length": d.TextLength,
	}
	return d.baseValues(values)
}
