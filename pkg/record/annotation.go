package record

// Annotation field types.
const (
	FieldChat   = "chat"
	FieldText   = "text"
	FieldImage  = "image"
	FieldCustom = "custom"
)

// Annotation question types.
const (
	QuestionRating = "rating"
	QuestionText   = "text"
)

// Metadata property types.
const (
	MetadataInteger = "integer"
	MetadataTerms   = "terms"
)

// Annotation is the dataset layout a record type requests from an
// annotation platform.
type Annotation struct {
	Fields    []AnnotationField
	Questions []Question
	Metadata  []MetadataProperty
}

// AnnotationField is a record column shown to annotators.
type AnnotationField struct {
	Name        string
	Title       string
	Type        string
	Description string
	Required    bool

	// Template renders custom fields.
	Template string
}

// Question is asked of annotators for every record.
type Question struct {
	Name        string
	Title       string
	Type        string
	Description string
	Required    bool

	// Values are the allowed rating values.
	Values []int
}

// MetadataProperty is a filterable record column.
type MetadataProperty struct {
	Name  string
	Title string
	Type  string
}
