package feed

type EventKind int

const (
	EventMeta EventKind = iota
	EventEntry
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventMeta:
		return "meta"
	case EventEntry:
		return "entry"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// Event is one structural event of a parsed feed. A stream carries at most one
// Meta, then any number of Entry events, then exactly one End or Error.
type Event struct {
	Kind  EventKind
	Meta  *Meta
	Entry *Entry
	Err   error
}

type Meta struct {
	Title       string
	Link        string
	Description string
	Favicon     string
	AuthorName  string
}

type Entry struct {
	GUID        string
	Link        string
	Title       string
	Description string
	Summary     string
	Image       *Image
	PubDate     string
	AuthorName  string
}

// Image is either a bare URL given as element text, or a structured element
// such as <image><url/><title/></image>, media:thumbnail or an image enclosure.
type Image struct {
	URL        string
	Structured bool
}
