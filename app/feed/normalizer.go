package feed

import "errors"

var errNoDocument = errors.New("document not started")

// Normalizer accumulates parser events into a Document. It is not safe for
// concurrent use; a single consumer drives it.
type Normalizer struct {
	doc    *Document
	done   bool
	failed bool
}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Apply folds ev into the document. It reports done once End has been
// applied, and returns the stream error for Error events. Events after a
// terminal one are ignored.
func (n *Normalizer) Apply(ev Event) (bool, error) {
	if n.done || n.failed {
		return n.done, nil
	}

	switch ev.Kind {
	case EventMeta:
		n.applyMeta(ev.Meta)
	case EventEntry:
		n.applyEntry(ev.Entry)
	case EventError:
		n.failed = true
		n.doc = nil
		if ev.Err == nil {
			return false, &ParseError{Reason: "unknown parse error"}
		}
		return false, ev.Err
	case EventEnd:
		if n.doc == nil {
			n.start()
		}
		n.done = true
	}

	return n.done, nil
}

// Document returns the finished document, or nil before End and after an
// error.
func (n *Normalizer) Document() *Document {
	if !n.done {
		return nil
	}
	return n.doc
}

func (n *Normalizer) start() {
	n.doc = &Document{
		Version: Version,
		Items:   []Item{},
	}
}

func (n *Normalizer) applyMeta(meta *Meta) {
	if n.doc == nil {
		n.start()
	}
	if meta == nil {
		return
	}

	if meta.Title != "" {
		n.doc.Title = meta.Title
	}
	if meta.Link != "" {
		n.doc.HomePageURL = meta.Link
	}
	if meta.Description != "" {
		n.doc.Description = meta.Description
	}
	if meta.Favicon != "" {
		n.doc.Favicon = meta.Favicon
	}
	if meta.AuthorName != "" {
		n.doc.Author = &Author{Name: meta.AuthorName}
	}
}

// applyEntry never drops an entry, even one without guid or url.
func (n *Normalizer) applyEntry(entry *Entry) {
	if n.doc == nil {
		n.start()
	}
	if entry == nil {
		return
	}

	item := Item{
		GUID:          entry.GUID,
		URL:           entry.Link,
		Title:         entry.Title,
		ContentHTML:   entry.Description,
		Summary:       entry.Summary,
		DatePublished: entry.PubDate,
	}

	// structured images have no JSON Feed counterpart
	if entry.Image != nil && !entry.Image.Structured {
		item.Image = entry.Image.URL
	}

	if entry.AuthorName != "" {
		item.Author = &Author{Name: entry.AuthorName}
	}

	n.doc.Items = append(n.doc.Items, item)
}
