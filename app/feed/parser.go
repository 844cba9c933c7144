package feed

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// prologSize is how much of the body is peeked for the XML declaration and
// for JSON input.
const prologSize = 1024

var encodingDecl = regexp.MustCompile(`^\x{FEFF}?\s*<\?xml[^>]*?\sencoding\s*=\s*["']([A-Za-z0-9._:\-]+)["']`)

var errStopped = errors.New("event consumer stopped")

var namespacePrefixes = map[string]string{
	"http://purl.org/rss/1.0/":                    "",
	"http://purl.org/net/rss1.1#":                 "",
	"http://backend.userland.com/rss2":            "",
	"http://www.w3.org/2005/Atom":                 "atom",
	"http://purl.org/atom/ns#":                    "atom",
	"http://purl.org/rss/1.0/modules/content/":    "content",
	"http://purl.org/dc/elements/1.1/":            "dc",
	"http://www.itunes.com/dtds/podcast-1.0.dtd":  "itunes",
	"http://search.yahoo.com/mrss/":               "media",
	"http://search.yahoo.com/mrss":                "media",
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#": "rdf",
}

type ParseOptions struct {
	// Charset is the charset parameter of the response Content-Type, if any.
	Charset string
	// BaseURL resolves relative links found in the feed.
	BaseURL string
}

type StreamParser struct{}

func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Parse tokenizes an RSS or Atom document from r and returns its events in
// document order. The channel is closed after End or Error, or as soon as ctx
// is done. Consumers that stop reading early must cancel ctx.
func (p *StreamParser) Parse(ctx context.Context, r io.Reader, opts ParseOptions) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		s := &stream{
			ctx:     ctx,
			out:     events,
			charset: opts.Charset,
		}
		if opts.BaseURL != "" {
			if base, err := url.Parse(opts.BaseURL); err == nil {
				s.base = base
			}
		}

		err := s.run(r)
		switch {
		case errors.Is(err, errStopped):
		case err != nil:
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				parseErr = &ParseError{Err: err}
			}
			s.emit(Event{Kind: EventError, Err: parseErr})
		default:
			s.emit(Event{Kind: EventEnd})
		}
	}()

	return events
}

type stream struct {
	ctx     context.Context
	out     chan<- Event
	base    *url.URL
	charset string

	meta         Meta
	fallbackLink string
	metaSent     bool
}

func (s *stream) emit(ev Event) error {
	if s.ctx.Err() != nil {
		return errStopped
	}
	select {
	case s.out <- ev:
		return nil
	case <-s.ctx.Done():
		return errStopped
	}
}

func (s *stream) flushMeta() error {
	if s.metaSent {
		return nil
	}
	s.metaSent = true

	meta := s.meta
	meta.Link = cmp.Or(meta.Link, s.fallbackLink)
	return s.emit(Event{Kind: EventMeta, Meta: &meta})
}

func (s *stream) run(r io.Reader) error {
	br := bufio.NewReaderSize(r, prologSize)
	head, err := br.Peek(prologSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Reason: "failed to read feed", Err: err}
	}

	if gofeed.DetectFeedType(bytes.NewReader(head)) == gofeed.FeedTypeJSON {
		return &ParseError{Reason: "not a feed: JSON documents are not supported"}
	}

	src, transcoded := decodeCharset(br, cmp.Or(s.charset, declaredEncoding(head)))
	x := xpp.NewXMLPullParser(sanitize(src), false, charsetReader(transcoded))

	if err := findRoot(x); err != nil {
		return err
	}

	var child func(*xpp.XMLPullParser) error
	switch strings.ToLower(x.Name) {
	case "feed":
		child = s.atomFeedChild
	case "rss", "rdf":
		child = s.rssRootChild
	default:
		return &ParseError{Reason: "not a feed: unexpected root element <" + x.Name + ">"}
	}

	if err := children(x, func() error { return child(x) }); err != nil {
		return err
	}

	// A mismatched end tag can close the root early. Whatever follows is still
	// part of the feed, so reading continues to the end of the document.
	for {
		ev, err := x.Next()
		if err != nil {
			return err
		}
		switch ev {
		case xpp.StartTag:
			if err := child(x); err != nil {
				return err
			}
		case xpp.EndDocument:
			return s.flushMeta()
		}
	}
}

// RSS 0.9x/2.0 nest items in the channel, RSS 1.0 makes them siblings of it.
func (s *stream) rssRootChild(x *xpp.XMLPullParser) error {
	switch tagName(x, "") {
	case "channel":
		return s.rssChannel(x)
	case "item":
		return s.rssItem(x)
	default:
		return x.Skip()
	}
}

func (s *stream) rssChannel(x *xpp.XMLPullParser) error {
	return children(x, func() error {
		switch tagName(x, "") {
		case "title":
			return readInto(x, &s.meta.Title)
		case "link":
			var link string
			if err := readInto(x, &link); err != nil {
				return err
			}
			if s.meta.Link == "" {
				s.meta.Link = s.resolve(link)
			}
			return nil
		case "atom:link":
			if isAlternate(x.Attribute("rel")) && s.fallbackLink == "" {
				s.fallbackLink = s.resolve(x.Attribute("href"))
			}
			return x.Skip()
		case "description":
			return readInto(x, &s.meta.Description)
		case "managingeditor", "webmaster", "dc:creator", "itunes:author":
			var author string
			if err := readInto(x, &author); err != nil {
				return err
			}
			if s.meta.AuthorName == "" {
				s.meta.AuthorName = personName(author)
			}
			return nil
		case "item":
			return s.rssItem(x)
		default:
			return x.Skip()
		}
	})
}

func (s *stream) rssItem(x *xpp.XMLPullParser) error {
	if err := s.flushMeta(); err != nil {
		return err
	}

	entry := &Entry{}
	about := x.Attribute("about")
	var description, content, pubDate, author, atomLink string

	err := children(x, func() error {
		switch tagName(x, "") {
		case "guid":
			return readInto(x, &entry.GUID)
		case "link":
			return readInto(x, &entry.Link)
		case "atom:link":
			if isAlternate(x.Attribute("rel")) && atomLink == "" {
				atomLink = x.Attribute("href")
			}
			return x.Skip()
		case "title":
			return readInto(x, &entry.Title)
		case "description":
			return readInto(x, &description)
		case "content:encoded":
			return readInto(x, &content)
		case "pubdate", "dc:date":
			return readInto(x, &pubDate)
		case "author", "dc:creator", "itunes:author":
			return readInto(x, &author)
		case "image":
			img, err := s.readImage(x)
			if err != nil {
				return err
			}
			entry.Image = preferImage(entry.Image, img)
			return nil
		case "itunes:image":
			entry.Image = preferImage(entry.Image, s.attributeImage(x, "href"))
			return x.Skip()
		case "media:thumbnail":
			entry.Image = preferImage(entry.Image, s.attributeImage(x, "url"))
			return x.Skip()
		case "media:content", "enclosure":
			if isImage(x.Attribute("medium"), x.Attribute("type")) {
				entry.Image = preferImage(entry.Image, s.attributeImage(x, "url"))
			}
			return x.Skip()
		default:
			return x.Skip()
		}
	})
	if err != nil {
		return err
	}

	entry.GUID = cmp.Or(entry.GUID, about)
	entry.Link = s.resolve(cmp.Or(entry.Link, atomLink))
	entry.Description = cmp.Or(content, description)
	entry.Summary = description
	entry.PubDate = normalizeDate(pubDate)
	entry.AuthorName = personName(author)

	return s.emit(Event{Kind: EventEntry, Entry: entry})
}

func (s *stream) atomFeedChild(x *xpp.XMLPullParser) error {
	switch tagName(x, "atom") {
	case "title":
		return readInto(x, &s.meta.Title)
	case "link":
		href := s.resolve(x.Attribute("href"))
		rel := x.Attribute("rel")
		switch {
		case isAlternate(rel) && s.meta.Link == "":
			s.meta.Link = href
		case rel != "self" && s.fallbackLink == "":
			s.fallbackLink = href
		}
		return x.Skip()
	case "subtitle", "tagline":
		return readInto(x, &s.meta.Description)
	case "icon":
		var icon string
		if err := readInto(x, &icon); err != nil {
			return err
		}
		if s.meta.Favicon == "" {
			s.meta.Favicon = s.resolve(icon)
		}
		return nil
	case "author":
		name, err := readPerson(x)
		if err != nil {
			return err
		}
		if s.meta.AuthorName == "" {
			s.meta.AuthorName = name
		}
		return nil
	case "entry":
		return s.atomEntry(x)
	default:
		return x.Skip()
	}
}

func (s *stream) atomEntry(x *xpp.XMLPullParser) error {
	if err := s.flushMeta(); err != nil {
		return err
	}

	entry := &Entry{}
	var content, summary, published, updated, firstLink string

	err := children(x, func() error {
		switch tagName(x, "atom") {
		case "id":
			return readInto(x, &entry.GUID)
		case "link":
			href := s.resolve(x.Attribute("href"))
			rel := x.Attribute("rel")
			switch {
			case rel == "enclosure" && isImage("", x.Attribute("type")):
				entry.Image = preferImage(entry.Image, &Image{URL: href, Structured: true})
			case isAlternate(rel) && entry.Link == "":
				entry.Link = href
			case firstLink == "":
				firstLink = href
			}
			return x.Skip()
		case "title":
			return readInto(x, &entry.Title)
		case "content":
			return readInto(x, &content)
		case "summary":
			return readInto(x, &summary)
		case "published", "issued":
			return readInto(x, &published)
		case "updated", "modified":
			return readInto(x, &updated)
		case "author":
			name, err := readPerson(x)
			if err != nil {
				return err
			}
			if entry.AuthorName == "" {
				entry.AuthorName = name
			}
			return nil
		case "media:thumbnail":
			entry.Image = preferImage(entry.Image, s.attributeImage(x, "url"))
			return x.Skip()
		case "media:content":
			if isImage(x.Attribute("medium"), x.Attribute("type")) {
				entry.Image = preferImage(entry.Image, s.attributeImage(x, "url"))
			}
			return x.Skip()
		default:
			return x.Skip()
		}
	})
	if err != nil {
		return err
	}

	entry.Link = cmp.Or(entry.Link, firstLink)
	entry.Description = cmp.Or(content, summary)
	entry.Summary = summary
	entry.PubDate = normalizeDate(cmp.Or(published, updated))

	return s.emit(Event{Kind: EventEntry, Entry: entry})
}

type imageElement struct {
	Text string `xml:",chardata"`
	URL  string `xml:"url"`
}

func (s *stream) readImage(x *xpp.XMLPullParser) (*Image, error) {
	var el imageElement
	if err := x.DecodeElement(&el); err != nil {
		return nil, err
	}

	if u := strings.TrimSpace(el.URL); u != "" {
		return &Image{URL: s.resolve(u), Structured: true}, nil
	}
	if u := strings.TrimSpace(el.Text); u != "" {
		return &Image{URL: s.resolve(u)}, nil
	}
	return nil, nil
}

func (s *stream) attributeImage(x *xpp.XMLPullParser, attr string) *Image {
	u := strings.TrimSpace(x.Attribute(attr))
	if u == "" {
		return nil
	}
	return &Image{URL: s.resolve(u), Structured: true}
}

func (s *stream) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || s.base == nil {
		return ref
	}

	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return s.base.ResolveReference(u).String()
}

func findRoot(x *xpp.XMLPullParser) error {
	for {
		ev, err := x.Next()
		if err != nil {
			return &ParseError{Reason: "not a feed", Err: err}
		}
		switch ev {
		case xpp.StartTag:
			return nil
		case xpp.EndDocument:
			return &ParseError{Reason: "not a feed: no root element"}
		}
	}
}

// children calls fn on every child start tag of the current element until the
// element's end tag. fn must consume the whole child element.
func children(x *xpp.XMLPullParser, fn func() error) error {
	for {
		ev, err := x.Next()
		if err != nil {
			return err
		}
		switch ev {
		case xpp.StartTag:
			if err := fn(); err != nil {
				return err
			}
		case xpp.EndTag:
			return nil
		case xpp.EndDocument:
			return &ParseError{Reason: "unexpected end of document"}
		}
	}
}

func tagName(x *xpp.XMLPullParser, home string) string {
	prefix, ok := namespacePrefixes[x.Space]
	if !ok {
		// undeclared prefixes are left untranslated by the decoder
		prefix = strings.ToLower(x.Space)
	}

	name := strings.ToLower(x.Name)
	if prefix == "" || prefix == home {
		return name
	}
	return prefix + ":" + name
}

type textElement struct {
	Type     string       `xml:"type,attr"`
	Text     string       `xml:",chardata"`
	Inner    string       `xml:",innerxml"`
	Children []anyElement `xml:",any"`
}

type anyElement struct {
	XMLName xml.Name
}

// readText returns the trimmed text of the current element. Elements holding
// markup (xhtml content, or unescaped HTML) yield their inner markup.
func readText(x *xpp.XMLPullParser) (string, error) {
	name := x.Name

	var el textElement
	if err := x.DecodeElement(&el); err != nil {
		return "", err
	}

	if el.Type == "xhtml" || len(el.Children) > 0 {
		return strings.TrimSpace(trimClosingTag(el.Inner, name)), nil
	}

	text := el.Text
	if strings.Contains(text, "&") {
		text = decodeEntities(el.Inner, text)
	}
	return strings.TrimSpace(text), nil
}

// trimClosingTag drops the element's own end tag, which ends up in the inner
// markup when an unclosed child forced the element to be closed early.
func trimClosingTag(inner, name string) string {
	trimmed := strings.TrimRightFunc(inner, unicode.IsSpace)
	if !strings.HasSuffix(trimmed, ">") {
		return inner
	}
	open := strings.LastIndex(trimmed, "</")
	if open < 0 {
		return inner
	}

	tag := strings.TrimSpace(trimmed[open+2 : len(trimmed)-1])
	if _, local, ok := strings.Cut(tag, ":"); ok {
		tag = local
	}
	if tag != name {
		return inner
	}
	return trimmed[:open]
}

// decodeEntities decodes raw character data again with the HTML entity set,
// so that entities like &nbsp; the XML decoder leaves alone are resolved.
func decodeEntities(raw, fallback string) string {
	d := xml.NewDecoder(strings.NewReader("<text>" + raw + "</text>"))
	d.Strict = false
	d.Entity = xml.HTMLEntity

	var el struct {
		Text string `xml:",chardata"`
	}
	if err := d.Decode(&el); err != nil {
		return fallback
	}
	return el.Text
}

// readInto keeps the first non-empty value seen for dst.
func readInto(x *xpp.XMLPullParser, dst *string) error {
	value, err := readText(x)
	if err != nil {
		return err
	}
	if *dst == "" {
		*dst = value
	}
	return nil
}

type personElement struct {
	Name  string `xml:"name"`
	Email string `xml:"email"`
	Text  string `xml:",chardata"`
}

func readPerson(x *xpp.XMLPullParser) (string, error) {
	var el personElement
	if err := x.DecodeElement(&el); err != nil {
		return "", err
	}
	return cmp.Or(strings.TrimSpace(el.Name), strings.TrimSpace(el.Email), personName(el.Text)), nil
}

// personName extracts Name from the RSS "email (Name)" convention.
func personName(s string) string {
	s = strings.TrimSpace(s)
	if open := strings.Index(s, "("); open > 0 && strings.HasSuffix(s, ")") {
		if name := strings.TrimSpace(s[open+1 : len(s)-1]); name != "" {
			return name
		}
	}
	return s
}

func normalizeDate(value string) string {
	if value == "" {
		return ""
	}

	t, err := dateparse.ParseAny(value)
	if err != nil {
		return value
	}
	return t.UTC().Format(time.RFC3339)
}

func isAlternate(rel string) bool {
	return rel == "" || rel == "alternate"
}

func isImage(medium, mimeType string) bool {
	return medium == "image" || strings.HasPrefix(mimeType, "image/")
}

// preferImage keeps the first image found, unless a plain URL turns up later.
func preferImage(current, next *Image) *Image {
	if next == nil {
		return current
	}
	if current == nil || (current.Structured && !next.Structured) {
		return next
	}
	return current
}

// declaredEncoding returns the encoding named in the XML declaration, if any.
func declaredEncoding(head []byte) string {
	if m := encodingDecl.FindSubmatch(head); m != nil {
		return string(m[1])
	}
	return ""
}

// sanitize drops characters that are not allowed anywhere in an XML document,
// such as stray control characters, so they do not abort decoding.
func sanitize(r io.Reader) io.Reader {
	return transform.NewReader(r, runes.Remove(runes.Predicate(isIllegalXMLRune)))
}

func isIllegalXMLRune(r rune) bool {
	return !(r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF)
}

func decodeCharset(r io.Reader, charset string) (io.Reader, bool) {
	enc := lookupEncoding(charset)
	if enc == nil {
		return r, false
	}
	return enc.NewDecoder().Reader(r), true
}

// charsetReader honors the encoding in the XML declaration, unless the body
// was already transcoded up front.
func charsetReader(transcoded bool) func(string, io.Reader) (io.Reader, error) {
	return func(label string, input io.Reader) (io.Reader, error) {
		if transcoded {
			return input, nil
		}
		enc := lookupEncoding(label)
		if enc == nil {
			return input, nil
		}
		return enc.NewDecoder().Reader(input), nil
	}
}

// lookupEncoding returns nil for UTF-8 and for unknown labels.
func lookupEncoding(label string) encoding.Encoding {
	label = strings.Trim(strings.TrimSpace(label), `"'`)
	if label == "" {
		return nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil
	}
	return enc
}
