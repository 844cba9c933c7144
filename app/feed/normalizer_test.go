package feed

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Meta(t *testing.T) {
	n := NewNormalizer()

	done, err := n.Apply(Event{Kind: EventMeta, Meta: &Meta{
		Title:       "Test Feed",
		Link:        "https://example.com",
		Description: "Test Description",
		Favicon:     "https://example.com/favicon.ico",
		AuthorName:  "Test Author",
	}})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Nil(t, n.Document(), "document must not be available before End")

	done, err = n.Apply(Event{Kind: EventEnd})
	require.NoError(t, err)
	assert.True(t, done)

	doc := n.Document()
	require.NotNil(t, doc)
	assert.Equal(t, Version, doc.Version)
	assert.Equal(t, "Test Feed", doc.Title)
	assert.Equal(t, "https://example.com", doc.HomePageURL)
	assert.Equal(t, "Test Description", doc.Description)
	assert.Equal(t, "https://example.com/favicon.ico", doc.Favicon)
	require.NotNil(t, doc.Author)
	assert.Equal(t, "Test Author", doc.Author.Name)
	assert.NotNil(t, doc.Items)
	assert.Empty(t, doc.Items)
}

func TestNormalizer_EmptyMetaOmitsFields(t *testing.T) {
	n := NewNormalizer()
	n.Apply(Event{Kind: EventMeta, Meta: &Meta{}})
	n.Apply(Event{Kind: EventEnd})

	data, err := Encode(n.Document(), true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"https://jsonfeed.org/version/1","items":[]}`, string(data))
}

func TestNormalizer_Entries(t *testing.T) {
	n := NewNormalizer()
	n.Apply(Event{Kind: EventMeta, Meta: &Meta{Title: "Feed"}})
	n.Apply(Event{Kind: EventEntry, Entry: &Entry{
		GUID:        "item-1",
		Link:        "https://example.com/1",
		Title:       "First",
		Description: "<p>content</p>",
		Summary:     "summary",
		Image:       &Image{URL: "https://example.com/1.png"},
		PubDate:     "2023-07-03T10:00:00Z",
		AuthorName:  "Author",
	}})
	n.Apply(Event{Kind: EventEntry, Entry: &Entry{Title: "No identifiers"}})
	n.Apply(Event{Kind: EventEntry, Entry: &Entry{
		GUID:  "item-3",
		Title: "Structured image",
		Image: &Image{URL: "https://example.com/3.png", Structured: true},
	}})
	done, err := n.Apply(Event{Kind: EventEnd})
	require.NoError(t, err)
	require.True(t, done)

	doc := n.Document()
	require.Len(t, doc.Items, 3)

	assert.Equal(t, Item{
		GUID:          "item-1",
		URL:           "https://example.com/1",
		Title:         "First",
		ContentHTML:   "<p>content</p>",
		Summary:       "summary",
		Image:         "https://example.com/1.png",
		DatePublished: "2023-07-03T10:00:00Z",
		Author:        &Author{Name: "Author"},
	}, doc.Items[0])

	assert.Equal(t, Item{Title: "No identifiers"}, doc.Items[1])

	third := doc.Items[2]
	assert.Equal(t, "item-3", third.GUID)
	assert.Equal(t, "Structured image", third.Title)
	assert.Empty(t, third.Image)

	data, err := Encode(doc, true)
	require.NoError(t, err)

	var raw struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw.Items[2], "image")
	assert.Equal(t, map[string]interface{}{"title": "No identifiers"}, raw.Items[1])
}

func TestNormalizer_ErrorDiscardsDocument(t *testing.T) {
	n := NewNormalizer()
	n.Apply(Event{Kind: EventMeta, Meta: &Meta{Title: "Feed"}})
	n.Apply(Event{Kind: EventEntry, Entry: &Entry{GUID: "parsed before failure"}})

	parseErr := &ParseError{Reason: "XML syntax error"}
	done, err := n.Apply(Event{Kind: EventError, Err: parseErr})
	assert.False(t, done)
	assert.True(t, errors.Is(err, parseErr))
	assert.Nil(t, n.Document())

	done, err = n.Apply(Event{Kind: EventEnd})
	assert.False(t, done)
	assert.NoError(t, err)
	assert.Nil(t, n.Document())
}

func TestNormalizer_IgnoresEventsAfterEnd(t *testing.T) {
	n := NewNormalizer()
	n.Apply(Event{Kind: EventMeta, Meta: &Meta{Title: "Feed"}})
	n.Apply(Event{Kind: EventEnd})

	done, err := n.Apply(Event{Kind: EventEntry, Entry: &Entry{GUID: "late"}})
	assert.True(t, done)
	assert.NoError(t, err)
	assert.Empty(t, n.Document().Items)
}

func TestNormalizer_EntryBeforeMeta(t *testing.T) {
	n := NewNormalizer()
	n.Apply(Event{Kind: EventEntry, Entry: &Entry{GUID: "early"}})
	n.Apply(Event{Kind: EventEnd})

	doc := n.Document()
	require.NotNil(t, doc)
	assert.Equal(t, Version, doc.Version)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "early", doc.Items[0].GUID)
}
