package feed

const (
	Version     = "https://jsonfeed.org/version/1"
	ContentType = "application/json; charset=utf-8"
)

// Document is a JSON Feed. Optional fields are omitted when empty. Items is
// set as soon as the feed metadata has been seen.
type Document struct {
	Version     string  `json:"version"`
	Title       string  `json:"title,omitempty"`
	HomePageURL string  `json:"home_page_url,omitempty"`
	Description string  `json:"description,omitempty"`
	Favicon     string  `json:"favicon,omitempty"`
	Author      *Author `json:"author,omitempty"`
	Items       []Item  `json:"items"`
}

type Item struct {
	GUID          string  `json:"guid,omitempty"`
	URL           string  `json:"url,omitempty"`
	Title         string  `json:"title,omitempty"`
	ContentHTML   string  `json:"content_html,omitempty"`
	Summary       string  `json:"summary,omitempty"`
	Image         string  `json:"image,omitempty"`
	DatePublished string  `json:"date_published,omitempty"`
	Author        *Author `json:"author,omitempty"`
}

type Author struct {
	Name string `json:"name"`
}
