package feed

import (
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// Info is the feed-level metadata returned alongside its episodes.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Image       string `json:"image"`
	RSSURL      string `json:"rssUrl"`
}

// Episode is one feed item with a playable audio enclosure.
type Episode struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	AudioURL    string `json:"audioUrl"`
	PubDate     string `json:"pubDate"`
	GUID        string `json:"guid"`
	Description string `json:"description"`
	Duration    string `json:"duration,omitempty"`
	FeedTitle   string `json:"feedTitle"`
	FeedLink    string `json:"feedLink"`
}

// Parser resolves a podcast RSS URL into feed metadata and its episodes.
type Parser struct {
	feedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{feedParser: gofeed.NewParser()}
}

// Fetch parses the feed at rssURL. Items without an audio enclosure are
// dropped since they cannot be transcribed.
func (p *Parser) Fetch(ctx context.Context, rssURL string) (*Info, []Episode, error) {
	feed, err := p.feedParser.ParseURLWithContext(rssURL, ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("parse feed %s: %w", rssURL, err)
	}

	info := &Info{
		Title:       feed.Title,
		Description: feed.Description,
		Link:        feed.Link,
		RSSURL:      rssURL,
	}
	if info.Title == "" {
		info.Title = "Unknown Podcast"
	}
	if feed.Image != nil {
		info.Image = feed.Image.URL
	}
	if info.Image == "" && feed.ITunesExt != nil {
		info.Image = feed.ITunesExt.Image
	}

	episodes := make([]Episode, 0, len(feed.Items))
	for _, item := range feed.Items {
		audioURL := enclosureURL(item)
		if audioURL == "" {
			continue
		}

		ep := Episode{
			Title:       item.Title,
			Link:        item.Link,
			AudioURL:    audioURL,
			PubDate:     item.Published,
			GUID:        item.GUID,
			Description: item.Description,
			FeedTitle:   info.Title,
			FeedLink:    info.Link,
		}
		if ep.GUID == "" {
			ep.GUID = item.Link
		}
		// Some feeds carry the episode text only in content:encoded.
		if ep.Description == "" {
			ep.Description = item.Content
		}
		if item.ITunesExt != nil {
			ep.Duration = item.ITunesExt.Duration
		}
		episodes = append(episodes, ep)
	}

	return info, episodes, nil
}

func enclosureURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}
