package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

var (
	bareAmpersand  = regexp.MustCompile(`&(#[0-9]+;|#[xX][0-9a-fA-F]+;|[a-zA-Z][a-zA-Z0-9]*;)?`)
	blockTags      = regexp.MustCompile(`(?i)<(br|/?p|/?div|/?li|/?h[1-6])(\s[^>]*)?/?>`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
	utf8BOM        = []byte("\xef\xbb\xbf")
	textOnlyPolicy = bluemonday.StrictPolicy()
)

type Parser struct {
	gofeedParser *gofeed.Parser
	now          func() time.Time
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		now:          time.Now,
	}
}

// Run parses an RSS or Atom document. When the strict parse fails the
// document is sanitized (BOM, control characters, bare ampersands) and
// parsed again before giving up.
func (p *Parser) Run(data []byte) ([]RawItem, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		slog.Debug("Strict feed parse failed, retrying with sanitized document", "error", err)

		var retryErr error
		parsed, retryErr = p.gofeedParser.Parse(bytes.NewReader(sanitizeXML(data)))
		if retryErr != nil {
			return nil, fmt.Errorf("failed to parse feed: %w", err)
		}
	}

	items := make([]RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		raw := RawItem{
			GUID:        strings.TrimSpace(item.GUID),
			Link:        strings.TrimSpace(item.Link),
			Title:       item.Title,
			Description: item.Description,
			Content:     item.Content,
			PublishedAt: cmp.Or(item.PublishedParsed, item.UpdatedParsed),
		}
		items = append(items, raw)
	}

	return items, nil
}

// Normalize turns raw entries into items of the given source, applying the
// location and keyword heuristics. Entries without a link are kept; the
// differ drops them.
func (p *Parser) Normalize(raw []RawItem, source *Source) []Item {
	now := p.now().UTC()
	items := make([]Item, 0, len(raw))

	for _, entry := range raw {
		title := cleanFeedText(entry.Title)
		summary := cleanFeedText(entry.Description)
		content := cleanFeedText(entry.Content)
		if summary == "" {
			summary = content
		}
		if content == "" {
			content = summary
		}

		publishedAt := now
		if entry.PublishedAt != nil {
			publishedAt = entry.PublishedAt.UTC()
		}

		id := cmp.Or(entry.GUID, entry.Link)
		if id == "" && title != "" {
			id = fmt.Sprintf("%s-%s", title, publishedAt.Format(time.RFC3339))
		}

		items = append(items, Item{
			ID:           id,
			Title:        title,
			Summary:      summary,
			Content:      content,
			PublishedAt:  publishedAt,
			Source:       source.SourceName,
			Location:     ExtractLocation(title, summary, content),
			Keywords:     ExtractKeywords(title + " " + summary + " " + content),
			OriginalLink: entry.Link,
			FeedType:     source.Type,
		})

		if source.Settings.MaxItems > 0 && len(items) >= source.Settings.MaxItems {
			break
		}
	}

	return items
}

// cleanFeedText strips markup and entities from a feed field.
func cleanFeedText(value string) string {
	if value == "" {
		return ""
	}
	text := blockTags.ReplaceAllString(value, " $0")
	text = html.UnescapeString(textOnlyPolicy.Sanitize(text))
	text = whitespaceRuns.ReplaceAllString(text, " ")
	return norm.NFC.String(strings.TrimSpace(text))
}

func sanitizeXML(data []byte) []byte {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), utf8BOM)
	data = bytes.TrimSpace(data)

	cleaned := bytes.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		default:
			return r
		}
	}, data)

	return bareAmpersand.ReplaceAllFunc(cleaned, func(match []byte) []byte {
		if len(match) == 1 {
			return []byte("&amp;")
		}
		return match
	})
}
