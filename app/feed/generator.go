package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
)

const feedPath = "/feeds/news.rss"

type Generator struct {
	baseURL string
	version string
	now     func() time.Time
}

// NewGenerator builds the RSS renderer for the stored news. baseURL is the
// public address of the service and is used for the self link.
func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		now:     time.Now,
	}
}

func (g *Generator) Run(records []database.NewsRecord) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", "ClaimDesk News", 4)
	g.writeElement(&buf, "link", g.baseURL, 4)
	g.writeElement(&buf, "description", "Incident reports collected from regional news and police feeds", 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(g.baseURL+feedPath)))

	lastBuildDate := g.now().UTC()
	if len(records) > 0 {
		lastBuildDate = cmp.Or(records[0].PublishedAt, records[0].CreatedAt, lastBuildDate)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("ClaimDesk/%s", g.version), 4)
	g.writeElement(&buf, "language", "de", 4)

	for _, record := range records {
		g.writeItem(&buf, record)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, record database.NewsRecord) {
	title := record.Title
	summary := record.Summary
	if record.Enrichment != nil {
		title = cmp.Or(record.Enrichment.Title, title)
		summary = cmp.Or(record.Enrichment.Summary, summary)
	}

	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(record.ID)))
	xml.EscapeText(buf, []byte(record.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", title, 6)
	g.writeElement(buf, "link", record.OriginalLink, 6)
	g.writeElement(buf, "description", cmp.Or(summary, "No description available"), 6)

	if record.Content != "" && record.Content != summary {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(record.Content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", record.PublishedAt.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", record.Source, 6)

	if record.Location != "" && record.Location != DefaultLocation {
		g.writeElement(buf, "category", record.Location, 6)
	}
	for _, keyword := range record.Keywords {
		if keyword != "" {
			g.writeElement(buf, "category", keyword, 6)
		}
	}
	if record.Enrichment != nil && record.Enrichment.Severity != "" {
		g.writeElement(buf, "category", "severity:"+record.Enrichment.Severity, 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
