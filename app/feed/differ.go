package feed

import (
	"strconv"
	"unicode/utf16"

	"github.com/lysyi3m/claimdesk/app/database"
)

// ContentHash is a 32-bit rolling hash (h*31 + c) over the UTF-16 code units
// of "title|summary|content", rendered as a signed decimal. Stored hashes
// from earlier deployments use the same function, so it must not change.
func ContentHash(title, summary, content string) string {
	var hash int32
	for _, unit := range utf16.Encode([]rune(title + "|" + summary + "|" + content)) {
		hash = hash<<5 - hash + int32(unit)
	}
	return strconv.FormatInt(int64(hash), 10)
}

// Plan is the set of writes one parsed feed requires.
type Plan struct {
	ToInsert []database.NewsRecord
	ToUpdate []database.NewsRecord
	ToEnrich []string

	Excluded   int
	Filtered   int
	Unchanged  int
	Duplicates int
}

// Stored holds the records already in the store that a parsed feed touches,
// looked up by original link and by id.
type Stored struct {
	ByLink map[string]database.ExistingRecord
	ByID   map[string]database.ExistingRecord
}

// lookup prefers the link match. An id match covers items whose link changed
// while the guid stayed the same.
func (s Stored) lookup(item Item) (database.ExistingRecord, bool) {
	if rec, ok := s.ByLink[item.OriginalLink]; ok {
		return rec, true
	}
	rec, ok := s.ByID[item.ID]
	return rec, ok
}

type Differ struct{}

func NewDiffer() *Differ {
	return &Differ{}
}

// Run classifies items against the stored records and the hidden ids.
// It performs no I/O.
func (d *Differ) Run(items []Item, stored Stored, excluded map[string]struct{}) Plan {
	var plan Plan
	seenLinks := make(map[string]bool, len(items))
	seenIDs := make(map[string]bool, len(items))

	for _, item := range items {
		if item.ID == "" || item.OriginalLink == "" {
			continue
		}
		if seenLinks[item.OriginalLink] || seenIDs[item.ID] {
			plan.Duplicates++
			continue
		}
		seenLinks[item.OriginalLink] = true
		seenIDs[item.ID] = true

		if item.IsFiltered {
			plan.Filtered++
			continue
		}

		match, known := stored.lookup(item)
		if isHidden(excluded, item.ID) || (known && isHidden(excluded, match.ID)) {
			plan.Excluded++
			continue
		}

		record := toRecord(item)

		if !known {
			plan.ToInsert = append(plan.ToInsert, record)
			plan.ToEnrich = append(plan.ToEnrich, record.ID)
			continue
		}

		if match.ContentHash == record.ContentHash {
			plan.Unchanged++
			continue
		}

		record.ID = match.ID
		plan.ToUpdate = append(plan.ToUpdate, record)
		if match.HasEnrichment {
			plan.ToEnrich = append(plan.ToEnrich, match.ID)
		}
	}

	return plan
}

func isHidden(excluded map[string]struct{}, id string) bool {
	_, hidden := excluded[id]
	return hidden
}

func toRecord(item Item) database.NewsRecord {
	keywords := item.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	return database.NewsRecord{
		ID:           item.ID,
		Title:        item.Title,
		Summary:      item.Summary,
		Content:      item.Content,
		PublishedAt:  item.PublishedAt,
		Source:       item.Source,
		Location:     item.Location,
		Keywords:     keywords,
		OriginalLink: item.OriginalLink,
		FeedType:     item.FeedType,
		ContentHash:  ContentHash(item.Title, item.Summary, item.Content),
	}
}
