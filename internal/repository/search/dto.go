package search

import (
	"strings"

	"github.com/geopard-lu/geopard/internal/db"
	"github.com/geopard-lu/geopard/internal/domain"
)

// listSeparator joins multi-valued hash fields (keywords, formats) in Redis.
const listSeparator = "|"

// documentKeyPrefix precedes document IDs in Redis keys.
var documentKeyPrefix = domain.KeyPrefix + "catalog:"

// documentFields lists the hash fields retrieved for every hit.
// The content vector stays in Redis; only searchable text travels back.
func documentFields() []string {
	return []string{
		"metauid", "title", "abstract", "content",
		"keywords", "data_type", "distributor_formats",
		"openly_url", "webapp_url",
	}
}

func documentFromEntry(entry db.SearchEntry) domain.Document {
	f := entry.Fields
	return domain.Document{
		ID:                 strings.TrimPrefix(entry.Key, documentKeyPrefix),
		MetaUID:            f["metauid"],
		Title:              f["title"],
		Abstract:           f["abstract"],
		Content:            f["content"],
		Keywords:           splitList(f["keywords"]),
		DataType:           f["data_type"],
		DistributorFormats: splitList(f["distributor_formats"]),
		OpenlyURL:          f["openly_url"],
		WebappURL:          f["webapp_url"],
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, listSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
