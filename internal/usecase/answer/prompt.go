package answer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/geopard-lu/geopard/internal/domain"
)

// systemPrompt defines tone, citation format, and grounding discipline for
// the answer generator. The [Quelle N] indices refer to the numbered source
// blocks rendered by buildPrompt; the model must not cite anything else.
const systemPrompt = `Du bist ein hilfreicher Assistent für Geodaten des Kantons Luzern.

SPRACHE: Antworte IMMER auf Schweizer Hochdeutsch.

WICHTIG: Du hilfst Nutzern, die RICHTIGEN DATENSÄTZE zu finden, hast aber keinen direkten Zugriff auf die Geodaten selbst.

QUELLEN:
- Zitiere Quellen ausschliesslich mit [Quelle N], wobei N die Nummer eines der unten aufgeführten Quellen-Blöcke ist
- Zitiere KEINE Nummern, die nicht in den Quellen-Blöcken vorkommen
- Nenne Datensatz-Namen und MetaUID

NEUERE DATENSÄTZE BEVORZUGEN:
- Bei mehreren Versionen desselben Datensatzes (z.B. DTM 2024, DTM 2012) bevorzuge die neueste, ausser der Nutzer fragt nach historischen Daten

HÖHENABFRAGEN:
- DOM (Digitales Oberflächenmodell): Oberkante von Objekten (Gebäude, Bäume) → Gebäude- und Objekthöhen
- DTM (Digitales Terrainmodell): nur Gelände → Boden- und Geländehöhen
- Bei mehrdeutigen Fragen: erkläre beide Optionen und stelle eine klärende Frage

METADATEN AUSGEBEN:
- Schreibe die wichtigsten Metadaten direkt aus (Titel, Beschreibung, Format, Aktualität), erst danach der Metadaten-Link
- Erkläre WIE der Nutzer die Daten abrufen kann (WMS/WFS-URLs wenn verfügbar)

Antworte präzise, pädagogisch und benutzerfreundlich.`

// maxAbstractChars bounds the per-source abstract excerpt in the prompt.
const maxAbstractChars = 300

// buildPrompt assembles the grounding prompt: numbered source blocks, prior
// conversation turns (most recent last), and the question last. The block
// numbering is the single source of truth for valid citation indices.
func buildPrompt(queryText string, context domain.RankedContext, history []domain.Turn, maxTokens int, temperature float32) domain.CompletionRequest {
	messages := make([]domain.Turn, 0, len(history)+1)
	messages = append(messages, history...)

	var sb strings.Builder
	if len(context) > 0 {
		sb.WriteString("Kontext - Gefundene Datensätze (sortiert nach Relevanz):\n")
		for i, hit := range context {
			renderSourceBlock(&sb, i+1, hit)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Frage: %s\n\n", queryText)
	sb.WriteString("Bitte beantworte die Frage basierend auf den gefundenen Datensätzen. Zitiere Quellen mit [Quelle N].")

	messages = append(messages, domain.Turn{Role: "user", Content: sb.String()})

	return domain.CompletionRequest{
		System:      systemPrompt,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// renderSourceBlock writes one numbered context document. The index written
// here is exactly what extractCitations resolves markers against.
func renderSourceBlock(sb *strings.Builder, index int, hit domain.SearchHit) {
	d := hit.Document

	fmt.Fprintf(sb, "\n### [Quelle %d] %s\n", index, d.Title)
	fmt.Fprintf(sb, "- MetaUID: %s\n", d.MetaUID)
	if d.DataType != "" {
		fmt.Fprintf(sb, "- Typ: %s\n", d.DataType)
	}
	fmt.Fprintf(sb, "- Relevanz-Score: %.2f\n", hit.RerankScore)

	if d.Abstract != "" {
		fmt.Fprintf(sb, "- Beschreibung: %s\n", excerpt(d.Abstract, maxAbstractChars))
	}
	if len(d.Keywords) > 0 {
		fmt.Fprintf(sb, "- Keywords: %s\n", strings.Join(topN(d.Keywords, 5), ", "))
	}
	if len(d.DistributorFormats) > 0 {
		fmt.Fprintf(sb, "- Formate: %s\n", strings.Join(d.DistributorFormats, ", "))
	}

	if wms := serviceURLs(d.Content, wmsURLRegex); len(wms) > 0 {
		fmt.Fprintf(sb, "- WMS Service: %s\n", wms[0])
	}
	if wfs := serviceURLs(d.Content, wfsURLRegex); len(wfs) > 0 {
		fmt.Fprintf(sb, "- WFS Service: %s\n", wfs[0])
	}

	if d.OpenlyURL != "" {
		fmt.Fprintf(sb, "- Metadaten: %s\n", d.OpenlyURL)
	}
	if d.WebappURL != "" {
		fmt.Fprintf(sb, "- Kartenansicht: %s\n", d.WebappURL)
	}
}

var (
	wmsURLRegex = regexp.MustCompile(`https://[^\s"'}]+/WMSServer[^\s"'}]*`)
	wfsURLRegex = regexp.MustCompile(`https://[^\s"'}]+/WFSServer[^\s"'}]*`)
)

// serviceURLs extracts unique OGC service endpoints from raw record content.
func serviceURLs(content string, re *regexp.Regexp) []string {
	matches := re.FindAllString(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, 2)
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
		if len(out) == 2 {
			break
		}
	}
	return out
}

func topN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// excerpt truncates on a rune boundary so umlauts never split mid-sequence.
func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
