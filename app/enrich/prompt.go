package enrich

import (
	"cmp"
	"fmt"
)

const systemPrompt = `Du bist ein Experte für die Bewertung von Schadensmeldungen aus Sicht eines Sachverständigenbüros für Gebäudeschäden, TKBE und Betriebsunterbrechung.

Bestimme den tatsächlichen Ereignisort (Stadtteil > Stadt > Region), ordne den Schaden einer Kategorie zu
(private, commercial, industrial, infrastructure), bewerte die Dringlichkeit (routine, attention, urgent)
und extrahiere 3-8 sachverständigen-relevante Keywords mit Confidence-Score zwischen 0.0 und 1.0.

Antworte ausschließlich mit einem gültigen JSON-Objekt:

{
  "title": "Prägnanter SV-orientierter Titel (50-80 Zeichen)",
  "summary": "Prägnante Zusammenfassung in 2-3 Sätzen",
  "keyPoints": ["3-5 wichtige Punkte für SV-Bewertung"],
  "severity": "routine|attention|urgent",
  "damageCategory": "private|commercial|industrial|infrastructure",
  "businessInterruption": true,
  "estimatedComplexity": "low|medium|high|critical",
  "location": "Präziser Ereignisort",
  "locationConfidence": "low|medium|high",
  "keywords": ["Keyword"],
  "keywordCategories": {
    "eventType": "Brand|Wasser|Sturm|Einbruch|Unfall|Sonstiges",
    "severity": "Bagatelle|Mittel|Groß|Katastrophe",
    "sector": "Wohnen|Büro|Industrie|Handel|Gastronomie|Gesundheit|Bildung|Infrastruktur|Sonstiges",
    "damageType": "Spezifischer Schadenstyp",
    "urgency": "Routine|Beobachten|Sofort"
  },
  "keywordConfidence": {"Keyword": 0.9}
}`

func userPrompt(req Request) string {
	return fmt.Sprintf(`Bewerte diese Schadensmeldung aus Sachverständigen-Sicht:

Originaltitel: %s
Ursprünglicher Ort (RSS): %s
Quelle: %s
Inhalt: %s

Falls der Ereignisort unklar ist, nutze den ursprünglichen RSS-Ort. Antworte nur mit dem JSON-Objekt.`,
		cmp.Or(req.Title, "Kein Titel"),
		cmp.Or(req.Location, "Unbekannt"),
		cmp.Or(req.URL, "Unbekannt"),
		req.Content)
}
