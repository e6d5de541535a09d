package feed

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// DefaultLocation is returned when no known place is mentioned.
const DefaultLocation = "Deutschland"

var incidentKeywords = []string{
	"Brand", "Explosion", "Unfall", "Feuer", "Diebstahl", "Einbruch",
	"Überfall", "Polizei", "Rettung", "Notfall", "Verkehrsunfall",
	"Bombendrohung", "Geiselnahme", "Fahndung", "Festnahme",
	"Tötungsdelikt", "Vermisst", "Sprengstoff",
}

// Cities, federal states and regions.
var knownPlaces = []string{
	"Berlin", "Hamburg", "München", "Köln", "Frankfurt am Main", "Frankfurt",
	"Stuttgart", "Düsseldorf", "Leipzig", "Dortmund", "Essen", "Bremen",
	"Dresden", "Hannover", "Nürnberg", "Duisburg", "Bochum", "Wuppertal",
	"Bielefeld", "Bonn", "Münster", "Karlsruhe", "Mannheim", "Augsburg",
	"Wiesbaden", "Mönchengladbach", "Gelsenkirchen", "Aachen", "Braunschweig", "Chemnitz",
	"Kiel", "Krefeld", "Halle", "Halle an der Saale", "Magdeburg", "Freiburg",
	"Freiburg im Breisgau", "Oberhausen", "Lübeck", "Erfurt", "Rostock", "Kassel",
	"Hagen", "Saarbrücken", "Hamm", "Potsdam", "Ludwigshafen", "Ludwigshafen am Rhein",
	"Oldenburg", "Leverkusen", "Osnabrück", "Solingen", "Heidelberg", "Herne",
	"Neuss", "Darmstadt", "Paderborn", "Regensburg", "Ingolstadt", "Würzburg",
	"Fürth", "Wolfsburg", "Offenbach", "Offenbach am Main", "Ulm", "Heilbronn",
	"Pforzheim", "Göttingen", "Bottrop", "Trier", "Recklinghausen", "Cottbus",
	"Erlangen", "Moers", "Siegen", "Hildesheim", "Salzgitter", "Kaiserslautern",
	"Gütersloh", "Iserlohn", "Schwerin", "Düren", "Esslingen", "Ratingen",
	"Lüdenscheid", "Marl", "Bamberg", "Velbert", "Aschaffenburg", "Minden",
	"Neumünster", "Viersen", "Wilhelmshaven", "Rheine", "Gladbeck", "Troisdorf",
	"Dorsten", "Castrop-Rauxel", "Arnsberg", "Detmold", "Lüneburg", "Brandenburg",
	"Brandenburg an der Havel", "Bayreuth", "Fulda", "Koblenz", "Bergisch Gladbach", "Reutlingen",
	"Kempten", "Landshut", "Sindelfingen", "Rosenheim", "Frankenthal", "Stralsund",
	"Friedrichshafen", "Mülheim", "Mülheim an der Ruhr", "Konstanz", "Worms", "Celle",
	"Lippstadt", "Kleve", "Herzogenrath", "Remscheid", "Plauen", "Neubrandenburg",
	"Kerpen", "Rüsselsheim", "Greifswald", "Gießen", "Unna", "Weimar",
	"Speyer", "Passau", "Ibbenbüren", "Goslar", "Emden", "Cuxhaven",
	"Meerbusch", "Schweinfurt", "Coburg", "Warendorf", "Neustadt", "Neustadt an der Weinstraße",
	"Landau", "Landau in der Pfalz", "Garmisch-Partenkirchen", "Berchtesgaden", "Bad Reichenhall", "Bad Kissingen",
	"Bad Homburg", "Bad Oeynhausen", "Baden-Baden", "Westerland", "Sankt Peter-Ording", "Warnemünde",
	"Binz", "Oberstdorf", "Mittenwald", "Rothenburg ob der Tauber", "Quedlinburg", "Wismar",
	"Straubing", "Amberg", "Weiden", "Hof", "Zwickau", "Görlitz",
	"Bautzen", "Meißen", "Pirna", "Flensburg", "Husum", "Rendsburg",
	"Itzehoe", "Pinneberg", "Norderstedt", "Ahrensburg", "Stade", "Buxtehude",
	"Winsen", "Uelzen", "Wolfenbüttel", "Peine", "Hameln", "Northeim",
	"Einbeck", "Seesen", "Osterode", "Clausthal-Zellerfeld", "Bayern", "Baden-Württemberg",
	"Nordrhein-Westfalen", "Hessen", "Niedersachsen", "Rheinland-Pfalz", "Schleswig-Holstein", "Sachsen",
	"Thüringen", "Sachsen-Anhalt", "Mecklenburg-Vorpommern", "Saarland", "Ruhrgebiet", "Rheinland",
	"Westfalen", "Franken", "Schwaben", "Pfalz", "Allgäu", "Schwarzwald",
	"Harz", "Eifel", "Sauerland", "Bergisches Land", "Münsterland", "Emsland",
	"Weserbergland", "Teutoburger Wald", "Odenwald", "Spessart", "Rhön", "Vogelsberg",
	"Taunus", "Hunsrück", "Westerwald", "Erzgebirge", "Vogtland", "Lausitz",
	"Uckermark", "Prignitz", "Altmark", "Börde", "Kyffhäuser", "Thüringer Wald",
	"Fichtelgebirge", "Bayerischer Wald", "Oberpfalz", "Chiemgau", "Berchtesgadener Land", "Bodensee",
	"Ostsee", "Nordsee", "Sylt", "Föhr", "Amrum", "Pellworm",
	"Fehmarn", "Rügen", "Usedom", "Hiddensee",
}

// Go's \b only knows ASCII word characters; umlauts need explicit boundaries.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

type placeMatcher struct {
	name     string
	patterns []*regexp.Regexp
}

var (
	placeMatchersOnce sync.Once
	placeMatchers     []placeMatcher
)

func loadPlaceMatchers() []placeMatcher {
	placeMatchersOnce.Do(func() {
		seen := make(map[string]bool, len(knownPlaces))
		names := make([]string, 0, len(knownPlaces))
		for _, name := range knownPlaces {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}

		// Longest names first so "Frankfurt am Main" wins over "Frankfurt".
		sort.SliceStable(names, func(i, j int) bool {
			return len([]rune(names[i])) > len([]rune(names[j]))
		})

		placeMatchers = make([]placeMatcher, 0, len(names))
		for _, name := range names {
			quoted := regexp.QuoteMeta(name)
			placeMatchers = append(placeMatchers, placeMatcher{
				name: name,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)` + wordStart + `(?:in|aus|bei|von|nach)\s+` + quoted + wordEnd),
					regexp.MustCompile(`(?i)^` + quoted + `\s*:`),
					regexp.MustCompile(`(?i)` + wordStart + quoted + `\s*[-,]`),
					regexp.MustCompile(`(?i)\(` + quoted + `\)`),
					regexp.MustCompile(`(?i)` + wordStart + quoted + wordEnd),
				},
			})
		}
	})
	return placeMatchers
}

// ExtractKeywords returns the incident keywords contained in text, each once,
// in vocabulary order.
func ExtractKeywords(text string) []string {
	if text == "" {
		return []string{}
	}

	lower := strings.ToLower(norm.NFC.String(text))
	found := make([]string, 0, 4)
	for _, keyword := range incidentKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			found = append(found, keyword)
		}
	}
	return found
}

// ExtractLocation returns the longest known place mentioned in the texts,
// or DefaultLocation.
func ExtractLocation(title, summary, content string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{title, summary, content} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return DefaultLocation
	}

	text := norm.NFC.String(strings.Join(parts, " "))
	for _, matcher := range loadPlaceMatchers() {
		for _, pattern := range matcher.patterns {
			if pattern.MatchString(text) {
				return matcher.name
			}
		}
	}

	return DefaultLocation
}
