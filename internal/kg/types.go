// Package kg implements the knowledge-graph enricher: resolving in-text
// entity mentions to canonical identifiers and attaching quantitative and
// qualitative signals, batched to keep request counts near O(M + |S|/50)
// instead of the naive O(M*K).
package kg

// searchHit is one entry of a wbsearchentities response.
type searchHit struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

type searchResponse struct {
	Search []searchHit `json:"search"`
}

// labelValue is the {language, value} shape Wikidata uses for labels,
// descriptions, and aliases.
type labelValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type sitelink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
}

// snak is the minimal shape needed to read a claim's target entity or
// string value out of wbgetentities' claims block.
type snak struct {
	Mainsnak struct {
		Datavalue struct {
			Value struct {
				ID      string `json:"id"`
				Text    string `json:"text"`
				Amount  string `json:"amount"`
				EntType string `json:"entity-type"`
			} `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

type rawEntity struct {
	ID           string                  `json:"id"`
	Labels       map[string]labelValue   `json:"labels"`
	Descriptions map[string]labelValue   `json:"descriptions"`
	Aliases      map[string][]labelValue `json:"aliases"`
	Sitelinks    map[string]sitelink     `json:"sitelinks"`
	Claims       map[string][]snak       `json:"claims"`
}

type getEntitiesResponse struct {
	Entities map[string]rawEntity `json:"entities"`
}

// Wikidata property IDs read out of claims (§4.3, §6).
const (
	propInstanceOf = "P31"
	propOccupation = "P106"
	propPosition   = "P39"
	propAward      = "P166"
)

// Allowed instance-of types for lookup-by-name matches: human, public
// company, online newspaper (spec §4.3, §6, seed scenario #6).
const (
	InstanceOfHuman           = "Q5"
	InstanceOfPublicCompany   = "Q891723"
	InstanceOfOnlineNewspaper = "Q1153191"
)

// AllowedInstanceOf is the default filter used by the identify/topics/
// impact-area processors' lookup-by-name pathway.
var AllowedInstanceOf = []string{InstanceOfHuman, InstanceOfPublicCompany, InstanceOfOnlineNewspaper}

func entityIDsForProp(e rawEntity, prop string) []string {
	snaks := e.Claims[prop]
	ids := make([]string, 0, len(snaks))
	for _, s := range snaks {
		if s.Mainsnak.Datavalue.Value.ID != "" {
			ids = append(ids, s.Mainsnak.Datavalue.Value.ID)
		}
	}
	return ids
}

func pickLabel(m map[string]labelValue, lang string) string {
	if lv, ok := m[lang]; ok {
		return lv.Value
	}
	if lv, ok := m["en"]; ok {
		return lv.Value
	}
	return ""
}

func pickAliases(m map[string][]labelValue, lang string) []string {
	lvs := m[lang]
	out := make([]string, 0, len(lvs))
	for _, lv := range lvs {
		out = append(out, lv.Value)
	}
	return out
}

func sitelinksMap(m map[string]sitelink) map[string]string {
	out := make(map[string]string, len(m))
	for site, sl := range m {
		out[site] = sl.Title
	}
	return out
}
