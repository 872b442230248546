// Package parse implements the deterministic query parser: ordered pattern
// rules that pull structured constraints out of a raw query string, leaving
// the residue as the service phrase.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// Parser extracts structured constraints from raw query text. Safe for
// concurrent use; all state is immutable after construction.
type Parser struct {
	knownPlaces map[string]string // alias (lowercased) -> canonical place name
	now         func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock injects the clock used for relative dates, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// WithKnownPlaces replaces the built-in trailing place-name alias table.
func WithKnownPlaces(places map[string]string) Option {
	return func(p *Parser) { p.knownPlaces = places }
}

// defaultKnownPlaces covers borough names, common abbreviations, and
// frequent neighborhoods so bare trailing place names resolve without a
// preposition.
var defaultKnownPlaces = map[string]string{
	"brooklyn":      "brooklyn",
	"bk":            "brooklyn",
	"manhattan":     "manhattan",
	"queens":        "queens",
	"bronx":         "bronx",
	"staten island": "staten island",
	"uws":           "upper west side",
	"ues":           "upper east side",
	"les":           "lower east side",
	"williamsburg":  "williamsburg",
	"bushwick":      "bushwick",
	"astoria":       "astoria",
	"harlem":        "harlem",
	"park slope":    "park slope",
	"greenpoint":    "greenpoint",
	"dumbo":         "dumbo",
	"soho":          "soho",
	"tribeca":       "tribeca",
}

// New creates a parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		knownPlaces: defaultKnownPlaces,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	nearMeRe = regexp.MustCompile(`\b(?:near me|nearby|close to me|around me)\b`)
	// Location phrase after a preposition, cut at the next constraint keyword.
	locationRe = regexp.MustCompile(`\b(?:in|near|at)\s+([a-z'\- ]+)`)

	// Audience spans are stripped before price so an age number is never
	// re-interpreted as a price constraint.
	ageUnderRe = regexp.MustCompile(`\b(?:kids?|child(?:ren)?|teens?|teenagers?)\s+under\s+\d{1,2}\b`)
	ageRe      = regexp.MustCompile(`\b(?:for\s+(?:my|our|a|an)\s+)?\d{1,2}[\s-]?(?:year|yr)s?[\s-]?old(?:\s+(?:son|daughter|kid|child|boy|girl))?\b`)
	kidsRe     = regexp.MustCompile(`\b(?:for\s+)?(?:kids?|child(?:ren)?|teens?|teenagers?|toddlers?)\b`)
	adultsRe   = regexp.MustCompile(`\b(?:for\s+)?adults?\b`)

	priceCapRe    = regexp.MustCompile(`\b(?:under|max|below|less than|up to)\s*\$?\s*(\d+)\b`)
	priceDollarRe = regexp.MustCompile(`\$\s*(\d+)\b`)
	priceIntentRe = regexp.MustCompile(`\b(?:cheap(?:est)?|budget|affordable|inexpensive)\b`)

	weekendRe  = regexp.MustCompile(`\b(?:this\s+)?weekend\b`)
	todayRe    = regexp.MustCompile(`\btoday\b`)
	tomorrowRe = regexp.MustCompile(`\btomorrow\b`)
	weekdayRe  = regexp.MustCompile(`\b(?:this\s+|next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	timeBoundRe  = regexp.MustCompile(`\b(after|before)\s+(\d{1,2})(?::\d{2})?\s*(am|pm)?\b`)
	timeWindowRe = regexp.MustCompile(`\b(morning|afternoon|evening)s?\b`)

	skillRe   = regexp.MustCompile(`\b(?:for\s+)?(beginner|advanced)s?\b`)
	urgencyRe = regexp.MustCompile(`\b(?:urgent(?:ly)?|asap|right away|immediately)\b`)

	onlineRe   = regexp.MustCompile(`\b(?:online|virtual|remote)\b`)
	inPersonRe = regexp.MustCompile(`\bin[\s-]person\b`)

	conversationalRe = regexp.MustCompile(`\b(?:can you|could you|please|i(?:'| a)?m looking|looking for|i want|i need|help me|do you have|recommend)\b`)

	serviceTrimRe = regexp.MustCompile(`^(?:for|with|a|an|the|my|me|some|in|on|at|near)\s+|\s+(?:for|with|a|an|the|my|me|some|in|on|at|near)$`)
)

// locationStopwords cut a captured location phrase at the next constraint.
var locationStopwords = map[string]bool{
	"for": true, "under": true, "after": true, "before": true, "on": true,
	"today": true, "tomorrow": true, "this": true, "next": true, "with": true,
	"at": true, "am": true, "pm": true, "morning": true, "evening": true,
	"afternoon": true, "urgent": true, "urgently": true, "asap": true,
	"online": true, "cheap": true, "max": true, "weekend": true, "my": true,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// Parse extracts constraints from a raw query. Never fails: garbled or
// empty input yields a ParsedQuery with empty ServiceQuery and no
// constraints.
func (p *Parser) Parse(rawQuery string) domain.ParsedQuery {
	pq := domain.ParsedQuery{
		RawQuery:     rawQuery,
		LocationType: domain.LocationNone,
		LessonType:   domain.LessonAny,
		Mode:         domain.ParsingModeRegex,
	}

	text := Normalize(rawQuery)
	if text == "" {
		return pq
	}

	// Lesson type first: the space form "in person" must not reach
	// location extraction as a preposition phrase.
	text = extractLessonType(text, &pq)
	text = p.extractLocation(text, &pq)
	text = p.extractAudience(text, &pq)
	text = p.extractPrice(text, &pq)
	text = p.extractDate(text, &pq)
	text = p.extractTime(text, &pq)
	text = extractSkill(text, &pq)
	text = extractUrgency(text, &pq)

	pq.ServiceQuery = tidyServiceQuery(text)
	pq.NeedsLLM = p.lowConfidence(rawQuery, &pq)
	return pq
}

// Normalize collapses whitespace, lowercases, and drops invalid UTF-8.
// Malformed encoding is treated as an empty query, never an error.
func Normalize(s string) string {
	if !utf8.ValidString(s) {
		return ""
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRe.ReplaceAllString(s, " ")
}

func (p *Parser) extractLocation(text string, pq *domain.ParsedQuery) string {
	if loc := nearMeRe.FindString(text); loc != "" {
		pq.LocationType = domain.LocationNearMe
		return strings.Replace(text, loc, " ", 1)
	}

	if m := locationRe.FindStringSubmatchIndex(text); m != nil {
		phrase := trimAtStopword(text[m[2]:m[3]])
		if phrase != "" && !articlesOnly(phrase) {
			pq.LocationText = phrase
			pq.LocationType = domain.LocationNeighborhood
			// Strip the preposition together with the kept part of the phrase.
			return text[:m[0]] + " " + text[m[2]+len(phrase):]
		}
	}

	// Trailing known place name or alias without a preposition.
	for alias, canonical := range p.knownPlaces {
		if strings.HasSuffix(text, " "+alias) || text == alias {
			pq.LocationText = canonical
			pq.LocationType = domain.LocationNeighborhood
			return strings.TrimSuffix(text, alias)
		}
	}
	return text
}

func trimAtStopword(phrase string) string {
	words := strings.Fields(phrase)
	kept := words[:0]
	for _, w := range words {
		if locationStopwords[w] {
			break
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func articlesOnly(phrase string) bool {
	for _, w := range strings.Fields(phrase) {
		if w != "the" && w != "a" && w != "an" {
			return false
		}
	}
	return true
}

func (p *Parser) extractAudience(text string, pq *domain.ParsedQuery) string {
	if span := ageUnderRe.FindString(text); span != "" {
		pq.Audience = domain.AudienceKids
		return strings.Replace(text, span, " ", 1)
	}
	if span := ageRe.FindString(text); span != "" {
		pq.Audience = domain.AudienceKids
		return strings.Replace(text, span, " ", 1)
	}
	if span := kidsRe.FindString(text); span != "" {
		pq.Audience = domain.AudienceKids
		return strings.Replace(text, span, " ", 1)
	}
	if span := adultsRe.FindString(text); span != "" {
		pq.Audience = domain.AudienceAdults
		return strings.Replace(text, span, " ", 1)
	}
	return text
}

func (p *Parser) extractPrice(text string, pq *domain.ParsedQuery) string {
	if m := priceCapRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			pq.MaxPrice = &v
		}
		return strings.Replace(text, m[0], " ", 1)
	}
	if m := priceDollarRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			pq.MaxPrice = &v
		}
		return strings.Replace(text, m[0], " ", 1)
	}
	if span := priceIntentRe.FindString(text); span != "" {
		pq.PriceIntent = domain.PriceIntentBudget
		return strings.Replace(text, span, " ", 1)
	}
	return text
}

func (p *Parser) extractDate(text string, pq *domain.ParsedQuery) string {
	if span := weekendRe.FindString(text); span != "" {
		pq.DateTag = domain.DateTagWeekend
		return strings.Replace(text, span, " ", 1)
	}
	if span := todayRe.FindString(text); span != "" {
		d := truncateToDay(p.now())
		pq.Date = &d
		return strings.Replace(text, span, " ", 1)
	}
	if span := tomorrowRe.FindString(text); span != "" {
		d := truncateToDay(p.now()).AddDate(0, 0, 1)
		pq.Date = &d
		return strings.Replace(text, span, " ", 1)
	}
	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		target := weekdays[m[1]]
		today := truncateToDay(p.now())
		ahead := (int(target) - int(today.Weekday()) + 7) % 7
		d := today.AddDate(0, 0, ahead)
		pq.Date = &d
		return strings.Replace(text, m[0], " ", 1)
	}
	return text
}

func (p *Parser) extractTime(text string, pq *domain.ParsedQuery) string {
	for {
		m := timeBoundRe.FindStringSubmatch(text)
		if m == nil {
			break
		}
		hour, err := strconv.Atoi(m[2])
		if err != nil || hour > 23 {
			text = strings.Replace(text, m[0], " ", 1)
			continue
		}
		hour = toClockHour(hour, m[3])
		if m[1] == "after" {
			pq.TimeAfter = &hour
		} else {
			pq.TimeBefore = &hour
		}
		text = strings.Replace(text, m[0], " ", 1)
	}

	if m := timeWindowRe.FindStringSubmatch(text); m != nil {
		pq.TimeWindow = domain.TimeWindow(m[1])
		return strings.Replace(text, m[0], " ", 1)
	}
	return text
}

// toClockHour maps an hour plus optional am/pm suffix to a 24h hour. Bare
// small hours ("after 5") are read as afternoon/evening.
func toClockHour(hour int, suffix string) int {
	switch suffix {
	case "am":
		if hour == 12 {
			return 0
		}
		return hour
	case "pm":
		if hour == 12 {
			return 12
		}
		return hour + 12
	default:
		if hour <= 8 {
			return hour + 12
		}
		return hour
	}
}

func extractSkill(text string, pq *domain.ParsedQuery) string {
	if m := skillRe.FindStringSubmatch(text); m != nil {
		pq.SkillLevel = domain.SkillLevel(m[1])
		return strings.Replace(text, m[0], " ", 1)
	}
	return text
}

func extractUrgency(text string, pq *domain.ParsedQuery) string {
	if span := urgencyRe.FindString(text); span != "" {
		pq.Urgency = domain.UrgencyHigh
		return strings.Replace(text, span, " ", 1)
	}
	return text
}

func extractLessonType(text string, pq *domain.ParsedQuery) string {
	if span := inPersonRe.FindString(text); span != "" {
		pq.LessonType = domain.LessonInPerson
		return strings.Replace(text, span, " ", 1)
	}
	if span := onlineRe.FindString(text); span != "" {
		pq.LessonType = domain.LessonOnline
		return strings.Replace(text, span, " ", 1)
	}
	return text
}

// tidyServiceQuery collapses the residue and trims dangling connective words.
func tidyServiceQuery(text string) string {
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	for {
		trimmed := strings.TrimSpace(serviceTrimRe.ReplaceAllString(text, ""))
		if trimmed == text {
			return text
		}
		text = trimmed
	}
}

// lowConfidence decides whether the LLM fallback should also run. A true
// result never discards what deterministic extraction already found.
func (p *Parser) lowConfidence(rawQuery string, pq *domain.ParsedQuery) bool {
	lower := strings.ToLower(rawQuery)
	if strings.Contains(lower, "?") || conversationalRe.MatchString(lower) {
		return true
	}
	// Unresolved relative dates the pattern rules do not cover.
	if strings.Contains(lower, "next week") || strings.Contains(lower, "next month") {
		return true
	}
	// Residue too long to be a service phrase: likely a multi-field span
	// the rules could not split.
	if len(strings.Fields(pq.ServiceQuery)) > 6 {
		return true
	}
	// Everything stripped away but the raw query was non-trivial.
	if pq.ServiceQuery == "" && len(strings.Fields(lower)) > 2 {
		return true
	}
	return false
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
