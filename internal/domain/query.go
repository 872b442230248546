package domain

import "time"

// ParsingMode identifies which parser produced a ParsedQuery.
type ParsingMode string

const (
	// ParsingModeRegex marks a query parsed by the deterministic pattern rules.
	ParsingModeRegex ParsingMode = "regex"
	// ParsingModeLLM marks a query reparsed by the LLM fallback.
	ParsingModeLLM ParsingMode = "llm"
)

// LocationType tags how the location constraint was expressed in the query.
type LocationType string

const (
	LocationNone         LocationType = "none"
	LocationNeighborhood LocationType = "neighborhood"
	LocationNearMe       LocationType = "near_me"
)

// PriceIntent is a qualitative price signal ("cheap", "budget") without a number.
type PriceIntent string

// PriceIntentBudget marks queries asking for cheap offerings.
const PriceIntentBudget PriceIntent = "budget"

// DateTag marks a multi-day date range constraint.
type DateTag string

// DateTagWeekend covers "this weekend" style queries (Saturday+Sunday window).
const DateTagWeekend DateTag = "weekend"

// TimeWindow is a named part of the day.
type TimeWindow string

const (
	TimeWindowMorning   TimeWindow = "morning"
	TimeWindowAfternoon TimeWindow = "afternoon"
	TimeWindowEvening   TimeWindow = "evening"
)

// Audience is the target audience hint extracted from the query.
type Audience string

const (
	AudienceKids   Audience = "kids"
	AudienceAdults Audience = "adults"
)

// SkillLevel is the skill constraint extracted from the query.
type SkillLevel string

const (
	SkillBeginner SkillLevel = "beginner"
	SkillAdvanced SkillLevel = "advanced"
)

// Urgency tags queries that ask for a lesson as soon as possible.
type Urgency string

// UrgencyHigh marks "urgent"/"asap" queries.
const UrgencyHigh Urgency = "high"

// LessonType is the delivery modality constraint.
type LessonType string

const (
	LessonAny      LessonType = "any"
	LessonOnline   LessonType = "online"
	LessonInPerson LessonType = "in_person"
)

// ParsedQuery is the immutable result of parsing one raw query string.
// ServiceQuery is never absent: an empty string means "no service phrase",
// numeric and date fields are either nil or valid.
type ParsedQuery struct {
	RawQuery     string       `json:"raw_query"`
	ServiceQuery string       `json:"service_query"`
	LocationText string       `json:"location_text,omitempty"`
	LocationType LocationType `json:"location_type"`
	MaxPrice     *float64     `json:"max_price,omitempty"`
	PriceIntent  PriceIntent  `json:"price_intent,omitempty"`
	Date         *time.Time   `json:"date,omitempty"`
	DateTag      DateTag      `json:"date_tag,omitempty"`
	TimeAfter    *int         `json:"time_after,omitempty"`  // hour of day, 0-23
	TimeBefore   *int         `json:"time_before,omitempty"` // hour of day, 0-23
	TimeWindow   TimeWindow   `json:"time_window,omitempty"`
	Audience     Audience     `json:"audience,omitempty"`
	SkillLevel   SkillLevel   `json:"skill_level,omitempty"`
	Urgency      Urgency      `json:"urgency,omitempty"`
	LessonType   LessonType   `json:"lesson_type,omitempty"`
	NeedsLLM     bool         `json:"needs_llm"`
	Mode         ParsingMode  `json:"mode"`
}

// HasDateConstraint reports whether any date-side constraint is present.
func (q *ParsedQuery) HasDateConstraint() bool {
	return q.Date != nil || q.DateTag != ""
}

// HasTimeConstraint reports whether any time-of-day constraint is present.
func (q *ParsedQuery) HasTimeConstraint() bool {
	return q.TimeAfter != nil || q.TimeBefore != nil || q.TimeWindow != ""
}

// Coordinates is a WGS84 point supplied by the caller for near_me queries.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}
