package extract

import "regexp"

// Age patterns in precedence order. Numbers keep a leading minus so that
// "-5 years old" is rejected instead of read as 5.
var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(-?\d+)\s*-?\s*(?:years?|yrs?)\s*-?\s*old`),
	regexp.MustCompile(`(?:^|[^\w])(-?\d{1,3})[mf]\b`),
	regexp.MustCompile(`\baged?\s*:?\s*(-?\d+)`),
	regexp.MustCompile(`(-?\d+)-years?\b`),
}

// genderRule is one precedence level: male patterns are tried before female
type genderRule struct {
	male   *regexp.Regexp
	female *regexp.Regexp
}

var genderRules = []genderRule{
	{
		male:   regexp.MustCompile(`\d{1,3}m\b`),
		female: regexp.MustCompile(`\d{1,3}f\b`),
	},
	{
		male:   regexp.MustCompile(`\bmale\b`),
		female: regexp.MustCompile(`\bfemale\b`),
	},
	{
		male:   regexp.MustCompile(`\b(?:man|boy|gentleman|mr)\b`),
		female: regexp.MustCompile(`\b(?:woman|girl|lady|mrs|ms)\b`),
	},
	{
		male:   regexp.MustCompile(`(?:^|[\s,;(/])m(?:$|[\s,;.)/])`),
		female: regexp.MustCompile(`(?:^|[\s,;(/])f(?:$|[\s,;.)/])`),
	},
}

// knownLocations is ordered so that longer names shadow the names they contain
var knownLocations = []string{
	"new delhi", "navi mumbai",
	"mumbai", "delhi", "bangalore", "bengaluru", "hyderabad", "chennai",
	"kolkata", "pune", "ahmedabad", "jaipur", "lucknow", "surat", "kanpur",
	"nagpur", "indore", "bhopal", "patna", "chandigarh", "kochi",
	"coimbatore", "vadodara", "visakhapatnam", "gurgaon", "gurugram",
	"noida", "ludhiana", "nashik", "mysore", "mysuru", "thiruvananthapuram",
	"bhubaneswar", "guwahati", "dehradun", "ranchi", "raipur", "varanasi",
	"amritsar", "madurai",
}

// procedureEntry maps a canonical procedure tag to the phrasings that imply it
type procedureEntry struct {
	tag      string
	variants []string
}

var procedureTable = []procedureEntry{
	{"knee surgery", []string{"knee surgery", "knee replacement", "knee operation", "knee arthroscopy", "acl reconstruction", "meniscus repair"}},
	{"hip replacement", []string{"hip replacement", "hip surgery", "hip arthroplasty", "hip operation"}},
	{"cardiac surgery", []string{"cardiac surgery", "heart surgery", "bypass surgery", "heart bypass", "angioplasty", "open heart", "cabg"}},
	{"cataract surgery", []string{"cataract surgery", "cataract", "eye surgery", "lens replacement"}},
	{"spinal surgery", []string{"spinal surgery", "spine surgery", "back surgery", "spinal fusion", "disc surgery", "spinal"}},
	{"appendix surgery", []string{"appendix surgery", "appendectomy", "appendicectomy", "appendix removal", "appendix"}},
	{"hernia surgery", []string{"hernia surgery", "hernia repair", "hernioplasty", "hernia"}},
	{"gallbladder surgery", []string{"gallbladder surgery", "gallbladder removal", "gall bladder", "cholecystectomy"}},
	{"maternity", []string{"maternity", "childbirth", "delivery", "c-section", "caesarean", "cesarean", "pregnancy"}},
}

// genericProcedure captures free-text labels like "shoulder operation"
var genericProcedure = regexp.MustCompile(`\b([a-z]+)\s+(surgery|operation|procedure|replacement)\b`)

// genericStopwords never form the first word of a free-text procedure label
var genericStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "for": true, "of": true, "my": true,
	"his": true, "her": true, "their": true, "needs": true, "need": true,
	"urgent": true, "emergency": true, "major": true, "minor": true,
	"had": true, "having": true, "underwent": true, "planned": true,
	"elective": true, "recent": true, "after": true, "before": true,
}

// fuzzyStopwords are terms too generic to fuzzy-match on their own
var fuzzyStopwords = map[string]bool{
	"surgery": true, "operation": true, "procedure": true, "replacement": true,
	"removal": true, "repair": true, "treatment": true, "patient": true,
	"policy": true, "month": true, "months": true, "insurance": true,
	"years": true, "old": true,
}

// durationPattern converts its captured number to months with multiplier
type durationPattern struct {
	re         *regexp.Regexp
	multiplier int
}

var durationPatterns = []durationPattern{
	{regexp.MustCompile(`(-?\d+)[\s-]*months?[\s-]*(?:old\s+)?(?:policy|insurance|cover(?:age)?|plan)`), 1},
	{regexp.MustCompile(`(?:policy|insurance|cover)\s+(?:of|for)\s+(-?\d+)\s*months?`), 1},
	{regexp.MustCompile(`policy\s+(?:duration|age)\s*:?\s*(-?\d+)\s*months?`), 1},
	{regexp.MustCompile(`(-?\d+)[\s-]*years?[\s-]*(?:old\s+)?(?:policy|insurance|cover(?:age)?|plan)`), 12},
}

var emergencyKeywords = []string{
	"emergency", "urgent", "accident", "critical", "immediate", "trauma", "acute",
}
