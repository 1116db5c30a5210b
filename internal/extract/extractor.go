package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
	"go.uber.org/zap"
)

// MaxAge and MaxPolicyMonths bound accepted numeric values (inclusive)
const (
	MaxAge          = 120
	MaxPolicyMonths = 120
)

// policySuffix marks a number that describes the policy rather than the patient
var policySuffix = regexp.MustCompile(`^\s*(?:policy|insurance|cover|plan)`)

// EntityExtractor turns free-text claim queries into structured attributes
type EntityExtractor struct {
	logger *zap.Logger
}

// Option configures an EntityExtractor
type Option func(*EntityExtractor)

// WithLogger sets the logger used to report recovered field failures
func WithLogger(logger *zap.Logger) Option {
	return func(e *EntityExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEntityExtractor creates a new entity extractor
func NewEntityExtractor(opts ...Option) *EntityExtractor {
	e := &EntityExtractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never fails. A field whose extractor finds nothing, or panics,
// is left absent.
func (e *EntityExtractor) Extract(query string) model.ClaimAttributes {
	attrs := model.ClaimAttributes{RawQuery: query}
	text := strings.ToLower(query)

	e.safeField("age", func() { attrs.Age = extractAge(text) })
	e.safeField("gender", func() { attrs.Gender = extractGender(text) })
	e.safeField("location", func() { attrs.Location = extractLocation(text) })
	e.safeField("procedure", func() { attrs.Procedure = extractProcedure(text) })
	e.safeField("policy_duration", func() { attrs.PolicyDurationMonths = extractDuration(text) })
	e.safeField("is_emergency", func() { attrs.IsEmergency = detectEmergency(text) })

	e.logger.Debug("extracted claim attributes",
		zap.String("query", query),
		zap.Bool("has_age", attrs.Age != nil),
		zap.Bool("has_procedure", attrs.Procedure != nil),
		zap.Bool("has_location", attrs.Location != nil),
		zap.Bool("has_policy_duration", attrs.PolicyDurationMonths != nil),
		zap.Bool("is_emergency", attrs.IsEmergency))

	return attrs
}

func (e *EntityExtractor) safeField(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("field extraction failed",
				zap.String("field", name),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// KnownLocations returns the gazetteer in precedence order, title-cased
func KnownLocations() []string {
	out := make([]string, len(knownLocations))
	for i, loc := range knownLocations {
		out[i] = model.TitleCase(loc)
	}
	return out
}

// KnownProcedures returns the canonical procedure tags in precedence order
func KnownProcedures() []string {
	out := make([]string, len(procedureTable))
	for i, entry := range procedureTable {
		out[i] = entry.tag
	}
	return out
}

func extractAge(text string) *int {
	for _, re := range agePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if policySuffix.MatchString(text[m[1]:]) {
				continue
			}
			n, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil || n < 0 || n > MaxAge {
				continue
			}
			return model.IntPtr(n)
		}
	}
	return nil
}

func extractGender(text string) *string {
	for _, rule := range genderRules {
		if m := rule.male.FindString(text); m != "" {
			return model.StringPtr(model.NormalizeGender(genderToken(m)))
		}
		if m := rule.female.FindString(text); m != "" {
			return model.StringPtr(model.NormalizeGender(genderToken(m)))
		}
	}
	return nil
}

// genderToken strips the age digits and separators a gender rule may match
// around the word itself, so "46m" and " f," reduce to "m" and "f".
func genderToken(match string) string {
	return strings.Trim(match, "0123456789 \t,;.()/")
}

func extractLocation(text string) *string {
	for _, loc := range knownLocations {
		if strings.Contains(text, loc) {
			return model.StringPtr(model.TitleCase(loc))
		}
	}

	if best, score := bestMatch(tokens(text, 4), knownLocations); score >= FuzzyThreshold {
		return model.StringPtr(model.TitleCase(best))
	}
	return nil
}

func extractProcedure(text string) *string {
	for _, entry := range procedureTable {
		for _, variant := range entry.variants {
			if strings.Contains(text, variant) {
				return model.StringPtr(entry.tag)
			}
		}
	}

	variants, owner := flattenVariants()
	words := tokens(text, 1)

	var bigrams []string
	for i := 0; i+1 < len(words); i++ {
		bigrams = append(bigrams, words[i]+" "+words[i+1])
	}
	if best, score := bestMatch(bigrams, variants); score >= FuzzyThreshold {
		return model.StringPtr(owner[best])
	}

	var unigrams []string
	for _, w := range tokens(text, 4) {
		if !fuzzyStopwords[w] {
			unigrams = append(unigrams, w)
		}
	}
	if best, score := bestMatch(unigrams, variants); score >= FuzzyThreshold {
		return model.StringPtr(owner[best])
	}

	for _, m := range genericProcedure.FindAllStringSubmatch(text, -1) {
		if !genericStopwords[m[1]] {
			return model.StringPtr(m[1] + " " + m[2])
		}
	}
	return nil
}

func extractDuration(text string) *int {
	for _, p := range durationPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			months := n * p.multiplier
			if months < 0 || months > MaxPolicyMonths {
				continue
			}
			return model.IntPtr(months)
		}
	}
	return nil
}

func detectEmergency(text string) bool {
	for _, kw := range emergencyKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// flattenVariants lists every variant in table order with its owning tag
func flattenVariants() ([]string, map[string]string) {
	var variants []string
	owner := make(map[string]string)
	for _, entry := range procedureTable {
		for _, v := range entry.variants {
			variants = append(variants, v)
			owner[v] = entry.tag
		}
	}
	return variants, owner
}

// tokens splits on whitespace, trims surrounding punctuation and keeps
// tokens of at least minLen runes
func tokens(text string, minLen int) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-'
		})
		if len([]rune(f)) >= minLen {
			out = append(out, f)
		}
	}
	return out
}
