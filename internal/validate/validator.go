package validate

import "github.com/ppiankov/claimcheck/internal/model"

// Field names reported in Completeness.MissingFields, in reporting order
const (
	FieldAge            = "age"
	FieldProcedure      = "procedure"
	FieldLocation       = "location"
	FieldPolicyDuration = "policy_duration"
)

// Validate reports which decision-relevant attributes are present.
// Gender and the emergency flag never affect completeness.
func Validate(attrs model.ClaimAttributes) model.Completeness {
	c := model.Completeness{
		HasAge:            attrs.Age != nil,
		HasProcedure:      attrs.Procedure != nil,
		HasLocation:       attrs.Location != nil,
		HasPolicyDuration: attrs.PolicyDurationMonths != nil,
		MissingFields:     MissingFields(attrs),
	}
	c.IsComplete = c.HasAge && c.HasProcedure && c.HasLocation && c.HasPolicyDuration
	return c
}

// MissingFields lists absent attributes in the order age, procedure,
// location, policy_duration. The result is never nil.
func MissingFields(attrs model.ClaimAttributes) []string {
	missing := []string{}
	if attrs.Age == nil {
		missing = append(missing, FieldAge)
	}
	if attrs.Procedure == nil {
		missing = append(missing, FieldProcedure)
	}
	if attrs.Location == nil {
		missing = append(missing, FieldLocation)
	}
	if attrs.PolicyDurationMonths == nil {
		missing = append(missing, FieldPolicyDuration)
	}
	return missing
}
