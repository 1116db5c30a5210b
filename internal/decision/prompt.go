package decision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// SystemInstruction is sent as the system message with every decision request
const SystemInstruction = "You are an expert insurance claim analyst. Always respond with valid JSON."

const notSpecified = "Not specified"

// BuildPrompt renders the claim facts, the retrieved clauses, the decision
// rubric and the required JSON output shape into a single user message
func BuildPrompt(attrs model.ClaimAttributes, clauses []model.RetrievedClause) string {
	var b strings.Builder

	b.WriteString("You are an expert insurance claim analyst. Analyze the following claim and determine if it should be approved based on the policy clauses provided.\n\n")

	b.WriteString("CLAIM DETAILS:\n")
	fmt.Fprintf(&b, "- Patient Age: %s\n", intOrPlaceholder(attrs.Age))
	fmt.Fprintf(&b, "- Gender: %s\n", stringOrPlaceholder(attrs.Gender))
	fmt.Fprintf(&b, "- Medical Procedure: %s\n", stringOrPlaceholder(attrs.Procedure))
	fmt.Fprintf(&b, "- Treatment Location: %s\n", stringOrPlaceholder(attrs.Location))
	if attrs.PolicyDurationMonths != nil {
		fmt.Fprintf(&b, "- Policy Duration: %d months\n", *attrs.PolicyDurationMonths)
	} else {
		fmt.Fprintf(&b, "- Policy Duration: %s\n", notSpecified)
	}
	fmt.Fprintf(&b, "- Emergency Case: %s\n\n", yesNo(attrs.IsEmergency))

	b.WriteString("RELEVANT POLICY CLAUSES:\n")
	if len(clauses) == 0 {
		b.WriteString("(No policy clauses were retrieved)\n")
	}
	for i, c := range clauses {
		section := c.Section
		if section == "" {
			section = "Unknown Section"
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n %s\n", section, c.Text)
	}

	b.WriteString(`
ANALYSIS INSTRUCTIONS:
1. Check age eligibility (typically 18-50 for standard coverage)
2. Verify policy duration requirements:
   - Emergency procedures: Immediate coverage
   - Elective surgeries: Typically require 2+ months
   - Specific procedures may have longer waiting periods
3. Confirm procedure is covered
4. Assess location coverage (Tier 1 cities usually 100%, others 70-80%)
5. Identify any exclusions or special conditions

DECISION CRITERIA:
- If ALL requirements are met -> APPROVE
- If ANY critical requirement fails -> REJECT
- If information is insufficient -> REJECT with explanation

OUTPUT FORMAT (Must be valid JSON):
{
    "approved": true or false,
    "amount": estimated_claim_amount_in_rupees or null,
    "reasoning": "Clear, concise explanation referencing specific policy sections",
    "relevant_clauses": ["List of policy section names used in decision"],
    "confidence": "high" or "medium" or "low",
    "risk_factors": ["List any concerns, missing info, or edge cases"]
}

IMPORTANT RULES:
- Be strict in applying policy requirements
- Always reference specific policy sections in reasoning
- If age is outside 18-50, note this as a risk factor
- If policy duration is insufficient, reject the claim
- If procedure is not explicitly covered, reject
- For emergency cases, waive waiting period requirements
- Estimate claim amounts based on typical costs mentioned in policy
- Use "high" confidence only when all information is clear
- Use "low" confidence if critical information is missing

Provide your analysis as a valid JSON object: `)

	return b.String()
}

func intOrPlaceholder(v *int) string {
	if v == nil {
		return notSpecified
	}
	return strconv.Itoa(*v)
}

func stringOrPlaceholder(v *string) string {
	if v == nil || *v == "" {
		return notSpecified
	}
	return *v
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
