package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/callsmith-ai/callsmith/internal/knowledge"
)

// EndCallPhrases trigger the end-of-call confirmation when heard as a
// case-insensitive substring of a user utterance.
var EndCallPhrases = []string{
	"end call",
	"end the call",
	"goodbye",
	"good day",
	"bye",
	"quit",
	"stop",
	"hang up",
	"end conversation",
	"that's all",
	"thank you bye",
	"thanks bye",
	"stop the call",
	"leave me alone",
	"thank you",
}

// Canned replies. The engine answers with these directly, without a model
// round trip.
// Greeting opens every call before the first caller utterance.
const Greeting = "Hello! I'm calling from Toshal Infotech. Is this a good time to talk?"

const (
	replyClarify        = "I didn't catch that. Could you please repeat?"
	replyConfirmEnd     = "Would you like to end our conversation?"
	replyFarewell       = "Thank you for your time. The call has ended."
	replyNoBooking      = "Thank you for your time. However, there was an issue with the email provided."
	replyModelTrouble   = "I apologize, but I'm having trouble processing that. Could you please repeat?"
	replyFarewellOnFail = "Thank you for your time. Have a great day!"
)

const systemPromptTemplate = `You are an AI sales agent for Toshal Infotech, a technology consulting company.
You've already introduced yourself at the start of the call, so never introduce yourself again and never open with Hello or Hi.
Your role is to understand client needs and guide them toward our solutions.

Available Services:
- Custom Software Development: Building tailored software solutions for businesses
- Web Development: Creating modern, responsive websites and web applications
- Mobile App Development: Developing iOS and Android applications
- Cloud Solutions: Cloud migration, hosting, and infrastructure management
- Digital Transformation: Helping businesses modernize their digital processes
- IT Consulting: Strategic technology planning and implementation

Industries We Serve: Healthcare, Finance, Education, Retail, Manufacturing, Technology

Objectives:
- Must gather client information (E-mail, Name, Company name)
- Understand requirements through natural conversation before suggesting a meeting
- Qualify the lead before pushing for an appointment
- Match client needs with relevant services
- Suggest a consultation only if the prospect shows interest
- Never talk about prices unless the user asks

Strict Guidelines:
- Keep responses concise, natural, and at most one or two lines unless asked for detail
- Ask only one question at a time, including when requesting client details
- Do not ask for the same details repeatedly, except for Email, Name, or Company Name
- If the prospect is clearly not interested, acknowledge it and exit professionally

Important Rules for Entities:
1. Always include ALL fields, even if they are null.
2. Always use double quotes for ALL strings and property names.
3. Always include the complete JSON object.
4. Requirements must always be an array, even if empty.
5. Dates must be in "DD-MM-YYYY" format and times in "HH:MM" 24-hour format.
6. Never add any text after [[END_ENTITIES]].

Example of valid entities:
[[ENTITIES]]
{"entities": {"name": "identified name or null", "email": "identified email or null", "company_name": "identified company or null", "requirements": ["requirement1"], "meeting_date": "identified date or null", "meeting_time": "identified time or null", "industry": "identified industry or null"}}
[[END_ENTITIES]]

Consider today's date as %s and the time as %s.
If the user says "Tomorrow", "Day After Tomorrow", "Next <DAY_NAME>" or "This <DAY_NAME>" instead of a date, resolve it relative to today and save it in "DD-MM-YYYY" format.`

// DefaultSystemPrompt renders the stock sales prompt with the current date
// and time, so relative dates spoken by the caller resolve correctly.
func DefaultSystemPrompt(now time.Time) string {
	return fmt.Sprintf(systemPromptTemplate, now.Format("02-01-2006"), now.Format("3:04 PM"))
}

// buildTurnPrompt wraps the user's utterance with the current entity snapshot
// and the echo instructions the extractor depends on. Retrieved knowledge, if
// any, is included so the model can ground its answer.
func buildTurnPrompt(userInput, entitySnapshot string, ctx knowledge.Result) string {
	var b strings.Builder
	b.WriteString(userInput)
	b.WriteString("\n\n")
	if !ctx.Empty() {
		b.WriteString("Relevant company knowledge:\n")
		for i, chunk := range ctx.Chunks {
			fmt.Fprintf(&b, "- %s (%s p.%d)\n", chunk, ctx.Sources[i], ctx.PageNumbers[i])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Current entities state: {\"entities\": %s}\n", entitySnapshot)
	b.WriteString("Important: Update and include all entities in your response after the [[ENTITIES]] tag, " +
		"even if they haven't changed. Use format:\n" +
		"Your response text\n" +
		"[[ENTITIES]]\n" +
		`{"entities": {...}}` + "\n" +
		"[[END_ENTITIES]]")
	return b.String()
}

// matchesEndPhrase reports whether input contains any end-intent phrase.
func matchesEndPhrase(input string) bool {
	lower := strings.ToLower(input)
	for _, phrase := range EndCallPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// isAffirmative reports whether input confirms a pending end request.
func isAffirmative(input string) bool {
	lower := strings.ToLower(input)
	return strings.Contains(lower, "yes") || strings.Contains(lower, "okay")
}
