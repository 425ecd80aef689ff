package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
	"time"
)

const guardrails = `REASONING & SAFETY GUARDRAILS:
- Acknowledge uncertainty instead of guessing outcomes.
- Never exaggerate impact or assume promotions, outcomes or recognition.
- Prefer factual summaries over persuasive language.
- Never fabricate achievements or evidence.`

var promptFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}

func mustPrompt(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(promptFuncs).Parse(text))
}

var classifyPrompt = mustPrompt("classify", `Role: CareerTrack autonomous career memory agent
Task: classify_entry

Interpret the user input as a raw work activity and output one structured memory object.

`+guardrails+`

Rules:
1. If the input is small talk or a direct request (e.g. "write my appraisal"), set is_off_task=true and give a short rejection_message explaining what to log instead.
2. If the input closely overlaps one of EXISTING ENTRIES, set duplicate_risk_detected=true, duplicate_of_id and a duplicate_confirmation_question offering "link to existing" or "log as new". Still fill in the entry fields.
3. category is exactly one of achievement, challenge, learning.
4. confidence_score: low when generic, vague or lacking a named system or target; medium when it names a task or service but no measurable outcome; high only with an explicit action, a named target and a measurable metric.
5. Only set timestamp when the input states when it happened.

Current time: {{rfc3339 .Now}}
User timezone: {{.Timezone}}
EXISTING ENTRIES (JSON): {{json .Existing}}

Input: {{json .Text}}
`)

var clarificationPrompt = mustPrompt("clarification", `Role: CareerTrack autonomous career memory agent (appraisal refiner)
Task: {{if .Reflection}}reflection_question{{else}}request_clarification{{end}}

{{if .Reflection}}The user skipped an earlier clarification for this entry. Ask again, differently, during the weekly reflection.{{else}}This entry was captured with LOW confidence because it is vague or lacks evidence.{{end}}

Entry Data: {{json .Entry}}

Generate exactly ONE question that extracts the single most valuable missing fact: a metric, a named outcome or a specific target.
- Answerable in one sentence.
- Polite, professional, at most 15 words.
`)

var attachPrompt = mustPrompt("attach", `Role: CareerTrack autonomous career memory agent
Task: attach_evidence

`+guardrails+`
- Do not assume the artifact implies more than it shows.

Determine which existing entry the artifact supports.
1. Parse the artifact: for URLs extract repository names, ticket ids and keywords.
2. Compare with each entry's raw text and summary.
3. Use the entry's signature to confirm the artifact proves that reasoning path.
4. If several entries match, prefer the one whose timestamp is closest to the artifact's context.
Set match_score to your certainty; is_match only for a convincing link.

ENTRIES CONTEXT (JSON): {{json .Entries}}

ARTIFACT:
Label: {{json .Label}}
Type: {{.MIMEType}}
{{if .Text}}Content: {{json .Text}}{{else}}Content: attached as inline data.{{end}}
`)

var reflectPrompt = mustPrompt("reflect", `Role: CareerTrack autonomous career memory agent
Task: weekly_reflection

`+guardrails+`

Review the entries below (the last {{.WindowDays}} days plus entries with pending user responses).
1. Merge entries describing the same workstream: keep one entry_id as the survivor and list the others in merged_from. Every input id must appear exactly once, either as an entry_id or in merged_from.
2. Weave any user_clarification_response (other than "skipped") into the impact_summary.
3. For entries whose user_clarification_response is "skipped", provide one reflection_question.
4. Keep skill tags consistent. Do not invent evidence.

Current Date: {{rfc3339 .Now}}
User Timezone: {{.Timezone}}
Memory to analyze (JSON): {{json .Entries}}
`)

var appraisalPrompt = mustPrompt("appraisal", `Role: CareerTrack autonomous career memory agent (senior performance analyst)
Task: generate_appraisal_summary

Generate an appraisal-ready summary using ONLY the stored memory below.
1. Cluster entries by themes and skills.
2. Identify business impact and ownership signals.
3. Highlight leadership and growth patterns.
4. Detect gaps and underrepresented areas, such as missing quantitative results.
5. Produce a concise, manager-ready narrative.

CONSTRAINTS:
- Do not invent achievements or exaggerate impact.
- Every key achievement must list the entry_ids it maps to.
- Prefer details from user_clarification_response when present.
- Entries with "verified": false are unverified: mention them in gap_analysis, never as confirmed achievements.

Career Memory (JSON): {{json .Entries}}
`)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
