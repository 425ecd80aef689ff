package llm

import "google.golang.org/genai"

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func strList(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: desc}
}

var classifySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_off_task":                     {Type: genai.TypeBoolean, Description: "True when the input is not a loggable work activity (small talk, or a request such as 'write my appraisal')."},
		"rejection_message":               str("Polite guidance shown to the user when is_off_task is true."),
		"duplicate_risk_detected":         {Type: genai.TypeBoolean, Description: "True when the input closely overlaps one of the existing entries."},
		"duplicate_confirmation_question": str("Question asking whether to link to the existing entry or log a new one."),
		"duplicate_of_id":                 str("id of the overlapping existing entry."),
		"thought_signature":               str("Short reasoning signature for long-term continuity, e.g. 'ci-reliability-ownership'."),
		"timestamp":                       str("ISO 8601 time the activity happened, only if stated in the input."),
		"raw_input":                       str("The original text provided by the user."),
		"category":                        {Type: genai.TypeString, Enum: []string{"achievement", "challenge", "learning"}},
		"skills":                          strList("Specific skills demonstrated."),
		"impact_summary":                  str("Concise, conservative impact summary. Acknowledge missing information; never assume outcomes."),
		"confidence_score":                {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}, Description: "low: generic or no named target. medium: names a task or service but no measurable outcome. high: action, named target and a metric."},
		"evidence_links":                  strList("Links or references present in the input."),
	},
	Required: []string{"is_off_task", "duplicate_risk_detected"},
}

var clarificationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"question": str("Exactly one question, at most 15 words, asking for a missing metric, named outcome or target."),
	},
	Required: []string{"question"},
}

var attachSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"match_id":             str("id of the most relevant entry. Provide the most likely id even if is_match is false."),
		"is_match":             {Type: genai.TypeBoolean, Description: "True only if a convincing logical link exists between the artifact and the entry."},
		"suggested_confidence": {Type: genai.TypeString, Enum: []string{"medium", "high"}},
		"reasoning":            str("Brief reasoning for why the artifact supports or does not support the entry."),
		"match_score":          {Type: genai.TypeNumber, Description: "Match certainty from 0 to 1."},
	},
	Required: []string{"match_id", "is_match", "suggested_confidence", "reasoning", "match_score"},
}

var reflectSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"refined_entries": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"entry_id":            str("id of the surviving entry. Must be one of the input ids."),
					"merged_from":         strList("ids of other input entries folded into this one."),
					"thought_signature":   str("Reasoning signature."),
					"raw_input":           str("Concatenated or summarized raw input for merged entries."),
					"category":            {Type: genai.TypeString, Enum: []string{"achievement", "challenge", "learning"}},
					"skills":              strList("Skills of the entry."),
					"impact_summary":      str("Refined conservative impact summary, weaving in any user clarification response."),
					"confidence_score":    {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}},
					"reflection_question": str("Only for entries whose user_clarification_response is 'skipped': one short question."),
				},
				Required: []string{"entry_id", "category", "impact_summary", "confidence_score"},
			},
		},
		"reflection_summary": str("What was merged, what was refined, and any patterns detected."),
		"change_log": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"action":    str("merge, refine, question or note."),
					"entry_ids": strList("Entries concerned."),
					"detail":    str("One sentence."),
				},
				Required: []string{"action", "detail"},
			},
		},
	},
	Required: []string{"refined_entries", "reflection_summary"},
}

var appraisalSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"executive_summary": str("2-3 sentence overview of performance and trajectory."),
		"key_achievements": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"narrative": str("Manager-ready narrative of one verified achievement."),
					"entry_ids": strList("ids of the stored entries this claim maps to."),
				},
				Required: []string{"narrative", "entry_ids"},
			},
		},
		"skills_and_growth":     str("Leadership patterns, technical growth and skill clusters."),
		"areas_for_development": strList("Improvement areas drawn from challenges and learnings."),
		"gap_analysis":          str("Underrepresented areas and missing metrics or evidence, including unverified entries."),
	},
	Required: []string{"executive_summary", "key_achievements", "skills_and_growth", "areas_for_development", "gap_analysis"},
}
