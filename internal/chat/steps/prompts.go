package steps

func promptIntent(query string, summary string, recent string) (system string, user string) {
	system = `You are the intent analyzer for an internal documentation assistant.
Classify the user's latest message and plan the retrieval step.
Return ONLY JSON matching the schema.
needs_retrieval is false only for greetings, thanks, and pure small talk.
search_focus holds 1-4 short search phrases when retrieval is needed.
alias_candidates holds pairs of terms the conversation treats as the same thing
(project nicknames, team shorthand). Only include pairs stated or strongly
implied in the conversation.
context_summary is a fresh <=400 char summary of the whole conversation
including this message.`
	user = "Conversation summary so far:\n" + summary + "\n\n" +
		"Recent messages:\n" + recent + "\n\n" +
		"Latest user message:\n" + query
	return system, user
}

func schemaIntent() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intent_type": map[string]any{
				"type": "string",
				"enum": []any{"greeting", "team_inquiry", "procedure", "diagnostic", "code_request", "explanation", "followup", "other"},
			},
			"conversation_type": map[string]any{
				"type": "string",
				"enum": []any{"casual", "informational", "task"},
			},
			"needs_retrieval": map[string]any{"type": "boolean"},
			"search_focus": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"response_style": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"format": map[string]any{"type": "string", "enum": []any{"prose", "steps", "list", "code"}},
					"depth":  map[string]any{"type": "string", "enum": []any{"brief", "normal", "detailed"}},
				},
				"required":             []any{"format", "depth"},
				"additionalProperties": false,
			},
			"mentioned_entities": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"people": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"teams":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"tools":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required":             []any{"people", "teams", "tools"},
				"additionalProperties": false,
			},
			"unresolved_questions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"context_summary": map[string]any{"type": "string"},
			"alias_candidates": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"term_a": map[string]any{"type": "string"},
						"term_b": map[string]any{"type": "string"},
					},
					"required":             []any{"term_a", "term_b"},
					"additionalProperties": false,
				},
			},
		},
		"required": []any{"intent_type", "conversation_type", "needs_retrieval", "search_focus",
			"response_style", "mentioned_entities", "unresolved_questions", "context_summary", "alias_candidates"},
		"additionalProperties": false,
	}
}

func promptReview(query string, chunks string, answer string) (system string, user string) {
	system = `You review a drafted answer against the retrieved source chunks.
Return ONLY JSON matching the schema.
Set needs_revision=true only when the answer claims no information exists while
the chunks clearly contain it, or when the answer contradicts a cited chunk.
Stylistic issues are not grounds for revision.`
	user = "User question:\n" + query + "\n\n" +
		"Retrieved chunks:\n" + chunks + "\n\n" +
		"Drafted answer:\n" + answer
	return system, user
}

func schemaReview() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"needs_revision": map[string]any{"type": "boolean"},
			"reason":         map[string]any{"type": "string"},
		},
		"required":             []any{"needs_revision", "reason"},
		"additionalProperties": false,
	}
}
