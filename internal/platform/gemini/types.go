package gemini

import "google.golang.org/genai"

// promptData represents the data passed to the prompt template
type promptData struct {
	SourceLanguage string
	TargetLanguage string
}

// EntrySchema represents a single entry in the API response
type EntrySchema struct {
	SourceText    string `json:"sourceText"`
	SourceContext string `json:"sourceContext"`
	TargetText    string `json:"targetText"`
	TargetContext string `json:"targetContext"`
}

// responseSchema describes the JSON array the model must return
func responseSchema(source, target string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: "Flashcards mapping " + source + " words to " + target + " words",
		Items: &genai.Schema{
			Type:        genai.TypeObject,
			Description: "A flashcard mapping a " + source + " word to a " + target + " word, with usage context",
			Properties: map[string]*genai.Schema{
				"sourceText": {
					Type:        genai.TypeString,
					Description: "The word in " + source,
				},
				"sourceContext": {
					Type:        genai.TypeString,
					Description: "A sentence in " + source + " that uses the word",
				},
				"targetText": {
					Type:        genai.TypeString,
					Description: "The word in " + target + ", translated from the " + source + " word",
				},
				"targetContext": {
					Type:        genai.TypeString,
					Description: "The " + source + " sentence translated into " + target,
				},
			},
			Required:         []string{"sourceText", "sourceContext", "targetText", "targetContext"},
			PropertyOrdering: []string{"sourceText", "sourceContext", "targetText", "targetContext"},
		},
	}
}
