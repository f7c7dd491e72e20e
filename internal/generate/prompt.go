package generate

import (
	"encoding/json"
	"strings"
)

// questionsPromptTemplate instructs the generative backend to produce exactly
// three questions with four options each, framed around the positive facts in
// the supplied documents, as a bare JSON array.
const questionsPromptTemplate = `
# Role

You are an AI assistant tasked with generating educational and engaging quiz questions about crypto projects based on provided data.

# Instructions

1.  Your primary task is to read the provided data about a crypto project.
2.  Generate exactly **three (3) quiz questions** based _solely_ on the information within the data. Do not use any external knowledge.
3.  **Focus on Benefits and Confidence:**
    - Each question should be framed to highlight the **positive aspects, achievements, strengths, or the value the project provides** as described in the input data.
    - The goal is to help users learn about these benefits and thereby become more confident in the project and its tokens.
4.  **Question Structure:**
    - Each question must have **four (4) answer options**.
    - Exactly **one (1) option must be the correct answer**, directly verifiable from the data.
    - The other three options should be **plausible distractors** - relevant to the topic but clearly incorrect based on the data.
5.  **Output Format:**
    - The output must be a **JSON array** containing three question objects, with no surrounding prose.
    - Each question object must have the following keys:
      - "question": A string containing the question text.
      - "options": An array of four (4) strings representing the answer choices.
      - "answer": A string containing the correct answer, which must exactly match one of the strings in the "options" array.

# Project data

{{data}}
`

// buildPrompt renders the instruction template with the reference documents
// embedded as a JSON array.
func buildPrompt(docs []string) (string, error) {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(questionsPromptTemplate, "{{data}}", string(data)), nil
}
