package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// Fixed chatbot texts.
const (
	ApologyMessage   = "I'm sorry, I couldn't process your request. Please try again."
	ClosingMessage   = "Thank you for taking the time to share how things are going. That's all my questions for today, and your responses will help us support you better. Take care!"
	GreetingFallback = "Hi %s! Thanks for checking in today. How are you feeling, and what's your vibe today?"
)

// noContradiction is the reply the contradiction prompt asks for when nothing conflicts.
const noContradiction = "None"

// CompletionRequest is one system/user prompt pair sent to the completion service.
type CompletionRequest struct {
	System string
	User   string
}

func (r CompletionRequest) run(ctx context.Context, c Completer) (string, error) {
	return c.GeneratePromptWithContext(ctx, r.System, r.User)
}

// FormatTranscript renders turns as "Chatbot: ..." / "Employee: ..." lines.
func FormatTranscript(turns []models.Message) string {
	var b strings.Builder
	for i, m := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := "Chatbot"
		if m.SenderType == models.SenderEmployee {
			role = "Employee"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func contradictionRequest(utterance string, history []models.Message) CompletionRequest {
	return CompletionRequest{
		System: "You are a helpful assistant that detects contradictions in a conversation. " +
			"Your job is to analyze the user's most recent message and determine if it contradicts any of their previous responses. " +
			"Only respond with a clear follow-up question if a contradiction exists, or respond with the exact word 'None' if there is no contradiction. " +
			"Do not include any explanation, reasoning, or additional text, just the follow-up question or 'None'.",
		User: fmt.Sprintf(`Conversation so far:
%s

New user message:
"%s"

Analyze the user's response based on the context above.

If there is a contradiction with any earlier response:
- Return ONLY a clear and concise follow-up question to clarify the contradiction.

If there is NO contradiction:
- Return EXACTLY 'None' and nothing else.

Do not explain or include any other text. Just return the follow-up question or 'None'.`, FormatTranscript(history), utterance),
	}
}

func followUpRequest(utterance string) CompletionRequest {
	return CompletionRequest{
		System: "You are a thoughtful assistant skilled in asking meaningful follow-up questions that deepen conversations. " +
			"Your job is to generate exactly ONE insightful follow-up question based on the user's latest response. " +
			"Return only the question. Do not include any introductions, explanations, or additional text. " +
			"The question should encourage deeper thinking and explore a different angle from the user's previous response.",
		User: fmt.Sprintf(`User's latest response:
"%s"

Generate exactly one thoughtful follow-up question:
- It should dig deeper or explore a new angle of the user's input.
- Do not repeat the user's wording exactly.
- Do not add any commentary or explanation, just return the question as plain text.`, utterance),
	}
}

func selectionRequest(history []models.Message, remaining []string) CompletionRequest {
	var list strings.Builder
	for _, q := range remaining {
		list.WriteString("- ")
		list.WriteString(q)
		list.WriteByte('\n')
	}
	return CompletionRequest{
		System: "You are an intelligent assistant that guides a conversation by selecting the most relevant next question from a given list. " +
			"You must consider the flow of the conversation and choose the most contextually appropriate question. " +
			"Return only the selected question as plain text. Do not include any explanation, commentary, or formatting.",
		User: fmt.Sprintf(`Here is the conversation so far:
%s

Choose the most relevant next question from the list below:
%s
Instructions:
- Return ONLY the selected question, copied exactly as written.
- DO NOT include any explanation or extra text.
- Return the question as plain text only.`, FormatTranscript(history), list.String()),
	}
}

func summaryRequest(attributes string) CompletionRequest {
	return CompletionRequest{
		System: "You are an HR assistant AI. Given an employee's data (like promotion, holidays, work hours, mood), " +
			"generate a short and professional summary (2-3 sentences) that reflects their work experience, satisfaction, and potential concerns. " +
			"Focus the description on the problems of the employee.",
		User: "Employee details: " + attributes,
	}
}

func greetingRequest(name string) CompletionRequest {
	return CompletionRequest{
		System: "You are a friendly HR check-in assistant. Reply with the greeting only.",
		User:   fmt.Sprintf("Generate a greeting message for %s and ask about their vibe today.", name),
	}
}

func insightsRequest(employeeName string, turns []models.Message) CompletionRequest {
	return CompletionRequest{
		System: "You are an HR analyst summarizing employee check-in conversations.",
		User: fmt.Sprintf(`Here is a conversation between the employee (%s) and a chatbot:

%s

Generate detailed insights based on this conversation:
- Identify the employee's mood, concerns, and sentiments.
- Highlight key issues or recurring themes.
- Provide suggestions or recommendations to improve the situation.
- Format the insights in a clear and organized manner.`, employeeName, FormatTranscript(turns)),
	}
}
