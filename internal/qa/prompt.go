package qa

import (
	"strings"

	"sitebot/internal/ai"
)

const condenseInstruction = "Given the following conversation and a follow up question, " +
	"rephrase the follow up question to be a standalone question that can be understood " +
	"without the conversation. Keep it in the language of the follow up question. " +
	"Reply with the standalone question only."

const answerInstruction = "You are a helpful assistant for a website. " +
	"Answer the user's question based only on the following context. " +
	"If the context is not enough to answer, say \"I'm not sure\" translated into the language of the question, " +
	"and do not make anything up. Always reply in the same language as the question."

func condenseMessages(question string, history []Turn) []ai.ChatMessage {
	var b strings.Builder
	b.WriteString("Chat history:\n")
	for _, t := range history {
		b.WriteString("Human: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
		b.WriteString("\n")
	}
	b.WriteString("\nFollow up question: ")
	b.WriteString(question)
	b.WriteString("\n\nStandalone question:")

	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: condenseInstruction},
		{Role: ai.RoleUser, Content: b.String()},
	}
}

func answerMessages(question, context string) []ai.ChatMessage {
	userPrompt := "Context:\n" + context + "\n\nQuestion: " + question + "\n\nAnswer:"
	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: answerInstruction},
		{Role: ai.RoleUser, Content: userPrompt},
	}
}
