package conversation

import (
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DemoSessionID is the reserved session id carried by seeded demo messages.
// Demo content must never coexist with live content; the engine sweeps it
// away once per lifetime.
const DemoSessionID = "demo-session"

// DefaultTopK is the retrieval depth sent with every question.
const DefaultTopK = 5

// displayTimeLayout is the short wall-clock format shown next to messages.
const displayTimeLayout = "15:04"

// Fixed user-facing texts.
const (
	GreetingText = "Hello! 👋\nI'm Hey Me, your personal AI agent. How can I help you today?"
	ClearedText  = "Chat history has been cleared. Start a new conversation!"
	ErrorText    = "⚠️ Something went wrong. Check your network connection and try again later."
	FallbackText = "Sorry, I couldn't generate a response."
)

// failedAnswerRecord is the answer text persisted for a failed turn.
const failedAnswerRecord = "Error response"

// Message is one entry in the conversation log.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	DisplayTime string    `json:"display_time"`
	SessionID   string    `json:"session_id,omitempty"`
}

// demoTexts is the deterministic seven-message demo conversation shown when
// no history exists yet. Roles alternate assistant/user starting with the
// greeting.
var demoTexts = []struct {
	role        Role
	text        string
	displayTime string
	ageSeconds  int
}{
	{RoleAssistant, GreetingText, "09:30", 3600},
	{RoleUser, "Can you tell me about the Code:Me platform?", "09:31", 3500},
	{RoleAssistant, "Of course! Code:Me is an AI-powered automation platform that provides Hey Me, a personal AI chatbot service.\n\nKey features:\n• Teach the AI by uploading your documents\n• A chatbot that answers for you around the clock\n• Accurate answers powered by RAG\n• Shareable chatbot links\n\nOnce it learns your information, the AI responds on your behalf!", "09:31", 3400},
	{RoleUser, "What kinds of files can I upload?", "09:33", 3200},
	{RoleAssistant, "A variety of text-based file formats are supported:\n\n📄 PDF - reports, papers, manuals\n📝 TXT - plain text files\n📋 MD - markdown documents\n📊 DOCX - Word documents\n\nUploaded files are indexed automatically so the AI can learn their contents and use them in answers. You can manage files from the upload page!", "09:33", 3100},
	{RoleUser, "What is RAG?", "09:35", 2900},
	{RoleAssistant, "RAG stands for \"Retrieval-Augmented Generation\".\n\n🔍 How it works:\n1. Analyze the user's question\n2. Search your uploaded documents for relevant information\n3. Generate an accurate answer grounded in what was found\n\n✨ Benefits:\n• Fewer hallucinations\n• Answers grounded in real documents\n• Traceable sources\n\nHey Me uses this technique to learn your documents and answer accurately!", "09:35", 2800},
}

// demoTranscript builds the seeded demo conversation with timestamps in the
// recent past, all tagged with the demo sentinel session id.
func demoTranscript(now time.Time) []Message {
	msgs := make([]Message, len(demoTexts))
	for i, d := range demoTexts {
		msgs[i] = Message{
			ID:          fmt.Sprintf("demo-%d", i+1),
			Role:        d.role,
			Text:        d.text,
			CreatedAt:   now.Add(-time.Duration(d.ageSeconds) * time.Second),
			DisplayTime: d.displayTime,
			SessionID:   DemoSessionID,
		}
	}
	return msgs
}
