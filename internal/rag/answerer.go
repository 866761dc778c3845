package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeme/heyme/internal/llm"
	"github.com/codeme/heyme/internal/retrieval"
	"github.com/codeme/heyme/internal/storage"
)

const systemPrompt = "You are an AI assistant that answers the user's questions based ONLY on the provided documents. " +
	"If the documents do not contain enough information, say you are not sure. " +
	"Be concise but clear."

const emptyContextText = "No relevant documents were found for this user."

// ChatClient produces chat completions. Satisfied by llm.Client.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []llm.Message) (string, error)
}

// TitleLookup resolves document metadata for source attribution.
// Satisfied by storage.Store.
type TitleLookup interface {
	GetDocument(id string) (storage.Document, error)
}

// Source identifies a document chunk that grounded an answer.
type Source struct {
	ID               string  `json:"id"`
	Title            string  `json:"title,omitempty"`
	OriginalFileName string  `json:"original_file_name,omitempty"`
	ChunkID          int     `json:"chunk_id"`
	Score            float32 `json:"score"`
}

// Response is the result of one retrieval-augmented question.
type Response struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

// Answerer runs the embed → search → chat pipeline for one question.
type Answerer struct {
	retriever *retrieval.Retriever
	chat      ChatClient
	docs      TitleLookup
	chatModel string
}

// NewAnswerer creates an Answerer over the given retriever and chat model.
func NewAnswerer(retriever *retrieval.Retriever, chat ChatClient, docs TitleLookup, chatModel string) *Answerer {
	return &Answerer{retriever: retriever, chat: chat, docs: docs, chatModel: chatModel}
}

// Answer retrieves the top-K most relevant chunks (optionally scoped to a
// document group) and asks the chat model to answer from them alone.
func (a *Answerer) Answer(ctx context.Context, question string, topK int, groupID string) (Response, error) {
	chunks, err := a.retriever.Retrieve(ctx, question, topK, groupID)
	if err != nil {
		return Response{}, fmt.Errorf("retrieving context: %w", err)
	}

	prompt := a.buildPrompt(question, chunks)
	answer, err := a.chat.Chat(ctx, a.chatModel, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return Response{}, fmt.Errorf("chat model: %w", err)
	}

	return Response{
		Question: question,
		Answer:   answer,
		Sources:  a.sourcesFor(chunks),
	}, nil
}

// buildPrompt formats retrieved chunks as numbered [doc#N | title] blocks
// below the question.
func (a *Answerer) buildPrompt(question string, chunks []retrieval.ContextChunk) string {
	var parts []string
	for i, ch := range chunks {
		title := a.titleFor(ch)
		parts = append(parts, fmt.Sprintf("[doc#%d | %s]\n%s", i+1, title, ch.Text))
	}
	contextText := emptyContextText
	if len(parts) > 0 {
		contextText = strings.Join(parts, "\n\n")
	}
	return fmt.Sprintf("User question:\n%s\n\nRelevant documents:\n%s", question, contextText)
}

func (a *Answerer) sourcesFor(chunks []retrieval.ContextChunk) []Source {
	sources := make([]Source, len(chunks))
	for i, ch := range chunks {
		s := Source{ID: ch.ID, ChunkID: ch.ChunkID, Score: ch.Score}
		if doc, err := a.docs.GetDocument(ch.DocumentID); err == nil {
			s.Title = doc.Title
			s.OriginalFileName = doc.OriginalFileName
		}
		sources[i] = s
	}
	return sources
}

func (a *Answerer) titleFor(ch retrieval.ContextChunk) string {
	doc, err := a.docs.GetDocument(ch.DocumentID)
	if err != nil {
		slog.Debug("document lookup failed for source attribution", "document_id", ch.DocumentID, "error", err)
		return ch.DocumentID
	}
	if doc.Title != "" {
		return doc.Title
	}
	if doc.OriginalFileName != "" {
		return doc.OriginalFileName
	}
	return ch.DocumentID
}
