package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/farmassist/go-pharmacy-backend/internal/domain"
)

// Prompt roles understood by the chat-completion capability.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptMessage is one turn of the message sequence sent to the model.
type PromptMessage struct {
	Role    string
	Content string
}

// Completer is the external chat-completion capability. Implementations live
// at the transport boundary (see internal/llm); failures propagate verbatim.
type Completer interface {
	Complete(ctx context.Context, msgs []PromptMessage) (string, error)
}

// ProductSource supplies the full current catalog. The whole catalog is
// always considered; no pagination applies on this path.
type ProductSource interface {
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
}

// HistorySource supplies the most recent messages of a session ordered
// oldest→newest.
type HistorySource interface {
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
}

// Indexer supplies a ready similarity index for the given catalog.
type Indexer interface {
	GetOrCreate(ctx context.Context, products []domain.Product) (*Index, error)
}

const (
	defaultHistoryLimit = 15
	defaultTopK         = 5

	// noMatchContext is substituted when similarity search returns nothing,
	// so the model is told explicitly that a search happened and came back
	// empty rather than being given no context at all.
	noMatchContext = "No se encontraron productos relevantes para esta consulta."

	systemPrompt = `Eres el asistente virtual de una farmacia. Ayudas a los clientes a encontrar productos del catálogo y respondes dudas sobre su uso.

Reglas:
- Recomienda productos únicamente por su nombre exacto tal como aparece en el catálogo.
- Incluye las advertencias y contraindicaciones del producto cuando sean relevantes para la consulta.
- Si la consulta excede lo que puede resolver una farmacia, indica al cliente que consulte a un profesional de la salud.
- Responde siempre en el idioma en el que escribe el cliente.`

	titlePrompt = `Resume el siguiente mensaje en un título corto de máximo 5 palabras, sin comillas ni punto final.`
)

// Responder produces grounded answers for chat turns. It reads conversation
// history and the product catalog through narrow collaborator interfaces,
// retrieves relevant products from the vector index, and delegates the final
// wording to the chat-completion capability.
//
// Responder never persists anything: storing the resulting bot message is the
// caller's responsibility, and any failure along the pipeline propagates to
// the caller unmodified — there is no fallback answer.
type Responder struct {
	Products ProductSource
	History  HistorySource
	Index    Indexer
	Embedder Embedder
	LLM      Completer

	// HistoryLimit caps the prior messages included in the prompt (default 15).
	HistoryLimit int
	// TopK is the number of retrieved products included as context (default 5).
	TopK int
}

// GenerateResponse answers one user turn in one session.
//
// Pipeline: load recent history, obtain the current index (building it only
// when no persisted artifact exists), retrieve the top-K products for the
// user message, and assemble system prompt + context + chronological history
// + the new message for the model. The model's text is returned verbatim.
func (r *Responder) GenerateResponse(ctx context.Context, sessionID, userMessage string) (string, error) {
	history, err := r.History.RecentMessages(ctx, sessionID, r.historyLimit())
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	matches, err := r.retrieve(ctx, userMessage)
	if err != nil {
		return "", err
	}

	msgs := make([]PromptMessage, 0, len(history)+2)
	msgs = append(msgs, PromptMessage{
		Role:    RoleSystem,
		Content: systemPrompt + "\n\n" + contextBlock(matches),
	})
	for _, h := range history {
		role := RoleUser
		if h.Sender == domain.SenderBot {
			role = RoleAssistant
		}
		msgs = append(msgs, PromptMessage{Role: role, Content: h.Message})
	}
	msgs = append(msgs, PromptMessage{Role: RoleUser, Content: userMessage})

	reply, err := r.LLM.Complete(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("complete response: %w", err)
	}
	return reply, nil
}

// GenerateTitle produces a short label (at most a few words) for a new
// session. A single pair of surrounding double quotes — a common model
// formatting artifact — is stripped from the result.
func (r *Responder) GenerateTitle(ctx context.Context, userMessage string) (string, error) {
	out, err := r.LLM.Complete(ctx, []PromptMessage{
		{Role: RoleSystem, Content: titlePrompt},
		{Role: RoleUser, Content: userMessage},
	})
	if err != nil {
		return "", fmt.Errorf("complete title: %w", err)
	}
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, `"`)
	out = strings.TrimSuffix(out, `"`)
	return strings.TrimSpace(out), nil
}

// retrieve runs the similarity search for a user message. An empty catalog
// yields zero matches (the index manager reports ErrEmptyCorpus, which is
// "nothing to index yet", not a failure of the chat turn).
func (r *Responder) retrieve(ctx context.Context, userMessage string) ([]Match, error) {
	products, err := r.Products.ListAllProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	ix, err := r.Index.GetOrCreate(ctx, products)
	if err != nil {
		if errors.Is(err, ErrEmptyCorpus) {
			return nil, nil
		}
		return nil, fmt.Errorf("obtain index: %w", err)
	}

	vecs, err := r.Embedder.EmbedBatch(ctx, []string{userMessage})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, ErrEmbeddingCount
	}
	return ix.Search(vecs[0], r.topK()), nil
}

// contextBlock renders retrieved products as a numbered list, or the explicit
// no-relevant-products sentence when the search came back empty.
func contextBlock(matches []Match) string {
	if len(matches) == 0 {
		return noMatchContext
	}
	var b strings.Builder
	b.WriteString("Productos disponibles en la farmacia:\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Unit.Text)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (r *Responder) historyLimit() int {
	if r.HistoryLimit > 0 {
		return r.HistoryLimit
	}
	return defaultHistoryLimit
}

func (r *Responder) topK() int {
	if r.TopK > 0 {
		return r.TopK
	}
	return defaultTopK
}
