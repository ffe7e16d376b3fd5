package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lavrabot/lavra/internal/retrieval"
)

// kbSearchDefaultK is how many snippets a search returns unless the model
// asks for more.
const kbSearchDefaultK = 3

const msgNoDocs = "Não foram encontradas informações relevantes nos documentos."

// Searcher is the retrieval capability KBSearch delegates to.
type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Snippet, error)
}

// KBSearch lets the model search the ingested knowledge base.
type KBSearch struct {
	searcher Searcher
}

// NewKBSearch creates the tool on top of searcher.
func NewKBSearch(searcher Searcher) *KBSearch {
	return &KBSearch{searcher: searcher}
}

func (t *KBSearch) Name() string { return "kb_search" }

func (t *KBSearch) Description() string {
	return `Busca informações nos documentos técnicos da base de conhecimento (manuais de manejo, boletins agronômicos, materiais da associação).

Use esta ferramenta quando a pergunta envolver práticas agrícolas, recomendações de manejo ou qualquer conteúdo dos documentos ingeridos.`
}

func (t *KBSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Texto da busca"},
			"k": {"type": "integer", "description": "Quantidade de trechos a retornar (padrão 3)"}
		},
		"required": ["query"]
	}`)
}

type kbSearchArgs struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (t *KBSearch) Execute(ctx context.Context, args json.RawMessage) string {
	var a kbSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("Erro: argumentos inválidos para kb_search: %v", err)
	}
	if a.Query == "" {
		return "Erro: o campo query é obrigatório."
	}
	if a.K <= 0 {
		a.K = kbSearchDefaultK
	}

	snippets, err := t.searcher.Retrieve(ctx, a.Query, a.K)
	if err != nil {
		return fmt.Sprintf("Erro ao buscar nos documentos: %v", err)
	}
	if len(snippets) == 0 {
		return msgNoDocs
	}

	// Snippets go to the model in full; truncating here would hide exactly
	// the detail the model was asked to find.
	var b strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&b, "Resultado %d:\n%s\n", i+1, strings.TrimSpace(s.Text))
		if i < len(snippets)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
