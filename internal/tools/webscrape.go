package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	scrapeMaxSelectorHits = 5
	scrapeMaxParagraphs   = 5
	scrapeMaxLinks        = 10
	scrapeSnippetLen      = 300
	scrapeParagraphLen    = 400
	scrapeAreaLen         = 800
)

// WebScrape extracts readable content from a web page.
type WebScrape struct {
	httpClient *http.Client
}

// NewWebScrape creates the tool.
func NewWebScrape() *WebScrape {
	return &WebScrape{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (t *WebScrape) Name() string { return "web_scraping" }

func (t *WebScrape) Description() string {
	return `Extrai informações de páginas web.

Use esta ferramenta para obter conteúdo de sites: notícias sobre agricultura, preços de commodities, informações técnicas ou qualquer conteúdo web relevante. Um seletor CSS opcional restringe a extração a elementos específicos.`
}

func (t *WebScrape) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "URL completa da página (ex: https://exemplo.com)"},
			"selector": {"type": "string", "description": "Seletor CSS opcional (ex: 'h1', '.classe', '#id')"},
			"extract_links": {"type": "boolean", "description": "Se deve listar os links da página"}
		},
		"required": ["url"]
	}`)
}

type webScrapeArgs struct {
	URL          string `json:"url"`
	Selector     string `json:"selector"`
	ExtractLinks bool   `json:"extract_links"`
}

func (t *WebScrape) Execute(ctx context.Context, args json.RawMessage) string {
	var a webScrapeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("Erro: argumentos inválidos para web_scraping: %v", err)
	}

	parsed, err := url.Parse(a.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "URL inválida. Por favor, forneça uma URL completa (ex: https://exemplo.com)"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fmt.Sprintf("Erro ao acessar a página: %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; lavra/1.0)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Erro de conexão ao acessar a página: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Erro HTTP %d ao acessar a página: %s", resp.StatusCode, a.URL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Sprintf("Erro ao interpretar o HTML da página: %v", err)
	}

	// Strip chrome so only readable content remains.
	doc.Find("script, style, nav, footer, aside").Remove()

	var parts []string

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, fmt.Sprintf("📄 Título: %s", title))
	}

	if a.Selector != "" {
		parts = append(parts, t.selectorContent(doc, a.Selector)...)
	} else {
		parts = append(parts, t.mainContent(doc)...)
	}

	if a.ExtractLinks {
		parts = append(parts, t.links(doc, parsed)...)
	}

	if len(parts) == 0 {
		return "Nenhum conteúdo legível encontrado na página."
	}
	return strings.Join(parts, "\n")
}

func (t *WebScrape) selectorContent(doc *goquery.Document, selector string) []string {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return []string{fmt.Sprintf("\n❌ Nenhum elemento encontrado com o seletor '%s'", selector)}
	}

	parts := []string{fmt.Sprintf("\n🎯 Conteúdo do seletor '%s':", selector)}
	count := 0
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return true
		}
		count++
		parts = append(parts, fmt.Sprintf("%d. %s", count, truncate(text, scrapeSnippetLen)))
		return count < scrapeMaxSelectorHits
	})
	return parts
}

func (t *WebScrape) mainContent(doc *goquery.Document) []string {
	var chunks []string

	doc.Find("main, article").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) > 50 {
			chunks = append(chunks, truncate(text, scrapeAreaLen))
		}
		return len(chunks) < 2
	})

	if len(chunks) == 0 {
		// Fallback: collect the first substantial paragraphs.
		doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if len(text) > 30 {
				chunks = append(chunks, truncate(text, scrapeParagraphLen))
			}
			return len(chunks) < scrapeMaxParagraphs
		})
	}

	if len(chunks) == 0 {
		return nil
	}

	parts := []string{"\n📝 Conteúdo principal:"}
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, c))
	}
	return parts
}

func (t *WebScrape) links(doc *goquery.Document, base *url.URL) []string {
	var entries []string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		label := strings.TrimSpace(s.Text())
		if label == "" {
			label = abs.String()
		}
		entries = append(entries, fmt.Sprintf("- %s: %s", truncate(label, 80), abs.String()))
		return len(entries) < scrapeMaxLinks
	})

	if len(entries) == 0 {
		return nil
	}
	return append([]string{"\n🔗 Links encontrados:"}, entries...)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
