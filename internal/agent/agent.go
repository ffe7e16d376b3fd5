// Package agent runs the tool-calling loop that turns a farmer's question
// into an answer: chat history in, model and tool rounds in the middle,
// persisted answer out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lavrabot/lavra/internal/llm"
	"github.com/lavrabot/lavra/internal/storage"
)

const (
	// maxToolRounds bounds how many consecutive tool-call rounds the model
	// may request before the loop gives up.
	maxToolRounds = 8
	// historyWindow is how many past messages are replayed per session.
	historyWindow = 20
)

// ChatClient is the completion API the agent talks to.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.ChatResponse, error)
}

// ToolRunner supplies tool declarations and executes tool calls.
type ToolRunner interface {
	Definitions() []llm.ToolDef
	Execute(ctx context.Context, name string, args json.RawMessage) string
}

// History persists chat turns and answered interactions.
type History interface {
	AppendChatMessage(m storage.ChatMessage) error
	RecentChatMessages(sessionKey string, limit int) ([]storage.ChatMessage, error)
	SaveInteraction(i storage.Interaction) error
}

// Agent answers questions with model completions and tool calls.
type Agent struct {
	client  ChatClient
	tools   ToolRunner
	history History
	logger  *slog.Logger
}

// New creates an Agent.
func New(client ChatClient, tools ToolRunner, history History, logger *slog.Logger) *Agent {
	return &Agent{client: client, tools: tools, history: history, logger: logger}
}

// Answer runs the full loop for one question and persists the exchange.
func (a *Agent) Answer(ctx context.Context, sessionKey, question string) (string, error) {
	messages, err := a.buildMessages(sessionKey, question)
	if err != nil {
		return "", err
	}

	answer, err := a.runLoop(ctx, messages)
	if err != nil {
		a.saveInteraction(sessionKey, question, "", "failed")
		return "", err
	}

	a.persistTurn(sessionKey, question, answer)
	return answer, nil
}

func (a *Agent) buildMessages(sessionKey, question string) ([]llm.Message, error) {
	past, err := a.history.RecentChatMessages(sessionKey, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("loading chat history: %w", err)
	}

	messages := make([]llm.Message, 0, len(past)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(time.Now())})
	for _, m := range past {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})
	return messages, nil
}

func (a *Agent) runLoop(ctx context.Context, messages []llm.Message) (string, error) {
	defs := a.tools.Definitions()

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.client.Chat(ctx, messages, defs)
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		a.logger.Debug("tool round", "round", round, "calls", len(msg.ToolCalls))
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			result := a.tools.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("tool loop did not converge after %d rounds", maxToolRounds)
}

// persistTurn records both sides of the exchange. Persistence failures are
// logged and swallowed; the farmer already has the answer in hand.
func (a *Agent) persistTurn(sessionKey, question, answer string) {
	if err := a.history.AppendChatMessage(storage.ChatMessage{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Role:       llm.RoleUser,
		Content:    question,
	}); err != nil {
		a.logger.Error("saving user message", "error", err)
	}
	if err := a.history.AppendChatMessage(storage.ChatMessage{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Role:       llm.RoleAssistant,
		Content:    answer,
	}); err != nil {
		a.logger.Error("saving assistant message", "error", err)
	}
	a.saveInteraction(sessionKey, question, answer, "answered")
}

func (a *Agent) saveInteraction(sessionKey, question, answer, status string) {
	if err := a.history.SaveInteraction(storage.Interaction{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Question:   question,
		Answer:     answer,
		Status:     status,
	}); err != nil {
		a.logger.Error("saving interaction", "error", err)
	}
}

// systemPrompt returns the agent persona with the current date filled in, so
// "esta semana" and "este mês" resolve correctly.
func systemPrompt(now time.Time) string {
	return fmt.Sprintf(`Você é um assistente técnico agrícola virtual. Seu objetivo é ajudar pequenos agricultores e produtores familiares a tomar decisões informadas, traduzindo dados complexos dos sensores da lavoura em conselhos práticos e fáceis de entender.
Seja sempre claro, direto e use uma linguagem simples, evitando jargões. Mantenha suas respostas concisas, idealmente em até três frases, para facilitar a leitura no campo.

Você tem acesso às seguintes ferramentas para consultar dados:

1) kb_search - Para buscar informações na base de conhecimento sobre:
   - Boas práticas agrícolas (técnicas de plantio, controle de pragas, irrigação)
   - Informações técnicas sobre culturas e cultivo
   - Documentos de referência sobre agricultura

2) sensor_sql - Para consultar dados dos sensores no banco de dados:
   - Dados históricos de umidade, pH, temperatura, NPK dos sensores
   - Análise de tendências e médias dos parâmetros do solo
   - Dados específicos por período de tempo

3) weather_search - Para obter informações meteorológicas:
   - Condições climáticas atuais (temperatura, umidade do ar, chuva)
   - Dados que podem afetar o planejamento agrícola

4) web_scraping - Para buscar informações atuais na internet:
   - Preços de commodities agrícolas
   - Notícias sobre agricultura e mercado
   - Informações técnicas de sites especializados

INFORMAÇÕES IMPORTANTES SOBRE DATA E TEMPO:
- Data atual: %s
- Mês/Ano atual: %s
- Ano atual: %d
- Quando o usuário mencionar 'esta semana' ou 'este mês', use a data atual como referência.

EXEMPLOS DE USO DAS FERRAMENTAS:
- Para "Qual foi a média de umidade do solo na semana passada?" use sensor_sql
- Para "Como devo fazer o controle de pragas no milho?" use kb_search
- Para "Qual o clima hoje?" use weather_search
- Para "Qual o preço atual do milho?" use web_scraping`,
		now.Format("02/01/2006"), now.Format("01/2006"), now.Year())
}
