package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// QueryGuard is the guarded query pipeline the SQL tool delegates to.
type QueryGuard interface {
	Run(ctx context.Context, query string, params []any) string
}

// SensorSQL lets the model query the sensor readings table with guarded,
// read-only SELECT statements.
type SensorSQL struct {
	guard QueryGuard
}

// NewSensorSQL creates the tool on top of guard.
func NewSensorSQL(guard QueryGuard) *SensorSQL {
	return &SensorSQL{guard: guard}
}

func (t *SensorSQL) Name() string { return "sensor_sql" }

func (t *SensorSQL) Description() string {
	return `Realiza uma query SELECT no banco de dados para buscar leituras dos sensores de solo.

Só pode realizar operações de busca (SELECT); nenhuma operação de escrita é permitida.

Tabela disponível:

sensors_sensordata:
- id (integer): ID único do registro
- timestamp (text): Data/hora da leitura
- umidade (real): Umidade do solo (%)
- condutividade (real): Condutividade elétrica (µS/cm)
- temperatura (real): Temperatura (°C)
- ph (real): pH do solo
- nitrogenio (real): Nitrogênio (ppm)
- fosforo (real): Fósforo (ppm)
- potassio (real): Potássio (ppm)
- salinidade (real): Salinidade (ppm)
- tds (real): Total de sólidos dissolvidos (ppm)

IMPORTANTE:
- Apenas queries SELECT são permitidas por motivos de segurança
- Todas as operações retornam um máximo de 50 itens
- Use ? para parâmetros e forneça a lista de valores no campo params

Exemplos:
- query: "SELECT timestamp, temperatura, umidade FROM sensors_sensordata WHERE timestamp > ?", params: ["2025-01-01"]
- query: "SELECT COUNT(*) FROM sensors_sensordata WHERE ph BETWEEN ? AND ?", params: [6.0, 8.0]`
}

func (t *SensorSQL) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Query SELECT a ser executada"},
			"params": {"type": "array", "description": "Valores para os parâmetros ? da query", "items": {}}
		},
		"required": ["query"]
	}`)
}

type sensorSQLArgs struct {
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

func (t *SensorSQL) Execute(ctx context.Context, args json.RawMessage) string {
	var a sensorSQLArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("Erro: argumentos inválidos para sensor_sql: %v", err)
	}
	if a.Query == "" {
		return "Erro: o campo query é obrigatório."
	}
	return t.guard.Run(ctx, a.Query, a.Params)
}
