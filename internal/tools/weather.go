package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// defaultLocation is where most of the association's members farm.
const defaultLocation = "Parelheiros,SP,BR"

const openWeatherBaseURL = "http://api.openweathermap.org/data/2.5/weather"

// Weather consults current conditions through the OpenWeatherMap API.
type Weather struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewWeather creates the tool with the given OpenWeatherMap API key.
func NewWeather(apiKey string) *Weather {
	return &Weather{
		apiKey:  apiKey,
		baseURL: openWeatherBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewWeatherWithBaseURL creates the tool pointing at a custom endpoint (for testing).
func NewWeatherWithBaseURL(apiKey, baseURL string) *Weather {
	w := NewWeather(apiKey)
	w.baseURL = baseURL
	return w
}

func (t *Weather) Name() string { return "weather_search" }

func (t *Weather) Description() string {
	return `Consulta informações meteorológicas atuais para uma localização específica.

Use esta ferramenta para obter temperatura, umidade, pressão atmosférica e condições climáticas que podem afetar a lavoura. Sem localização, consulta Parelheiros,SP,BR.`
}

func (t *Weather) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "Cidade no formato Cidade,UF,País (padrão Parelheiros,SP,BR)"}
		}
	}`)
}

type weatherArgs struct {
	Location string `json:"location"`
}

// weatherResponse mirrors the fields we read from the OpenWeatherMap answer.
type weatherResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (t *Weather) Execute(ctx context.Context, args json.RawMessage) string {
	var a weatherArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("Erro: argumentos inválidos para weather_search: %v", err)
	}
	if a.Location == "" {
		a.Location = defaultLocation
	}
	if t.apiKey == "" {
		return "API key do OpenWeatherMap não configurada. Entre em contato com o administrador."
	}

	query := url.Values{}
	query.Set("q", a.Location)
	query.Set("appid", t.apiKey)
	query.Set("units", "metric")
	query.Set("lang", "pt_br")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("Erro ao consultar informações meteorológicas: %v", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "Erro de conexão ao consultar dados meteorológicos. Tente novamente em alguns minutos."
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "Erro de autenticação na API meteorológica. Verifique a chave da API."
	case http.StatusNotFound:
		return fmt.Sprintf("Localização '%s' não encontrada. Tente com o nome de uma cidade válida.", a.Location)
	default:
		return fmt.Sprintf("Erro ao consultar dados meteorológicos: %d", resp.StatusCode)
	}

	var data weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Sprintf("Erro ao consultar informações meteorológicas: %v", err)
	}

	city := data.Name
	if city == "" {
		city = a.Location
	}
	var description string
	if len(data.Weather) > 0 {
		description = capitalize(data.Weather[0].Description)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌤️ Clima em %s, %s\n\n", city, data.Sys.Country)
	fmt.Fprintf(&b, "🌡️ Temperatura: %.1f°C (sensação térmica: %.1f°C)\n", data.Main.Temp, data.Main.FeelsLike)
	fmt.Fprintf(&b, "💧 Umidade: %d%%\n", data.Main.Humidity)
	fmt.Fprintf(&b, "📊 Pressão atmosférica: %d hPa\n", data.Main.Pressure)
	fmt.Fprintf(&b, "🌬️ Vento: %.1f m/s\n", data.Wind.Speed)
	fmt.Fprintf(&b, "☁️ Condição: %s\n\n", description)
	fmt.Fprintf(&b, "📍 Localização consultada: %s\n", a.Location)
	return b.String()
}

// capitalize upper-cases the first rune, matching how the API's pt-BR
// descriptions are displayed.
func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
