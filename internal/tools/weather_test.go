package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const weatherJSON = `{
	"name": "Parelheiros",
	"sys": {"country": "BR"},
	"main": {"temp": 22.4, "feels_like": 23.1, "humidity": 78, "pressure": 1015},
	"weather": [{"description": "céu limpo"}],
	"wind": {"speed": 2.6}
}`

func TestWeatherFormatsConditions(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"q":     r.URL.Query().Get("q"),
			"units": r.URL.Query().Get("units"),
			"lang":  r.URL.Query().Get("lang"),
			"appid": r.URL.Query().Get("appid"),
		}
		w.Write([]byte(weatherJSON))
	}))
	defer srv.Close()

	tool := NewWeatherWithBaseURL("ow-key", srv.URL)
	out := tool.Execute(context.Background(), json.RawMessage(`{}`))

	if gotQuery["q"] != defaultLocation {
		t.Errorf("location = %q, want default", gotQuery["q"])
	}
	if gotQuery["units"] != "metric" || gotQuery["lang"] != "pt_br" || gotQuery["appid"] != "ow-key" {
		t.Errorf("query params = %v", gotQuery)
	}
	for _, want := range []string{
		"Clima em Parelheiros, BR",
		"22.4°C",
		"Umidade: 78%",
		"Céu limpo",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWeatherCustomLocation(t *testing.T) {
	var gotLocation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocation = r.URL.Query().Get("q")
		w.Write([]byte(weatherJSON))
	}))
	defer srv.Close()

	tool := NewWeatherWithBaseURL("ow-key", srv.URL)
	tool.Execute(context.Background(), json.RawMessage(`{"location":"Sorocaba,SP,BR"}`))
	if gotLocation != "Sorocaba,SP,BR" {
		t.Errorf("location = %q", gotLocation)
	}
}

func TestWeatherMissingKey(t *testing.T) {
	tool := NewWeather("")
	out := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if !strings.Contains(out, "não configurada") {
		t.Errorf("output = %q", out)
	}
}

func TestWeatherLocationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := NewWeatherWithBaseURL("ow-key", srv.URL)
	out := tool.Execute(context.Background(), json.RawMessage(`{"location":"Xyzzy"}`))
	if !strings.Contains(out, "não encontrada") {
		t.Errorf("output = %q", out)
	}
}

func TestWeatherAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tool := NewWeatherWithBaseURL("bad-key", srv.URL)
	out := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if !strings.Contains(out, "autenticação") {
		t.Errorf("output = %q", out)
	}
}
