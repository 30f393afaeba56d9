package insightface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"facegate/config"
)

// APIClient implementiert die Kommunikation mit dem InsightFace-Dienst
type APIClient struct {
	config     config.InsightFaceConfig
	httpClient *http.Client
}

// apiInfoResponse enthält Informationen über den InsightFace-Dienst
type apiInfoResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Backend   string   `json:"backend"`
	Providers []string `json:"providers"`
}

// apiFace ist ein erkanntes Gesicht; bbox ist [x1, y1, x2, y2]
type apiFace struct {
	BoundingBox []float64 `json:"bbox"`
	Confidence  float64   `json:"confidence"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// apiDetectResponse enthält die Antwort auf eine Gesichtserkennungsanfrage
type apiDetectResponse struct {
	Status      string    `json:"status"`
	FacesCount  int       `json:"faces_count"`
	Faces       []apiFace `json:"faces"`
	ProcessTime float64   `json:"process_time"`
}

// NewAPIClient erstellt einen neuen InsightFace-APIClient
func NewAPIClient(cfg config.InsightFaceConfig) *APIClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Info fragt den Status des InsightFace-Dienstes ab
func (c *APIClient) Info(ctx context.Context) (*apiInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Erstellen der Anfrage: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fehler bei der Verbindung zu InsightFace: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("InsightFace-Dienst ist nicht verfügbar, Status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("fehler beim Dekodieren der Antwort: %w", err)
	}
	if info.Status != "ok" {
		return nil, fmt.Errorf("InsightFace meldet Status %q", info.Status)
	}
	return &info, nil
}

// DetectFaces sendet ein JPEG zur Gesichtserkennung an den InsightFace-Dienst
func (c *APIClient) DetectFaces(ctx context.Context, jpegData []byte, threshold float64) (*apiDetectResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("fehler beim Erstellen des Formularfeldes: %w", err)
	}
	if _, err := part.Write(jpegData); err != nil {
		return nil, fmt.Errorf("fehler beim Kopieren der Bilddaten: %w", err)
	}

	fields := map[string]string{
		"threshold":         strconv.FormatFloat(threshold, 'f', -1, 64),
		"return_face_data":  "false",
		"extract_embedding": "true",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("fehler beim Schreiben von %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("fehler beim Schließen des Formularschreibers: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Erstellen der Anfrage: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fehler bei der HTTP-Anfrage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unerwarteter Status: %d, Antwort: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("fehler beim Dekodieren der Antwort: %w", err)
	}
	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("API-Fehler: %s", apiResp.Status)
	}
	return &apiResp, nil
}
