package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultHubBaseURL = "https://huggingface.co"

// HubConfig configures a HubStore. Repo, Filename and Token are
// required; the rest default sensibly.
type HubConfig struct {
	// Repo is the dataset repository, e.g. "Ezmary/Karbaran-rayegan-tedad".
	Repo string
	// Filename is the document path inside the dataset.
	Filename string
	// Token is the Hub access token.
	Token string
	// BaseURL overrides the Hub endpoint, mainly for tests.
	BaseURL string
	// HTTPClient overrides the default client (15s timeout).
	HTTPClient *http.Client
}

// HubStore keeps the usage document as a single file in a Hugging Face
// dataset repository. Publishing replaces the file in one commit, which
// is the Hub's whole-document primitive.
type HubStore struct {
	client   *http.Client
	baseURL  string
	repo     string
	filename string
	token    string
}

func NewHubStore(cfg HubConfig) (*HubStore, error) {
	if cfg.Repo == "" || cfg.Filename == "" {
		return nil, fmt.Errorf("hub store: repo and filename are required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("hub store: token is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultHubBaseURL
	}
	return &HubStore{
		client:   client,
		baseURL:  baseURL,
		repo:     cfg.Repo,
		filename: cfg.Filename,
		token:    cfg.Token,
	}, nil
}

func (s *HubStore) Load(ctx context.Context) ([]UsageRecord, error) {
	url := fmt.Sprintf("%s/datasets/%s/resolve/main/%s", s.baseURL, s.repo, s.filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrDocumentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub download: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hub download: %w", err)
	}
	return DecodeDocument(body)
}

// commit API payload, one JSON object per line.
type hubCommitOp struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type hubCommitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type hubCommitFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (s *HubStore) Publish(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("hub publish: read artifact: %w", err)
	}

	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	if err := enc.Encode(hubCommitOp{Key: "header", Value: hubCommitHeader{
		Summary: "Update animation usage data",
	}}); err != nil {
		return err
	}
	if err := enc.Encode(hubCommitOp{Key: "file", Value: hubCommitFile{
		Path:     s.filename,
		Content:  base64.StdEncoding.EncodeToString(content),
		Encoding: "base64",
	}}); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/datasets/%s/commit/main", s.baseURL, s.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("hub commit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("hub commit: status %s: %s", resp.Status, body)
	}
	return nil
}
