package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

func TestInitResult_Close(t *testing.T) {
	t.Run("close with nil services", func(t *testing.T) {
		result := &InitResult{}
		// Should not panic
		result.Close()
	})
}

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantErr     bool
		errContains string
		wantDims    int
	}{
		{
			name:     "nil settings",
			settings: nil,
			wantErr:  true,
		},
		{
			name:     "unconfigured settings",
			settings: &domain.EmbeddingSettings{},
			wantErr:  true,
		},
		{
			name:     "local provider",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderLocal, Model: "hashing-256"},
			wantDims: 256,
		},
		{
			name: "ollama provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
				Model:    "nomic-embed-text",
			},
			wantDims: 768,
		},
		{
			name: "openai provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "text-embedding-3-small",
			},
			wantDims: 1536,
		},
		{
			name: "openai without key is unconfigured",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings, Options{})
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)
			assert.Equal(t, tt.wantDims, svc.Dimensions())
		})
	}
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.LLMSettings
		wantErr  bool
	}{
		{"nil settings", nil, true},
		{"local has no llm", &domain.LLMSettings{Provider: domain.AIProviderLocal}, true},
		{"ollama", &domain.LLMSettings{Provider: domain.AIProviderOllama}, false},
		{"openai", &domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "k"}, false},
		{"anthropic", &domain.LLMSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings, Options{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestInit_LocalEmbeddingWithoutLLM(t *testing.T) {
	result, err := Init(
		&domain.EmbeddingSettings{Provider: domain.AIProviderLocal, Model: "hashing-256"},
		&domain.LLMSettings{},
		Options{},
	)
	require.NoError(t, err)
	defer result.Close()

	assert.NotNil(t, result.EmbeddingService)
	assert.Nil(t, result.LLMService)
	assert.Len(t, result.Warnings, 1)
}

func TestInit_UnreachableLLMIsWarning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	result, err := Init(
		&domain.EmbeddingSettings{Provider: domain.AIProviderLocal, Model: "hashing-256"},
		&domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "bad", BaseURL: server.URL},
		Options{},
	)
	require.NoError(t, err)
	assert.Nil(t, result.LLMService)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "LLM service unavailable")
}

func TestInit_NoEmbeddingProvider(t *testing.T) {
	_, err := Init(&domain.EmbeddingSettings{}, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestCreateAndValidateEmbeddingService_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		BaseURL:  server.URL,
	}, Options{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
