package llm

import (
	"context"
	"testing"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return "mock response", nil
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	return "mock generated text", nil
}

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewProvider("test-provider", map[string]any{"name": "custom-name"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if provider.Name() != "custom-name" {
		t.Errorf("expected name 'custom-name', got '%s'", provider.Name())
	}

	// 同一工厂同时服务两类接口
	embed, err := NewEmbeddingProvider("test-provider", nil)
	if err != nil {
		t.Fatalf("NewEmbeddingProvider failed: %v", err)
	}
	if _, err := embed.EmbedSingle(context.Background(), "текст"); err != nil {
		t.Errorf("EmbedSingle failed: %v", err)
	}

	chat, err := NewChatProvider("test-provider", nil)
	if err != nil {
		t.Fatalf("NewChatProvider failed: %v", err)
	}
	if resp, _ := chat.Generate(context.Background(), "вопрос", ""); resp != "mock generated text" {
		t.Errorf("unexpected generate response: %s", resp)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewEmbeddingProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown embedding provider")
	}
	if _, err := NewChatProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown chat provider")
	}
}

func TestListProviders(t *testing.T) {
	RegisterProvider("listed-provider", func(map[string]any) (Provider, error) {
		return &mockProvider{name: "listed-provider"}, nil
	})

	found := false
	for _, name := range ListProviders() {
		if name == "listed-provider" {
			found = true
		}
	}
	if !found {
		t.Error("registered provider missing from ListProviders")
	}
}
