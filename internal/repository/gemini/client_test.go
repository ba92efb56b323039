package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sarida/backend/internal/domain"
)

var _ domain.LanguageModel = (*Client)(nil)

type fakeModels struct {
	reply  string
	err    error
	model  string
	prompt string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestGenerate(t *testing.T) {
	fake := &fakeModels{reply: "  El SPEI negativo indica déficit hídrico. "}
	c := &Client{models: fake, model: "gemini-2.5-flash"}

	got, err := c.Generate(context.Background(), "¿Qué significa SPEI?")
	require.NoError(t, err)
	assert.Equal(t, "El SPEI negativo indica déficit hídrico.", got)
	assert.Equal(t, "gemini-2.5-flash", fake.model)
	assert.Equal(t, "¿Qué significa SPEI?", fake.prompt)
}

func TestGenerate_Errors(t *testing.T) {
	c := &Client{models: &fakeModels{err: errors.New("quota exceeded")}, model: "m"}
	_, err := c.Generate(context.Background(), "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	c = &Client{models: &fakeModels{reply: "   "}, model: "m"}
	_, err = c.Generate(context.Background(), "hola")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
