package draft

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/scholarkit/citematch/internal/oracle"
)

// contextTextLimit bounds how much draft text goes into the analysis
// prompt.
const contextTextLimit = 8000

const contextSystemPrompt = `You are an expert academic research assistant specialized in understanding scientific manuscripts.
Your task is to analyze the text of a research manuscript and extract key contextual information that will help with citation matching.

Extract the following information:
1. Research field (e.g., agronomy, environmental science, soil science)
2. Study area/location (include country and region if mentioned)
3. Crops involved
4. Experimental treatments/conditions (include specific levels if mentioned)
5. A one-sentence summary of the main research focus

Be very specific. Respond ONLY in valid JSON format with keys
research_field, study_area, crops, treatments, main_focus. No additional text.`

type contextPayload struct {
	ResearchField string   `json:"research_field"`
	StudyArea     string   `json:"study_area"`
	Crops         []string `json:"crops"`
	Treatments    []string `json:"treatments"`
	MainFocus     string   `json:"main_focus"`
}

// ContextAnalyzer extracts a ResearchContext from draft text through
// the oracle. Failure yields an empty context, never an error: context
// only biases relevance interpretation, so matching proceeds without it.
type ContextAnalyzer struct {
	provider oracle.Provider
	logger   *slog.Logger
}

// NewContextAnalyzer creates an analyzer. provider may be nil.
func NewContextAnalyzer(provider oracle.Provider, logger *slog.Logger) *ContextAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextAnalyzer{provider: provider, logger: logger}
}

// Analyze extracts the research context from the full draft text.
func (a *ContextAnalyzer) Analyze(ctx context.Context, fullText string) *oracle.ResearchContext {
	if a.provider == nil || strings.TrimSpace(fullText) == "" {
		return nil
	}
	if len(fullText) > contextTextLimit {
		fullText = fullText[:contextTextLimit]
	}

	messages := []oracle.Message{
		{Role: "system", Content: contextSystemPrompt},
		{Role: "user", Content: "Please analyze the following manuscript and extract contextual information:\n\n" +
			fullText + "\n\nExtract the research context in JSON format."},
	}

	response, err := a.provider.Call(ctx, messages)
	if err != nil {
		a.logger.Warn("context_analysis_failed", slog.String("error", err.Error()))
		return nil
	}

	payload, err := parseContext(response)
	if err != nil {
		a.logger.Warn("context_parse_failed", slog.String("error", err.Error()))
		return nil
	}

	return &oracle.ResearchContext{
		Field:      payload.ResearchField,
		Area:       payload.StudyArea,
		Crops:      payload.Crops,
		Treatments: payload.Treatments,
		Summary:    payload.MainFocus,
	}
}

func parseContext(response string) (*contextPayload, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		response = response[start : end+1]
	}
	var payload contextPayload
	if err := json.Unmarshal([]byte(response), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
