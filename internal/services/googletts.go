package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	googleTTSEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

	// Chirp3 HD voice family. The narrator voice names map 1:1 onto it.
	googleVoicePrefix   = "en-US-Chirp3-HD-"
	googleLanguageCode  = "en-US"
	googleDefaultVoice  = "Schedar"
	googleAudioEncoding = "LINEAR16" // WAV, so ffprobe reads the duration exactly
)

// GoogleTTSService synthesizes narration through the Google Cloud
// Text-to-Speech REST API.
type GoogleTTSService struct {
	apiKey string
	client *http.Client
}

var _ SpeechProvider = (*GoogleTTSService)(nil)

func NewGoogleTTSService(apiKey string) *GoogleTTSService {
	return &GoogleTTSService{
		apiKey: apiKey,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

type googleSynthesizeRequest struct {
	Input       googleSynthesisInput `json:"input"`
	Voice       googleVoiceSelection `json:"voice"`
	AudioConfig googleAudioConfig    `json:"audioConfig"`
}

type googleSynthesisInput struct {
	SSML string `json:"ssml"`
}

type googleVoiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type googleAudioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type googleSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// GenerateSpeech converts text to LINEAR16 WAV audio. The speed multiplier
// is applied as an SSML prosody rate instead of an audioConfig speakingRate
// so it works uniformly across the Chirp3 voices.
func (s *GoogleTTSService) GenerateSpeech(ctx context.Context, text, voice string, speed float64) (*SpeechResult, error) {
	reqBody := googleSynthesizeRequest{
		Input: googleSynthesisInput{SSML: buildSSML(text, speed)},
		Voice: googleVoiceSelection{
			LanguageCode: googleLanguageCode,
			Name:         googleVoiceName(voice),
		},
		AudioConfig: googleAudioConfig{AudioEncoding: googleAudioEncoding},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", googleTTSEndpoint, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google tts returned status %d: %s", resp.StatusCode, string(body))
	}

	var synthResp googleSynthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&synthResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if synthResp.AudioContent == "" {
		return nil, fmt.Errorf("google tts returned no audio content")
	}

	audioData, err := base64.StdEncoding.DecodeString(synthResp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}

	return &SpeechResult{AudioData: audioData, Format: "wav"}, nil
}

// googleVoiceName maps a narrator voice onto the full Google voice name.
// Unknown names fall back to the default narrator.
func googleVoiceName(voice string) string {
	if narratorVoices[voice] {
		return googleVoicePrefix + voice
	}
	return googleVoicePrefix + googleDefaultVoice
}

// buildSSML wraps escaped narration text in a prosody element carrying the
// speed multiplier as a rate percentage (1.35 -> "135%").
func buildSSML(text string, speed float64) string {
	if speed <= 0 {
		speed = 1.0
	}
	rate := int(math.Round(speed * 100))
	return fmt.Sprintf(`<speak><prosody rate="%d%%">%s</prosody></speak>`, rate, escapeSSML(text))
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeSSML(text string) string {
	return ssmlEscaper.Replace(text)
}
