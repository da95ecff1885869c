// Package transcribe converts uploaded audio to text through Deepgram.
// The service is optional: without an API key it reports itself
// disabled and the endpoint answers 503.
package transcribe

import (
	"context"
	"errors"
	"io"
	"strings"

	listenapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

var ErrDisabled = errors.New("voice transcription not available")

type Status struct {
	Enabled  bool   `json:"enabled"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

type transcribeFunc func(ctx context.Context, audio io.Reader) (string, error)

type Service struct {
	model      string
	language   string
	transcribe transcribeFunc
}

// New builds the Deepgram-backed service. An empty API key yields a
// disabled service.
func New(apiKey, model, language string) *Service {
	s := &Service{model: model, language: language}
	if apiKey == "" {
		return s
	}
	s.transcribe = newDeepgramTranscriber(apiKey, model, language)
	return s
}

func (s *Service) Enabled() bool {
	return s.transcribe != nil
}

func (s *Service) Status() Status {
	return Status{Enabled: s.Enabled(), Model: s.model, Language: s.language}
}

// Transcribe returns the recognized text for one audio stream.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	if s.transcribe == nil {
		return "", ErrDisabled
	}
	return s.transcribe(ctx, audio)
}

func newDeepgramTranscriber(apiKey, model, language string) transcribeFunc {
	listen.Init(listen.InitLib{LogLevel: listen.LogLevelDefault})
	rest := listen.NewREST(apiKey, &interfaces.ClientOptions{})
	dg := listenapi.New(rest)
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       model,
		Language:    language,
		SmartFormat: true,
	}
	return func(ctx context.Context, audio io.Reader) (string, error) {
		res, err := dg.FromStream(ctx, audio, options)
		if err != nil {
			return "", err
		}
		if res == nil || len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
			return "", errors.New("no transcription result")
		}
		return strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript), nil
	}
}
