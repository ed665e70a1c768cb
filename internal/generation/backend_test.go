package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/pkg/mediatypes"
)

type fakeCompleter struct {
	reply       string
	err         error
	gotPrompt   string
	gotSystem   string
	gotHistory  []Turn
	invocations int
}

func (f *fakeCompleter) CompleteText(_ context.Context, prompt, systemInstruction string, history []Turn) (string, error) {
	f.invocations++
	f.gotPrompt = prompt
	f.gotSystem = systemInstruction
	f.gotHistory = history
	return f.reply, f.err
}

type fakeSynthesizer struct {
	images         []InlineImage
	err            error
	gotAspectRatio string
}

func (f *fakeSynthesizer) SynthesizeImage(_ context.Context, _ string, aspectRatio string) ([]InlineImage, error) {
	f.gotAspectRatio = aspectRatio
	return f.images, f.err
}

type fakeRunner struct {
	handle string
	err    error
}

func (f fakeRunner) Run(_ context.Context, _ string, onProgress ProgressFunc) (string, error) {
	if onProgress != nil {
		onProgress("working")
	}
	return f.handle, f.err
}

func sampleHistory() []mediatypes.Message {
	return []mediatypes.Message{
		{ID: "1", Role: mediatypes.RoleUser, Parts: []mediatypes.MessagePart{mediatypes.TextPart("hi")}},
		{ID: "2", Role: mediatypes.RoleAssistant, Parts: []mediatypes.MessagePart{mediatypes.TextPart("hello")}},
		{ID: "3", Role: mediatypes.RoleAssistant, Parts: []mediatypes.MessagePart{mediatypes.ImagePart("data:x")}},
		{ID: "4", Role: mediatypes.RoleSystem, Parts: []mediatypes.MessagePart{mediatypes.TextPart("ignored")}},
	}
}

func TestTextBackend_Generate(t *testing.T) {
	completer := &fakeCompleter{reply: "A poem about neon."}
	backend := NewTextBackend(completer)

	parts, err := backend.Generate(context.Background(), Request{Prompt: "write a poem", History: sampleHistory()})
	require.NoError(t, err)

	assert.Equal(t, []mediatypes.MessagePart{mediatypes.TextPart("A poem about neon.")}, parts)
	assert.Equal(t, "write a poem", completer.gotPrompt)
	assert.Equal(t, DefaultSystemInstruction, completer.gotSystem)
	assert.Empty(t, completer.gotHistory, "single-turn by default")
}

func TestTextBackend_MultiTurnAndInstruction(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	backend := NewTextBackend(completer, WithMultiTurn(true), WithSystemInstruction("Be brief."))

	_, err := backend.Generate(context.Background(), Request{Prompt: "next", History: sampleHistory()})
	require.NoError(t, err)

	assert.Equal(t, "Be brief.", completer.gotSystem)
	assert.Equal(t, []Turn{
		{Role: mediatypes.RoleUser, Text: "hi"},
		{Role: mediatypes.RoleAssistant, Text: "hello"},
	}, completer.gotHistory)
}

func TestTextBackend_BlankInstructionKeepsDefault(t *testing.T) {
	backend := NewTextBackend(&fakeCompleter{}, WithSystemInstruction("   "))
	assert.Equal(t, DefaultSystemInstruction, backend.systemInstruction)
}

func TestTextBackend_Errors(t *testing.T) {
	t.Run("transport failure", func(t *testing.T) {
		backend := NewTextBackend(&fakeCompleter{err: errors.New("connection refused")})
		_, err := backend.Generate(context.Background(), Request{Prompt: "x"})
		require.Error(t, err)
		assert.Equal(t, KindTransport, KindOf(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("empty reply is malformed", func(t *testing.T) {
		backend := NewTextBackend(&fakeCompleter{reply: ""})
		_, err := backend.Generate(context.Background(), Request{Prompt: "x"})
		assert.Equal(t, KindMalformed, KindOf(err))
	})

	t.Run("remote error kind preserved", func(t *testing.T) {
		remote := NewError(KindRemote, "gemini", "quota exceeded", nil)
		backend := NewTextBackend(&fakeCompleter{err: fmt.Errorf("call: %w", remote)})
		_, err := backend.Generate(context.Background(), Request{Prompt: "x"})
		assert.Equal(t, KindRemote, KindOf(err))
	})
}

func TestImageBackend_Generate(t *testing.T) {
	synth := &fakeSynthesizer{images: []InlineImage{
		{MIMEType: "image/png", Data: []byte{0x89, 0x50}},
		{MIMEType: "image/jpeg", Data: []byte("jpg")},
	}}
	backend := NewImageBackend(synth, "")

	parts, err := backend.Generate(context.Background(), Request{Prompt: "a fox"})
	require.NoError(t, err)

	assert.Equal(t, DefaultImageAspectRatio, synth.gotAspectRatio)
	require.Len(t, parts, 2)
	assert.Equal(t, mediatypes.ImagePart("data:image/png;base64,iVA="), parts[0])
	assert.Equal(t, mediatypes.ImagePart("data:image/jpeg;base64,anBn"), parts[1])
}

func TestImageBackend_ZeroImagesIsEmptyResult(t *testing.T) {
	backend := NewImageBackend(&fakeSynthesizer{}, "16:9")

	parts, err := backend.Generate(context.Background(), Request{Prompt: "a fox"})
	require.NoError(t, err)
	assert.NotNil(t, parts)
	assert.Empty(t, parts)
}

func TestImageBackend_MalformedPayload(t *testing.T) {
	backend := NewImageBackend(&fakeSynthesizer{images: []InlineImage{{MIMEType: "", Data: []byte("x")}}}, "")

	_, err := backend.Generate(context.Background(), Request{Prompt: "a fox"})
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestVideoBackend_Generate(t *testing.T) {
	var progress []string
	backend := NewVideoBackend(fakeRunner{handle: "/assets/abc"})

	parts, err := backend.Generate(context.Background(), Request{
		Prompt:     "waves",
		OnProgress: func(s string) { progress = append(progress, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, []mediatypes.MessagePart{mediatypes.VideoPart("/assets/abc")}, parts)
	assert.Equal(t, []string{"working"}, progress)
}

func TestVideoBackend_Errors(t *testing.T) {
	_, err := NewVideoBackend(fakeRunner{}).Generate(context.Background(), Request{Prompt: "x"})
	assert.Equal(t, KindNoResult, KindOf(err))
	assert.ErrorIs(t, err, ErrNoResult)

	_, err = NewVideoBackend(fakeRunner{err: context.Canceled}).Generate(context.Background(), Request{Prompt: "x"})
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestBackendFunc(t *testing.T) {
	var backend Backend = BackendFunc(func(_ context.Context, req Request) ([]mediatypes.MessagePart, error) {
		req.Progress("step")
		return []mediatypes.MessagePart{mediatypes.TextPart(req.Prompt)}, nil
	})

	parts, err := backend.Generate(context.Background(), Request{Prompt: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", parts[0].Content)
}
