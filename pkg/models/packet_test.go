package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataPacket(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	packet := NewDataPacket("reddit", created)

	assert.Equal(t, "reddit", packet.Metadata.SourceType)
	assert.Equal(t, created, packet.Metadata.DateCreated)
	assert.Equal(t, FormatText, packet.Metadata.Format)
	assert.Empty(t, packet.Processing.StepsCompleted)
	assert.NotNil(t, packet.Content.Tags)
}

func TestDataPacket_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *DataPacket)
		wantErr bool
	}{
		{
			name:   "valid with title only",
			mutate: func(p *DataPacket) { p.Content.Title = "Hello" },
		},
		{
			name:   "valid with body only",
			mutate: func(p *DataPacket) { p.Content.Body = "some body" },
		},
		{
			name:    "empty title and body",
			mutate:  func(p *DataPacket) {},
			wantErr: true,
		},
		{
			name: "invalid format",
			mutate: func(p *DataPacket) {
				p.Content.Title = "Hello"
				p.Metadata.Format = PacketFormat("yaml")
			},
			wantErr: true,
		},
		{
			name: "zero date",
			mutate: func(p *DataPacket) {
				p.Content.Title = "Hello"
				p.Metadata.DateCreated = time.Time{}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := NewDataPacket("reddit", time.Now().UTC())
			tt.mutate(packet)

			err := packet.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, IsConfigError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDataPacket_Derive(t *testing.T) {
	packet := NewDataPacket("reddit", time.Now().UTC())
	packet.Content.Title = "original"
	packet.Content.Tags = []string{"a"}
	packet.Processing.StepsCompleted = []string{"fetch"}

	derived := packet.Derive("ai_rewrite", "ai")

	assert.Equal(t, []string{"fetch", "ai_rewrite"}, derived.Processing.StepsCompleted)
	assert.Equal(t, "ai", derived.Metadata.SourceType)

	// The original packet must be untouched.
	assert.Equal(t, []string{"fetch"}, packet.Processing.StepsCompleted)
	assert.Equal(t, "reddit", packet.Metadata.SourceType)

	derived.Content.Tags = append(derived.Content.Tags, "b")
	assert.Equal(t, []string{"a"}, packet.Content.Tags)
}

func TestDataPacket_CloneDeepCopiesPointers(t *testing.T) {
	summary := "short"
	tokens := 42
	packet := NewDataPacket("reddit", time.Now().UTC())
	packet.Content.Title = "x"
	packet.Content.Summary = &summary
	packet.Processing.TokensUsed = &tokens

	clone := packet.Clone()
	require.NotNil(t, clone.Content.Summary)
	*clone.Content.Summary = "changed"
	*clone.Processing.TokensUsed = 7

	assert.Equal(t, "short", *packet.Content.Summary)
	assert.Equal(t, 42, *packet.Processing.TokensUsed)
}
