package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStyles_NoColorIsPlain(t *testing.T) {
	s := GetStyles(true)
	assert.Equal(t, "running", s.Success.Render("running"))
	assert.Equal(t, "12", s.Value.Render("12"))
}

func TestDefaultStyles_PanelHasBorder(t *testing.T) {
	s := DefaultStyles()
	assert.True(t, s.Panel.GetBorderTop())
	assert.True(t, s.Header.GetBold())
}
