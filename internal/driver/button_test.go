package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePin implements gpioPin with a value settable from the test body.
type fakePin struct {
	val bool
	err error
}

func (p *fakePin) Read() (bool, error) { return p.val, p.err }

func TestButtonLineReportsFirstReadAsAnEdge(t *testing.T) {
	pin := &fakePin{val: false}
	b := newButtonLine(pin)

	edge, changed, err := b.Read()
	require.NoError(t, err)
	require.True(t, changed)
	assert.False(t, edge.Pressed)
}

func TestButtonLineOnlyReportsChanges(t *testing.T) {
	pin := &fakePin{val: false}
	b := newButtonLine(pin)
	_, _, _ = b.Read() // prime

	_, changed, err := b.Read()
	require.NoError(t, err)
	assert.False(t, changed, "unchanged level must not be reported as an edge")

	pin.val = true
	edge, changed, err := b.Read()
	require.NoError(t, err)
	require.True(t, changed)
	assert.True(t, edge.Pressed)
}

func TestButtonLinePropagatesPinError(t *testing.T) {
	pin := &fakePin{err: errors.New("gpio read failed")}
	b := newButtonLine(pin)

	_, _, err := b.Read()
	assert.Error(t, err)
}

func TestNilButtonLineNeverReportsAnEdge(t *testing.T) {
	var b *buttonLine
	_, changed, err := b.Read()
	require.NoError(t, err)
	assert.False(t, changed)

	b = newButtonLine(nil)
	_, changed, err = b.Read()
	require.NoError(t, err)
	assert.False(t, changed)
}
