package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBattery_Next(t *testing.T) {
	b := newBattery()
	for i := 0; i < 100; i++ {
		r := b.next("")
		assert.Len(t, r, 6)
		assert.GreaterOrEqual(t, r["soc"], 0.0)
		assert.LessOrEqual(t, r["soc"], 100.0)
		assert.InDelta(t, r["voltage"]*r["current"], r["power"], 0.2)
	}
}

func TestBattery_DropField(t *testing.T) {
	r := newBattery().next("soc")
	assert.NotContains(t, r, "soc")
	assert.Len(t, r, 5)
}
