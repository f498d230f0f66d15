// Package gnss contains common constants and type definitions.
package gnss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystem_String(t *testing.T) {
	assert.Equal(t, "GPS", SysGPS.String())
	assert.Equal(t, "GLO", SysGLO.String())
	assert.Equal(t, "MIXED", SysMIXED.String())
}

func TestSystem_Abbr(t *testing.T) {
	assert.Equal(t, "G", SysGPS.Abbr())
	assert.Equal(t, "R", SysGLO.Abbr())
	assert.Equal(t, "I", SysIRNSS.Abbr())
}

func TestSystems_String(t *testing.T) {
	syss := Systems{SysGPS, SysGLO, SysGAL}
	assert.Equal(t, "GPS+GLO+GAL", syss.String())
}
