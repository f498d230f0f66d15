package rinex

import (
	"strings"
	"testing"
	"time"

	"github.com/de-bkg/gnssd/pkg/gnss"
	"github.com/stretchr/testify/assert"
)

const testHeaderV3 = `     3.03           OBSERVATION DATA    M                   RINEX VERSION / TYPE
sbf2rin-12.3.1                          20181106 200225 UTC PGM / RUN BY / DATE
BRUX                                                        MARKER NAME
13101M010                                                   MARKER NUMBER
GEODETIC                                                    MARKER TYPE
ROB                 ROB                                     OBSERVER / AGENCY
3001376             SEPT POLARX4TR      2.9.6               REC # / TYPE / VERS
00464               JAVRINGANT_DM   NONE                    ANT # / TYPE
  4027881.8478   306998.2610  4919498.6554                  APPROX POSITION XYZ
        0.4689        0.0000        0.0010                  ANTENNA: DELTA H/E/N
G   14 C1C L1C S1C C1W S1W C2W L2W S2W C2L L2L S2L C5Q L5Q  SYS / # / OBS TYPES
       S5Q                                                  SYS / # / OBS TYPES
    30.000                                                  INTERVAL
  2018    11     6    19     0    0.0000000     GPS         TIME OF FIRST OBS
  2018    11     6    19    59   30.0000000     GPS         TIME OF LAST OBS
    43                                                      # OF SATELLITES
DBHZ                                                        SIGNAL STRENGTH UNIT
                                                            END OF HEADER
`

func TestObsDecoder_readHeader(t *testing.T) {
	dec, err := NewObsDecoder(strings.NewReader(testHeaderV3))
	assert.NoError(t, err)
	assert.NotNil(t, dec)

	assert.Equal(t, "O", dec.Header.RINEXType)
	assert.Equal(t, gnss.SysMIXED, dec.Header.SatSystem)
	assert.Equal(t, "BRUX", dec.Header.MarkerName)
	assert.Equal(t, "3001376", dec.Header.ReceiverNumber)
	assert.Equal(t, "SEPT POLARX4TR", dec.Header.ReceiverType)
	assert.Equal(t, "2.9.6", dec.Header.ReceiverVersion)
	assert.Equal(t, "DBHZ", dec.Header.SignalStrengthUnit)
	assert.Equal(t, time.Date(2018, 11, 6, 19, 0, 0, 0, time.UTC), dec.Header.TimeOfFirstObs)
	assert.Equal(t, time.Date(2018, 11, 6, 19, 59, 30, 0, time.UTC), dec.Header.TimeOfLastObs)
	assert.Equal(t, 30.000, dec.Header.Interval)
	assert.Equal(t, 43, dec.Header.NSatellites)
	assert.Equal(t, []string{"C1C", "L1C", "S1C", "C1W", "S1W", "C2W", "L2W", "S2W", "C2L", "L2L", "S2L", "C5Q", "L5Q", "S5Q"},
		dec.Header.ObsTypes[gnss.SysGPS])
}

const testHeaderV2 = `     2.11           OBSERVATION DATA    G                   RINEX VERSION / TYPE
sbf2rin-12.3.1                          20181106 200225 UTC PGM / RUN BY / DATE
ABCD                                                        MARKER NAME
G   02 C1C L1C                                              SYS / # / OBS TYPES
    30.000                                                  INTERVAL
                                                            END OF HEADER
`

func TestObsDecoder_readHeaderV2(t *testing.T) {
	dec, err := NewObsDecoder(strings.NewReader(testHeaderV2))
	assert.NoError(t, err)
	assert.Equal(t, gnss.SysGPS, dec.Header.SatSystem)
	assert.Equal(t, "ABCD", dec.Header.MarkerName)
	assert.Equal(t, 30.0, dec.Header.Interval)
}

func TestObsDecoder_readHeaderShortLinesAreSkipped(t *testing.T) {
	_, err := NewObsDecoder(strings.NewReader("not a rinex file\n"))
	assert.NoError(t, err) // lines under 60 bytes are skipped; EOF ends the scan with no error
}

func TestObsDecoder_readHeaderInvalidSatSystem(t *testing.T) {
	bad := strings.Replace(testHeaderV3, "OBSERVATION DATA    M", "OBSERVATION DATA    Z", 1)
	_, err := NewObsDecoder(strings.NewReader(bad))
	assert.Error(t, err)
}
